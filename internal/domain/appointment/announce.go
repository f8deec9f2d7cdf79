package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/platform/notification"
	"github.com/mindmate/mindmate/internal/platform/websocket"
)

// Everything here runs after a commit. Failures are logged and never reach
// the caller.

const dateLayout = "Mon, Jan 2 2006 15:04 MST"

type participants struct {
	patient     *identity.Patient
	doctor      *identity.Doctor
	patientUser *identity.User
	doctorUser  *identity.User
}

// loadParticipants fills in both profiles and their users. Profiles already
// at hand may be passed to skip a lookup.
func (s *Service) loadParticipants(ctx context.Context, a *Appointment, patient *identity.Patient, doctor *identity.Doctor) (*participants, error) {
	var err error
	if patient == nil {
		if patient, err = s.profiles.PatientByID(ctx, a.PatientID); err != nil {
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}
	if doctor == nil {
		if doctor, err = s.profiles.GetDoctor(ctx, a.DoctorID); err != nil {
			return nil, fmt.Errorf("load doctor: %w", err)
		}
	}
	parts := &participants{patient: patient, doctor: doctor}
	if parts.patientUser, err = s.profiles.GetUser(ctx, patient.UserID); err != nil {
		return nil, fmt.Errorf("load patient user: %w", err)
	}
	if parts.doctorUser, err = s.profiles.GetUser(ctx, doctor.UserID); err != nil {
		return nil, fmt.Errorf("load doctor user: %w", err)
	}
	return parts, nil
}

type statusEvent struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus"`
	PerformedBy    string `json:"performedBy"`
}

func (s *Service) announceCreated(ctx context.Context, a *Appointment, patient *identity.Patient, doctor *identity.Doctor) {
	s.events.PublishToUser(doctor.UserID, websocket.EventAppointmentCreated, resourceType, a.ID.String(), a)

	parts, err := s.loadParticipants(ctx, a, patient, doctor)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skipping request notification")
		return
	}
	s.notifier.Notify(notification.Message{
		Template:  notification.TemplateAppointmentRequested,
		Recipient: recipient(parts.doctorUser),
		Data:      templateData(a, parts),
	})
}

var statusTemplates = map[string]string{
	StatusAccepted:  notification.TemplateAppointmentAccepted,
	StatusRejected:  notification.TemplateAppointmentRejected,
	StatusCompleted: notification.TemplateAppointmentCompleted,
}

// announceStatus tells both participants about a transition over the
// realtime channel and notifies the counterpart of whoever made it.
func (s *Service) announceStatus(ctx context.Context, a *Appointment, previous, actor string, notes *string) {
	parts, err := s.loadParticipants(ctx, a, nil, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skipping status notification")
		return
	}

	ev := statusEvent{ID: a.ID.String(), Status: a.Status, PreviousStatus: previous, PerformedBy: actor}
	s.events.PublishToUser(parts.patient.UserID, websocket.EventAppointmentStatus, resourceType, ev.ID, ev)
	s.events.PublishToUser(parts.doctor.UserID, websocket.EventAppointmentStatus, resourceType, ev.ID, ev)

	data := templateData(a, parts)
	if notes != nil {
		data["notes"] = *notes
	}

	switch actor {
	case ByDoctor:
		tmpl, ok := statusTemplates[a.Status]
		if !ok {
			return
		}
		s.notifier.Notify(notification.Message{Template: tmpl, Recipient: recipient(parts.patientUser), Data: data})
	case ByPatient:
		if a.Status != StatusCancelled {
			return
		}
		data["recipient_name"] = parts.doctor.FullName
		data["actor_name"] = parts.patient.FullName
		s.notifier.Notify(notification.Message{
			Template:  notification.TemplateAppointmentCancelled,
			Recipient: recipient(parts.doctorUser),
			Data:      data,
		})
	case BySystem:
		for _, u := range []*identity.User{parts.patientUser, parts.doctorUser} {
			d := copyData(data)
			d["recipient_name"] = u.FullName
			d["actor_name"] = "MindMate"
			s.notifier.Notify(notification.Message{
				Template:  notification.TemplateAppointmentCancelled,
				Recipient: recipient(u),
				Data:      d,
			})
		}
	}
}

// announceUpdated tells the counterpart that details changed.
func (s *Service) announceUpdated(ctx context.Context, a *Appointment, actor string) {
	userID, err := s.counterpartUserID(ctx, a, actor)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skipping update event")
		return
	}
	s.events.PublishToUser(userID, websocket.EventAppointmentUpdated, resourceType, a.ID.String(),
		map[string]string{"id": a.ID.String(), "performedBy": actor})
}

func (s *Service) announceDeleted(ctx context.Context, a *Appointment, actor string) {
	userID, err := s.counterpartUserID(ctx, a, actor)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skipping delete event")
		return
	}
	s.events.PublishToUser(userID, websocket.EventAppointmentUpdated, resourceType, a.ID.String(),
		map[string]any{"id": a.ID.String(), "deleted": true, "performedBy": actor})
}

func (s *Service) counterpartUserID(ctx context.Context, a *Appointment, actor string) (uuid.UUID, error) {
	if actor == ByDoctor {
		p, err := s.profiles.PatientByID(ctx, a.PatientID)
		if err != nil {
			return uuid.Nil, err
		}
		return p.UserID, nil
	}
	d, err := s.profiles.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return uuid.Nil, err
	}
	return d.UserID, nil
}

func templateData(a *Appointment, parts *participants) map[string]string {
	return map[string]string{
		"appointment_id": a.ID.String(),
		"patient_name":   parts.patient.FullName,
		"doctor_name":    parts.doctor.FullName,
		"date":           a.Date.UTC().Format(dateLayout),
		"type":           a.Type,
		"symptoms":       a.Symptoms,
	}
}

func recipient(u *identity.User) notification.Recipient {
	r := notification.Recipient{UserID: u.ID, Name: u.FullName, Email: u.Email}
	if u.PushToken != nil {
		r.PushToken = *u.PushToken
	}
	return r
}

func copyData(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
