package appointment

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/mindmate/mindmate/internal/domain/identity"
)

// renderSummary produces the visit summary PDF handed to the patient after a
// completed appointment.
func renderSummary(a *Appointment, patient *identity.Patient, doctor *identity.Doctor, generated time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Visit summary", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(60, 40, 120)
	pdf.CellFormat(0, 10, "MindMate - Visit Summary", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, "Generated "+generated.UTC().Format(dateLayout), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	section(pdf, "Appointment")
	detailRow(pdf, tr, "Appointment ID", a.ID.String())
	detailRow(pdf, tr, "Date", a.Date.UTC().Format(dateLayout))
	detailRow(pdf, tr, "Type", a.Type)
	detailRow(pdf, tr, "Duration", fmt.Sprintf("%d minutes", a.Duration))
	detailRow(pdf, tr, "Status", a.Status)

	section(pdf, "Participants")
	detailRow(pdf, tr, "Patient", patient.FullName)
	detailRow(pdf, tr, "Doctor", "Dr. "+doctor.FullName)
	detailRow(pdf, tr, "Specialization", doctor.Specialization)
	detailRow(pdf, tr, "License", doctor.LicenseNumber)

	section(pdf, "Clinical notes")
	textBlock(pdf, tr, "Symptoms", a.Symptoms)
	textBlock(pdf, tr, "Health condition", deref(a.HealthCondition))
	textBlock(pdf, tr, "Patient notes", deref(a.Notes))
	textBlock(pdf, tr, "Doctor notes", deref(a.DoctorNotes))
	textBlock(pdf, tr, "Prescription", deref(a.Prescription))
	if a.FollowUpDate != nil {
		detailRow(pdf, tr, "Follow-up", a.FollowUpDate.UTC().Format(dateLayout))
	}

	section(pdf, "Activity")
	pdf.SetFont("Arial", "", 9)
	for _, e := range a.ActivityLog {
		line := fmt.Sprintf("%s  %s (%s): %s", e.Timestamp.UTC().Format("2006-01-02 15:04"), e.Action, e.PerformedBy, e.Details)
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 4, "This summary is computer generated and does not replace a signed medical record.", "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 12)
	pdf.SetFillColor(235, 232, 245)
	pdf.CellFormat(0, 8, title, "", 1, "L", true, 0, "")
	pdf.Ln(1)
}

func detailRow(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 7, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, tr(value), "1", 1, "", false, 0, "")
}

func textBlock(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(value), "", "L", false)
	pdf.Ln(1)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
