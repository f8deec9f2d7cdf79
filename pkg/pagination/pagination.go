package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// HeaderTotalCount carries the size of the full result set.
const HeaderTotalCount = "X-Total-Count"

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. Missing
// or malformed values fall back to the defaults.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link builds an RFC 8288 Link header value with next and prev relations for
// the request URL. It is empty when there is only one page.
func (p Params) Link(u *url.URL, total int) string {
	var links []string
	if p.HasNext(total) {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, pageURL(u, p.NextOffset(), p.Limit)))
	}
	if p.HasPrevious() {
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, pageURL(u, p.PreviousOffset(), p.Limit)))
	}
	return strings.Join(links, ", ")
}

// SetHeaders writes the total count and Link header for a page.
func SetHeaders(c echo.Context, p Params, total int) {
	h := c.Response().Header()
	h.Set(HeaderTotalCount, strconv.Itoa(total))
	if link := p.Link(c.Request().URL, total); link != "" {
		h.Set("Link", link)
	}
}

func pageURL(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}
