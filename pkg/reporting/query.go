package reporting

import (
	"strings"
	"time"
)

// Query shape defaults.
const (
	DefaultPageSize      = 1000
	DefaultOrderBy       = "ga:dateHourMinute"
	DefaultSamplingLevel = "LARGE"
)

// Query is the fixed shape of one report run. Only the cursor varies between
// pages; WithCursor returns a copy for the next request.
type Query struct {
	ViewID        string
	Metrics       []string
	Dimensions    []string
	Date          time.Time
	OrderBy       string
	SamplingLevel string
	PageSize      int
	Cursor        Cursor
}

// NewQuery returns a query for a single day with the default ordering,
// sampling level and page size, positioned at the first page.
func NewQuery(viewID string, metrics, dimensions []string, date time.Time) Query {
	return Query{
		ViewID:        viewID,
		Metrics:       append([]string(nil), metrics...),
		Dimensions:    append([]string(nil), dimensions...),
		Date:          date,
		OrderBy:       DefaultOrderBy,
		SamplingLevel: DefaultSamplingLevel,
		PageSize:      DefaultPageSize,
		Cursor:        StartCursor(),
	}
}

// WithCursor returns a copy of q positioned at c.
func (q Query) WithCursor(c Cursor) Query {
	q.Cursor = c
	return q
}

// Header returns the chunk header: metric names then dimension names, with
// any namespace prefix such as "ga:" removed.
func (q Query) Header() []string {
	header := make([]string, 0, len(q.Metrics)+len(q.Dimensions))
	for _, m := range q.Metrics {
		header = append(header, stripNamespace(m))
	}
	for _, d := range q.Dimensions {
		header = append(header, stripNamespace(d))
	}
	return header
}

func stripNamespace(name string) string {
	if i := strings.Index(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}
