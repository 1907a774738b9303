package reporting

import (
	analyticsreporting "google.golang.org/api/analyticsreporting/v4"
)

// Page is the result of one fetch.
type Page struct {
	// Rows holds metric values followed by dimension values, in query order.
	Rows [][]string

	// Next is the cursor for the following page.
	Next Cursor

	// RowCount is the total row count of the result set. It is only
	// meaningful when HasRowCount is true, which is normally the first page.
	RowCount    int
	HasRowCount bool
}

// ParsePage extracts rows, the next cursor and the total row count from the
// first report block of resp. A response without report blocks yields an
// empty page with an end cursor.
func ParsePage(resp *analyticsreporting.GetReportsResponse) Page {
	if resp == nil || len(resp.Reports) == 0 || resp.Reports[0] == nil {
		return Page{Next: EndCursor}
	}
	report := resp.Reports[0]

	page := Page{Next: CursorFromToken(report.NextPageToken)}
	if report.Data == nil {
		return page
	}
	if report.Data.RowCount > 0 {
		page.RowCount = int(report.Data.RowCount)
		page.HasRowCount = true
	}

	page.Rows = make([][]string, 0, len(report.Data.Rows))
	for _, r := range report.Data.Rows {
		if r == nil {
			continue
		}
		page.Rows = append(page.Rows, buildRow(r))
	}
	return page
}

// buildRow appends every metric value, across all date ranges, before the
// dimension values.
func buildRow(r *analyticsreporting.ReportRow) []string {
	row := make([]string, 0, len(r.Dimensions)+metricValueCount(r))
	for _, dateRange := range r.Metrics {
		if dateRange == nil {
			continue
		}
		row = append(row, dateRange.Values...)
	}
	row = append(row, r.Dimensions...)
	return row
}

func metricValueCount(r *analyticsreporting.ReportRow) int {
	n := 0
	for _, dateRange := range r.Metrics {
		if dateRange != nil {
			n += len(dateRange.Values)
		}
	}
	return n
}
