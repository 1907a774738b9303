package reporting

import (
	"reflect"
	"testing"

	analyticsreporting "google.golang.org/api/analyticsreporting/v4"
)

func TestParsePage_RowOrder(t *testing.T) {
	resp := &analyticsreporting.GetReportsResponse{
		Reports: []*analyticsreporting.Report{{
			NextPageToken: "1000",
			Data: &analyticsreporting.ReportData{
				RowCount: 2500,
				Rows: []*analyticsreporting.ReportRow{
					{
						Dimensions: []string{"202401010000", "google"},
						Metrics: []*analyticsreporting.DateRangeValues{
							{Values: []string{"10", "3"}},
						},
					},
					{
						Dimensions: []string{"202401010001", "direct"},
						Metrics: []*analyticsreporting.DateRangeValues{
							{Values: []string{"7", "1"}},
						},
					},
				},
			},
		}},
	}

	page := ParsePage(resp)

	expected := [][]string{
		{"10", "3", "202401010000", "google"},
		{"7", "1", "202401010001", "direct"},
	}
	if !reflect.DeepEqual(page.Rows, expected) {
		t.Errorf("Rows = %v, want %v", page.Rows, expected)
	}
	if page.Next.Done() || page.Next.Token() != "1000" {
		t.Errorf("Next = %v, want 1000", page.Next)
	}
	if !page.HasRowCount || page.RowCount != 2500 {
		t.Errorf("RowCount = %d (known %v), want 2500", page.RowCount, page.HasRowCount)
	}
}

func TestParsePage_MultipleDateRanges(t *testing.T) {
	resp := &analyticsreporting.GetReportsResponse{
		Reports: []*analyticsreporting.Report{{
			Data: &analyticsreporting.ReportData{
				Rows: []*analyticsreporting.ReportRow{{
					Dimensions: []string{"d1"},
					Metrics: []*analyticsreporting.DateRangeValues{
						{Values: []string{"1", "2"}},
						{Values: []string{"3", "4"}},
					},
				}},
			},
		}},
	}

	page := ParsePage(resp)

	expected := [][]string{{"1", "2", "3", "4", "d1"}}
	if !reflect.DeepEqual(page.Rows, expected) {
		t.Errorf("Rows = %v, want %v", page.Rows, expected)
	}
}

func TestParsePage_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *analyticsreporting.GetReportsResponse
	}{
		{"nil response", nil},
		{"zero report blocks", &analyticsreporting.GetReportsResponse{}},
		{"report without data", &analyticsreporting.GetReportsResponse{
			Reports: []*analyticsreporting.Report{{}},
		}},
		{"data without rows", &analyticsreporting.GetReportsResponse{
			Reports: []*analyticsreporting.Report{{Data: &analyticsreporting.ReportData{}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := ParsePage(tt.resp)
			if len(page.Rows) != 0 {
				t.Errorf("Expected no rows, got %d", len(page.Rows))
			}
			if !page.Next.Done() {
				t.Errorf("Expected end cursor, got %v", page.Next)
			}
			if page.HasRowCount {
				t.Error("Expected absent row count")
			}
		})
	}
}

func TestParsePage_NoneTokenIsEnd(t *testing.T) {
	resp := &analyticsreporting.GetReportsResponse{
		Reports: []*analyticsreporting.Report{{NextPageToken: "None"}},
	}

	if page := ParsePage(resp); !page.Next.Done() {
		t.Errorf("Expected literal None token to end pagination, got %v", page.Next)
	}
}

func TestParsePage_RowCountAbsentOnLaterPage(t *testing.T) {
	resp := &analyticsreporting.GetReportsResponse{
		Reports: []*analyticsreporting.Report{{
			NextPageToken: "2000",
			Data: &analyticsreporting.ReportData{
				Rows: []*analyticsreporting.ReportRow{{Dimensions: []string{"x"}}},
			},
		}},
	}

	page := ParsePage(resp)
	if page.HasRowCount {
		t.Error("Later pages without a count should report it as absent")
	}
	if len(page.Rows) != 1 {
		t.Errorf("Expected 1 row, got %d", len(page.Rows))
	}
}
