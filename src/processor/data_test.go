package processor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"TripDashboard/src/config"
	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
)

var tripHeaders = []string{"START_DATE*", "END_DATE*", "CATEGORY*", "START*", "STOP*", "MILES*", "PURPOSE*"}

type staticSource struct {
	df  dataframe.DataFrame
	err error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Read(ctx context.Context) (dataframe.DataFrame, error) {
	return s.df, s.err
}

// derive 从原始行构造完整派生表
func derive(t *testing.T, headers []string, rows [][]string) dataframe.DataFrame {
	t.Helper()
	src := staticSource{df: utils.RecordsToDataFrame(headers, rows)}
	df, err := BuildTable(context.Background(), src, config.DefaultDataConfig())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	return df
}

func boolColumn(t *testing.T, df dataframe.DataFrame, col string) []bool {
	t.Helper()
	s := df.Col(col)
	out := make([]bool, s.Len())
	for i := range out {
		out[i] = utils.BoolAt(s, i)
	}
	return out
}

func TestLoaderNormalizesHeadersAndValues(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"1/1/2016 21:11", "1/1/2016 21:17", "Business", "Fort Pierce", "Fort Pierce", "5.1", "Meal/Entertain"},
		{"not a date", "1/2/2016 1:37", "Business", "Fort Pierce", "Fort Pierce", "1,200.5", ""},
		{"42370.5", "42370.75", "Personal", "Cary", "Morrisville", "abc", "Errand/Supplies"},
	})

	for _, col := range []string{ColStartDate, ColEndDate, ColCategory, ColStart, ColStop, ColMiles, ColPurpose} {
		if !utils.HasColumn(df, col) {
			t.Fatalf("missing column %s in %v", col, df.Names())
		}
	}

	start := df.Col(ColStartDate)
	if got, _ := utils.StringAt(start, 0); got != "2016-01-01 21:11:00" {
		t.Errorf("start[0] = %q", got)
	}
	if !start.Elem(1).IsNA() {
		t.Error("unparseable start should be null")
	}
	if got, _ := utils.StringAt(start, 2); got != "2016-01-01 12:00:00" {
		t.Errorf("excel serial start = %q", got)
	}

	miles := df.Col(ColMiles)
	if v, ok := utils.FloatAt(miles, 1); !ok || v != 1200.5 {
		t.Errorf("miles[1] = %v, %v", v, ok)
	}
	if _, ok := utils.FloatAt(miles, 2); ok {
		t.Error("unparseable miles should be null")
	}
}

func TestLoaderPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewLoader(config.DefaultDataConfig()).Load(context.Background(), staticSource{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestLoaderCustomColumnMapping(t *testing.T) {
	dcfg := config.DefaultDataConfig()
	dcfg.Columns["start"] = "From"
	dcfg.Columns["stop"] = "To"
	src := staticSource{df: utils.RecordsToDataFrame(
		[]string{"START_DATE", "END_DATE", "from", "to"},
		[][]string{{"2016-01-01 08:00", "2016-01-01 08:10", "A", "B"}},
	)}
	df, err := BuildTable(context.Background(), src, dcfg)
	if err != nil {
		t.Fatal(err)
	}
	if !utils.HasColumn(df, ColStart) || !utils.HasColumn(df, ColStop) {
		t.Fatalf("columns = %v", df.Names())
	}
}

func TestExcelToTime(t *testing.T) {
	cases := []struct {
		serial float64
		want   time.Time
	}{
		{42370, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)},
		{42370.25, time.Date(2016, 1, 1, 6, 0, 0, 0, time.UTC)},
		{1, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, ok := excelToTime(c.serial)
		if !ok || !got.Equal(c.want) {
			t.Errorf("excelToTime(%v) = %v, %v; want %v", c.serial, got, ok, c.want)
		}
	}
	if _, ok := excelToTime(0); ok {
		t.Error("serial 0 should be rejected")
	}
}

func TestDurationMinutes(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 10:00:00", "2016-01-01 10:30:30", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-01 10:00:00", "", "Business", "A", "B", "1", "Meeting"},
		{"garbage", "2016-01-01 10:30:00", "Business", "A", "B", "1", "Meeting"},
	})
	d := df.Col(ColDuration)
	if v, ok := utils.FloatAt(d, 0); !ok || math.Abs(v-30.5) > 1e-9 {
		t.Errorf("duration[0] = %v, %v; want 30.5", v, ok)
	}
	for i := 1; i < 3; i++ {
		if !d.Elem(i).IsNA() {
			t.Errorf("duration[%d] should be null", i)
		}
	}
}

func TestCalendarColumns(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-04 08:15:00", "2016-01-04 08:45:00", "Business", "A", "B", "1", "Meeting"},
		{"", "", "Business", "A", "B", "1", "Meeting"},
	})
	if got, _ := utils.StringAt(df.Col(ColDate), 0); got != "2016-01-04" {
		t.Errorf("date = %q", got)
	}
	if got, _ := utils.IntAt(df.Col(ColHour), 0); got != 8 {
		t.Errorf("hour = %d", got)
	}
	if got, _ := utils.StringAt(df.Col(ColWeekday), 0); got != "Monday" {
		t.Errorf("weekday = %q", got)
	}
	for _, col := range []string{ColDate, ColHour, ColWeekday} {
		if !df.Col(col).Elem(1).IsNA() {
			t.Errorf("%s should be null without a start time", col)
		}
	}
}

func TestRouteFlags(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-01 09:00", "2016-01-01 09:10", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-01 10:00", "2016-01-01 10:10", "Business", "C", "D", "1", "Meeting"},
	})
	same := boolColumn(t, df, ColSameRoute)
	repeated := boolColumn(t, df, ColRepeatedRoute)
	wantSame := []bool{true, true, false}
	wantRepeated := []bool{false, true, false}
	for i := range wantSame {
		if same[i] != wantSame[i] {
			t.Errorf("Same Route[%d] = %v, want %v", i, same[i], wantSame[i])
		}
		if repeated[i] != wantRepeated[i] {
			t.Errorf("Repeated_Route[%d] = %v, want %v", i, repeated[i], wantRepeated[i])
		}
	}
}

func TestRouteFlagsNullEndpointsCompareEqual(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "Business", "", "B", "1", "Meeting"},
		{"2016-01-01 09:00", "2016-01-01 09:10", "Business", "", "B", "1", "Meeting"},
		{"2016-01-01 10:00", "2016-01-01 10:10", "Business", "B", "", "1", "Meeting"},
	})
	same := boolColumn(t, df, ColSameRoute)
	if !same[0] || !same[1] || same[2] {
		t.Errorf("Same Route = %v", same)
	}
}

func TestRouteFlagsSurviveFiltering(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-02 08:00", "2016-01-02 08:10", "Business", "A", "B", "1", "Meeting"},
	})
	day := time.Date(2016, 1, 2, 0, 0, 0, 0, time.UTC)
	view := Filter(df, Window{From: day, To: day, HourFrom: 0, HourTo: 23})
	if view.Nrow() != 1 {
		t.Fatalf("rows = %d", view.Nrow())
	}
	if !utils.BoolAt(view.Col(ColSameRoute), 0) || !utils.BoolAt(view.Col(ColRepeatedRoute), 0) {
		t.Error("route flags must keep their full-table values after filtering")
	}
}

func TestKeywordFlags(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "AIRPORT shuttle", "A", "B", "1", "Customer Visit"},
		{"2016-01-01 09:00", "2016-01-01 09:10", "Business", "A", "B", "1", "MEAL/Entertain"},
		{"2016-01-01 10:00", "2016-01-01 10:10", "", "A", "B", "1", ""},
		{"2016-01-01 11:00", "2016-01-01 11:10", "Personal", "A", "B", "1", "errand/Supplies"},
	})
	want := map[string][]bool{
		ColIsBusiness: {true, false, false, false},
		ColIsMeal:     {false, true, false, false},
		ColIsAirport:  {true, false, false, false},
		ColIsErrand:   {false, false, false, true},
	}
	for col, expected := range want {
		got := boolColumn(t, df, col)
		for i := range expected {
			if got[i] != expected[i] {
				t.Errorf("%s[%d] = %v, want %v", col, i, got[i], expected[i])
			}
		}
	}
}

func TestMissingRawColumnsDegrade(t *testing.T) {
	df := derive(t, []string{"START_DATE", "MILES"}, [][]string{
		{"2016-01-01 08:00", "3"},
		{"2016-01-01 09:00", "4"},
	})
	if !df.Col(ColDuration).Elem(0).IsNA() {
		t.Error("duration should be null without END_DATE")
	}
	for _, col := range []string{ColSameRoute, ColRepeatedRoute, ColIsBusiness, ColIsAirport} {
		for i, v := range boolColumn(t, df, col) {
			if v {
				t.Errorf("%s[%d] should be false", col, i)
			}
		}
	}
}

func TestMissingValues(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-01 09:00", "2016-01-01 09:10", "Business", "A", "B", "1", ""},
		{"2016-01-01 10:00", "2016-01-01 10:10", "Business", "A", "B", "1", "Meeting"},
	})
	report := MissingValues(df)
	if report.Total != 1 || len(report.Columns) != 1 || report.Columns[0].Column != ColPurpose {
		t.Fatalf("report = %+v", report.Columns)
	}
	if report.Rows.Nrow() != 1 {
		t.Errorf("rows with nulls = %d, want 1", report.Rows.Nrow())
	}
	if got := DropMissing(df).Nrow(); got != 2 {
		t.Errorf("DropMissing rows = %d, want 2", got)
	}

	clean := MissingValues(DropMissing(df))
	if clean.Columns == nil || len(clean.Columns) != 0 || clean.Total != 0 {
		t.Errorf("clean report = %+v", clean)
	}
}
