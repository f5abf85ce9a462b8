package processor

import (
	"math"
	"testing"
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fiveTrips 两天，开始小时为 8 或 20
func fiveTrips(t *testing.T) dataframe.DataFrame {
	return derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:20", "Business", "A", "B", "5", "Meeting"},
		{"2016-01-01 20:00", "2016-01-01 20:30", "Business", "A", "B", "7", "Meal/Entertain"},
		{"2016-01-02 08:10", "2016-01-02 08:40", "Personal", "C", "D", "3", "Errand/Supplies"},
		{"2016-01-02 20:15", "2016-01-02 20:25", "Business", "C", "E", "2", ""},
		{"2016-01-02 08:30", "2016-01-02 09:00", "Business", "A", "B", "4", "Customer Visit"},
	})
}

func TestFilterHourRange(t *testing.T) {
	df := fiveTrips(t)
	view := Filter(df, Window{From: day(2016, 1, 1), To: day(2016, 1, 2), HourFrom: 0, HourTo: 12})
	if view.Nrow() != 3 {
		t.Fatalf("rows = %d, want 3", view.Nrow())
	}
	hours := view.Col(ColHour)
	for i := 0; i < hours.Len(); i++ {
		if h, _ := utils.IntAt(hours, i); h != 8 {
			t.Errorf("hour[%d] = %d, want 8", i, h)
		}
	}
	if got := Summarize(view).TotalTrips; got != 3 {
		t.Errorf("total trips = %d, want 3", got)
	}
	if df.Nrow() != 5 {
		t.Error("input table must not be mutated")
	}
}

func TestFilterKeepsOrder(t *testing.T) {
	df := fiveTrips(t)
	view := Filter(df, Window{From: day(2016, 1, 2), To: day(2016, 1, 2), HourFrom: 0, HourTo: 23})
	miles := view.Col(ColMiles)
	want := []float64{3, 2, 4}
	if miles.Len() != len(want) {
		t.Fatalf("rows = %d", miles.Len())
	}
	for i, w := range want {
		if v, _ := utils.FloatAt(miles, i); v != w {
			t.Errorf("miles[%d] = %v, want %v", i, v, w)
		}
	}
}

func TestFilterIdempotent(t *testing.T) {
	df := fiveTrips(t)
	w := Window{From: day(2016, 1, 2), To: day(2016, 1, 2), HourFrom: 8, HourTo: 8}
	once := Filter(df, w)
	twice := Filter(once, w)
	if once.Nrow() != 2 || twice.Nrow() != once.Nrow() {
		t.Fatalf("rows once=%d twice=%d", once.Nrow(), twice.Nrow())
	}
	a, b := once.Col(ColStartDate), twice.Col(ColStartDate)
	for i := 0; i < a.Len(); i++ {
		if a.Elem(i).String() != b.Elem(i).String() {
			t.Errorf("row %d differs: %s vs %s", i, a.Elem(i), b.Elem(i))
		}
	}
}

func TestFilterInvertedRanges(t *testing.T) {
	df := fiveTrips(t)
	cases := []Window{
		{From: day(2016, 1, 2), To: day(2016, 1, 1), HourFrom: 0, HourTo: 23},
		{From: day(2016, 1, 1), To: day(2016, 1, 2), HourFrom: 12, HourTo: 11},
	}
	for _, w := range cases {
		if !w.Empty() {
			t.Errorf("%+v should be empty", w)
		}
		if got := Filter(df, w).Nrow(); got != 0 {
			t.Errorf("Filter(%+v) rows = %d, want 0", w, got)
		}
	}
}

func TestFilterSkipsNullDates(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:20", "Business", "A", "B", "5", "Meeting"},
		{"bad", "2016-01-01 08:20", "Business", "A", "B", "5", "Meeting"},
	})
	view := Filter(df, Window{From: time.Time{}, To: day(2100, 1, 1), HourFrom: 0, HourTo: 23})
	if view.Nrow() != 1 {
		t.Errorf("rows = %d, want 1", view.Nrow())
	}
}

func TestBounds(t *testing.T) {
	lo, hi, ok := Bounds(fiveTrips(t))
	if !ok || !lo.Equal(day(2016, 1, 1)) || !hi.Equal(day(2016, 1, 2)) {
		t.Errorf("Bounds = %v %v %v", lo, hi, ok)
	}
	if _, _, ok := Bounds(dataframe.New()); ok {
		t.Error("empty table has no bounds")
	}
}

func TestSummarize(t *testing.T) {
	m := Summarize(fiveTrips(t))
	if m.TotalTrips != 5 || m.TotalMiles != 21 {
		t.Errorf("metrics = %+v", m)
	}
	if math.Abs(float64(m.AvgDuration)-24) > 1e-9 {
		t.Errorf("avg duration = %v, want 24", m.AvgDuration)
	}
}

func TestSummarizeWithoutDurationsIsNaN(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "", "Business", "A", "B", "", "Meeting"},
	})
	m := Summarize(df)
	if !m.AvgDuration.IsNaN() {
		t.Errorf("avg duration = %v, want NaN", m.AvgDuration)
	}
	if m.TotalMiles != 0 {
		t.Errorf("total miles = %v, want 0", m.TotalMiles)
	}
	b, err := m.AvgDuration.MarshalJSON()
	if err != nil || string(b) != "null" {
		t.Errorf("NaN marshals to %s, %v", b, err)
	}
}

func TestCharts(t *testing.T) {
	c := BuildCharts(fiveTrips(t))

	if len(c.ByHour) != 2 || c.ByHour[0] != (KeyCount{Key: 8, Trips: 3}) || c.ByHour[1] != (KeyCount{Key: 20, Trips: 2}) {
		t.Errorf("by hour = %+v", c.ByHour)
	}
	if len(c.ByDay) != 2 || c.ByDay[0] != (KeyCount{Key: 1, Trips: 2}) || c.ByDay[1] != (KeyCount{Key: 2, Trips: 3}) {
		t.Errorf("by day = %+v", c.ByDay)
	}
	// 2016-01-01 周五，2016-01-02 周六
	if len(c.ByWeekday) != 2 || c.ByWeekday[0].Label != "Friday" || c.ByWeekday[1].Label != "Saturday" {
		t.Errorf("by weekday = %+v", c.ByWeekday)
	}
	if c.RouteSplit[0].Trips != 3 || c.RouteSplit[1].Trips != 2 {
		t.Errorf("route split = %+v", c.RouteSplit)
	}
	if len(c.FrequentRoutes) != 1 || c.FrequentRoutes[0] != (RouteCount{Start: "A", Stop: "B", Trips: 3}) {
		t.Errorf("frequent routes = %+v", c.FrequentRoutes)
	}

	flags := map[string]int{}
	for _, f := range c.Flags {
		flags[f.Label] = f.Trips
	}
	if flags["Business"] != 2 || flags["Task"] != 1 || flags["Meal"] != 1 || flags["Airport"] != 0 {
		t.Errorf("flags = %+v", c.Flags)
	}

	purposes := map[string]int{}
	for _, p := range c.Purposes {
		purposes[p.Label] = p.Trips
	}
	if purposes[UnknownLabel] != 1 || purposes["Meeting"] != 1 {
		t.Errorf("purposes = %+v", c.Purposes)
	}

	if len(c.MilesByCategory) != 2 || c.MilesByCategory[0] != (LabelValue{Label: "Business", Value: 18}) {
		t.Errorf("miles by category = %+v", c.MilesByCategory)
	}

	total := 0
	for _, b := range c.DurationHistogram {
		total += b.Trips
	}
	if len(c.DurationHistogram) != HistogramBins || total != 5 {
		t.Errorf("histogram bins=%d total=%d", len(c.DurationHistogram), total)
	}
}

func TestDurationHistogramSingleValue(t *testing.T) {
	df := derive(t, tripHeaders, [][]string{
		{"2016-01-01 08:00", "2016-01-01 08:10", "Business", "A", "B", "1", "Meeting"},
		{"2016-01-01 09:00", "2016-01-01 09:10", "Business", "A", "B", "1", "Meeting"},
	})
	bins := DurationHistogram(df, 4)
	if len(bins) != 4 || bins[0].From != 9.5 || bins[3].To != 10.5 {
		t.Fatalf("bins = %+v", bins)
	}
	if bins[2].Trips != 2 {
		t.Errorf("bins = %+v", bins)
	}
}

func TestChartsOnEmptyView(t *testing.T) {
	df := fiveTrips(t)
	empty := Filter(df, Window{From: day(2016, 1, 2), To: day(2016, 1, 1)})
	c := BuildCharts(empty)
	if len(c.ByHour) != 0 || len(c.DurationHistogram) != 0 || len(c.FrequentRoutes) != 0 {
		t.Errorf("charts = %+v", c)
	}
	if !Summarize(empty).AvgDuration.IsNaN() {
		t.Error("mean of no durations should be NaN")
	}
}
