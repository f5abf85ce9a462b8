package processor

import (
	"errors"
	"testing"
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// dailyTable 每天 counts[i] 条行程，从 start 开始连续
func dailyTable(start time.Time, counts []int) dataframe.DataFrame {
	var dates []string
	for i, c := range counts {
		d := start.AddDate(0, 0, i).Format(utils.DateLayout)
		for k := 0; k < c; k++ {
			dates = append(dates, d)
		}
	}
	return dataframe.New(series.New(dates, series.String, ColDate))
}

func TestForecastConstantWeek(t *testing.T) {
	const k = 4
	df := dailyTable(day(2016, 3, 1), []int{k, k, k, k, k, k, k})

	points, err := Forecast(df, 3, NewTrendForecaster())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2016-03-08", "2016-03-09", "2016-03-10"}
	if len(points) != len(want) {
		t.Fatalf("points = %+v", points)
	}
	for i, p := range points {
		if p.Date != want[i] {
			t.Errorf("date[%d] = %s, want %s", i, p.Date, want[i])
		}
		if p.PredictedTrips != k {
			t.Errorf("trips[%d] = %d, want %d", i, p.PredictedTrips, k)
		}
	}
}

func TestForecastConstantWithWeeklyTerms(t *testing.T) {
	counts := make([]int, 21)
	for i := range counts {
		counts[i] = 2
	}
	points, err := Forecast(dailyTable(day(2016, 3, 1), counts), MaxForecastDays, NewTrendForecaster())
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != MaxForecastDays {
		t.Fatalf("len = %d", len(points))
	}
	for _, p := range points {
		if p.PredictedTrips != 2 {
			t.Errorf("%s: %d, want 2", p.Date, p.PredictedTrips)
		}
	}
}

func TestForecastLinearTrend(t *testing.T) {
	counts := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	points, err := Forecast(dailyTable(day(2016, 3, 1), counts), 3, NewTrendForecaster())
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range points {
		if p.PredictedTrips != 11+i {
			t.Errorf("%s: %d, want %d", p.Date, p.PredictedTrips, 11+i)
		}
	}
}

func TestForecastClampsNegative(t *testing.T) {
	counts := []int{9, 7, 5, 3, 1}
	points, err := Forecast(dailyTable(day(2016, 3, 1), counts), 3, NewTrendForecaster())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range points {
		if p.PredictedTrips != 0 {
			t.Errorf("%s: %d, want 0", p.Date, p.PredictedTrips)
		}
	}
}

func TestForecastGapsUseCalendarDays(t *testing.T) {
	df := dataframe.New(series.New([]string{"2016-03-01", "2016-03-05", "2016-03-05"}, series.String, ColDate))
	points, err := Forecast(df, 1, NewTrendForecaster())
	if err != nil {
		t.Fatal(err)
	}
	if points[0].Date != "2016-03-06" {
		t.Errorf("date = %s", points[0].Date)
	}
}

func TestForecastErrors(t *testing.T) {
	df := dailyTable(day(2016, 3, 1), []int{1, 1, 1})
	for _, days := range []int{0, 11, -1} {
		if _, err := Forecast(df, days, NewTrendForecaster()); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("days=%d: err = %v", days, err)
		}
	}

	single := dailyTable(day(2016, 3, 1), []int{5})
	if _, err := Forecast(single, 3, NewTrendForecaster()); !errors.Is(err, ErrForecastInput) {
		t.Errorf("single date: err = %v", err)
	}
	if _, err := Forecast(dataframe.New(), 3, NewTrendForecaster()); !errors.Is(err, ErrForecastInput) {
		t.Errorf("no dates: err = %v", err)
	}
}

func TestDailyCounts(t *testing.T) {
	df := dataframe.New(series.New([]string{"2016-03-02", "NaN", "2016-03-01", "2016-03-02"}, series.String, ColDate))
	counts := DailyCounts(df)
	if len(counts) != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if !counts[0].Date.Equal(day(2016, 3, 1)) || counts[0].Trips != 1 || counts[1].Trips != 2 {
		t.Errorf("counts = %+v", counts)
	}
}
