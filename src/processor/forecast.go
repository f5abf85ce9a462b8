// forecast.go
package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"
)

// 预测天数范围
const (
	MinForecastDays     = 1
	MaxForecastDays     = 10
	DefaultForecastDays = 3
)

// weeklyMinSpan 历史跨度达到两周才拟合星期效应
const weeklyMinSpan = 14

// DailyCount 每日行程数
type DailyCount struct {
	Date  time.Time `json:"-"`
	Trips int       `json:"trips"`
}

// ForecastPoint 预测结果
type ForecastPoint struct {
	Date           string `json:"date"`
	PredictedTrips int    `json:"predicted_trips"`
}

// Forecaster 日粒度时间序列预测器
type Forecaster interface {
	Fit(history []DailyCount) error
	Predict(dates []time.Time) ([]float64, error)
}

// DailyCounts 按开始日期计数，按日期升序，日期为空的行不计
func DailyCounts(df dataframe.DataFrame) []DailyCount {
	if !utils.HasColumn(df, ColDate) {
		return nil
	}
	dates := df.Col(ColDate)
	counts := map[string]int{}
	for i := 0; i < dates.Len(); i++ {
		if d, ok := utils.StringAt(dates, i); ok {
			counts[d]++
		}
	}

	out := make([]DailyCount, 0, len(counts))
	for d, c := range counts {
		t, err := time.Parse(utils.DateLayout, d)
		if err != nil {
			continue
		}
		out = append(out, DailyCount{Date: t, Trips: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Forecast 对过滤后的表按日计数并预测之后 days 天的行程数
// 结果取整且不小于 0，日期紧接最后一个历史日期
func Forecast(df dataframe.DataFrame, days int, f Forecaster) ([]ForecastPoint, error) {
	if days < MinForecastDays || days > MaxForecastDays {
		return nil, fmt.Errorf("%w: days must be in [%d, %d], got %d", ErrInvalidParams, MinForecastDays, MaxForecastDays, days)
	}

	history := DailyCounts(df)
	if len(history) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 dates, got %d", ErrForecastInput, len(history))
	}

	if err := f.Fit(history); err != nil {
		return nil, fmt.Errorf("预测模型拟合失败: %w", err)
	}

	last := history[len(history)-1].Date
	future := make([]time.Time, days)
	for i := range future {
		future[i] = last.AddDate(0, 0, i+1)
	}

	preds, err := f.Predict(future)
	if err != nil {
		return nil, fmt.Errorf("预测失败: %w", err)
	}
	if len(preds) != days {
		return nil, fmt.Errorf("预测失败: got %d values for %d dates", len(preds), days)
	}

	out := make([]ForecastPoint, days)
	for i, t := range future {
		out[i] = ForecastPoint{
			Date:           t.Format(utils.DateLayout),
			PredictedTrips: int(math.Max(0, math.Round(preds[i]))),
		}
	}
	return out, nil
}

// TrendForecaster 加性模型：截距 + 线性趋势 + 星期效应(历史不少于两周时)
// 系数用带微弱岭惩罚的最小二乘求得，截距不受惩罚
type TrendForecaster struct {
	// Penalty 趋势与星期项的岭惩罚
	Penalty float64

	start  time.Time
	span   float64
	weekly bool
	coef   []float64
}

func NewTrendForecaster() *TrendForecaster {
	return &TrendForecaster{Penalty: 1e-3}
}

func (f *TrendForecaster) features(t time.Time) []float64 {
	row := []float64{1, t.Sub(f.start).Hours() / 24 / f.span}
	if f.weekly {
		// 周日为基准，其余六天各一个哑变量
		wd := t.Weekday()
		for d := time.Monday; d <= time.Saturday; d++ {
			if wd == d {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}
	return row
}

func (f *TrendForecaster) Fit(history []DailyCount) error {
	if len(history) < 2 {
		return fmt.Errorf("%w: need at least 2 dates, got %d", ErrForecastInput, len(history))
	}
	f.start = history[0].Date
	span := history[len(history)-1].Date.Sub(f.start).Hours() / 24
	if span <= 0 {
		return fmt.Errorf("%w: history dates are not increasing", ErrForecastInput)
	}
	f.span = span
	f.weekly = span+1 >= weeklyMinSpan

	rows := make([]float64, 0, len(history)*8)
	y := make([]float64, len(history))
	p := 0
	for i, h := range history {
		row := f.features(h.Date)
		p = len(row)
		rows = append(rows, row...)
		y[i] = float64(h.Trips)
	}

	penalty := make([]float64, p)
	for j := 1; j < p; j++ {
		penalty[j] = f.Penalty
	}

	coef, err := ridgeSolve(mat.NewDense(len(history), p, rows), y, penalty)
	if err != nil {
		return err
	}
	f.coef = coef
	return nil
}

func (f *TrendForecaster) Predict(dates []time.Time) ([]float64, error) {
	if f.coef == nil {
		return nil, fmt.Errorf("forecaster is not fitted")
	}
	out := make([]float64, len(dates))
	for i, t := range dates {
		row := f.features(t)
		for j, v := range row {
			out[i] += v * f.coef[j]
		}
	}
	return out, nil
}
