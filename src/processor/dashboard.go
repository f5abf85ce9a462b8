// dashboard.go
package processor

import (
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// Params 一次请求的全部参数，零值日期表示使用数据范围
type Params struct {
	From        time.Time
	To          time.Time
	HourFrom    int
	HourTo      int
	DropMissing bool
	Days        int
	Model       string
	Miles       float64
	Hour        int
}

// DefaultParams 全部小时、预测3天、线性回归、5英里9点
func DefaultParams() Params {
	return Params{
		HourFrom: 0,
		HourTo:   23,
		Days:     DefaultForecastDays,
		Model:    ModelLinear,
		Miles:    5,
		Hour:     9,
	}
}

// Resolve 用表的日期范围补齐未指定的起止日期
func (p Params) Resolve(df dataframe.DataFrame) Params {
	if !p.From.IsZero() && !p.To.IsZero() {
		return p
	}
	lo, hi, ok := Bounds(df)
	if !ok {
		return p
	}
	if p.From.IsZero() {
		p.From = lo
	}
	if p.To.IsZero() {
		p.To = hi
	}
	return p
}

func (p Params) Window() Window {
	return Window{From: p.From, To: p.To, HourFrom: p.HourFrom, HourTo: p.HourTo}
}

// View 按参数得到过滤后的视图：先按需去除空值行，再按窗口过滤
func View(df dataframe.DataFrame, p Params) dataframe.DataFrame {
	if p.DropMissing {
		df = DropMissing(df)
	}
	return Filter(df, p.Resolve(df).Window())
}

// Dashboard 一组参数对应的全部结果；某一部分失败只填写对应的错误信息
type Dashboard struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	HourFrom        int             `json:"hour_from"`
	HourTo          int             `json:"hour_to"`
	Metrics         Metrics         `json:"metrics"`
	Charts          Charts          `json:"charts"`
	Missing         MissingReport   `json:"missing"`
	Forecast        []ForecastPoint `json:"forecast"`
	ForecastError   string          `json:"forecast_error,omitempty"`
	Models          []ModelScore    `json:"models"`
	ModelsError     string          `json:"models_error,omitempty"`
	Prediction      *Prediction     `json:"prediction,omitempty"`
	PredictionError string          `json:"prediction_error,omitempty"`
}

// Build 在完整派生表上按参数计算整个看板
// 空值报告基于完整表，其余部分基于过滤后的视图
func Build(df dataframe.DataFrame, p Params) Dashboard {
	base := df
	if p.DropMissing {
		base = DropMissing(df)
	}
	p = p.Resolve(base)
	view := Filter(base, p.Window())

	d := Dashboard{
		HourFrom: p.HourFrom,
		HourTo:   p.HourTo,
		Metrics:  Summarize(view),
		Charts:   BuildCharts(view),
		Missing:  MissingValues(df),
		Forecast: []ForecastPoint{},
		Models:   []ModelScore{},
	}
	if !p.From.IsZero() {
		d.From = p.From.Format(utils.DateLayout)
	}
	if !p.To.IsZero() {
		d.To = p.To.Format(utils.DateLayout)
	}

	if points, err := Forecast(view, p.Days, NewTrendForecaster()); err != nil {
		d.ForecastError = err.Error()
	} else {
		d.Forecast = points
	}

	if scores, err := CompareModels(view); err != nil {
		d.ModelsError = err.Error()
	} else {
		d.Models = scores
	}

	if pred, err := PredictDuration(view, p.Model, p.Miles, p.Hour); err != nil {
		d.PredictionError = err.Error()
	} else {
		d.Prediction = &pred
	}
	return d
}
