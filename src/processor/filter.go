// filter.go
package processor

import (
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Window 过滤窗口：闭区间日期 [From, To] 与闭区间小时 [HourFrom, HourTo]
type Window struct {
	From     time.Time
	To       time.Time
	HourFrom int
	HourTo   int
}

// Empty 区间倒置时结果为空
func (w Window) Empty() bool {
	return dateOf(w.From).After(dateOf(w.To)) || w.HourFrom > w.HourTo
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Filter 返回开始日期与开始小时都落在窗口内的行，保持原顺序，不修改输入
// 日期或小时为空的行不匹配任何窗口
func Filter(df dataframe.DataFrame, w Window) dataframe.DataFrame {
	if w.Empty() {
		return df.Subset(make([]bool, df.Nrow()))
	}
	if !utils.HasColumn(df, ColDate) || !utils.HasColumn(df, ColHour) {
		return df.Subset(make([]bool, df.Nrow()))
	}

	from := w.From.Format(utils.DateLayout)
	to := w.To.Format(utils.DateLayout)

	return df.FilterAggregation(
		dataframe.And,
		dataframe.F{
			Colname:    ColDate,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				if el.IsNA() {
					return false
				}
				d := el.String()
				return d >= from && d <= to
			},
		},
		dataframe.F{
			Colname:    ColHour,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				if el.IsNA() {
					return false
				}
				h, err := el.Int()
				return err == nil && h >= w.HourFrom && h <= w.HourTo
			},
		},
	)
}

// Bounds 返回开始日期的最小值与最大值，没有有效日期时 ok 为 false
func Bounds(df dataframe.DataFrame) (min, max time.Time, ok bool) {
	if !utils.HasColumn(df, ColDate) {
		return
	}
	dates := df.Col(ColDate)
	var lo, hi string
	for i := 0; i < dates.Len(); i++ {
		d, present := utils.StringAt(dates, i)
		if !present {
			continue
		}
		if lo == "" || d < lo {
			lo = d
		}
		if hi == "" || d > hi {
			hi = d
		}
	}
	if lo == "" {
		return
	}
	min, _ = time.Parse(utils.DateLayout, lo)
	max, _ = time.Parse(utils.DateLayout, hi)
	return min, max, true
}
