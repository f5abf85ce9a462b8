// features.go
package processor

import (
	"strings"

	"TripDashboard/src/config"
	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// flagRule 关键词标记列：field 列文本包含任一关键词即为 true
type flagRule struct {
	column  string
	keyword string // dataconfig keywords 中的键
	field   string
}

var flagRules = []flagRule{
	{ColIsBusiness, "business", ColPurpose},
	{ColIsErrand, "errand", ColPurpose},
	{ColIsAirport, "airport", ColCategory},
	{ColIsMeal, "meal", ColPurpose},
}

// FeatureDeriver 在完整表上追加派生列
// 路线重复标记依赖整张表，必须在任何过滤之前执行
type FeatureDeriver struct {
	Dcfg *config.DataConfig
}

func NewFeatureDeriver(dcfg *config.DataConfig) *FeatureDeriver {
	return &FeatureDeriver{Dcfg: dcfg}
}

// DataProcessFunc 追加派生列，保持行顺序；缺少原始列时派生值为空或 false
func (d *FeatureDeriver) DataProcessFunc(df *dataframe.DataFrame) error {
	out := utils.SubSeriesTime(*df, ColStartDate, ColEndDate, ColDuration)
	out = addCalendar(out)
	out = addRouteFlags(out)
	for _, rule := range flagRules {
		out = out.Mutate(keywordFlag(out, rule.field, rule.column, d.Dcfg.GetKeywords(rule.keyword)))
	}
	if out.Err != nil {
		return out.Err
	}
	*df = out
	return nil
}

// addCalendar 从开始时间提取日期、小时、星期
func addCalendar(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()
	dates := make([]string, n)
	hours := make([]interface{}, n)
	weekdays := make([]string, n)

	hasStart := utils.HasColumn(df, ColStartDate)
	var start series.Series
	if hasStart {
		start = df.Col(ColStartDate)
	}
	for i := 0; i < n; i++ {
		dates[i], weekdays[i] = "NaN", "NaN"
		if !hasStart {
			continue
		}
		t, ok := utils.TimeAt(start, i)
		if !ok {
			continue
		}
		dates[i] = t.Format(utils.DateLayout)
		hours[i] = t.Hour()
		weekdays[i] = t.Weekday().String()
	}

	return df.
		Mutate(series.New(dates, series.String, ColDate)).
		Mutate(series.New(hours, series.Int, ColHour)).
		Mutate(series.New(weekdays, series.String, ColWeekday))
}

// routeKey 起终点组合键，空值之间视为相等
func routeKey(start, stop series.Series, i int) string {
	a, okA := utils.StringAt(start, i)
	b, okB := utils.StringAt(stop, i)
	if !okA {
		a = "\x00"
	}
	if !okB {
		b = "\x00"
	}
	return a + "\x1f" + b
}

// addRouteFlags Same Route: 组合在整张表中出现不止一次
// Repeated_Route: 组合在之前的行中已出现过
func addRouteFlags(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()
	same := make([]bool, n)
	repeated := make([]bool, n)

	if utils.HasColumn(df, ColStart) && utils.HasColumn(df, ColStop) {
		start, stop := df.Col(ColStart), df.Col(ColStop)
		keys := make([]string, n)
		counts := make(map[string]int, n)
		for i := 0; i < n; i++ {
			keys[i] = routeKey(start, stop, i)
			repeated[i] = counts[keys[i]] > 0
			counts[keys[i]]++
		}
		for i := 0; i < n; i++ {
			same[i] = counts[keys[i]] > 1
		}
	}

	return df.
		Mutate(series.New(same, series.Bool, ColSameRoute)).
		Mutate(series.New(repeated, series.Bool, ColRepeatedRoute))
}

// keywordFlag 忽略大小写的子串匹配，空值为 false
func keywordFlag(df dataframe.DataFrame, field, column string, keywords []string) series.Series {
	n := df.Nrow()
	flags := make([]bool, n)
	if !utils.HasColumn(df, field) || len(keywords) == 0 {
		return series.New(flags, series.Bool, column)
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	src := df.Col(field)
	for i := 0; i < n; i++ {
		text, ok := utils.StringAt(src, i)
		if !ok {
			continue
		}
		text = strings.ToLower(text)
		for _, kw := range lowered {
			if kw != "" && strings.Contains(text, kw) {
				flags[i] = true
				break
			}
		}
	}
	return series.New(flags, series.Bool, column)
}
