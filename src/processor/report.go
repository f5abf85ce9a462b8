// report.go
package processor

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Float 序列化时 NaN/Inf 输出为 null
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// IsNaN 是否未定义
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

// Metrics 汇总指标
type Metrics struct {
	TotalTrips  int     `json:"total_trips"`
	TotalMiles  float64 `json:"total_miles"`
	AvgDuration Float   `json:"avg_duration"` // 没有有效时长时为 NaN
}

// KeyCount 按整数键分组的计数(小时、日)
type KeyCount struct {
	Key   int `json:"key"`
	Trips int `json:"trips"`
}

// LabelCount 按文本标签分组的计数
type LabelCount struct {
	Label string `json:"label"`
	Trips int    `json:"trips"`
}

// LabelValue 按文本标签分组的数值
type LabelValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// RouteCount 起终点组合计数
type RouteCount struct {
	Start string `json:"start"`
	Stop  string `json:"stop"`
	Trips int    `json:"trips"`
}

// HistogramBin 左闭右开，最后一个区间右闭
type HistogramBin struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Trips int     `json:"trips"`
}

// Charts 过滤后视图的全部分组表
type Charts struct {
	DurationHistogram []HistogramBin `json:"duration_histogram"`
	ByHour            []KeyCount     `json:"by_hour"`
	ByDay             []KeyCount     `json:"by_day"`
	ByWeekday         []LabelCount   `json:"by_weekday"`
	RouteSplit        []LabelCount   `json:"route_split"`
	Purposes          []LabelCount   `json:"purposes"`
	Flags             []LabelCount   `json:"flags"`
	MilesByCategory   []LabelValue   `json:"miles_by_category"`
	FrequentRoutes    []RouteCount   `json:"frequent_routes"`
}

// HistogramBins 时长分布的分箱数量
const HistogramBins = 50

// UnknownLabel 空标签的归类名
const UnknownLabel = "Unknown"

// nonNull 返回列中非空的数值
func nonNull(df dataframe.DataFrame, col string) []float64 {
	if !utils.HasColumn(df, col) {
		return nil
	}
	s := df.Col(col)
	out := make([]float64, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		if v, ok := utils.FloatAt(s, i); ok {
			out = append(out, v)
		}
	}
	return out
}

// Summarize 行数、总里程(忽略空值)、平均时长(忽略空值，全空为 NaN)
func Summarize(df dataframe.DataFrame) Metrics {
	m := Metrics{TotalTrips: df.Nrow(), AvgDuration: Float(math.NaN())}
	if miles := nonNull(df, ColMiles); len(miles) > 0 {
		m.TotalMiles = floats.Sum(miles)
	}
	if durations := nonNull(df, ColDuration); len(durations) > 0 {
		m.AvgDuration = Float(stat.Mean(durations, nil))
	}
	return m
}

// BuildCharts 计算所有分组表
func BuildCharts(df dataframe.DataFrame) Charts {
	return Charts{
		DurationHistogram: DurationHistogram(df, HistogramBins),
		ByHour:            TripsByHour(df),
		ByDay:             TripsByDay(df),
		ByWeekday:         TripsByWeekday(df),
		RouteSplit:        RouteSplit(df),
		Purposes:          TripsByPurpose(df),
		Flags:             FlagCounts(df),
		MilesByCategory:   MilesByCategory(df),
		FrequentRoutes:    FrequentRoutes(df),
	}
}

func sortedKeyCounts(counts map[int]int) []KeyCount {
	out := make([]KeyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, KeyCount{Key: k, Trips: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TripsByHour 按开始小时计数，空小时不计
func TripsByHour(df dataframe.DataFrame) []KeyCount {
	counts := map[int]int{}
	if utils.HasColumn(df, ColHour) {
		hours := df.Col(ColHour)
		for i := 0; i < hours.Len(); i++ {
			if h, ok := utils.IntAt(hours, i); ok {
				counts[h]++
			}
		}
	}
	return sortedKeyCounts(counts)
}

// TripsByDay 按开始日期的日(1-31)计数
func TripsByDay(df dataframe.DataFrame) []KeyCount {
	counts := map[int]int{}
	if utils.HasColumn(df, ColStartDate) {
		start := df.Col(ColStartDate)
		for i := 0; i < start.Len(); i++ {
			if t, ok := utils.TimeAt(start, i); ok {
				counts[t.Day()]++
			}
		}
	}
	return sortedKeyCounts(counts)
}

// weekdayOrder 周一开始
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// TripsByWeekday 按星期计数，按周一到周日排列，只包含出现过的星期
func TripsByWeekday(df dataframe.DataFrame) []LabelCount {
	counts := labelCounts(df, ColWeekday, "")
	out := make([]LabelCount, 0, len(counts))
	for _, wd := range weekdayOrder {
		if c, ok := counts[wd.String()]; ok {
			out = append(out, LabelCount{Label: wd.String(), Trips: c})
		}
	}
	return out
}

// labelCounts 文本列计数，unknown 为空时跳过空值
func labelCounts(df dataframe.DataFrame, col, unknown string) map[string]int {
	counts := map[string]int{}
	if !utils.HasColumn(df, col) {
		if unknown != "" && df.Nrow() > 0 {
			counts[unknown] = df.Nrow()
		}
		return counts
	}
	s := df.Col(col)
	for i := 0; i < s.Len(); i++ {
		label, ok := utils.StringAt(s, i)
		if !ok {
			if unknown == "" {
				continue
			}
			label = unknown
		}
		counts[label]++
	}
	return counts
}

// sortedLabelCounts 计数降序，相同计数按标签升序
func sortedLabelCounts(counts map[string]int) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, c := range counts {
		out = append(out, LabelCount{Label: label, Trips: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trips != out[j].Trips {
			return out[i].Trips > out[j].Trips
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// TripsByPurpose 按用途计数，空用途归为 Unknown
func TripsByPurpose(df dataframe.DataFrame) []LabelCount {
	return sortedLabelCounts(labelCounts(df, ColPurpose, UnknownLabel))
}

// countTrue 布尔列中 true 的数量
func countTrue(df dataframe.DataFrame, col string) int {
	if !utils.HasColumn(df, col) {
		return 0
	}
	s := df.Col(col)
	n := 0
	for i := 0; i < s.Len(); i++ {
		if utils.BoolAt(s, i) {
			n++
		}
	}
	return n
}

// RouteSplit 重复路线与非重复路线的行数
func RouteSplit(df dataframe.DataFrame) []LabelCount {
	same := countTrue(df, ColSameRoute)
	return []LabelCount{
		{Label: "Same Route", Trips: same},
		{Label: "Different Route", Trips: df.Nrow() - same},
	}
}

// FlagCounts 各用途标记为 true 的行数
func FlagCounts(df dataframe.DataFrame) []LabelCount {
	return []LabelCount{
		{Label: "Business", Trips: countTrue(df, ColIsBusiness)},
		{Label: "Task", Trips: countTrue(df, ColIsErrand)},
		{Label: "Airport", Trips: countTrue(df, ColIsAirport)},
		{Label: "Meal", Trips: countTrue(df, ColIsMeal)},
	}
}

// MilesByCategory 按类别汇总里程，空类别归为 Unknown，空里程不计
func MilesByCategory(df dataframe.DataFrame) []LabelValue {
	sums := map[string]float64{}
	if utils.HasColumn(df, ColMiles) {
		miles := df.Col(ColMiles)
		hasCategory := utils.HasColumn(df, ColCategory)
		var category series.Series
		if hasCategory {
			category = df.Col(ColCategory)
		}
		for i := 0; i < miles.Len(); i++ {
			v, ok := utils.FloatAt(miles, i)
			if !ok {
				continue
			}
			label := UnknownLabel
			if hasCategory {
				if c, ok := utils.StringAt(category, i); ok {
					label = c
				}
			}
			sums[label] += v
		}
	}

	out := make([]LabelValue, 0, len(sums))
	for label, v := range sums {
		out = append(out, LabelValue{Label: label, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// FrequentRoutes 出现不止一次的起终点组合，起点或终点为空的行不参与分组
func FrequentRoutes(df dataframe.DataFrame) []RouteCount {
	if !utils.HasColumn(df, ColStart) || !utils.HasColumn(df, ColStop) {
		return []RouteCount{}
	}
	start, stop := df.Col(ColStart), df.Col(ColStop)

	type pair struct{ start, stop string }
	counts := map[pair]int{}
	for i := 0; i < df.Nrow(); i++ {
		a, okA := utils.StringAt(start, i)
		b, okB := utils.StringAt(stop, i)
		if !okA || !okB {
			continue
		}
		counts[pair{a, b}]++
	}

	out := make([]RouteCount, 0)
	for p, c := range counts {
		if c > 1 {
			out = append(out, RouteCount{Start: p.start, Stop: p.stop, Trips: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trips != out[j].Trips {
			return out[i].Trips > out[j].Trips
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Stop < out[j].Stop
	})
	return out
}

// DurationHistogram 非空时长等宽分箱；最小值等于最大值时区间取 [v-0.5, v+0.5]
func DurationHistogram(df dataframe.DataFrame, bins int) []HistogramBin {
	values := nonNull(df, ColDuration)
	if len(values) == 0 || bins < 1 {
		return []HistogramBin{}
	}

	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)

	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].From = lo + float64(i)*width
		out[i].To = lo + float64(i+1)*width
	}
	out[bins-1].To = hi

	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Trips++
	}
	return out
}
