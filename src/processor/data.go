// data.go
package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"TripDashboard/src/config"
	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 规范列名，加载后所有数据源统一使用
const (
	ColStartDate = "START_DATE"
	ColEndDate   = "END_DATE"
	ColCategory  = "CATEGORY"
	ColStart     = "START"
	ColStop      = "STOP"
	ColMiles     = "MILES"
	ColPurpose   = "PURPOSE"
)

// 派生列
const (
	ColDuration      = "Duration(min)"
	ColDate          = "Date"
	ColHour          = "Hour"
	ColWeekday       = "Weekday"
	ColSameRoute     = "Same Route"
	ColRepeatedRoute = "Repeated_Route"
	ColIsBusiness    = "Is_Business"
	ColIsErrand      = "Is_Errand"
	ColIsAirport     = "Is_Airport_Trip"
	ColIsMeal        = "Is_Meal_Trip"
)

var (
	// ErrInsufficientData 过滤或去空后没有可用于建模的数据
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnknownModel 未知的回归模型名称
	ErrUnknownModel = errors.New("unknown model")
	// ErrForecastInput 时间序列不满足预测要求
	ErrForecastInput = errors.New("invalid forecast input")
	// ErrInvalidParams 参数超出允许范围
	ErrInvalidParams = errors.New("invalid parameters")
)

// 逻辑列名(dataconfig中的键) -> 规范列名
var logicalColumns = []struct {
	key string
	col string
}{
	{"start_date", ColStartDate},
	{"end_date", ColEndDate},
	{"category", ColCategory},
	{"start", ColStart},
	{"stop", ColStop},
	{"miles", ColMiles},
	{"purpose", ColPurpose},
}

// Source 行程日志数据源
type Source interface {
	Name() string
	Read(ctx context.Context) (dataframe.DataFrame, error)
}

// DataProcess 作用于整张表的处理步骤
type DataProcess interface {
	DataProcessFunc(*dataframe.DataFrame) error
}

// Loader 读取数据源并完成清洗：列名规范化、时间解析、里程转数值
type Loader struct {
	Dcfg  *config.DataConfig
	steps []DataProcess
}

func NewLoader(dcfg *config.DataConfig) *Loader {
	return &Loader{
		Dcfg: dcfg,
		steps: []DataProcess{
			&ColumnMapper{Dcfg: dcfg},
			&TimeNormalizer{Dcfg: dcfg},
			&MilesNormalizer{},
		},
	}
}

// Load 读取并清洗，不回写数据源；无法解析的字段置空而不报错
func (l *Loader) Load(ctx context.Context, src Source) (dataframe.DataFrame, error) {
	df, err := src.Read(ctx)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("读取数据源%s失败: %w", src.Name(), err)
	}
	if err := l.Clean(&df); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("清洗数据源%s失败: %w", src.Name(), err)
	}
	return df, nil
}

// Clean 依次执行清洗步骤
func (l *Loader) Clean(df *dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}
	for _, step := range l.steps {
		if err := step.DataProcessFunc(df); err != nil {
			return err
		}
		if df.Err != nil {
			return df.Err
		}
	}
	return nil
}

// BuildTable 加载并派生，得到完整的派生表
func BuildTable(ctx context.Context, src Source, dcfg *config.DataConfig) (dataframe.DataFrame, error) {
	df, err := NewLoader(dcfg).Load(ctx, src)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if err := NewFeatureDeriver(dcfg).DataProcessFunc(&df); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("派生列计算失败: %w", err)
	}
	return df, nil
}

// ColumnMapper 按配置把表头重命名为规范列名
type ColumnMapper struct {
	Dcfg *config.DataConfig
}

func (m *ColumnMapper) DataProcessFunc(df *dataframe.DataFrame) error {
	names := df.Names()
	out := *df
	for _, lc := range logicalColumns {
		header := m.Dcfg.GetColumn(lc.key)
		if header == "" {
			header = lc.col
		}
		found := matchHeader(names, header)
		if found == "" || found == lc.col {
			continue
		}
		// 已存在同名规范列时保留原列
		if utils.Contains(names, lc.col) {
			continue
		}
		out = out.Rename(lc.col, found)
		if out.Err != nil {
			return fmt.Errorf("重命名列%s失败: %w", found, out.Err)
		}
		names = out.Names()
	}
	*df = out
	return nil
}

// matchHeader 精确匹配优先，其次忽略大小写、空白和星号
func matchHeader(names []string, header string) string {
	if utils.Contains(names, header) {
		return header
	}
	want := normalizeHeader(header)
	for _, name := range names {
		if normalizeHeader(name) == want {
			return name
		}
	}
	return ""
}

func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*")
	return strings.ToUpper(strings.TrimSpace(s))
}

// TimeNormalizer 把起止时间解析后统一为 utils.TimeLayout 文本，无法解析的置空
type TimeNormalizer struct {
	Dcfg *config.DataConfig
}

func (n *TimeNormalizer) DataProcessFunc(df *dataframe.DataFrame) error {
	layouts := n.Dcfg.TimeLayouts
	for _, col := range []string{ColStartDate, ColEndDate} {
		if !utils.HasColumn(*df, col) {
			continue
		}
		src := df.Col(col)
		values := make([]string, src.Len())
		for i := 0; i < src.Len(); i++ {
			values[i] = "NaN"
			raw, ok := utils.StringAt(src, i)
			if !ok {
				continue
			}
			if t, ok := parseTimestamp(raw, layouts); ok {
				values[i] = t.Format(utils.TimeLayout)
			}
		}
		*df = df.Mutate(series.New(values, series.String, col))
	}
	return nil
}

// excelSerial 纯数字视为Excel日期序列号
var excelSerial = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

func parseTimestamp(raw string, layouts []string) (time.Time, bool) {
	if t, ok := utils.ParseTime(raw, layouts); ok {
		return t, true
	}
	raw = strings.TrimSpace(raw)
	if !excelSerial.MatchString(raw) {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, false
	}
	return excelToTime(serial)
}

// excelToTime Excel日期序列号转时间，1900年2月29日之前的序列号补一天
func excelToTime(serial float64) (time.Time, bool) {
	if serial < 1 || serial >= 2958466 {
		return time.Time{}, false
	}
	if serial < 61 {
		serial++
	}
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	days := math.Floor(serial)
	seconds := math.Round((serial - days) * 86400)
	return base.AddDate(0, 0, int(days)).Add(time.Duration(seconds) * time.Second), true
}

// MilesNormalizer 里程转为浮点列，无法解析的置空
type MilesNormalizer struct{}

func (MilesNormalizer) DataProcessFunc(df *dataframe.DataFrame) error {
	if !utils.HasColumn(*df, ColMiles) {
		return nil
	}
	src := df.Col(ColMiles)
	if src.Type() == series.Float {
		return nil
	}
	values := make([]interface{}, src.Len())
	for i := 0; i < src.Len(); i++ {
		raw, ok := utils.StringAt(src, i)
		if !ok {
			continue
		}
		raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
		if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			values[i] = f
		}
	}
	*df = df.Mutate(series.New(values, series.Float, ColMiles))
	return nil
}
