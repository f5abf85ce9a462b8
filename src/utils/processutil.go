package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// TimeLayout 统一的时间文本格式
const TimeLayout = "2006-01-02 15:04:05"

// DateLayout 日期文本格式
const DateLayout = "2006-01-02"

// DefaultTimeLayouts 行程日志中常见的时间格式，按顺序尝试
var DefaultTimeLayouts = []string{
	TimeLayout,
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"1-2-2006 15:04:05",
	"1-2-2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	DateLayout,
	"1-2-2006",
	"1/2/2006",
	"2006/01/02",
}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// HasColumn 判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// ParseTime 依次尝试 layouts，全部失败时 ok 为 false
func ParseTime(s string, layouts []string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaN" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeAt 读取已规范化的时间列元素
func TimeAt(s series.Series, i int) (time.Time, bool) {
	el := s.Elem(i)
	if el.IsNA() {
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, el.String())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FloatAt 读取数值元素，NA 时 ok 为 false
func FloatAt(s series.Series, i int) (float64, bool) {
	el := s.Elem(i)
	if el.IsNA() {
		return 0, false
	}
	return el.Float(), true
}

// IntAt 读取整数元素，NA 时 ok 为 false
func IntAt(s series.Series, i int) (int, bool) {
	el := s.Elem(i)
	if el.IsNA() {
		return 0, false
	}
	v, err := el.Int()
	if err != nil {
		return 0, false
	}
	return v, true
}

// StringAt 读取字符串元素，NA 时 ok 为 false
func StringAt(s series.Series, i int) (string, bool) {
	el := s.Elem(i)
	if el.IsNA() {
		return "", false
	}
	return el.String(), true
}

// BoolAt 读取布尔元素，NA 视为 false
func BoolAt(s series.Series, i int) bool {
	el := s.Elem(i)
	if el.IsNA() {
		return false
	}
	b, err := el.Bool()
	return err == nil && b
}

// SubSeriesTime 计算两列时间差(分钟)并追加为新列
// 任一时间为空时结果为空值
func SubSeriesTime(df dataframe.DataFrame, startCol, endCol, newCol string) dataframe.DataFrame {
	durations := make([]interface{}, df.Nrow())
	if !HasColumn(df, startCol) || !HasColumn(df, endCol) {
		return df.Mutate(series.New(durations, series.Float, newCol))
	}

	col1 := df.Col(startCol)
	col2 := df.Col(endCol)
	for i := 0; i < df.Nrow(); i++ {
		startTime, ok1 := TimeAt(col1, i)
		endTime, ok2 := TimeAt(col2, i)
		if !ok1 || !ok2 {
			continue
		}
		durations[i] = endTime.Sub(startTime).Seconds() / 60
	}

	return df.Mutate(series.New(durations, series.Float, newCol))
}

// WriteSheet 将DataFrame写入工作簿的指定工作表
func WriteSheet(f *excelize.File, sheetName string, df dataframe.DataFrame) error {
	if idx, _ := f.GetSheetIndex(sheetName); idx == -1 {
		if _, err := f.NewSheet(sheetName); err != nil {
			return fmt.Errorf("创建工作表%s失败: %w", sheetName, err)
		}
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, col.Val(rowIdx)); err != nil {
				return err
			}
		}
	}
	return nil
}

// nullTokens 视为空值的单元格文本
var nullTokens = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "<nil>"}

// RecordsToDataFrame 将表头与数据行转换为全字符串列的DataFrame
// 行长度不足时补空值，多余单元格丢弃
func RecordsToDataFrame(headers []string, rows [][]string) dataframe.DataFrame {
	if len(headers) == 0 {
		return dataframe.New()
	}

	// 准备数据列
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(rows))
	}

	for _, row := range rows {
		for i := range headers {
			value := "NaN"
			if i < len(row) {
				value = strings.TrimSpace(row[i])
				if Contains(nullTokens, value) {
					value = "NaN"
				}
			}
			columns[i] = append(columns[i], value)
		}
	}

	// 创建Series切片
	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, strings.TrimSpace(colName))
	}

	return dataframe.New(seriesList...)
}
