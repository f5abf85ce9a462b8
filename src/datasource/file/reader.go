// reader.go
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Options CSV读取选项
type Options struct {
	Encoding  string // utf-8(默认) / gbk / gb18030
	Delimiter rune   // 默认逗号
}

// CSVSource 本地CSV行程日志
type CSVSource struct {
	Path string
	Options
}

func (s *CSVSource) Name() string { return s.Path }

// Read 每次调用都重新读取文件，不回写
func (s *CSVSource) Read(ctx context.Context) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, s.Options)
}

// XLSXSource 本地Excel行程日志
type XLSXSource struct {
	Path      string
	SheetName string // 为空时取第一个工作表
}

func (s *XLSXSource) Name() string { return s.Path }

func (s *XLSXSource) Read(ctx context.Context) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}
	return ReadXLSX(s.Path, s.SheetName)
}

// ReadCSV 读取CSV为全字符串列的DataFrame
// 允许行长度不一致，缺失单元格记为空值
func ReadCSV(r io.Reader, opts Options) (dataframe.DataFrame, error) {
	decoded, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	records, err := reader.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析CSV失败: %w", err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("CSV文件为空")
	}

	headers := records[0]
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	df := utils.RecordsToDataFrame(headers, records[1:])
	if df.Err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

// DecodeReader 按编码转换为UTF-8，邮件头与附件解码共用
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return bufio.NewReader(r), nil
	case "gbk", "gb2312":
		return transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()), nil
	case "gb18030":
		return transform.NewReader(r, simplifiedchinese.GB18030.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// ReadXLSX 读取Excel文件的指定工作表
func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open file false: %w", err)
	}
	return sheetToDataFrame(xlFile, sheetName)
}

// ReadXLSXBytes 从内存读取Excel，用于邮件附件
func ReadXLSXBytes(data []byte, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("xlsx open binary false: %w", err)
	}
	return sheetToDataFrame(xlFile, sheetName)
}

// ReadCSVBytes 从内存读取CSV
func ReadCSVBytes(data []byte, opts Options) (dataframe.DataFrame, error) {
	return ReadCSV(bytes.NewReader(data), opts)
}

func sheetToDataFrame(xlFile *xlsx.File, sheetName string) (dataframe.DataFrame, error) {
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("excel文件中没有工作表")
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.DataFrame{}, fmt.Errorf("工作表%s不存在", sheetName)
		}
		sheet = s
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
// 第一行非空行作为标题行
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	headerIdx := -1
	for i, row := range sheet.Rows {
		if row != nil && !isEmptyRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return dataframe.DataFrame{}, fmt.Errorf("工作表%s没有数据", sheet.Name)
	}

	var headers []string
	for _, cell := range sheet.Rows[headerIdx].Cells {
		headers = append(headers, cell.String())
	}

	rows := make([][]string, 0, len(sheet.Rows)-headerIdx-1)
	for _, row := range sheet.Rows[headerIdx+1:] {
		if row == nil || isEmptyRow(row) {
			continue
		}
		values := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			values = append(values, cell.String())
		}
		rows = append(rows, values)
	}

	df := utils.RecordsToDataFrame(headers, rows)
	if df.Err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

func isEmptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}
