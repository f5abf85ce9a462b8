// missing.go
package processor

import (
	"github.com/go-gota/gota/dataframe"
)

// ColumnMissing 单列空值数量
type ColumnMissing struct {
	Column  string `json:"column"`
	Missing int    `json:"missing"`
}

// MissingReport 空值报告
type MissingReport struct {
	Columns []ColumnMissing     `json:"columns"` // 只包含有空值的列，按表中列顺序
	Total   int                 `json:"total"`
	Rows    dataframe.DataFrame `json:"-"` // 含任一空值的行
}

// rowHasNA 每行是否含空值
func rowHasNA(df dataframe.DataFrame) ([]bool, []ColumnMissing, int) {
	mask := make([]bool, df.Nrow())
	var columns []ColumnMissing
	total := 0
	for _, name := range df.Names() {
		s := df.Col(name)
		missing := 0
		for i, na := range s.IsNaN() {
			if na {
				mask[i] = true
				missing++
			}
		}
		if missing > 0 {
			columns = append(columns, ColumnMissing{Column: name, Missing: missing})
			total += missing
		}
	}
	return mask, columns, total
}

// MissingValues 统计各列空值与含空值的行
func MissingValues(df dataframe.DataFrame) MissingReport {
	mask, columns, total := rowHasNA(df)
	if columns == nil {
		columns = []ColumnMissing{}
	}
	return MissingReport{
		Columns: columns,
		Total:   total,
		Rows:    df.Subset(mask),
	}
}

// DropMissing 删除含任一空值的行，派生列保持在完整表上的计算结果
func DropMissing(df dataframe.DataFrame) dataframe.DataFrame {
	mask, _, _ := rowHasNA(df)
	for i := range mask {
		mask[i] = !mask[i]
	}
	return df.Subset(mask)
}
