// reader.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	_ "modernc.org/sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source 从SQLite表中读取行程日志，只读打开
type Source struct {
	Path  string
	Table string
}

func (s *Source) Name() string { return s.Path + "#" + s.Table }

func (s *Source) Read(ctx context.Context) (dataframe.DataFrame, error) {
	if !tableNamePattern.MatchString(s.Table) {
		return dataframe.DataFrame{}, fmt.Errorf("非法表名: %q", s.Table)
	}

	db, err := Open(s.Path, true)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer db.Close()

	return ReadTable(ctx, db, s.Table)
}

// Open 打开数据库并检查连接
func Open(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// ReadTable 读取整张表，所有值转换为文本，NULL 记为空值
func ReadTable(ctx context.Context, db *sql.DB, table string) (dataframe.DataFrame, error) {
	if !tableNamePattern.MatchString(table) {
		return dataframe.DataFrame{}, fmt.Errorf("非法表名: %q", table)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("查询表%s失败: %w", table, err)
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	var records [][]string
	values := make([]interface{}, len(headers))
	ptrs := make([]interface{}, len(headers))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("读取行失败: %w", err)
		}
		record := make([]string, len(headers))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	df := utils.RecordsToDataFrame(headers, records)
	if df.Err != nil {
		return df, fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NaN"
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(utils.TimeLayout)
	default:
		return fmt.Sprint(val)
	}
}
