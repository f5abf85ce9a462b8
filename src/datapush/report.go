package datapush

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"TripDashboard/src/config"
	"TripDashboard/src/datasource/email"
	"TripDashboard/src/processor"
	"TripDashboard/src/storage"
	"TripDashboard/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/robfig/cron"
	"github.com/xuri/excelize/v2"
)

// 报表工作表
const (
	SheetMetrics  = "Metrics"
	SheetHourly   = "Hourly"
	SheetWeekday  = "Weekday"
	SheetRoutes   = "Routes"
	SheetForecast = "Forecast"
	SheetModels   = "Models"
	SheetTrips    = "Trips"
)

const (
	RETRY_TIMES    = 3
	RETRY_INTERVAL = 2 * time.Second
)

// cellValue NaN 写成空单元格
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// writeTable 从 A1 开始写表头和数据行
func writeTable(f *excelize.File, sheet string, header []string, rows [][]interface{}) error {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("创建工作表%s失败: %w", sheet, err)
		}
	}
	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// NewWorkbook 将看板结果写成工作簿，trips 为过滤后的明细
func NewWorkbook(d processor.Dashboard, trips dataframe.DataFrame) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetMetrics); err != nil {
		f.Close()
		return nil, err
	}

	var avg interface{}
	if !d.Metrics.AvgDuration.IsNaN() {
		avg = float64(d.Metrics.AvgDuration)
	}
	metrics := [][]interface{}{
		{"From", d.From},
		{"To", d.To},
		{"Hour From", d.HourFrom},
		{"Hour To", d.HourTo},
		{"Total Trips", d.Metrics.TotalTrips},
		{"Total Miles", cellValue(d.Metrics.TotalMiles)},
		{"Avg Duration (min)", avg},
	}

	var hourly [][]interface{}
	for _, kc := range d.Charts.ByHour {
		hourly = append(hourly, []interface{}{kc.Key, kc.Trips})
	}

	var weekday [][]interface{}
	for _, lc := range d.Charts.ByWeekday {
		weekday = append(weekday, []interface{}{lc.Label, lc.Trips})
	}

	var routes [][]interface{}
	for _, rc := range d.Charts.FrequentRoutes {
		routes = append(routes, []interface{}{rc.Start, rc.Stop, rc.Trips})
	}

	var forecast [][]interface{}
	for _, p := range d.Forecast {
		forecast = append(forecast, []interface{}{p.Date, p.PredictedTrips})
	}
	if d.ForecastError != "" {
		forecast = append(forecast, []interface{}{"error", d.ForecastError})
	}

	var models [][]interface{}
	for _, s := range d.Models {
		models = append(models, []interface{}{s.Model, cellValue(float64(s.RMSE)), cellValue(float64(s.R2))})
	}
	if d.ModelsError != "" {
		models = append(models, []interface{}{"error", d.ModelsError})
	}

	tables := []struct {
		sheet  string
		header []string
		rows   [][]interface{}
	}{
		{SheetMetrics, []string{"Metric", "Value"}, metrics},
		{SheetHourly, []string{"Hour", "Trips"}, hourly},
		{SheetWeekday, []string{"Weekday", "Trips"}, weekday},
		{SheetRoutes, []string{"START", "STOP", "Trips"}, routes},
		{SheetForecast, []string{"Date", "Predicted Trips"}, forecast},
		{SheetModels, []string{"Model", "RMSE", "R2"}, models},
	}
	for _, t := range tables {
		if err := writeTable(f, t.sheet, t.header, t.rows); err != nil {
			f.Close()
			return nil, err
		}
	}

	if trips.Err == nil && trips.Ncol() > 0 {
		if err := utils.WriteSheet(f, SheetTrips, trips); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// TableFunc 返回当前的完整派生表
type TableFunc func() (dataframe.DataFrame, error)

// Sender 发送报表邮件
type Sender func(cfg config.SendEmailConfig, msg email.Message) error

// Reporter 定时导出报表，配置了收件人时通过邮件发送
type Reporter struct {
	Dir           string
	Mail          config.SendEmailConfig
	Retries       int
	RetryInterval time.Duration

	table  TableFunc
	send   Sender
	logger *storage.Logger
	now    func() time.Time
}

func NewReporter(cfg config.ReportConfig, mail config.SendEmailConfig, table TableFunc, logger *storage.Logger) *Reporter {
	return &Reporter{
		Dir:           cfg.Dir,
		Mail:          mail,
		Retries:       RETRY_TIMES,
		RetryInterval: RETRY_INTERVAL,
		table:         table,
		send:          email.SendEmail,
		logger:        logger.Named("report"),
		now:           time.Now,
	}
}

// Export 以默认参数(完整日期范围、全部小时)生成报表文件，返回文件路径
func (r *Reporter) Export() (string, error) {
	df, err := r.table()
	if err != nil {
		return "", fmt.Errorf("获取数据失败: %w", err)
	}
	params := processor.DefaultParams()
	d := processor.Build(df, params)

	f, err := NewWorkbook(d, processor.View(df, params))
	if err != nil {
		return "", fmt.Errorf("生成报表失败: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return "", fmt.Errorf("创建报表目录失败: %w", err)
	}
	path := filepath.Join(r.Dir, fmt.Sprintf("trip_report_%s.xlsx", r.now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("保存报表失败: %w", err)
	}
	return path, nil
}

// Run 导出并按需发送
func (r *Reporter) Run() error {
	t1 := time.Now()
	path, err := r.Export()
	if err != nil {
		return err
	}
	r.logger.Info("报表已导出", storage.String("path", path), storage.Duration("elapsed", time.Since(t1)))

	if len(r.Mail.To) == 0 {
		return nil
	}
	msg := email.Message{
		Text:        fmt.Sprintf("行程报表 %s", r.now().Format(utils.DateLayout)),
		Attachments: []string{path},
	}
	err = retry(func() error {
		return r.send(r.Mail, msg)
	}, r.Retries, r.RetryInterval)
	if err != nil {
		return err
	}
	r.logger.Info("报表邮件已发送", storage.Strings("to", r.Mail.To))
	return nil
}

// Schedule 按 cron 表达式注册导出任务
func (r *Reporter) Schedule(c *cron.Cron, spec string) error {
	return c.AddFunc(spec, func() {
		if err := r.Run(); err != nil {
			r.logger.Error("定时报表失败", storage.Error(err))
		}
	})
}

// 重试函数
func retry(fn func() error, times int, interval time.Duration) error {
	if times < 1 {
		times = 1
	}
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			time.Sleep(interval)
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
