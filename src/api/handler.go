package api

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"TripDashboard/src/datapush"
	"TripDashboard/src/processor"
	"TripDashboard/src/storage"
	"TripDashboard/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-gota/gota/dataframe"
)

// Tables 派生表缓存，*storage.TableCache 实现了该接口
type Tables interface {
	Get(source string) (dataframe.DataFrame, error)
	Refresh(source string) (dataframe.DataFrame, error)
	LoadedAt(source string) time.Time
}

// Handler 看板接口，每个请求都在缓存的派生表上重新过滤和计算
type Handler struct {
	tables Tables
	source string
	logger *storage.Logger
}

func NewHandler(tables Tables, source string, logger *storage.Logger) *Handler {
	return &Handler{
		tables: tables,
		source: source,
		logger: logger.Named("api"),
	}
}

// DashboardQuery 查询参数，未给出的使用默认值
type DashboardQuery struct {
	From     string   `form:"from"`
	To       string   `form:"to"`
	HourFrom *int     `form:"hour_from"`
	HourTo   *int     `form:"hour_to"`
	Missing  string   `form:"missing"`
	Days     *int     `form:"days"`
	Model    string   `form:"model"`
	Miles    *float64 `form:"miles"`
	Hour     *int     `form:"hour"`
}

// Params 校验并转换为计算参数
func (q DashboardQuery) Params() (processor.Params, error) {
	p := processor.DefaultParams()

	var err error
	if q.From != "" {
		if p.From, err = time.Parse(utils.DateLayout, q.From); err != nil {
			return p, fmt.Errorf("%w: from must be YYYY-MM-DD", processor.ErrInvalidParams)
		}
	}
	if q.To != "" {
		if p.To, err = time.Parse(utils.DateLayout, q.To); err != nil {
			return p, fmt.Errorf("%w: to must be YYYY-MM-DD", processor.ErrInvalidParams)
		}
	}

	for _, h := range []struct {
		name string
		v    *int
		dst  *int
	}{
		{"hour_from", q.HourFrom, &p.HourFrom},
		{"hour_to", q.HourTo, &p.HourTo},
		{"hour", q.Hour, &p.Hour},
	} {
		if h.v == nil {
			continue
		}
		if *h.v < 0 || *h.v > 23 {
			return p, fmt.Errorf("%w: %s must be in [0, 23], got %d", processor.ErrInvalidParams, h.name, *h.v)
		}
		*h.dst = *h.v
	}

	switch q.Missing {
	case "", "keep":
	case "drop":
		p.DropMissing = true
	default:
		return p, fmt.Errorf("%w: missing must be keep or drop, got %q", processor.ErrInvalidParams, q.Missing)
	}

	if q.Days != nil {
		p.Days = *q.Days
	}
	if q.Model != "" {
		p.Model = q.Model
	}
	if q.Miles != nil {
		if math.IsNaN(*q.Miles) || math.IsInf(*q.Miles, 0) {
			return p, fmt.Errorf("%w: miles must be finite", processor.ErrInvalidParams)
		}
		p.Miles = *q.Miles
	}
	return p, nil
}

// load 读取派生表并解析参数，失败时已写入响应
func (h *Handler) load(c *gin.Context) (dataframe.DataFrame, processor.Params, bool) {
	var q DashboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		BadRequest(c, err.Error())
		return dataframe.DataFrame{}, processor.Params{}, false
	}
	p, err := q.Params()
	if err != nil {
		Fail(c, err)
		return dataframe.DataFrame{}, processor.Params{}, false
	}
	df, err := h.tables.Get(h.source)
	if err != nil {
		h.logger.Error("获取派生表失败", storage.String("source", h.source), storage.Error(err))
		Fail(c, err)
		return dataframe.DataFrame{}, processor.Params{}, false
	}
	return df, p, true
}

// Health GET /health
func (h *Handler) Health(c *gin.Context) {
	Success(c, gin.H{
		"status":    "ok",
		"source":    h.source,
		"loaded_at": h.tables.LoadedAt(h.source),
	})
}

// Bounds GET /api/v1/bounds
func (h *Handler) Bounds(c *gin.Context) {
	df, err := h.tables.Get(h.source)
	if err != nil {
		Fail(c, err)
		return
	}
	lo, hi, ok := processor.Bounds(df)
	if !ok {
		Success(c, gin.H{"min": nil, "max": nil})
		return
	}
	Success(c, gin.H{
		"min": lo.Format(utils.DateLayout),
		"max": hi.Format(utils.DateLayout),
	})
}

// Metrics GET /api/v1/metrics
func (h *Handler) Metrics(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	Success(c, processor.Summarize(processor.View(df, p)))
}

// Charts GET /api/v1/charts
func (h *Handler) Charts(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	Success(c, processor.BuildCharts(processor.View(df, p)))
}

// Missing GET /api/v1/missing 基于完整派生表
func (h *Handler) Missing(c *gin.Context) {
	df, err := h.tables.Get(h.source)
	if err != nil {
		Fail(c, err)
		return
	}
	report := processor.MissingValues(df)
	var rows []map[string]interface{}
	if report.Rows.Nrow() > 0 {
		rows = report.Rows.Maps()
	}
	Success(c, gin.H{
		"columns": report.Columns,
		"total":   report.Total,
		"rows":    rows,
	})
}

// Forecast GET /api/v1/forecast
func (h *Handler) Forecast(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	points, err := processor.Forecast(processor.View(df, p), p.Days, processor.NewTrendForecaster())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, points)
}

// Models GET /api/v1/models
func (h *Handler) Models(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	scores, err := processor.CompareModels(processor.View(df, p))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, scores)
}

// Predict GET /api/v1/predict
func (h *Handler) Predict(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	pred, err := processor.PredictDuration(processor.View(df, p), p.Model, p.Miles, p.Hour)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pred)
}

// Dashboard GET /api/v1/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	Success(c, processor.Build(df, p))
}

// Export GET /api/v1/export 以 xlsx 返回当前参数下的报表
func (h *Handler) Export(c *gin.Context) {
	df, p, ok := h.load(c)
	if !ok {
		return
	}
	f, err := datapush.NewWorkbook(processor.Build(df, p), processor.View(df, p))
	if err != nil {
		Fail(c, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("trip_report_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("写出报表失败", storage.Error(err))
	}
}

// Refresh POST /api/v1/refresh 使缓存失效并重新构建
func (h *Handler) Refresh(c *gin.Context) {
	df, err := h.tables.Refresh(h.source)
	if err != nil {
		h.logger.Error("刷新派生表失败", storage.String("source", h.source), storage.Error(err))
		Fail(c, err)
		return
	}
	h.logger.Info("派生表已刷新", storage.String("source", h.source), storage.Int("rows", df.Nrow()))
	Success(c, gin.H{
		"rows":      df.Nrow(),
		"loaded_at": h.tables.LoadedAt(h.source),
	})
}

// Logs GET /logs 以分块方式持续输出日志
func (h *Handler) Logs(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Transfer-Encoding", "chunked")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	logChan := h.logger.Subscribe()
	defer h.logger.Unsubscribe(logChan)

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			// 客户端断开时写入失败
			if _, err := fmt.Fprintln(c.Writer, msg); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
