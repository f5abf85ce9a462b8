package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"TripDashboard/src/api"
	"TripDashboard/src/config"
	"TripDashboard/src/datapush"
	"TripDashboard/src/datasource/email"
	"TripDashboard/src/datasource/file"
	"TripDashboard/src/datasource/sqlite"
	"TripDashboard/src/processor"
	"TripDashboard/src/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-gota/gota/dataframe"
	"github.com/robfig/cron"
)

// 单次构建派生表的超时
const buildTimeout = 2 * time.Minute

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(storage.LogConfig{
		Filename: cfg.LogName,
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		MaxSize:  cfg.LogMaxSize,
		Stdout:   true,
	})
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()

	src, mailClient, err := newSource(cfg, logger)
	if err != nil {
		logger.Fatal("创建数据源失败", storage.Error(err))
	}
	if mailClient != nil {
		defer mailClient.Disconnect()
	}

	cache := storage.NewTableCache(1, newBuilder(src, dcfg), logger)
	// 预热缓存，失败时等待刷新
	if _, err := cache.Get(src.Name()); err != nil {
		logger.Warn("首次加载派生表失败", storage.String("source", src.Name()), storage.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置定时任务
	c := cron.New()
	if err := scheduleJobs(ctx, c, cfg, src, cache, logger); err != nil {
		logger.Fatal("创建定时任务失败", storage.Error(err))
	}
	c.Start()
	defer c.Stop()

	if cfg.Source.Watch && cfg.Source.Type != config.SourceEmail {
		if err := startWatcher(ctx, cfg.Source.Path, src.Name(), cache, logger); err != nil {
			logger.Error("启动文件监控失败", storage.Error(err))
		}
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(cache, src.Name(), logger)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.SetupRouter(handler, cfg.Server, logger),
	}
	go func() {
		logger.Info("HTTP服务已启动", storage.String("addr", cfg.Server.Addr), storage.String("source", src.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP服务异常退出", storage.Error(err))
			cancel()
		}
	}()

	waitForShutdown(ctx, srv, logger)
}

// newSource 按配置创建数据源；邮箱数据源同时返回客户端以便退出时断开
func newSource(cfg *config.Config, logger *storage.Logger) (processor.Source, *email.IMAPClient, error) {
	opts := file.Options{
		Encoding:  cfg.Source.Encoding,
		Delimiter: parseDelimiter(cfg.Source.Delimiter),
	}

	switch cfg.Source.Type {
	case config.SourceCSV:
		return &file.CSVSource{Path: cfg.Source.Path, Options: opts}, nil, nil
	case config.SourceXLSX:
		return &file.XLSXSource{Path: cfg.Source.Path, SheetName: cfg.Source.SheetName}, nil, nil
	case config.SourceSQLite:
		return &sqlite.Source{Path: cfg.Source.Path, Table: cfg.Source.Table}, nil, nil
	case config.SourceEmail:
		client := email.NewIMAPClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password, logger)
		return email.NewSource(client, cfg.Email, cfg.DataDir, cfg.Source.SheetName, opts, logger), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source type: %q", cfg.Source.Type)
	}
}

// parseDelimiter 取第一个字符，"\t" 表示制表符
func parseDelimiter(s string) rune {
	if s == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

func newBuilder(src processor.Source, dcfg *config.DataConfig) storage.TableBuilder {
	return func(string) (dataframe.DataFrame, error) {
		ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()
		return processor.BuildTable(ctx, src, dcfg)
	}
}

// scheduleJobs 注册邮箱轮询与定时报表
func scheduleJobs(ctx context.Context, c *cron.Cron, cfg *config.Config, src processor.Source, cache *storage.TableCache, logger *storage.Logger) error {
	if mailbox, ok := src.(*email.Source); ok {
		interval := time.Duration(cfg.Email.CheckInterval).String() // 例如 "5m0s"
		cronSpec := fmt.Sprintf("@every %s", interval)
		err := c.AddFunc(cronSpec, func() {
			pollMailbox(ctx, mailbox, cache, logger)
		})
		if err != nil {
			return fmt.Errorf("邮箱轮询任务: %w", err)
		}
		logger.Info("邮件监控已启动", storage.String("interval", interval))
	}

	if cfg.Report.Schedule != "" {
		reporter := datapush.NewReporter(cfg.Report, cfg.SendEmail, func() (dataframe.DataFrame, error) {
			return cache.Get(src.Name())
		}, logger)
		if err := reporter.Schedule(c, cfg.Report.Schedule); err != nil {
			return fmt.Errorf("报表任务: %w", err)
		}
		logger.Info("定时报表已启动", storage.String("schedule", cfg.Report.Schedule), storage.String("dir", cfg.Report.Dir))
	}
	return nil
}

// pollMailbox 有新的目标邮件时刷新缓存
func pollMailbox(ctx context.Context, mailbox *email.Source, cache *storage.TableCache, logger *storage.Logger) {
	t1 := time.Now()
	changed, err := mailbox.Poll(ctx)
	if err != nil {
		logger.Error("检查邮件失败", storage.Error(err))
		return
	}
	if !changed {
		return
	}
	df, err := cache.Refresh(mailbox.Name())
	if err != nil {
		logger.Error("新邮件附件加载失败", storage.Error(err))
		return
	}
	logger.Info("已加载新邮件附件", storage.Int("rows", df.Nrow()), storage.Duration("elapsed", time.Since(t1)))
}

// startWatcher 数据文件被写入时刷新缓存
func startWatcher(ctx context.Context, path, key string, cache *storage.TableCache, logger *storage.Logger) error {
	monitor, err := file.NewFileMonitor(path)
	if err != nil {
		return err
	}
	go func() {
		defer monitor.Close()
		err := monitor.Watch(ctx, func(name string) {
			if _, err := cache.Refresh(key); err != nil {
				logger.Error("数据文件变化后刷新失败", storage.String("file", name), storage.Error(err))
				return
			}
			logger.Info("数据文件已变化，缓存已刷新", storage.String("file", name))
		})
		if err != nil {
			logger.Error("文件监控异常退出", storage.Error(err))
		}
	}()
	logger.Info("文件监控已启动", storage.String("path", path))
	return nil
}

// waitForShutdown SIGHUP 重新打开日志文件，SIGINT/SIGTERM 优雅退出
func waitForShutdown(ctx context.Context, srv *http.Server, logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := logger.Reopen(); err != nil {
					logger.Error("重新打开日志文件失败", storage.Error(err))
				}
				continue
			}
			logger.Info("Received signal: " + sig.String() + ", shutting down...")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP服务关闭失败", storage.Error(err))
		}
		return
	}
}
