package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field 是zap字段的别名，调用方无需直接引入zap
type Field = zapcore.Field

var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Uint32   = zap.Uint32
	Strings  = zap.Strings
	Float64  = zap.Float64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// LogConfig 日志配置
type LogConfig struct {
	Filename string // 日志文件路径
	Level    string // debug, info, warn, error
	Format   string // json, console
	MaxSize  string // 轮转阈值，如 "10 * 1024 * 1024"，为空不轮转
	Stdout   bool   // 是否同时输出到标准输出
}

// Logger 日志记录器：zap 负责编码，文件与订阅者负责输出
type Logger struct {
	*zap.Logger
	file *rotatingFile
	hub  *hub
}

// NewLogger 创建新的日志记录器
func NewLogger(cfg LogConfig) (*Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	file, err := openRotatingFile(cfg.Filename, eval(cfg.MaxSize))
	if err != nil {
		return nil, err
	}

	h := &hub{}
	plain, err := newEncoder(cfg.Format, false)
	if err != nil {
		file.Close()
		return nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(plain, zapcore.NewMultiWriteSyncer(file, h), level),
	}
	if cfg.Stdout {
		colored, _ := newEncoder(cfg.Format, true)
		cores = append(cores, zapcore.NewCore(colored, zapcore.Lock(zapcore.AddSync(os.Stdout)), level))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...), opts...),
		file:   file,
		hub:    h,
	}, nil
}

// Nop 返回不输出任何内容的日志记录器，测试时使用
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop(), hub: &hub{}}
}

func newEncoder(format string, colored bool) (zapcore.Encoder, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
	}

	switch format {
	case "json":
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(encoderConfig), nil
	case "console", "":
		if colored {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(encoderConfig), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func parseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

// Named 返回带名称的子记录器，共享文件与订阅者
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), file: l.file, hub: l.hub}
}

// With 返回附带字段的子记录器
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), file: l.file, hub: l.hub}
}

// Subscribe 订阅日志消息
// 返回值:
//
//	<-chan string: 只读通道，用于接收日志消息
func (l *Logger) Subscribe() <-chan string {
	return l.hub.subscribe()
}

// Unsubscribe 取消订阅并关闭通道
func (l *Logger) Unsubscribe(ch <-chan string) {
	l.hub.unsubscribe(ch)
}

// Reopen 重新打开日志文件，配合 SIGHUP 使用
func (l *Logger) Reopen() error {
	if l.file == nil {
		return nil
	}
	return l.file.reopen()
}

// Close 刷新缓冲并关闭日志文件
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// hub 将日志条目广播给所有订阅者
type hub struct {
	mu          sync.Mutex
	subscribers []chan string
}

func (h *hub) subscribe() <-chan string {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 创建带缓冲的通道(容量100)
	ch := make(chan string, 100)
	h.subscribers = append(h.subscribers, ch)
	return ch
}

func (h *hub) unsubscribe(target <-chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, ch := range h.subscribers {
		if ch == target {
			close(ch)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

func (h *hub) Write(p []byte) (int, error) {
	entry := strings.TrimRight(string(p), "\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- entry:
		default: // 通道已满则跳过
		}
	}
	return len(p), nil
}

func (h *hub) Sync() error { return nil }

// rotatingFile 超过大小阈值时将当前文件改名为 name.时间戳.ext 并新建
type rotatingFile struct {
	mu       sync.Mutex
	filename string
	maxSize  int64
	size     int64
	file     *os.File
}

func openRotatingFile(filename string, maxSize int64) (*rotatingFile, error) {
	rf := &rotatingFile{filename: filename, maxSize: maxSize}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open() error {
	if dir := filepath.Dir(rf.filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(rf.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	rf.file = file
	rf.size = info.Size()
	return nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.maxSize > 0 && rf.size+int64(len(p)) > rf.maxSize && rf.size > 0 {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *rotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	ext := filepath.Ext(rf.filename)
	base := strings.TrimSuffix(rf.filename, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405.000000000"), ext)
	if err := os.Rename(rf.filename, rotated); err != nil {
		return err
	}
	return rf.open()
}

func (rf *rotatingFile) reopen() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file != nil {
		_ = rf.file.Close()
	}
	return rf.open()
}

func (rf *rotatingFile) Sync() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	return rf.file.Sync()
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file != nil {
		err := rf.file.Close()
		rf.file = nil
		return err
	}
	return nil
}

// eval 解析 "10 * 1024 * 1024" 形式的大小表达式
func eval(expr string) int64 {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0
	}
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		result *= num
	}
	return result
}
