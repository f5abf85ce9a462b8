package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// 数据源类型
const (
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourceSQLite = "sqlite"
	SourceEmail  = "email"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Source    SourceConfig    `json:"source" toml:"source"`
	Server    ServerConfig    `json:"server" toml:"server"`
	Email     EmailConfig     `json:"email" toml:"email"`
	Report    ReportConfig    `json:"report" toml:"report"`
	SendEmail SendEmailConfig `json:"send_email" toml:"send_email"`

	DataDir    string `json:"data_dir" toml:"data_dir"` // 应用程序数据存储目录
	LogName    string `json:"log_name" toml:"log_name"`
	LogMaxSize string `json:"log_max_size" toml:"log_max_size"`
	LogLevel   string `json:"log_level" toml:"log_level"`
	LogFormat  string `json:"log_format" toml:"log_format"`
}

// SourceConfig 行程日志数据源
type SourceConfig struct {
	Type      string `json:"type" toml:"type"`             // csv / xlsx / sqlite / email
	Path      string `json:"path" toml:"path"`             // 文件路径或sqlite数据库路径
	SheetName string `json:"sheet_name" toml:"sheet_name"` // xlsx 工作表
	Table     string `json:"table" toml:"table"`           // sqlite 表名
	Encoding  string `json:"encoding" toml:"encoding"`     // utf-8 / gbk
	Delimiter string `json:"delimiter" toml:"delimiter"`
	Watch     bool   `json:"watch" toml:"watch"` // 文件变化时自动刷新
}

type ServerConfig struct {
	Addr               string   `json:"addr" toml:"addr"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// EmailConfig IMAP收件配置
type EmailConfig struct {
	Server        string   `json:"server" toml:"server"`                 // 邮件服务器地址
	Username      string   `json:"username" toml:"username"`             // 邮箱用户名
	Password      string   `json:"password" toml:"password"`             // 邮箱密码
	TargetSubject string   `json:"target_subject" toml:"target_subject"` // 需要匹配的邮件主题
	CheckInterval Duration `json:"check_interval" toml:"check_interval"` // 检查新邮件的间隔时间
	RecentWindow  Duration `json:"recent_window" toml:"recent_window"`   // 只看这个时间窗内的邮件
}

type ReportConfig struct {
	Schedule string `json:"schedule" toml:"schedule"` // cron 表达式，为空则不定时导出
	Dir      string `json:"dir" toml:"dir"`
}

// SendEmailConfig SMTP发件配置，To 为空时不发送报表
type SendEmailConfig struct {
	Server   string   `json:"server" toml:"server"`     // SMTP 服务器地址
	Username string   `json:"username" toml:"username"` // 发件邮箱
	Password string   `json:"password" toml:"password"`
	To       []string `json:"to" toml:"to"`
	Subject  string   `json:"subject" toml:"subject"`
}

// DataConfig 数据列映射与关键词配置
type DataConfig struct {
	Columns     map[string]string   `json:"columns" toml:"columns"`   // 逻辑列名 -> 文件表头
	Keywords    map[string][]string `json:"keywords" toml:"keywords"` // 标记列 -> 关键词
	TimeLayouts []string            `json:"time_layouts" toml:"time_layouts"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
	mu                 sync.RWMutex
)

// LoadConfig 只加载一次配置，之后返回同一实例；首次失败时始终返回该错误
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, loadErr = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	// .env 不存在时忽略
	if err := godotenv.Load(filepath.Join(jsonFolder, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("读取.env失败: %w", err)
	}

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 数据配置可选，缺省使用内置列名与关键词
	dataConfigData, err := readFile(dataConfigFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, isTOML(configFile), cfgChan, errChan)
	go parseDataConfig(dataConfigData, isTOML(dataConfigFile), dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(data []byte, asTOML bool, v interface{}) error {
	if asTOML {
		_, err := toml.Decode(string(data), v)
		return err
	}
	return json.Unmarshal(data, v)
}

func parseConfig(data []byte, asTOML bool, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := decode(data, asTOML, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, asTOML bool, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if len(data) == 0 {
		resultChan <- dcfg
		return
	}

	var fileCfg DataConfig
	if err := decode(data, asTOML, &fileCfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}

	// 文件中的配置覆盖默认值
	for k, v := range fileCfg.Columns {
		dcfg.Columns[k] = v
	}
	for k, v := range fileCfg.Keywords {
		dcfg.Keywords[k] = v
	}
	if len(fileCfg.TimeLayouts) > 0 {
		dcfg.TimeLayouts = fileCfg.TimeLayouts
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyEnv 环境变量优先于配置文件
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRIP_SOURCE"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("TRIP_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := os.Getenv("SEND_EMAIL_PASSWORD"); v != "" {
		cfg.SendEmail.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Type == "" {
		cfg.Source.Type = sourceTypeFromPath(cfg.Source.Path)
	}
	if cfg.Source.Table == "" {
		cfg.Source.Table = "trips"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.LogName == "" {
		cfg.LogName = "app.log"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = "reports"
	}
	if cfg.Email.CheckInterval == 0 {
		cfg.Email.CheckInterval = Duration(5 * time.Minute)
	}
	if cfg.Email.RecentWindow == 0 {
		cfg.Email.RecentWindow = Duration(24 * time.Hour)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
}

func sourceTypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return SourceXLSX
	case ".db", ".sqlite", ".sqlite3":
		return SourceSQLite
	default:
		return SourceCSV
	}
}

// DefaultDataConfig 默认列名沿用原始行程日志表头
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		Columns: map[string]string{
			"start_date": "START_DATE",
			"end_date":   "END_DATE",
			"category":   "CATEGORY",
			"start":      "START",
			"stop":       "STOP",
			"miles":      "MILES",
			"purpose":    "PURPOSE",
		},
		Keywords: map[string][]string{
			"business": {"meeting", "customer", "business"},
			"errand":   {"errand", "personal"},
			"airport":  {"airport"},
			"meal":     {"meal", "lunch", "dinner", "breakfast", "food"},
		},
	}
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON与TOML中的字符串写法
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText 供TOML解析使用
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (dc *DataConfig) GetColumn(name string) string {
	mu.RLock()
	defer mu.RUnlock()
	return dc.Columns[name]
}

func (dc *DataConfig) GetKeywords(flag string) []string {
	mu.RLock()
	defer mu.RUnlock()
	return dc.Keywords[flag]
}
