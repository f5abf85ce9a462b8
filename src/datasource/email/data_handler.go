// data_handler.go
package email

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"TripDashboard/src/config"
	"TripDashboard/src/datasource/file"
	"TripDashboard/src/storage"

	"github.com/go-gota/gota/dataframe"
)

// Source 以邮箱中最新的行程附件作为数据源
// Poll 发现新邮件后由调用方刷新缓存，Read 读取该邮件的附件
type Source struct {
	service MailService
	handler *AttachmentHandler
	name    string
	subject string
	window  time.Duration
	sheet   string
	opts    file.Options
	logger  *storage.Logger

	mu      sync.Mutex
	pending *Email // 轮询发现、尚未加载的邮件
	current *Email // 当前数据表对应的邮件
}

func NewSource(service MailService, cfg config.EmailConfig, dataDir, sheet string, opts file.Options, logger *storage.Logger) *Source {
	logger = logger.Named("email-source")
	return &Source{
		service: service,
		handler: NewAttachmentHandler(cfg.TargetSubject, dataDir, logger),
		name:    fmt.Sprintf("imap://%s@%s/%s", cfg.Username, cfg.Server, cfg.TargetSubject),
		subject: cfg.TargetSubject,
		window:  time.Duration(cfg.RecentWindow),
		sheet:   sheet,
		opts:    opts,
		logger:  logger,
	}
}

func (s *Source) Name() string { return s.name }

// Poll 检查是否有尚未处理的目标邮件，有则返回 true
func (s *Source) Poll(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	latest, err := CheckLatestEmail(s.service, s.subject, s.window, s.logger)
	if err != nil {
		return false, err
	}
	if latest == nil || s.handler.IsProcessed(latest.UID) {
		return false, nil
	}
	if _, err := PickAttachment(latest); err != nil {
		s.handler.markAsProcessed(latest.UID)
		s.logger.Warn("目标邮件没有行程附件", storage.Uint32("uid", latest.UID))
		return false, nil
	}

	s.mu.Lock()
	s.pending = latest
	s.mu.Unlock()
	return true, nil
}

// Read 解析最新目标邮件的附件
// 邮箱中暂无目标邮件时沿用上一次的附件
func (s *Source) Read(ctx context.Context) (dataframe.DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return dataframe.DataFrame{}, err
	}

	s.mu.Lock()
	target := s.pending
	if target == nil {
		target = s.current
	}
	s.mu.Unlock()

	if target == nil {
		latest, err := CheckLatestEmail(s.service, s.subject, s.window, s.logger)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		if latest == nil {
			return dataframe.DataFrame{}, fmt.Errorf("%s: %w", s.name, ErrNoAttachment)
		}
		target = latest
	}

	attachment, err := PickAttachment(target)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df, err := ParseAttachment(attachment, s.sheet, s.opts)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("解析附件%s失败: %w", attachment.Filename, err)
	}

	// 附件落盘只用于留档，失败不影响加载
	if _, err := s.handler.Handle(target); err != nil {
		s.logger.Warn("保存附件失败", storage.Error(err))
	}

	s.mu.Lock()
	s.current = target
	s.pending = nil
	s.mu.Unlock()
	return df, nil
}

// ParseAttachment 按扩展名解析附件内容
func ParseAttachment(attachment *Attachment, sheet string, opts file.Options) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(attachment.Filename)) {
	case ".csv":
		return file.ReadCSVBytes(attachment.Content, opts)
	case ".xlsx":
		return file.ReadXLSXBytes(attachment.Content, sheet)
	default:
		return dataframe.DataFrame{}, ErrNoAttachment
	}
}
