// email_handler.go
package email

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"TripDashboard/src/storage"
)

// ErrNoAttachment 邮件中没有可解析的行程附件
var ErrNoAttachment = errors.New("没有可用的行程附件")

// supportedExts 可解析的附件类型
var supportedExts = []string{".csv", ".xlsx"}

// ====================== 邮件处理器实现 ======================

type AttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
	logger        *storage.Logger
}

func NewAttachmentHandler(subject, dataDir string, logger *storage.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
		logger:        logger.Named("attachment"),
	}
}

// IsProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *AttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// PickAttachment 返回邮件中第一个 csv/xlsx 附件
func PickAttachment(email *Email) (*Attachment, error) {
	for _, attachment := range email.Attachments {
		ext := strings.ToLower(filepath.Ext(attachment.Filename))
		for _, supported := range supportedExts {
			if ext == supported {
				return attachment, nil
			}
		}
	}
	return nil, ErrNoAttachment
}

// Handle 保存目标邮件的行程附件到数据目录并标记为已处理
// 返回保存后的文件路径
func (h *AttachmentHandler) Handle(email *Email) (string, error) {
	if !strings.Contains(email.Subject, h.TargetSubject) {
		h.logger.Debug("跳过主题不匹配的邮件", storage.String("subject", email.Subject))
		return "", nil
	}

	attachment, err := PickAttachment(email)
	if err != nil {
		return "", fmt.Errorf("邮件(UID:%d): %w", email.UID, err)
	}

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	// 只保留文件名，防止附件名带路径
	filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
	if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
		return "", fmt.Errorf("保存附件失败: %w", err)
	}

	h.markAsProcessed(email.UID)
	h.logger.Info("附件已保存",
		storage.Uint32("uid", email.UID),
		storage.String("from", email.From),
		storage.String("path", filePath),
	)
	return filePath, nil
}
