// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"TripDashboard/src/datasource/file"
	"TripDashboard/src/storage"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

const (
	// maxFetch 单次最多拉取的邮件数，只保留 UID 最大的部分
	maxFetch = 100
	// fetchBuffer 拉取通道缓冲
	fetchBuffer = 10
	// inbox 只读选择的邮箱
	inbox = "INBOX"
)

func init() {
	// 附件名等 MIME 参数中的 GBK 编码
	message.CharsetReader = charsetReader
}

// MailService 收件箱访问，测试中可替换
type MailService interface {
	Connect() error
	Disconnect()
	// FetchRecentEmails 获取 since 之后收到的邮件，不改变已读状态
	FetchRecentEmails(since time.Time) ([]*Email, error)
}

// Email 已解码的邮件
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

// Attachment 邮件附件
type Attachment struct {
	Filename string
	Content  []byte
}

// IMAPClient 基于 IMAPS 的收件箱访问，所有操作串行执行
type IMAPClient struct {
	addr     string // 形如 "imap.qq.com:993"
	username string
	password string
	logger   *storage.Logger

	mu   sync.Mutex
	conn *client.Client
}

func NewIMAPClient(addr, username, password string, logger *storage.Logger) *IMAPClient {
	return &IMAPClient{
		addr:     addr,
		username: username,
		password: password,
		logger:   logger.Named("imap"),
	}
}

// Connect 登录服务器；已有连接且 NOOP 成功时复用
func (c *IMAPClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Noop(); err == nil {
			return nil
		}
		c.logger.Info("IMAP连接已失效，重新登录", storage.String("addr", c.addr))
		c.conn.Logout()
		c.conn = nil
	}

	conn, err := client.DialTLS(c.addr, nil)
	if err != nil {
		return fmt.Errorf("连接%s失败: %w", c.addr, err)
	}
	if err := conn.Login(c.username, c.password); err != nil {
		conn.Logout()
		return fmt.Errorf("登录%s失败: %w", c.username, err)
	}
	c.conn = conn
	return nil
}

func (c *IMAPClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.Logout(); err != nil {
		c.logger.Debug("IMAP登出失败", storage.Error(err))
	}
	c.conn = nil
}

// FetchRecentEmails 按 UID 搜索 since 之后的邮件并以 Peek 方式拉取全文
func (c *IMAPClient) FetchRecentEmails(since time.Time) ([]*Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := c.conn.Select(inbox, true); err != nil {
		return nil, fmt.Errorf("选择%s失败: %w", inbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > maxFetch {
		uids = uids[len(uids)-maxFetch:]
	}
	return c.fetch(uids)
}

func (c *IMAPClient) fetch(uids []uint32) ([]*Email, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, fetchBuffer)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(set, items, messages)
	}()

	emails := make([]*Email, 0, len(uids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			c.logger.Warn("邮件正文为空", storage.Uint32("uid", msg.Uid))
			continue
		}
		e, err := ParseMessage(msg.Uid, body)
		if err != nil {
			c.logger.Warn("解析邮件失败", storage.Uint32("uid", msg.Uid), storage.Error(err))
			continue
		}
		// 没有 Date 头时使用服务器接收时间
		if e.Date.IsZero() {
			e.Date = msg.InternalDate
		}
		emails = append(emails, e)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("拉取邮件失败: %w", err)
	}
	return emails, nil
}

// ParseMessage 从 RFC 5322 报文解析邮件头与附件，单个附件出错时跳过
func ParseMessage(uid uint32, r io.Reader) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	date, _ := mr.Header.Date()
	e := &Email{
		UID:     uid,
		Date:    date,
		From:    decodeHeader(mr.Header.Get("From")),
		Subject: decodeHeader(mr.Header.Get("Subject")),
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 后续分段无法读取，保留已解析的附件
			break
		}
		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		if att, err := readAttachment(h, part.Body); err == nil {
			e.Attachments = append(e.Attachments, att)
		}
	}
	return e, nil
}

func readAttachment(h *mail.AttachmentHeader, body io.Reader) (*Attachment, error) {
	name, err := h.Filename()
	if err != nil || name == "" {
		return nil, fmt.Errorf("无效的附件名")
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("读取附件%s失败: %w", name, err)
	}
	return &Attachment{Filename: decodeHeader(name), Content: buf.Bytes()}, nil
}

// decodeHeader 解码 =?charset?encoding?text?= 形式的邮件头，失败时原样返回
func decodeHeader(header string) string {
	dec := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader 中文编码转 UTF-8，其他编码原样返回
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	r, err := file.DecodeReader(input, charset)
	if err != nil {
		return input, nil
	}
	return r, nil
}

// CheckLatestEmail 登录收件箱，返回 window 内主题包含 keyword 的最新邮件，没有时返回 nil
func CheckLatestEmail(svc MailService, keyword string, window time.Duration, logger *storage.Logger) (*Email, error) {
	start := time.Now()
	if err := svc.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer svc.Disconnect()

	emails, err := svc.FetchRecentEmails(start.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}

	latest := filterLatestTargetEmail(emails, keyword)
	if latest == nil {
		logger.Debug("没有目标邮件", storage.Int("fetched", len(emails)), storage.String("keyword", keyword))
		return nil, nil
	}
	logger.Info("找到目标邮件",
		storage.Uint32("uid", latest.UID),
		storage.String("subject", latest.Subject),
		storage.Int("attachments", len(latest.Attachments)),
		storage.Duration("elapsed", time.Since(start)),
	)
	return latest, nil
}

// filterLatestTargetEmail 主题匹配的邮件中日期最新者，日期相同取 UID 较大者
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var latest *Email
	for _, e := range emails {
		if !strings.Contains(e.Subject, keyword) {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) || (e.Date.Equal(latest.Date) && e.UID > latest.UID) {
			latest = e
		}
	}
	return latest
}
