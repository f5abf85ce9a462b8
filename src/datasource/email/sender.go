// sender.go
package email

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"TripDashboard/src/config"
)

// Message 待发送的报表邮件
type Message struct {
	Subject     string
	Text        string
	Attachments []string // 附件文件路径
}

// buildEmail 组装邮件，主题为空时使用配置中的默认主题
func buildEmail(cfg config.SendEmailConfig, msg Message) (*email.Email, error) {
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("未配置收件人")
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Trip Dashboard <%s>", cfg.Username)
	e.To = cfg.To
	e.Subject = msg.Subject
	if e.Subject == "" {
		e.Subject = cfg.Subject
	}
	e.Text = []byte(msg.Text)

	for _, path := range msg.Attachments {
		if _, err := e.AttachFile(path); err != nil {
			return nil, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, nil
}

// SendEmail 通过 SMTP over TLS 发送邮件
func SendEmail(cfg config.SendEmailConfig, msg Message) error {
	e, err := buildEmail(cfg, msg)
	if err != nil {
		return err
	}

	// 确保服务器地址包含端口
	smtpAddr := cfg.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465" // 默认 SSL 端口
	}
	host, _, err := net.SplitHostPort(smtpAddr)
	if err != nil {
		return fmt.Errorf("SMTP地址无效: %w", err)
	}

	err = e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", cfg.Username, cfg.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	return nil
}
