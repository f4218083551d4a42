package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"plan-nat/backend/config"
)

// ErrNotConfigured SMTP 主机未配置
var ErrNotConfigured = errors.New("SMTP 未配置")

const defaultTimeout = 10 * time.Second

var flattenNewlines = strings.NewReplacer("\r", " ", "\n", " ")

// Mail 一封待发送的邮件
type Mail struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPSender 基于 go-mail 的 SMTP 发送实现
type SMTPSender struct {
	cfg     config.MailConfig
	logger  *zap.Logger
	timeout time.Duration
	deliver func(ctx context.Context, client *mail.Client, msg *mail.Msg) error
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg config.MailConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		cfg:     cfg,
		logger:  logger,
		timeout: defaultTimeout,
		deliver: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
}

// Send 发送纯文本邮件，ctx 取消或超时会中断 SMTP 会话
func (s *SMTPSender) Send(ctx context.Context, m Mail) error {
	if s.cfg.SMTPHost == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildMessage(s.cfg.From, m)
	if err != nil {
		return fmt.Errorf("构造邮件失败: %w", err)
	}
	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.deliver(ctx, client, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	s.logger.Debug("邮件已发送", zap.String("to", m.To), zap.String("subject", m.Subject))
	return nil
}

func (s *SMTPSender) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithTimeout(s.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.SMTPPort > 0 {
		opts = append(opts, mail.WithPort(s.cfg.SMTPPort))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.SMTPHost, opts...)
}

// buildMessage 头部由 go-mail 按 RFC 2047 编码；收件人姓名中的换行先替换为空格
func buildMessage(from string, m Mail) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, err
	}
	name := flattenNewlines.Replace(m.ToName)
	if name != "" {
		if err := msg.AddToFormat(name, m.To); err != nil {
			return nil, err
		}
	} else if err := msg.To(m.To); err != nil {
		return nil, err
	}
	msg.Subject(flattenNewlines.Replace(m.Subject))
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}
