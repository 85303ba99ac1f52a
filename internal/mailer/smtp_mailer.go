package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// SMTPConfig carries the SMTP connection and sender settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	UseTLS    bool // opportunistic STARTTLS
	UseSSL    bool // implicit TLS on connect (port 465)
	Timeout   time.Duration
	EmailFrom string
}

// SMTPMailer speaks SMTP over a context-aware dial: implicit TLS on connect
// when UseSSL is set (port 465 style), otherwise opportunistic STARTTLS
// when the server advertises the extension, then PLAIN auth if credentials
// are configured.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(m.cfg.EmailFrom); err != nil {
		return fmt.Errorf("SMTP MAIL FROM error: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("SMTP RCPT TO error: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA error: %w", err)
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.cfg.EmailFrom, msg.To, msg.Subject, msg.Body)

	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("SMTP write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP close data error: %w", err)
	}

	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SMTP dial error: %w", err)
	}

	if m.cfg.UseSSL {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("SMTP implicit TLS handshake error: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client init error: %w", err)
	}

	if ctx.Err() != nil {
		client.Close()
		return nil, ctx.Err()
	}

	if m.cfg.UseTLS && !m.cfg.UseSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName: m.cfg.Host,
				MinVersion: tls.VersionTLS12,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS error: %w", err)
			}
		}
	}

	if ctx.Err() != nil {
		client.Close()
		return nil, ctx.Err()
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP auth error: %w", err)
		}
	}

	return client, nil
}
