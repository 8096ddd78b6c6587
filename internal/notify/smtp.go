package notify

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
	TLSImplicit      = "ssl"

	defaultSMTPPort = 587
)

// SMTPConfig holds SMTP transport settings
type SMTPConfig struct {
	Endpoint string // host:port, port defaults to 587
	Username string
	Password string
	From     string
	To       []string
	TLS      string // mandatory (STARTTLS), opportunistic, none, ssl
	Timeout  time.Duration
}

// SMTPTransport sends alerts as plain-text emails
type SMTPTransport struct {
	cfg  SMTPConfig
	host string
	port int
}

// NewSMTPTransport validates settings and creates an SMTP transport
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp recipient address is required")
	}
	if _, err := tlsPolicy(cfg.TLS); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SMTPTransport{cfg: cfg, host: host, port: port}, nil
}

// Name returns the transport identifier
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Send builds the message and delivers it in a single SMTP session
func (t *SMTPTransport) Send(ctx context.Context, subject, body string) error {
	msg, err := t.buildMessage(subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(t.host, t.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail via %s:%d: %w", t.host, t.port, err)
	}

	return nil
}

func (t *SMTPTransport) buildMessage(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(t.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(t.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (t *SMTPTransport) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(t.port),
		mail.WithTimeout(t.cfg.Timeout),
	}

	policy, _ := tlsPolicy(t.cfg.TLS)
	if t.cfg.TLS == TLSImplicit {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(policy))
	}

	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}

	return opts
}

func tlsPolicy(mode string) (mail.TLSPolicy, error) {
	switch mode {
	case "", TLSMandatory, TLSImplicit:
		return mail.TLSMandatory, nil
	case TLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return mail.TLSMandatory, fmt.Errorf("unsupported smtp tls mode: %s", mode)
	}
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("smtp endpoint is required")
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// Bare host, default submission port
		return endpoint, defaultSMTPPort, nil
	}
	if host == "" {
		return "", 0, fmt.Errorf("smtp endpoint %q has no host", endpoint)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("smtp endpoint %q has invalid port", endpoint)
	}

	return host, port, nil
}
