package email

import (
	"crypto/tls"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/acadmail/triaged/internal/config"
)

const (
	defaultDialTimeout = 30 * time.Second
	// Bound on each SMTP network exchange. Submission servers that sit
	// on a slow greylisting path can take a while to accept DATA.
	smtpTimeout = 60 * time.Second
)

// DialIMAP opens an authenticated read session. The connection uses
// implicit TLS when the provider says so, otherwise it is upgraded via
// STARTTLS. A failed standard TLS negotiation gets one fallback attempt
// with relaxed certificate verification, for legacy servers with
// self-signed or mismatched certificates.
//
// Credential rejection returns *AuthError; any transport or negotiation
// failure returns *ConnError.
func DialIMAP(cfg config.Provider, creds config.Credentials, dialTimeout time.Duration, logger *slog.Logger) (*client.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	addr := cfg.IMAPAddr()

	var (
		c   *client.Client
		err error
	)
	if cfg.UseSSL {
		tlsConfig := &tls.Config{ServerName: cfg.IMAPHost}
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
		if err != nil {
			logger.Warn("IMAP TLS dial failed, retrying with relaxed verification",
				"server", addr, "error", err)
			tlsConfig = &tls.Config{ServerName: cfg.IMAPHost, InsecureSkipVerify: true}
			c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
		}
		if err != nil {
			return nil, &ConnError{Op: "imap dial", Err: err}
		}
	} else {
		c, err = dialIMAPStartTLS(cfg, dialer, logger)
		if err != nil {
			return nil, err
		}
	}

	if err := c.Login(creds.Login, creds.Secret); err != nil {
		c.Logout()
		return nil, &AuthError{Op: "imap login", Err: err}
	}
	return c, nil
}

// dialIMAPStartTLS dials in the clear and upgrades the connection. A
// failed handshake kills the transport, so the fallback attempt starts
// from a fresh dial.
func dialIMAPStartTLS(cfg config.Provider, dialer *net.Dialer, logger *slog.Logger) (*client.Client, error) {
	addr := cfg.IMAPAddr()

	c, err := client.DialWithDialer(dialer, addr)
	if err != nil {
		return nil, &ConnError{Op: "imap dial", Err: err}
	}
	if !cfg.UseStartTLS {
		return c, nil
	}

	if err := c.StartTLS(&tls.Config{ServerName: cfg.IMAPHost}); err == nil {
		return c, nil
	} else {
		logger.Warn("IMAP STARTTLS failed, retrying with relaxed verification",
			"server", addr, "error", err)
		c.Terminate()
	}

	c, err = client.DialWithDialer(dialer, addr)
	if err != nil {
		return nil, &ConnError{Op: "imap dial", Err: err}
	}
	if err := c.StartTLS(&tls.Config{ServerName: cfg.IMAPHost, InsecureSkipVerify: true}); err != nil {
		c.Terminate()
		return nil, &ConnError{Op: "imap starttls", Err: err}
	}
	return c, nil
}

// DialSMTP opens an authenticated write session. Port 465 means TLS
// from the first byte; any other port dials in the clear and upgrades
// via STARTTLS when configured, with the same relaxed-verification
// fallback as the read side. go-smtp re-announces capabilities with a
// fresh EHLO after the upgrade, as the protocol requires.
func DialSMTP(cfg config.Provider, creds config.Credentials, dialTimeout time.Duration, logger *slog.Logger) (*smtp.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	c, err := dialSMTPTransport(cfg, dialTimeout, logger)
	if err != nil {
		return nil, err
	}
	c.CommandTimeout = smtpTimeout
	c.SubmissionTimeout = smtpTimeout

	if err := c.Auth(sasl.NewPlainClient("", creds.Login, creds.Secret)); err != nil {
		c.Close()
		return nil, &AuthError{Op: "smtp auth", Err: err}
	}
	return c, nil
}

func dialSMTPTransport(cfg config.Provider, dialTimeout time.Duration, logger *slog.Logger) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	addr := cfg.SMTPAddr()
	localName := heloName()

	if cfg.SMTPImplicitTLS() {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.SMTPHost})
		if err != nil {
			logger.Warn("SMTP TLS dial failed, retrying with relaxed verification",
				"server", addr, "error", err)
			conn, err = tls.DialWithDialer(dialer, "tcp", addr,
				&tls.Config{ServerName: cfg.SMTPHost, InsecureSkipVerify: true})
		}
		if err != nil {
			return nil, &ConnError{Op: "smtp dial", Err: err}
		}
		c := smtp.NewClient(conn)
		if err := c.Hello(localName); err != nil {
			c.Close()
			return nil, &ConnError{Op: "smtp hello", Err: err}
		}
		return c, nil
	}

	c, err := dialSMTPPlain(dialer, addr, localName)
	if err != nil {
		return nil, err
	}
	if !cfg.UseStartTLS {
		return c, nil
	}

	if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost}); err == nil {
		return c, nil
	} else {
		logger.Warn("SMTP STARTTLS failed, retrying with relaxed verification",
			"server", addr, "error", err)
		c.Close()
	}

	c, err = dialSMTPPlain(dialer, addr, localName)
	if err != nil {
		return nil, err
	}
	if err := c.StartTLS(&tls.Config{ServerName: cfg.SMTPHost, InsecureSkipVerify: true}); err != nil {
		c.Close()
		return nil, &ConnError{Op: "smtp starttls", Err: err}
	}
	return c, nil
}

func dialSMTPPlain(dialer *net.Dialer, addr, localName string) (*smtp.Client, error) {
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, &ConnError{Op: "smtp dial", Err: err}
	}
	c := smtp.NewClient(conn)
	if err := c.Hello(localName); err != nil {
		c.Close()
		return nil, &ConnError{Op: "smtp hello", Err: err}
	}
	return c, nil
}

func heloName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "localhost"
}
