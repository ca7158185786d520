package email

import (
	"log/slog"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/acadmail/triaged/internal/config"
)

// SessionPool keeps at most one live read session and hands it out for
// each operation. A dead session is detected with a NOOP probe and
// transparently replaced on the next Get.
//
// The pool is owned by a single MailClient and is not safe for
// concurrent use: the liveness check and the subsequent use are not
// atomic. Callers that want parallel fetches run one client per
// mailbox.
type SessionPool struct {
	cfg         config.Provider
	creds       config.Credentials
	dialTimeout time.Duration
	logger      *slog.Logger

	conn *client.Client
}

// NewSessionPool creates an empty pool; no connection is made until the
// first Get.
func NewSessionPool(cfg config.Provider, creds config.Credentials, dialTimeout time.Duration, logger *slog.Logger) *SessionPool {
	return &SessionPool{
		cfg:         cfg,
		creds:       creds,
		dialTimeout: dialTimeout,
		logger:      logger,
	}
}

// Get returns the pooled session, recreating it when missing or dead.
func (p *SessionPool) Get() (*client.Client, error) {
	if p.conn != nil && p.alive() {
		return p.conn, nil
	}
	return p.recreate()
}

// alive probes the session with a no-op command. Any error means dead.
func (p *SessionPool) alive() bool {
	return p.conn.Noop() == nil
}

func (p *SessionPool) recreate() (*client.Client, error) {
	if p.conn != nil {
		p.logger.Info("read session is dead, reconnecting", "server", p.cfg.IMAPAddr())
		p.conn.Logout()
		p.conn = nil
	}

	conn, err := DialIMAP(p.cfg, p.creds, p.dialTimeout, p.logger)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return p.conn, nil
}

// Close logs out and drops the pooled session.
func (p *SessionPool) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Logout(); err != nil {
		p.conn.Terminate()
	}
	p.conn = nil
}
