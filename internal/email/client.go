package email

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/acadmail/triaged/internal/config"
)

// DefaultLookback bounds which unseen messages count as "new". Without
// it a first run against an old mailbox would reprocess an unbounded
// backlog.
const DefaultLookback = 8 * time.Hour

// Alternate drafts folder names tried when the configured one does not
// exist on the server.
var draftsFallbacks = []string{"Drafts", "INBOX.Drafts", "[Gmail]/Drafts", "Draft"}

// Mailer is the capability set consumed by the triage pipeline. The
// fetch/draft/send operations form a firewall: they never return an
// error, only an empty result or false, so a mail-server hiccup cannot
// crash the triage loop.
type Mailer interface {
	Connect(ctx context.Context) error
	Disconnect()
	FetchUnanswered(ctx context.Context, maxResults int) []Email
	CreateDraftReply(ctx context.Context, original Email, replyText string) bool
	SendReply(ctx context.Context, original Email, replyText string) bool
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Options tune a Client beyond the provider settings.
type Options struct {
	// Lookback is the fetch window; zero means DefaultLookback.
	Lookback time.Duration
	// DialTimeout bounds connection establishment; zero means 30s.
	DialTimeout time.Duration
	// Retry applies to in-session append and transmit operations.
	Retry RetryPolicy
}

// Client is the IMAP/SMTP implementation of Mailer. Read operations go
// through a pooled session; each send opens a fresh write session and
// tears it down again, since send volume is low and a pooled SMTP
// session mostly buys timeout races.
//
// A Client is single-threaded: one in-flight operation at a time. Run
// one Client per mailbox to parallelize.
type Client struct {
	cfg      config.Provider
	creds    config.Credentials
	codec    *Codec
	logger   *slog.Logger
	lookback time.Duration
	dialTO   time.Duration
	retry    RetryPolicy

	state connState
	pool  *SessionPool
}

// NewClient creates a mail client for one account. Construction fails
// on empty credentials rather than degrading to unauthenticated mode.
func NewClient(cfg config.Provider, creds config.Credentials, logger *slog.Logger, opts Options) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.BackoffBase == 0 {
		retry = DefaultRetryPolicy(logger)
	}
	return &Client{
		cfg:      cfg,
		creds:    creds,
		codec:    NewCodec(),
		logger:   logger.With("component", "mail_client", "provider", cfg.Name),
		lookback: lookback,
		dialTO:   opts.DialTimeout,
		retry:    retry,
	}, nil
}

// Connect builds the read-session pool and verifies it by selecting the
// inbox. Unlike the three pipeline operations it surfaces the error, so
// a direct caller can distinguish bad credentials from a dead server.
func (c *Client) Connect(ctx context.Context) error {
	c.state = stateConnecting
	c.logger.Info("connecting", "server", c.cfg.IMAPAddr())

	pool := NewSessionPool(c.cfg, c.creds, c.dialTO, c.logger)
	sess, err := pool.Get()
	if err != nil {
		c.state = stateDisconnected
		return err
	}
	if _, err := sess.Select("INBOX", false); err != nil {
		pool.Close()
		c.state = stateDisconnected
		return &ConnError{Op: "select inbox", Err: err}
	}

	if c.pool != nil {
		c.pool.Close()
	}
	c.pool = pool
	c.state = stateConnected
	c.logger.Info("connected")
	return nil
}

// Disconnect tears down the read pool. Safe to call when already
// disconnected.
func (c *Client) Disconnect() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	c.state = stateDisconnected
	c.logger.Info("disconnected")
}

// Reconnect tears down and rebuilds the read pool.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

func (c *Client) ensureConnected(ctx context.Context) bool {
	if c.state == stateConnected {
		return true
	}
	if err := c.Connect(ctx); err != nil {
		c.logger.Error("failed to connect", "error", err)
		return false
	}
	return true
}

// FetchUnanswered returns up to maxResults unseen messages received
// within the lookback window, most recent first. Messages the account
// itself sent are filtered out, as are messages whose thread already
// has a draft reply. Failures degrade to an empty result.
func (c *Client) FetchUnanswered(ctx context.Context, maxResults int) []Email {
	if !c.ensureConnected(ctx) {
		return nil
	}
	sess, err := c.pool.Get()
	if err != nil {
		c.logger.Error("failed to get read session", "error", err)
		return nil
	}
	if _, err := sess.Select("INBOX", false); err != nil {
		c.logger.Error("failed to select INBOX", "error", err)
		return nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-c.lookback)

	ids, err := sess.Search(criteria)
	if err != nil {
		c.logger.Error("search failed", "error", err)
		return nil
	}
	if len(ids) == 0 {
		c.logger.Debug("no recent unseen messages")
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Consider only the maxResults most recent matches; filtering below
	// may shrink the batch further but never reaches back for more.
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[len(ids)-maxResults:]
	}

	var out []Email
	for i := len(ids) - 1; i >= 0; i-- {
		em, err := c.fetchOne(sess, ids[i])
		if err != nil {
			c.logger.Warn("skipping undecodable message", "id", ids[i], "error", err)
			continue
		}
		if c.shouldSkip(em) {
			continue
		}
		out = append(out, em)
	}

	c.logger.Info("fetched unanswered messages", "count", len(out))
	return out
}

func (c *Client) fetchOne(sess *imapclient.Client, seq uint32) (Email, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.Fetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}
	if err := <-done; err != nil {
		return Email{}, &ConnError{Op: "imap fetch", Err: err}
	}
	if msg == nil {
		return Email{}, &ConnError{Op: "imap fetch", Err: errNoMessageData}
	}
	body := msg.GetBody(section)
	if body == nil {
		return Email{}, &ConnError{Op: "imap fetch", Err: errNoMessageData}
	}

	return c.codec.Decode(body, strconv.FormatUint(uint64(seq), 10)), nil
}

// shouldSkip applies the anti-loop filter: mail from the account's own
// address is never triaged, nor are threads that already carry a draft.
func (c *Client) shouldSkip(em Email) bool {
	if strings.Contains(em.Sender, c.creds.Address) {
		c.logger.Debug("skipping message from self", "sender", em.Sender)
		return true
	}
	if em.ThreadID != "" && c.threadHasDraft(em.ThreadID) {
		c.logger.Debug("skipping message, thread already drafted", "thread_id", em.ThreadID)
		return true
	}
	return false
}

// threadHasDraft reports whether a draft reply already exists for the
// thread. Always false for now: scanning the drafts folder here would
// disturb the selected mailbox on the pooled session mid-fetch.
// TODO: check the drafts folder once draft lookups get a session of
// their own.
func (c *Client) threadHasDraft(threadID string) bool {
	return false
}

// CreateDraftReply encodes a reply to original and appends it to the
// drafts folder with the \Draft flag. When the configured folder does
// not exist, known alternates are tried, with the inbox as the last
// resort. Returns true only on an explicit success from the server.
func (c *Client) CreateDraftReply(ctx context.Context, original Email, replyText string) bool {
	if !c.ensureConnected(ctx) {
		return false
	}
	raw, err := c.codec.EncodeReply(original, replyText, c.creds.Address, false)
	if err != nil {
		c.logger.Error("failed to encode draft reply", "error", err)
		return false
	}
	sess, err := c.pool.Get()
	if err != nil {
		c.logger.Error("failed to get read session", "error", err)
		return false
	}

	folder := c.selectDraftsFolder(sess)
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := sess.Append(folder, []string{imap.DraftFlag}, time.Now(), bytes.NewBuffer(raw)); err != nil {
			return &ConnError{Op: "imap append", Err: err}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("failed to append draft", "folder", folder, "error", err)
		return false
	}

	c.logger.Info("draft reply created", "folder", folder, "thread_id", original.ThreadID)
	return true
}

// folderSelector is the slice of the IMAP session the drafts-folder
// fallback needs.
type folderSelector interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
}

// selectDraftsFolder selects the configured drafts folder, falling back
// through known alternate names and finally the inbox.
func (c *Client) selectDraftsFolder(sess folderSelector) string {
	if _, err := sess.Select(c.cfg.DraftsFolder, false); err == nil {
		return c.cfg.DraftsFolder
	}
	for _, alt := range draftsFallbacks {
		if alt == c.cfg.DraftsFolder {
			continue
		}
		if _, err := sess.Select(alt, false); err == nil {
			c.logger.Warn("configured drafts folder unavailable, using alternate",
				"configured", c.cfg.DraftsFolder, "folder", alt)
			return alt
		}
	}
	sess.Select("INBOX", false)
	c.logger.Warn("no drafts folder found, saving to INBOX",
		"configured", c.cfg.DraftsFolder)
	return "INBOX"
}

// SendReply transmits a reply to original over a fresh write session.
// The session is torn down unconditionally, even when transmission
// fails.
func (c *Client) SendReply(ctx context.Context, original Email, replyText string) bool {
	if !c.ensureConnected(ctx) {
		return false
	}
	raw, err := c.codec.EncodeReply(original, replyText, c.creds.Address, true)
	if err != nil {
		c.logger.Error("failed to encode reply", "error", err)
		return false
	}
	recipient := ExtractAddress(original.Sender)

	sc, err := DialSMTP(c.cfg, c.creds, c.dialTO, c.logger)
	if err != nil {
		c.logger.Error("failed to open write session", "error", err)
		return false
	}
	defer func() {
		if err := sc.Quit(); err != nil {
			sc.Close()
		}
	}()

	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := sc.SendMail(c.creds.Address, []string{recipient}, bytes.NewReader(raw)); err != nil {
			return &ConnError{Op: "smtp send", Err: err}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("failed to send reply", "to", recipient, "error", err)
		return false
	}

	c.logger.Info("reply sent", "to", recipient, "thread_id", original.ThreadID)
	return true
}

// Status reports the health of both sides of the account connection.
type Status struct {
	Connected     bool
	IMAPAvailable bool
	SMTPAvailable bool
}

// Status probes the pooled read session and opens a throwaway write
// session. Intended for operator diagnostics, not hot paths.
func (c *Client) Status(ctx context.Context) Status {
	st := Status{Connected: c.state == stateConnected}
	if c.pool != nil {
		if _, err := c.pool.Get(); err == nil {
			st.IMAPAvailable = true
		}
	}
	if sc, err := DialSMTP(c.cfg, c.creds, c.dialTO, c.logger); err == nil {
		st.SMTPAvailable = true
		sc.Quit()
	}
	return st
}

// ListFolders returns the names of the account's IMAP folders.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	if !c.ensureConnected(ctx) {
		return nil, &ConnError{Op: "imap list", Err: errNotConnected}
	}
	sess, err := c.pool.Get()
	if err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- sess.List("", "*", mailboxes)
	}()

	var names []string
	for mb := range mailboxes {
		names = append(names, mb.Name)
	}
	if err := <-done; err != nil {
		return nil, &ConnError{Op: "imap list", Err: err}
	}
	return names, nil
}
