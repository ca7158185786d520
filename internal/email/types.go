package email

import "time"

// Email is the normalized form of a fetched message. It is the contract
// consumed by the triage pipeline and is read-only once decoded.
type Email struct {
	// ID is the session-local identifier assigned by the server for
	// this fetch. It is only meaningful within the same read session.
	ID string

	// ThreadID groups the message with its conversation. Derived from
	// In-Reply-To, else the first References entry, else Message-ID,
	// else a freshly generated token. Never empty.
	ThreadID string

	// MessageID and References carry the raw threading header values,
	// used to build well-formed replies.
	MessageID  string
	References string

	Sender  string
	Subject string

	// Body is plain text with normalized whitespace. HTML sources are
	// tag-stripped before normalization.
	Body string

	Date time.Time
}
