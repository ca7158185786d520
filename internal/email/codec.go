package email

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // register common charsets
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/acadmail/triaged/internal/parser"
)

// Sentinel values for messages with missing headers. Decoding never
// fails outright; the pipeline always gets a usable record.
const (
	unknownSender  = "Unknown"
	missingSubject = "No Subject"
)

var (
	lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	blankLines  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	hspace      = regexp.MustCompile(`[ \t]+`)
)

// Codec maps between raw transport messages and Email values. It is a
// pure transformation layer and performs no I/O of its own.
type Codec struct {
	html *parser.HTMLExtractor
}

// NewCodec creates a new message codec
func NewCodec() *Codec {
	return &Codec{html: parser.NewHTMLExtractor()}
}

// Decode parses a raw message into an Email. id is the session-local
// identifier the server assigned during this fetch. Malformed input
// degrades to sentinel field values; Decode never returns an error.
func (c *Codec) Decode(r io.Reader, id string) Email {
	em := Email{
		ID:      id,
		Sender:  unknownSender,
		Subject: missingSubject,
	}

	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		em.ThreadID = uuid.NewString()
		return em
	}

	h := mr.Header
	if from, err := h.Text("From"); err == nil && from != "" {
		em.Sender = from
	} else if raw := h.Get("From"); raw != "" {
		em.Sender = raw
	}
	if subject, err := h.Subject(); err == nil && subject != "" {
		em.Subject = subject
	} else if raw := h.Get("Subject"); raw != "" {
		em.Subject = raw
	}
	em.MessageID = strings.TrimSpace(h.Get("Message-Id"))
	em.References = strings.TrimSpace(h.Get("References"))
	if date, err := h.Date(); err == nil {
		em.Date = date
	}
	em.ThreadID = deriveThreadID(h)
	em.Body = c.extractBody(mr)

	return em
}

// deriveThreadID picks the conversation key: In-Reply-To, else the first
// References entry, else Message-ID, else a fresh token. Candidates are
// stripped of surrounding angle brackets.
func deriveThreadID(h mail.Header) string {
	if v := strings.TrimSpace(h.Get("In-Reply-To")); v != "" {
		return trimAngles(v)
	}
	if refs := strings.Fields(h.Get("References")); len(refs) > 0 {
		return trimAngles(refs[0])
	}
	if v := strings.TrimSpace(h.Get("Message-Id")); v != "" {
		return trimAngles(v)
	}
	return uuid.NewString()
}

// extractBody walks the MIME parts and returns normalized plain text.
// The first non-attachment text/plain part wins; with none present the
// first text/html part is tag-stripped instead.
func (c *Codec) extractBody(mr *mail.Reader) string {
	var plain, html string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// attachment
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
			if plain == "" {
				plain = string(body)
			}
		case strings.HasPrefix(mediaType, "text/html"):
			if html == "" {
				html = string(body)
			}
		}
		if plain != "" {
			break
		}
	}

	if plain != "" {
		return normalizeBody(plain)
	}
	if html != "" {
		return normalizeBody(c.html.Extract(html))
	}
	return ""
}

// normalizeBody converts CRLF to LF, collapses runs of blank lines and
// collapses horizontal whitespace.
func normalizeBody(text string) string {
	if text == "" {
		return ""
	}
	text = lineEndings.Replace(text)
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = hspace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// EncodeReply builds a reply to original as a multipart/alternative
// message with plain-text and HTML bodies. A fresh Message-ID is
// generated only when isSend is true; drafts leave it to the server or
// the mail client that eventually delivers them.
func (c *Codec) EncodeReply(original Email, replyText, senderAddr string, isSend bool) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: senderAddr}})

	recipient := ExtractAddress(original.Sender)
	if _, err := netmail.ParseAddress(recipient); err == nil {
		h.SetAddressList("To", []*mail.Address{{Address: recipient}})
	} else {
		h.Set("To", recipient)
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		subject = "Re: " + subject
	}
	h.SetSubject(subject)

	if original.MessageID != "" {
		origID := trimAngles(original.MessageID)
		h.SetMsgIDList("In-Reply-To", []string{origID})
		refs := splitMsgIDs(original.References)
		refs = append(refs, origID)
		h.SetMsgIDList("References", refs)
	}

	if isSend {
		domain := "localhost"
		if i := strings.LastIndex(senderAddr, "@"); i >= 0 && i < len(senderAddr)-1 {
			domain = senderAddr[i+1:]
		}
		h.SetMessageID(fmt.Sprintf("%s@%s", uuid.NewString(), domain))
	}

	var buf bytes.Buffer
	mw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(tw, replyText); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}
	tw.Close()

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create html part: %w", err)
	}
	if _, err := io.WriteString(hw, strings.ReplaceAll(replyText, "\n", "<br>\n")); err != nil {
		return nil, fmt.Errorf("failed to write html part: %w", err)
	}
	hw.Close()

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractAddress pulls the bare address out of a "Display Name <addr>"
// or bare-address sender string, falling back to the raw string when it
// cannot be parsed.
func ExtractAddress(sender string) string {
	if addr, err := netmail.ParseAddress(sender); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(sender)
}

func trimAngles(s string) string {
	return strings.Trim(strings.TrimSpace(s), "<>")
}

// splitMsgIDs breaks a raw References header into bare message ids.
func splitMsgIDs(refs string) []string {
	fields := strings.Fields(refs)
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if id := trimAngles(f); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
