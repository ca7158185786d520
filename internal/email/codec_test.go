package email

import (
	"regexp"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const msgPlain = "From: Alice Author <alice@uni.example>\r\n" +
	"To: agent@example.com\r\n" +
	"Subject: Meeting request\r\n" +
	"Message-Id: <orig-1@uni.example>\r\n" +
	"Date: Mon, 02 Jun 2025 10:04:05 +0200\r\n" +
	"In-Reply-To: <parent-1@uni.example>\r\n" +
	"References: <root-1@uni.example> <parent-1@uni.example>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello,\r\n\r\n\r\nCould we    meet on Friday?\r\n"

func TestDecodePlainMessage(t *testing.T) {
	c := NewCodec()
	em := c.Decode(strings.NewReader(msgPlain), "42")

	assert.Equal(t, "42", em.ID)
	assert.Equal(t, "Alice Author <alice@uni.example>", em.Sender)
	assert.Equal(t, "Meeting request", em.Subject)
	assert.Equal(t, "<orig-1@uni.example>", em.MessageID)
	assert.Equal(t, "<root-1@uni.example> <parent-1@uni.example>", em.References)
	assert.Equal(t, "Hello,\n\nCould we meet on Friday?", em.Body)
	assert.Equal(t, 2025, em.Date.Year())
}

func TestDecodeIdempotent(t *testing.T) {
	c := NewCodec()
	first := c.Decode(strings.NewReader(msgPlain), "7")
	second := c.Decode(strings.NewReader(msgPlain), "7")
	assert.Equal(t, first, second)
}

func TestThreadIDPrecedence(t *testing.T) {
	// In-Reply-To wins over References even when they disagree.
	c := NewCodec()
	em := c.Decode(strings.NewReader(msgPlain), "1")
	assert.Equal(t, "parent-1@uni.example", em.ThreadID)
}

func TestThreadIDFallbackChain(t *testing.T) {
	c := NewCodec()

	t.Run("references when no in-reply-to", func(t *testing.T) {
		raw := "From: a@x\r\nReferences: <root@x> <next@x>\r\n\r\nhi\r\n"
		em := c.Decode(strings.NewReader(raw), "1")
		assert.Equal(t, "root@x", em.ThreadID)
	})

	t.Run("message-id when no threading headers", func(t *testing.T) {
		raw := "From: a@x\r\nMessage-Id: <abc@x>\r\n\r\nhi\r\n"
		em := c.Decode(strings.NewReader(raw), "1")
		assert.Equal(t, "abc@x", em.ThreadID)
	})

	t.Run("generated when nothing available", func(t *testing.T) {
		raw := "From: a@x\r\n\r\nhi\r\n"
		first := c.Decode(strings.NewReader(raw), "1")
		second := c.Decode(strings.NewReader(raw), "2")
		assert.NotEmpty(t, first.ThreadID)
		assert.NotEmpty(t, second.ThreadID)
		assert.NotEqual(t, first.ThreadID, second.ThreadID)
	})
}

func TestDecodeMultipartPrefersPlain(t *testing.T) {
	raw := "From: b@x\r\n" +
		"Subject: s\r\n" +
		"Content-Type: multipart/alternative; boundary=\"BOUND\"\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>HTML version</p>\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--BOUND--\r\n"

	em := NewCodec().Decode(strings.NewReader(raw), "1")
	assert.Equal(t, "plain version", em.Body)
}

func TestDecodeSkipsAttachments(t *testing.T) {
	raw := "From: b@x\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BOUND\"\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"\r\n" +
		"attached notes\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"the real body\r\n" +
		"--BOUND--\r\n"

	em := NewCodec().Decode(strings.NewReader(raw), "1")
	assert.Equal(t, "the real body", em.Body)
}

func TestDecodeHTMLFallback(t *testing.T) {
	raw := "From: b@x\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style><title>Notice</title></head>" +
		"<body><script>var tracked = 1;</script>" +
		"<p>Dear student,</p><p>See the syllabus.</p></body></html>\r\n"

	em := NewCodec().Decode(strings.NewReader(raw), "1")
	assert.Contains(t, em.Body, "Dear student,")
	assert.Contains(t, em.Body, "See the syllabus.")
	assert.NotContains(t, em.Body, "var tracked")
	assert.NotContains(t, em.Body, "color:red")
	assert.NotContains(t, em.Body, "Notice")
}

func TestDecodeMalformedNeverFails(t *testing.T) {
	em := NewCodec().Decode(strings.NewReader("\x00\x01 not a message"), "9")
	assert.Equal(t, "9", em.ID)
	assert.Equal(t, "Unknown", em.Sender)
	assert.Equal(t, "No Subject", em.Subject)
	assert.NotEmpty(t, em.ThreadID)
}

func TestDecodeMissingHeaders(t *testing.T) {
	em := NewCodec().Decode(strings.NewReader("\r\nJust text\r\n"), "3")
	assert.Equal(t, "Unknown", em.Sender)
	assert.Equal(t, "No Subject", em.Subject)
	assert.Equal(t, "Just text", em.Body)
	assert.NotEmpty(t, em.ThreadID)
}

func TestNormalizeBody(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"mac line endings", "a\rb", "a\nb"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"tabs and spaces", "a \t  b", "a b"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeBody(tc.in))
		})
	}
}

func decodeReply(t *testing.T, raw []byte) *mail.Reader {
	t.Helper()
	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	require.NoError(t, err)
	return mr
}

func TestEncodeReplySubjectIdempotent(t *testing.T) {
	c := NewCodec()

	cases := []struct {
		subject string
		want    string
	}{
		{"Meeting", "Re: Meeting"},
		{"Re: Meeting", "Re: Meeting"},
		{"RE: Meeting", "RE: Meeting"},
		{"re: Meeting", "re: Meeting"},
	}
	for _, tc := range cases {
		raw, err := c.EncodeReply(Email{Sender: "a@x", Subject: tc.subject}, "ok", "agent@example.com", false)
		require.NoError(t, err)
		subject, err := decodeReply(t, raw).Header.Subject()
		require.NoError(t, err)
		assert.Equal(t, tc.want, subject)
	}
}

func TestEncodeReplyMessageID(t *testing.T) {
	c := NewCodec()
	original := Email{Sender: "alice@uni.example", Subject: "Hi"}

	t.Run("draft omits message-id", func(t *testing.T) {
		raw, err := c.EncodeReply(original, "ok", "agent@example.com", false)
		require.NoError(t, err)
		assert.Empty(t, decodeReply(t, raw).Header.Get("Message-Id"))
	})

	t.Run("send generates message-id", func(t *testing.T) {
		raw, err := c.EncodeReply(original, "ok", "agent@example.com", true)
		require.NoError(t, err)
		id := decodeReply(t, raw).Header.Get("Message-Id")
		assert.Regexp(t, regexp.MustCompile(`^<[^@<>]+@example\.com>$`), id)
	})
}

func TestEncodeReplyThreadingHeaders(t *testing.T) {
	c := NewCodec()
	original := Email{
		Sender:     "alice@uni.example",
		Subject:    "Hi",
		MessageID:  "<orig-1@uni.example>",
		References: "<root@uni.example> <parent@uni.example>",
	}

	raw, err := c.EncodeReply(original, "ok", "agent@example.com", false)
	require.NoError(t, err)
	h := decodeReply(t, raw).Header

	assert.Equal(t, "<orig-1@uni.example>", h.Get("In-Reply-To"))
	assert.Equal(t, "<root@uni.example> <parent@uni.example> <orig-1@uni.example>",
		h.Get("References"))
}

func TestEncodeReplyNoThreadingWithoutMessageID(t *testing.T) {
	raw, err := NewCodec().EncodeReply(Email{Sender: "a@x", Subject: "Hi"}, "ok", "agent@example.com", false)
	require.NoError(t, err)
	h := decodeReply(t, raw).Header
	assert.Empty(t, h.Get("In-Reply-To"))
	assert.Empty(t, h.Get("References"))
}

func TestEncodeReplyRecipient(t *testing.T) {
	raw, err := NewCodec().EncodeReply(
		Email{Sender: `"Bob Builder" <bob@uni.example>`, Subject: "Hi"},
		"ok", "agent@example.com", false)
	require.NoError(t, err)

	to, err := decodeReply(t, raw).Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "bob@uni.example", to[0].Address)
}

func TestEncodeReplyBodyParts(t *testing.T) {
	replyText := "First line\nSecond line"
	raw, err := NewCodec().EncodeReply(Email{Sender: "a@x", Subject: "Hi"}, replyText, "agent@example.com", false)
	require.NoError(t, err)

	// The reply must round-trip through our own decoder back to the
	// plain-text part.
	em := NewCodec().Decode(strings.NewReader(string(raw)), "1")
	assert.Equal(t, "First line\nSecond line", em.Body)

	assert.Contains(t, string(raw), "<br>")
	assert.Contains(t, string(raw), "multipart/alternative")
}

func TestExtractAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice Author <alice@uni.example>", "alice@uni.example"},
		{`"Bob; the Builder" <bob@uni.example>`, "bob@uni.example"},
		{"carol@uni.example", "carol@uni.example"},
		{"not an address", "not an address"},
		{"  spaced@uni.example  ", "spaced@uni.example"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractAddress(tc.in), "input %q", tc.in)
	}
}
