package config

import "fmt"

// Provider holds the static connection parameters for a mail provider.
// Values are fixed once loaded; the client never mutates them.
type Provider struct {
	Name         string
	IMAPHost     string
	IMAPPort     int
	SMTPHost     string
	SMTPPort     int
	UseSSL       bool // implicit TLS on the IMAP connection
	UseStartTLS  bool // explicit upgrade when not already on TLS
	DraftsFolder string
}

// IMAPAddr returns the read endpoint as host:port.
func (p Provider) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", p.IMAPHost, p.IMAPPort)
}

// SMTPAddr returns the write endpoint as host:port.
func (p Provider) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", p.SMTPHost, p.SMTPPort)
}

// SMTPImplicitTLS reports whether the write endpoint expects a TLS
// connection from the first byte. Port 465 always means implicit TLS,
// whatever the STARTTLS flag says.
func (p Provider) SMTPImplicitTLS() bool {
	return p.SMTPPort == 465
}

// Settings for well-known consumer providers. A deployer selects one by
// name, or defines a custom provider entirely from the environment.
var builtinProviders = map[string]Provider{
	"gmail": {
		Name:         "gmail",
		IMAPHost:     "imap.gmail.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.gmail.com",
		SMTPPort:     587,
		UseSSL:       true,
		UseStartTLS:  true,
		DraftsFolder: "Drafts",
	},
	"outlook": {
		Name:         "outlook",
		IMAPHost:     "imap-mail.outlook.com",
		IMAPPort:     993,
		SMTPHost:     "smtp-mail.outlook.com",
		SMTPPort:     587,
		UseSSL:       true,
		UseStartTLS:  true,
		DraftsFolder: "Drafts",
	},
	"yahoo": {
		Name:         "yahoo",
		IMAPHost:     "imap.mail.yahoo.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.mail.yahoo.com",
		SMTPPort:     587,
		UseSSL:       true,
		UseStartTLS:  true,
		DraftsFolder: "Drafts",
	},
	"icloud": {
		Name:         "icloud",
		IMAPHost:     "imap.mail.me.com",
		IMAPPort:     993,
		SMTPHost:     "smtp.mail.me.com",
		SMTPPort:     587,
		UseSSL:       true,
		UseStartTLS:  true,
		DraftsFolder: "Drafts",
	},
}

// LookupProvider returns the built-in settings for a provider name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := builtinProviders[name]
	return p, ok
}

// BuiltinProviders returns the names of all built-in providers.
func BuiltinProviders() []string {
	names := make([]string, 0, len(builtinProviders))
	for name := range builtinProviders {
		names = append(names, name)
	}
	return names
}
