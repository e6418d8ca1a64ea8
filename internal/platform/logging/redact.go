package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// Credential shapes that can arrive in forwarded gateway headers.
var (
	jwtValue    = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`)
	schemeValue = regexp.MustCompile(`(?i)^(bearer|basic)\s+.+$`)
)

// sensitiveFields are attribute keys whose values never reach a log sink.
// The store encryption key appears under its config, struct and JSON spellings.
var sensitiveFields = []string{
	"password", "token", "api_key", "apiKey", "apikey",
	"access_token", "refresh_token", "credentials",
	"authorization", "auth", "cookie", "session",
	"encryption_key", "encryptionKey", "EncryptionKey",
}

// DefaultRedactOptions returns the masq options applied to every json and text handler.
func DefaultRedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, len(sensitiveFields)+4)
	for _, f := range sensitiveFields {
		opts = append(opts, masq.WithFieldName(f))
	}

	return append(opts,
		masq.WithFieldPrefix("secret"),
		masq.WithFieldPrefix("private"),
		masq.WithRegex(jwtValue),
		masq.WithRegex(schemeValue),
	)
}

// NewReplaceAttr returns a slog ReplaceAttr that redacts DefaultRedactOptions plus opts.
func NewReplaceAttr(opts ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(DefaultRedactOptions(), opts...)...)
}
