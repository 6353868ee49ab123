// Package popup passes the login result from the OAuth popup window back to
// the window that opened it, restricted to an allowlist of origins.
package popup

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// MessageType tags each message on the wire.
type MessageType string

const (
	TypeAuthSucceeded MessageType = "salesboard:auth-succeeded"
	TypeAuthFailed    MessageType = "salesboard:auth-failed"
)

var (
	ErrOriginNotAllowed = errors.New("origin not allowed")
	ErrUnknownMessage   = errors.New("unknown popup message")
)

// Message is either AuthSucceeded or AuthFailed.
type Message interface {
	Type() MessageType
}

// AuthSucceeded carries the one-time key the opener exchanges for a session.
type AuthSucceeded struct {
	SessionKey string
}

func (AuthSucceeded) Type() MessageType { return TypeAuthSucceeded }

// AuthFailed carries an error code suitable for display.
type AuthFailed struct {
	Code string
}

func (AuthFailed) Type() MessageType { return TypeAuthFailed }

type envelope struct {
	Type       MessageType `json:"type"`
	SessionKey string      `json:"session_key,omitempty"`
	ErrorCode  string      `json:"error_code,omitempty"`
}

func toEnvelope(m Message) (envelope, error) {
	switch m := m.(type) {
	case AuthSucceeded:
		return envelope{Type: m.Type(), SessionKey: m.SessionKey}, nil
	case AuthFailed:
		return envelope{Type: m.Type(), ErrorCode: m.Code}, nil
	default:
		return envelope{}, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

// Encode returns the JSON wire form of a message.
func Encode(m Message) ([]byte, error) {
	env, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses the JSON wire form of a message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	switch env.Type {
	case TypeAuthSucceeded:
		if env.SessionKey == "" {
			return nil, fmt.Errorf("%w: missing session key", ErrUnknownMessage)
		}
		return AuthSucceeded{SessionKey: env.SessionKey}, nil
	case TypeAuthFailed:
		return AuthFailed{Code: env.ErrorCode}, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, env.Type)
	}
}

var page = template.Must(template.New("popup").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body>
<p>You can close this window.</p>
<script>
(function () {
  var message = {{.Message}};
  if (window.opener) {
    window.opener.postMessage(message, {{.TargetOrigin}});
  }
  window.close();
})();
</script>
</body>
</html>
`))

// Channel owns the allowlist and renders the page that posts a message to the opener.
type Channel struct {
	allowed map[string]struct{}
}

// NewChannel creates a channel for the given origins, such as https://app.example.com.
func NewChannel(origins []string) (*Channel, error) {
	c := &Channel{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return nil, err
		}
		c.allowed[normalized] = struct{}{}
	}
	return c, nil
}

// Allowed returns true if origin is on the allowlist.
func (c *Channel) Allowed(origin string) bool {
	normalized, err := normalizeOrigin(origin)
	if err != nil {
		return false
	}
	_, ok := c.allowed[normalized]
	return ok
}

// Render writes a page that posts m to the opener at targetOrigin and closes
// the popup. Nothing is written when the origin is not allowed.
func (c *Channel) Render(w http.ResponseWriter, targetOrigin string, m Message) error {
	if !c.Allowed(targetOrigin) {
		log.Warn().Str("origin", targetOrigin).Msg("Refusing to post popup message to origin")
		return fmt.Errorf("%w: %q", ErrOriginNotAllowed, targetOrigin)
	}

	env, err := toEnvelope(m)
	if err != nil {
		return err
	}

	origin, _ := normalizeOrigin(targetOrigin)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	return page.Execute(w, struct {
		Message      envelope
		TargetOrigin string
	}{
		Message:      env,
		TargetOrigin: origin,
	})
}

func normalizeOrigin(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		return "", fmt.Errorf("invalid origin %q: must be scheme://host[:port]", origin)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}
