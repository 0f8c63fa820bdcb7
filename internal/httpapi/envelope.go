package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/relaysync/relaysync-api/internal/config"
	"github.com/relaysync/relaysync-api/internal/protocol"
)

// Envelope is the result of parsing a request's query parameters, headers,
// and body, before any request-type-specific body schema is applied.
type Envelope struct {
	Type     string
	Key      string
	Email    string
	Password string
	Body     []byte
}

// maxBodyBytes bounds the request body the envelope will read, independent
// of any per-field validation — a defensive cap on an otherwise-unbounded
// io.Reader.
const maxBodyBytes = 1 << 20 // 1 MiB

// ParseEnvelope applies the transport-level rules in order: key presence
// and allow-list membership, the type value, the email/password presence
// rule (required for every type except baseDataDown), and Content-Type for
// a non-empty body. It does not validate
// the request-type-specific body schema — handlers do that via
// protocol.DecodeStrict once they know which schema applies.
func ParseEnvelope(r *http.Request, cfg *config.Config) (*Envelope, protocol.ErrorCode) {
	q := r.URL.Query()

	env := &Envelope{
		Type:     strings.TrimSpace(q.Get("type")),
		Key:      q.Get("key"),
		Email:    q.Get("email"),
		Password: q.Get("password"),
	}

	if env.Key == "" {
		return nil, protocol.MalformedRequest
	}
	if !cfg.HasKey(env.Key) {
		return nil, protocol.InvalidKey
	}

	if env.Type == "" || env.Type == "None" || !protocol.ValidRequestType(env.Type) {
		return nil, protocol.MalformedRequest
	}

	if protocol.RequestType(env.Type) != protocol.TypeBaseDataDown {
		if env.Email == "" || env.Password == "" {
			return nil, protocol.MalformedRequest
		}
	}

	body, code := readBody(r)
	if code != protocol.Success {
		return nil, code
	}
	env.Body = body

	return env, protocol.Success
}

func readBody(r *http.Request) ([]byte, protocol.ErrorCode) {
	if r.ContentLength == 0 && r.Body == nil {
		return nil, protocol.Success
	}

	limited := io.LimitReader(r.Body, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, protocol.MalformedRequest
	}
	if len(body) == 0 {
		return nil, protocol.Success
	}
	if len(body) > maxBodyBytes {
		return nil, protocol.MalformedRequest
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return nil, protocol.MalformedRequest
	}

	return body, protocol.Success
}
