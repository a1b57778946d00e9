package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

var errBodyTooLarge = errors.New("security: request body exceeds limit")

// BodyLimit caps request payload size. Webhook payloads for even very large
// orders stay well under a megabyte, so anything bigger is rejected before
// HMAC verification reads it.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 for oversized payloads. The body is fully buffered
// so downstream handlers can read it again after signature verification.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Trust a declared Content-Length when present; chunked requests
		// report -1 and fall through to the buffered read.
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}

		buf, err := b.buffer(r.Body)
		switch {
		case errors.Is(err, errBodyTooLarge):
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		case err != nil:
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

// buffer drains up to one byte past the limit, catching declared lengths that
// lied as well as chunked bodies with no length at all.
func (b BodyLimit) buffer(body io.ReadCloser) ([]byte, error) {
	defer func() { _ = body.Close() }()
	buf, err := io.ReadAll(io.LimitReader(body, b.Max+1))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(len(buf)) > b.Max {
		return nil, errBodyTooLarge
	}
	return buf, nil
}
