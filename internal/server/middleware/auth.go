package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/dehublabs/predictiond/internal/crypto"
)

// maxAdminBodySize bounds admin request bodies read for signature checking.
const maxAdminBodySize = 1 << 20

// AdminAuth returns middleware that verifies the HMAC request signature on
// privileged endpoints: key, timestamp, and signature headers computed over
// timestamp+method+path+body. A nil auth passes all requests through
// (disabled; standalone deployments).
func AdminAuth(auth *crypto.RequestAuth, maxSkew time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(crypto.HeaderAPIKey)
			ts := r.Header.Get(crypto.HeaderTimestamp)
			sig := r.Header.Get(crypto.HeaderSignature)
			if key == "" || ts == "" || sig == "" {
				writeUnauthorized(w, "missing authentication headers")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxAdminBodySize))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := auth.Verify(key, ts, sig, r.Method, r.URL.Path, string(body), maxSkew); err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
