package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names for HMAC-authenticated admin requests.
const (
	HeaderAPIKey    = "X-Prediction-Api-Key"
	HeaderTimestamp = "X-Prediction-Timestamp"
	HeaderSignature = "X-Prediction-Signature"
)

// RequestAuth signs and verifies admin API requests. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64; the
// timestamp bounds replay.
type RequestAuth struct {
	Key    string // API key identifying the caller
	Secret string // shared HMAC secret
}

// Headers returns the HTTP headers for an authenticated request.
func (a *RequestAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (a *RequestAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderAPIKey:    a.Key,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(a.Secret), ts+method+path+body),
	}
}

// Verify checks a presented key, timestamp and signature against the expected
// credentials. maxSkew bounds how far the timestamp may drift from now in
// either direction.
func (a *RequestAuth) Verify(key, ts, sig, method, path, body string, maxSkew time.Duration) error {
	return a.verifyAt(key, ts, sig, method, path, body, maxSkew, time.Now().Unix())
}

func (a *RequestAuth) verifyAt(key, ts, sig, method, path, body string, maxSkew time.Duration, nowUnix int64) error {
	if subtleCompare(key, a.Key) == false {
		return fmt.Errorf("crypto: unknown api key")
	}
	unixTS, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: bad timestamp %q", ts)
	}
	skew := nowUnix - unixTS
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > maxSkew {
		return fmt.Errorf("crypto: timestamp outside allowed skew")
	}
	want := hmacSHA256Base64([]byte(a.Secret), ts+method+path+body)
	if !subtleCompare(sig, want) {
		return fmt.Errorf("crypto: signature mismatch")
	}
	return nil
}

// VerifyAt is the deterministic-clock variant of Verify for tests.
func (a *RequestAuth) VerifyAt(key, ts, sig, method, path, body string, maxSkew time.Duration, nowUnix int64) error {
	return a.verifyAt(key, ts, sig, method, path, body, maxSkew, nowUnix)
}

// String returns a redacted representation suitable for logging.
func (a *RequestAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("RequestAuth{key=%s, secret=%s}", redact(a.Key), redact(a.Secret))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// subtleCompare is constant-time string equality.
func subtleCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
