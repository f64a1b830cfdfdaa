package crypto_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dehublabs/predictiond/internal/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := crypto.EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := crypto.DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("round trip = %s, want %s", got, testKeyHex)
	}

	if _, err := crypto.DecryptKey(blob, "wrong"); err == nil {
		t.Error("decrypt succeeded with wrong password")
	}
}

func TestLoadKeyRawPrecedence(t *testing.T) {
	got, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("loaded = %s, want %s", got, testKeyHex)
	}

	if _, err := crypto.LoadKey(crypto.KeyConfig{}); err == nil {
		t.Error("empty config accepted")
	}
	if _, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: "zz"}); err == nil {
		t.Error("non-hex key accepted")
	}
}

func TestIdentityAddress(t *testing.T) {
	id, err := crypto.NewIdentity(testKeyHex)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	// Well-known address for this widely published test key.
	want := "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	if !strings.EqualFold(id.Address().Hex(), want) {
		t.Errorf("address = %s, want %s", id.Address().Hex(), want)
	}
}

func TestRequestAuthVerify(t *testing.T) {
	auth := &crypto.RequestAuth{Key: "ops-key", Secret: "s3cret"}
	const now = int64(1_700_000_000)

	h := auth.HeadersAt("POST", "/api/admin/pause", "", now)
	if err := auth.VerifyAt(h[crypto.HeaderAPIKey], h[crypto.HeaderTimestamp], h[crypto.HeaderSignature],
		"POST", "/api/admin/pause", "", time.Minute, now+5); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Tampered path.
	if err := auth.VerifyAt(h[crypto.HeaderAPIKey], h[crypto.HeaderTimestamp], h[crypto.HeaderSignature],
		"POST", "/api/admin/resume", "", time.Minute, now+5); err == nil {
		t.Error("tampered path accepted")
	}
	// Replay outside the skew window.
	if err := auth.VerifyAt(h[crypto.HeaderAPIKey], h[crypto.HeaderTimestamp], h[crypto.HeaderSignature],
		"POST", "/api/admin/pause", "", time.Minute, now+3600); err == nil {
		t.Error("stale timestamp accepted")
	}
	// Wrong key.
	if err := auth.VerifyAt("other", h[crypto.HeaderTimestamp], h[crypto.HeaderSignature],
		"POST", "/api/admin/pause", "", time.Minute, now+5); err == nil {
		t.Error("unknown key accepted")
	}
}
