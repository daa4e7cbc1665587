package yoco

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","type":"payment.succeeded","payload":{"id":"co_1","amount":11800}}`)

	if !VerifySignature(body, sign(body, secret), secret) {
		t.Fatal("valid signature rejected")
	}
	if !VerifySignature(body, "sha256="+sign(body, secret), secret) {
		t.Fatal("valid prefixed signature rejected")
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1","payload":{"amount":11800}}`)
	sig := sign(body, secret)

	tampered := []byte(`{"id":"evt_1","payload":{"amount":10000}}`)
	if VerifySignature(tampered, sig, secret) {
		t.Fatal("tampered body accepted")
	}
}

func TestVerifySignature_Rejects(t *testing.T) {
	body := []byte(`{}`)
	if VerifySignature(body, "", "secret") {
		t.Error("empty header accepted")
	}
	if VerifySignature(body, sign(body, "secret"), "") {
		t.Error("empty secret accepted")
	}
	if VerifySignature(body, "not-hex!", "secret") {
		t.Error("non-hex header accepted")
	}
	if VerifySignature(body, sign(body, "other-secret"), "secret") {
		t.Error("signature from wrong secret accepted")
	}
}
