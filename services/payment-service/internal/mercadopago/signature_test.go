package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signManifest(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	secret := "topsecret"
	v1 := signManifest(secret, "id:12345;request-id:req-1;ts:1704908010;")
	header := "ts=1704908010,v1=" + v1

	if !ValidSignature(secret, "12345", "req-1", header) {
		t.Fatal("expected valid signature")
	}
	// Data id is lowercased before signing.
	if !ValidSignature(secret, "12345", "req-1", "ts=1704908010, v1="+v1) {
		t.Fatal("expected valid signature with spaced header")
	}
}

func TestValidSignatureUppercaseID(t *testing.T) {
	secret := "topsecret"
	v1 := signManifest(secret, "id:abc123;request-id:req-1;ts:99;")
	if !ValidSignature(secret, "ABC123", "req-1", "ts=99,v1="+v1) {
		t.Fatal("expected id to be lowercased before signing")
	}
}

func TestValidSignatureRejects(t *testing.T) {
	secret := "topsecret"
	v1 := signManifest(secret, "id:12345;request-id:req-1;ts:1704908010;")

	if ValidSignature("wrong", "12345", "req-1", "ts=1704908010,v1="+v1) {
		t.Fatal("wrong secret accepted")
	}
	if ValidSignature(secret, "54321", "req-1", "ts=1704908010,v1="+v1) {
		t.Fatal("wrong payment id accepted")
	}
	if ValidSignature(secret, "12345", "req-1", "ts=1704908011,v1="+v1) {
		t.Fatal("tampered timestamp accepted")
	}
	if ValidSignature(secret, "12345", "req-1", "") {
		t.Fatal("empty header accepted")
	}
	if ValidSignature(secret, "12345", "req-1", "v1="+v1) {
		t.Fatal("header missing ts accepted")
	}
}

func TestValidSignatureOmitsEmptyFields(t *testing.T) {
	secret := "topsecret"
	// No request id: the manifest drops the request-id segment entirely.
	v1 := signManifest(secret, "id:777;ts:42;")
	if !ValidSignature(secret, "777", "", "ts=42,v1="+v1) {
		t.Fatal("expected valid signature without request id")
	}
}
