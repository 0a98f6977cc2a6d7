package seal

import (
	"encoding/base64"
	"strings"
	"testing"
)

const rawKey = "0123456789abcdef0123456789abcdef"

func TestSealRoundTrip(t *testing.T) {
	s, err := NewSealer(rawKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal("APP_USR-token-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "APP_USR-token-123" {
		t.Fatalf("Open = %q", got)
	}
}

func TestSealNonceIsRandom(t *testing.T) {
	s, _ := NewSealer(rawKey)
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if string(a) == string(b) {
		t.Fatal("two seals of the same plaintext must differ")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, _ := NewSealer(rawKey)
	sealed, _ := s.Seal("secret")
	sealed[len(sealed)-1] ^= 0x01
	if _, err := s.Open(sealed); err == nil {
		t.Fatal("tampered ciphertext opened")
	}
	if _, err := s.Open(sealed[:4]); err == nil {
		t.Fatal("truncated ciphertext opened")
	}
}

func TestNewSealerKeyFormats(t *testing.T) {
	if _, err := NewSealer(base64.StdEncoding.EncodeToString([]byte(rawKey))); err != nil {
		t.Fatalf("base64 key rejected: %v", err)
	}
	if _, err := NewSealer(""); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, err := NewSealer("short"); err == nil {
		t.Fatal("short key accepted")
	}
	if _, err := NewSealer(strings.Repeat("x", 33)); err == nil {
		t.Fatal("oversized raw key accepted")
	}
}

func TestOpenWrongKey(t *testing.T) {
	a, _ := NewSealer(rawKey)
	b, _ := NewSealer(strings.Repeat("y", 32))
	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); err == nil {
		t.Fatal("ciphertext opened with the wrong key")
	}
}
