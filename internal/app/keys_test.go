package app

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func TestDecodeKeyHex(t *testing.T) {
	hexKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	decoded, err := DecodeKey(hexKey)
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}

	expected, _ := hex.DecodeString(hexKey)
	if string(decoded) != string(expected) {
		t.Fatal("decoded bytes don't match expected hex decoding")
	}
}

func TestDecodeKeyBase64Variants(t *testing.T) {
	rawKey := make([]byte, 32)
	for i := range rawKey {
		rawKey[i] = byte(250 - i)
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		decoded, err := DecodeKey(enc.EncodeToString(rawKey))
		if err != nil {
			t.Fatalf("DecodeKey failed: %v", err)
		}
		if string(decoded) != string(rawKey) {
			t.Fatal("decoded bytes don't match expected base64 decoding")
		}
	}
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	if _, err := DecodeKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := DecodeKey("not a key!!"); err == nil {
		t.Fatal("expected error for undecodable key")
	}
}

func TestDocumentSigningKeyFromSeed(t *testing.T) {
	seed := strings.Repeat("ab", ed25519.SeedSize)
	key, err := DocumentSigningKey(seed)
	if err != nil {
		t.Fatalf("DocumentSigningKey failed: %v", err)
	}

	msg := []byte("waiver digest")
	sig := ed25519.Sign(key, msg)
	if !ed25519.Verify(key.Public().(ed25519.PublicKey), msg, sig) {
		t.Fatal("expected signature to verify")
	}

	again, _ := DocumentSigningKey(seed)
	if KeyFingerprint(key.Public().(ed25519.PublicKey)) != KeyFingerprint(again.Public().(ed25519.PublicKey)) {
		t.Fatal("expected fingerprint to be stable for the same seed")
	}
	if len(KeyFingerprint(key.Public().(ed25519.PublicKey))) != 16 {
		t.Fatal("expected 16 character fingerprint")
	}
}

func TestDocumentSigningKeyRejectsWrongLength(t *testing.T) {
	if _, err := DocumentSigningKey(strings.Repeat("ab", 16)); err == nil {
		t.Fatal("expected error for 16 byte key")
	}
}
