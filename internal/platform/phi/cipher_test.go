package phi

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
)

func generateTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewFieldCipher(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		c, err := NewFieldCipher(generateTestKey(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil {
			t.Fatal("expected non-nil cipher")
		}
	})

	t.Run("key too short", func(t *testing.T) {
		if _, err := NewFieldCipher(make([]byte, 16)); err == nil {
			t.Fatal("expected error for 16-byte key")
		}
	})
}

func TestNewFieldCipherFromHex(t *testing.T) {
	c, err := NewFieldCipherFromHex("")
	if err != nil || c != nil {
		t.Fatalf("expected nil cipher for empty key, got %v, %v", c, err)
	}

	if _, err := NewFieldCipherFromHex("not-hex"); err == nil {
		t.Error("expected error for invalid hex")
	}

	c, err = NewFieldCipherFromHex(hex.EncodeToString(generateTestKey(t)))
	if err != nil || c == nil {
		t.Fatalf("expected cipher, got %v, %v", c, err)
	}
}

func TestSealOpen(t *testing.T) {
	c, err := NewFieldCipher(generateTestKey(t))
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	cases := []string{
		"Generalized anxiety disorder, 2019",
		"unicode: é ñ 中文",
		strings.Repeat("long history ", 500),
	}
	for _, plaintext := range cases {
		sealed, err := c.Seal(plaintext)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if !IsSealed(sealed) {
			t.Errorf("expected sealed prefix, got %q", sealed[:10])
		}
		if strings.Contains(sealed, plaintext) {
			t.Error("ciphertext contains plaintext")
		}

		opened, err := c.Open(sealed)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if opened != plaintext {
			t.Errorf("round trip mismatch: got %q", opened)
		}
	}
}

func TestSeal_UniqueNonce(t *testing.T) {
	c, _ := NewFieldCipher(generateTestKey(t))
	a, _ := c.Seal("same")
	b, _ := c.Seal("same")
	if a == b {
		t.Error("expected different ciphertexts for the same plaintext")
	}
}

func TestSeal_EmptyStaysEmpty(t *testing.T) {
	c, _ := NewFieldCipher(generateTestKey(t))
	sealed, err := c.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("expected empty, got %q, %v", sealed, err)
	}
}

func TestOpen_PlaintextPassthrough(t *testing.T) {
	c, _ := NewFieldCipher(generateTestKey(t))
	got, err := c.Open("legacy value")
	if err != nil || got != "legacy value" {
		t.Errorf("expected passthrough, got %q, %v", got, err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	c1, _ := NewFieldCipher(generateTestKey(t))
	c2, _ := NewFieldCipher(generateTestKey(t))

	sealed, _ := c1.Seal("secret")
	if _, err := c2.Open(sealed); err == nil {
		t.Error("expected error opening with wrong key")
	}
}

func TestNilCipher(t *testing.T) {
	var c *FieldCipher
	sealed, err := c.Seal("plain")
	if err != nil || sealed != "plain" {
		t.Errorf("expected nil cipher passthrough, got %q, %v", sealed, err)
	}

	real, _ := NewFieldCipher(generateTestKey(t))
	enc, _ := real.Seal("x")
	if _, err := c.Open(enc); err == nil {
		t.Error("expected error opening sealed value without a key")
	}
}
