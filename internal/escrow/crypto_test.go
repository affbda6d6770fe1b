package escrow

import (
	"errors"
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	secret := "SCZANGBA5YHTNYVVV4C3U252E2B6P6F5T3U6MM63WBSBZATAQI3EBTQ4"
	blob, err := c.Encrypt(secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != secret {
		t.Errorf("round trip = %q, want %q", got, secret)
	}
}

func TestCipherEncoding(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	blob, err := c.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		t.Fatalf("blob has %d parts, want 3 (iv:tag:ciphertext)", len(parts))
	}
	if len(parts[0]) != 24 {
		t.Errorf("iv hex length = %d, want 24 (12 bytes)", len(parts[0]))
	}
	if len(parts[1]) != 32 {
		t.Errorf("tag hex length = %d, want 32 (16 bytes)", len(parts[1]))
	}
}

func TestCipherUniqueIVs(t *testing.T) {
	c, _ := NewCipher("test-secret")

	a, _ := c.Encrypt("same plaintext")
	b, _ := c.Encrypt("same plaintext")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestCipherDetectsTampering(t *testing.T) {
	c, _ := NewCipher("test-secret")

	blob, _ := c.Encrypt("credential")
	parts := strings.Split(blob, ":")

	// Flip a ciphertext nibble.
	ct := []byte(parts[2])
	if ct[0] == 'a' {
		ct[0] = 'b'
	} else {
		ct[0] = 'a'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(ct)

	if _, err := c.Decrypt(tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt(tampered) = %v, want ErrDecryptionFailed", err)
	}
}

func TestCipherWrongKey(t *testing.T) {
	a, _ := NewCipher("secret-a")
	b, _ := NewCipher("secret-b")

	blob, _ := a.Encrypt("credential")
	if _, err := b.Decrypt(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt with wrong key = %v, want ErrDecryptionFailed", err)
	}
}

func TestCipherMalformedBlob(t *testing.T) {
	c, _ := NewCipher("test-secret")

	for _, blob := range []string{
		"",
		"onlyonepart",
		"two:parts",
		"zz:zz:zz",
		"deadbeef:deadbeef:deadbeef",
	} {
		if _, err := c.Decrypt(blob); !errors.Is(err, ErrMalformedCredential) {
			t.Errorf("Decrypt(%q) = %v, want ErrMalformedCredential", blob, err)
		}
	}
}
