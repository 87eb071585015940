package security

import (
	"encoding/base64"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("Expected encryptor enabled with a key")
	}

	plaintext := `{"token":"opaque-access-token","scope":"openid read"}`
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext {
		t.Error("Ciphertext equals plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}

	// GCM nonces make every encryption distinct.
	again, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if again == ciphertext {
		t.Error("Two encryptions of the same plaintext are identical")
	}
}

func TestEncryptor_WrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	enc1, _ := NewEncryptor(key1)
	enc2, _ := NewEncryptor(key2)

	ciphertext, err := enc1.Encrypt("secret material")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("Expected decryption with the wrong key to fail")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("NewEncryptor(nil) error = %v", err)
	}
	if enc.IsEnabled() {
		t.Error("Expected encryptor disabled without a key")
	}

	out, err := enc.Encrypt("pass through")
	if err != nil || out != "pass through" {
		t.Errorf("Encrypt() = %q, %v", out, err)
	}
	out, err = enc.Decrypt("pass through")
	if err != nil || out != "pass through" {
		t.Errorf("Decrypt() = %q, %v", out, err)
	}

	var nilEnc *Encryptor
	if nilEnc.IsEnabled() {
		t.Error("Nil encryptor reports enabled")
	}
}

func TestNewEncryptor_KeyLength(t *testing.T) {
	if _, err := NewEncryptor(make([]byte, 16)); err == nil {
		t.Error("Expected 16-byte key to be rejected")
	}
	if _, err := NewEncryptor(make([]byte, 32)); err != nil {
		t.Errorf("NewEncryptor(32 bytes) error = %v", err)
	}
}

func TestEncryptor_MalformedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	if _, err := enc.Decrypt("not base64!!!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("Expected error for truncated ciphertext")
	}
}

func TestKeyFromBase64(t *testing.T) {
	key, _ := GenerateKey()
	encoded := base64.StdEncoding.EncodeToString(key)

	decoded, err := KeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("Key length = %d", len(decoded))
	}

	if _, err := KeyFromBase64("%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
	if _, err := KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("Expected error for a short key")
	}
}
