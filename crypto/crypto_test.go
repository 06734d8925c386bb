package crypto_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/abiusch/penny-assistant-sub000/crypto"
)

func testKey() []byte {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("anxious")

	blob, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}

	got, err := crypto.Decrypt(key, blob)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEncrypt_UniqueNonces(t *testing.T) {
	key := testKey()
	a, err := crypto.Encrypt(key, []byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := crypto.Encrypt(key, []byte("same input"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same input produced identical blobs")
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	blob, err := crypto.Encrypt(testKey(), []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	wrong := testKey()
	wrong[0] ^= 0xff
	if _, err := crypto.Decrypt(wrong, blob); err == nil {
		t.Fatal("Decrypt succeeded with the wrong key")
	}
}

func TestDecrypt_TamperedBlobFails(t *testing.T) {
	key := testKey()
	blob, err := crypto.Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	blob[len(blob)-1] ^= 0x01
	if _, err := crypto.Decrypt(key, blob); err == nil {
		t.Fatal("Decrypt accepted a tampered blob")
	}
}

func TestDecrypt_ShortBlob(t *testing.T) {
	_, err := crypto.Decrypt(testKey(), []byte("short"))
	if !errors.Is(err, crypto.ErrCiphertextTooShort) {
		t.Fatalf("error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestBadKeySizes(t *testing.T) {
	if _, err := crypto.Encrypt([]byte("tiny"), []byte("x")); !errors.Is(err, crypto.ErrInvalidKeySize) {
		t.Errorf("Encrypt error = %v, want ErrInvalidKeySize", err)
	}
	if _, err := crypto.Decrypt([]byte("tiny"), make([]byte, 32)); !errors.Is(err, crypto.ErrInvalidKeySize) {
		t.Errorf("Decrypt error = %v, want ErrInvalidKeySize", err)
	}
	if _, err := crypto.NewCipher([]byte("tiny")); !errors.Is(err, crypto.ErrInvalidKeySize) {
		t.Errorf("NewCipher error = %v, want ErrInvalidKeySize", err)
	}
}

func TestParseMasterKey(t *testing.T) {
	hexKey := strings.Repeat("ab", crypto.KeySize)
	key, err := crypto.ParseMasterKey(" " + hexKey + "\n")
	if err != nil {
		t.Fatalf("ParseMasterKey failed: %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Errorf("key length = %d, want %d", len(key), crypto.KeySize)
	}

	for _, bad := range []string{"", "zz", strings.Repeat("ab", 16)} {
		if _, err := crypto.ParseMasterKey(bad); err == nil {
			t.Errorf("ParseMasterKey(%q) accepted a bad key", bad)
		}
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := crypto.NewCipherFromHex(strings.Repeat("0f", crypto.KeySize))
	if err != nil {
		t.Fatalf("NewCipherFromHex failed: %v", err)
	}

	blob, err := cipher.Seal([]byte("anxious"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	plain, err := cipher.Open(blob)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(plain) != "anxious" {
		t.Errorf("round trip = %q, want \"anxious\"", plain)
	}
}
