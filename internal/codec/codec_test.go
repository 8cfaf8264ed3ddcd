package codec_test

import (
	"bytes"
	"testing"

	"github.com/blockvault/blockvault/internal/codec"
)

func TestGzipCompressDecompressRoundTrip(t *testing.T) {
	c := codec.GzipCompressor{}
	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")

	var compressed bytes.Buffer
	if err := c.Compress(&compressed, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("compress: %v", err)
	}

	var out bytes.Buffer
	if err := c.Decompress(&out, &compressed); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", out.Bytes(), plaintext)
	}
}

func TestAEADEncryptDecryptRoundTrip(t *testing.T) {
	e := codec.AEADEncryptor{Passphrase: "correct horse battery staple"}
	plaintext := []byte("volume payload bytes")

	var ciphertext bytes.Buffer
	if err := e.Encrypt(&ciphertext, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	var out bytes.Buffer
	if err := e.Decrypt(&out, bytes.NewReader(ciphertext.Bytes())); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", out.Bytes(), plaintext)
	}
}

func TestAEADEncryptIsNonDeterministic(t *testing.T) {
	e := codec.AEADEncryptor{Passphrase: "secret"}
	plaintext := []byte("same plaintext every time")

	var a, b bytes.Buffer
	if err := e.Encrypt(&a, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	if err := e.Encrypt(&b, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("encrypt b: %v", err)
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestAEADDecryptRejectsWrongPassphrase(t *testing.T) {
	e := codec.AEADEncryptor{Passphrase: "right"}
	var ciphertext bytes.Buffer
	if err := e.Encrypt(&ciphertext, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wrong := codec.AEADEncryptor{Passphrase: "wrong"}
	var out bytes.Buffer
	if err := wrong.Decrypt(&out, bytes.NewReader(ciphertext.Bytes())); err == nil {
		t.Error("expected authentication failure decrypting with the wrong passphrase")
	}
}

func TestRegistryResolvesRegisteredModules(t *testing.T) {
	reg := codec.NewRegistry()
	reg.RegisterCompressor(codec.GzipCompressor{})
	reg.RegisterEncryptor(codec.AEADEncryptor{Passphrase: "x"})

	if _, ok := reg.Compressor("gz"); !ok {
		t.Error("expected gz compressor to be registered")
	}
	if _, ok := reg.Compressor("missing"); ok {
		t.Error("expected missing compressor to be absent")
	}

	if _, ok := reg.Encryptor(""); !ok {
		t.Error("expected the unencrypted module to always be registered")
	}
	if _, ok := reg.Encryptor("aes"); !ok {
		t.Error("expected aes encryptor to be registered")
	}
}

func TestNoEncryptionIsIdentity(t *testing.T) {
	var n codec.NoEncryption
	plaintext := []byte("pass-through")

	var enc bytes.Buffer
	if err := n.Encrypt(&enc, bytes.NewReader(plaintext)); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !bytes.Equal(enc.Bytes(), plaintext) {
		t.Errorf("NoEncryption.Encrypt altered the payload: got %q", enc.Bytes())
	}

	var dec bytes.Buffer
	if err := n.Decrypt(&dec, bytes.NewReader(enc.Bytes())); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(dec.Bytes(), plaintext) {
		t.Errorf("NoEncryption.Decrypt altered the payload: got %q", dec.Bytes())
	}
}
