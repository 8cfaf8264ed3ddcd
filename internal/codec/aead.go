package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// saltSize is the length of the random per-payload Argon2id salt (the
// nonce length comes from the chacha20poly1305 package); the salt is
// stored alongside the ciphertext so decryption can
// re-derive the same key without the passphrase ever touching disk.
const (
	saltSize = 16
)

// AEADEncryptor encrypts each payload with XChaCha20-Poly1305, keyed by
// Argon2id over a caller-supplied passphrase and a random per-payload
// salt. Every call to Encrypt uses a fresh salt and nonce, so the same
// plaintext never produces the same ciphertext twice.
type AEADEncryptor struct {
	Passphrase string
}

func (e AEADEncryptor) Name() string { return "aes" }

func (e AEADEncryptor) Encrypt(dst io.Writer, src io.Reader) error {
	plaintext, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read plaintext: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	aead, err := e.newAEAD(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	if _, err := dst.Write(salt); err != nil {
		return fmt.Errorf("write salt: %w", err)
	}
	if _, err := dst.Write(nonce); err != nil {
		return fmt.Errorf("write nonce: %w", err)
	}
	if _, err := dst.Write(ciphertext); err != nil {
		return fmt.Errorf("write ciphertext: %w", err)
	}
	return nil
}

func (e AEADEncryptor) Decrypt(dst io.Writer, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read ciphertext: %w", err)
	}
	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return fmt.Errorf("encrypted payload too short")
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := data[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := e.newAEAD(salt)
	if err != nil {
		return err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decrypt: authentication failed: %w", err)
	}
	if _, err := dst.Write(plaintext); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}

func (e AEADEncryptor) newAEAD(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(e.Passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead, nil
}
