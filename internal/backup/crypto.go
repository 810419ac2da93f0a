package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Snapshots are sealed as
//
//	magic | salt | nonce | AES-256-GCM ciphertext
//
// with the magic bound into the GCM tag as additional data.
var magic = []byte("RBK1")

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// Argon2id cost parameters.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

var (
	ErrNotSnapshot = errors.New("not an encrypted snapshot")
	ErrBadKey      = errors.New("wrong passphrase or corrupted snapshot")
)

func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keySize)
}

func aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a snapshot under passphrase. Every call draws a new salt and
// nonce.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	header := make([]byte, len(magic)+saltSize+nonceSize)
	copy(header, magic)
	if _, err := rand.Read(header[len(magic):]); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	salt := header[len(magic) : len(magic)+saltSize]
	nonce := header[len(magic)+saltSize:]

	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return gcm.Seal(header, nonce, plaintext, magic), nil
}

func Decrypt(sealed []byte, passphrase string) ([]byte, error) {
	rest, ok := bytes.CutPrefix(sealed, magic)
	if !ok || len(rest) < saltSize+nonceSize {
		return nil, ErrNotSnapshot
	}
	salt, nonce, body := rest[:saltSize], rest[saltSize:saltSize+nonceSize], rest[saltSize+nonceSize:]

	gcm, err := aead(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, body, magic)
	if err != nil {
		return nil, ErrBadKey
	}
	return plaintext, nil
}
