package providers

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidCredentialsKey = errors.New("invalid_credentials_key")
	ErrCredentialsCorrupted  = errors.New("credentials_corrupted")
)

// CredentialStore returns decrypted credentials for a linked account.
// The pipeline decrypts at use time and never persists plaintext.
type CredentialStore interface {
	Get(ctx context.Context, linkedAccountID snowflake.ID, sealed []byte) (Credentials, error)
}

// AESCredentialStore seals credential payloads with AES-256-GCM.
type AESCredentialStore struct {
	key []byte
}

// NewAESCredentialStore parses a hex-encoded 32-byte key.
func NewAESCredentialStore(hexKey string) (*AESCredentialStore, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidCredentialsKey
	}
	return &AESCredentialStore{key: key}, nil
}

// Seal encrypts a credential payload for storage on a linked account.
func (s *AESCredentialStore) Seal(credentials Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return nil, err
	}
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Get decrypts the sealed blob stored on the linked account.
func (s *AESCredentialStore) Get(_ context.Context, _ snowflake.ID, sealed []byte) (Credentials, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrCredentialsCorrupted
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCredentialsCorrupted
	}
	var credentials Credentials
	if err := json.Unmarshal(plaintext, &credentials); err != nil {
		return nil, ErrCredentialsCorrupted
	}
	return credentials, nil
}

func (s *AESCredentialStore) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
