package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// Purpose scopes SMTP password ciphertexts. It is bound into the ciphertext
// as GCM additional data, so a blob protected for one purpose will not
// unprotect under another.
const Purpose = "ITWebsiteMonitor.SmtpPassword.v1"

const (
	saltSize    = 16
	nonceSize   = 12
	keySize     = 32
	iterations  = 100000
	keyFileName = "protector.key"
)

var ErrProtector = errors.New("protector failure")

// Protector is an AES-256-GCM encryptor keyed by a PBKDF2-stretched master
// key stored next to the database. Opaque format: base64(salt|nonce|ct).
type Protector struct {
	master  []byte
	purpose string
}

// NewProtector loads the master key from dataRoot, creating it on first use.
func NewProtector(dataRoot, purpose string) (*Protector, error) {
	path := filepath.Join(dataRoot, keyFileName)
	master, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		master = make([]byte, keySize)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generate master key: %w", err)
		}
		if err := os.MkdirAll(dataRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create data root: %w", err)
		}
		if err := os.WriteFile(path, master, 0o600); err != nil {
			return nil, fmt.Errorf("write master key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	if len(master) < keySize {
		return nil, fmt.Errorf("%w: master key too short", ErrProtector)
	}
	return &Protector{master: master, purpose: purpose}, nil
}

func (p *Protector) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(p.master, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

func (p *Protector) Protect(plain string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	gcm, err := p.gcm(salt)
	if err != nil {
		return "", err
	}

	ct := gcm.Seal(nil, nonce, []byte(plain), []byte(p.purpose))
	blob := make([]byte, 0, saltSize+nonceSize+len(ct))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

func (p *Protector) Unprotect(opaque string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrProtector, err)
	}
	if len(blob) < saltSize+nonceSize {
		return "", fmt.Errorf("%w: blob too short", ErrProtector)
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ct := blob[saltSize+nonceSize:]

	gcm, err := p.gcm(salt)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ct, []byte(p.purpose))
	if err != nil {
		return "", fmt.Errorf("%w: open: %v", ErrProtector, err)
	}
	return string(plain), nil
}
