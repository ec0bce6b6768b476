package session

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// SealedStorage encrypts every value with an age X25519 identity before
// handing it to the inner storage. Ciphertext is stored base64-encoded.
type SealedStorage struct {
	inner     Storage
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

func NewSealedStorage(inner Storage, identity *age.X25519Identity) (*SealedStorage, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner storage is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("age identity is required")
	}
	return &SealedStorage{
		inner:     inner,
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

func (s *SealedStorage) Get(key string) (string, error) {
	sealed, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed %s: %w", key, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", key, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted %s: %w", key, err)
	}
	return string(plain), nil
}

func (s *SealedStorage) Set(key, value string) error {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, value); err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize encryption of %s: %w", key, err)
	}
	return s.inner.Set(key, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func (s *SealedStorage) Delete(key string) error {
	return s.inner.Delete(key)
}

// LoadOrCreateIdentity reads an age identity file (AGE-SECRET-KEY-1...
// line, comments allowed). A missing file is created with a fresh
// identity, mode 0600.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("identity file path is required")
	}

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		return readIdentity(f, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open identity file: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir identity dir: %w", err)
	}
	content := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient(), identity)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return identity, nil
}

func readIdentity(r io.Reader, path string) (*age.X25519Identity, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse identity in %s: %w", path, err)
		}
		return identity, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	return nil, fmt.Errorf("no identity found in %s", path)
}
