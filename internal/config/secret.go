package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// actionSecretBytes is the size of a generated HMAC key.
const actionSecretBytes = 32

// LoadActionSecret returns the key used to sign emailed action links.  An
// explicit ACTION_TOKEN_SECRET wins; otherwise the key is read from path and
// generated there on first start.  An existing file is never overwritten:
// rotating the key invalidates every outstanding link and must be done by
// deleting the file deliberately.
func LoadActionSecret(cfg Config) ([]byte, error) {
	if cfg.ActionSecret != "" {
		return []byte(cfg.ActionSecret), nil
	}
	path := cfg.ActionSecretFile
	raw, err := os.ReadFile(path)
	if err == nil {
		key, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil || len(key) < actionSecretBytes {
			return nil, fmt.Errorf("action secret file %s is corrupt", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read action secret: %w", err)
	}

	key := make([]byte, actionSecretBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate action secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create secret dir: %w", err)
	}
	// O_EXCL so two processes starting together cannot both write a key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return LoadActionSecret(cfg)
		}
		return nil, fmt.Errorf("persist action secret: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		return nil, fmt.Errorf("persist action secret: %w", err)
	}
	return key, nil
}
