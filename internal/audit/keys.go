package audit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateSecret returns the signing secret stored under
// home/keys/audit.secret, generating a fresh 32-byte one on first run.
// The file is hex-encoded and mode 0600.
func LoadOrCreateSecret(home string) ([]byte, error) {
	dir := filepath.Join(home, "keys")
	path := filepath.Join(dir, "audit.secret")

	if data, err := os.ReadFile(path); err == nil {
		secret, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode audit secret: %w", err)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("audit secret file %s is empty", path)
		}
		return secret, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read audit secret: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate audit secret: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write audit secret: %w", err)
	}
	return secret, nil
}
