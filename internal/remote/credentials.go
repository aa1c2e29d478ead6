package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const credentialsFile = "credentials.toml"

// Credentials is the login kept in the profile directory.
type Credentials struct {
	Server string `toml:"server"`
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
	Email  string `toml:"email"`
}

// LoadCredentials returns the saved login, or a zero value when none exists.
func LoadCredentials(dir string) (Credentials, error) {
	var creds Credentials
	raw, err := os.ReadFile(filepath.Join(dir, credentialsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("read credentials: %w", err)
	}
	if err := toml.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

func SaveCredentials(dir string, creds Credentials) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	raw, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	path := filepath.Join(dir, credentialsFile)
	if err := os.WriteFile(path+".tmp", raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

func ClearCredentials(dir string) error {
	err := os.Remove(filepath.Join(dir, credentialsFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
