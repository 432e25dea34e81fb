package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Session supplies the bearer token for each request. An empty token sends the
// request without an Authorization header.
type Session interface {
	Token(ctx context.Context) (string, error)
}

// StaticSession is a fixed token, typically taken from FLAGDESK_TOKEN.
type StaticSession string

func (s StaticSession) Token(context.Context) (string, error) { return string(s), nil }

// FileSession reads the persisted token from disk on every call so a login in
// another process is picked up without restarting.
type FileSession struct {
	Path string
}

func (s FileSession) Token(context.Context) (string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save persists tok with owner-only permissions.
func (s FileSession) Save(tok string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(tok+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// NewSession prefers an explicit token over the token file.
func NewSession(token, tokenFile string) Session {
	if token != "" {
		return StaticSession(token)
	}
	return FileSession{Path: tokenFile}
}
