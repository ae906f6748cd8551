package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/tunegraph-io/tunegraph/lib/signing"
)

// FileStore is a plain-file SecretStore for environments without an OS
// keychain. The file is written 0600; anything stronger is the platform
// integration's job.
type FileStore struct {
	path string
}

type storedSession struct {
	Method     signing.Method `json:"method"`
	Credential string         `json:"credential"`
}

// NewFileStore creates a file-backed secret store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (signing.Method, string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read session file: %w", err)
	}

	var session storedSession
	if err := jsoniter.Unmarshal(data, &session); err != nil {
		return "", "", fmt.Errorf("failed to parse session file: %w", err)
	}
	return session.Method, session.Credential, nil
}

func (s *FileStore) Save(_ context.Context, method signing.Method, credential string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := jsoniter.Marshal(storedSession{Method: method, Credential: credential})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
