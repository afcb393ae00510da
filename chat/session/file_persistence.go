package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FilePersistence implements Persistence using one JSON file per key
type FilePersistence struct {
	sessionDir string
	mu         sync.Mutex
}

// persistedValue represents the JSON structure of a persisted session value
type persistedValue struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFilePersistence creates a file-based session store rooted at sessionDir
func NewFilePersistence(sessionDir string) (*FilePersistence, error) {
	// Create session directory if it doesn't exist
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FilePersistence{sessionDir: sessionDir}, nil
}

// Save writes value to the key's JSON file
func (fp *FilePersistence) Save(key, value string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	data := persistedValue{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session value: %w", err)
	}

	// Write through a temp file and rename into place
	path := fp.getFilePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load reads the value stored under key
func (fp *FilePersistence) Load(key string) (string, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	jsonData, err := os.ReadFile(fp.getFilePath(key))
	if os.IsNotExist(err) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	var data persistedValue
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal session value: %w", err)
	}

	return data.Value, nil
}

// Delete removes the key's file
func (fp *FilePersistence) Delete(key string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.Remove(fp.getFilePath(key))
	if os.IsNotExist(err) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	return nil
}

// Exists checks if the key's file exists
func (fp *FilePersistence) Exists(key string) bool {
	_, err := os.Stat(fp.getFilePath(key))
	return err == nil
}

// getFilePath returns the full file path for a key
func (fp *FilePersistence) getFilePath(key string) string {
	return filepath.Join(fp.sessionDir, fmt.Sprintf("%s.json", key))
}
