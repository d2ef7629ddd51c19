package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BaSui01/agentbus/types"
)

// FileStateStore is a file-based implementation of StateStore. One JSON
// document per workflow key, written atomically via rename. Suitable for
// single-node deployments.
type FileStateStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

var _ StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates a new file-based state store
func NewFileStateStore(config StoreConfig) (*FileStateStore, error) {
	baseDir := filepath.Join(config.BaseDir, "records")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &FileStateStore{baseDir: baseDir}, nil
}

// recordPath returns the file path for a workflow key
func (s *FileStateStore) recordPath(workflowID, workflowType string) string {
	name := url.PathEscape(workflowType) + "__" + url.PathEscape(workflowID) + ".json"
	return filepath.Join(s.baseDir, name)
}

// Save upserts a record, writing a temp file and renaming it into place
func (s *FileStateStore) Save(ctx context.Context, record *types.StateRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	path := s.recordPath(record.WorkflowID, record.WorkflowType)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Load retrieves a record by workflow key
func (s *FileStateStore) Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(s.recordPath(workflowID, workflowType))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record types.StateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// ListNonTerminal scans the record directory for non-terminal records
func (s *FileStateStore) ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	result := make([]*types.StateRecord, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var record types.StateRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", entry.Name(), err)
		}
		if !record.IsTerminal() {
			result = append(result, &record)
		}
	}
	return result, nil
}

// Ping checks if the store is healthy
func (s *FileStateStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

// Close closes the store
func (s *FileStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
