package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint marks the last production record id a bulk scan completed.
type Checkpoint struct {
	LastProcessedID int64     `json:"last_processed_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// CheckpointStore persists the checkpoint as a JSON file. A missing or
// corrupt file degrades to "no checkpoint": the worst case is reprocessing
// work the status ledger will skip anyway.
type CheckpointStore struct {
	path   string
	logger *slog.Logger
}

// NewCheckpointStore creates a store backed by the given file path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path, logger: slog.Default()}
}

// Load reads the checkpoint. ok is false when no usable checkpoint exists;
// corruption is logged, never fatal.
func (c *CheckpointStore) Load() (Checkpoint, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("reading checkpoint", "path", c.path, "error", err)
		}
		return Checkpoint{}, false
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		c.logger.Error("checkpoint file is corrupt, starting fresh", "path", c.path, "error", err)
		return Checkpoint{}, false
	}
	return cp, true
}

// Save writes the checkpoint atomically: write to a temp file in the same
// directory, then rename over the target, so a crash mid-write never leaves
// an unreadable file.
func (c *CheckpointStore) Save(lastProcessedID int64) error {
	cp := Checkpoint{
		LastProcessedID: lastProcessedID,
		Timestamp:       time.Now().UTC(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}

	c.logger.Info("checkpoint saved", "last_processed_id", lastProcessedID)
	return nil
}
