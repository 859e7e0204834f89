// Package file provides a file-based persistence implementation. The whole
// state lives in memory and is written to a single JSON document after every
// committed change.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/orchestrator/pkg/persistence"
)

const (
	stateFile = "state.json"

	// MemoryURL selects a store that is never written to disk.
	MemoryURL = "memory://"
)

// Persistence implements persistence.Persistence on the file system.
// Transactions are serialized: WithTx holds the store until fn returns, so fn
// must only use the Store it receives.
type Persistence struct {
	mu     sync.Mutex
	root   string
	logger *slog.Logger
	state  *state
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence opens the store rooted at root, which may be a plain path,
// a file:// URL or MemoryURL.
func NewPersistence(logger *slog.Logger, root string) (*Persistence, error) {
	p := &Persistence{
		root:   strings.Replace(root, "file://", "", 1),
		logger: logger,
		state:  newState(),
	}

	if root == MemoryURL || strings.HasPrefix(root, "memory:") {
		p.root = ""

		return p, nil
	}

	err := os.MkdirAll(p.root, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", p.root, err)
	}

	data, err := os.ReadFile(filepath.Join(p.root, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap snapshot

	err = json.Unmarshal(data, &snap)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	p.state = snap.state()

	return p, nil
}

// WithTx runs fn against a private copy of the state and swaps it in when fn
// succeeds.
func (p *Persistence) WithTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Store) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	working, err := p.state.clone()
	if err != nil {
		return err
	}

	err = fn(ctx, working)
	if err != nil {
		return err
	}

	err = p.flush(working)
	if err != nil {
		return err
	}

	p.state = working

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks the data directory is still there.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.root == "" {
		return nil
	}

	_, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}

	return nil
}

// flush atomically replaces the state file with s.
func (p *Persistence) flush(s *state) error {
	if p.root == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(p.root, stateFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	err = os.Rename(tmp.Name(), filepath.Join(p.root, stateFile))
	if err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	p.logger.Debug("state flushed", "path", p.root, "bytes", len(data))

	return nil
}
