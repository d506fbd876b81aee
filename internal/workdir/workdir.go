// Package workdir manages per-invocation scratch directories for
// intermediate frames, images and content streams.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// Manager creates scratch directories under a common root.
type Manager struct {
	root   string
	logger arbor.ILogger
}

// NewManager creates a manager rooted at root. An empty root uses the system
// temp directory.
func NewManager(root string, logger arbor.ILogger) *Manager {
	if root == "" {
		root = filepath.Join(os.TempDir(), "assay")
	}
	return &Manager{root: root, logger: logger}
}

// Root returns the directory scratch dirs are created in.
func (m *Manager) Root() string {
	return m.root
}

// Dir is a single scratch directory. Remove must be deferred by the creator.
type Dir struct {
	Path   string
	logger arbor.ILogger
}

// Create makes a fresh uuid-named directory for one invocation.
func (m *Manager) Create(purpose string) (*Dir, error) {
	path := filepath.Join(m.root, purpose+"-"+uuid.New().String())
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir %s: %w", path, err)
	}
	return &Dir{Path: path, logger: m.logger}, nil
}

// Join returns a path inside the scratch dir.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.Path}, elem...)...)
}

// Remove deletes the scratch dir and everything in it. Failures are logged.
func (d *Dir) Remove() {
	if err := os.RemoveAll(d.Path); err != nil {
		d.logger.Warn().Err(err).Str("path", d.Path).Msg("Failed to remove scratch dir")
	}
}
