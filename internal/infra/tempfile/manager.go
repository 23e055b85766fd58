package tempfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// PersistFunc uploads a finalized file to an external backend and
// returns its locator. Returning an empty string declines the upload,
// which falls back to the retention directory move.
type PersistFunc func(ctx context.Context, localPath, name string) (string, error)

// Manager hands out scoped temp files under a private base directory.
// Each handle uses a collision-resistant unique name, so concurrent
// requests never need cross-request locking.
type Manager struct {
	baseDir      string
	retentionDir string
	persistFn    PersistFunc
}

type Option func(*Manager)

// WithRetentionDir enables persist-by-move into dir.
func WithRetentionDir(dir string) Option {
	return func(m *Manager) { m.retentionDir = dir }
}

// WithPersistFunc enables persist-by-callback (e.g. object storage upload).
func WithPersistFunc(fn PersistFunc) Option {
	return func(m *Manager) { m.persistFn = fn }
}

func NewManager(baseDir string, opts ...Option) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "medimaging-bridge")
	}
	m := &Manager{baseDir: baseDir}
	for _, opt := range opts {
		opt(m)
	}
	// owner-only; media can contain patient data
	if err := os.MkdirAll(m.baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp base dir: %w", err)
	}
	if m.retentionDir != "" {
		if err := os.MkdirAll(m.retentionDir, 0o700); err != nil {
			return nil, fmt.Errorf("create retention dir: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) retentionAvailable() bool {
	return m.persistFn != nil || m.retentionDir != ""
}

// Reserve creates a uniquely named empty file and returns its handle.
// The caller owns the handle for the scope of one request and must
// Close it on every exit path.
func (m *Manager) Reserve(suffix string) (domain.TemporaryFile, error) {
	name := fmt.Sprintf("medimg-%s%s", uuid.New().String(), suffix)
	path := filepath.Join(m.baseDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("reserve temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("reserve temp file: %w", err)
	}
	return &handle{m: m, path: path}, nil
}

type handle struct {
	m *Manager

	mu           sync.Mutex
	path         string
	persistReq   bool
	customName   string
	persistedURI string
	finalized    bool
}

func (h *handle) Path() string { return h.path }

// Persist marks the handle for retention. No filesystem effect here;
// finalization happens only in Close.
func (h *handle) Persist(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.m.retentionAvailable() {
		return domain.ErrRetentionUnavailable
	}
	h.persistReq = true
	h.customName = name
	return nil
}

func (h *handle) PersistedURI() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistedURI
}

// Close finalizes the handle exactly once: upload or move when persist
// was requested, delete otherwise. Absence of the file is not an error.
func (h *handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finalized {
		return nil
	}
	h.finalized = true

	name := h.customName
	if name == "" {
		name = filepath.Base(h.path)
	}

	if h.persistReq {
		if h.m.persistFn != nil {
			uri, err := h.m.persistFn(ctx, h.path, name)
			if err == nil && uri != "" {
				h.persistedURI = uri
				return removeQuiet(h.path)
			}
			if err != nil && h.m.retentionDir == "" {
				// no fallback target, the temp copy still has to go
				rmErr := removeQuiet(h.path)
				if rmErr != nil {
					return rmErr
				}
				return fmt.Errorf("retention upload: %w", err)
			}
			// callback declined or failed, fall through to the dir move
		}
		if h.m.retentionDir != "" {
			dest := filepath.Join(h.m.retentionDir, name)
			if err := moveFile(h.path, dest); err != nil {
				// the temp copy still has to go, even when the move failed
				if rmErr := removeQuiet(h.path); rmErr != nil {
					return rmErr
				}
				return fmt.Errorf("retention move: %w", err)
			}
			h.persistedURI = dest
			return nil
		}
	}

	return removeQuiet(h.path)
}

// renameFile is swapped in tests to exercise the copy fallback.
var renameFile = os.Rename

// moveFile renames src to dest, falling back to copy-then-remove when
// rename fails. The retention dir can live on another filesystem, where
// rename returns EXDEV.
func moveFile(src, dest string) error {
	if err := renameFile(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

func removeQuiet(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}
