// Package workspace owns the per-session scratch directories that hold files staged
// for pushes, fetched repository content and clones.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"chat-tools-backend/logging"
	"chat-tools-backend/pathutil"

	"github.com/sirupsen/logrus"
)

// ErrOutsideWorkspace is returned when a relative path escapes the session directory.
var ErrOutsideWorkspace = errors.New("path escapes the session workspace")

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Manager creates and removes session workspaces under a base directory.
type Manager struct {
	baseDir string
	log     *logrus.Entry

	mu   sync.Mutex
	dirs map[string]string // session id -> directory
}

// NewManager returns a manager rooted at baseDir, creating it if needed.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir == "" {
		return nil, errors.New("workspace base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace base %s: %w", baseDir, err)
	}
	return &Manager{
		baseDir: baseDir,
		log:     logging.NewLogger("workspace"),
		dirs:    make(map[string]string),
	}, nil
}

// BaseDir returns the directory all workspaces live under.
func (m *Manager) BaseDir() string { return m.baseDir }

// GetOrCreateDir returns the session's workspace, creating a fresh private directory
// on first use or after Cleanup.
func (m *Manager) GetOrCreateDir(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dir, ok := m.dirs[sessionID]; ok {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
		// removed behind our back; fall through and recreate
		delete(m.dirs, sessionID)
	}

	prefix := unsafeIDChars.ReplaceAllString(sessionID, "_")
	if len(prefix) > 64 {
		prefix = prefix[:64]
	}
	dir, err := os.MkdirTemp(m.baseDir, prefix+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create workspace for session %s: %w", sessionID, err)
	}
	m.dirs[sessionID] = dir
	m.log.WithFields(logrus.Fields{"session": sessionID, "dir": dir}).Debug("created workspace")
	return dir, nil
}

// Dir returns the session's workspace without creating it.
func (m *Manager) Dir(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir, ok := m.dirs[sessionID]
	return dir, ok
}

// Cleanup removes the session's workspace. Unknown sessions are a no-op.
func (m *Manager) Cleanup(sessionID string) error {
	m.mu.Lock()
	dir, ok := m.dirs[sessionID]
	delete(m.dirs, sessionID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", dir, err)
	}
	m.log.WithField("session", sessionID).Debug("removed workspace")
	return nil
}

// Enumerate yields the slash-separated paths of every regular file under dir, relative
// to dir. The sequence is lazy: nothing is read until it is ranged over, and ranging
// again walks the directory again. .git directories are not descended into.
func Enumerate(dir string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if d.Name() == ".git" && p != dir {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				if !yield("", err) {
					return fs.SkipAll
				}
				return nil
			}
			if !yield(filepath.ToSlash(rel), nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// Enumerate lists the files of the session's workspace.
func (m *Manager) Enumerate(sessionID string) (iter.Seq2[string, error], error) {
	dir, err := m.GetOrCreateDir(sessionID)
	if err != nil {
		return nil, err
	}
	return Enumerate(dir), nil
}

// Resolve maps a workspace-relative path to an absolute one inside the session.
func (m *Manager) Resolve(sessionID, rel string) (string, error) {
	dir, err := m.GetOrCreateDir(sessionID)
	if err != nil {
		return "", err
	}
	abs, ok := pathutil.SafeJoin(dir, rel)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	return abs, nil
}

// WriteFile stores data at rel inside the session workspace, creating parents.
func (m *Manager) WriteFile(sessionID, rel string, data []byte) (string, error) {
	abs, err := m.Resolve(sessionID, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return abs, nil
}

// ReadFile returns the content stored at rel inside the session workspace.
func (m *Manager) ReadFile(sessionID, rel string) ([]byte, error) {
	abs, err := m.Resolve(sessionID, rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}
