// Package output manages the on-disk layout of converted audio and the
// staging tree the ISO image is built from.
package output

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mixpress/internal/folders"
	"mixpress/internal/logging"
)

const (
	sessionRootName = "mixpress_output"
	stagingDirName  = "_iso_staging"
)

// Manager owns the output directory tree for one run. In session mode output
// lives under the temp root and is namespaced by a per-run uuid; in bundle
// mode it lives inside a user-chosen bundle directory and survives restarts.
type Manager struct {
	mu        sync.Mutex
	tmpRoot   string
	sessionID string
	bundleDir string
	logger    *slog.Logger
}

// NewSessionManager creates a manager backed by a fresh session directory
// under tmpRoot (the OS temp dir when empty). Nothing is created until the
// first folder asks for its directory.
func NewSessionManager(tmpRoot string, logger *slog.Logger) *Manager {
	if tmpRoot == "" {
		tmpRoot = os.TempDir()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		tmpRoot:   tmpRoot,
		sessionID: uuid.NewString(),
		logger:    logging.NewComponentLogger(logger, "output"),
	}
}

// NewBundleManager creates a manager rooted at a persistent bundle directory.
func NewBundleManager(bundleDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		bundleDir: bundleDir,
		logger:    logging.NewComponentLogger(logger, "output"),
	}
}

// RootDir is the directory that holds one subdirectory per converted folder.
func (m *Manager) RootDir() string {
	if m.bundleDir != "" {
		return filepath.Join(m.bundleDir, "converted")
	}
	return filepath.Join(m.tmpRoot, sessionRootName, m.sessionID)
}

// SessionID is empty in bundle mode.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// ArtworkCacheDir holds extracted cover images. It lives beside the folder
// directories so it is never staged or counted toward a folder's size.
func (m *Manager) ArtworkCacheDir() string {
	return filepath.Join(m.RootDir(), "_artwork_cache")
}

// FolderDir returns the output directory for one folder, creating it on
// first use.
func (m *Manager) FolderDir(id folders.ID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := filepath.Join(m.RootDir(), sanitizePathComponent(string(id)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create folder output dir: %w", err)
	}
	return dir, nil
}

// CleanupOldSessions removes session directories left behind by previous
// runs, keeping the current session. Bundle mode is a no-op. Returns the
// number of directories removed.
func (m *Manager) CleanupOldSessions() (int, error) {
	if m.bundleDir != "" {
		return 0, nil
	}
	root := filepath.Join(m.tmpRoot, sessionRootName)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list session root: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == m.sessionID {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			m.logger.Warn("failed to remove old session",
				logging.String("session", entry.Name()),
				logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("removed old sessions", logging.Int("count", removed))
	}
	return removed, nil
}

// DirSize walks the directory and sums regular file sizes. Symlinks count
// as their target files when readable.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := os.Stat(entry)
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure directory: %w", err)
	}
	return total, nil
}

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

func sanitizePathComponent(name string) string {
	cleaned := strings.TrimSpace(unsafeNameChars.Replace(name))
	if cleaned == "" {
		return "_"
	}
	return cleaned
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(entry string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, entry)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(entry, target)
	})
}
