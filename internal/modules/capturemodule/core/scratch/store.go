package scratch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hashicorp/go-hclog"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// Store owns the storage root and hands out workspaces.
type Store struct {
	root   string
	logger hclog.Logger
	now    func() time.Time
}

// Stats describes the storage root.
type Stats struct {
	Workspaces int
	TotalSize  int64
	Oldest     time.Duration
}

// NewStore creates the storage root if needed.
func NewStore(root string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{root: abs, logger: logger.Named("scratch"), now: time.Now}, nil
}

// Root is the absolute storage directory.
func (s *Store) Root() string {
	return s.root
}

// Open creates (or reuses) the workspace for id and sweeps stale artifacts
// from it. A failed sweep is logged, not returned.
func (s *Store) Open(id string) (*Workspace, error) {
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid workspace id %q", id)
	}
	w := &Workspace{ID: id, Dir: filepath.Join(s.root, id)}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if err := w.Sweep(); err != nil {
		s.logger.Warn("workspace sweep incomplete", "id", id, "error", err)
	}
	return w, nil
}

// Lookup returns the workspace for an existing capture.
func (s *Store) Lookup(id string) (*Workspace, bool) {
	if !idPattern.MatchString(id) {
		return nil, false
	}
	dir := filepath.Join(s.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, false
	}
	return &Workspace{ID: id, Dir: dir}, true
}

// Prune removes workspaces last modified more than retention ago and
// returns how many were removed.
func (s *Store) Prune(retention time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := s.now().Sub(info.ModTime())
		if age <= retention {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Error("failed to remove workspace", "path", path, "error", err)
			continue
		}
		removed++
		s.logger.Debug("removed expired workspace", "path", path, "age", age)
	}
	return removed, nil
}

// Stats walks the storage root.
func (s *Store) Stats() (*Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage dir: %w", err)
	}

	stats := &Stats{}
	var oldest time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		stats.Workspaces++
		if info, err := entry.Info(); err == nil && (oldest.IsZero() || info.ModTime().Before(oldest)) {
			oldest = info.ModTime()
		}
		_ = filepath.WalkDir(filepath.Join(s.root, entry.Name()), func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, err := d.Info(); err == nil {
				stats.TotalSize += info.Size()
			}
			return nil
		})
	}
	if !oldest.IsZero() {
		stats.Oldest = s.now().Sub(oldest)
	}
	return stats, nil
}

// RunJanitor prunes expired workspaces every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		s.logger.Info("workspace janitor disabled")
		return
	}
	s.logger.Info("starting workspace janitor", "interval", interval, "retention", retention, "root", s.root)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.prune(retention)
	for {
		select {
		case <-ticker.C:
			s.prune(retention)
		case <-ctx.Done():
			s.logger.Info("workspace janitor stopped")
			return
		}
	}
}

func (s *Store) prune(retention time.Duration) {
	n, err := s.Prune(retention)
	if err != nil {
		s.logger.Error("workspace prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pruned expired workspaces", "count", n)
	}
}
