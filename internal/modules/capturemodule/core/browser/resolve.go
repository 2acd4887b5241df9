package browser

import (
	"errors"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
)

// ErrNoBrowser is returned when no browser executable can be found.
var ErrNoBrowser = errors.New("no Chrome or Chromium executable found")

// Resolver finds the browser executable: the configured path first, then
// the go-rod lookup of well known install locations, then the configured
// fallbacks.
type Resolver struct {
	Configured string
	Fallbacks  []string

	lookPath func() (string, bool)
	exists   func(path string) bool
}

// NewResolver creates a resolver backed by the real filesystem.
func NewResolver(configured string, fallbacks []string) *Resolver {
	return &Resolver{
		Configured: configured,
		Fallbacks:  fallbacks,
		lookPath:   launcher.LookPath,
		exists:     isExecutable,
	}
}

// Resolve returns the first usable executable.
func (r *Resolver) Resolve() (string, error) {
	if p := strings.TrimSpace(r.Configured); p != "" {
		if r.exists(p) {
			return p, nil
		}
	}
	if p, ok := r.lookPath(); ok && p != "" {
		return p, nil
	}
	for _, p := range r.Fallbacks {
		if p = strings.TrimSpace(p); p != "" && r.exists(p) {
			return p, nil
		}
	}
	return "", ErrNoBrowser
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
