// Package scratch manages the per-capture working directories under the
// storage root. Every capture gets its own directory named by its id, so
// concurrent captures never share frame numbering or output names.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Artifact names inside a workspace.
const (
	FramePattern  = "frame_%05d.png"
	PaletteFile   = "palette.png"
	ContainerFile = "recording.avi"
	MP4File       = "capture.mp4"
	GIFFile       = "capture.gif"
)

var framePattern = regexp.MustCompile(`^frame_\d{5}\.png$`)

// Workspace is one capture's directory.
type Workspace struct {
	ID  string
	Dir string
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// FramePath returns the file name of frame i.
func (w *Workspace) FramePath(i int) string {
	return w.Path(fmt.Sprintf(FramePattern, i))
}

// FrameGlob is the ffmpeg input pattern for the frame sequence.
func (w *Workspace) FrameGlob() string {
	return w.Path(FramePattern)
}

// WriteFrame stores frame i.
func (w *Workspace) WriteFrame(i int, png []byte) error {
	if err := os.WriteFile(w.FramePath(i), png, 0o644); err != nil {
		return fmt.Errorf("write frame %d: %w", i, err)
	}
	return nil
}

// Sweep removes the frame sequence, palette and outputs left from an earlier
// run. Missing files are ignored and other removal errors are collected.
func (w *Workspace) Sweep() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name()) {
			continue
		}
		if err := os.Remove(w.Path(e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveFrames deletes the frame sequence and palette.
func (w *Workspace) RemoveFrames() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if !framePattern.MatchString(name) && name != PaletteFile {
			continue
		}
		if err := os.Remove(w.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove deletes the whole workspace.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

// Size returns the size of a workspace file, or zero when it does not exist.
func (w *Workspace) Size(name string) int64 {
	info, err := os.Stat(w.Path(name))
	if err != nil {
		return 0
	}
	return info.Size()
}

// ModTime returns when a workspace file was last written, or the zero time
// when it does not exist.
func (w *Workspace) ModTime(name string) time.Time {
	info, err := os.Stat(w.Path(name))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// PublicPath is the URL of name under route, for example
// /videos/<id>/capture.gif.
func (w *Workspace) PublicPath(route, name string) string {
	return strings.TrimRight(route, "/") + "/" + w.ID + "/" + name
}

func isArtifact(name string) bool {
	if framePattern.MatchString(name) {
		return true
	}
	switch name {
	case PaletteFile, ContainerFile, MP4File, GIFFile:
		return true
	}
	return false
}
