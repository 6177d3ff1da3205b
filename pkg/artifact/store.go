package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	MasterBiasName = "bias"
)

// Layout is the file-system convention shared with the engine. Relative
// directories are resolved against WorkDir, which is also the engine's
// working directory.
type Layout struct {
	WorkDir string `json:"work_dir" yaml:"work_dir"`
	RawDir  string `json:"raw_dir" yaml:"raw_dir"`
	BiasDir string `json:"bias_dir" yaml:"bias_dir"`
	CalDir  string `json:"cal_dir" yaml:"cal_dir"`
}

// Store performs artifact file operations rooted at a Layout.
type Store struct {
	layout Layout
}

func NewStore(layout Layout) *Store {
	if layout.WorkDir == "" {
		layout.WorkDir = "."
	}
	return &Store{layout: layout}
}

func (s *Store) Layout() Layout {
	return s.layout
}

// Resolve maps an engine-relative path to a path usable from this process.
func (s *Store) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.layout.WorkDir, path)
}

// Path returns the file path of a working-directory artifact.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.layout.WorkDir, key.FileName())
}

func (s *Store) Exists(key Key) bool {
	return s.ExistsPath(key.FileName())
}

func (s *Store) ExistsPath(path string) bool {
	_, err := os.Stat(s.Resolve(path))
	return err == nil
}

// Delete removes artifacts; missing files are not an error.
func (s *Store) Delete(keys ...Key) error {
	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		paths = append(paths, key.FileName())
	}
	return s.DeletePath(paths...)
}

// DeletePath removes files; missing files are not an error.
func (s *Store) DeletePath(paths ...string) error {
	var errs []error
	for _, path := range paths {
		err := os.Remove(s.Resolve(path))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("artifact: delete %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// DeleteGlob removes working-directory files matching the patterns and
// reports how many were removed.
func (s *Store) DeleteGlob(patterns ...string) (int, error) {
	removed := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(s.layout.WorkDir, pattern))
		if err != nil {
			return removed, fmt.Errorf("artifact: glob %s: %w", pattern, err)
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, fmt.Errorf("artifact: delete %s: %w", match, err)
			}
			removed++
		}
	}
	return removed, nil
}

// Copy duplicates src under the dst key, replacing any previous dst.
func (s *Store) Copy(src, dst Key) error {
	return s.CopyFile(src.FileName(), dst.FileName())
}

func (s *Store) CopyFile(srcPath, dstPath string) error {
	src, err := os.Open(s.Resolve(srcPath))
	if err != nil {
		return fmt.Errorf("artifact: open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst := s.Resolve(dstPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("artifact: ensure dir for %s: %w", dstPath, err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("artifact: delete %s: %w", dstPath, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("artifact: create %s: %w", dstPath, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("artifact: copy %s to %s: %w", srcPath, dstPath, err)
	}
	return out.Close()
}

// WriteFile writes a small auxiliary working-directory file.
func (s *Store) WriteFile(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.layout.WorkDir, name), data, 0o644); err != nil {
		return fmt.Errorf("artifact: write %s: %w", name, err)
	}
	return nil
}

// MasterBias is the engine-relative name of the master bias (no extension).
func (s *Store) MasterBias() string {
	return filepath.Join(s.layout.CalDir, MasterBiasName)
}

func (s *Store) MasterBiasPath() string {
	return s.MasterBias() + Extension
}

// Sensitivity is the engine-relative name of the sensitivity function for a
// standard-star root.
func (s *Store) Sensitivity(stdRoot string) string {
	return filepath.Join(s.layout.CalDir, stdRoot+"sens")
}

func (s *Store) SensitivityPath(stdRoot string) string {
	return s.Sensitivity(stdRoot) + Extension
}

// CalibrationFile is a file under the calibrations directory.
func (s *Store) CalibrationFile(name string) string {
	return filepath.Join(s.layout.CalDir, name)
}

func (s *Store) RawDir() string {
	return withSlash(s.layout.RawDir)
}

func (s *Store) BiasDir() string {
	return withSlash(s.layout.BiasDir)
}

// the engine concatenates rawpath with the image name
func withSlash(dir string) string {
	if dir == "" || dir[len(dir)-1] == '/' {
		return dir
	}
	return dir + "/"
}
