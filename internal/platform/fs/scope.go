// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fs confines every filesystem write to a fixed set of roots.
//
// Paths are compared component-wise after symlink resolution, never by raw
// string prefix, so "/data-evil" is not inside "/data". On case-insensitive
// targets components are additionally case-folded and NFC-normalized.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNoRoots      = errors.New("path scope has no roots")
	ErrOutsideScope = errors.New("path escapes permitted roots")
	ErrRootEquality = errors.New("path equals a permitted root")
	ErrInvalidPath  = errors.New("invalid path")
	ErrNotRegular   = errors.New("not a regular file")
)

type root struct {
	path string // absolute, symlink-resolved
	key  string // comparison form of path
}

// PathScope is an ordered set of canonical roots. It is immutable.
type PathScope struct {
	roots []root
	fold  bool
}

// NewPathScope canonicalizes roots. Every root must exist and be a directory.
func NewPathScope(roots ...string) (*PathScope, error) {
	return newPathScope(foldsCase(), roots...)
}

func newPathScope(fold bool, roots ...string) (*PathScope, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	s := &PathScope{fold: fold}
	seen := make(map[string]struct{}, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("%w: empty root", ErrInvalidPath)
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("invalid root path %q: %w", r, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", r, err)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("stat root %q: %w", r, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: root %q is not a directory", ErrInvalidPath, r)
		}
		key := s.key(resolved)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		s.roots = append(s.roots, root{path: resolved, key: key})
	}
	return s, nil
}

// Roots returns the canonical roots in order.
func (s *PathScope) Roots() []string {
	out := make([]string, len(s.roots))
	for i, r := range s.roots {
		out[i] = r.path
	}
	return out
}

// Contain canonicalizes candidate and accepts it only if it is a strict
// descendant of one root. The returned path is the one callers must use.
// The candidate need not exist yet.
func (s *PathScope) Contain(candidate string) (string, error) {
	if s == nil || len(s.roots) == 0 {
		return "", ErrNoRoots
	}
	if candidate == "" || strings.ContainsRune(candidate, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, candidate)
	}
	if runtime.GOOS != "windows" && strings.Contains(candidate, "\\") {
		return "", fmt.Errorf("%w: path contains backslash: %s", ErrInvalidPath, candidate)
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", err
	}

	key := s.key(resolved)
	for _, r := range s.roots {
		switch within(r.key, key) {
		case relEqual:
			return "", fmt.Errorf("%w: %s", ErrRootEquality, resolved)
		case relInside:
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideScope, resolved)
}

// Join joins relative elements onto dir and contains the result. Elements
// that are absolute or climb out of dir are rejected even when the result
// would land inside another root.
func (s *PathScope) Join(dir string, elem ...string) (string, error) {
	rel := filepath.Join(elem...)
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideScope, rel)
	}
	return s.Contain(filepath.Join(dir, rel))
}

// MkdirAll contains dir and creates it with mode 0750.
func (s *PathScope) MkdirAll(dir string) (string, error) {
	resolved, err := s.Contain(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0o750); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	// Re-check: a racing symlink swap would surface here.
	return s.Contain(resolved)
}

// MkdirTemp creates a fresh private directory under parent, which must be a
// root or a contained directory.
func (s *PathScope) MkdirTemp(parent, pattern string) (string, error) {
	if strings.ContainsRune(pattern, filepath.Separator) {
		return "", fmt.Errorf("%w: pattern %q", ErrInvalidPath, pattern)
	}
	base, err := s.dirOrRoot(parent)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	resolved, err := s.Contain(dir)
	if err != nil {
		_ = os.Remove(dir)
		return "", err
	}
	return resolved, nil
}

// RemoveAll removes a contained directory tree. A missing directory is not
// an error.
func (s *PathScope) RemoveAll(dir string) error {
	resolved, err := s.Contain(dir)
	if err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

// Remove unlinks a contained regular file. A missing file is not an error;
// directories, devices and other special files are refused.
func (s *PathScope) Remove(path string) error {
	resolved, err := s.Contain(path)
	if err != nil {
		return err
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, resolved)
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", resolved, err)
	}
	return nil
}

func (s *PathScope) dirOrRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	key := s.key(resolved)
	for _, r := range s.roots {
		if within(r.key, key) != relOutside {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideScope, resolved)
}

func (s *PathScope) key(p string) string {
	if !s.fold {
		return p
	}
	return cases.Fold().String(norm.NFC.String(p))
}

type relation int

const (
	relOutside relation = iota
	relEqual
	relInside
)

func within(rootKey, key string) relation {
	rel, err := filepath.Rel(rootKey, key)
	if err != nil {
		return relOutside
	}
	switch {
	case rel == ".":
		return relEqual
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel):
		return relOutside
	default:
		return relInside
	}
}

// resolve evaluates symlinks in the longest existing prefix of abs and
// re-attaches the missing tail. abs is already cleaned, so the tail holds no
// "." or ".." elements.
func resolve(abs string) (string, error) {
	if _, err := os.Lstat(abs); err == nil {
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return "", fmt.Errorf("%w: resolve %s: %v", ErrInvalidPath, abs, err)
		}
		return resolved, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: stat %s: %v", ErrInvalidPath, abs, err)
	}

	var tail []string
	cur := abs
	for {
		parent := filepath.Dir(cur)
		tail = append(tail, filepath.Base(cur))
		if parent == cur {
			return abs, nil
		}
		cur = parent
		if _, err := os.Lstat(cur); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: stat %s: %v", ErrInvalidPath, cur, err)
		}
	}

	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrInvalidPath, cur, err)
	}
	for i := len(tail) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, tail[i])
	}
	return resolved, nil
}

func foldsCase() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}

// IsRegularFile checks if path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	return nil
}
