// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scopeFixture lays out:
//
//	base/root        download root
//	base/root-evil   sibling sharing the string prefix
//	base/tmp         temp root
//	base/outside     unrelated directory
func scopeFixture(t *testing.T) (scope *PathScope, base string) {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for _, d := range []string{"root", "root-evil", "tmp", "outside", "root/sub"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, d), 0o750))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "root", "safe.txt"), []byte("safe"), 0o600))
	require.NoError(t, os.Symlink(filepath.Join(base, "outside"), filepath.Join(base, "root", "link_outside")))
	require.NoError(t, os.Symlink(filepath.Join(base, "root", "sub"), filepath.Join(base, "root", "link_inside")))
	require.NoError(t, os.Symlink(filepath.Join(base, "root"), filepath.Join(base, "root", "link_self")))

	scope, err = NewPathScope(filepath.Join(base, "root"), filepath.Join(base, "tmp"))
	require.NoError(t, err)
	return scope, base
}

func TestContain(t *testing.T) {
	scope, base := scopeFixture(t)
	root := filepath.Join(base, "root")

	tests := []struct {
		name    string
		target  string
		want    string
		wantErr error
	}{
		{name: "existing file", target: filepath.Join(root, "safe.txt"), want: filepath.Join(root, "safe.txt")},
		{name: "missing file in existing dir", target: filepath.Join(root, "sub", "new.mp4"), want: filepath.Join(root, "sub", "new.mp4")},
		{name: "missing nested dirs", target: filepath.Join(root, "a", "b", "c.mp4"), want: filepath.Join(root, "a", "b", "c.mp4")},
		{name: "dot segments inside", target: root + "/sub/../safe.txt", want: filepath.Join(root, "safe.txt")},
		{name: "symlink staying inside", target: filepath.Join(root, "link_inside", "x.mp4"), want: filepath.Join(root, "sub", "x.mp4")},
		{name: "temp root descendant", target: filepath.Join(base, "tmp", "job", "v.m4s"), want: filepath.Join(base, "tmp", "job", "v.m4s")},

		{name: "root itself", target: root, wantErr: ErrRootEquality},
		{name: "root with trailing slash", target: root + "/", wantErr: ErrRootEquality},
		{name: "root via dot", target: root + "/sub/..", wantErr: ErrRootEquality},
		{name: "root via symlink", target: filepath.Join(root, "link_self"), wantErr: ErrRootEquality},
		{name: "temp root itself", target: filepath.Join(base, "tmp"), wantErr: ErrRootEquality},
		{name: "sibling prefix", target: filepath.Join(base, "root-evil", "x.mp4"), wantErr: ErrOutsideScope},
		{name: "traversal", target: root + "/../outside/x.mp4", wantErr: ErrOutsideScope},
		{name: "symlink escape", target: filepath.Join(root, "link_outside", "x.mp4"), wantErr: ErrOutsideScope},
		{name: "absolute elsewhere", target: "/etc/passwd", wantErr: ErrOutsideScope},
		{name: "parent of root", target: base, wantErr: ErrOutsideScope},
		{name: "empty", target: "", wantErr: ErrInvalidPath},
		{name: "nul byte", target: root + "/a\x00b", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scope.Contain(tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContainEveryRootRejectsItself(t *testing.T) {
	scope, _ := scopeFixture(t)
	for _, r := range scope.Roots() {
		_, err := scope.Contain(r)
		assert.ErrorIs(t, err, ErrRootEquality, r)
	}
}

func TestNewPathScope(t *testing.T) {
	_, err := NewPathScope()
	assert.ErrorIs(t, err, ErrNoRoots)

	_, err = NewPathScope(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewPathScope(file)
	assert.ErrorIs(t, err, ErrInvalidPath)

	dir := t.TempDir()
	scope, err := NewPathScope(dir, dir)
	require.NoError(t, err)
	assert.Len(t, scope.Roots(), 1)
}

func TestJoin(t *testing.T) {
	scope, base := scopeFixture(t)

	root := filepath.Join(base, "root")

	got, err := scope.Join(root, "bilibili_video", "bilibili_BV1.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bilibili_video", "bilibili_BV1.mp4"), got)

	_, err = scope.Join(root, "..", "outside", "x")
	assert.ErrorIs(t, err, ErrOutsideScope)
	_, err = scope.Join(root, "..", "tmp", "x")
	assert.ErrorIs(t, err, ErrOutsideScope, "climbing into a sibling root is still refused")
	_, err = scope.Join(root, "/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideScope)
	_, err = scope.Join(root)
	assert.ErrorIs(t, err, ErrRootEquality)
	_, err = scope.Join(filepath.Join(base, "outside"), "x")
	assert.ErrorIs(t, err, ErrOutsideScope)
}

func TestRemove(t *testing.T) {
	scope, base := scopeFixture(t)
	root := filepath.Join(base, "root")

	target := filepath.Join(root, "sub", "victim.mp4")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))
	require.NoError(t, scope.Remove(target))
	assert.NoFileExists(t, target)

	// Idempotent.
	require.NoError(t, scope.Remove(target))

	assert.ErrorIs(t, scope.Remove(filepath.Join(root, "sub")), ErrNotRegular)
	assert.DirExists(t, filepath.Join(root, "sub"))

	outside := filepath.Join(base, "outside", "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o600))
	assert.ErrorIs(t, scope.Remove(outside), ErrOutsideScope)
	assert.ErrorIs(t, scope.Remove(filepath.Join(root, "link_outside", "keep.txt")), ErrOutsideScope)
	assert.FileExists(t, outside)
}

func TestMkdirTempAndRemoveAll(t *testing.T) {
	scope, base := scopeFixture(t)
	tmpRoot := filepath.Join(base, "tmp")

	dir, err := scope.MkdirTemp(tmpRoot, "merge-*")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, tmpRoot, filepath.Dir(dir))

	_, err = scope.MkdirTemp(filepath.Join(base, "outside"), "merge-*")
	assert.ErrorIs(t, err, ErrOutsideScope)
	_, err = scope.MkdirTemp(tmpRoot, "a/b-*")
	assert.ErrorIs(t, err, ErrInvalidPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.m4s"), []byte("v"), 0o600))
	require.NoError(t, scope.RemoveAll(dir))
	assert.NoDirExists(t, dir)
	assert.DirExists(t, tmpRoot)
	assert.ErrorIs(t, scope.RemoveAll(tmpRoot), ErrRootEquality)
}

func TestMkdirAll(t *testing.T) {
	scope, base := scopeFixture(t)
	dir, err := scope.MkdirAll(filepath.Join(base, "root", "douyin_video"))
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = scope.MkdirAll(filepath.Join(base, "root-evil", "x"))
	assert.ErrorIs(t, err, ErrOutsideScope)
	assert.NoDirExists(t, filepath.Join(base, "root-evil", "x"))
}

func TestFoldedComparison(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	rootDir := filepath.Join(base, "Media")
	require.NoError(t, os.Mkdir(rootDir, 0o750))

	scope, err := newPathScope(true, rootDir)
	require.NoError(t, err)

	// On a case-insensitive target "media" names the same directory.
	_, err = scope.Contain(filepath.Join(base, "media"))
	assert.ErrorIs(t, err, ErrRootEquality)
	got, err := scope.Contain(filepath.Join(base, "MEDIA", "x.mp4"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "MEDIA", "x.mp4"), got)

	_, err = scope.Contain(filepath.Join(base, "Media-evil", "x.mp4"))
	assert.ErrorIs(t, err, ErrOutsideScope)
}
