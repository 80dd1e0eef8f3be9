package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/workspace"
	"github.com/skein-run/skein/pkg/utils/try"
)

func TestRoot_CreateAndSize(t *testing.T) {
	root := workspace.New(t.TempDir())

	path := try.To(root.Create("user-1", "run-1")).OrFatal(t)
	if path != root.PathOf("user-1", "run-1") {
		t.Errorf("created path %s should equal PathOf", path)
	}

	if err := os.WriteFile(filepath.Join(path, "data.bin"), make([]byte, 1024), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "sub", "more.bin"), make([]byte, 512), 0o640); err != nil {
		t.Fatal(err)
	}

	size := try.To(root.Size(path)).OrFatal(t)
	if size != 1024+512 {
		t.Errorf("size: got %d, want %d", size, 1024+512)
	}
}

func TestRoot_Size_DoesNotFollowSymlinks(t *testing.T) {
	base := t.TempDir()
	root := workspace.New(filepath.Join(base, "workspaces"))

	outside := filepath.Join(base, "outside.bin")
	if err := os.WriteFile(outside, make([]byte, 1<<20), 0o640); err != nil {
		t.Fatal(err)
	}

	path := try.To(root.Create("user-1", "run-1")).OrFatal(t)
	if err := os.Symlink(outside, filepath.Join(path, "link")); err != nil {
		t.Fatal(err)
	}

	size := try.To(root.Size(path)).OrFatal(t)
	if 1<<20 <= size {
		t.Errorf("size should not count symlink targets: got %d", size)
	}
}

func TestRoot_Remove(t *testing.T) {
	t.Run("removes the tree but not symlink targets", func(t *testing.T) {
		base := t.TempDir()
		root := workspace.New(filepath.Join(base, "workspaces"))

		outside := filepath.Join(base, "outside.bin")
		if err := os.WriteFile(outside, []byte("keep me"), 0o640); err != nil {
			t.Fatal(err)
		}

		path := try.To(root.Create("user-1", "run-1")).OrFatal(t)
		if err := os.Symlink(outside, filepath.Join(path, "link")); err != nil {
			t.Fatal(err)
		}

		if err := root.Remove(path); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Lstat(path); !os.IsNotExist(err) {
			t.Error("workspace should be gone")
		}
		if _, err := os.Stat(outside); err != nil {
			t.Error("symlink target outside the workspace should survive")
		}
	})

	t.Run("removing twice is a no-op", func(t *testing.T) {
		root := workspace.New(t.TempDir())
		path := try.To(root.Create("user-1", "run-1")).OrFatal(t)
		if err := root.Remove(path); err != nil {
			t.Fatal(err)
		}
		if err := root.Remove(path); err != nil {
			t.Errorf("second remove should succeed: %v", err)
		}
	})

	t.Run("refuses paths escaping the root", func(t *testing.T) {
		base := t.TempDir()
		root := workspace.New(filepath.Join(base, "workspaces"))

		for _, path := range []string{
			filepath.Join(base, "workspaces"),
			filepath.Join(base, "workspaces", ".."),
			filepath.Join(base, "elsewhere"),
			"/etc",
		} {
			if err := root.Remove(path); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Remove(%s) should be ErrValidation: got %v", path, err)
			}
		}
	})

	t.Run("refuses a workspace that is itself a symlink", func(t *testing.T) {
		base := t.TempDir()
		root := workspace.New(filepath.Join(base, "workspaces"))

		target := filepath.Join(base, "target")
		if err := os.MkdirAll(target, 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(root.PathOf("user-1", ""), 0o750); err != nil {
			t.Fatal(err)
		}
		link := root.PathOf("user-1", "run-1")
		if err := os.Symlink(target, link); err != nil {
			t.Fatal(err)
		}

		if err := root.Remove(link); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("should refuse symlinked workspace: got %v", err)
		}
		if _, err := os.Stat(target); err != nil {
			t.Error("target should survive")
		}
	})
}
