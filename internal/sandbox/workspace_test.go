package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWorkspaceUsesRunPrefix(t *testing.T) {
	dir, err := NewWorkspace()
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if !strings.Contains(filepath.Base(dir), workspacePrefix) {
		t.Fatalf("workspace %q missing prefix %q", dir, workspacePrefix)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("workspace not created: %v", err)
	}
}

func TestCleanupRemovesWorkspace(t *testing.T) {
	dir, err := NewWorkspace()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	Cleanup(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after cleanup: %v", err)
	}
}

func TestCleanupRefusesForeignDirectories(t *testing.T) {
	// Cleanup only ever deletes directories it created itself.
	dir := t.TempDir()
	marker := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(marker, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	Cleanup(dir)
	Cleanup("")

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("cleanup removed a directory it does not own: %v", err)
	}
}
