package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

func TestGuardOpenPRsSkipsWhenGHUnavailable(t *testing.T) {
	if _, err := exec.LookPath("gh"); err == nil {
		t.Skip("gh is installed; cannot exercise the unavailable path")
	}
	targets := map[string]*manifest.Worktree{
		"wt-aaaaaaaa": {ID: "wt-aaaaaaaa", PRUrl: "https://example.com/pr/1"},
	}
	if err := guardOpenPRs(targets); err != nil {
		t.Fatalf("expected nil when gh is unavailable, got %v", err)
	}
}

func TestGuardOpenPRsAllowsWorktreesWithoutPRs(t *testing.T) {
	dir := t.TempDir()
	writeFakeGH(t, dir, "#!/bin/sh\nexit 0\n")
	restorePath := prependPath(t, dir)
	defer restorePath()

	targets := map[string]*manifest.Worktree{
		"wt-aaaaaaaa": {ID: "wt-aaaaaaaa"},
	}
	if err := guardOpenPRs(targets); err != nil {
		t.Fatalf("expected nil for worktree with no PR, got %v", err)
	}
}

func TestGuardOpenPRsBlocksWorktreeWithOpenPR(t *testing.T) {
	dir := t.TempDir()
	writeFakeGH(t, dir, "#!/bin/sh\nexit 0\n")
	restorePath := prependPath(t, dir)
	defer restorePath()

	targets := map[string]*manifest.Worktree{
		"wt-aaaaaaaa": {ID: "wt-aaaaaaaa", PRUrl: "https://example.com/pr/1"},
	}
	if err := guardOpenPRs(targets); err == nil {
		t.Fatal("expected an error for a worktree with an open PR")
	}
}

func writeFakeGH(t *testing.T, dir, script string) {
	t.Helper()
	path := filepath.Join(dir, "gh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
}

func prependPath(t *testing.T, dir string) func() {
	t.Helper()
	old := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+old)
	return func() { os.Setenv("PATH", old) }
}
