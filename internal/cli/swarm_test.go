package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSwarmFileParsesMembers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rev.yaml")
	content := `
members:
  - name: reviewer-a
    agentType: claude
    prompt: "Review the diff for bugs"
  - name: reviewer-b
    agentType: codex
    prompt: "Review the diff for style"
    branch: ppg/review-b
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	members, err := loadSwarmFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].Name != "reviewer-a" || members[0].AgentType != "claude" {
		t.Errorf("unexpected first member: %+v", members[0])
	}
	if members[1].Branch != "ppg/review-b" {
		t.Errorf("unexpected second member branch: %+v", members[1])
	}
}

func TestLoadSwarmFileErrorsOnMissingFile(t *testing.T) {
	_, err := loadSwarmFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing swarm file")
	}
}

func TestLoadSwarmFileErrorsOnInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("members: [this is not valid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSwarmFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
