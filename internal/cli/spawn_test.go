package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

func TestResolvePromptTextFromArg(t *testing.T) {
	got, err := resolvePromptText([]string{"fix the bug"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fix the bug" {
		t.Errorf("got %q", got)
	}
}

func TestResolvePromptTextFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(path, []byte("do the thing"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := resolvePromptText(nil, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "do the thing" {
		t.Errorf("got %q", got)
	}
}

func TestResolvePromptTextErrorsWithoutArgOrFile(t *testing.T) {
	_, err := resolvePromptText(nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	var te *taggederr.TaggedError
	if !errors.As(err, &te) || te.Kind != taggederr.KindInvalidArgs {
		t.Errorf("expected KindInvalidArgs, got %#v", err)
	}
}

func TestResolvePromptTextErrorsOnUnreadableFile(t *testing.T) {
	_, err := resolvePromptText(nil, filepath.Join(t.TempDir(), "missing.md"))
	if err == nil {
		t.Fatal("expected error")
	}
}
