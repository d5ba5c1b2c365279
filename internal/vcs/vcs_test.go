package vcs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// scriptRunner answers git invocations from a canned table keyed by the
// joined argument list.
func scriptRunner(responses map[string]string) Runner {
	return func(workDir string, args ...string) (string, error) {
		key := strings.Join(args, " ")
		out, ok := responses[key]
		if !ok {
			return "", fmt.Errorf("unexpected git %s", key)
		}
		return out, nil
	}
}

func TestHead(t *testing.T) {
	c := &Client{WorkDir: "/w", Runner: scriptRunner(map[string]string{
		"rev-parse HEAD": "abc123def\n",
	})}
	head, ok, err := c.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !ok || head != "abc123def" {
		t.Errorf("head = %q ok=%v", head, ok)
	}
}

func TestHeadOutsideRepository(t *testing.T) {
	c := &Client{WorkDir: "/w", Runner: func(string, ...string) (string, error) {
		return "", errors.New("fatal: not a git repository")
	}}
	// A plain error (not exit code 128) propagates.
	if _, _, err := c.Head(); err == nil {
		t.Error("expected error for unclassifiable failure")
	}
}

func TestTreeContents(t *testing.T) {
	c := &Client{WorkDir: "/w", Runner: scriptRunner(map[string]string{
		"ls-tree -r --name-only HEAD": "main.go\ndocs/readme.md\n",
		"show HEAD:main.go":           "package main\n",
		"show HEAD:docs/readme.md":    "# docs\n",
	})}

	files, err := c.TreeContents("HEAD")
	if err != nil {
		t.Fatalf("TreeContents: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if string(files["main.go"]) != "package main\n" {
		t.Errorf("main.go = %q", files["main.go"])
	}
	if string(files["docs/readme.md"]) != "# docs\n" {
		t.Errorf("docs/readme.md = %q", files["docs/readme.md"])
	}
}

func TestTreeContentsSkipsNonBlobs(t *testing.T) {
	c := &Client{WorkDir: "/w", Runner: func(workDir string, args ...string) (string, error) {
		switch strings.Join(args, " ") {
		case "ls-tree -r --name-only HEAD":
			return "sub\nmain.go\n", nil
		case "show HEAD:main.go":
			return "package main\n", nil
		default:
			return "", errors.New("fatal: not a blob")
		}
	}}

	files, err := c.TreeContents("HEAD")
	if err != nil {
		t.Fatalf("TreeContents: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected non-blob entries skipped, got %d files", len(files))
	}
}
