// Package vcs reads commit and tree boundaries from an external git
// repository. It never mutates the repository's history; it is a snapshot
// source only.
package vcs

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a git command in workDir and returns its stdout.
// This abstraction allows mocking in tests.
type Runner func(workDir string, args ...string) (string, error)

// DefaultRunner runs git as a real subprocess.
func DefaultRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// Client answers questions about one working directory's repository.
type Client struct {
	WorkDir string
	Runner  Runner // if nil, uses the real git subprocess
}

func (c *Client) run(args ...string) (string, error) {
	runner := c.Runner
	if runner == nil {
		runner = DefaultRunner
	}
	return runner(c.WorkDir, args...)
}

// Head returns the current HEAD commit hash, or ok=false when the working
// directory is not a git repository.
func (c *Client) Head() (head string, ok bool, err error) {
	out, err := c.run("rev-parse", "HEAD")
	if err != nil {
		if isExitCode128(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading HEAD: %w", err)
	}
	return strings.TrimSpace(out), true, nil
}

// TreeContents reads the full file contents of a committed tree, keyed by
// repository-relative path.
func (c *Client) TreeContents(rev string) (map[string][]byte, error) {
	out, err := c.run("ls-tree", "-r", "--name-only", rev)
	if err != nil {
		return nil, fmt.Errorf("listing tree %s: %w", rev, err)
	}
	files := make(map[string][]byte)
	for _, path := range strings.Split(out, "\n") {
		if path == "" {
			continue
		}
		content, err := c.run("show", rev+":"+path)
		if err != nil {
			// Submodules and other non-blob entries are skipped.
			continue
		}
		files[path] = []byte(content)
	}
	return files, nil
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code
// 128, git's "not a repository" (and general fatal) status.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}
