package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrEditorProcess wraps launch failures and abnormal exits of the external
// diff editor.
var ErrEditorProcess = errors.New("diff editor process failed")

// ExecLauncher runs a real diff-editor subprocess with the argument
// convention <command> <left-dir> <right-dir> <out-dir>.
type ExecLauncher struct {
	Command string // defaults to "tug-diff-editor"
}

func (e *ExecLauncher) Launch(ctx context.Context, left, right, out string) error {
	name := e.Command
	if name == "" {
		name = "tug-diff-editor"
	}
	cmd := exec.CommandContext(ctx, name, left, right, out)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrEditorProcess, err)
	}
	return nil
}

// ExecWindowControl asks a wmctrl-style utility to raise a window by title.
type ExecWindowControl struct {
	Command string // defaults to "wmctrl"
}

func (w *ExecWindowControl) Focus(title string) error {
	name := w.Command
	if name == "" {
		name = "wmctrl"
	}
	if err := exec.Command(name, "-a", title).Run(); err != nil {
		return fmt.Errorf("%s: %v", name, err)
	}
	return nil
}
