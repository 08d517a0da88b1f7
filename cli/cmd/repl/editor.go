package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

const defaultEditor = "vi"

// editorCommand returns the command line of the user's editor, preferring
// $VISUAL over $EDITOR.
func editorCommand() []string {
	for _, name := range []string{"VISUAL", "EDITOR"} {
		if args := strings.Fields(os.Getenv(name)); len(args) > 0 {
			return args
		}
	}

	return []string{defaultEditor}
}

// editDictCommand implements [tea.ExecCommand] for editing the root
// dictionary as YAML in an external editor.
//
// A document that fails to decode is offered back to the user for another
// pass. Declining ends the program.
type editDictCommand struct {
	root    view.Map
	ctxFunc func() context.Context
	result  view.Map
	logger  log.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func (c *editDictCommand) SetStdin(r io.Reader)  { c.stdin = r }
func (c *editDictCommand) SetStdout(w io.Writer) { c.stdout = w }
func (c *editDictCommand) SetStderr(w io.Writer) { c.stderr = w }

// Run edits until the document decodes, the user empties it, or the user
// declines to retry. An emptied document leaves result nil. Declining
// returns [ErrEditDeclined].
func (c *editDictCommand) Run() error {
	ctx := c.ctxFunc()

	doc, err := source.EncodeDictionary(c.root, false)
	if err != nil {
		return err
	}

	path, err := scratchFile()
	if err != nil {
		return err
	}

	defer os.Remove(path)

	for attempt := 1; ; attempt++ {
		dict, edited, err := c.edit(ctx, path, doc)
		if err != nil {
			return err
		}

		c.logger.TraceContext(ctx, "editor pass",
			slog.Int("attempt", attempt),
			slog.Int("bytes", len(edited)),
			slog.Bool("decoded", dict != nil),
		)

		switch {
		case strings.TrimSpace(string(edited)) == "":
			return nil
		case dict != nil:
			c.result = dict

			return nil
		case !c.retry():
			return ErrEditDeclined
		}

		doc = edited
	}
}

// edit writes doc to path, runs the editor on it, and decodes what the
// user saved. dict is nil when the saved document is empty or invalid.
func (c *editDictCommand) edit(
	ctx context.Context,
	path string,
	doc []byte,
) (dict view.Map, edited []byte, err error) {
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		return nil, nil, err
	}

	args := editorCommand()

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], path)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = c.stdin, c.stdout, c.stderr

	if err := cmd.Run(); err != nil {
		return nil, nil, err
	}

	if edited, err = source.ReadFile(path); err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(string(edited)) == "" {
		return nil, edited, nil
	}

	dict, err = source.DecodeDictionary(edited)
	if err != nil {
		fmt.Fprintf(c.stderr, "\nDecode error: %s\n", err)

		return nil, edited, nil
	}

	return dict, edited, nil
}

// retry asks whether to reopen the editor. Anything but an explicit no,
// including an empty answer, means yes.
func (c *editDictCommand) retry() bool {
	fmt.Fprint(c.stdout, "Re-edit? [Y/n] ")

	scanner := bufio.NewScanner(c.stdin)
	if !scanner.Scan() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "n", "no":
		return false
	}

	return true
}

// scratchFile creates an empty private temp file for the editor.
func scratchFile() (string, error) {
	f, err := os.CreateTemp("", "muster-repl-*.yaml")
	if err != nil {
		return "", err
	}

	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())

		return "", err
	}

	return f.Name(), nil
}
