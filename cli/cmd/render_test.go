package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
)

// commandContext returns a context carrying a kong application that writes
// to the returned buffer, and src as the command sources.
func commandContext(t *testing.T, src Sources) (context.Context, *bytes.Buffer) {
	t.Helper()

	var (
		buf bytes.Buffer
		cli struct{}
	)

	parser, err := kong.New(&cli, kong.Writers(&buf, io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	ktx, err := parser.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithContext(context.Background(), ktx)

	return WithSources(ctx, src), &buf
}

// fixture creates a search path entry and returns its directory.
func fixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	writeTestFile(t, filepath.Join(dir, "views", "card.html"),
		"{{#user}}<b>{{name}}</b>{{>badge}}{{/user}}")
	writeTestFile(t, filepath.Join(dir, "views", "badge.html"), "[{{*site}}]")
	writeTestFile(t, filepath.Join(dir, "frames", "people.yaml"),
		"site: example\nuser:\n  name: Ann\n")

	return dir
}

func TestRender(t *testing.T) {
	dir := fixture(t)
	over := writeTestFile(t, filepath.Join(t.TempDir(), "over.json"), `{"site": "override"}`)
	tpl := writeTestFile(t, filepath.Join(t.TempDir(), "inline.html"), "{{site}}|{{#user}}{{name}}{{/user}}")

	tests := []struct {
		name string
		cmd  Render
		want string
	}{
		{
			name: "template_key",
			cmd:  Render{Key: "card", DictKey: "people"},
			want: "<b>Ann</b>[example]",
		},
		{
			name: "dictionary_overlay",
			cmd:  Render{Key: "card", DictKey: "people", Dict: []string{over}},
			want: "<b>Ann</b>[override]",
		},
		{
			name: "template_file",
			cmd:  Render{Files: []string{tpl}, DictKey: "people"},
			want: "example|Ann",
		},
		{
			name: "assignment",
			cmd:  Render{Files: []string{tpl}, DictKey: "people", Set: []string{`site=upper(site) + "!"`}},
			want: "EXAMPLE!|Ann",
		},
		{
			name: "escaped",
			cmd:  Render{Files: []string{tpl}, Set: []string{`site="<&>"`}},
			want: "&lt;&amp;&gt;|",
		},
		{
			name: "raw",
			cmd:  Render{Files: []string{tpl}, Raw: true, Set: []string{`site="<&>"`}},
			want: "<&>|",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, buf := commandContext(t, Sources{Dirs: []string{dir}})

			tt.cmd.MaxDepth = 100
			if err := tt.cmd.Run(ctx); err != nil {
				t.Fatalf("Render.Run() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Render.Run() wrote %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Stdin(t *testing.T) {
	withStdin(t, "Hi {{who}}")

	ctx, buf := commandContext(t, Sources{})

	cmd := Render{Set: []string{`who="there"`}, MaxDepth: 100}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("Render.Run() error = %v", err)
	}

	if got, want := buf.String(), "Hi there"; got != want {
		t.Errorf("Render.Run() wrote %q, want %q", got, want)
	}
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTestFile(t, filepath.Join(dir, "t.html"), "x")
	bad := writeTestFile(t, filepath.Join(dir, "bad.yaml"), "just a string\n")

	tests := []struct {
		name string
		cmd  Render
		want error
	}{
		{"missing_template", Render{Files: []string{filepath.Join(dir, "nope")}}, ErrNoTemplate},
		{"bad_dictionary", Render{Files: []string{tpl}, Dict: []string{bad}}, ErrReadInput},
		{"bad_assignment", Render{Files: []string{tpl}, Set: []string{"noequals"}}, source.ErrAssign},
		{"watch_stdin", Render{Files: []string{stdinSource}, Watch: true}, ErrWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.Watch {
				withStdin(t, "")
			}

			ctx, _ := commandContext(t, Sources{})

			if err := tt.cmd.Run(ctx); !errors.Is(err, tt.want) {
				t.Errorf("Render.Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRender_Output(t *testing.T) {
	dir := fixture(t)
	out := filepath.Join(t.TempDir(), "card.out")

	ctx, buf := commandContext(t, Sources{Dirs: []string{dir}})

	cmd := Render{Key: "card", DictKey: "people", Output: out, MaxDepth: 100}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("Render.Run() error = %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("stdout = %q, want nothing", buf.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := string(data), "<b>Ann</b>[example]"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRender_Watch(t *testing.T) {
	dir := fixture(t)
	out := filepath.Join(t.TempDir(), "card.out")

	ctx, _ := commandContext(t, Sources{Dirs: []string{dir}})
	ctx, cancel := context.WithCancel(ctx)

	cmd := Render{Key: "card", DictKey: "people", Output: out, MaxDepth: 100, Watch: true}

	done := make(chan error, 1)

	go func() { done <- cmd.Run(ctx) }()

	wait := func(want string) {
		t.Helper()

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if data, err := os.ReadFile(out); err == nil && string(data) == want {
				return
			}

			time.Sleep(20 * time.Millisecond)
		}

		t.Fatalf("output never became %q", want)
	}

	wait("<b>Ann</b>[example]")

	// Give the watcher time to register before changing an input.
	time.Sleep(200 * time.Millisecond)

	writeTestFile(t, filepath.Join(dir, "views", "badge.html"), "({{*site}})")
	wait("<b>Ann</b>(example)")

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Render.Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchSet(t *testing.T) {
	dir := fixture(t)
	dict := writeTestFile(t, filepath.Join(t.TempDir(), "extra.yaml"), "a: 1\n")
	out := filepath.Join(t.TempDir(), "page.html")

	ctx, _ := commandContext(t, Sources{Dirs: []string{dir}})

	cmd := Render{Key: "card", Dict: []string{dict}, Output: out}

	set, err := cmd.watchSet(ctx)
	if err != nil {
		t.Fatalf("watchSet() error = %v", err)
	}

	sibling := filepath.Join(filepath.Dir(dict), "other.yaml")

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"view_write", fsnotify.Event{Name: filepath.Join(dir, "views", "card.html"), Op: fsnotify.Write}, true},
		{"frame_create", fsnotify.Event{Name: filepath.Join(dir, "frames", "new.yaml"), Op: fsnotify.Create}, true},
		{"dict_rename", fsnotify.Event{Name: dict, Op: fsnotify.Rename}, true},
		{"dict_chmod", fsnotify.Event{Name: dict, Op: fsnotify.Chmod}, false},
		{"unrelated_sibling", fsnotify.Event{Name: sibling, Op: fsnotify.Write}, false},
		{"output", fsnotify.Event{Name: out, Op: fsnotify.Write}, false},
		{"output_temp", fsnotify.Event{Name: out + "123456", Op: fsnotify.Create}, false},
		{"outside", fsnotify.Event{Name: filepath.Join(dir, "README"), Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.match(tt.ev); got != tt.want {
				t.Errorf("match(%v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}

	sub := filepath.Join(dir, "views", "partials")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	if got, ok := set.grow(fsnotify.Event{Name: sub, Op: fsnotify.Create}); !ok || got != sub {
		t.Errorf("grow(%q) = %q, %v", sub, got, ok)
	}

	ev := fsnotify.Event{Name: filepath.Join(sub, "x.html"), Op: fsnotify.Write}
	if !set.match(ev) {
		t.Errorf("match(%v) = false after grow", ev)
	}
}

func TestWatchSet_Store(t *testing.T) {
	db := filepath.Join(t.TempDir(), "site.db")

	ctx, _ := commandContext(t, Sources{Store: db, Dirs: []string{t.TempDir()}})

	set, err := (&Render{Key: "x"}).watchSet(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(set.trees) != 0 {
		t.Errorf("store watch set has trees: %v", set.trees)
	}

	for _, name := range []string{db, db + "-wal"} {
		if !set.match(fsnotify.Event{Name: name, Op: fsnotify.Write}) {
			t.Errorf("match(%q) = false", name)
		}
	}
}

func TestDump(t *testing.T) {
	dir := fixture(t)

	tests := []struct {
		name string
		cmd  Dump
		want []string
	}{
		{"yaml", Dump{DictKey: "people"}, []string{"site: example", "name: Ann"}},
		{"json", Dump{DictKey: "people", JSON: true}, []string{`"site"`, `"Ann"`}},
		{"set", Dump{Set: []string{"total=1+1"}}, []string{"total: 2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, buf := commandContext(t, Sources{Dirs: []string{dir}})

			if err := tt.cmd.Run(ctx); err != nil {
				t.Fatalf("Dump.Run() error = %v", err)
			}

			got := buf.String()
			if !strings.HasSuffix(got, "\n") {
				t.Errorf("Dump.Run() output lacks trailing newline: %q", got)
			}

			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Dump.Run() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestStoreCommands(t *testing.T) {
	dir := fixture(t)
	db := filepath.Join(t.TempDir(), "site.db")

	ctx, buf := commandContext(t, Sources{Dirs: []string{dir}})

	if err := (&StoreImport{DB: db}).Run(ctx); err != nil {
		t.Fatalf("StoreImport.Run() error = %v", err)
	}

	for _, tt := range []struct {
		dicts bool
		want  string
	}{
		{false, "badge\ncard\n"},
		{true, "people\n"},
	} {
		buf.Reset()

		if err := (&StoreList{DB: db, Dictionaries: tt.dicts}).Run(ctx); err != nil {
			t.Fatalf("StoreList.Run() error = %v", err)
		}

		if got := buf.String(); got != tt.want {
			t.Errorf("StoreList(dictionaries=%v) = %q, want %q", tt.dicts, got, tt.want)
		}
	}
}

func TestVersion(t *testing.T) {
	ctx, buf := commandContext(t, Sources{})

	if err := (Version{}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(buf.String(), "muster ") {
		t.Errorf("Version.Run() = %q", buf.String())
	}
}

func TestReplEngine(t *testing.T) {
	dir := fixture(t)

	ctx, _ := commandContext(t, Sources{Dirs: []string{dir}})

	coll, release, err := sourcesFrom(ctx).open(ctx, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	engine, err := (&Repl{DictKey: "people", Set: []string{"n=len(site)"}}).engine(ctx, coll, log.Discard())
	if err != nil {
		t.Fatalf("Repl.engine() error = %v", err)
	}

	if got, want := engine.Expand(ctx, "{{n}} {{>card}}"), "7 <b>Ann</b>[example]"; got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}
