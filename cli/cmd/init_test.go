package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// initContext parses args against a small flag set resembling the global
// muster flags, with the config file at confPath.
func initContext(t *testing.T, confPath string, args ...string) context.Context {
	t.Helper()

	var cli struct {
		Path   []string `name:"path"`
		Ext    string   `default:"html"`
		Quiet  bool
		Depth  int    `default:"7"`
		Secret string `hidden:""`
		Pprof  string `name:"pprof-mode"`
	}

	parser, err := kong.New(&cli, kong.Vars{ConfigIdentifier: confPath})
	if err != nil {
		t.Fatal(err)
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}

	return WithContext(context.Background(), ktx)
}

// TestInitRun tests the Init.Run command.
func TestInitRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		force   bool
		exists  bool
		wantErr error
	}{
		{"create_new_config", false, false, nil},
		{"overwrite_existing_with_force", true, true, nil},
		{"fail_without_force", false, true, ErrFileExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

			if tt.exists {
				writeTestFile(t, confPath, "existing content")
			}

			ctx := initContext(t, confPath,
				"--path=/a", "--path=/b", "--quiet", "--secret=x", "--pprof-mode=cpu")

			err := (&Init{Force: tt.force}).Run(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Init.Run() error = %v, want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Init.Run() error = %v", err)
			}

			data, err := os.ReadFile(confPath)
			if err != nil {
				t.Fatal(err)
			}

			var got map[string]any
			if err := yaml.Unmarshal(data, &got); err != nil {
				t.Fatalf("generated config is not valid YAML: %v\n%s", err, data)
			}

			if len(got) != 4 {
				t.Errorf("config has %d entries, want 4:\n%s", len(got), data)
			}

			if got["ext"] != "html" || got["quiet"] != true {
				t.Errorf("config = %v", got)
			}

			if path, ok := got["path"].([]any); !ok || len(path) != 2 || path[0] != "/a" {
				t.Errorf("config path = %#v", got["path"])
			}

			for _, skip := range []string{"secret", "pprof-mode", "help"} {
				if _, ok := got[skip]; ok {
					t.Errorf("config contains %q", skip)
				}
			}
		})
	}
}

// TestInitWithInvalidPath tests init with a path that cannot be created.
func TestInitWithInvalidPath(t *testing.T) {
	t.Parallel()

	parent := writeTestFile(t, filepath.Join(t.TempDir(), "file"), "")

	ctx := initContext(t, filepath.Join(parent, "config.yaml"))

	if err := (&Init{}).Run(ctx); !errors.Is(err, ErrWriteConfig) {
		t.Errorf("Init.Run() error = %v, want %v", err, ErrWriteConfig)
	}
}

func TestInitFlagValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  any
		want   any
		wantOK bool
	}{
		{"nil", nil, nil, false},
		{"bool_false", false, false, true},
		{"string", "text", "text", true},
		{"empty_string", "", nil, false},
		{"int", 42, int64(42), true},
		{"uint", uint8(7), uint64(7), true},
		{"float", 0.5, 0.5, true},
		{"empty_slice", []string{}, nil, false},
		{"slice_of_empty", []string{""}, nil, false},
		{"other", struct{ A int }{1}, "{1}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := flagValue(tt.value)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("flagValue(%#v) = %#v, %v, want %#v, %v",
					tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	got, ok := flagValue([]int{1, 2})
	if items, isList := got.([]any); !ok || !isList || len(items) != 2 || items[1] != int64(2) {
		t.Errorf("flagValue([]int) = %#v, %v", got, ok)
	}
}
