package cli

import (
	"context"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/ardnew/muster/cli/cmd"
	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/pkg"
	"github.com/ardnew/muster/source"
)

// baseConfig is the base name of the configuration file.
const baseConfig = "config.yaml"

// CLI is the top-level command-line interface for muster.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Path   []string `default:"."                            help:"Search path directory; prepended to ${envPath}" name:"path"  placeholder:"DIR"  short:"I" type:"path"`
	Store  string   `help:"Resolve keys through a SQLite store instead of the search path"                          name:"store" placeholder:"DB"          type:"existingfile"`
	Views  string   `default:"${viewsDir}"                  help:"Template directory within each search path entry"`
	Frames string   `default:"${framesDir}"                 help:"Dictionary directory within each search path entry"`
	Ext    string   `default:"${templateExt}"               help:"Template file extension"`

	Render  cmd.Render  `cmd:"" default:"withargs" help:"Render a template (default)"`
	Dump    cmd.Dump    `cmd:""                    help:"Print a dictionary"`
	Repl    cmd.Repl    `cmd:""                    help:"Render interactively"`
	DB      cmd.Store   `cmd:""                    help:"Manage a SQLite template store" name:"store"`
	Init    cmd.Init    `cmd:""                    help:"Initialize configuration file"`
	Version cmd.Version `cmd:""                    help:"Print version"`
}

// Run executes the muster CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	return run(ctx, exit, nil, args...)
}

// run parses args and executes the selected command. Extra options are
// applied after the defaults, which lets tests redirect output.
func run(
	ctx context.Context,
	exit func(code int),
	extra []kong.Option,
	args ...string,
) error {
	var cli CLI

	if err := pkg.MkdirAll(); err != nil {
		return err
	}

	configFilePath := pkg.ConfigPath(baseConfig)

	vars := kong.Vars{
		cmd.ConfigIdentifier: configFilePath,
		cmd.CacheIdentifier:  pkg.CacheDir(),
		"viewsDir":           source.DefaultViewsDir,
		"framesDir":          source.DefaultFramesDir,
		"templateExt":        source.DefaultTemplateExt,
		"envPath":            pkg.EnvPath,
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pre-scan for logger flags to ensure early configuration regardless of
	// flag position.
	cli.Log.scan(args)

	opts := []kong.Option{
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				FlagsLast:           false,
				NoAppSummary:        false,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(resolve, configFilePath),
		vars,
	}

	parser, err := kong.New(&cli, append(opts, extra...)...)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// Stuff additional context values for use by commands
	ctx = cmd.WithContext(ctx, ktx)
	ctx = cmd.WithSources(ctx, cli.sources())

	cli.Log.start(ctx)

	ctx = log.NewContext(ctx, log.Default())

	// [pprofConfig.start] is no-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	log.DebugContext(ctx, "run command",
		slog.String("command", ktx.Command()),
	)

	return ktx.Run(ctx, &cli)
}

// sources describes the template and dictionary collaborators selected by
// the global flags.
func (c *CLI) sources() cmd.Sources {
	return cmd.Sources{
		Dirs:   source.SearchPath(c.Path...),
		Store:  c.Store,
		Views:  c.Views,
		Frames: c.Frames,
		Ext:    c.Ext,
	}
}
