// Package main provides the workmem command: a terminal front end to a
// workspace's working memory, its checkpoints and its change watchers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/workmem/pkg/changes"
	"github.com/entrhq/workmem/pkg/config"
	"github.com/entrhq/workmem/pkg/logging"
	"github.com/entrhq/workmem/pkg/memory"
	"github.com/entrhq/workmem/pkg/metrics"
	"github.com/entrhq/workmem/pkg/tokenizer"
	"github.com/entrhq/workmem/pkg/tools"
	"github.com/entrhq/workmem/pkg/tools/items"
	"github.com/entrhq/workmem/pkg/tools/watch"
)

const version = "0.1.0"

const defaultWorkspace = "default"

// errUsage is returned after the usage text has been printed.
var errUsage = errors.New("invalid usage")

// options holds the global flags.
type options struct {
	ConfigPath  string
	DBPath      string
	Workspace   string
	Meta        bool
	ShowVersion bool
}

// app is everything a subcommand needs.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	store     *memory.Store
	registry  *changes.Registry
	metrics   *metrics.Collector
	tools     *tools.Registry
	workspace string
	meta      bool

	stdin  io.Reader
	stdout io.Writer
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "workmem: %v\n", err)
		}
		os.Exit(1)
	}
}

// run parses args, opens the store and dispatches to a subcommand.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := &options{}
	fs := flag.NewFlagSet("workmem", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: ~/.workmem/config.yaml)")
	fs.StringVar(&opts.DBPath, "db", "", "Database path (overrides config and "+config.EnvDatabase+")")
	fs.StringVar(&opts.Workspace, "workspace", defaultWorkspace, "Workspace the command acts on")
	fs.BoolVar(&opts.Meta, "meta", false, "Print tool metadata as JSON after the output")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version and exit")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if opts.ShowVersion {
		fmt.Fprintf(stdout, "workmem v%s\n", version)
		return nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	name, rest := fs.Arg(0), fs.Args()[1:]

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.DBPath != "" {
		cfg.Storage.Path = opts.DBPath
	}
	if name == "config" {
		return cmd.run(ctx, &app{cfg: cfg, stdout: stdout}, rest)
	}

	a, err := newApp(cfg, opts, stderr)
	if err != nil {
		return err
	}
	defer a.close()
	a.stdin = stdin
	a.stdout = stdout

	if err := cmd.run(ctx, a, rest); err != nil {
		a.log.Errorf("%s failed: %v", name, err)
		return err
	}
	return nil
}

// newApp wires the store, the subscription layer and the tools from cfg.
func newApp(cfg *config.Config, opts *options, stderr io.Writer) (*app, error) {
	if cfg.Logging.Directory != "" {
		logging.SetLogDirectory(cfg.Logging.Directory)
	}
	log, err := logging.NewLogger("workmem", logging.ParseLevel(cfg.Logging.Verbosity))
	if err != nil {
		fmt.Fprintf(stderr, "Warning: logging to stderr: %v\n", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := memory.Open(cfg.Storage.Path, memory.WithLogger(log.With("memory")))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	collector := metrics.NewCollector()
	registry := changes.NewRegistry(store,
		changes.WithTTL(cfg.Watchers.TTL),
		changes.WithRegistryLogger(log.With("watchers")),
		changes.WithRegistryObserver(collector),
	)
	resolver := changes.NewResolver(store,
		changes.WithLocation(loc),
		changes.WithDefaultWindow(cfg.Diff.DefaultWindow),
	)
	differ := changes.NewDiffer(store, resolver, log.With("diff"), changes.WithDiffObserver(collector))

	// The encoding may be fetched over the network, so it is only loaded
	// when output is actually budgeted.
	var shaper *watch.Shaper
	if cfg.Output.TokenBudget > 0 {
		tok, err := tokenizer.New()
		if err != nil {
			// A nil tokenizer estimates four characters per token.
			log.Warnf("tokenizer unavailable, estimating token counts: %v", err)
		}
		shaper = watch.NewShaper(tok, cfg.Output.TokenBudget)
	}

	toolRegistry := tools.NewRegistry()
	if err := items.Register(toolRegistry, opts.Workspace, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := watch.Register(toolRegistry, opts.Workspace, registry, differ, shaper); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	log.Debugf("opened %s for workspace %s", cfg.Storage.Path, opts.Workspace)
	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		registry:  registry,
		metrics:   collector,
		tools:     toolRegistry,
		workspace: opts.Workspace,
		meta:      opts.Meta,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warnf("closing store: %v", err)
	}
	_ = a.log.Close()
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "workmem - working memory with checkpoints, diffs and watchers\n\n")
	fmt.Fprintf(w, "Usage: workmem [options] <command> [command options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nOptions:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  %-18s Database path\n", config.EnvDatabase)
	fmt.Fprintf(w, "  %-18s Log verbosity (debug, info, warn, error)\n", config.EnvVerbosity)
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  workmem set -key task_auth -value \"add login\" -category task\n")
	fmt.Fprintf(w, "  workmem checkpoint -name before-refactor\n")
	fmt.Fprintf(w, "  workmem diff -since before-refactor\n")
	fmt.Fprintf(w, "  workmem watch create -keys 'task_*'\n")
	fmt.Fprintf(w, "  workmem watch poll <watcher-id>\n")
}
