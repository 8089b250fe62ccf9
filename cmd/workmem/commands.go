package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"set":         {"Create or update an item", cmdSet},
	"get":         {"Show one item", cmdGet},
	"delete":      {"Delete an item", cmdDelete},
	"items":       {"List items visible to the workspace", cmdItems},
	"checkpoint":  {"Take a named checkpoint", cmdCheckpoint},
	"checkpoints": {"List checkpoints", cmdCheckpoints},
	"channels":    {"List channels in use", cmdChannels},
	"diff":        {"Show changes since a checkpoint, phrase or timestamp", cmdDiff},
	"watch":       {"Manage watchers: create, poll, stop, list", cmdWatch},
	"tool":        {"Execute a tool with XML arguments", cmdTool},
	"call":        {"Execute a <tool> call read from stdin", cmdCall},
	"prune":       {"Drop tombstones older than the retention period", cmdPrune},
	"sweep":       {"Expire idle watchers once", cmdSweep},
	"sweeper":     {"Expire idle watchers until interrupted", cmdSweeper},
	"config":      {"Print the effective configuration", cmdConfig},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", fs.Name(), err)
	}
	return nil
}

// itemArgs renders item command flags as an item tool's <arguments> block.
type itemArgs struct {
	XMLName     xml.Name `xml:"arguments"`
	Key         string   `xml:"key,omitempty"`
	Value       *string  `xml:"value,omitempty"`
	Category    string   `xml:"category,omitempty"`
	Priority    string   `xml:"priority,omitempty"`
	Channel     string   `xml:"channel,omitempty"`
	Shared      bool     `xml:"shared,omitempty"`
	Query       string   `xml:"query,omitempty"`
	Limit       int      `xml:"limit,omitempty"`
	Name        string   `xml:"name,omitempty"`
	Description string   `xml:"description,omitempty"`
}

func cmdSet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("set")
	var iargs itemArgs
	var value string
	fs.StringVar(&iargs.Key, "key", "", "Item key (required)")
	fs.StringVar(&value, "value", "", "Item value")
	fs.StringVar(&iargs.Category, "category", "", "task, decision, progress, note, error or warning")
	fs.StringVar(&iargs.Priority, "priority", "", "high, normal or low")
	fs.StringVar(&iargs.Channel, "channel", "", "Channel name")
	fs.BoolVar(&iargs.Shared, "shared", false, "Make the item visible to other workspaces")
	if err := parse(fs, args); err != nil {
		return err
	}
	iargs.Value = &value
	return a.execute(ctx, "set_item", &iargs)
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("get")
	var iargs itemArgs
	fs.StringVar(&iargs.Key, "key", "", "Item key (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	return a.execute(ctx, "get_item", &iargs)
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete")
	var iargs itemArgs
	fs.StringVar(&iargs.Key, "key", "", "Item key (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	return a.execute(ctx, "delete_item", &iargs)
}

func cmdItems(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("items")
	var iargs itemArgs
	fs.StringVar(&iargs.Category, "category", "", "Only items in this category")
	fs.StringVar(&iargs.Channel, "channel", "", "Only items in this channel")
	fs.StringVar(&iargs.Query, "query", "", "Text that must appear in the key or value")
	fs.IntVar(&iargs.Limit, "limit", 0, "Maximum number of items (default 20)")
	if err := parse(fs, args); err != nil {
		return err
	}
	return a.execute(ctx, "list_items", &iargs)
}

func cmdChannels(ctx context.Context, a *app, args []string) error {
	return a.execute(ctx, "list_channels", &itemArgs{})
}

func cmdCheckpoint(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("checkpoint")
	var iargs itemArgs
	fs.StringVar(&iargs.Name, "name", "", "Checkpoint name (required)")
	fs.StringVar(&iargs.Description, "description", "", "Optional description")
	if err := parse(fs, args); err != nil {
		return err
	}
	return a.execute(ctx, "create_checkpoint", &iargs)
}

func cmdCheckpoints(ctx context.Context, a *app, args []string) error {
	return a.execute(ctx, "list_checkpoints", &itemArgs{})
}

// toolArgs renders command flags as a tool's <arguments> block.
type toolArgs struct {
	XMLName       xml.Name `xml:"arguments"`
	WatcherID     string   `xml:"watcher_id,omitempty"`
	Since         string   `xml:"since,omitempty"`
	IncludeValues *bool    `xml:"include_values,omitempty"`
	Keys          []string `xml:"keys>key,omitempty"`
	Channels      []string `xml:"channels>channel,omitempty"`
	Categories    []string `xml:"categories>category,omitempty"`
	Priorities    []string `xml:"priorities>priority,omitempty"`
}

// filterFlags registers the comma-separated filter flags on fs.
func (t *toolArgs) filterFlags(fs *flag.FlagSet) {
	fs.Func("keys", "Comma-separated key patterns (* and ? wildcards)", listFlag(&t.Keys))
	fs.Func("channels", "Comma-separated channels", listFlag(&t.Channels))
	fs.Func("categories", "Comma-separated categories", listFlag(&t.Categories))
	fs.Func("priorities", "Comma-separated priorities", listFlag(&t.Priorities))
}

func listFlag(dst *[]string) func(string) error {
	return func(v string) error {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				*dst = append(*dst, part)
			}
		}
		return nil
	}
}

func cmdDiff(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("diff")
	var targs toolArgs
	fs.StringVar(&targs.Since, "since", "", "Checkpoint, phrase or timestamp (default: the configured window)")
	noValues := fs.Bool("no-values", false, "Omit item values")
	targs.filterFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *noValues {
		include := false
		targs.IncludeValues = &include
	}
	return a.execute(ctx, "diff", &targs)
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("watch: expected create, poll, stop or list")
	}
	sub, rest := args[0], args[1:]
	fs := newFlagSet("watch " + sub)
	var targs toolArgs

	switch sub {
	case "create":
		targs.filterFlags(fs)
		if err := parse(fs, rest); err != nil {
			return err
		}
		return a.execute(ctx, "create_watcher", &targs)
	case "poll", "stop":
		if err := parse(fs, rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("watch %s: expected a watcher id", sub)
		}
		targs.WatcherID = fs.Arg(0)
		return a.execute(ctx, sub+"_watcher", &targs)
	case "list":
		if err := parse(fs, rest); err != nil {
			return err
		}
		return a.execute(ctx, "list_watchers", &targs)
	default:
		return fmt.Errorf("watch: unknown subcommand %q", sub)
	}
}

// execute marshals args to XML and runs the named tool.
func (a *app) execute(ctx context.Context, name string, args interface{}) error {
	argsXML, err := xml.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	out, meta, err := a.tools.Execute(ctx, name, argsXML)
	if err != nil {
		return err
	}
	return a.print(out, meta)
}

func cmdTool(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		names := make([]string, 0)
		for _, t := range a.tools.List() {
			names = append(names, t.Name())
		}
		return fmt.Errorf("tool: expected a tool name (one of %s)", strings.Join(names, ", "))
	}
	var argsXML []byte
	if len(args) > 1 {
		argsXML = []byte(strings.Join(args[1:], " "))
	} else {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return fmt.Errorf("failed to read arguments: %w", err)
		}
		argsXML = data
	}
	out, meta, err := a.tools.Execute(ctx, args[0], argsXML)
	if err != nil {
		return err
	}
	return a.print(out, meta)
}

func cmdCall(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("call: reads the tool call from stdin and takes no arguments")
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return fmt.Errorf("failed to read tool call: %w", err)
	}
	out, meta, err := a.tools.Dispatch(ctx, string(data))
	if err != nil {
		return err
	}
	return a.print(out, meta)
}

func (a *app) print(out string, meta map[string]interface{}) error {
	fmt.Fprintln(a.stdout, out)
	if !a.meta {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	fmt.Fprintln(a.stdout, string(data))
	return nil
}

func cmdPrune(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("prune")
	retention := fs.Duration("retention", a.cfg.Tombstones.Retention, "Keep tombstones younger than this")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *retention <= 0 {
		fmt.Fprintln(a.stdout, "Tombstone retention is unlimited; nothing pruned.")
		return nil
	}
	n, err := a.store.PruneTombstones(ctx, a.store.Now().Add(-*retention))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Pruned %d tombstone(s)\n", n)
	return nil
}

func cmdSweep(ctx context.Context, a *app, args []string) error {
	n, err := a.registry.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Expired %d watcher(s)\n", n)
	return nil
}

func cmdSweeper(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("sweeper")
	interval := fs.Duration("interval", a.cfg.Watchers.SweepInterval, "Time between sweeps")
	addr := fs.String("metrics-addr", a.cfg.Metrics.Address, "Serve Prometheus metrics on this address")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("sweeper: interval must be positive (watchers.sweep_interval is %s)", a.cfg.Watchers.SweepInterval)
	}

	if *addr != "" {
		stop, err := a.serveMetrics(*addr)
		if err != nil {
			return err
		}
		defer stop()
		fmt.Fprintf(a.stdout, "Serving metrics on http://%s/metrics\n", *addr)
	}

	fmt.Fprintf(a.stdout, "Sweeping idle watchers every %s\n", *interval)
	err := a.registry.Run(ctx, *interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMetrics starts the /metrics endpoint and returns a function that
// shuts it down.
func (a *app) serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.log.Warnf("metrics server shutdown: %v", err)
		}
	}, nil
}

func cmdConfig(_ context.Context, a *app, _ []string) error {
	data, err := yaml.Marshal(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = a.stdout.Write(data)
	return err
}
