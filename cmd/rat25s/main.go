// Rat25S CLI - compiles Rat25S programs into stack-machine listings
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"github.com/tliron/commonlog"

	"github.com/chazu/rat25s/driver"
	"github.com/chazu/rat25s/manifest"
	"github.com/chazu/rat25s/metrics"
	"github.com/chazu/rat25s/server"
	"github.com/chazu/rat25s/store"
	"github.com/chazu/rat25s/wire"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("rat25s")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, afero.NewOsFs())
	stop()
	os.Exit(code)
}

type options struct {
	config      string
	verbose     int
	lsp         bool
	db          string
	objectDir   string
	precedence  bool
	noTrace     bool
	baseAddress int
	capacity    int
	metricsAddr string
	limit       int
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("rat25s", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.config, "config", "c", "", "Manifest file (default: nearest rat25s.toml)")
	fs.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	fs.BoolVar(&opts.lsp, "lsp", false, "Serve the language server on stdio")
	fs.StringVar(&opts.db, "db", "", "SQLite database recording every run")
	fs.StringVar(&opts.objectDir, "object-dir", "", "Directory for compiled object files")
	fs.BoolVar(&opts.precedence, "precedence", false, "Give * and / precedence over + and -, and accept unary minus")
	fs.BoolVar(&opts.noTrace, "no-trace", false, "Omit production rules from the parsing output")
	fs.IntVar(&opts.baseAddress, "base-address", 0, "Address of the first declared identifier")
	fs.IntVar(&opts.capacity, "capacity", 0, "Maximum number of instructions per program")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.IntVarP(&opts.limit, "limit", "n", 20, "Number of runs shown by history")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: rat25s [options] [files...]\n")
		fmt.Fprintf(stderr, "       rat25s dump <file%s>\n", wire.Extension)
		fmt.Fprintf(stderr, "       rat25s history [case] --db runs.db\n\n")
		fmt.Fprintf(stderr, "Compiles each file, or every [[case]] of the manifest, and writes a transcript per case.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  rat25s test1.rat test2.rat          # Compile two files\n")
		fmt.Fprintf(stderr, "  rat25s -c ci.toml --db runs.db      # Run the manifest cases, record history\n")
		fmt.Fprintf(stderr, "  rat25s --object-dir obj prog.rat    # Also write obj/prog%s\n", wire.Extension)
		fmt.Fprintf(stderr, "  rat25s --lsp                        # Start the language server\n")
	}
	return fs
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fs afero.Fs) int {
	var opts options
	flags := newFlagSet(&opts, stderr)
	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	commonlog.Configure(opts.verbose, nil)

	m, err := loadManifest(fs, opts.config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	applyFlags(flags, &opts, m)

	positional := flags.Args()
	if len(positional) > 0 {
		switch positional[0] {
		case "dump":
			return dump(fs, positional[1:], stdout, stderr)
		case "history":
			return history(ctx, m, positional[1:], opts.limit, stdout, stderr)
		}
	}

	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr); err != nil {
				log.Errorf("%s", err)
			}
		}()
	}

	if opts.lsp {
		if err := server.NewLSP(m.Options()).Run(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	var cases []driver.Case
	if len(positional) > 0 {
		for _, path := range positional {
			cases = append(cases, driver.CaseForFile(path))
		}
	} else {
		cases = driver.CasesFromManifest(m)
	}
	if len(cases) == 0 {
		flags.Usage()
		return 2
	}

	cfg := driver.Config{
		Fs:        fs,
		Options:   m.Options(),
		ObjectDir: m.Resolve(m.Output.ObjectDir),
		Stdout:    stdout,
	}
	if db := m.Resolve(m.Output.Database); db != "" {
		st, err := store.Open(db)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer st.Close()
		cfg.Store = st
	}

	outcomes, err := driver.New(cfg).Run(ctx, cases)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	code := 0
	for _, out := range outcomes {
		if !out.OK() {
			code = 1
		}
	}
	return code
}

// loadManifest reads the manifest named by path, or the nearest rat25s.toml,
// falling back to defaults when there is none.
func loadManifest(fs afero.Fs, path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(fs, path)
	}
	m, err := manifest.FindAndLoad(fs, ".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// applyFlags overrides manifest values with the flags given on the command line.
func applyFlags(flags *flag.FlagSet, opts *options, m *manifest.Manifest) {
	if flags.Changed("precedence") {
		m.Compiler.Precedence = opts.precedence
	}
	if flags.Changed("no-trace") {
		m.Compiler.TraceProductions = !opts.noTrace
	}
	if flags.Changed("base-address") {
		m.Compiler.BaseAddress = opts.baseAddress
	}
	if flags.Changed("capacity") {
		m.Compiler.Capacity = opts.capacity
	}
	if flags.Changed("object-dir") {
		m.Output.ObjectDir = opts.objectDir
	}
	if flags.Changed("db") {
		m.Output.Database = opts.db
	}
}

func dump(fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, "Usage: rat25s dump <file%s>...\n", wire.Extension)
		return 2
	}
	for _, path := range args {
		obj, err := wire.ReadFile(fs, path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprint(stdout, obj.Dump())
	}
	return 0
}

func history(ctx context.Context, m *manifest.Manifest, args []string, limit int, stdout, stderr io.Writer) int {
	db := m.Resolve(m.Output.Database)
	if db == "" {
		fmt.Fprintf(stderr, "Error: history needs --db or [output] database\n")
		return 2
	}
	st, err := store.Open(db)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	var runs []*store.Run
	if len(args) > 0 {
		r, err := st.LatestRun(ctx, args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", errors.Wrapf(err, "case %s", args[0]))
			return 1
		}
		fmt.Fprint(stdout, r.Transcript)
		return 0
	}

	runs, err = st.ListRuns(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, r := range runs {
		detail := r.Fingerprint
		if r.Status != store.StatusOK {
			detail = r.Category
		}
		fmt.Fprintf(stdout, "%-5d %-20s %-6s %s  %s\n", r.ID, r.Case, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), detail)
	}
	return 0
}
