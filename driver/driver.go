// Package driver compiles a list of cases and writes one transcript per case.
package driver

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/rat25s/compiler"
	"github.com/chazu/rat25s/compiler/hash"
	"github.com/chazu/rat25s/manifest"
	"github.com/chazu/rat25s/metrics"
	"github.com/chazu/rat25s/store"
	"github.com/chazu/rat25s/wire"
)

var log = commonlog.GetLogger("rat25s.driver")

// ErrSourceNotFound is reported for a case whose source file is missing.
var ErrSourceNotFound = errors.New("source not found")

// Case names one source file and where its transcript goes.
type Case struct {
	Name   string
	Source string
	Output string // empty means <source dir>/<name>_output.txt
}

// CasesFromManifest resolves the manifest's [[case]] entries against its directory.
func CasesFromManifest(m *manifest.Manifest) []Case {
	cases := make([]Case, len(m.Cases))
	for i, c := range m.Cases {
		cases[i] = Case{Name: c.Name, Source: m.Resolve(c.Source), Output: m.Resolve(c.Output)}
	}
	return cases
}

// CaseForFile builds a case from a bare source path.
func CaseForFile(path string) Case {
	base := filepath.Base(path)
	return Case{Name: strings.TrimSuffix(base, filepath.Ext(base)), Source: path}
}

func (c Case) outputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return filepath.Join(filepath.Dir(c.Source), c.Name+"_output.txt")
}

// Config configures a Driver. Only Fs is required.
type Config struct {
	Fs        afero.Fs
	Options   compiler.Options
	ObjectDir string       // when set, successful runs also write an object file
	Store     *store.Store // when set, every outcome is recorded
	Stdout    io.Writer    // when set, transcripts are replayed here in case order
	Workers   int          // zero means runtime.NumCPU()
}

// Outcome is the result of one case.
type Outcome struct {
	Case        Case
	Result      *compiler.Result // nil when the source could not be read
	Err         error            // compile error or ErrSourceNotFound
	Fingerprint string           // hex fingerprint of a successful run
	Transcript  string
}

// OK reports whether the case compiled.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Driver runs cases.
type Driver struct {
	cfg Config
}

// New creates a Driver.
func New(cfg Config) *Driver {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Driver{cfg: cfg}
}

// Run compiles every case. Each case gets its own compilation state, so
// cases run concurrently and a failure in one never affects another.
// Outcomes are returned in case order. The returned error reports I/O
// failures only; compile errors are carried in each Outcome.
func (d *Driver) Run(ctx context.Context, cases []Case) ([]Outcome, error) {
	outcomes := make([]Outcome, len(cases))

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i := range cases {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := d.runCase(ctx, cases[i])
			outcomes[i] = out
			return err
		})
	}
	err := g.Wait()

	if d.cfg.Stdout != nil {
		for _, out := range outcomes {
			if _, werr := io.WriteString(d.cfg.Stdout, out.Transcript); werr != nil && err == nil {
				err = errors.Wrap(werr, "replay transcript")
			}
		}
	}
	return outcomes, err
}

func (d *Driver) runCase(ctx context.Context, c Case) (Outcome, error) {
	out := Outcome{Case: c}

	data, err := afero.ReadFile(d.cfg.Fs, c.Source)
	if err != nil {
		if !os.IsNotExist(err) {
			return out, errors.Wrapf(err, "read %s", c.Source)
		}
		log.Warningf("case %s: %s not found", c.Name, c.Source)
		out.Err = errors.Wrap(ErrSourceNotFound, c.Source)
		var buf bytes.Buffer
		_ = writeMissing(&buf, c.Name, c.Source)
		out.Transcript = buf.String()
		return out, nil
	}

	res, compileErr := compiler.Compile(string(data), d.cfg.Options)
	metrics.Observe(res, compileErr)
	out.Result = res
	out.Err = compileErr

	var buf bytes.Buffer
	if err := WriteTranscript(&buf, c.Name, res, compileErr); err != nil {
		return out, errors.Wrap(err, "render transcript")
	}
	out.Transcript = buf.String()

	if compileErr != nil {
		log.Infof("case %s: %s", c.Name, compileErr)
	} else {
		out.Fingerprint = hash.String(hash.Fingerprint(res))
		log.Infof("case %s: %d instructions, fingerprint %s", c.Name, len(res.Instructions), out.Fingerprint)
	}

	if err := d.writeOutput(c, out); err != nil {
		return out, err
	}
	if err := d.writeObject(c, res, compileErr); err != nil {
		return out, err
	}
	if err := d.record(ctx, out); err != nil {
		return out, err
	}
	return out, nil
}

func (d *Driver) writeOutput(c Case, out Outcome) error {
	path := c.outputPath()
	if err := d.cfg.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	return errors.Wrapf(afero.WriteFile(d.cfg.Fs, path, []byte(out.Transcript), 0o644), "write %s", path)
}

func (d *Driver) writeObject(c Case, res *compiler.Result, compileErr error) error {
	if d.cfg.ObjectDir == "" || compileErr != nil {
		return nil
	}
	if err := d.cfg.Fs.MkdirAll(d.cfg.ObjectDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", d.cfg.ObjectDir)
	}
	path := filepath.Join(d.cfg.ObjectDir, c.Name+wire.Extension)
	return wire.WriteFile(d.cfg.Fs, path, wire.NewObject(c.Source, res))
}

func (d *Driver) record(ctx context.Context, out Outcome) error {
	if d.cfg.Store == nil {
		return nil
	}
	run := &store.Run{
		Case:        out.Case.Name,
		Fingerprint: out.Fingerprint,
		Status:      store.StatusOK,
		Transcript:  out.Transcript,
	}
	if out.Err != nil {
		run.Status = store.StatusError
		run.Category = compiler.Category(out.Err)
		run.Message = out.Err.Error()
	}
	_, err := d.cfg.Store.SaveRun(ctx, run)
	return err
}
