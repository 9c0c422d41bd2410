// Package build compiles many units concurrently. All units share one
// immutable Seed; each compilation gets its own Namespace.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"cscript/pkg/asm"
	"cscript/pkg/cache"
	"cscript/pkg/compiler"
	"cscript/pkg/scriptfile"
	"cscript/pkg/utils"
)

var log = commonlog.GetLogger("cscript.build")

// ListingExt is the extension of listing files written beside artifacts.
const ListingExt = ".lst"

type Options struct {
	Compiler compiler.Options
	// Headers are prepended to every unit.
	Headers []compiler.Unit
	// Jobs bounds the number of concurrent compilations. Zero means
	// GOMAXPROCS.
	Jobs int
	// Cache is consulted before compiling when set.
	Cache *cache.Cache
	// OutDir receives one artifact per unit when set.
	OutDir string
	// Listing also writes a disassembly of each unit.
	Listing bool
}

// Result is the outcome for one unit. Artifact is nil when the unit had
// errors.
type Result struct {
	Unit     string
	Artifact *scriptfile.Artifact
	Results  *compiler.Results
	Cached   bool
	OutPath  string
}

func (r *Result) Failed() bool {
	return r.Artifact == nil
}

type Builder struct {
	opts     Options
	pipeline *compiler.Pipeline
}

func New(opts Options) *Builder {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	return &Builder{opts: opts, pipeline: compiler.NewPipeline(opts.Compiler)}
}

// Build compiles units and returns one Result per unit in input order.
// Compile errors are reported in the results; the returned error is for
// I/O and cache failures and cancellation.
func (b *Builder) Build(ctx context.Context, units []compiler.Unit) ([]*Result, error) {
	out := make([]*Result, len(units))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Jobs)

	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := b.buildUnit(u)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Name, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range out {
		if r.Failed() {
			failed++
		}
	}
	log.Infof("built %d units, %d failed", len(units), failed)
	return out, nil
}

// digest covers every preprocessed line, so edits to included scripts and
// macro changes invalidate cached artifacts.
func (b *Builder) digest(lines []compiler.SourceLine) [32]byte {
	o := b.opts.Compiler
	texts := []string{strconv.FormatBool(o.LineNumbers), strconv.FormatBool(o.ExportAll)}
	for _, l := range lines {
		texts = append(texts, l.Unit, strconv.Itoa(l.Line), l.Text)
	}
	return scriptfile.Digest(texts...)
}

func (b *Builder) buildUnit(u compiler.Unit) (*Result, error) {
	r := &Result{Unit: u.Name}

	var key [32]byte
	if b.opts.Cache != nil {
		lines, pre := b.pipeline.Preprocess(u, b.opts.Headers...)
		if !pre.HasErrors() {
			key = b.digest(lines)
			a, err := b.fromCache(key)
			if err != nil {
				return nil, err
			}
			if a != nil {
				log.Debugf("%s: cache hit", u.Name)
				r.Artifact, r.Cached, r.Results = a, true, pre
				return r, b.write(r)
			}
		}
	}

	cs, results := b.pipeline.Compile(u, b.opts.Headers...)
	r.Results = results
	if cs == nil {
		return r, nil
	}
	if key == ([32]byte{}) {
		texts := make([]string, 0, len(b.opts.Headers)+1)
		for _, h := range b.opts.Headers {
			texts = append(texts, h.Source)
		}
		key = scriptfile.Digest(append(texts, u.Source)...)
	}
	r.Artifact = scriptfile.FromScript(cs, key)

	if b.opts.Cache != nil {
		data, err := scriptfile.Marshal(r.Artifact)
		if err != nil {
			return nil, err
		}
		if _, err := b.opts.Cache.Put(u.Name, key, data); err != nil {
			return nil, err
		}
	}
	return r, b.write(r)
}

func (b *Builder) fromCache(key [32]byte) (*scriptfile.Artifact, error) {
	data, err := b.opts.Cache.Get(key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a, err := scriptfile.Unmarshal(data)
	if err != nil {
		// stale format; recompile and overwrite
		log.Warningf("discarding cached artifact: %s", err)
		return nil, nil
	}
	return a, nil
}

func (b *Builder) write(r *Result) error {
	if b.opts.OutDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.opts.OutDir, 0o755); err != nil {
		return err
	}
	data, err := scriptfile.Marshal(r.Artifact)
	if err != nil {
		return err
	}
	r.OutPath = utils.OutputPath(r.Unit, b.opts.OutDir, scriptfile.Ext)
	if err := os.WriteFile(r.OutPath, data, 0o644); err != nil {
		return err
	}
	if !b.opts.Listing {
		return nil
	}
	text, err := asm.Disassemble(r.Artifact.Code)
	if err != nil {
		return err
	}
	return os.WriteFile(utils.OutputPath(r.Unit, b.opts.OutDir, ListingExt), []byte(text), 0o644)
}

// LoadUnits reads script sources from disk. Unit names are the base names
// of the paths.
func LoadUnits(paths ...string) ([]compiler.Unit, error) {
	units := make([]compiler.Unit, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		units = append(units, compiler.Unit{Name: filepath.Base(p), Source: string(raw)})
	}
	return units, nil
}
