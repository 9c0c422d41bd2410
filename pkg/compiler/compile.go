package compiler

import (
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cscript.compiler")

// Options control a Pipeline.
type Options struct {
	// AppVersion is compared by #ifver and #ifnver.
	AppVersion string
	// LineNumbers emits a LINENUM instruction for each source line that
	// produces code.
	LineNumbers bool
	// ExportAll exports every function with a body.
	ExportAll bool
	// Macros are defined before the first header is read.
	Macros map[string]string
	// Resolver supplies #include text. Nil makes every include fail.
	Resolver IncludeResolver
}

// Unit is one named piece of script source.
type Unit struct {
	Name   string
	Source string
}

// Pipeline compiles units against one immutable Seed. A Pipeline may be
// used from several goroutines; every Compile call builds a private
// Namespace.
type Pipeline struct {
	seed *Seed
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	return NewPipelineWithSeed(NewSeed(), opts)
}

// NewPipelineWithSeed shares an existing seed, for builders that run many
// pipelines.
func NewPipelineWithSeed(seed *Seed, opts Options) *Pipeline {
	return &Pipeline{seed: seed, opts: opts}
}

func (p *Pipeline) Options() Options { return p.opts }

// Compile preprocesses the headers and then unit into one token stream and
// compiles it. The script is nil when any error was reported; warnings do
// not prevent it.
func (p *Pipeline) Compile(unit Unit, headers ...Unit) (*CompiledScript, *Results) {
	out, _, results := p.run(unit, headers)
	if results.HasErrors() {
		log.Debugf("%s: %d errors", unit.Name, len(results.Errors()))
		return nil, results
	}
	log.Debugf("%s: %d code words, %d functions", unit.Name, out.CodeSize(), len(out.Functions))
	return out, results
}

// Preprocess runs only the preprocessor over the headers and unit, with
// the pipeline's macros defined first.
func (p *Pipeline) Preprocess(unit Unit, headers ...Unit) ([]SourceLine, *Results) {
	results := &Results{}
	return p.preprocess(unit, headers, results), results
}

func (p *Pipeline) preprocess(unit Unit, headers []Unit, results *Results) []SourceLine {
	pp := NewPreprocessor(p.opts.AppVersion, p.opts.Resolver)

	names := make([]string, 0, len(p.opts.Macros))
	for name := range p.opts.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := pp.DefineMacro(name, p.opts.Macros[name]); err != nil {
			results.Add(newError(MacroAlreadyExists, "Macro '%s' is already defined", name))
		}
	}

	var lines []SourceLine
	for _, h := range headers {
		lines = append(lines, pp.Preprocess(h.Source, h.Name, results)...)
	}
	return append(lines, pp.Preprocess(unit.Source, unit.Name, results)...)
}

func (p *Pipeline) run(unit Unit, headers []Unit) (*CompiledScript, *Namespace, *Results) {
	results := &Results{}
	ns := NewNamespace(p.seed)
	lines := p.preprocess(unit, headers, results)
	stream := Tokenize(ns, lines, results)
	log.Debugf("%s: %d lines, %d tokens", unit.Name, len(lines), len(stream))

	out := NewCompiledScript(unit.Name)
	newCompiler(ns, stream, out, results, p.opts).Run()
	return out, ns, results
}

// Compile is a shorthand for a single unit with no headers.
func Compile(name, source string, opts Options) (*CompiledScript, *Results) {
	return NewPipeline(opts).Compile(Unit{Name: name, Source: source})
}

