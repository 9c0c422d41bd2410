package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"cscript/pkg/build"
	"cscript/pkg/cache"
	"cscript/pkg/compiler"
	"cscript/pkg/config"
	"cscript/pkg/server"
	"cscript/pkg/utils"
	"cscript/pkg/vfs"
)

func main() {
	inPath := flag.String("in", "", "script to compile (default: every script in the configured source dirs)")
	outDir := flag.String("out", "", "output directory (default: from cscript.toml)")
	configPath := flag.String("config", "", "path to cscript.toml (default: search upwards from the current directory)")
	listing := flag.Bool("S", false, "also write a disassembly listing per script")
	lsp := flag.Bool("lsp", false, "run as a language server on stdio")
	verbose := flag.Int("v", 0, "log verbosity")
	jobs := flag.Int("j", 0, "concurrent compilations (default: from cscript.toml)")
	noCache := flag.Bool("no-cache", false, "do not read or write the build cache")
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	headers, err := build.LoadUnits(cfg.HeaderPaths()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read header: %v\n", err)
		os.Exit(1)
	}
	resolver := vfs.DirResolver{Dirs: cfg.IncludeDirPaths()}

	if *lsp {
		if err := server.NewLSP(cfg.CompilerOptions(nil), headers, resolver).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "language server: %v\n", err)
			os.Exit(1)
		}
		return
	}

	units, err := collectUnits(cfg, *inPath, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(units) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: no scripts found; provide -in or configure [source] dirs")
		flag.Usage()
		os.Exit(2)
	}

	opts := build.Options{
		Compiler: cfg.CompilerOptions(resolver),
		Headers:  headers,
		Jobs:     cfg.Build.Jobs,
		OutDir:   cfg.OutputDirPath(),
		Listing:  cfg.Output.Listing || *listing,
	}
	if *outDir != "" {
		opts.OutDir = *outDir
	}
	if *jobs > 0 {
		opts.Jobs = *jobs
	}
	if !cfg.Cache.Disabled && !*noCache {
		c, err := cache.Open(cfg.CachePath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open build cache: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		opts.Cache = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := build.New(opts).Build(ctx, units)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	if report(results) > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		full, dir, err := utils.GetPathInfo(path)
		if err != nil {
			return nil, err
		}
		if filepath.Base(full) != config.FileName {
			return nil, fmt.Errorf("-config must name a %s file, got %q", config.FileName, path)
		}
		return config.Load(dir)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil || cfg != nil {
		return cfg, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Default(wd), nil
}

// collectUnits returns the scripts named on the command line, or every
// non-header script in the configured source directories.
func collectUnits(cfg *config.Config, in string, args []string) ([]compiler.Unit, error) {
	paths := args
	if in != "" {
		paths = append([]string{in}, paths...)
	}
	if len(paths) > 0 {
		return build.LoadUnits(paths...)
	}

	disk := vfs.NewScriptDisk()
	for _, dir := range cfg.SourceDirPaths() {
		if err := disk.LoadFrom(dir); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
	}
	var units []compiler.Unit
	for _, name := range disk.List() {
		if utils.IsHeader(name) || !strings.EqualFold(filepath.Ext(name), ".asc") {
			continue
		}
		src, err := disk.Read(name)
		if err != nil {
			return nil, err
		}
		units = append(units, compiler.Unit{Name: name, Source: src})
	}
	return units, nil
}

// report prints every message and a summary line, and returns the number
// of scripts that failed.
func report(results []*build.Result) int {
	failed := 0
	for _, r := range results {
		for _, m := range r.Results.Messages {
			fmt.Fprintln(os.Stderr, m.Error())
		}
		switch {
		case r.Failed():
			failed++
		case r.Cached:
			fmt.Printf("%s: up to date -> %s\n", r.Unit, r.OutPath)
		default:
			fmt.Printf("compiled %s: %d code words -> %s\n", r.Unit, len(r.Artifact.Code), r.OutPath)
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d scripts failed\n", failed, len(results))
	}
	return failed
}
