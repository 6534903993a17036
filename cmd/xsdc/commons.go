package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentflare-ai/go-xsdc"
)

// CompilerOptions are the flags shared by the commands that compile.
type CompilerOptions struct {
	Config  string
	Verbose bool
}

func (o *CompilerOptions) register(set *flag.FlagSet) {
	set.StringVar(&o.Config, "config", "", "YAML options file")
	set.BoolVar(&o.Verbose, "v", false, "log compilation steps")
}

// compiler loads the options and returns a compiler along with the
// absolute path of file. Every reported error also goes to reporter.
func (o *CompilerOptions) compiler(file string, reporter xsdc.ErrorReporter) (*xsdc.Compiler, string, error) {
	opts, err := xsdc.LoadOptions(o.Config)
	if err != nil {
		return nil, "", err
	}
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	opts.Reporter = reporter
	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, "", err
	}
	return xsdc.NewCompiler(opts), abs, nil
}
