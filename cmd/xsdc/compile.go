package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/agentflare-ai/go-xsdc"
	"github.com/midbel/cli"
)

var compileCmd = cli.Command{
	Name:    "compile",
	Summary: "compile schemas and report errors",
	Handler: &CompileCmd{},
}

type CompileCmd struct {
	NoColor  bool
	Warnings bool
	CompilerOptions
}

func (c *CompileCmd) Run(args []string) error {
	set := flag.NewFlagSet("compile", flag.ContinueOnError)
	set.BoolVar(&c.NoColor, "no-color", false, "disable colored output")
	set.BoolVar(&c.Warnings, "warnings", false, "report warnings too")
	c.register(set)
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() == 0 {
		return fmt.Errorf("compile: no schema given")
	}

	failed := false
	for _, file := range set.Args() {
		ok, err := c.compile(file)
		if err != nil {
			return err
		}
		failed = failed || !ok
	}
	if failed {
		return errFail
	}
	return nil
}

func (c *CompileCmd) compile(file string) (bool, error) {
	var collected xsdc.CollectingReporter
	comp, abs, err := c.compiler(file, &collected)
	if err != nil {
		return false, err
	}
	g, err := comp.Compile(abs)
	if err != nil && !xsdc.IsSchemaErrors(err) {
		return false, err
	}

	formatter := &xsdc.ErrorFormatter{Color: !c.NoColor, ContextLines: 1}
	converter := xsdc.NewDiagnosticConverter()
	sources := make(map[string]string)
	errs := 0
	for _, diag := range converter.Convert(collected.Errors()) {
		if diag.Severity == xsdc.SeverityWarning && !c.Warnings {
			continue
		}
		if diag.Severity == xsdc.SeverityError {
			errs++
		}
		fmt.Fprint(os.Stderr, formatter.Format(diag, source(sources, diag.Position.File)))
		fmt.Fprintln(os.Stderr)
	}
	if errs > 0 {
		fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", file, errs)
		return false, nil
	}
	fmt.Fprintf(os.Stdout, "%s: compiled %d element(s), %d complex type(s)\n",
		file, len(g.GlobalElements()), len(g.ComplexTypes))
	return true, nil
}

// source returns the text of file for diagnostics, reading it once.
func source(cache map[string]string, file string) string {
	if file == "" {
		return ""
	}
	if text, ok := cache[file]; ok {
		return text
	}
	data, err := os.ReadFile(file)
	if err != nil {
		data = nil
	}
	cache[file] = string(data)
	return cache[file]
}
