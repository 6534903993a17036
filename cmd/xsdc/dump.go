package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/agentflare-ai/go-xsdc"
	"github.com/midbel/cli"
	"gopkg.in/yaml.v3"
)

var dumpCmd = cli.Command{
	Name:    "dump",
	Summary: "print the compiled grammars of a schema",
	Handler: &DumpCmd{},
}

type DumpCmd struct {
	Format string
	CompilerOptions
}

func (c *DumpCmd) Run(args []string) error {
	set := flag.NewFlagSet("dump", flag.ContinueOnError)
	set.StringVar(&c.Format, "format", "yaml", "output format: yaml or json")
	c.register(set)
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() != 1 {
		return fmt.Errorf("dump: exactly one schema expected")
	}
	comp, abs, err := c.compiler(set.Arg(0), nil)
	if err != nil {
		return err
	}
	g, err := comp.Compile(abs)
	if g == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: compiled with errors: %v\n", set.Arg(0), err)
	}

	summaries := []xsdc.GrammarSummary{}
	for _, each := range g.Grammars() {
		summaries = append(summaries, each.Summary())
	}
	switch c.Format {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	return fmt.Errorf("dump: unknown format %q", c.Format)
}
