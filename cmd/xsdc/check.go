package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/agentflare-ai/go-xsdc"
	"github.com/midbel/cli"
)

var checkCmd = cli.Command{
	Name:    "check",
	Summary: "check the syntax of schema documents without compiling them",
	Handler: &CheckCmd{},
}

type CheckCmd struct {
	FailFast bool
}

func (c *CheckCmd) Run(args []string) error {
	set := flag.NewFlagSet("check", flag.ContinueOnError)
	set.BoolVar(&c.FailFast, "fail-fast", false, "stop at the first document with errors")
	if err := set.Parse(args); err != nil {
		return err
	}
	var (
		checker   = xsdc.NewSchemaChecker()
		converter = xsdc.NewDiagnosticConverter()
		formatter = &xsdc.ErrorFormatter{}
		failed    bool
	)
	for _, file := range set.Args() {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		doc, err := xmldom.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		errs := checker.Check(doc.DocumentElement())
		if len(errs) == 0 {
			fmt.Fprintf(os.Stdout, "%s: ok\n", file)
			continue
		}
		failed = true
		for _, e := range errs {
			e.SystemID = file
			fmt.Fprint(os.Stderr, formatter.Format(converter.Convert([]*xsdc.SchemaError{e})[0], string(data)))
		}
		if c.FailFast {
			return errFail
		}
	}
	if failed {
		return errFail
	}
	return nil
}
