package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"
)

// errFail reports that problems were found and already printed.
var errFail = errors.New("fail")

var (
	summary = "xsdc compiles XML Schema documents into grammars"
	help    = `commands:
  compile [-config file] [-v] [-no-color] [-warnings] schema...
  dump    [-config file] [-v] [-format yaml|json] schema
  check   schema...`
)

func main() {
	var (
		set  = cli.NewFlagSet("xsdc")
		root = prepare()
	)
	root.SetSummary(summary)
	root.SetHelp(help)
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.Help()
			os.Exit(2)
		}
	}
	err := root.Execute(set.Args())
	if err != nil {
		if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
			fmt.Fprintln(os.Stderr, "similar command(s)")
			for _, n := range s.Others {
				fmt.Fprintln(os.Stderr, "-", n)
			}
		}
		if !errors.Is(err, errFail) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"compile"}, &compileCmd)
	root.Register([]string{"dump"}, &dumpCmd)
	root.Register([]string{"check"}, &checkCmd)
	return root
}
