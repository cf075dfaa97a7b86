package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// scriptcheck parses ObbyScript files and reports what they declare,
// without starting a server. Exit status 1 when any file fails.
func main() {
	verbose := flag.Bool("v", false, "List every rule and function found")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: scriptcheck [-v] <script.obby> [...]")
		os.Exit(2)
	}

	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	failed := 0
	for _, path := range flag.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			fail.Printf("FAIL")
			fmt.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}
		f, err := script.ParseFile(path, src)
		if err != nil {
			fail.Printf("FAIL")
			fmt.Printf("  %s: %v\n", path, err)
			failed++
			continue
		}
		pass.Printf("PASS")
		fmt.Printf("  %s: %d rule(s), %d function(s)\n", path, len(f.Rules), len(f.Functions))

		if *verbose {
			for _, r := range f.Rules {
				dim.Printf("      on %s:%s: %d action(s)\n", r.Event, r.Target, len(r.Actions))
			}
			for _, fn := range f.Functions {
				dim.Printf("      function $%s(%d param(s)): %d action(s)\n", fn.Name, len(fn.Params), len(fn.Body))
			}
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
