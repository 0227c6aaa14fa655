// Package compilerconfig resolves one compilation invocation's flags into a
// single struct threaded through the pipeline: every counter and switch is
// compilation-scoped, held on one config value rather than package-level
// mutable state. Shaped after cmd/sentra/main.go's hand-rolled flag
// handling — this module pulls in no CLI framework either.
package compilerconfig

import (
	"flag"
	"fmt"
	"io"
)

// Config carries the resolved compiler flags plus the supplemental
// diagnostics-server and history-store options through every phase.
type Config struct {
	Input   string // positional source path
	Output  string // -o
	Help    bool   // -h
	Verbose bool   // -v
	Debug   bool   // -d
	Optimize bool  // -O
	NoRangeChecks bool // -R
	StackScheme   bool // -S
	ForceTAC      bool // -N
	Serve         string // -serve ADDR
	HistoryDB     string // history store path
}

// Parse resolves Config from argv (excluding argv[0]): `-o PATH -h -v -d
// -O -R -S -N`, plus -serve and -history-db.
func Parse(args []string, out io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("minilax", flag.ContinueOnError)
	fs.SetOutput(out)

	cfg := &Config{}
	fs.StringVar(&cfg.Output, "o", "a.cbam", "output path")
	fs.BoolVar(&cfg.Help, "h", false, "show help")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose: also log the output size and a build fingerprint")
	fs.BoolVar(&cfg.Debug, "d", false, "debug: dump intermediate stages to stdout")
	fs.BoolVar(&cfg.Optimize, "O", false, "enable the TAC optimizer")
	fs.BoolVar(&cfg.NoRangeChecks, "R", false, "disable array range checks")
	fs.BoolVar(&cfg.StackScheme, "S", false, "force the stack-scheme generator (not part of this build)")
	fs.BoolVar(&cfg.ForceTAC, "N", false, "force the TAC generator (default)")
	fs.StringVar(&cfg.Serve, "serve", "", "push live diagnostics over a websocket at ADDR")
	fs.StringVar(&cfg.HistoryDB, "history-db", "", "path to the compile-history store (default: $XDG_STATE_HOME/minilax/history.db)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Help {
		return cfg, nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Input = rest[0]
	}
	if cfg.Input == "" && !cfg.Help {
		return cfg, fmt.Errorf("no input file given")
	}
	return cfg, nil
}

// Usage writes the flag summary to out.
func Usage(out io.Writer) {
	fmt.Fprintln(out, "minilax - MiniLAX whole-program compiler")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  minilax [flags] <source.lax>")
	fmt.Fprintln(out, "  minilax history [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  -o PATH        output path (default a.cbam)")
	fmt.Fprintln(out, "  -h             show this help")
	fmt.Fprintln(out, "  -v             verbose: also log the output size and a build fingerprint")
	fmt.Fprintln(out, "  -d             debug: dump intermediate stages to stdout")
	fmt.Fprintln(out, "  -O             enable the TAC optimizer")
	fmt.Fprintln(out, "  -R             disable array range checks")
	fmt.Fprintln(out, "  -S             force the stack-scheme generator (not part of this build)")
	fmt.Fprintln(out, "  -N             force the TAC generator (default)")
	fmt.Fprintln(out, "  -serve ADDR    push live diagnostics over a websocket")
	fmt.Fprintln(out, "  -history-db PATH  path to the compile-history store")
}
