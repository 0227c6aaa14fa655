// cmd/minilax drives the whole-program MiniLAX compiler pipeline: lexer ->
// parser -> semantic analyzer -> type checker -> TAC generator -> (optional)
// TAC optimizer -> CBAM lowering/register allocation -> serializer, with
// diagnostics flushed at shutdown. Shaped after cmd/sentra/main.go's flat,
// non-framework driver: a handful of top-level functions dispatched from
// main, no command-builder library.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"minilax/internal/ast"
	"minilax/internal/cbam"
	"minilax/internal/compilerconfig"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/diagserver"
	"minilax/internal/history"
	"minilax/internal/lexer"
	"minilax/internal/optim"
	"minilax/internal/parser"
	"minilax/internal/semant"
	"minilax/internal/serializer"
	"minilax/internal/symtab"
	"minilax/internal/tac"
	"minilax/internal/typecheck"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the whole CLI's entry point apart from process-exit plumbing,
// factored out so main_test.go's testscript-driven suite can register
// "minilax" as an in-process subcommand via testscript.RunMain instead of
// building and exec'ing a real binary for every scenario.
func run(args []string) int {
	if len(args) > 0 && args[0] == "history" {
		runHistory(args[1:])
		return 0
	}

	cfg, err := compilerconfig.Parse(args, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.Help {
		compilerconfig.Usage(os.Stdout)
		return 0
	}

	return runCompile(cfg)
}

func runCompile(cfg *compilerconfig.Config) int {
	runID := uuid.New().String()
	logger := log.New(os.Stderr, fmt.Sprintf("minilax[%s] ", runID[:8]), log.LstdFlags)
	started := time.Now()

	rep := diag.New(os.Stderr)

	var srv *diagserver.Server
	if cfg.Serve != "" {
		srv = diagserver.New()
		rep.AddSink(srv)
		go func() {
			if err := srv.Serve(cfg.Serve); err != nil {
				logger.Printf("diagnostics server stopped: %v", err)
			}
		}()
		logger.Printf("live diagnostics at ws://%s/diagnostics", cfg.Serve)
	}

	exitCode := compile(cfg, rep, logger)

	rep.Flush(os.Stderr)

	if err := appendHistory(cfg, runID, started, rep, exitCode); err != nil {
		logger.Printf("history store: %v", err)
	}

	return exitCode
}

func compile(cfg *compilerconfig.Config, rep *diag.Reporter, logger *log.Logger) int {
	if cfg.StackScheme {
		rep.Log(diag.Fatal, diag.System, diag.EStackSchemeUnsupported, "", 0)
		return 1
	}

	source, err := os.ReadFile(cfg.Input)
	if err != nil {
		rep.Log(diag.Abort, diag.File, diag.EOpenFile, err.Error(), 0)
		return 1
	}
	if len(source) == 0 {
		rep.Log(diag.Abort, diag.File, diag.EFileEmpty, "", 0)
		return 1
	}

	syms := symtab.New()
	consts := consttab.New()

	logger.Printf("lexing %s", cfg.Input)
	scanner := lexer.New(string(source), syms, consts, rep)
	tokens := scanner.ScanTokens()
	if rep.Aborted() != nil {
		return 1
	}

	logger.Printf("parsing")
	p := parser.New(tokens, syms, rep)
	prog := p.Parse()
	if rep.Aborted() != nil || prog == nil {
		return 1
	}
	if cfg.Debug {
		dumpAST(prog)
	}

	logger.Printf("semantic analysis")
	semant.New(rep).Analyze(prog)

	logger.Printf("type checking")
	typecheck.New(rep).Check(prog)

	if rep.Aborted() != nil {
		return 1
	}
	if !rep.CodegenAllowed() {
		logger.Printf("codegen skipped: semantic or type errors were reported")
		return 1
	}

	logger.Printf("generating TAC")
	tacProg := tac.GenerateWithOptions(prog, consts, rep, cfg.NoRangeChecks)
	if cfg.Optimize {
		logger.Printf("optimizing TAC")
		tacProg = optim.Optimize(tacProg)
	}
	if cfg.Debug {
		dumpTAC(tacProg)
	}
	if rep.Aborted() != nil || !rep.CodegenAllowed() {
		return 1
	}

	logger.Printf("lowering to CBAM")
	cbamProg := cbam.Lower(tacProg, rep)
	if !rep.CodegenAllowed() {
		return 1
	}

	logger.Printf("serializing")
	out := serializer.Serialize(cbamProg, consts, rep)
	if !rep.CodegenAllowed() {
		return 1
	}

	if err := os.WriteFile(cfg.Output, out, 0644); err != nil {
		rep.Log(diag.Abort, diag.File, diag.EOpenFile, err.Error(), 0)
		return 1
	}

	if cfg.Debug {
		dumpImageStats(out)
	}
	if cfg.Verbose {
		sum := blake2b.Sum256(out)
		logger.Printf("wrote %s (%s), fingerprint %x", cfg.Output, humanize.Bytes(uint64(len(out))), sum[:8])
	}

	if rep.HasErrors() {
		return 1
	}
	return 0
}

func dumpAST(prog *ast.Program) {
	fmt.Fprintf(os.Stdout, "--- AST ---\nprogram %s, %d top-level declarations\n", prog.Name, len(prog.Decls))
}

func dumpTAC(prog *tac.Program) {
	fmt.Fprintf(os.Stdout, "--- TAC --- %s instructions, %s labels\n",
		humanize.Comma(int64(len(prog.Code))), humanize.Comma(int64(prog.LabelCount)))
}

func dumpImageStats(out []byte) {
	fmt.Fprintf(os.Stdout, "--- image --- %s bytes\n", humanize.Bytes(uint64(len(out))))
}

func appendHistory(cfg *compilerconfig.Config, runID string, started time.Time, rep *diag.Reporter, exitCode int) error {
	path := cfg.HistoryDB
	if path == "" {
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			path = filepath.Join(state, "minilax", "history.db")
		} else {
			path = "./.minilax-history.db"
		}
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Append(history.Record{
		RunID:      runID,
		SourcePath: cfg.Input,
		StartedAt:  started,
		ExitCode:   exitCode,
		Records:    rep.Records(),
	})
}

func runHistory(args []string) {
	path := ""
	n := 20
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-history-db":
			if i+1 < len(args) {
				i++
				path = args[i]
			}
		case "-n":
			if i+1 < len(args) {
				i++
				fmt.Sscanf(args[i], "%d", &n)
			}
		}
	}
	if path == "" {
		if state := os.Getenv("XDG_STATE_HOME"); state != "" {
			path = filepath.Join(state, "minilax", "history.db")
		} else {
			path = "./.minilax-history.db"
		}
	}

	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilax history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := store.Recent(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilax history: %v\n", err)
		os.Exit(1)
	}
	for _, r := range rows {
		fmt.Printf("%s  %-8s  exit=%d  errors=%d fatals=%d aborts=%d  %s\n",
			r.StartedAt, r.RunID[:8], r.ExitCode, r.Errors, r.Fatals, r.Aborts, r.SourcePath)
	}
}
