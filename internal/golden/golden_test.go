package golden

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"golang.org/x/sync/errgroup"

	"minilax/internal/cbam"
)

func loadTestdata(t *testing.T, file string) *Scenario {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", file))
	if err != nil {
		t.Fatalf("reading %s: %v", file, err)
	}
	s, err := Load(file, data)
	if err != nil {
		t.Fatalf("loading %s: %v", file, err)
	}
	return s
}

func TestMinimalProgramCompilesCleanToHalt(t *testing.T) {
	s := loadTestdata(t, "minimal.txtar")
	r := Run(s)

	if r.Reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", r.Reporter.Records())
	}
	if r.CBAM == nil || len(r.CBAM.Code) == 0 {
		t.Fatalf("expected lowered CBAM instructions")
	}
	last := r.CBAM.Code[len(r.CBAM.Code)-1]
	if last.Op != cbam.HALT {
		t.Fatalf("expected the root program to end in HALT, got:\n%s", pretty.Sprint(last))
	}
	if len(r.Output) == 0 {
		t.Fatalf("expected non-empty serialized output")
	}
	if !strings.Contains(string(r.Output), "S\n") {
		t.Fatalf("expected the string-pool sentinel in the serialized output")
	}
}

func TestArithmeticProgramOptimizationNeverGrowsTAC(t *testing.T) {
	s := loadTestdata(t, "arithmetic.txtar")

	unopt := Run(s)
	if unopt.Reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics (unoptimized): %v", unopt.Reporter.Records())
	}

	s.Optimize = true
	opt := Run(s)
	if opt.Reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics (optimized): %v", opt.Reporter.Records())
	}

	if len(opt.TAC.Code) > len(unopt.TAC.Code) {
		t.Fatalf("expected optimization to never grow the TAC list: unopt=%d opt=%d",
			len(unopt.TAC.Code), len(opt.TAC.Code))
	}
}

func TestControlFlowProgramLowersConditionalBranches(t *testing.T) {
	s := loadTestdata(t, "control_flow.txtar")
	r := Run(s)

	if r.Reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", r.Reporter.Records())
	}
	var sawBranch bool
	for _, ins := range r.CBAM.Code {
		if ins.Op == cbam.BSANY {
			sawBranch = true
		}
	}
	if !sawBranch {
		t.Fatalf("expected an IF/WHILE program to lower at least one BSANY comparison")
	}
}

func TestTypeErrorProgramStopsBeforeCodegen(t *testing.T) {
	s := loadTestdata(t, "type_error.txtar")
	r := Run(s)

	if !r.Reporter.HasErrors() {
		t.Fatalf("expected the type mismatch to be reported")
	}
	if r.CBAM != nil {
		t.Fatalf("expected codegen to be skipped once type errors are reported")
	}
}

// TestAllScenariosRunConcurrently exercises the harness the way the full
// suite would be driven — every archive compiled concurrently inside one
// test — without asserting anything beyond "it did not panic and every
// scenario's reporter is reachable."
func TestAllScenariosRunConcurrently(t *testing.T) {
	files := []string{"minimal.txtar", "arithmetic.txtar", "control_flow.txtar", "type_error.txtar"}

	var g errgroup.Group
	for _, f := range files {
		f := f
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join("testdata", f))
			if err != nil {
				return err
			}
			s, err := Load(f, data)
			if err != nil {
				return err
			}
			Run(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent scenario run failed: %v", err)
	}
}
