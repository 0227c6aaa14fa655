package serializer

import (
	"strings"
	"testing"

	"minilax/internal/cbam"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/tac"
)

func reporter() *diag.Reporter { return diag.New(nil) }

func TestInstrSizeCountsOperandsAndDisplacement(t *testing.T) {
	// opcode word (4) + one literal operand (4) = 8
	lit := cbam.Instruction{Op: cbam.MOVL, Operands: []cbam.Operand{
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
		{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 5},
	}}
	if got := instrSize(lit); got != 8 {
		t.Fatalf("expected 8 bytes, got %d", got)
	}

	// an indexed register operand has no value word of its own, only a displacement word
	idx := cbam.Instruction{Op: cbam.MOVL, Operands: []cbam.Operand{
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
		{Mode: cbam.ModeIdx, Kind: cbam.VReg, Value: 1, Offset: 3},
	}}
	if got := instrSize(idx); got != 8 {
		t.Fatalf("expected 8 bytes for an indexed register operand (opcode word + displacement), got %d", got)
	}

	// a float literal operand costs an extra word for the exponent
	flt := cbam.Instruction{Op: cbam.MOVF, Operands: []cbam.Operand{
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
		{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 314, Offset: -2, Float: true},
	}}
	if got := instrSize(flt); got != 12 {
		t.Fatalf("expected 12 bytes for a float literal (opcode + mantissa + exponent), got %d", got)
	}
}

func TestLabelAddressesRecordsByteOffsets(t *testing.T) {
	code := []cbam.Instruction{
		{Op: cbam.MOVL, Operands: []cbam.Operand{
			{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
			{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 1},
		}},
		{Op: cbam.HALT, Labels: []tac.Label{1}},
	}
	addr := labelAddresses(code, 1)
	if addr[1] != 8 {
		t.Fatalf("expected label 1 at byte offset 8 (past the first 8-byte instruction), got %d", addr[1])
	}
}

func TestEncodeWordPacksOpcodeAndRegisterOperands(t *testing.T) {
	ins := cbam.Instruction{Op: cbam.ADDL, Operands: []cbam.Operand{
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 2},
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 3},
		{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 7},
	}}
	rep := reporter()
	word := encodeWord(ins, rep)
	if rep.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", rep.Records())
	}

	want := uint32(cbam.ADDL) << 27
	want |= uint32(cbam.ModeDirect) << modeShift[0]
	want |= 1 << regBitShift[0]
	want |= uint32(2) << regNumShift[0]
	want |= uint32(cbam.ModeDirect) << modeShift[1]
	want |= 1 << regBitShift[1]
	want |= uint32(3) << regNumShift[1]
	want |= uint32(cbam.ModeLit) << modeShift[2]

	if word != want {
		t.Fatalf("encodeWord mismatch: got %032b want %032b", word, want)
	}
}

func TestEncodeWordRejectsTooManyOperands(t *testing.T) {
	ins := cbam.Instruction{Op: cbam.MOVL, Operands: []cbam.Operand{
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 1},
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 2},
		{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 3},
	}}
	rep := reporter()
	encodeWord(ins, rep)
	if !rep.HasErrors() {
		t.Fatalf("expected an EIllegalOperand diagnostic for a 4-operand instruction")
	}
}

func TestResolveValuePassesThroughLiteralAndResolvesLabel(t *testing.T) {
	addr := []int32{0, 42}
	table := consttab.New()

	lit := cbam.Operand{Kind: cbam.VLiteral, Value: 9}
	if got := resolveValue(lit, addr, table, 0); got != 9 {
		t.Errorf("expected literal operand to pass through unchanged, got %d", got)
	}

	label := cbam.Operand{Kind: cbam.VLabel, Value: 1}
	if got := resolveValue(label, addr, table, 0); got != 42 {
		t.Errorf("expected label 1 to resolve to its recorded address 42, got %d", got)
	}
}

func TestResolveValueResolvesStringIDPastCodeSize(t *testing.T) {
	table := consttab.New()
	id := table.InternString("hi")
	op := cbam.Operand{Kind: cbam.VStringID, Value: int32(id)}
	if got := resolveValue(op, nil, table, 100); got != 100+table.StringOffset(id) {
		t.Errorf("expected string id to resolve to codeSize+offset, got %d", got)
	}
}

func TestSerializeEmitsStringPoolAfterSentinel(t *testing.T) {
	table := consttab.New()
	table.InternString("ab")

	prog := &cbam.Program{Code: []cbam.Instruction{
		{Op: cbam.HALT, Operands: []cbam.Operand{{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 0}}},
	}}
	rep := reporter()
	out := Serialize(prog, table, rep)
	if rep.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", rep.Records())
	}

	text := string(out)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	sentinelIdx := -1
	for i, l := range lines {
		if l == "S" {
			sentinelIdx = i
		}
	}
	if sentinelIdx < 0 {
		t.Fatalf("expected an 'S' sentinel line before the string pool, got %q", text)
	}
	// HALT with one literal operand is two code lines (word + literal value),
	// so the sentinel must land right after them.
	if sentinelIdx != 2 {
		t.Fatalf("expected the sentinel at line 2 (after word + literal), got %d in %q", sentinelIdx, text)
	}
	if len(lines) <= sentinelIdx+1 {
		t.Fatalf("expected at least one string-pool line after the sentinel, got %q", text)
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	table := consttab.New()
	table.InternString("same")

	prog := &cbam.Program{Code: []cbam.Instruction{
		{Op: cbam.MOVL, Operands: []cbam.Operand{
			{Mode: cbam.ModeDirect, Kind: cbam.VReg, Value: 0},
			{Mode: cbam.ModeLit, Kind: cbam.VLiteral, Value: 3},
		}},
		{Op: cbam.HALT},
	}}
	first := Serialize(prog, table, reporter())
	second := Serialize(prog, table, reporter())
	if string(first) != string(second) {
		t.Fatalf("expected Serialize to be deterministic for the same input")
	}
}
