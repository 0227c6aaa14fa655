// Package serializer implements label resolution and textual output
// encoding, following codelist.c's cl_resolve_labels and cl_dump_code:
// size every instruction, assign byte addresses, substitute
// label and string-id operands, then emit the decimal instruction stream
// followed by the interned string pool.
//
// Unlike the original, which resolves forward label references with a
// backpatch-pointer table inside one pass (since its labels and operand
// substitutions are mutated in place as C structs), this package uses two
// clean passes: the first records every label's address with nothing left
// to backpatch, and the second substitutes every operand against that
// already-complete table. The on-disk result is identical; only the
// bookkeeping to get there differs.
package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"minilax/internal/cbam"
	"minilax/internal/consttab"
	"minilax/internal/diag"
	"minilax/internal/tac"
)

var modeShift = [3]uint{21, 13, 5}
var regBitShift = [3]uint{26, 25, 24}
var regNumShift = [3]uint{16, 8, 0}

// instrSize is the byte footprint of one instruction in the final code
// image: 4 bytes per opcode word plus 4 per non-register operand, plus 4
// per indexed operand for the displacement, plus 4 for float literals.
func instrSize(ins cbam.Instruction) int32 {
	size := int32(4)
	for _, op := range ins.Operands {
		if op.Kind != cbam.VReg {
			size += 4
		}
		if isIndexedMode(op.Mode) {
			size += 4
		}
		if op.Float {
			size += 4
		}
	}
	return size
}

func isIndexedMode(m cbam.AddrMode) bool {
	switch m {
	case cbam.ModeIdx, cbam.ModePostIdxInd, cbam.ModePreIdxInd, cbam.ModeIdxDblInd:
		return true
	}
	return false
}

// labelAddresses is the first resolution sweep: walk the instruction list
// once, accumulating a byte address, and record where every label lands.
func labelAddresses(code []cbam.Instruction, labelCount int32) []int32 {
	addr := make([]int32, labelCount+1)
	var cur int32
	for _, ins := range code {
		for _, l := range ins.Labels {
			addr[l] = cur
		}
		cur += instrSize(ins)
	}
	return addr
}

func totalSize(code []cbam.Instruction) int32 {
	var n int32
	for _, ins := range code {
		n += instrSize(ins)
	}
	return n
}

// encodeWord packs one instruction's opcode and up to three operands into
// the 32-bit instruction word: `opcode<<27 | addrmode<<(5+8*(2-i)) |
// reg_bit<<(24+2-i) | reg_num<<(8*(2-i))`, numerically identical to
// cbam.h's IWORD_SHIFT_* layout.
func encodeWord(ins cbam.Instruction, rep *diag.Reporter) uint32 {
	word := uint32(ins.Op) << 27
	if len(ins.Operands) > 3 {
		rep.Log(diag.Fatal, diag.System, diag.EIllegalOperand, "instruction has more than 3 operands", 0)
		return word
	}
	for i, op := range ins.Operands {
		word |= uint32(op.Mode) << modeShift[i]
		if op.Kind == cbam.VReg {
			word |= 1 << regBitShift[i]
			word |= uint32(op.Value) << regNumShift[i]
		}
	}
	return word
}

// Serialize resolves labels and string-id operands against prog and table,
// then encodes the full textual output: one decimal line per instruction
// word, followed by each operand's literal-value line(s), then `S`, then
// the interned string pool packed little-endian.
func Serialize(prog *cbam.Program, table *consttab.Table, rep *diag.Reporter) []byte {
	addr := labelAddresses(prog.Code, prog.LabelCount)
	codeSize := totalSize(prog.Code)

	var buf bytes.Buffer
	for _, ins := range prog.Code {
		fmt.Fprintf(&buf, "%d\n", encodeWord(ins, rep))

		for _, op := range ins.Operands {
			if op.Kind != cbam.VReg {
				fmt.Fprintf(&buf, "%d\n", uint32(resolveValue(op, addr, table, codeSize)))
			}
			if isIndexedMode(op.Mode) {
				fmt.Fprintf(&buf, "%d\n", uint32(op.Offset))
			}
			if op.Float {
				fmt.Fprintf(&buf, "%d\n", uint32(op.Offset))
			}
		}
	}

	buf.WriteString("S\n")
	strBytes := table.StringBytes()
	for i := 0; i+4 <= len(strBytes); i += 4 {
		fmt.Fprintf(&buf, "%d\n", binary.LittleEndian.Uint32(strBytes[i:i+4]))
	}

	return buf.Bytes()
}

// resolveValue maps one non-register operand to the integer its value line
// carries: a literal passes through; a label resolves to its byte address;
// a string id resolves to codeSize+string_offset(id).
func resolveValue(op cbam.Operand, addr []int32, table *consttab.Table, codeSize int32) int32 {
	switch op.Kind {
	case cbam.VLabel:
		l := tac.Label(op.Value)
		if int(l) >= 0 && int(l) < len(addr) {
			return addr[l]
		}
		return 0
	case cbam.VStringID:
		return codeSize + table.StringOffset(consttab.ID(uint32(op.Value)))
	default: // VLiteral
		return op.Value
	}
}
