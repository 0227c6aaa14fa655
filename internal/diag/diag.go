// Package diag implements the compiler's buffered error reporter.
//
// Every phase logs through a single *Reporter rather than returning Go
// errors up the call stack: the pipeline keeps going after most failures so
// that later phases can surface their own diagnostics in the same run, and
// the reporter is what decides whether code generation is still safe.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Class mirrors the original compiler's error_class enum.
type Class int

const (
	Notice Class = iota
	Comment
	Warning
	Error
	Fatal
	Abort
)

func (c Class) String() string {
	switch c {
	case Notice:
		return "notice"
	case Comment:
		return "comment"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Domain mirrors the original compiler's error_type enum.
type Domain int

const (
	File Domain = iota
	Memory
	System
	Syntax
	Semantic
	Type
)

func (d Domain) String() string {
	switch d {
	case File:
		return "file"
	case Memory:
		return "memory"
	case System:
		return "system"
	case Syntax:
		return "syntax"
	case Semantic:
		return "semantic"
	case Type:
		return "type"
	default:
		return "unknown"
	}
}

// Code enumerates specific diagnostics, grounded on error.h's error_code.
type Code int

const (
	EOpenFile Code = iota
	EFileEmpty
	EAllocate
	EStringNotTerminated
	ERealConstExpSign
	ESymbolExpected
	EMissingSemicolon
	EDeclaredTwice
	ELwbGreaterUpb
	ENoFuncOrProc
	ENoVariable
	EUndeclared
	EFuncNoReturn
	ENeverReached
	ENoSimpleTypeFormal
	EWrongType
	EParamType
	EParamCount
	EParamInProcReturn
	ENoParamInFuncReturn
	ENoSimpleTypeActual
	EBooleanNeeded
	EWrongLHSType
	EWrongRHSType
	ETooManyIndices
	ENotIndexType
	ENoReadArray
	EStringEqualityUnsupported
	EInsertInConstab
	ENotInConstab
	EInitScanner
	EInitSymtable
	ESymKeytable
	EIllegalTag
	ENoRoot
	EIllegalPointer
	EIllegalOperand
	EMoreErrors
	ENoFreeRegister
	EStackSchemeUnsupported
)

var codeText = map[Code]string{
	EOpenFile:                  "could not open file",
	EFileEmpty:                 "source file is empty",
	EAllocate:                  "could not allocate memory",
	EStringNotTerminated:       "string literal not terminated",
	ERealConstExpSign:          "sign of exponent missing in real constant",
	ESymbolExpected:            "expected symbol",
	EMissingSemicolon:          "missing semicolon, inserted",
	EDeclaredTwice:             "identifier declared twice",
	ELwbGreaterUpb:             "lower bound of array exceeds upper bound",
	ENoFuncOrProc:              "identifier is not a procedure or function",
	ENoVariable:                "identifier is not a variable",
	EUndeclared:                "identifier used without declaration",
	EFuncNoReturn:              "function does not end with RETURN",
	ENeverReached:              "unreachable code",
	ENoSimpleTypeFormal:        "formal is not of simple type",
	EWrongType:                 "type cannot be coerced to required type",
	EParamType:                 "parameter type does not match declaration",
	EParamCount:                "parameter count does not match declaration",
	EParamInProcReturn:         "RETURN with expression inside PROCEDURE",
	ENoParamInFuncReturn:       "RETURN without expression inside FUNCTION",
	ENoSimpleTypeActual:        "VAR actual must be a variable reference",
	EBooleanNeeded:             "BOOLEAN expression required",
	EWrongLHSType:              "wrong type on left-hand side",
	EWrongRHSType:              "wrong type on right-hand side",
	ETooManyIndices:            "too many indices for array",
	ENotIndexType:              "array index must be INTEGER",
	ENoReadArray:               "cannot READ an entire ARRAY",
	EStringEqualityUnsupported: "STRING equality is not implemented",
	EInsertInConstab:           "could not insert value into constant table",
	ENotInConstab:              "could not read value from constant table",
	EInitScanner:               "could not initialize scanner",
	EInitSymtable:              "could not initialize symbol table",
	ESymKeytable:               "coding error in keyword table",
	EIllegalTag:                "illegal tag on AST node",
	ENoRoot:                    "program root is nil",
	EIllegalPointer:            "unexpected nil pointer",
	EIllegalOperand:            "illegal combination of operand kind and addressing mode",
	EMoreErrors:                "diagnostic buffer capacity exceeded",
	ENoFreeRegister:            "no free register available for live temporary",
	EStackSchemeUnsupported:    "stack-scheme backend not part of this build",
}

// Record is one buffered diagnostic.
type Record struct {
	Class  Class
	Domain Domain
	Code   Code
	Info   string
	Line   int
}

func (r Record) String() string {
	msg := codeText[r.Code]
	if r.Info != "" {
		msg = fmt.Sprintf("%s: %s", msg, r.Info)
	}
	return fmt.Sprintf("%s[%s] line %d: %s", r.Class, r.Domain, r.Line, msg)
}

// MaxBuffered is the cap on buffered diagnostics before EMoreErrors fires.
const MaxBuffered = 100

// Sink optionally receives every record as it is logged, in addition to the
// buffer. internal/diagserver implements this to push live diagnostics.
type Sink interface {
	Publish(Record)
}

// Reporter is the compilation-scoped buffered error log.
type Reporter struct {
	records     []Record
	codegenOK   bool
	aborted     error
	colorOutput bool
	sinks       []Sink
}

// New creates a Reporter. out is used only to decide whether colorized
// rendering is safe (an isatty check); Flush takes the real writer.
func New(out io.Writer) *Reporter {
	color := false
	if f, ok := out.(interface{ Fd() uintptr }); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{codegenOK: true, colorOutput: color}
}

// AddSink registers a live diagnostics sink (internal/diagserver).
func (r *Reporter) AddSink(s Sink) { r.sinks = append(r.sinks, s) }

// Log buffers one diagnostic, updates codegen eligibility, and checks the
// abort policy.
func (r *Reporter) Log(class Class, domain Domain, code Code, info string, line int) {
	rec := Record{Class: class, Domain: domain, Code: code, Info: info, Line: line}

	// Fatal/Abort always disable codegen; Semantic/Type errors disable it
	// too, but Syntax errors and Warnings do not.
	if class >= Fatal || (class == Error && (domain == Semantic || domain == Type)) {
		r.codegenOK = false
	}
	if class == Abort && r.aborted == nil {
		r.aborted = errors.Errorf("%s", rec.String())
	}

	if len(r.records) >= MaxBuffered {
		if len(r.records) == MaxBuffered {
			more := Record{Class: Fatal, Domain: System, Code: EMoreErrors, Line: line}
			r.records = append(r.records, more)
			r.publish(more)
			r.codegenOK = false
		}
		return
	}
	r.records = append(r.records, rec)
	r.publish(rec)
}

func (r *Reporter) publish(rec Record) {
	for _, s := range r.sinks {
		s.Publish(rec)
	}
}

// CodegenAllowed reports whether any buffered diagnostic disables code
// generation: Semantic/Type errors and Fatal/Abort do; Syntax and
// Warning-class diagnostics do not.
func (r *Reporter) CodegenAllowed() bool { return r.codegenOK }

// Aborted returns the first ABORT-class error, if any — File I/O and
// memory exhaustion abort the run outright.
func (r *Reporter) Aborted() error { return r.aborted }

// Records returns the buffered diagnostics in emission order.
func (r *Reporter) Records() []Record { return append([]Record(nil), r.records...) }

// HasErrors reports whether any Error-class-or-worse diagnostic was logged.
func (r *Reporter) HasErrors() bool {
	for _, rec := range r.records {
		if rec.Class >= Error {
			return true
		}
	}
	return false
}

// Flush writes every buffered record at shutdown. Colors are applied only
// when the Reporter was constructed against a real terminal.
func (r *Reporter) Flush(out io.Writer) {
	var sb strings.Builder
	for _, rec := range r.records {
		if r.colorOutput {
			sb.WriteString(colorize(rec.Class, rec.String()))
		} else {
			sb.WriteString(rec.String())
		}
		sb.WriteByte('\n')
	}
	io.WriteString(out, sb.String())
}

func colorize(class Class, s string) string {
	code := "0"
	switch class {
	case Warning:
		code = "33"
	case Error:
		code = "31"
	case Fatal, Abort:
		code = "1;31"
	case Notice, Comment:
		code = "36"
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, s)
}
