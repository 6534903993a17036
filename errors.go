package xsdc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
)

// Sentinel errors usable with errors.Is.
var (
	ErrNotSchema            = errors.New("not an XSD schema document")
	ErrDocumentNotFound     = errors.New("schema document not found")
	ErrWildcardIntersection = errors.New("attribute wildcard intersection not expressible")
	ErrCapacityExceeded     = errors.New("content model capacity exceeded")
)

// ErrorKind classifies what went wrong while compiling a grammar.
type ErrorKind uint8

const (
	StructuralError ErrorKind = iota
	ReferenceError
	DerivationError
	DatatypeError
	ResourceError
)

func (k ErrorKind) String() string {
	switch k {
	case StructuralError:
		return "structural"
	case ReferenceError:
		return "reference"
	case DerivationError:
		return "derivation"
	case DatatypeError:
		return "datatype"
	case ResourceError:
		return "resource"
	}
	return "unknown"
}

// ErrorSeverity tells the caller how much of the grammar an error taints.
type ErrorSeverity uint8

const (
	SevWarning ErrorSeverity = iota
	SevError
	SevFatal
)

func (s ErrorSeverity) String() string {
	switch s {
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	case SevFatal:
		return "fatal"
	}
	return "unknown"
}

// SchemaError is a single problem found in a schema document.
type SchemaError struct {
	Kind     ErrorKind
	Severity ErrorSeverity
	Code     string
	Message  string
	SystemID string
	Line     int
	Column   int
	Element  xmldom.Element
	// Attribute names the offending attribute of Element, when there is one.
	Attribute string
	// Previous is the earlier element a duplicate conflicts with.
	Previous xmldom.Element
	Err      error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.SystemID != "" {
		b.WriteString(e.SystemID)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// SchemaErrors is returned by Parse and Compile when at least one error was reported.
type SchemaErrors []*SchemaError

func (es SchemaErrors) Error() string {
	switch len(es) {
	case 0:
		return "no schema errors"
	case 1:
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", es[0].Error(), len(es)-1)
}

// Unwrap exposes every error to errors.Is and errors.As.
func (es SchemaErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// ErrorReporter receives every problem found during compilation.
type ErrorReporter interface {
	Report(err *SchemaError)
}

// FuncReporter adapts a function to ErrorReporter.
type FuncReporter func(err *SchemaError)

func (f FuncReporter) Report(err *SchemaError) {
	f(err)
}

// CollectingReporter keeps every reported error in order.
type CollectingReporter struct {
	mu     sync.Mutex
	errors []*SchemaError
}

func (r *CollectingReporter) Report(err *SchemaError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

// Errors returns everything reported so far.
func (r *CollectingReporter) Errors() []*SchemaError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SchemaError, len(r.errors))
	copy(out, r.errors)
	return out
}

// Failures returns the reported errors at Error severity or worse.
func (r *CollectingReporter) Failures() SchemaErrors {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out SchemaErrors
	for _, e := range r.errors {
		if e.Severity >= SevError {
			out = append(out, e)
		}
	}
	return out
}

// HasCode reports whether an error with the given code was reported.
func (r *CollectingReporter) HasCode(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func newSchemaError(kind ErrorKind, code string, elem xmldom.Element, format string, args ...any) *SchemaError {
	return &SchemaError{
		Kind:     kind,
		Severity: SevError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Element:  elem,
	}
}

func structuralError(code string, elem xmldom.Element, format string, args ...any) *SchemaError {
	return newSchemaError(StructuralError, code, elem, format, args...)
}

func referenceError(code string, elem xmldom.Element, format string, args ...any) *SchemaError {
	return newSchemaError(ReferenceError, code, elem, format, args...)
}

func derivationError(code string, elem xmldom.Element, format string, args ...any) *SchemaError {
	return newSchemaError(DerivationError, code, elem, format, args...)
}

func datatypeError(code string, elem xmldom.Element, err error, format string, args ...any) *SchemaError {
	e := newSchemaError(DatatypeError, code, elem, format, args...)
	e.Err = err
	return e
}

func resourceError(code string, elem xmldom.Element, err error, format string, args ...any) *SchemaError {
	e := newSchemaError(ResourceError, code, elem, format, args...)
	e.Err = err
	return e
}

func warning(code string, elem xmldom.Element, format string, args ...any) *SchemaError {
	e := newSchemaError(StructuralError, code, elem, format, args...)
	e.Severity = SevWarning
	return e
}

// asSchemaError turns any error into a SchemaError, keeping the original when possible.
func asSchemaError(err error, elem xmldom.Element) *SchemaError {
	var se *SchemaError
	if errors.As(err, &se) {
		if se.Element == nil {
			se.Element = elem
		}
		return se
	}
	kind := StructuralError
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		kind = ResourceError
	case errors.Is(err, ErrDocumentNotFound):
		kind = ResourceError
	}
	return &SchemaError{
		Kind:     kind,
		Severity: SevError,
		Message:  err.Error(),
		Element:  elem,
		Err:      err,
	}
}
