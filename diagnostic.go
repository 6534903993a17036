package xsdc

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/midbel/distance"
)

// Diagnostic is a schema error prepared for display.
type Diagnostic struct {
	Severity  Severity  `json:"severity" yaml:"severity"`
	Code      string    `json:"code" yaml:"code"`
	Kind      string    `json:"kind" yaml:"kind"`
	Message   string    `json:"message" yaml:"message"`
	Position  Position  `json:"position" yaml:"position"`
	Tag       string    `json:"tag,omitempty" yaml:"tag,omitempty"`
	Attribute string    `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	SpecRef   string    `json:"spec_ref,omitempty" yaml:"specRef,omitempty"`
	Hints     []string  `json:"hints,omitempty" yaml:"hints,omitempty"`
	Related   []Related `json:"related,omitempty" yaml:"related,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information for a node
type Position struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
	Offset int64  `json:"offset" yaml:"offset"`
}

// Related points to a related location in the source
type Related struct {
	Label    string   `json:"label" yaml:"label"`
	Position Position `json:"position" yaml:"position"`
}

// DiagnosticConverter turns schema errors into diagnostics.
type DiagnosticConverter struct {
	checker *SchemaChecker
}

// NewDiagnosticConverter creates a converter.
func NewDiagnosticConverter() *DiagnosticConverter {
	return &DiagnosticConverter{checker: NewSchemaChecker()}
}

// Convert converts errs in order.
func (dc *DiagnosticConverter) Convert(errs []*SchemaError) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		diagnostics = append(diagnostics, dc.convertError(e))
	}
	return diagnostics
}

func (dc *DiagnosticConverter) convertError(e *SchemaError) Diagnostic {
	return Diagnostic{
		Severity:  severityOf(e.Severity),
		Code:      e.Code,
		Kind:      e.Kind.String(),
		Message:   e.Message,
		Position:  dc.getPosition(e),
		Tag:       dc.getTag(e.Element),
		Attribute: e.Attribute,
		SpecRef:   specRef(e.Code),
		Hints:     dc.generateHints(e),
		Related:   dc.generateRelated(e),
	}
}

// generateRelated points at the earlier declaration a duplicate conflicts with.
func (dc *DiagnosticConverter) generateRelated(e *SchemaError) []Related {
	if e.Previous == nil {
		return nil
	}
	line, col, offset := e.Previous.Position()
	return []Related{{
		Label:    fmt.Sprintf("first defined here on <%s>", dc.getTag(e.Previous)),
		Position: Position{File: e.SystemID, Line: line, Column: col, Offset: offset},
	}}
}

func severityOf(s ErrorSeverity) Severity {
	if s == SevWarning {
		return SeverityWarning
	}
	return SeverityError
}

// getPosition prefers the attribute's position, then the element's, then
// the location recorded on the error.
func (dc *DiagnosticConverter) getPosition(e *SchemaError) Position {
	pos := Position{File: e.SystemID, Line: e.Line, Column: e.Column}
	if e.Element == nil {
		return pos
	}
	if e.Attribute != "" {
		if attr := e.Element.GetAttributeNode(xmldom.DOMString(e.Attribute)); attr != nil {
			if line, col, offset := attr.Position(); line > 0 {
				pos.Line, pos.Column, pos.Offset = line, col, offset
				return pos
			}
		}
	}
	if line, col, offset := e.Element.Position(); line > 0 {
		pos.Line, pos.Column, pos.Offset = line, col, offset
	}
	return pos
}

func (dc *DiagnosticConverter) getTag(elem xmldom.Element) string {
	if elem == nil {
		return ""
	}
	return string(elem.LocalName())
}

// specRefs maps constraint code prefixes to the section of XML Schema
// Part 1 defining them. Longer prefixes are listed first.
var specRefs = []struct{ prefix, section string }{
	{"s4s-", "XML Schema 1.0 Part 1, schema for schemas"},
	{"src-redefine", "XML Schema 1.0 Part 1 §4.2.2, Schema Representation Constraint: Redefinition"},
	{"src-include", "XML Schema 1.0 Part 1 §4.2.1, Schema Representation Constraint: Inclusion"},
	{"src-import", "XML Schema 1.0 Part 1 §4.2.3, Schema Representation Constraint: Import"},
	{"src-resolve", "XML Schema 1.0 Part 1 §3.15.3, QName resolution"},
	{"src-attribute_group", "XML Schema 1.0 Part 1 §3.6.3, Attribute Group Definition Representation OK"},
	{"src-ct", "XML Schema 1.0 Part 1 §3.4.3, Complex Type Definition Representation OK"},
	{"ct-props-correct", "XML Schema 1.0 Part 1 §3.4.6, Complex Type Definition Properties Correct"},
	{"cos-ct-extends", "XML Schema 1.0 Part 1 §3.4.6, Derivation Valid (Extension)"},
	{"derivation-ok-restriction", "XML Schema 1.0 Part 1 §3.4.6, Derivation Valid (Restriction, Complex)"},
	{"cos-all-limited", "XML Schema 1.0 Part 1 §3.8.6, All Group Limited"},
	{"ag-props-correct", "XML Schema 1.0 Part 1 §3.6.6, Attribute Group Definition Properties Correct"},
	{"c-props-correct", "XML Schema 1.0 Part 1 §3.11.6, Identity-constraint Definition Properties Correct"},
	{"c-", "XML Schema 1.0 Part 1 §3.11.6, Selector and Field Value OK"},
	{"p-props-correct", "XML Schema 1.0 Part 1 §3.9.6, Particle Correct"},
	{"sch-props-correct", "XML Schema 1.0 Part 1 §3.15.6, Schema Properties Correct"},
	{"schema_reference", "XML Schema 1.0 Part 1 §4.3.2, Schema Document Location Strategy"},
	{"cos-applicable-facets", "XML Schema 1.0 Part 2 §4.1.5, Applicable Facets"},
}

func specRef(code string) string {
	for _, r := range specRefs {
		if strings.HasPrefix(code, r.prefix) {
			return r.section
		}
	}
	return "XML Schema 1.0 Part 1"
}

// generateHints suggests fixes for the common mistakes.
func (dc *DiagnosticConverter) generateHints(e *SchemaError) []string {
	var hints []string
	switch {
	case e.Code == "s4s-att-not-allowed" && e.Attribute != "" && e.Element != nil:
		if allowed, ok := dc.checker.AllowedAttributes(dc.getTag(e.Element)); ok {
			if near := distance.Levenshtein(e.Attribute, allowed); len(near) > 0 {
				hints = append(hints, fmt.Sprintf("did you mean: %s?", strings.Join(near, " or ")))
			}
			hints = append(hints, fmt.Sprintf("<%s> accepts: %s", dc.getTag(e.Element), strings.Join(allowed, ", ")))
		}
	case e.Code == "s4s-elt-invalid" && e.Element != nil:
		if near := distance.Levenshtein(dc.getTag(e.Element), dc.checker.Elements()); len(near) > 0 {
			hints = append(hints, fmt.Sprintf("did you mean: <%s>?", strings.Join(near, "> or <")))
		}
	case strings.HasPrefix(e.Code, "src-resolve"):
		hints = append(hints,
			"check that the prefix is bound to the namespace of the component",
			"a component of another namespace needs an <import> of that namespace")
	case strings.HasPrefix(e.Code, "src-redefine.6") || strings.HasPrefix(e.Code, "src-redefine.7"):
		hints = append(hints, "a redefined group must reference itself exactly once, with minOccurs and maxOccurs of 1")
	case strings.HasPrefix(e.Code, "src-redefine.5"):
		hints = append(hints, "a redefined type must use its own name as the base of its restriction or extension")
	case e.Code == "cos-all-limited.1.2" || e.Code == "cos-all-limited.2":
		hints = append(hints, "an <all> group must be the whole content model and its particles may occur at most once")
	case e.Code == "schema_reference.4":
		hints = append(hints, "the document is skipped; components it declares will be reported as unresolved")
	case e.Kind == DerivationError:
		hints = append(hints, "the type is replaced by a permissive fallback type until the derivation is fixed")
	}
	return hints
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color           bool
	ShowFullElement bool
	ContextLines    int
}

// Format formats a diagnostic in rustc style. source is the text of the
// document the diagnostic points into and may be empty.
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m"
		}
	}
	fmt.Fprintf(&sb, "%s[%s]: %s\n", severity, diag.Code, diag.Message)
	if diag.Position.File != "" || diag.Position.Line > 0 {
		fmt.Fprintf(&sb, " --> %s:%d:%d\n", diag.Position.File, diag.Position.Line, diag.Position.Column)
	}

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			first := max(diag.Position.Line-ef.ContextLines, 1)
			for n := first; n <= diag.Position.Line; n++ {
				fmt.Fprintf(&sb, "%4d | %s\n", n, lines[n-1])
			}
			sb.WriteString("     | ")
			if diag.Position.Column > 0 {
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m")
				} else {
					sb.WriteString("^")
				}
				if diag.Attribute != "" {
					sb.WriteString(strings.Repeat("~", len(diag.Attribute)))
				}
			}
			sb.WriteString("\n")
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}
	if diag.SpecRef != "" {
		sb.WriteString("     = note: see " + diag.SpecRef + "\n")
	}
	for _, rel := range diag.Related {
		fmt.Fprintf(&sb, "\n     %s\n", rel.Label)
		fmt.Fprintf(&sb, "      --> %s:%d:%d\n", rel.Position.File, rel.Position.Line, rel.Position.Column)
	}
	return sb.String()
}
