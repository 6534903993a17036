package xsdc

import (
	"fmt"
	"slices"
	"strings"
)

// ProcessContentsMode defines how wildcard content should be processed
type ProcessContentsMode string

const (
	// StrictProcess requires the element/attribute to be validated against its declaration
	StrictProcess ProcessContentsMode = "strict"
	// LaxProcess validates if a declaration is found, otherwise allows it
	LaxProcess ProcessContentsMode = "lax"
	// SkipProcess allows the element/attribute without validation
	SkipProcess ProcessContentsMode = "skip"
)

func (m ProcessContentsMode) strength() int {
	switch m {
	case StrictProcess:
		return 2
	case LaxProcess:
		return 1
	}
	return 0
}

// NamespaceConstraintKind is the shape of a wildcard's namespace constraint.
type NamespaceConstraintKind uint8

const (
	// NamespaceAny accepts every namespace, including none.
	NamespaceAny NamespaceConstraintKind = iota
	// NamespaceOther accepts any namespace except Wildcard.Namespace and no namespace.
	NamespaceOther
	// NamespaceLocal accepts only unqualified names.
	NamespaceLocal
	// NamespaceList accepts the namespaces in Wildcard.Namespaces; "" stands for no namespace.
	NamespaceList
)

// Wildcard is the compiled form of xs:any and xs:anyAttribute.
type Wildcard struct {
	Constraint NamespaceConstraintKind
	Namespace  string
	Namespaces []string
	Process    ProcessContentsMode
}

// AnyWildcard returns the ##any wildcard with the given process mode.
func AnyWildcard(process ProcessContentsMode) *Wildcard {
	return &Wildcard{Constraint: NamespaceAny, Process: process}
}

// OtherWildcard returns ##other relative to excluded.
func OtherWildcard(excluded string, process ProcessContentsMode) *Wildcard {
	return &Wildcard{Constraint: NamespaceOther, Namespace: excluded, Process: process}
}

// LocalWildcard returns ##local.
func LocalWildcard(process ProcessContentsMode) *Wildcard {
	return &Wildcard{Constraint: NamespaceLocal, Process: process}
}

// ListWildcard returns an explicit namespace list. The list is kept sorted and free of duplicates.
func ListWildcard(namespaces []string, process ProcessContentsMode) *Wildcard {
	ns := slices.Clone(namespaces)
	slices.Sort(ns)
	ns = slices.Compact(ns)
	return &Wildcard{Constraint: NamespaceList, Namespaces: ns, Process: process}
}

// ParseWildcard parses the namespace and processContents attributes of xs:any or
// xs:anyAttribute. targetNamespace resolves ##other and ##targetNamespace.
func ParseWildcard(namespace, processContents, targetNamespace string) (*Wildcard, error) {
	mode := ProcessContentsMode(processContents)
	switch mode {
	case "":
		mode = StrictProcess
	case StrictProcess, LaxProcess, SkipProcess:
	default:
		return nil, fmt.Errorf("invalid processContents value %q", processContents)
	}

	value := strings.TrimSpace(namespace)
	switch value {
	case "", "##any":
		return AnyWildcard(mode), nil
	case "##other":
		return OtherWildcard(targetNamespace, mode), nil
	case "##local":
		return LocalWildcard(mode), nil
	}

	var list []string
	for _, tok := range strings.Fields(value) {
		switch tok {
		case "##targetNamespace":
			list = append(list, targetNamespace)
		case "##local":
			list = append(list, "")
		case "##any", "##other":
			return nil, fmt.Errorf("%s cannot appear in a namespace list", tok)
		default:
			if strings.HasPrefix(tok, "##") {
				return nil, fmt.Errorf("invalid namespace constraint token %q", tok)
			}
			list = append(list, tok)
		}
	}
	return ListWildcard(list, mode), nil
}

// Allows reports whether a name in namespace ns satisfies the namespace constraint.
func (w *Wildcard) Allows(ns string) bool {
	if w == nil {
		return false
	}
	switch w.Constraint {
	case NamespaceAny:
		return true
	case NamespaceOther:
		return ns != w.Namespace && ns != ""
	case NamespaceLocal:
		return ns == ""
	case NamespaceList:
		_, found := slices.BinarySearch(w.Namespaces, ns)
		return found
	}
	return false
}

// Equal compares two wildcards structurally.
func (w *Wildcard) Equal(o *Wildcard) bool {
	if w == nil || o == nil {
		return w == o
	}
	if w.Constraint != o.Constraint || w.Process != o.Process {
		return false
	}
	switch w.Constraint {
	case NamespaceOther:
		return w.Namespace == o.Namespace
	case NamespaceList:
		return slices.Equal(w.Namespaces, o.Namespaces)
	}
	return true
}

func (w *Wildcard) String() string {
	if w == nil {
		return "none"
	}
	var s string
	switch w.Constraint {
	case NamespaceAny:
		s = "any"
	case NamespaceOther:
		s = "other:" + w.Namespace
	case NamespaceLocal:
		s = "local"
	case NamespaceList:
		quoted := make([]string, len(w.Namespaces))
		for i, ns := range w.Namespaces {
			quoted[i] = fmt.Sprintf("%q", ns)
		}
		s = "list:[" + strings.Join(quoted, " ") + "]"
	}
	if w.Process != "" && w.Process != StrictProcess {
		s += "/" + string(w.Process)
	}
	return s
}

// MergeAnyAttribute combines two attribute wildcards. The operation is symmetric:
//
//	Any      + X        = X
//	Other(u) + Other(u) = Other(u); distinct URIs do not merge
//	Other(u) + Local    = Local
//	Other(u) + List(S)  = List(S \ {u})
//	Local    + Local    = Local
//	Local    + List     does not merge
//	List(A)  + List(B)  = List(A ∩ B)
//
// Outside the Any case the stronger processContents of the two wins.
// A nil operand yields the other one.
func MergeAnyAttribute(a, b *Wildcard) (*Wildcard, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	if a.Constraint == NamespaceAny {
		return b, nil
	}
	if b.Constraint == NamespaceAny {
		return a, nil
	}
	if a.Constraint > b.Constraint {
		a, b = b, a
	}
	process := a.Process
	if b.Process.strength() > process.strength() {
		process = b.Process
	}

	switch a.Constraint {
	case NamespaceOther:
		switch b.Constraint {
		case NamespaceOther:
			if a.Namespace != b.Namespace {
				return nil, fmt.Errorf("%w: ##other of %q and %q", ErrWildcardIntersection, a.Namespace, b.Namespace)
			}
			return OtherWildcard(a.Namespace, process), nil
		case NamespaceLocal:
			return LocalWildcard(process), nil
		case NamespaceList:
			kept := make([]string, 0, len(b.Namespaces))
			for _, ns := range b.Namespaces {
				if ns != a.Namespace {
					kept = append(kept, ns)
				}
			}
			return ListWildcard(kept, process), nil
		}
	case NamespaceLocal:
		switch b.Constraint {
		case NamespaceLocal:
			return LocalWildcard(process), nil
		case NamespaceList:
			return nil, fmt.Errorf("%w: ##local and an explicit list", ErrWildcardIntersection)
		}
	case NamespaceList:
		var common []string
		for _, ns := range a.Namespaces {
			if _, ok := slices.BinarySearch(b.Namespaces, ns); ok {
				common = append(common, ns)
			}
		}
		return ListWildcard(common, process), nil
	}
	return nil, fmt.Errorf("%w: %s and %s", ErrWildcardIntersection, a, b)
}
