package xsdc

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// FailureCategory groups failed conformance tests by compiler area.
type FailureCategory struct {
	Name        string
	Description string
	Count       int
	Examples    []W3CTestResult
}

var failureCategories = []struct {
	key, name, description string
}{
	{"content-model", "Content Model Building", "particles, occurrence expansion and model groups"},
	{"all-group", "All Groups", "all group limits and permutation expansion"},
	{"attributes", "Attributes and Attribute Groups", "attribute uses, attribute groups and their resolution"},
	{"wildcards", "Wildcards", "xs:any, xs:anyAttribute and wildcard merging"},
	{"derivation", "Type Derivation", "restriction and extension of complex types"},
	{"simple-type", "Simple Type Definition", "facets, lists and unions"},
	{"identity-constraint", "Identity Constraints", "key, keyref and unique"},
	{"composition", "Schema Composition", "include, import and redefine"},
	{"namespace", "Namespace Handling", "QName resolution and qualification"},
	{"substitution", "Substitution Groups", "substitution group heads and members"},
	{"notation", "Notations", "notation declarations and NOTATION types"},
	{"fixed-default", "Fixed/Default Values", "value constraints on elements and attributes"},
	{"schema-syntax", "Schema Document Syntax", "elements and attributes of schema documents"},
	{"other", "Other/Unknown", "uncategorized failures"},
}

// codeCategories maps reported error code prefixes to categories. Longer
// prefixes are listed first.
var codeCategories = []struct{ prefix, category string }{
	{"cos-all-limited", "all-group"},
	{"src-redefine", "composition"},
	{"src-include", "composition"},
	{"src-import", "composition"},
	{"schema_reference", "composition"},
	{"src-attribute_group", "attributes"},
	{"ag-props-correct", "attributes"},
	{"src-ct.4", "wildcards"},
	{"src-ct.5", "wildcards"},
	{"src-ct", "derivation"},
	{"ct-props-correct", "derivation"},
	{"cos-ct-extends", "derivation"},
	{"derivation-ok-restriction", "derivation"},
	{"cos-applicable-facets", "simple-type"},
	{"c-", "identity-constraint"},
	{"p-props-correct", "content-model"},
	{"src-resolve", "namespace"},
	{"s4s-", "schema-syntax"},
}

// AnalyzeTestFailures categorizes failed results, by the codes the compiler
// reported when there are any and by test name otherwise.
func AnalyzeTestFailures(results []W3CTestResult) map[string]*FailureCategory {
	categories := make(map[string]*FailureCategory, len(failureCategories))
	for _, c := range failureCategories {
		categories[c.key] = &FailureCategory{Name: c.name, Description: c.description}
	}
	for _, result := range results {
		if result.Passed {
			continue
		}
		cat := categories[categorizeFailure(result)]
		cat.Count++
		if len(cat.Examples) < 5 {
			cat.Examples = append(cat.Examples, result)
		}
	}
	return categories
}

func categorizeFailure(result W3CTestResult) string {
	for _, code := range result.Codes {
		for _, c := range codeCategories {
			if strings.HasPrefix(code, c.prefix) {
				return c.category
			}
		}
	}

	testPath := strings.ToLower(result.TestGroup + "/" + result.TestName)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(testPath, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("identity", "keyref", "unique", "key"):
		return "identity-constraint"
	case has("include", "redefine", "import"):
		return "composition"
	case has("anyattribute", "wildcard", "any", "processcontents"):
		return "wildcards"
	case has("attributegroup", "attgrp", "attribute"):
		return "attributes"
	case has("all"):
		return "all-group"
	case has("extension", "restriction", "derive", "complexcontent", "simplecontent"):
		return "derivation"
	case has("sequence", "choice", "group", "particle", "occurrence"):
		return "content-model"
	case has("pattern", "length", "enum", "facet", "simpletype", "list", "union"):
		return "simple-type"
	case has("namespace", "targetns", "qualified"):
		return "namespace"
	case has("substitution", "abstract"):
		return "substitution"
	case has("notation"):
		return "notation"
	case has("fixed", "default"):
		return "fixed-default"
	}
	return "other"
}

// GenerateFailureReport creates a detailed failure analysis report
func GenerateFailureReport(categories map[string]*FailureCategory) string {
	var report strings.Builder
	report.WriteString("XSD Schema Test Failure Analysis\n")
	report.WriteString("================================\n\n")

	type catEntry struct {
		key string
		cat *FailureCategory
	}
	var sorted []catEntry
	totalFailures := 0
	for k, v := range categories {
		if v.Count > 0 {
			sorted = append(sorted, catEntry{k, v})
			totalFailures += v.Count
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].cat.Count != sorted[j].cat.Count {
			return sorted[i].cat.Count > sorted[j].cat.Count
		}
		return sorted[i].key < sorted[j].key
	})

	fmt.Fprintf(&report, "Total Failures: %d\n\n", totalFailures)
	report.WriteString("Failures by Category:\n")
	report.WriteString("--------------------\n\n")
	for _, entry := range sorted {
		cat := entry.cat
		fmt.Fprintf(&report, "%s: %d failures (%.1f%%)\n", cat.Name, cat.Count, percent(cat.Count, totalFailures))
		fmt.Fprintf(&report, "  %s\n", cat.Description)
		if len(cat.Examples) > 0 {
			report.WriteString("  Examples:\n")
			for i, ex := range cat.Examples {
				if i >= 3 {
					break
				}
				fmt.Fprintf(&report, "    - %s/%s (expected: %s, got: %s)\n", ex.TestGroup, ex.TestName, ex.Expected, ex.Actual)
				if len(ex.Codes) > 0 {
					fmt.Fprintf(&report, "      Codes: %s\n", strings.Join(ex.Codes, ", "))
				}
				if ex.SchemaPath != "" {
					fmt.Fprintf(&report, "      Schema: %s\n", filepath.Base(ex.SchemaPath))
				}
			}
		}
		report.WriteString("\n")
	}
	return report.String()
}
