package xsdc

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// W3CTestSet represents a test set from the W3C XSD test suite
type W3CTestSet struct {
	XMLName     xml.Name       `xml:"testSet"`
	Contributor string         `xml:"contributor,attr"`
	Name        string         `xml:"name,attr"`
	TestGroups  []W3CTestGroup `xml:"testGroup"`
}

// W3CTestGroup represents a test group containing related tests
type W3CTestGroup struct {
	Name          string            `xml:"name,attr"`
	Annotation    *W3CAnnotation    `xml:"annotation"`
	DocReference  *W3CDocReference  `xml:"documentationReference"`
	SchemaTests   []W3CSchemaTest   `xml:"schemaTest"`
	InstanceTests []W3CInstanceTest `xml:"instanceTest"`
}

// W3CAnnotation contains test documentation
type W3CAnnotation struct {
	Documentation string `xml:"documentation"`
}

// W3CDocReference links to specification documentation
type W3CDocReference struct {
	Href string `xml:"href,attr"`
}

// W3CSchemaTest tests whether a schema is valid or invalid. The first
// schema document is the one compiled; the others are reached from it.
type W3CSchemaTest struct {
	Name            string           `xml:"name,attr"`
	SchemaDocuments []W3CSchemaDoc   `xml:"schemaDocument"`
	Expected        W3CExpected      `xml:"expected"`
	Current         W3CCurrentStatus `xml:"current"`
}

// W3CInstanceTest is read so it can be counted; instances are not validated.
type W3CInstanceTest struct {
	Name             string           `xml:"name,attr"`
	InstanceDocument W3CInstanceDoc   `xml:"instanceDocument"`
	Expected         W3CExpected      `xml:"expected"`
	Current          W3CCurrentStatus `xml:"current"`
}

// W3CSchemaDoc references a schema document
type W3CSchemaDoc struct {
	Href string `xml:"href,attr"`
}

// W3CInstanceDoc references an instance document
type W3CInstanceDoc struct {
	Href string `xml:"href,attr"`
}

// W3CExpected indicates expected validity
type W3CExpected struct {
	Validity string `xml:"validity,attr"` // "valid", "invalid", or "notKnown"
}

// W3CCurrentStatus tracks test acceptance status
type W3CCurrentStatus struct {
	Status string `xml:"status,attr"` // "accepted", "disputed", etc.
	Date   string `xml:"date,attr"`
}

// W3CTestResult captures the result of running a test
type W3CTestResult struct {
	TestSet    string   `yaml:"testSet"`
	TestGroup  string   `yaml:"testGroup"`
	TestName   string   `yaml:"test"`
	Expected   string   `yaml:"expected"`
	Actual     string   `yaml:"actual"` // "valid", "invalid", "error"
	Passed     bool     `yaml:"passed"`
	Codes      []string `yaml:"codes,omitempty"`
	Error      error    `yaml:"-"`
	Message    string   `yaml:"message,omitempty"`
	SchemaPath string   `yaml:"schema"`
}

// W3CTestRunner compiles the schemas of W3C XSD conformance test sets and
// compares the outcome with the expected validity.
type W3CTestRunner struct {
	TestSuiteDir string
	Results      []W3CTestResult
	// SkippedInstances counts instance tests, which are not run.
	SkippedInstances int
	Verbose          bool
	Options          Options
	Out              io.Writer
	Logger           *slog.Logger
}

// NewW3CTestRunner creates a test runner for the W3C test suite
func NewW3CTestRunner(testSuiteDir string) *W3CTestRunner {
	opts := DefaultOptions()
	return &W3CTestRunner{
		TestSuiteDir: testSuiteDir,
		Options:      opts,
		Out:          os.Stdout,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// LoadTestSet loads a W3C test set from an XML file
func (r *W3CTestRunner) LoadTestSet(metadataPath string) (*W3CTestSet, error) {
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read test metadata: %w", err)
	}
	var testSet W3CTestSet
	if err := xml.Unmarshal(data, &testSet); err != nil {
		return nil, fmt.Errorf("failed to parse test metadata %s: %w", metadataPath, err)
	}
	return &testSet, nil
}

// RunTestSet runs the schema tests of testSet. Document references are
// relative to the directory of metadataPath.
func (r *W3CTestRunner) RunTestSet(testSet *W3CTestSet, metadataPath string) {
	for _, group := range testSet.TestGroups {
		for _, test := range group.SchemaTests {
			result := r.runSchemaTest(testSet.Name, group.Name, test, metadataPath)
			r.Results = append(r.Results, result)
			if r.Verbose {
				r.printResult(result)
			}
		}
		r.SkippedInstances += len(group.InstanceTests)
	}
}

// runSchemaTest compiles the schema of test and records whether it was
// accepted.
func (r *W3CTestRunner) runSchemaTest(testSet, testGroup string, test W3CSchemaTest, metadataPath string) W3CTestResult {
	result := W3CTestResult{
		TestSet:   testSet,
		TestGroup: testGroup,
		TestName:  test.Name,
		Expected:  test.Expected.Validity,
	}
	if len(test.SchemaDocuments) == 0 {
		result.Actual = "error"
		result.Error = fmt.Errorf("schema test has no schema document")
		result.Message = result.Error.Error()
		return result
	}
	href := test.SchemaDocuments[0].Href
	result.SchemaPath = href
	schemaPath := href
	if !filepath.IsAbs(href) {
		schemaPath = filepath.Join(filepath.Dir(metadataPath), href)
	}

	opts := r.Options
	opts.BaseDir = filepath.Dir(schemaPath)
	opts.Logger = r.Logger.With("test", test.Name)
	_, err := NewCompiler(opts).Compile(filepath.Base(schemaPath))
	switch {
	case err == nil:
		result.Actual = "valid"
	case IsSchemaErrors(err):
		result.Actual = "invalid"
		result.Error = err
		result.Codes = errorCodes(err)
	default:
		result.Actual = "error"
		result.Error = err
	}
	if result.Error != nil {
		result.Message = result.Error.Error()
	}
	result.Passed = result.Expected == result.Actual
	return result
}

// errorCodes lists the distinct codes carried by a SchemaErrors value.
func errorCodes(err error) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, e := range AsSchemaErrors(err) {
		if !seen[e.Code] {
			seen[e.Code] = true
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func (r *W3CTestRunner) printResult(result W3CTestResult) {
	status := "PASS"
	if !result.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(r.Out, "[%s] %s/%s/%s: expected=%s, actual=%s",
		status, result.TestSet, result.TestGroup, result.TestName,
		result.Expected, result.Actual)
	if result.Error != nil && !result.Passed {
		fmt.Fprintf(r.Out, " (error: %v)", result.Error)
	}
	fmt.Fprintln(r.Out)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// GenerateReport generates a summary report of test results
func (r *W3CTestRunner) GenerateReport() string {
	total := len(r.Results)
	passed, errors := 0, 0
	var failedTests []W3CTestResult
	for _, result := range r.Results {
		if result.Passed {
			passed++
		} else {
			failedTests = append(failedTests, result)
		}
		if result.Actual == "error" {
			errors++
		}
	}

	var report strings.Builder
	report.WriteString("W3C XSD Schema Conformance Results\n")
	report.WriteString("==================================\n\n")
	fmt.Fprintf(&report, "Schema Tests:    %d\n", total)
	fmt.Fprintf(&report, "Passed:          %d (%.1f%%)\n", passed, percent(passed, total))
	fmt.Fprintf(&report, "Failed:          %d (%.1f%%)\n", len(failedTests), percent(len(failedTests), total))
	fmt.Fprintf(&report, "Errors:          %d\n", errors)
	fmt.Fprintf(&report, "Instance Tests:  %d (skipped)\n", r.SkippedInstances)

	if len(failedTests) > 0 {
		report.WriteString("\nFailed Tests (showing first 20):\n")
		report.WriteString("---------------------------------\n")
		for i, result := range failedTests {
			if i >= 20 {
				break
			}
			fmt.Fprintf(&report, "%s/%s/%s: expected=%s, actual=%s\n",
				result.TestSet, result.TestGroup, result.TestName,
				result.Expected, result.Actual)
		}
	}
	return report.String()
}

// WriteResults writes every result as YAML.
func (r *W3CTestRunner) WriteResults(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return enc.Close()
}

// RunMetadataFile runs all tests from a single metadata file
func (r *W3CTestRunner) RunMetadataFile(metadataPath string) error {
	testSet, err := r.LoadTestSet(metadataPath)
	if err != nil {
		return err
	}
	r.RunTestSet(testSet, metadataPath)
	return nil
}

// RunAllTests discovers and runs all test metadata files matching pattern.
// A metadata file that cannot be read is logged and skipped.
func (r *W3CTestRunner) RunAllTests(pattern string) error {
	metadataFiles, err := filepath.Glob(filepath.Join(r.TestSuiteDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to find test files: %w", err)
	}
	r.Logger.Info("found test metadata files", "count", len(metadataFiles))
	for i, metadataPath := range metadataFiles {
		r.Logger.Info("running test file", "index", i+1, "total", len(metadataFiles), "file", filepath.Base(metadataPath))
		if err := r.RunMetadataFile(metadataPath); err != nil {
			r.Logger.Error("failed to run test file", "file", metadataPath, "error", err)
		}
	}
	return nil
}
