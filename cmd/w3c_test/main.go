package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentflare-ai/go-xsdc"
)

func main() {
	var (
		testSuiteDir  = flag.String("suite", "/tmp/xsd-test-suite", "Path to W3C XSD test suite")
		pattern       = flag.String("pattern", "msMeta/*_w3c.xml", "Pattern for test metadata files")
		verbose       = flag.Bool("verbose", false, "Print detailed test results")
		outputFile    = flag.String("output", "", "Output file for report (default: stdout)")
		resultsFile   = flag.String("results", "", "Write every result as YAML to this file")
		configFile    = flag.String("config", "", "YAML compiler options")
		testFile      = flag.String("file", "", "Run a specific test metadata file")
		limit         = flag.Int("limit", 0, "Limit number of tests to report (0 = no limit)")
		analyze       = flag.Bool("analyze", false, "Generate failure analysis report")
		autoDownload  = flag.Bool("auto-download", false, "Automatically download W3C test suite if not found")
		forceDownload = flag.Bool("force-download", false, "Force re-download even if cached (implies --auto-download)")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *forceDownload {
		*autoDownload = true
		os.Remove(filepath.Join(*testSuiteDir, downloadMarker))
	}
	downloaded, err := ensureTestSuite(logger, *testSuiteDir, *autoDownload)
	if err != nil {
		logger.Error("test suite unavailable", "error", err)
		os.Exit(1)
	}
	if downloaded {
		logger.Info("downloaded test suite is cached", "for", cacheDuration)
	}

	opts, err := xsdc.LoadOptions(*configFile)
	if err != nil {
		logger.Error("failed to load options", "error", err)
		os.Exit(1)
	}
	runner := xsdc.NewW3CTestRunner(*testSuiteDir)
	runner.Verbose = *verbose
	runner.Options = opts
	runner.Logger = logger

	if *testFile != "" {
		logger.Info("running test file", "file", *testFile)
		if err := runner.RunMetadataFile(*testFile); err != nil {
			logger.Error("failed to run test file", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("running W3C XSD conformance tests", "suite", *testSuiteDir, "pattern", *pattern)
		if err := runner.RunAllTests(*pattern); err != nil {
			logger.Error("failed to run tests", "error", err)
			os.Exit(1)
		}
	}

	if *limit > 0 && len(runner.Results) > *limit {
		runner.Results = runner.Results[:*limit]
		logger.Info("limited results", "count", *limit)
	}

	report := runner.GenerateReport()
	if *analyze {
		categories := xsdc.AnalyzeTestFailures(runner.Results)
		report = report + "\n\n" + xsdc.GenerateFailureReport(categories)
	}
	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
			logger.Error("failed to write report", "error", err)
			os.Exit(1)
		}
		logger.Info("report written", "file", *outputFile)
	} else {
		fmt.Println("\n" + report)
	}
	if *resultsFile != "" {
		f, err := os.Create(*resultsFile)
		if err != nil {
			logger.Error("failed to create results file", "error", err)
			os.Exit(1)
		}
		err = runner.WriteResults(f)
		f.Close()
		if err != nil {
			logger.Error("failed to write results", "error", err)
			os.Exit(1)
		}
	}

	for _, result := range runner.Results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}
