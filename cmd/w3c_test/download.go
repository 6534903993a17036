package main

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	testSuiteURL = "https://www.w3.org/XML/2004/xml-schema-test-suite/xmlschema2006-11-06/xsts-2007-06-20.tar.gz"

	// A suite younger than this is not downloaded again.
	cacheDuration = 7 * 24 * time.Hour

	downloadMarker = ".w3c_test_suite.yaml"
)

// downloadInfo is written to the marker file of a downloaded suite.
type downloadInfo struct {
	DownloadedAt time.Time `yaml:"downloadedAt"`
	URL          string    `yaml:"url"`
	Files        int       `yaml:"files"`
}

func readMarker(dir string) (downloadInfo, error) {
	var info downloadInfo
	data, err := os.ReadFile(filepath.Join(dir, downloadMarker))
	if err != nil {
		return info, err
	}
	if err := yaml.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("invalid marker in %s: %w", dir, err)
	}
	return info, nil
}

func writeMarker(dir string, info downloadInfo) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, downloadMarker), data, 0o644)
}

// ensureTestSuite makes sure dir holds the test suite. It reports whether
// a download took place. A stale suite is used as is unless autoDownload
// is set.
func ensureTestSuite(logger *slog.Logger, dir string, autoDownload bool) (bool, error) {
	info, err := readMarker(dir)
	switch {
	case err == nil && time.Since(info.DownloadedAt) < cacheDuration:
		logger.Debug("using cached test suite", "downloadedAt", info.DownloadedAt, "files", info.Files)
		return false, nil
	case err == nil:
		logger.Info("test suite cache is stale", "age", time.Since(info.DownloadedAt).Round(time.Hour), "max", cacheDuration)
	case !errors.Is(err, os.ErrNotExist):
		logger.Warn("ignoring test suite marker", "error", err)
	}

	if !autoDownload {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("test suite not found at %s; run with -auto-download or fetch %s", dir, testSuiteURL)
		}
		return false, nil
	}

	logger.Info("downloading W3C XSD test suite", "source", testSuiteURL, "destination", dir)
	files, err := download(logger, testSuiteURL, dir)
	if err != nil {
		return false, fmt.Errorf("failed to download test suite: %w", err)
	}
	if err := writeMarker(dir, downloadInfo{DownloadedAt: time.Now(), URL: testSuiteURL, Files: files}); err != nil {
		logger.Warn("failed to write marker file", "error", err)
	}
	logger.Info("test suite downloaded", "files", files)
	return true, nil
}

// download fetches the archive at url and unpacks it into destDir,
// replacing whatever was there once extraction succeeded.
func download(logger *slog.Logger, url, destDir string) (int, error) {
	client := &http.Client{Timeout: 10 * time.Minute}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "go-xsdc-conformance/1.0 (https://github.com/agentflare-ai/go-xsdc)")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	staging := destDir + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return 0, fmt.Errorf("failed to clean %s: %w", staging, err)
	}
	body := &progressReader{reader: resp.Body, total: resp.ContentLength, logger: logger}
	files, err := extractArchive(body, staging)
	if err != nil {
		os.RemoveAll(staging)
		return 0, err
	}
	if err := os.RemoveAll(destDir); err != nil {
		return 0, fmt.Errorf("failed to remove old suite: %w", err)
	}
	if err := os.Rename(staging, destDir); err != nil {
		return 0, fmt.Errorf("failed to move suite into place: %w", err)
	}
	return files, nil
}

// extractArchive unpacks a gzipped tar into dest and returns the number of
// regular files written. A leading directory shared by every entry is
// dropped; entries escaping dest are rejected.
func extractArchive(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}
	tr := tar.NewReader(gz)
	var (
		prefix string
		first  = true
		files  int
	)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("tar read error: %w", err)
		}
		name := filepath.ToSlash(header.Name)
		if first {
			if top, _, ok := strings.Cut(name, "/"); ok && top != "" {
				prefix = top + "/"
			}
			first = false
		}
		if prefix != "" {
			rest, ok := strings.CutPrefix(name, prefix)
			if !ok {
				return files, fmt.Errorf("entry %s is outside the archive root %s", header.Name, prefix)
			}
			name = rest
		}
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			continue
		}
		if !filepath.IsLocal(name) {
			return files, fmt.Errorf("illegal file path in archive: %s", header.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return files, err
			}
			files++
		}
	}
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return f.Close()
}

// progressReader logs how much of the archive has arrived, at most every
// few seconds.
type progressReader struct {
	reader  io.Reader
	total   int64
	current int64
	logged  time.Time
	logger  *slog.Logger
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if now := time.Now(); now.Sub(pr.logged) > 3*time.Second || err == io.EOF {
		pr.logged = now
		args := []any{"bytes", pr.current}
		if pr.total > 0 {
			args = append(args, "percent", fmt.Sprintf("%.1f", float64(pr.current)*100/float64(pr.total)))
		}
		pr.logger.Info("download progress", args...)
	}
	return n, err
}
