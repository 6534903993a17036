package xsdc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/golang/groupcache/lru"
)

// InputSource is a parsed schema document and the system ID it was loaded
// from. The system ID is the base for the document's own schema locations.
type InputSource struct {
	Document xmldom.Document
	SystemID string
}

// EntityResolver locates the schema documents named by include, import and
// redefine. publicID carries the namespace of an import and is empty
// otherwise. Failures wrap ErrDocumentNotFound.
type EntityResolver interface {
	ResolveEntity(publicID, systemID, baseSystemID string) (*InputSource, error)
}

// FileResolver loads schema documents from the filesystem and, when
// allowed, over http. Parsed documents are kept in an LRU keyed by
// absolute location.
type FileResolver struct {
	BaseDir     string
	AllowRemote bool

	httpClient *http.Client

	mu   sync.Mutex
	docs *lru.Cache
}

// NewFileResolver creates a resolver keeping up to cacheSize parsed
// documents. A cacheSize of zero keeps every document.
func NewFileResolver(baseDir string, allowRemote bool, cacheSize int) *FileResolver {
	return &FileResolver{
		BaseDir:     baseDir,
		AllowRemote: allowRemote,
		httpClient:  &http.Client{},
		docs:        lru.New(cacheSize),
	}
}

// ResolveEntity resolves systemID against baseSystemID and loads it.
func (r *FileResolver) ResolveEntity(publicID, systemID, baseSystemID string) (*InputSource, error) {
	if systemID == "" {
		return nil, fmt.Errorf("%w: empty schema location", ErrDocumentNotFound)
	}
	location, err := r.resolveLocation(systemID, baseSystemID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}

	r.mu.Lock()
	if doc, ok := r.docs.Get(location); ok {
		r.mu.Unlock()
		return &InputSource{Document: doc.(xmldom.Document), SystemID: location}, nil
	}
	r.mu.Unlock()

	doc, err := r.loadDocument(location)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.docs.Add(location, doc)
	r.mu.Unlock()
	return &InputSource{Document: doc, SystemID: location}, nil
}

// resolveLocation turns a schema location into an absolute path or URL.
func (r *FileResolver) resolveLocation(location, base string) (string, error) {
	if isRemote(location) {
		if !r.AllowRemote {
			return "", fmt.Errorf("remote schema loading is disabled: %s", location)
		}
		return location, nil
	}
	if isRemote(base) {
		if !r.AllowRemote {
			return "", fmt.Errorf("remote schema loading is disabled: %s", location)
		}
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("invalid base location %s: %w", base, err)
		}
		rel, err := baseURL.Parse(location)
		if err != nil {
			return "", fmt.Errorf("invalid schema location %s: %w", location, err)
		}
		return rel.String(), nil
	}
	location = strings.TrimPrefix(location, "file://")
	if filepath.IsAbs(location) {
		return location, nil
	}
	switch {
	case base != "":
		return filepath.Abs(filepath.Join(filepath.Dir(strings.TrimPrefix(base, "file://")), location))
	case r.BaseDir != "":
		return filepath.Abs(filepath.Join(r.BaseDir, location))
	}
	return filepath.Abs(location)
}

// loadDocument reads and parses the document at location.
func (r *FileResolver) loadDocument(location string) (xmldom.Document, error) {
	var reader io.ReadCloser
	if isRemote(location) {
		resp, err := r.httpClient.Get(location)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch %s: %v", ErrDocumentNotFound, location, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: HTTP %d from %s", ErrDocumentNotFound, resp.StatusCode, location)
		}
		reader = resp.Body
	} else {
		file, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
		}
		reader = file
	}
	defer reader.Close()

	doc, err := xmldom.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", location, err)
	}
	return doc, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// MapResolver serves schema documents from memory, keyed by slash-separated
// system IDs. Relative locations resolve against the including document.
type MapResolver struct {
	Documents map[string]string

	mu     sync.Mutex
	parsed map[string]xmldom.Document
}

// NewMapResolver creates a resolver over docs.
func NewMapResolver(docs map[string]string) *MapResolver {
	return &MapResolver{Documents: docs}
}

func (r *MapResolver) ResolveEntity(publicID, systemID, baseSystemID string) (*InputSource, error) {
	location := systemID
	if !path.IsAbs(systemID) && baseSystemID != "" {
		location = path.Join(path.Dir(baseSystemID), systemID)
	}
	text, ok := r.Documents[location]
	if !ok {
		if text, ok = r.Documents[systemID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, systemID)
		}
		location = systemID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.parsed[location]; ok {
		return &InputSource{Document: doc, SystemID: location}, nil
	}
	doc, err := xmldom.Decode(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", location, err)
	}
	if r.parsed == nil {
		r.parsed = make(map[string]xmldom.Document)
	}
	r.parsed[location] = doc
	return &InputSource{Document: doc, SystemID: location}, nil
}
