package xsdc

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
)

// GrammarCache compiles each schema location once and shares the result.
// Concurrent requests for the same location wait for a single compilation.
type GrammarCache struct {
	mu       sync.RWMutex
	grammars map[string]*grammarEntry
	compiler *Compiler
	BasePath string
}

type grammarEntry struct {
	once    sync.Once
	grammar *Grammar
	err     error
}

// NewGrammarCache creates a cache compiling with opts. Relative locations
// resolve against opts.BaseDir.
func NewGrammarCache(opts Options) *GrammarCache {
	return &GrammarCache{
		grammars: make(map[string]*grammarEntry),
		compiler: NewCompiler(opts),
		BasePath: opts.BaseDir,
	}
}

// Get returns the grammar compiled from location, compiling it on first use.
// A grammar compiled with schema errors is returned along with them, and
// the errors are cached too.
func (gc *GrammarCache) Get(location string) (*Grammar, error) {
	key := gc.resolvePath(location)

	gc.mu.RLock()
	entry, ok := gc.grammars[key]
	gc.mu.RUnlock()
	if !ok {
		gc.mu.Lock()
		if entry, ok = gc.grammars[key]; !ok {
			entry = &grammarEntry{}
			gc.grammars[key] = entry
		}
		gc.mu.Unlock()
	}

	entry.once.Do(func() {
		entry.grammar, entry.err = gc.compiler.Compile(key)
	})
	return entry.grammar, entry.err
}

// GetOrCompile returns the cached grammar for location or compiles doc
// under that location. A compilation that fails outright is not cached.
func (gc *GrammarCache) GetOrCompile(location string, doc xmldom.Document) (*Grammar, error) {
	key := gc.resolvePath(location)
	gc.mu.RLock()
	entry, ok := gc.grammars[key]
	gc.mu.RUnlock()
	if ok {
		entry.once.Do(func() {})
		if entry.grammar != nil {
			return entry.grammar, entry.err
		}
	}

	g, err := gc.compiler.CompileDocument(doc, key)
	if g == nil {
		return nil, fmt.Errorf("failed to compile %s: %w", location, err)
	}
	entry = &grammarEntry{grammar: g, err: err}
	entry.once.Do(func() {})
	gc.mu.Lock()
	gc.grammars[key] = entry
	gc.mu.Unlock()
	return g, err
}

// Clear drops every cached grammar.
func (gc *GrammarCache) Clear() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.grammars = make(map[string]*grammarEntry)
}

// Remove drops the grammar cached for location.
func (gc *GrammarCache) Remove(location string) {
	key := gc.resolvePath(location)
	gc.mu.Lock()
	defer gc.mu.Unlock()
	delete(gc.grammars, key)
}

// Len returns the number of cached locations.
func (gc *GrammarCache) Len() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return len(gc.grammars)
}

func (gc *GrammarCache) resolvePath(location string) string {
	if isRemote(location) || filepath.IsAbs(location) {
		return location
	}
	if gc.BasePath != "" {
		return filepath.Join(gc.BasePath, location)
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return location
	}
	return abs
}

// GrammarRegistry maps target namespaces to compiled grammars.
type GrammarRegistry struct {
	mu         sync.RWMutex
	namespaces map[string]*Grammar
	cache      *GrammarCache
}

// NewGrammarRegistry creates a registry loading files through cache.
func NewGrammarRegistry(cache *GrammarCache) *GrammarRegistry {
	if cache == nil {
		cache = NewGrammarCache(DefaultOptions())
	}
	return &GrammarRegistry{
		namespaces: make(map[string]*Grammar),
		cache:      cache,
	}
}

// Register makes g and every grammar it imports available by namespace.
func (r *GrammarRegistry) Register(g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, each := range g.withImports() {
		if _, ok := r.namespaces[each.TargetNamespace]; !ok || each == g {
			r.namespaces[each.TargetNamespace] = each
		}
	}
}

// RegisterFile compiles location and registers the result. Schema errors
// are returned but the grammar is still registered.
func (r *GrammarRegistry) RegisterFile(location string) (*Grammar, error) {
	g, err := r.cache.Get(location)
	if g == nil {
		return nil, err
	}
	r.Register(g)
	return g, err
}

// ForNamespace returns the grammar registered for namespace.
func (r *GrammarRegistry) ForNamespace(namespace string) (*Grammar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.namespaces[namespace]
	return g, ok
}

// GlobalElement finds the top-level declaration of name in the grammar of
// its namespace.
func (r *GrammarRegistry) GlobalElement(name QName) (*ElementDecl, bool) {
	g, ok := r.ForNamespace(name.Namespace)
	if !ok {
		return nil, false
	}
	return g.GlobalElement(name)
}

// Namespaces lists the registered namespaces in order.
func (r *GrammarRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.namespaces)
}
