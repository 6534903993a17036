package xsdc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/agentflare-ai/go-xmldom"
	"gopkg.in/yaml.v3"
)

// Options configures a Compiler.
type Options struct {
	// BaseDir resolves relative schema locations of root documents.
	BaseDir string `yaml:"baseDir"`
	// AllowRemote permits http and https schema locations.
	AllowRemote bool `yaml:"allowRemote"`
	// MaxContentSpecNodes bounds each grammar's content-spec pool.
	MaxContentSpecNodes int `yaml:"maxContentSpecNodes"`
	// MaxAllGroupSize bounds the number of particles in an all group.
	MaxAllGroupSize int `yaml:"maxAllGroupSize"`
	// DocumentCacheSize is the number of parsed schema documents kept by the default resolver.
	DocumentCacheSize int `yaml:"documentCacheSize"`
	// CheckSchemaAttributes runs the schema-document attribute checker before traversal.
	CheckSchemaAttributes bool `yaml:"checkSchemaAttributes"`

	Resolver EntityResolver `yaml:"-"`
	Reporter ErrorReporter  `yaml:"-"`
	Logger   *slog.Logger   `yaml:"-"`
}

// DefaultOptions returns the options used by Parse and LoadSchema.
func DefaultOptions() Options {
	return Options{
		MaxContentSpecNodes:   1 << 20,
		MaxAllGroupSize:       8,
		DocumentCacheSize:     64,
		CheckSchemaAttributes: true,
	}
}

// LoadOptions reads options from a YAML file on top of DefaultOptions, then
// applies XSDC_* environment overrides.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("failed to read options file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("failed to parse options file %s: %w", path, err)
		}
	}
	if v := os.Getenv("XSDC_BASE_DIR"); v != "" {
		opts.BaseDir = v
	}
	if v := os.Getenv("XSDC_ALLOW_REMOTE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid XSDC_ALLOW_REMOTE value %q: %w", v, err)
		}
		opts.AllowRemote = b
	}
	return opts, nil
}

// Compiler turns schema documents into grammars. A Compiler may be used for
// several compilations, one at a time.
type Compiler struct {
	mu        sync.Mutex
	opts      Options
	resolver  EntityResolver
	logger    *slog.Logger
	datatypes *DatatypeRegistry
	checker   *SchemaChecker
}

// NewCompiler creates a compiler. Zero limits take the defaults.
func NewCompiler(opts Options) *Compiler {
	def := DefaultOptions()
	if opts.MaxContentSpecNodes == 0 {
		opts.MaxContentSpecNodes = def.MaxContentSpecNodes
	}
	if opts.MaxAllGroupSize == 0 {
		opts.MaxAllGroupSize = def.MaxAllGroupSize
	}
	if opts.DocumentCacheSize == 0 {
		opts.DocumentCacheSize = def.DocumentCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewFileResolver(opts.BaseDir, opts.AllowRemote, opts.DocumentCacheSize)
	}
	return &Compiler{
		opts:      opts,
		resolver:  resolver,
		logger:    logger,
		datatypes: NewDatatypeRegistry(),
		checker:   NewSchemaChecker(),
	}
}

// Compile loads the schema at systemID and compiles it with everything it
// includes, imports and redefines. The grammar of the root document's
// namespace is returned along with SchemaErrors when errors were reported.
func (c *Compiler) Compile(systemID string) (*Grammar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp := c.newCompilation()
	src, err := c.resolver.ResolveEntity("", systemID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentNotFound, systemID, err)
	}
	return comp.run(src.Document, src.SystemID)
}

// CompileDocument compiles an already parsed schema document. systemID is
// the base for relative schema locations and may be empty.
func (c *Compiler) CompileDocument(doc xmldom.Document, systemID string) (*Grammar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newCompilation().run(doc, systemID)
}

func (c *Compiler) newCompilation() *compilation {
	comp := &compilation{
		opts:      c.opts,
		resolver:  c.resolver,
		log:       c.logger,
		datatypes: c.datatypes,
		grammars:  make(map[string]*Grammar),
		documents: make(map[string]*Grammar),
		seen:      make(map[string]bool),
		collected: &CollectingReporter{},
	}
	if c.opts.CheckSchemaAttributes {
		comp.checker = c.checker
	}
	return comp
}

// Parse compiles doc with the default options.
func Parse(doc xmldom.Document) (*Grammar, error) {
	return NewCompiler(DefaultOptions()).CompileDocument(doc, "")
}

// LoadSchema compiles the schema file at filename with the default options.
func LoadSchema(filename string) (*Grammar, error) {
	opts := DefaultOptions()
	opts.BaseDir = filepath.Dir(filename)
	return NewCompiler(opts).Compile(filepath.Base(filename))
}

// compilation is the state of one Compile call.
type compilation struct {
	opts      Options
	resolver  EntityResolver
	log       *slog.Logger
	datatypes *DatatypeRegistry
	checker   *SchemaChecker

	grammars   map[string]*Grammar
	traversers []*traverser
	// documents maps each loaded document, keyed by docKey, to the grammar
	// it went into.
	documents map[string]*Grammar

	collected *CollectingReporter
	seen      map[string]bool
}

func (c *compilation) report(err *SchemaError) {
	key := fmt.Sprintf("%s:%d:%d:%s:%s", err.SystemID, err.Line, err.Column, err.Code, err.Message)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.collected.Report(err)
	if c.opts.Reporter != nil {
		c.opts.Reporter.Report(err)
	}
	c.log.Debug("schema error", "code", err.Code, "kind", err.Kind, "severity", err.Severity, "systemID", err.SystemID, "line", err.Line)
}

// grammarFor returns the grammar of namespace, creating it with its traverser.
func (c *compilation) grammarFor(namespace string) *Grammar {
	if g, ok := c.grammars[namespace]; ok {
		return g
	}
	g := NewGrammar(namespace, c.datatypes, c.opts.MaxContentSpecNodes)
	c.grammars[namespace] = g
	c.traversers = append(c.traversers, newTraverser(c, g))
	return g
}

// rootContext validates the schema element of doc and builds its frame.
func (c *compilation) rootContext(doc xmldom.Document, systemID string, g func(tns string) *Grammar, parent *docContext) (*docContext, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrNotSchema)
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrNotSchema)
	}
	if string(root.NamespaceURI()) != XSDNamespace || string(root.LocalName()) != "schema" {
		return nil, fmt.Errorf("%w: root element is {%s}%s", ErrNotSchema, root.NamespaceURI(), root.LocalName())
	}
	grammar := g(string(root.GetAttribute("targetNamespace")))
	ctx, errs := newDocContext(root, systemID, grammar, parent)
	for _, e := range errs {
		c.report(ctx.locate(e))
	}
	if c.checker != nil {
		for _, e := range c.checker.Check(root) {
			c.report(ctx.locate(e))
		}
	}
	return ctx, nil
}

func (c *compilation) run(doc xmldom.Document, systemID string) (*Grammar, error) {
	ctx, err := c.rootContext(doc, systemID, c.grammarFor, nil)
	if err != nil {
		return nil, err
	}
	root := ctx.grammar
	root.SystemID = systemID
	if systemID != "" {
		c.documents[docKey(systemID, ctx.targetNamespace)] = root
	}
	root.owner.traverseDocument(ctx)

	c.finish()
	for _, t := range c.traversers {
		t.log.Debug("grammar compiled",
			"elements", t.grammar.NumElementDecls(),
			"complexTypes", len(t.grammar.ComplexTypes),
			"simpleTypes", len(t.grammar.SimpleTypes),
			"contentSpecNodes", t.grammar.pool.Len())
	}

	if failures := c.collected.Failures(); len(failures) > 0 {
		return root, failures
	}
	return root, nil
}

// finish runs the work deferred until every document is loaded, one phase
// at a time across all grammars: recursive element types, attribute group
// references made before the group was loaded, notations, then identity
// constraints.
func (c *compilation) finish() {
	for _, t := range c.traversers {
		t.completePendingElements()
	}
	for progress := true; progress; {
		progress = false
		for _, t := range c.traversers {
			if t.patchAttributeGroups() {
				progress = true
			}
		}
	}
	for _, t := range c.traversers {
		t.patchTypeAttributeUses()
	}
	for _, t := range c.traversers {
		t.checkNotationUses()
	}
	for _, t := range c.traversers {
		t.buildIdentityConstraints()
	}
}

// IsSchemaErrors reports whether err carries reported schema errors, as
// opposed to a failure to load the root document.
func IsSchemaErrors(err error) bool {
	var se SchemaErrors
	return errors.As(err, &se)
}

// AsSchemaErrors returns the schema errors carried by err, or nil.
func AsSchemaErrors(err error) SchemaErrors {
	var se SchemaErrors
	if errors.As(err, &se) {
		return se
	}
	return nil
}
