package template

import (
	"hash/fnv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flowcore/flowcore/internal/errs"
)

// Compiled is a parsed template, safe to render concurrently any number of
// times against different data.
type Compiled struct {
	source string
	nodes  []astNode
}

// Engine owns the compiled-template LRU cache and the registered helper
// set, grounded in mbflow's TemplateProcessor instance (one per executor)
// but adding an explicit cache size bound via hashicorp/golang-lru/v2,
// since mbflow's processor recompiled on every call.
type Engine struct {
	mu      sync.RWMutex
	helpers map[string]HelperFunc
	cache   *lru.Cache[uint64, *Compiled]
}

// NewEngine constructs a template Engine with the built-in helpers
// registered and an LRU cache holding up to cacheSize compiled templates.
func NewEngine(cacheSize int) *Engine {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, _ := lru.New[uint64, *Compiled](cacheSize)
	helpers := builtinHelpers()
	return &Engine{helpers: helpers, cache: cache}
}

// RegisterHelper adds or overrides a named helper function.
func (e *Engine) RegisterHelper(name string, fn HelperFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.helpers[name] = fn
}

// Parse compiles source, serving a cached AST when the exact source text
// was compiled before (cache key is an FNV-1a hash of the source, per
// spec.md's "cached in an LRU keyed by source hash").
func (e *Engine) Parse(source string) (*Compiled, error) {
	key := hashSource(source)
	if cached, ok := e.cache.Get(key); ok && cached.source == source {
		return cached, nil
	}
	nodes, err := parse(source)
	if err != nil {
		return nil, err
	}
	compiled := &Compiled{source: source, nodes: nodes}
	e.cache.Add(key, compiled)
	return compiled, nil
}

// Render executes compiled against data. Rendering is side-effect-free:
// helpers must be pure functions.
func (e *Engine) Render(compiled *Compiled, data map[string]any) (string, error) {
	e.mu.RLock()
	helpers := e.helpers
	e.mu.RUnlock()
	return render(compiled.nodes, data, helpers)
}

// Validate checks that every variable path compiled references is present
// in declaredVariables, unless it is guaranteed a fallback via the
// "default" helper.
func Validate(compiled *Compiled, declaredVariables map[string]bool) error {
	required := map[string]bool{}
	defaulted := map[string]bool{}
	collectVarPaths(compiled.nodes, required, defaulted)
	var missing []string
	for path := range required {
		if path == "this" || path == "@index" {
			continue
		}
		if declaredVariables[path] || defaulted[path] {
			continue
		}
		missing = append(missing, path)
	}
	if len(missing) > 0 {
		return errs.Validation("template references undeclared variables with no default", map[string]any{"variables": missing})
	}
	return nil
}

func hashSource(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}
