// Package qmctx holds the state threaded through one compilation:
// QueryContext (dialect, settings, name allocator, checkpoint cache,
// warnings) and QueryLayer (one in-flight SELECT scope).
package qmctx

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/patrickmn/go-cache"
	"github.com/spaolacci/murmur3"

	"github.com/fj1981/modelsql/pkg/qmconf"
	"github.com/fj1981/modelsql/pkg/qmdialect"
)

// reflectionCacheSize bounds the LRU backend's entry count; the TTL
// backend is instead bounded by reflectionCacheExpiry/-Sweep below.
const reflectionCacheSize = 512

const (
	reflectionCacheExpiry = 2 * time.Minute
	reflectionCacheSweep  = 5 * time.Minute
)

// reflectionCache abstracts over the two backends Settings.ReflectionCache
// can select: a bounded LRU or a short-TTL cache.
type reflectionCache interface {
	Load(key string) (map[string]string, bool)
	Store(key string, val map[string]string)
}

type lruReflectionCache struct {
	c *lru.Cache[string, map[string]string]
}

func (l *lruReflectionCache) Load(key string) (map[string]string, bool) { return l.c.Get(key) }
func (l *lruReflectionCache) Store(key string, val map[string]string)   { l.c.Add(key, val) }

type ttlReflectionCache struct {
	c *cache.Cache
}

func (t *ttlReflectionCache) Load(key string) (map[string]string, bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(map[string]string), true
}

func (t *ttlReflectionCache) Store(key string, val map[string]string) {
	t.c.Set(key, val, cache.DefaultExpiration)
}

func newReflectionCache(backend qmconf.CacheBackend) reflectionCache {
	if backend == qmconf.CacheBackendTTL {
		return &ttlReflectionCache{c: cache.New(reflectionCacheExpiry, reflectionCacheSweep)}
	}
	c, err := lru.New[string, map[string]string](reflectionCacheSize)
	if err != nil {
		// Only reachable if reflectionCacheSize <= 0, which it never is.
		panic("qmctx: invalid reflection cache size")
	}
	return &lruReflectionCache{c: c}
}

// aliasSuffixAlphabet/aliasSuffixLen bound the nanoid suffix appended to
// a colliding alias/CTE candidate: lowercase+digits keep it a legal SQL
// identifier fragment, and 6 characters is short enough to stay readable
// in generated SQL while keeping collisions practically impossible for
// one compilation's alias count.
const (
	aliasSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	aliasSuffixLen      = 6
)

// ColumnReflector is the slice of the execution driver the compiler
// needs: given a compiled source, report its column names/types.
type ColumnReflector interface {
	ReflectColumns(sourceSQL string) (map[string]string, error)
}

// ExecutionErrorHandler inspects a runtime error from the warehouse and
// optionally returns a clearer, user-facing explanation. Handlers are
// tried newest-first so a more specific handler registered later can
// shadow a general one.
type ExecutionErrorHandler func(err error) (string, bool)

// QueryContext is exclusively owned by one compilation: every field is
// mutated freely without synchronization because a single compilation
// never runs concurrently with itself.
type QueryContext struct {
	Dialect  qmdialect.Dialect
	Settings qmconf.Settings
	Engine   ColumnReflector

	// RefResolver looks up the compiled SQL text for a `{{ ref }}`
	// placeholder found inside raw SQL. Left nil for a compilation with
	// no enclosing model (a standalone expression/source test); the
	// facade that builds a full Model wires one in so raw SQL text can
	// reference the model's own attributes and measures by name.
	RefResolver func(ref string) (string, bool)

	Warnings []string

	usedRefNames       map[string]bool
	reservedSubstrings []string

	checkpoints map[uint64]aliasCheckpoint

	preprocessed map[uintptr]bool

	errorHandlers []ExecutionErrorHandler

	cteSeq int
	tag    string

	reflectionCache reflectionCache
}

type aliasCheckpoint struct {
	Ref     string
	Columns map[string]string
}

// New returns a fresh QueryContext for one compilation.
func New(dialect qmdialect.Dialect, settings qmconf.Settings, engine ColumnReflector) *QueryContext {
	return &QueryContext{
		Dialect:         dialect,
		Settings:        settings,
		Engine:          engine,
		usedRefNames:    map[string]bool{},
		checkpoints:     map[uint64]aliasCheckpoint{},
		preprocessed:    map[uintptr]bool{},
		reflectionCache: newReflectionCache(settings.ReflectionCache),
	}
}

// AddReservedName marks name (or, with matchAnySubstring, any alias
// containing name as a substring) off-limits for NextAliasName/
// NextCTEName — used when raw user SQL text is spliced into the query
// and must not collide with a generated alias.
func (c *QueryContext) AddReservedName(name string, matchAnySubstring bool) {
	if matchAnySubstring {
		c.reservedSubstrings = append(c.reservedSubstrings, name)
		return
	}
	if c.usedRefNames == nil {
		c.usedRefNames = map[string]bool{}
	}
	c.usedRefNames[name] = true
}

func (c *QueryContext) conflicts(name string) bool {
	if c.usedRefNames[name] {
		return true
	}
	for _, sub := range c.reservedSubstrings {
		if strings.Contains(name, sub) {
			return true
		}
	}
	return false
}

// NextAliasName returns a unique alias derived from base. On the first
// collision it appends a short nanoid suffix rather than a counter, so
// aliases regenerated across independently-compiled sub-chains (a
// JoinOne's nested model, a Subquery) don't collide with each other
// just because they both started their counter at 1. A reserved
// substring found inside base is cut out of it first, since no suffix
// could remove it.
func (c *QueryContext) NextAliasName(base string) string {
	for _, sub := range c.reservedSubstrings {
		if sub != "" {
			base = strings.ReplaceAll(base, sub, "")
		}
	}
	candidate := base
	for c.conflicts(candidate) {
		suffix, err := gonanoid.Generate(aliasSuffixAlphabet, aliasSuffixLen)
		if err != nil {
			// gonanoid.Generate only fails on a malformed alphabet/length,
			// neither of which aliasSuffixAlphabet/aliasSuffixLen are.
			panic("qmctx: nanoid generation failed: " + err.Error())
		}
		candidate = fmt.Sprintf("%s_%s", base, suffix)
	}
	c.usedRefNames[candidate] = true
	return candidate
}

// NextCTEName returns a unique CTE name, prefixed by any tag installed
// via ForkCTENames.
func (c *QueryContext) NextCTEName() string {
	c.cteSeq++
	base := fmt.Sprintf("%scte_%d", c.tag, c.cteSeq)
	return c.NextAliasName(base)
}

// ForkCTENames returns a child context sharing all state with c except
// that generated CTE names are prefixed with tag, so an independently
// compiled sub-chain (a JoinOne's nested model, a Subquery) reads
// clearly in the final SQL without name collisions.
func (c *QueryContext) ForkCTENames(tag string) *QueryContext {
	child := *c
	child.tag = c.tag + tag + "_"
	return &child
}

// AddAliasCheckpoint memoizes the compiled reference for source,
// identified by its stable content hash, so a later occurrence of the
// same source (a self-join, a repeated subquery) reuses the CTE instead
// of recompiling it.
func (c *QueryContext) AddAliasCheckpoint(sourceKey uint64, ref string, columns map[string]string) {
	c.checkpoints[sourceKey] = aliasCheckpoint{Ref: ref, Columns: columns}
}

// GetAliasCheckpoint looks up a previously compiled source by its
// stable key.
func (c *QueryContext) GetAliasCheckpoint(sourceKey uint64) (ref string, columns map[string]string, ok bool) {
	cp, ok := c.checkpoints[sourceKey]
	return cp.Ref, cp.Columns, ok
}

// StableHash computes the deterministic content hash used as a
// checkpoint key, over the canonical byte encoding of a source or
// expression's wire form.
func StableHash(canonicalBytes []byte) uint64 {
	return murmur3.Sum64(canonicalBytes)
}

// MarkPreprocessed/WasPreprocessed guard the preprocessor against
// re-walking a subtree it has already folded, keyed by the node's
// address so identical-by-value-but-distinct nodes are tracked
// separately.
func (c *QueryContext) MarkPreprocessed(nodeAddr uintptr) {
	c.preprocessed[nodeAddr] = true
}

func (c *QueryContext) WasPreprocessed(nodeAddr uintptr) bool {
	return c.preprocessed[nodeAddr]
}

// AddWarning appends a non-fatal diagnostic surfaced alongside the
// compiled result.
func (c *QueryContext) AddWarning(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// RegisterExecutionErrorHandler adds h to the front of the handler
// list, so the most recently registered handler is consulted first.
func (c *QueryContext) RegisterExecutionErrorHandler(h ExecutionErrorHandler) {
	c.errorHandlers = append([]ExecutionErrorHandler{h}, c.errorHandlers...)
}

// ExplainExecutionError tries every registered handler, newest first,
// returning the first clarified message found.
func (c *QueryContext) ExplainExecutionError(err error) (string, bool) {
	for _, h := range c.errorHandlers {
		if msg, ok := h(err); ok {
			return msg, true
		}
	}
	return "", false
}

// ReflectColumns reflects (and memoizes for this compilation only) the
// column set of a compiled source.
func (c *QueryContext) ReflectColumns(sourceSQL string) (map[string]string, error) {
	if cached, ok := c.reflectionCache.Load(sourceSQL); ok {
		return cached, nil
	}
	if c.Engine == nil {
		return nil, fmt.Errorf("qmctx: no execution driver configured, cannot reflect columns")
	}
	cols, err := c.Engine.ReflectColumns(sourceSQL)
	if err != nil {
		return nil, err
	}
	c.reflectionCache.Store(sourceSQL, cols)
	return cols, nil
}
