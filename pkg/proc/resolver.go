package proc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/derekparker/trie"
	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/logflags"
)

// Symbol is a name resolved in a scope, together with its fully resolved
// layout.
type Symbol struct {
	Name    string
	Class   SymbolClass
	Storage Storage
	Layout  *layout.ValueLayout

	// Addr is only meaningful if HasAddr is set.
	Addr     uint64
	HasAddr  bool
	Register string
	Const    uint64
}

type symbolKey struct {
	gen           uint64
	thread, frame int
	name          string
}

// SymbolResolver maps names to symbols and type ids to layouts on top of a
// SymbolProvider.
//
// Symbol lookups are cached per (generation, thread, frame): locations of
// frame relative variables change when the process runs. Layouts come
// straight from the debug information and are cached for the lifetime of
// the resolver.
type SymbolResolver struct {
	provider SymbolProvider
	symbols  *lru.Cache
	layouts  *lruCache[TypeID, *layout.ValueLayout]

	mu  sync.Mutex
	gen uint64

	log logflags.Logger
}

// NewSymbolResolver returns a resolver caching up to symbolCacheSize
// lookups and layoutCacheSize layouts.
func NewSymbolResolver(p SymbolProvider, symbolCacheSize, layoutCacheSize int) (*SymbolResolver, error) {
	symbols, err := lru.New(symbolCacheSize)
	if err != nil {
		return nil, err
	}
	return &SymbolResolver{
		provider: p,
		symbols:  symbols,
		layouts:  newLRUCache[TypeID, *layout.ValueLayout](layoutCacheSize),
		log:      logflags.SymbolsLogger(),
	}, nil
}

// Invalidate drops every cached symbol. Cached layouts are kept.
func (r *SymbolResolver) Invalidate() {
	r.symbols.Purge()
}

func (r *SymbolResolver) observe(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen > r.gen {
		r.log.Debugf("generation %d -> %d, dropping %d cached symbols", r.gen, gen, r.symbols.Len())
		r.gen = gen
		r.symbols.Purge()
	}
}

// Lookup resolves name in scope. Locals shadow parameters, which shadow
// file statics, which shadow globals.
func (r *SymbolResolver) Lookup(name string, scope Scope) (*Symbol, error) {
	r.observe(scope.Generation)
	key := symbolKey{gen: scope.Generation, thread: scope.Thread, frame: scope.Frame, name: name}
	if v, ok := r.symbols.Get(key); ok {
		return v.(*Symbol), nil
	}

	for _, class := range resolutionOrder {
		sc := scope
		sc.Class = class
		info, err := r.provider.ResolveName(name, sc)
		if err != nil {
			return nil, asEvalError(err, ProcessError)
		}
		if info == nil {
			continue
		}
		l, err := r.LayoutOf(info.Type)
		if err != nil {
			return nil, err
		}
		sym := &Symbol{
			Name:     name,
			Class:    class,
			Storage:  info.Storage,
			Layout:   l,
			Addr:     info.Addr,
			HasAddr:  info.HasAddr,
			Register: info.Register,
			Const:    info.Const,
		}
		r.log.Debugf("%s resolved as %s %s (%s) in thread %d frame %d", name, class, l, info.Storage, scope.Thread, scope.Frame)
		r.symbols.Add(key, sym)
		return sym, nil
	}
	return nil, newError(NotFound, "could not find symbol value for %s", name)
}

// TypeOf returns the layout of sym.
func (r *SymbolResolver) TypeOf(sym *Symbol) *layout.ValueLayout {
	if sym == nil || sym.Layout == nil {
		return layout.Unknown
	}
	return sym.Layout
}

// LayoutOf returns the validated layout of the type id. A provider that
// does not know the type yields the Unknown layout; a layout that is not
// internally consistent is reported as an incomplete type.
func (r *SymbolResolver) LayoutOf(id TypeID) (*layout.ValueLayout, error) {
	if l, ok := r.layouts.Get(id); ok {
		return l, nil
	}
	l, err := r.provider.LayoutOf(id)
	if err != nil {
		return nil, asEvalError(err, ProcessError)
	}
	if l == nil {
		return layout.Unknown, nil
	}
	if err := l.Validate(); err != nil {
		return nil, wrapError(IncompleteType, err, "malformed layout for type %s", id)
	}
	r.layouts.Add(id, l)
	return l, nil
}

// Complete returns the names visible in scope that start with prefix,
// sorted. It returns nil if the provider can not enumerate names.
func (r *SymbolResolver) Complete(prefix string, scope Scope) []string {
	lister, ok := r.provider.(SymbolLister)
	if !ok {
		return nil
	}
	t := trie.New()
	for _, class := range resolutionOrder {
		sc := scope
		sc.Class = class
		for _, name := range lister.Names(sc) {
			if _, found := t.Find(name); !found {
				t.Add(name, class)
			}
		}
	}
	var names []string
	if prefix == "" {
		names = t.Keys()
	} else {
		names = t.PrefixSearch(prefix)
	}
	sort.Strings(names)
	return names
}

// Symbolize describes addr as symbol+offset, or returns the empty string
// if no global symbol contains it.
func (r *SymbolResolver) Symbolize(addr uint64) string {
	al, ok := r.provider.(AddressLookup)
	if !ok {
		return ""
	}
	sym, off, ok := al.SymbolAt(addr)
	if !ok {
		return ""
	}
	if off == 0 {
		return sym.Name
	}
	return fmt.Sprintf("%s+%#x", sym.Name, off)
}
