package proc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/dlveval/pkg/layout"
	"github.com/go-delve/dlveval/pkg/proc"
	"github.com/go-delve/dlveval/pkg/proc/snapshot"
	protest "github.com/go-delve/dlveval/pkg/proc/test"
)

func TestMemoryViewCache(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	mem, err := proc.NewMemoryView(s, 16, 8)
	require.NoError(t, err)

	data, err := mem.Read(0, 0x1010, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 0, 0, 0, 20, 0, 0, 0}, data)
	stats := mem.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.BackendReads)
	assert.Equal(t, 1, stats.CachedPages)

	// straddles the page at 0x1010 and the one at 0x1020
	data, err = mem.Read(0, 0x101c, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{40, 0, 0, 0, 1, 0, 0, 0}, data)
	stats = mem.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.BackendReads)
	assert.Equal(t, uint64(2), s.ReadCount())

	_, err = mem.Read(0, 0x1010, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.ReadCount())

	data, err = mem.Read(0, 0x1010, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestMemoryViewGeneration(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	mem, err := proc.NewMemoryView(s, 16, 8)
	require.NoError(t, err)

	_, err = mem.Read(0, 0x1000, 8)
	require.NoError(t, err)
	require.NoError(t, s.Resume())

	_, err = mem.Read(0, 0x1000, 8)
	assert.True(t, errors.Is(err, proc.StaleContext))
	assert.True(t, errors.Is(mem.Write(0, 0x1000, []byte{1}), proc.StaleContext))
	assert.Equal(t, 0, mem.Stats().CachedPages, "observing a new generation purges the cache")

	_, err = mem.Read(1, 0x1000, 8)
	require.NoError(t, err)
	_, err = mem.Read(2, 0x1000, 8)
	assert.True(t, errors.Is(err, proc.StaleContext))
}

func TestMemoryViewWrite(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	mem, err := proc.NewMemoryView(s, 16, 8)
	require.NoError(t, err)

	_, err = mem.Read(0, 0x1000, 8)
	require.NoError(t, err)
	require.NoError(t, mem.Write(0, 0x1004, []byte{8, 0, 0, 0}))
	data, err := mem.Read(0, 0x1000, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 8, 0, 0, 0}, data)

	err = mem.Write(0, 0x2000, []byte{1})
	assert.Equal(t, proc.ReadOnly, proc.KindOf(err))
	err = mem.Write(0, 0x10, []byte{1})
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
	err = mem.Write(0, ^uint64(0), []byte{1, 2})
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
}

func TestMemoryViewUnmapped(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	mem, err := proc.NewMemoryView(s, 256, 8)
	require.NoError(t, err)

	// .data is smaller than a page: served without caching
	data, err := mem.Read(0, 0x1004, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 0, 0, 0}, data)
	assert.Equal(t, uint64(1), mem.Stats().UncachedReads)
	assert.Equal(t, 0, mem.Stats().CachedPages)

	_, err = mem.Read(0, 0, 8)
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
	_, err = mem.Read(0, 0x1078, 16)
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
	_, err = mem.Read(0, ^uint64(0)-2, 8)
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))

	_, err = proc.NewMemoryView(s, 0, 8)
	assert.Error(t, err)
}

func TestMemoryViewTopOfAddressSpace(t *testing.T) {
	s := snapshot.New(nil)
	top := ^uint64(0) - 31
	require.NoError(t, s.Map(top, make([]byte, 32), true))
	mem, err := proc.NewMemoryView(s, 16, 8)
	require.NoError(t, err)

	// the last page is cached like any other
	data, err := mem.Read(0, ^uint64(0)-3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
	assert.Equal(t, 1, mem.Stats().CachedPages)

	require.NoError(t, mem.Write(0, ^uint64(0)-1, []byte{0xaa, 0xbb}))
	assert.Equal(t, 0, mem.Stats().CachedPages)
	data, err = mem.Read(0, ^uint64(0)-1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, data)

	data, err = mem.Read(0, top, 32)
	require.NoError(t, err)
	assert.Len(t, data, 32)
	assert.Equal(t, []byte{0xaa, 0xbb}, data[30:])

	_, err = mem.Read(0, ^uint64(0), 2)
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
	assert.Contains(t, err.Error(), "wraps around")
	err = mem.Write(0, ^uint64(0), []byte{1, 2})
	assert.Equal(t, proc.Unreadable, proc.KindOf(err))
	assert.Contains(t, err.Error(), "wraps around")
}

func TestResolverLookup(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	r, err := proc.NewSymbolResolver(s, 16, 16)
	require.NoError(t, err)

	sym, err := r.Lookup("x", proc.Scope{Thread: 1})
	require.NoError(t, err)
	assert.Equal(t, proc.ClassLocal, sym.Class)
	assert.Equal(t, uint64(0x7ff00010), sym.Addr)
	assert.Equal(t, "int", r.TypeOf(sym).String())

	again, err := r.Lookup("x", proc.Scope{Thread: 1})
	require.NoError(t, err)
	assert.Same(t, sym, again)

	sym, err = r.Lookup("x", proc.Scope{Thread: 1, Frame: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7ff00040), sym.Addr)

	sym, err = r.Lookup("g_shadow", proc.Scope{Thread: 1})
	require.NoError(t, err)
	assert.Equal(t, proc.ClassFileStatic, sym.Class)
	sym, err = r.Lookup("g_shadow", proc.Scope{Thread: 2})
	require.NoError(t, err)
	assert.Equal(t, proc.ClassGlobal, sym.Class)
	assert.Equal(t, uint64(0x1078), sym.Addr)

	sym, err = r.Lookup("g_mystery", proc.Scope{Thread: 1})
	require.NoError(t, err)
	assert.True(t, r.TypeOf(sym).IsUnknown())

	_, err = r.Lookup("nosuch", proc.Scope{Thread: 1})
	assert.Equal(t, proc.NotFound, proc.KindOf(err))
	assert.EqualError(t, err, "could not find symbol value for nosuch")
	_, err = r.Lookup("x", proc.Scope{Thread: 1, Frame: 7})
	assert.Equal(t, proc.ProcessError, proc.KindOf(err))
}

func TestResolverGenerations(t *testing.T) {
	s := protest.LoadSnapshot(t, "basic.yml")
	r, err := proc.NewSymbolResolver(s, 16, 16)
	require.NoError(t, err)

	sym0, err := r.Lookup("n", proc.Scope{Thread: 1, Generation: 0})
	require.NoError(t, err)
	sym1, err := r.Lookup("n", proc.Scope{Thread: 1, Generation: 1})
	require.NoError(t, err)
	assert.NotSame(t, sym0, sym1)
	assert.Equal(t, sym0.Addr, sym1.Addr)

	r.Invalidate()
	sym2, err := r.Lookup("n", proc.Scope{Thread: 1, Generation: 1})
	require.NoError(t, err)
	assert.NotSame(t, sym1, sym2)
}

func TestResolverLayouts(t *testing.T) {
	s := snapshot.New(nil)
	s.AddType("bad", &layout.ValueLayout{Name: "bad", Kind: layout.Pointer, Size: 8})
	s.AddType("small", layout.StructOf("struct small", 2, 1, layout.Field{Name: "a", Offset: 0, Layout: layout.Int32}))
	s.AddType("ok", layout.StructOf("struct ok", 4, 4, layout.Field{Name: "a", Offset: 0, Layout: layout.Int32}))
	r, err := proc.NewSymbolResolver(s, 16, 16)
	require.NoError(t, err)

	_, err = r.LayoutOf("bad")
	assert.Equal(t, proc.IncompleteType, proc.KindOf(err))
	_, err = r.LayoutOf("small")
	assert.Equal(t, proc.IncompleteType, proc.KindOf(err))

	l, err := r.LayoutOf("ok")
	require.NoError(t, err)
	assert.Equal(t, "struct ok", l.String())
	l2, err := r.LayoutOf("ok")
	require.NoError(t, err)
	assert.Same(t, l, l2)

	l, err = r.LayoutOf("nope")
	require.NoError(t, err)
	assert.True(t, l.IsUnknown())

	assert.Empty(t, r.Complete("", proc.Scope{}))
	assert.Equal(t, "", r.Symbolize(0x1000))
}
