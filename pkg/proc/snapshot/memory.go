package snapshot

import (
	"fmt"
	"sort"

	"github.com/go-delve/dlveval/pkg/proc"
)

type region struct {
	addr     uint64
	data     []byte
	writable bool
}

// end returns the address one past the region, 0 for a region that ends
// at the top of the address space.
func (r region) end() uint64 {
	return r.addr + uint64(len(r.data))
}

func (r region) last() uint64 {
	return r.end() - 1
}

// A splicedMemory represents an address space formed from multiple
// regions, each of which may override previously added regions. Regions
// are kept sorted by address and never overlap.
type splicedMemory struct {
	regions []region
}

// add adds a new region, which may override existing regions.
func (m *splicedMemory) add(n region) {
	if len(n.data) == 0 {
		return
	}
	end := n.last()
	out := make([]region, 0, len(m.regions)+2)
	inserted := false
	insert := func() {
		if !inserted {
			out = append(out, n)
			inserted = true
		}
	}
	// Walk through the list of regions, fixing up any that overlap and
	// inserting the new one.
	for _, r := range m.regions {
		rend := r.last()
		switch {
		case rend < n.addr:
			// r is completely before the new region.
			out = append(out, r)
		case end < r.addr:
			// r is completely after the new region.
			insert()
			out = append(out, r)
		case n.addr <= r.addr && rend <= end:
			// r is completely overwritten by the new region. Drop.
		case r.addr < n.addr && rend <= end:
			// The new region overwrites the end of r.
			out = append(out, region{r.addr, r.data[:n.addr-r.addr], r.writable})
		case n.addr <= r.addr && end < rend:
			// The new region overwrites the beginning of r.
			insert()
			out = append(out, region{end + 1, r.data[end+1-r.addr:], r.writable})
		default:
			// The new region punches a hole in r. Split it in two and put
			// the new region in the middle.
			out = append(out, region{r.addr, r.data[:n.addr-r.addr], r.writable})
			insert()
			out = append(out, region{end + 1, r.data[end+1-r.addr:], r.writable})
		}
	}
	insert()
	m.regions = out
}

// find returns the index of the region containing addr.
func (m *splicedMemory) find(addr uint64) (int, bool) {
	i := sort.Search(len(m.regions), func(i int) bool {
		return m.regions[i].last() >= addr
	})
	if i < len(m.regions) && m.regions[i].addr <= addr {
		return i, true
	}
	return i, false
}

func (m *splicedMemory) read(buf []byte, addr uint64) (n int, err error) {
	for n < len(buf) {
		a := addr + uint64(n)
		if a < addr {
			return n, fmt.Errorf("read at %#x wraps around the address space: %w", addr, proc.Unreadable)
		}
		i, ok := m.find(a)
		if !ok {
			return n, fmt.Errorf("hit unmapped area at %#x after %d bytes: %w", a, n, proc.Unreadable)
		}
		r := m.regions[i]
		n += copy(buf[n:], r.data[a-r.addr:])
	}
	return n, nil
}

func (m *splicedMemory) write(addr uint64, data []byte) (int, error) {
	// Check the whole range first, a failing write changes nothing.
	for off := 0; off < len(data); {
		a := addr + uint64(off)
		if a < addr {
			return 0, fmt.Errorf("write at %#x wraps around the address space: %w", addr, proc.Unreadable)
		}
		i, ok := m.find(a)
		if !ok {
			return 0, fmt.Errorf("hit unmapped area at %#x: %w", a, proc.Unreadable)
		}
		r := m.regions[i]
		if !r.writable {
			return 0, fmt.Errorf("region %#x-%#x is not writable: %w", r.addr, r.last(), proc.ReadOnly)
		}
		off += int(r.end() - a)
	}
	n := 0
	for n < len(data) {
		a := addr + uint64(n)
		i, _ := m.find(a)
		r := m.regions[i]
		n += copy(r.data[a-r.addr:], data[n:])
	}
	return n, nil
}
