package dataset

import (
	"net/netip"
	"slices"

	"geoipd/internal/model"
)

// rangeIndex is an immutable, sorted table of ranges for one address
// family. Safe for unsynchronized concurrent reads after construction.
type rangeIndex struct {
	records []model.RangeRecord
}

// newRangeIndex sorts the records ascending by start. Duplicated starts are
// ordered narrower range first; the publisher guarantees non-overlap, so
// ties only matter if that guarantee is ever violated.
func newRangeIndex(records []model.RangeRecord) *rangeIndex {
	slices.SortStableFunc(records, func(a, b model.RangeRecord) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	return &rangeIndex{records: records}
}

// Find returns the record whose span contains addr. The search locates the
// rightmost record with start not exceeding addr and then confirms addr is
// within its end; an address in a gap between ranges matches nothing.
func (ix *rangeIndex) Find(addr netip.Addr) (*model.RangeRecord, bool) {
	// The comparator never reports equality, so BinarySearchFunc lands on
	// the first record with start > addr.
	i, _ := slices.BinarySearchFunc(ix.records, addr, func(r model.RangeRecord, a netip.Addr) int {
		if r.Start.Compare(a) <= 0 {
			return -1
		}
		return 1
	})

	if i == 0 {
		return nil, false
	}

	r := &ix.records[i-1]
	if addr.Compare(r.End) > 0 {
		return nil, false
	}

	return r, true
}

func (ix *rangeIndex) Len() int {
	return len(ix.records)
}
