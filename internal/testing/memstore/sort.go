package memstore

import (
	"cmp"
	"maps"
	"slices"

	"github.com/odyssey-erp/stockledger/internal/batch"
)

func sortedValues[V any](m map[int64]V) []V {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func sortByStore(bs []batch.Batch) {
	slices.SortStableFunc(bs, func(a, b batch.Batch) int {
		return cmp.Compare(a.StoreID, b.StoreID)
	})
}
