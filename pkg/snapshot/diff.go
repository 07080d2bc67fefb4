package snapshot

import (
	"fmt"
	"sort"
)

// Divergence is one difference between two snapshots of the same device.
type Divergence struct {
	// Path is the diverging item path.
	Path string

	// Before is the value in the earlier snapshot; zero if the item
	// appeared only after.
	Before Item

	// After is the value in the later snapshot; zero if the item
	// disappeared.
	After Item

	// Missing indicates the item is absent from the later snapshot.
	Missing bool

	// Added indicates the item is absent from the earlier snapshot.
	Added bool
}

// String renders the divergence for diagnostics.
func (d Divergence) String() string {
	switch {
	case d.Missing:
		return fmt.Sprintf("%s: %q -> <missing>", d.Path, d.Before.Value)
	case d.Added:
		return fmt.Sprintf("%s: <absent> -> %q", d.Path, d.After.Value)
	default:
		return fmt.Sprintf("%s: %q -> %q", d.Path, d.Before.Value, d.After.Value)
	}
}

// Compare returns the divergences between two snapshots, ordered by item
// path. An empty result means the configurations are identical.
func Compare(before, after Snapshot) []Divergence {
	var divs []Divergence

	for path, b := range before.Items {
		a, ok := after.Items[path]
		switch {
		case !ok:
			divs = append(divs, Divergence{Path: path, Before: b, Missing: true})
		case a.Value != b.Value:
			divs = append(divs, Divergence{Path: path, Before: b, After: a})
		}
	}
	for path, a := range after.Items {
		if _, ok := before.Items[path]; !ok {
			divs = append(divs, Divergence{Path: path, After: a, Added: true})
		}
	}

	sort.Slice(divs, func(i, j int) bool { return divs[i].Path < divs[j].Path })
	return divs
}
