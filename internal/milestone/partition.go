// partition.go splits a milestone's file targets into disjoint subsets,
// one per worker.
package milestone

import "github.com/gantry-dev/gantry/internal/session"

type target struct {
	path   string
	action string
}

const (
	actionCreate = "create"
	actionModify = "modify"
	actionDelete = "delete"
)

// flatten orders the targets create-modify-delete, dropping duplicate
// paths so no path can land in two subsets.
func flatten(ft session.FileTargets) []target {
	seen := make(map[string]bool)
	var out []target
	add := func(paths []string, action string) {
		for _, p := range paths {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, target{path: p, action: action})
		}
	}
	add(ft.Create, actionCreate)
	add(ft.Modify, actionModify)
	add(ft.Delete, actionDelete)
	return out
}

// partitionTargets splits the targets into at most workerCount contiguous
// subsets of near-equal size. Fewer targets than workers means fewer
// subsets; a milestone with no targets still gets one worker, driven by
// its description alone.
func partitionTargets(ft session.FileTargets, workerCount int) []session.FileTargets {
	items := flatten(ft)
	if len(items) == 0 {
		return []session.FileTargets{{}}
	}
	n := workerCount
	if n > len(items) {
		n = len(items)
	}

	parts := make([]session.FileTargets, 0, n)
	base := len(items) / n
	rem := len(items) % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		var part session.FileTargets
		for _, t := range items[start : start+size] {
			switch t.action {
			case actionCreate:
				part.Create = append(part.Create, t.path)
			case actionModify:
				part.Modify = append(part.Modify, t.path)
			case actionDelete:
				part.Delete = append(part.Delete, t.path)
			}
		}
		parts = append(parts, part)
		start += size
	}
	return parts
}
