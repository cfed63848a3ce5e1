package patch

import (
	"path/filepath"
	"sort"

	"impactmap/internal/index"
	"impactmap/internal/logging"
)

// ChangedMethod is the seed tuple patch ingest hands to the tracer
type ChangedMethod struct {
	File          string
	QualifiedName string
	Kind          ChangeKind
}

// ChangedMethods intersects each change's new-side line ranges with the
// indexed methods of the changed file. Deleted files no longer exist in the
// post-image workspace, so they contribute a warning instead of seeds.
func ChangedMethods(changes []FileChange, ci *index.CodeIndex, workspace string, logger *logging.Logger) ([]ChangedMethod, []string) {
	var warnings []string
	seen := make(map[string]bool)
	var out []ChangedMethod

	for _, fc := range changes {
		absPath := filepath.Join(workspace, filepath.FromSlash(fc.Path))

		if fc.Kind == Deleted {
			warnings = append(warnings, "deleted file "+fc.Path+" has no post-image methods to seed")
			continue
		}

		methods := ci.MethodsByFile(absPath)
		if len(methods) == 0 {
			warnings = append(warnings, "no indexed methods for changed file "+fc.Path)
			continue
		}

		ranges := fc.NewSideRanges()
		for _, m := range methods {
			if !overlapsAny(m.LineRange.Start, m.LineRange.End, ranges) {
				continue
			}

			kind := Modified
			if fc.Kind == Added {
				kind = Added
			}

			if seen[m.QualifiedName] {
				continue
			}
			seen[m.QualifiedName] = true
			out = append(out, ChangedMethod{
				File:          fc.Path,
				QualifiedName: m.QualifiedName,
				Kind:          kind,
			})
			if logger != nil {
				logger.Debug("Changed method", map[string]interface{}{
					"method": m.QualifiedName,
					"kind":   string(kind),
					"file":   fc.Path,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out, warnings
}

// Seeds extracts the qualified names from changed methods
func Seeds(methods []ChangedMethod) []string {
	seeds := make([]string, 0, len(methods))
	for _, m := range methods {
		seeds = append(seeds, m.QualifiedName)
	}
	return seeds
}

func overlapsAny(start, end int, ranges [][2]int) bool {
	for _, r := range ranges {
		if start <= r[1] && end >= r[0] {
			return true
		}
	}
	return false
}
