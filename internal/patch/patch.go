// Package patch ingests unified-diff patches and derives the changed-method
// seed set by intersecting hunk line ranges with indexed method line ranges.
package patch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"impactmap/internal/errors"
	"impactmap/internal/logging"
)

// ChangeKind classifies a change at file or method granularity
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
)

// Hunk is one change block with new-side and old-side line accounting
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Added    []int // new-side line numbers of added lines
	Removed  []int // old-side line numbers of removed lines
}

// FileChange is one changed file within a patch. Path is workspace-relative,
// already carrying the project prefix derived from the patch file stem.
type FileChange struct {
	Path  string
	Kind  ChangeKind
	Hunks []Hunk
}

// Ingestor parses patch files and directories
type Ingestor struct {
	logger *logging.Logger
}

// NewIngestor creates a patch ingestor
func NewIngestor(logger *logging.Logger) *Ingestor {
	return &Ingestor{logger: logger}
}

// ParsePath accepts either a directory of .patch files or a single patch
// file. For directories, each file's stem becomes the project prefix of its
// paths. A patch that fails to parse, or yields no file changes, is reported
// in the returned warnings; the remaining patches continue.
func (in *Ingestor) ParsePath(path string) ([]FileChange, []string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, errors.New(errors.IOError, "reading diff path "+path, err)
	}

	if !info.IsDir() {
		changes, err := in.parsePatchFile(path, "")
		if err != nil {
			return nil, nil, err
		}
		return changes, nil, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, errors.New(errors.IOError, "reading patch directory "+path, err)
	}

	var patchFiles []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".patch") {
			continue
		}
		patchFiles = append(patchFiles, filepath.Join(path, entry.Name()))
	}
	sort.Strings(patchFiles)

	var all []FileChange
	var warnings []string
	if len(patchFiles) == 0 {
		warnings = append(warnings, "no .patch files found in "+path)
		return nil, warnings, nil
	}

	for _, pf := range patchFiles {
		prefix := strings.TrimSuffix(filepath.Base(pf), ".patch")
		changes, err := in.parsePatchFile(pf, prefix)
		if err != nil {
			warnings = append(warnings, "failed to parse patch "+pf+": "+err.Error())
			continue
		}
		if len(changes) == 0 {
			warnings = append(warnings, "patch "+pf+" yielded no file changes")
			continue
		}
		all = append(all, changes...)
	}

	return all, warnings, nil
}

func (in *Ingestor) parsePatchFile(path, projectPrefix string) ([]FileChange, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.IOError, "reading patch file "+path, err)
	}
	changes, err := Parse(content, projectPrefix)
	if err != nil {
		return nil, errors.New(errors.PatchInvalid, "parsing patch file "+path, err)
	}
	if in.logger != nil {
		in.logger.Debug("Parsed patch file", map[string]interface{}{
			"file":    path,
			"changes": len(changes),
			"project": projectPrefix,
		})
	}
	return changes, nil
}

// Parse parses raw patch content. The project prefix, when non-empty, is
// prepended to every file path. The git format-patch signature footer is
// stripped before parsing.
func Parse(content []byte, projectPrefix string) ([]FileChange, error) {
	trimmed := StripSignatureFooter(content)

	// format-patch output carries a mail header before the first diff
	if idx := strings.Index(string(trimmed), "diff --git"); idx > 0 {
		trimmed = trimmed[idx:]
	}

	fileDiffs, err := godiff.ParseMultiFileDiff(trimmed)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for _, fd := range fileDiffs {
		if len(fd.Hunks) == 0 {
			// binary or metadata-only entries carry no line changes
			continue
		}
		fc := convertFileDiff(fd)
		if projectPrefix != "" {
			fc.Path = projectPrefix + "/" + fc.Path
		}
		changes = append(changes, fc)
	}

	return changes, nil
}

// StripSignatureFooter removes the trailing "-- \n<version>\n" block that
// git format-patch appends; diff parsers may otherwise reject the patch.
func StripSignatureFooter(content []byte) []byte {
	s := string(content)
	idx := strings.LastIndex(s, "\n-- \n")
	if idx < 0 {
		return content
	}
	tail := s[idx+len("\n-- \n"):]
	// the footer is a short version string, not patch content
	if strings.Count(strings.TrimRight(tail, "\n"), "\n") <= 1 && !strings.Contains(tail, "@@") {
		return []byte(s[:idx+1])
	}
	return content
}

func convertFileDiff(fd *godiff.FileDiff) FileChange {
	origName := cleanPath(fd.OrigName)
	newName := cleanPath(fd.NewName)

	kind := Modified
	path := newName
	switch {
	case origName == "":
		kind = Added
	case newName == "":
		kind = Deleted
		path = origName
	}

	fc := FileChange{Path: path, Kind: kind}
	for _, hunk := range fd.Hunks {
		fc.Hunks = append(fc.Hunks, convertHunk(hunk))
	}
	return fc
}

func convertHunk(hunk *godiff.Hunk) Hunk {
	h := Hunk{
		OldStart: int(hunk.OrigStartLine),
		OldLines: int(hunk.OrigLines),
		NewStart: int(hunk.NewStartLine),
		NewLines: int(hunk.NewLines),
	}

	oldLine := int(hunk.OrigStartLine)
	newLine := int(hunk.NewStartLine)

	for _, line := range strings.Split(string(hunk.Body), "\n") {
		if len(line) == 0 {
			oldLine++
			newLine++
			continue
		}
		switch line[0] {
		case '+':
			h.Added = append(h.Added, newLine)
			newLine++
		case '-':
			h.Removed = append(h.Removed, oldLine)
			oldLine++
		case ' ':
			oldLine++
			newLine++
		case '\\':
			// "\ No newline at end of file"
		}
	}

	return h
}

// cleanPath removes the a/ or b/ prefix and maps /dev/null to empty
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// NewSideRanges returns the new-side line ranges touched by the change
func (fc *FileChange) NewSideRanges() [][2]int {
	var ranges [][2]int
	for _, h := range fc.Hunks {
		end := h.NewStart + h.NewLines - 1
		if end < h.NewStart {
			end = h.NewStart
		}
		ranges = append(ranges, [2]int{h.NewStart, end})
	}
	return ranges
}
