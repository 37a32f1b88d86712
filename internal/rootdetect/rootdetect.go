// Package rootdetect implements root-file selection (C9): prefer an
// explicit Project.RootName if it qualifies, otherwise scan text files in a
// stable order for an unescaped \begin{document} marker. Follows the same
// "explicit hint, then .tex files first, then everything else" scan order
// as findMainFile in octree-compile's compiler.go.
package rootdetect

import (
	"sort"
	"strings"

	"github.com/tachyontex/tachyon-tex/internal/project"
)

const documentBeginMarker = `\begin{document}`

// Resolve picks the root filename of p, or returns project.ErrNoRootFound.
func Resolve(p *project.Project) (string, error) {
	if p.RootName != "" {
		if fc, ok := p.Files[p.RootName]; ok && fc.Kind == project.KindText && hasUnescapedMarker(fc.Bytes) {
			return p.RootName, nil
		}
	}

	for _, name := range scanOrder(p) {
		fc := p.Files[name]
		if fc.Kind != project.KindText {
			continue
		}
		if hasUnescapedMarker(fc.Bytes) {
			return name, nil
		}
	}

	return "", project.Wrap(project.ErrNoRootFound, "no text file contains %s", documentBeginMarker)
}

// scanOrder returns text-bearing filenames ending in .tex first (each group
// sorted lexicographically for determinism), then every other file.
func scanOrder(p *project.Project) []string {
	var texFiles, otherFiles []string
	for name := range p.Files {
		if strings.HasSuffix(name, ".tex") {
			texFiles = append(texFiles, name)
		} else {
			otherFiles = append(otherFiles, name)
		}
	}
	sort.Strings(texFiles)
	sort.Strings(otherFiles)
	return append(texFiles, otherFiles...)
}

// hasUnescapedMarker reports whether data contains \begin{document} not
// itself preceded by an odd run of backslashes (which would make the
// leading backslash of the marker a literal character, not a command).
func hasUnescapedMarker(data []byte) bool {
	s := string(data)
	idx := 0
	for {
		pos := strings.Index(s[idx:], documentBeginMarker)
		if pos < 0 {
			return false
		}
		abs := idx + pos
		if !precededByOddBackslashes(s, abs) {
			return true
		}
		idx = abs + 1
	}
}

func precededByOddBackslashes(s string, idx int) bool {
	count := 0
	for i := idx - 1; i >= 0 && s[i] == '\\'; i-- {
		count++
	}
	return count%2 == 1
}
