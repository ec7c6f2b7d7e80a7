// summary.go produces compact human-readable summaries of content changes
// for version records. The summary is presentation only and never part of
// record identity; replay uses the verbatim old/new values.

package changes

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxSummaryLen bounds summary size so version rows stay small.
const maxSummaryLen = 200

// Summary returns a one-line description of a content transition, e.g.
// "+12 -3 lines". Empty when nothing changed.
func Summary(oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}
	if oldContent == "" {
		return fmt.Sprintf("+%d lines", countLines(newContent))
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var added, removed int
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}

	s := fmt.Sprintf("+%d -%d lines", added, removed)
	if len(s) > maxSummaryLen {
		s = s[:maxSummaryLen]
	}
	return s
}

// Diff returns a unified-style line diff between two content strings, for
// CLI history output.
func Diff(oldContent, newContent string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, l := range strings.Split(text, "\n") {
			b.WriteString(prefix + l + "\n")
		}
	}
	return b.String()
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}
