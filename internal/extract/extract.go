// Package extract defines the concept/reference extractor interface and a
// markdown implementation.
//
// The extractor is an opaque text-analysis collaborator: it may be
// AI-backed, but the core treats it as a pure function over content with no
// side effects. The markdown implementation handles explicitly authored
// relationships: wiki-style document references and hashtag concepts.
package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Result is one extraction outcome. Concepts are lowercase and
// deduplicated; References are document ids the content points at.
type Result struct {
	Concepts   []string
	References []uuid.UUID
}

// Extractor derives concepts and document references from content.
type Extractor interface {
	Extract(ctx context.Context, content string) (Result, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, content string) (Result, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, content string) (Result, error) {
	return f(ctx, content)
}

var (
	// [[doc:<uuid>]] is an explicit reference to another document.
	refPattern = regexp.MustCompile(`\[\[doc:([0-9a-fA-F-]{36})\]\]`)
	// [[concept name]] is an explicit concept mention.
	wikiPattern = regexp.MustCompile(`\[\[([^\[\]:]+)\]\]`)
	// #concept hashtags also name concepts. Headings don't match: they
	// have whitespace after the '#'.
	tagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}][\p{L}\p{N}_-]*)`)
)

// Markdown extracts wiki links and hashtags from markdown content.
type Markdown struct{}

var _ Extractor = (*Markdown)(nil)

// Extract implements Extractor. Output order is deterministic: concepts
// sorted, references sorted by id.
func (Markdown) Extract(_ context.Context, content string) (Result, error) {
	var res Result

	refs := map[uuid.UUID]struct{}{}
	for _, m := range refPattern.FindAllStringSubmatch(content, -1) {
		if id, err := uuid.Parse(m[1]); err == nil {
			refs[id] = struct{}{}
		}
	}
	for id := range refs {
		res.References = append(res.References, id)
	}
	sort.Slice(res.References, func(i, j int) bool {
		return res.References[i].String() < res.References[j].String()
	})

	concepts := map[string]struct{}{}
	for _, m := range wikiPattern.FindAllStringSubmatch(content, -1) {
		if name := normaliseConcept(m[1]); name != "" {
			concepts[name] = struct{}{}
		}
	}
	for _, m := range tagPattern.FindAllStringSubmatch(content, -1) {
		if name := normaliseConcept(m[1]); name != "" {
			concepts[name] = struct{}{}
		}
	}
	for name := range concepts {
		res.Concepts = append(res.Concepts, name)
	}
	sort.Strings(res.Concepts)

	return res, nil
}

func normaliseConcept(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
