// Package chunk splits document content into stable embedding chunks and
// reconciles the stored chunk set against new content.
//
// Splitting is deterministic: the same content string always yields the
// same ordered pieces, because chunk index is part of chunk identity.
// Content hashes detect unchanged chunks across edits so their vectors are
// not recomputed - embedding is the most expensive operation in the
// pipeline and the hash check is what makes repeat edits cheap.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/knostack/knosync/internal/store"
)

// DefaultWindowWords bounds a single chunk; paragraphs beyond it are split
// on word windows.
const DefaultWindowWords = 200

// Piece is one chunk of content before embedding.
type Piece struct {
	Index int
	Hash  string
	Text  string
}

// Splitter turns content into an ordered piece sequence. Implementations
// must be deterministic for the same content string.
type Splitter interface {
	Split(content string) []Piece
}

// ParagraphSplitter splits on blank-line paragraph boundaries, breaking
// oversized paragraphs into fixed word windows.
type ParagraphSplitter struct {
	WindowWords int
}

var _ Splitter = (*ParagraphSplitter)(nil)

// Split implements Splitter.
func (s *ParagraphSplitter) Split(content string) []Piece {
	window := s.WindowWords
	if window <= 0 {
		window = DefaultWindowWords
	}

	var pieces []Piece
	for _, para := range splitParagraphs(content) {
		words := strings.Fields(para)
		for start := 0; start < len(words); start += window {
			end := min(start+window, len(words))
			text := strings.Join(words[start:end], " ")
			pieces = append(pieces, Piece{
				Index: len(pieces),
				Hash:  Hash(text),
				Text:  text,
			})
		}
	}
	return pieces
}

func splitParagraphs(content string) []string {
	var paras []string
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(p) != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// Hash returns the hex sha256 digest of a chunk text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Plan is the reconciliation outcome for one document: pieces to embed and
// insert, stored chunks still valid, and stored chunks to delete.
type Plan struct {
	Inserts []Piece
	Keeps   []store.EmbeddingChunk
	Deletes []store.EmbeddingChunk
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Deletes) == 0
}

// BuildPlan classifies the new decomposition against existing chunks.
// A piece whose (hash, index) already exists is kept; otherwise it is an
// insert. Existing chunks whose (hash, index) no longer appears become
// deletes. Pure function; the indexer applies it.
func BuildPlan(existing []store.EmbeddingChunk, pieces []Piece) Plan {
	type key struct {
		hash  string
		index int
	}

	current := make(map[key]store.EmbeddingChunk, len(existing))
	for _, c := range existing {
		current[key{c.ContentHash, c.ChunkIndex}] = c
	}

	var plan Plan
	wanted := make(map[key]struct{}, len(pieces))
	for _, p := range pieces {
		k := key{p.Hash, p.Index}
		wanted[k] = struct{}{}
		if c, ok := current[k]; ok {
			plan.Keeps = append(plan.Keeps, c)
		} else {
			plan.Inserts = append(plan.Inserts, p)
		}
	}
	for _, c := range existing {
		if _, ok := wanted[key{c.ContentHash, c.ChunkIndex}]; !ok {
			plan.Deletes = append(plan.Deletes, c)
		}
	}
	return plan
}
