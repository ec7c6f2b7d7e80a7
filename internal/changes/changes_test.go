package changes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/changes"
	"github.com/knostack/knosync/internal/store"
)

func snap(title, content string) changes.Snapshot {
	return changes.Snapshot{Title: title, Content: content, Status: store.StatusDraft}
}

// --- Derive Tests ---

func TestDerive_Created(t *testing.T) {
	out := changes.Derive(nil, snap("New", "hello"))

	require.Len(t, out, 1)
	assert.Equal(t, store.ChangeCreated, out[0].Kind)
	assert.Empty(t, out[0].Field)
	assert.Equal(t, "hello", out[0].NewValue)
}

func TestDerive_NoChanges(t *testing.T) {
	old := snap("Same", "content")
	out := changes.Derive(&old, snap("Same", "content"))
	assert.Empty(t, out)
}

func TestDerive_FieldChanges(t *testing.T) {
	old := changes.Snapshot{
		Title: "Old", Content: "old body",
		Metadata: map[string]string{"a": "1"},
		Tags:     []string{"x"},
		Status:   store.StatusDraft,
	}
	next := changes.Snapshot{
		Title: "New", Content: "new body",
		Metadata: map[string]string{"a": "2"},
		Tags:     []string{"x", "y"},
		Status:   store.StatusPublished,
	}

	out := changes.Derive(&old, next)
	require.Len(t, out, 5)

	fields := make([]string, len(out))
	for i, c := range out {
		assert.Equal(t, store.ChangeUpdated, c.Kind)
		fields[i] = c.Field
	}
	assert.Equal(t, []string{"title", "content", "metadata", "tags", "status"}, fields)
	assert.Equal(t, "old body", out[1].OldValue)
	assert.Equal(t, "new body", out[1].NewValue)
}

func TestDerive_TagOrderIgnored(t *testing.T) {
	old := changes.Snapshot{Tags: []string{"b", "a"}, Status: store.StatusDraft}
	out := changes.Derive(&old, changes.Snapshot{Tags: []string{"a", "b"}, Status: store.StatusDraft})
	assert.Empty(t, out)
}

func TestDerive_MetadataKeyOrderIgnored(t *testing.T) {
	old := changes.Snapshot{Metadata: map[string]string{"a": "1", "b": "2"}, Status: store.StatusDraft}
	out := changes.Derive(&old, changes.Snapshot{Metadata: map[string]string{"b": "2", "a": "1"}, Status: store.StatusDraft})
	assert.Empty(t, out)
}

func TestDerive_Deleted(t *testing.T) {
	old := snap("Doomed", "body")
	out := changes.Derive(&old, changes.Snapshot{
		Title: "Doomed", Content: "body", Status: store.StatusDeleted,
	})

	require.Len(t, out, 1)
	assert.Equal(t, store.ChangeDeleted, out[0].Kind)
	assert.Equal(t, "body", out[0].OldValue)
}

func TestDerive_Restored(t *testing.T) {
	old := changes.Snapshot{Title: "Back", Content: "body", Status: store.StatusDeleted}
	out := changes.Derive(&old, snap("Back", "body"))

	require.Len(t, out, 1)
	assert.Equal(t, store.ChangeRestored, out[0].Kind)
	assert.Equal(t, "body", out[0].NewValue)
}

// --- Replay Tests ---

func TestReplay_RoundTrip(t *testing.T) {
	// created -> edited -> deleted -> restored -> edited again
	transitions := []changes.Snapshot{
		{Title: "Doc", Content: "v1", Status: store.StatusDraft},
		{Title: "Doc", Content: "v2", Status: store.StatusDraft},
		{Title: "Doc", Content: "v2", Status: store.StatusDeleted},
		{Title: "Doc", Content: "v2", Status: store.StatusDraft},
		{Title: "Doc", Content: "v5 final", Status: store.StatusDraft},
	}

	var records []store.ChangeRecord
	var old *changes.Snapshot
	for i := range transitions {
		for _, c := range changes.Derive(old, transitions[i]) {
			records = append(records, store.ChangeRecord{
				Kind: c.Kind, Field: c.Field,
				OldValue: c.OldValue, NewValue: c.NewValue,
			})
		}
		old = &transitions[i]
	}

	assert.Equal(t, "v5 final", changes.Replay(records))
}

func TestReplay_StopsAtDeletedContent(t *testing.T) {
	records := []store.ChangeRecord{
		{Kind: store.ChangeCreated, NewValue: "kept"},
		{Kind: store.ChangeDeleted, OldValue: "kept"},
	}
	assert.Equal(t, "kept", changes.Replay(records))
}

// --- Summary Tests ---

func TestSummary_LineCounts(t *testing.T) {
	old := "line one\nline two\n"
	next := "line one\nline two changed\nline three\n"

	s := changes.Summary(old, next)
	assert.NotEmpty(t, s)
	assert.Contains(t, s, "+")
}

func TestSummary_Identical(t *testing.T) {
	assert.Empty(t, changes.Summary("same", "same"))
}

func TestSummary_NewContent(t *testing.T) {
	assert.Equal(t, "+2 lines", changes.Summary("", "one\ntwo\n"))
}
