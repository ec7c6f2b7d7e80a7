// Package changes derives field-level change records from successive
// document snapshots.
//
// Derive is a pure function used by the ledger during commits; Replay
// reconstructs document content from a change-record sequence, which is the
// audit guarantee the change log exists to provide.
package changes

import (
	"encoding/json"
	"sort"

	"github.com/knostack/knosync/internal/store"
)

// Fields compared by Derive, in emission order.
const (
	FieldTitle    = "title"
	FieldContent  = "content"
	FieldMetadata = "metadata"
	FieldTags     = "tags"
	FieldStatus   = "status"
)

// Snapshot is the fixed field set a change record can describe. It combines
// version fields (title, content, metadata) with live-row fields (tags,
// status) so one diff covers a whole transition.
type Snapshot struct {
	Title    string
	Content  string
	Metadata map[string]string
	Tags     []string
	Status   store.Status
}

// Change is one derived field transition. Kind is created/deleted/restored
// for whole-document transitions (Field empty) and updated otherwise.
type Change struct {
	Kind     store.ChangeKind
	Field    string
	OldValue string
	NewValue string
}

// Derive computes the ordered change set between two snapshots.
//
//   - old nil: a single created record carrying the new content.
//   - new status deleted (old not deleted): a single deleted record.
//   - old status deleted, new not: a single restored record carrying the
//     content, followed by field records for anything else that changed.
//   - otherwise: one updated record per changed field over
//     {title, content, metadata, tags, status}.
//
// Content old/new values are stored verbatim; replay depends on that.
func Derive(old *Snapshot, new Snapshot) []Change {
	if old == nil {
		return []Change{{Kind: store.ChangeCreated, NewValue: new.Content}}
	}
	if new.Status == store.StatusDeleted && old.Status != store.StatusDeleted {
		return []Change{{Kind: store.ChangeDeleted, OldValue: old.Content, NewValue: new.Content}}
	}

	var out []Change
	if old.Status == store.StatusDeleted && new.Status != store.StatusDeleted {
		out = append(out, Change{Kind: store.ChangeRestored, NewValue: new.Content})
	}

	if old.Title != new.Title {
		out = append(out, updated(FieldTitle, old.Title, new.Title))
	}
	if old.Content != new.Content {
		out = append(out, updated(FieldContent, old.Content, new.Content))
	}
	if oldMeta, newMeta := encodeMetadata(old.Metadata), encodeMetadata(new.Metadata); oldMeta != newMeta {
		out = append(out, updated(FieldMetadata, oldMeta, newMeta))
	}
	if oldTags, newTags := encodeTags(old.Tags), encodeTags(new.Tags); oldTags != newTags {
		out = append(out, updated(FieldTags, oldTags, newTags))
	}
	if old.Status != new.Status && old.Status != store.StatusDeleted {
		out = append(out, updated(FieldStatus, string(old.Status), string(new.Status)))
	}
	return out
}

func updated(field, oldValue, newValue string) Change {
	return Change{Kind: store.ChangeUpdated, Field: field, OldValue: oldValue, NewValue: newValue}
}

// encodeMetadata serialises a metadata map with sorted keys so equal maps
// always compare equal.
func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m) // encoding/json sorts map keys
	if err != nil {
		return "{}"
	}
	return string(b)
}

// encodeTags serialises a tag set order-insensitively: tag sets are
// compared as sets, not lists.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	b, err := json.Marshal(sorted)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Replay reconstructs document content by applying change records in order,
// starting from the created record. Records must be ordered oldest first,
// as returned by store.ChangesForDocument.
func Replay(records []store.ChangeRecord) string {
	var content string
	for _, r := range records {
		switch r.Kind {
		case store.ChangeCreated, store.ChangeRestored:
			content = r.NewValue
		case store.ChangeUpdated:
			if r.Field == FieldContent {
				content = r.NewValue
			}
		case store.ChangeDeleted:
			// Deletion preserves content; nothing to apply.
		}
	}
	return content
}
