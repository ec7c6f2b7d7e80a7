package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knostack/knosync/internal/store"
	"github.com/knostack/knosync/internal/validate"
)

func TestTitle(t *testing.T) {
	assert.NoError(t, validate.Title("A fine title", 0))
	assert.ErrorIs(t, validate.Title("", 0), store.ErrValidation)
	assert.ErrorIs(t, validate.Title("   ", 0), store.ErrValidation)
	assert.ErrorIs(t, validate.Title(strings.Repeat("x", 600), 0), store.ErrValidation)
	assert.NoError(t, validate.Title(strings.Repeat("x", 600), 1000))
}

func TestContent(t *testing.T) {
	assert.NoError(t, validate.Content("", 0)) // empty content is a valid document
	assert.NoError(t, validate.Content("body", 0))
	assert.ErrorIs(t, validate.Content(strings.Repeat("x", 100), 10), store.ErrValidation)
}

func TestStatus(t *testing.T) {
	assert.NoError(t, validate.Status(store.StatusDraft))
	assert.NoError(t, validate.Status(store.StatusPublished))
	assert.ErrorIs(t, validate.Status("limbo"), store.ErrValidation)
}

func TestAuthor(t *testing.T) {
	assert.NoError(t, validate.Author("alice"))
	assert.ErrorIs(t, validate.Author(""), store.ErrValidation)
}

func TestTags(t *testing.T) {
	assert.NoError(t, validate.Tags(nil))
	assert.NoError(t, validate.Tags([]string{"a", "b"}))
	assert.ErrorIs(t, validate.Tags([]string{""}), store.ErrValidation)
	assert.ErrorIs(t, validate.Tags([]string{"dup", "dup"}), store.ErrValidation)
}
