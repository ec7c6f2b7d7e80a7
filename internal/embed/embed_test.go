package embed_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/embed"
)

func TestOllama_Embed(t *testing.T) {
	var gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req["model"]
		gotPrompt = req["prompt"]
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := embed.NewOllama(srv.URL, "nomic-embed-text")
	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "nomic-embed-text", gotModel)
	assert.Equal(t, "hello world", gotPrompt)
}

func TestOllama_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := embed.NewOllama(srv.URL, "missing-model")
	_, err := p.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, embed.ErrProvider)
}

func TestOllama_Unreachable(t *testing.T) {
	p := embed.NewOllama("http://127.0.0.1:1", "model")
	_, err := p.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, embed.ErrProvider)
}

func TestLimited_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	inner := embed.ProviderFunc(func(context.Context, string) ([]float32, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("transient")
		}
		return []float32{1}, nil
	})

	l := embed.NewLimited(inner, 1000, 1000, 3, time.Millisecond)
	vec, err := l.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int64(3), calls.Load())
}

func TestLimited_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int64
	inner := embed.ProviderFunc(func(context.Context, string) ([]float32, error) {
		calls.Add(1)
		return nil, fmt.Errorf("always down")
	})

	l := embed.NewLimited(inner, 1000, 1000, 2, time.Millisecond)
	_, err := l.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestLimited_ContextCancelled(t *testing.T) {
	inner := embed.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := embed.NewLimited(inner, 1000, 1000, 3, time.Second)
	_, err := l.Embed(ctx, "text")
	assert.ErrorIs(t, err, embed.ErrProvider)
}
