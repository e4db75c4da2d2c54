package resultstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "abc-123.json", ArtifactKey("abc-123", "json"))
	assert.Equal(t, "abc-123.csv", ArtifactKey("abc-123", "csv"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "http://localhost:8080/results/", "job-results")

	key := ArtifactKey("abc-123", "json")
	require.NoError(t, store.Put(ctx, key, []byte(`[{"a":1}]`), "application/json"))

	body, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1}]`, string(body))

	url, err := store.URL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/results/job-results/abc-123.json", url)
}

func TestLocalStoreMissingArtifact(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://localhost:8080/results", "")
	_, err := store.Get(context.Background(), "nope.json")
	assert.Error(t, err)
}
