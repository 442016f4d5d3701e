package textindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/docrag/internal/store"
)

func sample() []*store.Chunk {
	return []*store.Chunk{
		{ID: 1, DocumentID: 1, Content: "Kubernetes operators written in Go"},
		{ID: 2, DocumentID: 1, Content: "Python data pipelines with Airflow"},
		{ID: 3, DocumentID: 2, Content: "Terraform modules for AWS networking"},
	}
}

func TestSearchIDs(t *testing.T) {
	idx, err := NewMemory()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.IndexChunks("cv.pdf", sample()))

	ids, err := idx.SearchIDs(context.Background(), "airflow pipelines", 5)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, int64(2), ids[0])

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestDeleteChunks(t *testing.T) {
	idx, err := NewMemory()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.IndexChunks("doc", sample()))
	require.NoError(t, idx.DeleteChunks([]int64{3}))

	ids, err := idx.SearchIDs(context.Background(), "terraform", 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOpenCreatesAndReopens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "text")

	idx, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, idx.IndexChunks("doc", sample()))
	require.NoError(t, idx.Close())

	idx, err = Open(dir)
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.SearchIDs(context.Background(), "kubernetes", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}
