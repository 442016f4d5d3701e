package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		shape Shape
		want  [][]float32
	}{
		{"vector list", `[[0.1, 0.2], [0.3, 0.4]]`, ShapeVectorList, [][]float32{{0.1, 0.2}, {0.3, 0.4}}},
		{"object list", `[{"embedding": [1, 2]}, {"embedding": [3, 4]}]`, ShapeObjectList, [][]float32{{1, 2}, {3, 4}}},
		{"flat vector", `[0.5, -0.5, 1]`, ShapeFlatVector, [][]float32{{0.5, -0.5, 1}}},
		{"embeddings key", `{"embeddings": [[1, 2], [3, 4]]}`, ShapeEmbeddings, [][]float32{{1, 2}, {3, 4}}},
		{"embs alias", `{"embs": [[1, 2]]}`, ShapeEmbeddings, [][]float32{{1, 2}}},
		{"embeddings flat", `{"embeddings": [1, 2]}`, ShapeEmbeddings, [][]float32{{1, 2}}},
		{"data objects", `{"data": [{"embedding": [1, 2], "index": 0}]}`, ShapeData, [][]float32{{1, 2}}},
		{"data lists", `{"data": [[1, 2], [3, 4]]}`, ShapeData, [][]float32{{1, 2}, {3, 4}}},
		{"single", `{"embedding": [7, 8, 9]}`, ShapeSingle, [][]float32{{7, 8, 9}}},
		{"numeric strings", `[["1.5", "2"]]`, ShapeVectorList, [][]float32{{1.5, 2}}},
		{"empty list", `[]`, ShapeVectorList, [][]float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, shape, err := Normalize([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeUnknownShape(t *testing.T) {
	for _, body := range []string{
		`{"vectors": [[1, 2]]}`,
		`"hello"`,
		`42`,
		``,
	} {
		_, _, err := Normalize([]byte(body))
		require.Error(t, err, body)

		var ne *NormalizationError
		require.ErrorAs(t, err, &ne, body)
		assert.ErrorIs(t, err, ErrUnknownShape, body)
	}
}

func TestNormalizeBadValues(t *testing.T) {
	for _, body := range []string{
		`[[1, "x"]]`,
		`[[1, 2], true]`,
		`[{"vector": [1]}]`,
		`{"embedding": "nope"}`,
		`{"data": [1, 2]}`,
		`[[]]`,
		`[[0.5, null]]`,
		`[null]`,
		`{"embeddings": [[0.5, null, 0.25]]}`,
		`{"data": [{"embedding": [null]}]}`,
	} {
		_, _, err := Normalize([]byte(body))
		var ne *NormalizationError
		assert.ErrorAs(t, err, &ne, body)
		assert.True(t, IsTemporary(err), body)
	}
}
