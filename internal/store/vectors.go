package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// errEmptyEmbedding is returned when storing a zero-length vector
var errEmptyEmbedding = errors.New("cannot store empty vector")

// encodeEmbedding packs a vector as little-endian float32 for the embedding
// column. NaN and Inf are rejected so cosine scores stay finite.
func encodeEmbedding(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, errEmptyEmbedding
	}
	blob := make([]byte, 4*len(vector))
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("vector value %d is not finite", i)
		}
		binary.LittleEndian.PutUint32(blob[4*i:], math.Float32bits(v))
	}
	return blob, nil
}

// decodeEmbedding unpacks the embedding column and checks it against the
// dimension column. A NULL blob decodes to nil.
func decodeEmbedding(blob []byte, dimension sql.NullInt64) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	if dimension.Valid && int(dimension.Int64) != n {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension.Int64, n)
	}

	vector := make([]float32, n)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vector, nil
}
