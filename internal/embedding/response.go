package embedding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Shape identifies one of the accepted provider response layouts
type Shape int

const (
	ShapeUnknown    Shape = iota
	ShapeVectorList       // [[0.1, ...], ...]
	ShapeObjectList       // [{"embedding": [...]}, ...]
	ShapeFlatVector       // [0.1, ...], a single vector
	ShapeEmbeddings       // {"embeddings": [...]} or {"embs": [...]}
	ShapeData             // {"data": [{"embedding": [...]}, ...]}
	ShapeSingle           // {"embedding": [...]}
)

func (s Shape) String() string {
	switch s {
	case ShapeVectorList:
		return "vector_list"
	case ShapeObjectList:
		return "object_list"
	case ShapeFlatVector:
		return "flat_vector"
	case ShapeEmbeddings:
		return "embeddings"
	case ShapeData:
		return "data"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// ErrUnknownShape is wrapped by NormalizationError when the payload matches no accepted layout
var ErrUnknownShape = errors.New("unsupported embedding response shape")

// NormalizationError reports a successful response whose payload cannot be
// turned into numeric vectors.
type NormalizationError struct {
	Provider string
	Shape    Shape
	Err      error
}

func (e *NormalizationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("normalize %s response: %v", e.Shape, e.Err)
	}
	return fmt.Sprintf("%s: normalize %s response: %v", e.Provider, e.Shape, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalize decodes a provider response body into vectors.
// It returns the detected shape along with the vectors.
func Normalize(body []byte) ([][]float32, Shape, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ShapeUnknown, &NormalizationError{Err: fmt.Errorf("%w: empty body", ErrUnknownShape)}
	}

	switch body[0] {
	case '[':
		return normalizeList(body)
	case '{':
		return normalizeObject(body)
	default:
		return nil, ShapeUnknown, &NormalizationError{Err: ErrUnknownShape}
	}
}

func normalizeObject(body []byte) ([][]float32, Shape, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, ShapeUnknown, &NormalizationError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	for _, key := range []string{"embeddings", "embs"} {
		if raw, ok := fields[key]; ok && !isNull(raw) {
			vecs, _, err := normalizeList(raw)
			if err != nil {
				return nil, ShapeEmbeddings, retag(err, ShapeEmbeddings)
			}
			return vecs, ShapeEmbeddings, nil
		}
	}

	if raw, ok := fields["data"]; ok && !isNull(raw) {
		vecs, inner, err := normalizeList(raw)
		if err == nil && inner == ShapeFlatVector {
			err = &NormalizationError{Err: fmt.Errorf("%w: data must be a list of embeddings", ErrUnknownShape)}
		}
		if err != nil {
			return nil, ShapeData, retag(err, ShapeData)
		}
		return vecs, ShapeData, nil
	}

	if raw, ok := fields["embedding"]; ok && !isNull(raw) {
		vec, err := parseVector(raw)
		if err != nil {
			return nil, ShapeSingle, &NormalizationError{Shape: ShapeSingle, Err: err}
		}
		return [][]float32{vec}, ShapeSingle, nil
	}

	return nil, ShapeUnknown, &NormalizationError{Err: ErrUnknownShape}
}

func normalizeList(body []byte) ([][]float32, Shape, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, ShapeUnknown, &NormalizationError{Err: fmt.Errorf("%w: %v", ErrUnknownShape, err)}
	}
	if len(items) == 0 {
		return [][]float32{}, ShapeVectorList, nil
	}

	// A list without nested lists or objects is one flat vector
	nested := false
	for _, item := range items {
		if c := firstByte(item); c == '[' || c == '{' {
			nested = true
			break
		}
	}
	if !nested {
		vec, err := parseVector(body)
		if err != nil {
			return nil, ShapeFlatVector, &NormalizationError{Shape: ShapeFlatVector, Err: err}
		}
		return [][]float32{vec}, ShapeFlatVector, nil
	}

	shape := ShapeVectorList
	if firstByte(items[0]) == '{' {
		shape = ShapeObjectList
	}

	out := make([][]float32, 0, len(items))
	for i, item := range items {
		var raw json.RawMessage
		switch firstByte(item) {
		case '[':
			raw = item
		case '{':
			var obj struct {
				Embedding json.RawMessage `json:"embedding"`
			}
			if err := json.Unmarshal(item, &obj); err != nil || isNull(obj.Embedding) {
				return nil, shape, &NormalizationError{Shape: shape, Err: fmt.Errorf("item %d: missing embedding", i)}
			}
			raw = obj.Embedding
		default:
			return nil, shape, &NormalizationError{Shape: shape, Err: fmt.Errorf("item %d: unexpected embedding item type", i)}
		}

		vec, err := parseVector(raw)
		if err != nil {
			return nil, shape, &NormalizationError{Shape: shape, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		out = append(out, vec)
	}

	return out, shape, nil
}

// parseVector coerces a JSON array of numbers (or numeric strings) to float32
func parseVector(raw json.RawMessage) ([]float32, error) {
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("embedding is not a list: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}

	vec := make([]float32, len(values))
	for i, v := range values {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("embedding value %d is null", i)
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			var s string
			if json.Unmarshal(v, &s) != nil {
				return nil, fmt.Errorf("failed to coerce embedding value %d: %s", i, string(v))
			}
			f, err = strconv.ParseFloat(strings.TrimSpace(s), 32)
			if err != nil {
				return nil, fmt.Errorf("failed to coerce embedding value %d: %w", i, err)
			}
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func retag(err error, shape Shape) error {
	var ne *NormalizationError
	if errors.As(err, &ne) {
		return &NormalizationError{Shape: shape, Err: ne.Err}
	}
	return &NormalizationError{Shape: shape, Err: err}
}

func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
