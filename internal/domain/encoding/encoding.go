// Package encoding turns heterogeneous input records into the fixed-order
// numeric feature vectors the predictor expects, and validates request shape
// before any stateful step runs.
package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/model"
	"gonum.org/v1/gonum/mat"
)

// Field names as they appear in input objects.
const (
	FieldAge        = "age"
	FieldDepth      = "depth"
	FieldNoiseLevel = "noiseLevel"
	FieldNodeType   = "nodeType"
	FieldLabel      = "label"
)

// MaxNameLength bounds model names to the record store column width.
const MaxNameLength = 255

// DecodeRecords reads a JSON array of objects. Anything else is a validation error.
func DecodeRecords(r io.Reader) ([]map[string]any, error) {
	const op = "encoding.decode_records"
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errkind.WrapKind(op, errkind.ErrValidation, fmt.Errorf("expected an array of objects: %w", err))
	}
	if dec.More() {
		return nil, errkind.New(op, errkind.ErrValidation, "unexpected data after array")
	}
	return raw, nil
}

// DecodeRecordsBytes is DecodeRecords over a byte slice.
func DecodeRecordsBytes(b []byte) ([]map[string]any, error) {
	return DecodeRecords(bytes.NewReader(b))
}

// ParseRecords converts raw objects to feature records by field name. The
// label is parsed when present and non-null.
func ParseRecords(raw []map[string]any) ([]model.FeatureRecord, error) {
	const op = "encoding.parse_records"
	out := make([]model.FeatureRecord, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, errkind.Newf(op, errkind.ErrEncoding, "record %d: not an object", i)
		}
		rec, err := parseRecord(obj)
		if err != nil {
			return nil, errkind.WrapKind(op, errkind.ErrEncoding, fmt.Errorf("record %d: %w", i, err))
		}
		out[i] = rec
	}
	return out, nil
}

func parseRecord(obj map[string]any) (model.FeatureRecord, error) {
	var (
		rec model.FeatureRecord
		err error
	)
	if rec.Age, err = nonNegativeInt(obj, FieldAge); err != nil {
		return rec, err
	}
	if rec.Depth, err = nonNegativeInt(obj, FieldDepth); err != nil {
		return rec, err
	}
	if rec.NoiseLevel, err = number(obj, FieldNoiseLevel); err != nil {
		return rec, err
	}
	if rec.NodeType, err = nonNegativeInt(obj, FieldNodeType); err != nil {
		return rec, err
	}
	if v, ok := obj[FieldLabel]; ok && v != nil {
		label, err := toFloat(v)
		if err != nil {
			return rec, fmt.Errorf("field %q: %w", FieldLabel, err)
		}
		rec.Label = &label
	}
	return rec, nil
}

func number(obj map[string]any, key string) (float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing field %q", key)
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return f, nil
}

func nonNegativeInt(obj map[string]any, key string) (int64, error) {
	f, err := number(obj, key)
	if err != nil {
		return 0, err
	}
	if !IsInteger(f) {
		return 0, fmt.Errorf("field %q: must be an integer", key)
	}
	if f < 0 {
		return 0, fmt.Errorf("field %q: must be non-negative", key)
	}
	return int64(f), nil
}

// IsInteger reports whether f is a whole number that float64 holds exactly.
// JSON integers written as 2 or 2.0 both qualify.
func IsInteger(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) <= 1<<53
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n.String())
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}

// ValidateName checks a model name.
func ValidateName(name string) error {
	const op = "encoding.validate_name"
	switch {
	case strings.TrimSpace(name) == "":
		return errkind.New(op, errkind.ErrValidation, "model name is required")
	case len(name) > MaxNameLength:
		return errkind.Newf(op, errkind.ErrValidation, "model name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// ValidateDataset checks a training dataset: non-empty, every record labeled
// with a finite value, and at most maxSize records when maxSize > 0.
func ValidateDataset(dataset []model.FeatureRecord, maxSize int) error {
	const op = "encoding.validate_dataset"
	if len(dataset) == 0 {
		return errkind.New(op, errkind.ErrValidation, "dataset must be a non-empty array of training records")
	}
	if maxSize > 0 && len(dataset) > maxSize {
		return errkind.Newf(op, errkind.ErrValidation, "dataset has %d records, limit is %d", len(dataset), maxSize)
	}
	for i := range dataset {
		l := dataset[i].Label
		if l == nil {
			return errkind.Newf(op, errkind.ErrValidation, "record %d: missing field %q", i, FieldLabel)
		}
		if math.IsNaN(*l) || math.IsInf(*l, 0) {
			return errkind.Newf(op, errkind.ErrValidation, "record %d: label is not finite", i)
		}
	}
	return nil
}

// ValidateCandidateBatch checks a ranking request: non-empty candidates,
// 1 <= topK <= len(candidates), and at most maxSize candidates when maxSize > 0.
func ValidateCandidateBatch(candidates []model.FeatureRecord, topK, maxSize int) error {
	const op = "encoding.validate_candidates"
	if len(candidates) == 0 {
		return errkind.New(op, errkind.ErrValidation, "dataset is required and must be a non-empty array")
	}
	if maxSize > 0 && len(candidates) > maxSize {
		return errkind.Newf(op, errkind.ErrValidation, "dataset has %d candidates, limit is %d", len(candidates), maxSize)
	}
	if topK < 1 || topK > len(candidates) {
		return errkind.Newf(op, errkind.ErrValidation, "invalid number of nodes %d: must be between 1 and %d", topK, len(candidates))
	}
	return nil
}

// Features encodes records into an N x 4 matrix, one row per record, in input
// order. It returns nil for an empty slice.
func Features(records []model.FeatureRecord) *mat.Dense {
	if len(records) == 0 {
		return nil
	}
	data := make([]float64, 0, len(records)*model.FeatureCount)
	for i := range records {
		v := records[i].Vector()
		data = append(data, v[:]...)
	}
	return mat.NewDense(len(records), model.FeatureCount, data)
}

// Labels encodes the labels of records into a vector. Every record must be labeled.
func Labels(records []model.FeatureRecord) (*mat.VecDense, error) {
	const op = "encoding.labels"
	if len(records) == 0 {
		return nil, errkind.New(op, errkind.ErrValidation, "no records")
	}
	data := make([]float64, len(records))
	for i := range records {
		if records[i].Label == nil {
			return nil, errkind.Newf(op, errkind.ErrEncoding, "record %d: missing field %q", i, FieldLabel)
		}
		data[i] = *records[i].Label
	}
	return mat.NewVecDense(len(records), data), nil
}
