// Package result implements the exec-value downcast and JSON encoding
// (C8): taking an evaluator Matrix and rendering it as the scalar/vector/
// matrix envelope an HTTP client expects, with numeric values serialized
// as strings for wire parity with the Prometheus HTTP API.
package result

import (
	"encoding/json"
	"fmt"

	"github.com/nicktill/tinyquery/internal/eval"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/prometheus/common/model"
)

// Type identifies which of scalar/vector/matrix a Value holds.
type Type string

const (
	TypeScalar Type = "scalar"
	TypeVector Type = "vector"
	TypeMatrix Type = "matrix"
)

// Value is the downcast exec-value ready for JSON encoding: exactly one
// of Scalar, Vector, or Matrix is populated, selected by ResultType.
type Value struct {
	ResultType Type
	Scalar     *ScalarValue
	Vector     VectorValue
	Matrix     MatrixValue
}

// ScalarValue is a single (timestamp, value) pair with no labels.
type ScalarValue struct {
	T int64
	V float64
}

// VectorSample is one series' single value at the query's instant.
type VectorSample struct {
	Metric map[string]string
	Value  ScalarValue
}

// VectorValue is a set of VectorSamples, one per series.
type VectorValue []VectorSample

// MatrixSeries is one series' full point sequence over the query window.
type MatrixSeries struct {
	Metric map[string]string
	Values []ScalarValue
}

// MatrixValue is a set of MatrixSeries, one per distinct label set.
type MatrixValue []MatrixSeries

// FromMatrix downcasts an evaluator Matrix into a Value appropriate to
// the query: an instant query (start == end, step <= 0) whose root
// expression is scalar-typed downcasts to ScalarValue taken from
// series[0].values[0]; a vector-typed instant query downcasts to
// VectorValue (one sample per series); anything else is rendered as a
// MatrixValue. After the evaluator finishes visiting the root expression
// exactly one matrix remains, and this function decides how to present it.
func FromMatrix(m *eval.Matrix, rootType lang.ValueType, instant bool) (*Value, error) {
	if m == nil {
		return nil, fmt.Errorf("result: nil matrix")
	}

	if instant && rootType == lang.ValueScalar {
		if len(m.Series) == 0 || len(m.Series[0].Points) == 0 {
			return &Value{ResultType: TypeScalar, Scalar: &ScalarValue{}}, nil
		}
		p := m.Series[0].Points[0]
		return &Value{ResultType: TypeScalar, Scalar: &ScalarValue{T: p.T, V: p.V}}, nil
	}

	if instant {
		vec := make(VectorValue, 0, len(m.Series))
		for _, s := range m.Series {
			if len(s.Points) == 0 {
				continue
			}
			p := s.Points[len(s.Points)-1]
			vec = append(vec, VectorSample{
				Metric: s.Labels.Map(),
				Value:  ScalarValue{T: p.T, V: p.V},
			})
		}
		return &Value{ResultType: TypeVector, Vector: vec}, nil
	}

	mat := make(MatrixValue, 0, len(m.Series))
	for _, s := range m.Series {
		values := make([]ScalarValue, len(s.Points))
		for i, p := range s.Points {
			values[i] = ScalarValue{T: p.T, V: p.V}
		}
		mat = append(mat, MatrixSeries{Metric: s.Labels.Map(), Values: values})
	}
	return &Value{ResultType: TypeMatrix, Matrix: mat}, nil
}

// marshalPair renders v as a Prometheus-wire-compatible [t_seconds,"v"]
// pair. The value half delegates to model.SampleValue so NaN/Inf and
// ordinary floats marshal exactly as the Prometheus HTTP API does (a JSON
// string); the timestamp half uses jsonTime instead of model.Time, which
// rounds to whole seconds and would lose sub-second resolution.
func marshalPair(t int64, v float64) ([]byte, error) {
	return json.Marshal([2]interface{}{jsonTime(t), model.SampleValue(v)})
}

// jsonTime renders a millisecond timestamp as seconds with up to three
// decimal places, the precision needed to preserve millisecond resolution.
type jsonTime int64

func (t jsonTime) MarshalJSON() ([]byte, error) {
	sec := int64(t) / 1000
	ms := int64(t) % 1000
	if ms == 0 {
		return []byte(fmt.Sprintf("%d", sec)), nil
	}
	return []byte(fmt.Sprintf("%d.%03d", sec, ms)), nil
}

func (s ScalarValue) MarshalJSON() ([]byte, error) {
	return marshalPair(s.T, s.V)
}

func (v VectorSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Metric map[string]string `json:"metric"`
		Value  ScalarValue        `json:"value"`
	}{Metric: v.Metric, Value: v.Value})
}

func (m MatrixSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Metric map[string]string `json:"metric"`
		Values []ScalarValue      `json:"values"`
	}{Metric: m.Metric, Values: m.Values})
}

// Envelope is the top-level response shape: {"status","data":{...}}.
type Envelope struct {
	Status string    `json:"status"`
	Data   *dataBody `json:"data,omitempty"`
}

type dataBody struct {
	ResultType Type        `json:"resultType"`
	Result     interface{} `json:"result"`
}

// Encode wraps v in the standard success envelope.
func Encode(v *Value) Envelope {
	var res interface{}
	switch v.ResultType {
	case TypeScalar:
		res = v.Scalar
	case TypeVector:
		if v.Vector == nil {
			res = VectorValue{}
		} else {
			res = v.Vector
		}
	default:
		if v.Matrix == nil {
			res = MatrixValue{}
		} else {
			res = v.Matrix
		}
	}
	return Envelope{
		Status: "success",
		Data:   &dataBody{ResultType: v.ResultType, Result: res},
	}
}

// ErrorEnvelope is the error response shape.
type ErrorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// EncodeError wraps err in the error envelope.
func EncodeError(err error) ErrorEnvelope {
	return ErrorEnvelope{Status: "error", Message: err.Error()}
}
