package result

import (
	"encoding/json"
	"testing"

	"github.com/nicktill/tinyquery/internal/eval"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
)

func TestFromMatrixInstantScalar(t *testing.T) {
	m := &eval.Matrix{Series: []eval.Series{{Points: []eval.Sample{{T: 1000, V: 3.5}}}}}
	v, err := FromMatrix(m, lang.ValueScalar, true)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if v.ResultType != TypeScalar || v.Scalar.V != 3.5 {
		t.Fatalf("unexpected scalar value: %+v", v)
	}
}

func TestFromMatrixInstantVector(t *testing.T) {
	ls := labels.New(map[string]string{"__name__": "cpu", "host": "a"})
	m := &eval.Matrix{Series: []eval.Series{{Labels: ls, Points: []eval.Sample{{T: 1000, V: 42}}}}}
	v, err := FromMatrix(m, lang.ValueVector, true)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if v.ResultType != TypeVector || len(v.Vector) != 1 || v.Vector[0].Value.V != 42 {
		t.Fatalf("unexpected vector value: %+v", v)
	}
}

func TestFromMatrixRange(t *testing.T) {
	ls := labels.New(map[string]string{"__name__": "cpu"})
	m := &eval.Matrix{Series: []eval.Series{{Labels: ls, Points: []eval.Sample{{T: 0, V: 1}, {T: 1000, V: 2}}}}}
	v, err := FromMatrix(m, lang.ValueVector, false)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	if v.ResultType != TypeMatrix || len(v.Matrix) != 1 || len(v.Matrix[0].Values) != 2 {
		t.Fatalf("unexpected matrix value: %+v", v)
	}
}

func TestScalarValueMarshalsValueAsString(t *testing.T) {
	b, err := json.Marshal(ScalarValue{T: 1500, V: 3.25})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `[1.500,"3.25"]` {
		t.Fatalf("unexpected marshaled pair: %s", b)
	}
}

func TestScalarValueMarshalsWholeSecondWithoutFraction(t *testing.T) {
	b, err := json.Marshal(ScalarValue{T: 2000, V: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `[2,"1"]` {
		t.Fatalf("unexpected marshaled pair: %s", b)
	}
}

func TestEncodeSuccessEnvelope(t *testing.T) {
	v := &Value{ResultType: TypeVector, Vector: VectorValue{}}
	env := Encode(v)
	if env.Status != "success" || env.Data.ResultType != TypeVector {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
