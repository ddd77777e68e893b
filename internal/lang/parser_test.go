package lang

import (
	"errors"
	"testing"
	"time"
)

func TestParseVectorSelector(t *testing.T) {
	expr, err := Parse(`http_requests_total{method="GET", status!="500"}`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	vs, ok := expr.(*VectorSelector)
	if !ok {
		t.Fatalf("expected *VectorSelector, got %T", expr)
	}
	if vs.Name != "http_requests_total" {
		t.Errorf("expected name http_requests_total, got %q", vs.Name)
	}
	if len(vs.Matchers) != 3 {
		t.Fatalf("expected 3 matchers (incl. synthesized __name__), got %d: %+v", len(vs.Matchers), vs.Matchers)
	}
}

func TestParseMatrixSelectorAndOffset(t *testing.T) {
	expr, err := Parse(`rate(http_requests_total[5m] offset 1h)`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	call, ok := expr.(*FunctionCall)
	if !ok {
		t.Fatalf("expected *FunctionCall, got %T", expr)
	}
	mat, ok := call.Args[0].(*MatrixSelector)
	if !ok {
		t.Fatalf("expected *MatrixSelector arg, got %T", call.Args[0])
	}
	if mat.Range != 5*time.Minute {
		t.Errorf("expected 5m range, got %v", mat.Range)
	}
	if mat.Offset != 1*time.Hour {
		t.Errorf("expected 1h offset, got %v", mat.Offset)
	}
}

func TestParseBinaryPrecedence(t *testing.T) {
	expr, err := Parse("1 + 2 * 3")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	bin, ok := expr.(*BinaryExpr)
	if !ok {
		t.Fatalf("expected *BinaryExpr, got %T", expr)
	}
	if bin.Op != OpAdd {
		t.Fatalf("expected top-level op to be +, got %v", bin.Op)
	}
	rhs, ok := bin.Right.(*BinaryExpr)
	if !ok || rhs.Op != OpMul {
		t.Fatalf("expected right-hand side to be a multiplication, got %#v", bin.Right)
	}
}

func TestParseAggregationWithGrouping(t *testing.T) {
	expr, err := Parse(`sum by (job, instance) (rate(requests[1m]))`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	agg, ok := expr.(*AggregateExpr)
	if !ok {
		t.Fatalf("expected *AggregateExpr, got %T", expr)
	}
	if agg.Op != "sum" || agg.Without {
		t.Fatalf("expected sum-by, got op=%q without=%v", agg.Op, agg.Without)
	}
	if len(agg.Grouping) != 2 || agg.Grouping[0] != "job" || agg.Grouping[1] != "instance" {
		t.Fatalf("unexpected grouping: %+v", agg.Grouping)
	}
}

func TestParseTopKRequiresParam(t *testing.T) {
	if _, err := Parse(`topk(requests)`); err == nil {
		t.Fatalf("expected an error for topk without a k parameter")
	}
}

func TestParseVectorMatching(t *testing.T) {
	expr, err := Parse(`a + on(job) group_left(version) b`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	bin, ok := expr.(*BinaryExpr)
	if !ok {
		t.Fatalf("expected *BinaryExpr, got %T", expr)
	}
	if bin.Matching == nil || !bin.Matching.On || !bin.Matching.GroupLeft {
		t.Fatalf("expected on(job) group_left(version) matching, got %+v", bin.Matching)
	}
	if len(bin.Matching.Include) != 1 || bin.Matching.Include[0] != "version" {
		t.Fatalf("expected included label 'version', got %+v", bin.Matching.Include)
	}
}

func TestTypeCheckRejectsScalarRangeAggregation(t *testing.T) {
	_, err := Parse(`sum(1)`)
	var tcErr *TypeCheckError
	if !errors.As(err, &tcErr) {
		t.Fatalf("expected Parse to reject sum(1) with a type error, got %v", err)
	}
	if err := TypeCheck(&AggregateExpr{Op: "sum", Expr: &NumberLiteral{Value: 1}}); err == nil {
		t.Fatalf("expected a type error aggregating a scalar")
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"5m":     5 * time.Minute,
		"1h30m":  90 * time.Minute,
		"15s":    15 * time.Second,
		"1d":     24 * time.Hour,
		"1w":     7 * 24 * time.Hour,
		"500ms":  500 * time.Millisecond,
	}
	for input, want := range tests {
		got, err := ParseDuration(input)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	if _, err := ParseDuration("not-a-duration"); err == nil {
		t.Fatalf("expected an error for a malformed duration")
	}
}
