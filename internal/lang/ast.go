// Package lang implements the lexer, parser, and abstract syntax tree for
// the query language: a PromQL-style expression grammar over labeled time
// series.
package lang

import "time"

// ValueType is the derived type of an expression's evaluated result.
type ValueType int

const (
	ValueNone ValueType = iota
	ValueScalar
	ValueString
	ValueVector
	ValueMatrix
)

func (t ValueType) String() string {
	switch t {
	case ValueScalar:
		return "scalar"
	case ValueString:
		return "string"
	case ValueVector:
		return "vector"
	case ValueMatrix:
		return "matrix"
	default:
		return "none"
	}
}

// Expr is any node in the query AST. Implementations are a closed set
// below; evaluation and printing dispatch on the concrete type via a type
// switch rather than a visitor.
type Expr interface {
	exprNode()
	// Type returns the value type this expression produces when evaluated.
	// It is computed once, at construction, by the parser.
	Type() ValueType
}

// MatchOp identifies how a Matcher compares a label value.
type MatchOp int

const (
	MatchEQ MatchOp = iota
	MatchNEQ
	MatchLT
	MatchGT
	MatchLE
	MatchGE
	MatchEQRegex
	MatchNEQRegex
)

func (op MatchOp) String() string {
	switch op {
	case MatchEQ:
		return "="
	case MatchNEQ:
		return "!="
	case MatchLT:
		return "<"
	case MatchGT:
		return ">"
	case MatchLE:
		return "<="
	case MatchGE:
		return ">="
	case MatchEQRegex:
		return "=~"
	case MatchNEQRegex:
		return "!~"
	default:
		return "?"
	}
}

// Matcher is a single (op, name, value) label predicate.
type Matcher struct {
	Name  string
	Op    MatchOp
	Value string
}

// NumberLiteral is a bare scalar constant.
type NumberLiteral struct {
	Value float64
}

func (*NumberLiteral) exprNode()        {}
func (*NumberLiteral) Type() ValueType  { return ValueScalar }

// StringLiteral is a bare string constant.
type StringLiteral struct {
	Value string
}

func (*StringLiteral) exprNode()       {}
func (*StringLiteral) Type() ValueType { return ValueString }

// VectorSelector is a metric selector: name{matchers...} with an optional
// offset. A named selector carries a synthesized __name__ matcher.
type VectorSelector struct {
	Name     string // empty for a brace-only selector
	Matchers []*Matcher
	Offset   time.Duration
}

func (*VectorSelector) exprNode()       {}
func (*VectorSelector) Type() ValueType { return ValueVector }

// MatrixSelector is a vector selector with a trailing [range], yielding a
// matrix of raw samples for the window preceding each evaluation timestamp.
type MatrixSelector struct {
	Vector *VectorSelector
	Range  time.Duration
	Offset time.Duration
}

func (*MatrixSelector) exprNode()       {}
func (*MatrixSelector) Type() ValueType { return ValueMatrix }

// SubqueryExpr evaluates Expr as a nested range query over [ts-Range, ts]
// stepped by Step, producing a matrix.
type SubqueryExpr struct {
	Expr   Expr
	Range  time.Duration
	Step   time.Duration // zero means "use the outer query's resolution"
	Offset time.Duration
}

func (*SubqueryExpr) exprNode()       {}
func (*SubqueryExpr) Type() ValueType { return ValueMatrix }

// FunctionCall is a call to a named function in the function table.
type FunctionCall struct {
	Name     string
	Args     []Expr
	RetType  ValueType
}

func (f *FunctionCall) exprNode()       {}
func (f *FunctionCall) Type() ValueType { return f.RetType }

// UnaryExpr is a leading + or - applied to a scalar or vector operand.
type UnaryExpr struct {
	Neg  bool // true for '-', false for '+'
	Expr Expr
}

func (u *UnaryExpr) exprNode()       {}
func (u *UnaryExpr) Type() ValueType { return u.Expr.Type() }

// VectorMatching describes how a vector-vector binary operation pairs up
// series by label set.
type VectorMatching struct {
	On         bool // true for "on(...)", false for "ignoring(...)"
	Labels     []string
	GroupLeft  bool
	GroupRight bool
	Include    []string // labels copied from the "one" side under group_left/right
}

// BinaryOp identifies an arithmetic, comparison, or set operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEQL
	OpNEQ
	OpLSS
	OpGTR
	OpLTE
	OpGTE
	OpAnd
	OpOr
	OpUnless
)

// IsComparison reports whether op is one of == != < > <= >=.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEQL, OpNEQ, OpLSS, OpGTR, OpLTE, OpGTE:
		return true
	default:
		return false
	}
}

// IsSetOp reports whether op is one of and/or/unless.
func (op BinaryOp) IsSetOp() bool {
	switch op {
	case OpAnd, OpOr, OpUnless:
		return true
	default:
		return false
	}
}

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "^"
	case OpEQL:
		return "=="
	case OpNEQ:
		return "!="
	case OpLSS:
		return "<"
	case OpGTR:
		return ">"
	case OpLTE:
		return "<="
	case OpGTE:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpUnless:
		return "unless"
	default:
		return "?"
	}
}

// BinaryExpr is a binary operator applied to two operands.
type BinaryExpr struct {
	Left     Expr
	Op       BinaryOp
	Right    Expr
	Bool     bool // comparison carries a "bool" modifier
	Matching *VectorMatching
	RetType  ValueType
}

func (b *BinaryExpr) exprNode()       {}
func (b *BinaryExpr) Type() ValueType { return b.RetType }

// AggregateExpr is an aggregation over a vector-typed expression.
type AggregateExpr struct {
	Op       string // sum, avg, min, max, count, count_values, stddev, stdvar, topk, bottomk, quantile
	Param    Expr   // k for topk/bottomk, q for quantile, label for count_values
	Expr     Expr
	Grouping []string
	Without  bool
}

func (*AggregateExpr) exprNode()       {}
func (*AggregateExpr) Type() ValueType { return ValueVector }

// ParenExpr preserves an explicit parenthesization; its type mirrors its
// inner expression.
type ParenExpr struct {
	Expr Expr
}

func (p *ParenExpr) exprNode()       {}
func (p *ParenExpr) Type() ValueType { return p.Expr.Type() }

// Query is a fully parsed, type-checked expression ready for evaluation
// over a concrete time window.
type Query struct {
	Expr  Expr
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// IsInstant reports whether this query asks for a single point in time.
func (q *Query) IsInstant() bool {
	return q.Start.Equal(q.End)
}
