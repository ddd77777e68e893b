package lang

import "fmt"

// TypeCheck walks expr rejecting the violations named in the component
// design: a unary operator applied to something other than a scalar or
// vector, a subquery wrapped around a non-vector expression, and an
// aggregation over a non-vector expression.
func TypeCheck(expr Expr) error {
	switch e := expr.(type) {
	case *UnaryExpr:
		t := e.Expr.Type()
		if t != ValueScalar && t != ValueVector {
			return &TypeCheckError{Msg: fmt.Sprintf("unary operator requires a scalar or vector operand, got %s", t)}
		}
		return TypeCheck(e.Expr)
	case *SubqueryExpr:
		if e.Expr.Type() != ValueVector {
			return &TypeCheckError{Msg: fmt.Sprintf("subquery requires a vector operand, got %s", e.Expr.Type())}
		}
		return TypeCheck(e.Expr)
	case *BinaryExpr:
		if err := TypeCheck(e.Left); err != nil {
			return err
		}
		return TypeCheck(e.Right)
	case *FunctionCall:
		for _, arg := range e.Args {
			if err := TypeCheck(arg); err != nil {
				return err
			}
		}
		return nil
	case *AggregateExpr:
		if e.Expr.Type() != ValueVector {
			return &TypeCheckError{Msg: fmt.Sprintf("aggregation requires a vector operand, got %s", e.Expr.Type())}
		}
		if e.Param != nil {
			if err := TypeCheck(e.Param); err != nil {
				return err
			}
		}
		return TypeCheck(e.Expr)
	case *ParenExpr:
		return TypeCheck(e.Expr)
	default:
		return nil
	}
}
