package lang

import "fmt"

// funcSig is a function's parse-time signature: enough to derive its
// ValueType and validate its argument count. The actual evaluation
// closures live in the evaluator's function table (internal/eval), built
// once and injected rather than looked up through a global registry.
type funcSig struct {
	argTypes []ValueType
	retType  ValueType
}

var funcSigs = map[string]funcSig{
	"time":        {argTypes: nil, retType: ValueScalar},
	"rate":        {argTypes: []ValueType{ValueMatrix}, retType: ValueVector},
	"increase":    {argTypes: []ValueType{ValueMatrix}, retType: ValueVector},
	"delta":       {argTypes: []ValueType{ValueMatrix}, retType: ValueVector},
	"abs":         {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"ceil":        {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"floor":       {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"round":       {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"sort":        {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"sort_desc":   {argTypes: []ValueType{ValueVector}, retType: ValueVector},
	"clamp_min":   {argTypes: []ValueType{ValueVector, ValueScalar}, retType: ValueVector},
	"clamp_max":   {argTypes: []ValueType{ValueVector, ValueScalar}, retType: ValueVector},
	"vector":      {argTypes: []ValueType{ValueScalar}, retType: ValueVector},
	"scalar":      {argTypes: []ValueType{ValueVector}, retType: ValueScalar},
}

// functionReturnType looks up name's derived ValueType for the parser to
// attach to a FunctionCall node. Unknown functions are a parse-time error.
func functionReturnType(name string) (ValueType, error) {
	sig, ok := funcSigs[name]
	if !ok {
		return ValueNone, fmt.Errorf("unknown function %q", name)
	}
	return sig.retType, nil
}

// FunctionArgTypes exposes a function's expected argument types so the
// evaluator can validate calls without duplicating this table.
func FunctionArgTypes(name string) ([]ValueType, bool) {
	sig, ok := funcSigs[name]
	if !ok {
		return nil, false
	}
	return sig.argTypes, true
}

// KnownFunctions lists every function name the parser recognizes.
func KnownFunctions() []string {
	names := make([]string, 0, len(funcSigs))
	for name := range funcSigs {
		names = append(names, name)
	}
	return names
}
