package schema

import (
	"fmt"
	"math/big"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// BigInt represents 64-bit protocol integers, whose range exceeds the
// 32-bit GraphQL Int. Values are carried as decimal strings on the wire,
// matching the canonical proto JSON encoding of 64-bit fields.
var BigInt = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "BigInt",
	Description: "An arbitrary-precision integer serialized as a decimal string.",
	Serialize:   coerceBigInt,
	ParseValue:  coerceBigInt,
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			return v.Value
		case *ast.StringValue:
			return v.Value
		default:
			return nil
		}
	},
})

// coerceBigInt normalizes an incoming value to a decimal string, or nil when
// the value is not an integer.
func coerceBigInt(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if _, ok := new(big.Int).SetString(v, 10); !ok {
			return nil
		}
		return v
	case int:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	case float64:
		i, acc := big.NewFloat(v).Int(nil)
		if acc != big.Exact {
			return nil // fractional values do not round to an integer
		}
		return i.String()
	default:
		return nil
	}
}

// builtinTypes are pre-registered in every schema-construction context so
// scalar references resolve like any other name.
func builtinTypes() map[string]graphql.Type {
	return map[string]graphql.Type{
		"Int":     graphql.Int,
		"Float":   graphql.Float,
		"String":  graphql.String,
		"Boolean": graphql.Boolean,
		"BigInt":  BigInt,
	}
}
