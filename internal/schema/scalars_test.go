package schema

import (
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
)

func TestBigInt_Serialize(t *testing.T) {
	assert.Equal(t, "42", BigInt.Serialize("42"))
	assert.Equal(t, "42", BigInt.Serialize(int64(42)))
	assert.Equal(t, "-7", BigInt.Serialize(-7))
	assert.Equal(t, "18446744073709551615", BigInt.Serialize(uint64(18446744073709551615)))
	assert.Equal(t, "9007199254740993", BigInt.Serialize("9007199254740993"))

	assert.Equal(t, "3", BigInt.Serialize(float64(3)))
	assert.Nil(t, BigInt.Serialize(3.5))
	assert.Nil(t, BigInt.Serialize("not a number"))
	assert.Nil(t, BigInt.Serialize(true))
}

func TestBigInt_ParseLiteral(t *testing.T) {
	assert.Equal(t, "42", BigInt.ParseLiteral(&ast.IntValue{Value: "42"}))
	assert.Equal(t, "42", BigInt.ParseLiteral(&ast.StringValue{Value: "42"}))
	assert.Nil(t, BigInt.ParseLiteral(&ast.BooleanValue{Value: true}))
}
