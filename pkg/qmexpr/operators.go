package qmexpr

import "github.com/fj1981/modelsql/pkg/qmmodel"

// Builder functions compose BinaryOp nodes. They take qmmodel.Expression
// directly so callers can mix ColumnName/SqlText/PyValue/nested BinaryOp
// freely, the way the underlying query language lets any expression
// nest inside any other.

func Eq(a, b qmmodel.Expression) BinaryOp   { return Binary(OpEq, a, b) }
func Neq(a, b qmmodel.Expression) BinaryOp  { return Binary(OpNeq, a, b) }
func Lt(a, b qmmodel.Expression) BinaryOp   { return Binary(OpLt, a, b) }
func Lte(a, b qmmodel.Expression) BinaryOp  { return Binary(OpLte, a, b) }
func Gt(a, b qmmodel.Expression) BinaryOp   { return Binary(OpGt, a, b) }
func Gte(a, b qmmodel.Expression) BinaryOp  { return Binary(OpGte, a, b) }
func Add(a, b qmmodel.Expression) BinaryOp  { return Binary(OpAdd, a, b) }
func Sub(a, b qmmodel.Expression) BinaryOp  { return Binary(OpSub, a, b) }
func Mul(a, b qmmodel.Expression) BinaryOp  { return Binary(OpMul, a, b) }
func Div(a, b qmmodel.Expression) BinaryOp  { return Binary(OpDiv, a, b) }
func Mod(a, b qmmodel.Expression) BinaryOp  { return Binary(OpMod, a, b) }
func Like(a, b qmmodel.Expression) BinaryOp { return Binary(OpLike, a, b) }

// And folds a variadic list of conditions with OpAnd. Fewer than two
// operands is rejected by the caller's builder layer, not here — this
// package only assembles nodes.
func And(exprs ...qmmodel.Expression) BinaryOp {
	return foldBinary(OpAnd, exprs)
}

func Or(exprs ...qmmodel.Expression) BinaryOp {
	return foldBinary(OpOr, exprs)
}

func foldBinary(op Op, exprs []qmmodel.Expression) BinaryOp {
	if len(exprs) == 0 {
		return BinaryOp{Operator: op}
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = Binary(op, acc, e)
	}
	if bo, ok := acc.(BinaryOp); ok {
		return bo
	}
	// Single-operand fold: wrap so callers always get a BinaryOp back.
	return Binary(op, acc, acc)
}

// Not negates a boolean expression using the NOT-pushdown representation
// understood by the preprocessor: NOT(eq) becomes neq, NOT(lt) becomes
// gte, and so on, rather than carrying a separate unary NOT node.
func Not(e qmmodel.Expression) qmmodel.Expression {
	bo, ok := e.(BinaryOp)
	if !ok {
		return Binary(OpEq, e, Value(BoolLiteral(false))) // opaque operand: NOT e as e = FALSE
	}
	switch bo.Operator {
	case OpEq:
		bo.Operator = OpNeq
	case OpNeq:
		bo.Operator = OpEq
	case OpLt:
		bo.Operator = OpGte
	case OpLte:
		bo.Operator = OpGt
	case OpGt:
		bo.Operator = OpLte
	case OpGte:
		bo.Operator = OpLt
	case OpIn:
		bo.Operator = OpNotIn
	case OpNotIn:
		bo.Operator = OpIn
	case OpLike:
		bo.Operator = OpNotLike
	case OpNotLike:
		bo.Operator = OpLike
	case OpIsNull:
		bo.Operator = OpNotNull
	case OpNotNull:
		bo.Operator = OpIsNull
	case OpAnd:
		// De Morgan: NOT(a AND b) = NOT(a) OR NOT(b)
		return Binary(OpOr, Not(bo.Left), Not(bo.Right))
	case OpOr:
		return Binary(OpAnd, Not(bo.Left), Not(bo.Right))
	}
	return bo
}

func IsNull(e qmmodel.Expression) BinaryOp    { return Unary(OpIsNull, e) }
func IsNotNull(e qmmodel.Expression) BinaryOp { return Unary(OpNotNull, e) }

func In(e qmmodel.Expression, values Literal) BinaryOp {
	return Binary(OpIn, e, Value(values))
}
