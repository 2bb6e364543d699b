package evaluator

import "math/big"

func bigFromInt64(n int64) *big.Int {
	return big.NewInt(n)
}
