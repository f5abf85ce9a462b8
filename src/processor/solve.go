// solve.go
package processor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ridgeSolve 求解 (XᵀX + diag(penalty)) β = Xᵀy
// 条件数过大时 gonum 仍给出解，只在结果非有限时报错
func ridgeSolve(x *mat.Dense, y []float64, penalty []float64) ([]float64, error) {
	_, p := x.Dims()
	if len(penalty) != p {
		return nil, fmt.Errorf("penalty length %d, want %d", len(penalty), p)
	}

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 0; j < p; j++ {
		gram.Set(j, j, gram.At(j, j)+penalty[j])
	}

	var rhs mat.VecDense
	rhs.MulVec(x.T(), mat.NewVecDense(len(y), y))

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("最小二乘求解失败: %w", err)
		}
	}

	out := make([]float64, p)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("最小二乘求解失败: 系数非有限值")
		}
	}
	return out, nil
}
