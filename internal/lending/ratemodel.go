package lending

import "math/big"

// RateParams groups the operator-controlled parameters shaping the borrow rate
// curve and the collateral bound. Rates and the optimal utilization share the
// fixed-point Scale; CollateralRatio is a plain multiplier applied to raw
// collateral amounts.
type RateParams struct {
	// CollateralRatio bounds debt: collateral * CollateralRatio >= debt.
	CollateralRatio *big.Int
	// BaseVariableBorrowRate is the annualized rate at zero utilization.
	BaseVariableBorrowRate *big.Int
	// OptimalUtilization is the kink point of the two-regime curve.
	OptimalUtilization *big.Int
	// AboveOptimalRate is the flat annualized rate applied past the kink. It
	// is also the rate the first regime interpolates towards.
	AboveOptimalRate *big.Int
	// BaseStableBorrowRate is reserved for stable-rate borrowing; it does not
	// participate in the variable rate curve.
	BaseStableBorrowRate *big.Int
}

// Clone returns a deep copy of the parameter set.
func (p RateParams) Clone() RateParams {
	return RateParams{
		CollateralRatio:        cloneInt(p.CollateralRatio),
		BaseVariableBorrowRate: cloneInt(p.BaseVariableBorrowRate),
		OptimalUtilization:     cloneInt(p.OptimalUtilization),
		AboveOptimalRate:       cloneInt(p.AboveOptimalRate),
		BaseStableBorrowRate:   cloneInt(p.BaseStableBorrowRate),
	}
}

// Utilization computes debt * Scale / collateral for a position. A position
// with debt but no collateral has no defined utilization and surfaces
// ErrNoCollateral rather than dividing by zero.
func (p RateParams) Utilization(collateral, debt *big.Int) (*big.Int, error) {
	if debt == nil || debt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if collateral == nil || collateral.Sign() == 0 {
		return nil, ErrNoCollateral
	}
	utilization := new(big.Int).Mul(debt, Scale)
	return utilization.Quo(utilization, collateral), nil
}

// BorrowRate maps a utilization value onto the annualized borrow rate.
//
// Below the kink the rate interpolates linearly from the base rate at zero
// utilization to the above-optimal rate at the kink, so the curve is
// continuous there. Past the kink the rate is flat at AboveOptimalRate.
func (p RateParams) BorrowRate(utilization *big.Int) *big.Int {
	base := cloneInt(p.BaseVariableBorrowRate)
	above := cloneInt(p.AboveOptimalRate)
	optimal := cloneInt(p.OptimalUtilization)

	if utilization == nil || utilization.Sign() == 0 {
		return base
	}
	if optimal.Sign() == 0 || utilization.Cmp(optimal) > 0 {
		return above
	}

	slope := new(big.Int).Sub(above, base)
	slope.Mul(slope, utilization)
	slope.Quo(slope, optimal)
	return base.Add(base, slope)
}

// BorrowLimit returns the maximum debt the given collateral can carry.
func (p RateParams) BorrowLimit(collateral *big.Int) *big.Int {
	return new(big.Int).Mul(cloneInt(collateral), cloneInt(p.CollateralRatio))
}
