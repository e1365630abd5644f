package market

import "github.com/holiman/uint256"

// BpsDenominator is the number of basis points in a whole.
const BpsDenominator = 10_000

// CalculateFee splits amount into the protocol fee and the net stake.
// fee = floor(amount * feeBps / 10000), so fee + net == amount exactly.
// The product is formed at 256 bits; a fee that does not fit in 64 bits or
// exceeds amount (feeBps above 10000) is ErrMathOverflow.
func CalculateFee(amount uint64, feeBps uint16) (fee, net uint64, err error) {
	f, err := mulDiv(amount, uint64(feeBps), BpsDenominator)
	if err != nil {
		return 0, 0, err
	}
	if f > amount {
		return 0, 0, ErrMathOverflow
	}
	return f, amount - f, nil
}

// CalculatePayout returns floor(stake * (winningPool + losingPool) / winningPool).
// An empty winning pool is ErrInvalidPool; an empty losing pool returns the
// stake unchanged.
func CalculatePayout(stake, winningPool, losingPool uint64) (uint64, error) {
	if winningPool == 0 {
		return 0, ErrInvalidPool
	}
	if losingPool == 0 {
		return stake, nil
	}
	total := new(uint256.Int).Add(uint256.NewInt(winningPool), uint256.NewInt(losingPool))
	return mulDivWide(uint256.NewInt(stake), total, uint256.NewInt(winningPool))
}

// CalculateProfit is the losing-pool share owed to a winning stake:
// floor(stake * losingPool / winningPool).
func CalculateProfit(stake, winningPool, losingPool uint64) (uint64, error) {
	if losingPool == 0 {
		return 0, nil
	}
	if winningPool == 0 {
		return 0, ErrInvalidPool
	}
	return mulDiv(stake, losingPool, winningPool)
}

// mulDiv computes floor(a*b/d) without intermediate overflow.
func mulDiv(a, b, d uint64) (uint64, error) {
	return mulDivWide(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
}

func mulDivWide(a, b, d *uint256.Int) (uint64, error) {
	if d.IsZero() {
		return 0, ErrInvalidPool
	}
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return 0, ErrMathOverflow
	}
	q := prod.Div(prod, d)
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrMathOverflow
	}
	return s, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, ErrMathOverflow
	}
	return p, nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
