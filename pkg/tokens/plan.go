package tokens

import (
	"math/big"
	"strconv"
)

// DefaultLimit is the token budget an archive should fit in
const DefaultLimit = 950000

// DefaultSafetyMargin inflates the number of posts to drop by 10%
const DefaultSafetyMargin = 0.1

// Plan is the trim proposal for an archive over budget
type Plan struct {
	Count      int
	Limit      int
	Total      int
	Excess     int
	AvgPerPost int
	ToRemove   int
	ToKeep     int
}

// Exceeded reports whether the archive is over budget
func (p Plan) Exceeded() bool {
	return p.Count > p.Limit
}

// NewPlan computes how many of the oldest posts to drop:
//
//	excess    = count - limit
//	avg       = count / total (integer division, at least 1)
//	to_remove = ceil(excess / avg * (1 + margin))
//
// The product is computed with exact rationals so a margin of 0.1 is
// exactly 11/10. At least one post is always kept.
func NewPlan(count, total, limit int, margin float64) Plan {
	p := Plan{Count: count, Limit: limit, Total: total, ToKeep: total}
	if count <= limit || total <= 0 {
		return p
	}

	p.Excess = count - limit
	p.AvgPerPost = count / total
	if p.AvgPerPost < 1 {
		p.AvgPerPost = 1
	}

	factor, ok := new(big.Rat).SetString(strconv.FormatFloat(margin, 'f', -1, 64))
	if !ok || factor.Sign() < 0 {
		factor = new(big.Rat)
	}
	factor.Add(factor, big.NewRat(1, 1))

	r := new(big.Rat).SetFrac64(int64(p.Excess), int64(p.AvgPerPost))
	r.Mul(r, factor)

	toRemove := ceilRat(r)
	if toRemove > int64(total-1) {
		toRemove = int64(total - 1)
	}
	p.ToRemove = int(toRemove)
	p.ToKeep = total - p.ToRemove
	return p
}

func ceilRat(r *big.Rat) int64 {
	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}
