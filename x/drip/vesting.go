package drip

import (
	"math/big"

	"github.com/iov-one/weave"
)

// sharePrecision scales the reward per share accumulator so that floor
// division leaves at most a sub fractional unit of dust per settlement.
var sharePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// vestedSince returns the amount of a linear stream that vested between
// the last checkpoint and current time, together with the new checkpoint.
// A stream that was never opened (zero start or end) vests nothing and
// keeps its checkpoint. Division is floor, so a stream can only ever under
// pay by dust, never over pay.
func vestedSince(total int64, start, end, last, current weave.UnixTime) (int64, weave.UnixTime) {
	if start == 0 || end == 0 {
		return 0, last
	}
	from := last
	if start > from {
		from = start
	}
	to := current
	if end < to {
		to = end
	}
	if to <= from {
		return 0, last
	}
	if total == 0 {
		return 0, to
	}
	v := big.NewInt(total)
	v.Mul(v, big.NewInt(int64(to-from)))
	v.Div(v, big.NewInt(int64(end-start)))
	return v.Int64(), to
}

// unvested returns the part of a stream total that did not vest yet,
// evaluated at current time against the stream checkpoint. It is used to
// carry a remainder into a replacement window, so the checkpoint and not
// the wall clock decides how much was already distributed. A window that
// closed while the checkpoint never moved still holds its entire total.
func unvested(total int64, start, end, last, current weave.UnixTime) int64 {
	if current < start {
		return total
	}
	if current >= end {
		if last <= start {
			return total
		}
		if last >= end {
			return 0
		}
		rem := big.NewInt(total)
		rem.Mul(rem, big.NewInt(int64(end-last)))
		rem.Div(rem, big.NewInt(int64(end-start)))
		return rem.Int64()
	}
	effective := last
	if current < effective {
		effective = current
	}
	if effective <= start {
		return total
	}
	v := big.NewInt(total)
	v.Mul(v, big.NewInt(int64(effective-start)))
	v.Div(v, big.NewInt(int64(end-start)))
	return total - v.Int64()
}

// proportionalClaim returns the part of a pool that belongs to balance out
// of total. Any zero input claims nothing.
func proportionalClaim(balance, total, pool int64) int64 {
	if balance <= 0 || total <= 0 || pool <= 0 {
		return 0
	}
	v := big.NewInt(pool)
	v.Mul(v, big.NewInt(balance))
	v.Div(v, big.NewInt(total))
	return v.Int64()
}
