package drip

import (
	"math/big"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
)

// weightedStart returns the new stake start time after adding shares to a
// position. The already accrued share seconds are spread over the larger
// balance, so waiting is the only way to gain voting power.
func weightedStart(now weave.UnixTime, shares int64, start weave.UnixTime, added int64) weave.UnixTime {
	if shares <= 0 {
		return now
	}
	elapsed := int64(now - start)
	if elapsed <= 0 {
		return now
	}
	e := big.NewInt(shares)
	e.Mul(e, big.NewInt(elapsed))
	e.Div(e, big.NewInt(shares+added))
	return now - weave.UnixTime(e.Int64())
}

// survivorStart returns the new stake start time after removing shares
// from a position. The elapsed age shrinks with the remaining fraction,
// which makes the surviving voting power quadratic in it. A full exit
// resets the age to zero.
func survivorStart(now weave.UnixTime, shares int64, start weave.UnixTime, removed int64) weave.UnixTime {
	remaining := shares - removed
	if remaining <= 0 {
		return 0
	}
	elapsed := int64(now - start)
	if elapsed <= 0 {
		return now
	}
	e := big.NewInt(elapsed)
	e.Mul(e, big.NewInt(remaining))
	e.Div(e, big.NewInt(shares))
	return now - weave.UnixTime(e.Int64())
}

// votingPower returns the time weighted power of a position in whole
// token units per power period. Age below a full period counts as zero,
// which makes sub period timestamp skew irrelevant.
func votingPower(shares int64, start, now weave.UnixTime, unit weave.UnixDuration) int64 {
	if shares <= 0 || start == 0 || unit <= 0 {
		return 0
	}
	elapsed := int64(now - start)
	if elapsed <= 0 {
		return 0
	}
	p := big.NewInt(shares)
	p.Mul(p, big.NewInt(elapsed/int64(unit)))
	p.Div(p, big.NewInt(coin.FracUnit))
	return p.Int64()
}
