package drip

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestWeightedStart(t *testing.T) {
	const day = 86400

	cases := map[string]struct {
		Now    weave.UnixTime
		Shares int64
		Start  weave.UnixTime
		Added  int64
		Want   weave.UnixTime
	}{
		"first stake starts now": {
			Now: 5000, Shares: 0, Start: 0, Added: 100,
			Want: 5000,
		},
		"doubling the stake halves the age": {
			Now: 1000 + day, Shares: 100, Start: 1000, Added: 100,
			Want: 1000 + day - day/2,
		},
		"tiny top up barely moves the age": {
			Now: 1000 + day, Shares: 1000000, Start: 1000, Added: 1,
			Want: 1000 + day - 86399,
		},
		"zero elapsed stays now": {
			Now: 1000, Shares: 100, Start: 1000, Added: 50,
			Want: 1000,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.Want, weightedStart(tc.Now, tc.Shares, tc.Start, tc.Added))
		})
	}
}

// Adding to a position must preserve the accrued share seconds exactly, up
// to rounding. Staking more must never manufacture voting power.
func TestWeightedStartPreservesPower(t *testing.T) {
	const day = 86400
	var (
		now    = weave.UnixTime(10 * day)
		start  = weave.UnixTime(3 * day)
		shares = int64(700 * coin.FracUnit)
		added  = int64(155 * coin.FracUnit)
	)
	oldSeconds := shares * int64(now-start)

	newStart := weightedStart(now, shares, start, added)
	newSeconds := (shares + added) * int64(now-newStart)

	if newSeconds > oldSeconds {
		t.Fatalf("staking increased share seconds: %d > %d", newSeconds, oldSeconds)
	}
	if oldSeconds-newSeconds >= shares+added {
		t.Fatalf("share seconds drifted more than rounding allows: %d", oldSeconds-newSeconds)
	}
}

func TestSurvivorStart(t *testing.T) {
	const day = 86400

	cases := map[string]struct {
		Now     weave.UnixTime
		Shares  int64
		Start   weave.UnixTime
		Removed int64
		Want    weave.UnixTime
	}{
		"full exit resets the age": {
			Now: 10 * day, Shares: 100, Start: 3 * day, Removed: 100,
			Want: 0,
		},
		"removing a quarter keeps three quarters of the age": {
			Now: 2 * day, Shares: 1000, Start: day, Removed: 250,
			Want: 2*day - (day*3)/4,
		},
		"removing everything but one share": {
			Now: 2 * day, Shares: 1000, Start: day, Removed: 999,
			Want: 2*day - day/1000,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.Want, survivorStart(tc.Now, tc.Shares, tc.Start, tc.Removed))
		})
	}
}

// A partial exit of fraction f must leave (1-f)^2 of the voting power.
func TestSurvivorPowerIsQuadratic(t *testing.T) {
	const day = 86400
	var (
		now     = weave.UnixTime(9 * day)
		start   = weave.UnixTime(day)
		shares  = int64(1000 * coin.FracUnit)
		removed = shares / 4
		unit    = weave.UnixDuration(day)
	)
	before := votingPower(shares, start, now, unit)
	assert.Equal(t, int64(8000), before)

	newStart := survivorStart(now, shares, start, removed)
	after := votingPower(shares-removed, newStart, now, unit)
	// 8000 * (3/4)^2 = 4500
	assert.Equal(t, int64(4500), after)
}

func TestVotingPower(t *testing.T) {
	const day = 86400

	cases := map[string]struct {
		Shares int64
		Start  weave.UnixTime
		Now    weave.UnixTime
		Unit   weave.UnixDuration
		Want   int64
	}{
		"no shares no power": {
			Shares: 0, Start: day, Now: 5 * day, Unit: day,
			Want: 0,
		},
		"zero start no power": {
			Shares: 100 * coin.FracUnit, Start: 0, Now: 5 * day, Unit: day,
			Want: 0,
		},
		"sub period age rounds to zero": {
			Shares: 100 * coin.FracUnit, Start: day, Now: 2*day - 1, Unit: day,
			Want: 0,
		},
		"two full periods": {
			Shares: 5 * coin.FracUnit, Start: day, Now: 3*day + 600, Unit: day,
			Want: 10,
		},
		"fractional shares count proportionally": {
			Shares: coin.FracUnit / 2, Start: day, Now: 3 * day, Unit: day,
			Want: 1,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.Want, votingPower(tc.Shares, tc.Start, tc.Now, tc.Unit))
		})
	}
}
