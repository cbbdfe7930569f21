package drip

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestVestedSince(t *testing.T) {
	cases := map[string]struct {
		Total    int64
		Start    weave.UnixTime
		End      weave.UnixTime
		Last     weave.UnixTime
		Current  weave.UnixTime
		WantAmt  int64
		WantLast weave.UnixTime
	}{
		"stream never opened": {
			Total: 1000, Start: 0, End: 0, Last: 0, Current: 500,
			WantAmt: 0, WantLast: 0,
		},
		"nothing elapsed since last checkpoint": {
			Total: 1000, Start: 100, End: 200, Last: 150, Current: 150,
			WantAmt: 0, WantLast: 150,
		},
		"current before the window": {
			Total: 1000, Start: 100, End: 200, Last: 0, Current: 50,
			WantAmt: 0, WantLast: 0,
		},
		"half of the window vests half of the total": {
			Total: 1000, Start: 100, End: 200, Last: 100, Current: 150,
			WantAmt: 500, WantLast: 150,
		},
		"vesting is capped at the window end": {
			Total: 1000, Start: 100, End: 200, Last: 100, Current: 999,
			WantAmt: 1000, WantLast: 200,
		},
		"vesting continues from the checkpoint": {
			Total: 1000, Start: 100, End: 200, Last: 150, Current: 175,
			WantAmt: 250, WantLast: 175,
		},
		"checkpoint before the window start is clamped": {
			Total: 1000, Start: 100, End: 200, Last: 20, Current: 150,
			WantAmt: 500, WantLast: 150,
		},
		"zero total still advances the checkpoint": {
			Total: 0, Start: 100, End: 200, Last: 100, Current: 150,
			WantAmt: 0, WantLast: 150,
		},
		"division rounds down": {
			Total: 10, Start: 100, End: 103, Last: 100, Current: 101,
			WantAmt: 3, WantLast: 101,
		},
		"fully vested window is inert": {
			Total: 1000, Start: 100, End: 200, Last: 200, Current: 500,
			WantAmt: 0, WantLast: 200,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			amt, last := vestedSince(tc.Total, tc.Start, tc.End, tc.Last, tc.Current)
			assert.Equal(t, tc.WantAmt, amt)
			assert.Equal(t, tc.WantLast, last)
		})
	}
}

func TestUnvested(t *testing.T) {
	cases := map[string]struct {
		Total   int64
		Start   weave.UnixTime
		End     weave.UnixTime
		Last    weave.UnixTime
		Current weave.UnixTime
		Want    int64
	}{
		"window not yet started": {
			Total: 1000, Start: 100, End: 200, Last: 0, Current: 50,
			Want: 1000,
		},
		"window closed but checkpoint never moved": {
			// A remainder frozen over an empty pool gap must survive the
			// window end, otherwise it would be lost.
			Total: 1000, Start: 100, End: 200, Last: 100, Current: 500,
			Want: 1000,
		},
		"window closed with a mid vest checkpoint": {
			Total: 1000, Start: 100, End: 200, Last: 150, Current: 500,
			Want: 500,
		},
		"window closed and fully vested": {
			Total: 1000, Start: 100, End: 200, Last: 200, Current: 500,
			Want: 0,
		},
		"mid window with a current checkpoint": {
			Total: 1000, Start: 100, End: 200, Last: 175, Current: 175,
			Want: 250,
		},
		"mid window with a frozen checkpoint": {
			Total: 1000, Start: 100, End: 200, Last: 125, Current: 175,
			Want: 750,
		},
		"mid window with the checkpoint at start": {
			Total: 1000, Start: 100, End: 200, Last: 100, Current: 150,
			Want: 1000,
		},
		"rounding keeps the remainder large": {
			Total: 10, Start: 0, End: 3, Last: 1, Current: 1,
			Want: 7,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.Want, unvested(tc.Total, tc.Start, tc.End, tc.Last, tc.Current))
		})
	}
}

func TestProportionalClaim(t *testing.T) {
	cases := map[string]struct {
		Balance int64
		Total   int64
		Pool    int64
		Want    int64
	}{
		"zero balance claims nothing":    {Balance: 0, Total: 100, Pool: 50, Want: 0},
		"zero total claims nothing":      {Balance: 10, Total: 0, Pool: 50, Want: 0},
		"zero pool claims nothing":       {Balance: 10, Total: 100, Pool: 0, Want: 0},
		"quarter of the pool":            {Balance: 25, Total: 100, Pool: 1000, Want: 250},
		"whole pool for the sole staker": {Balance: 7, Total: 7, Pool: 1000000, Want: 1000000},
		"division rounds down":           {Balance: 1, Total: 3, Pool: 100, Want: 33},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.Want, proportionalClaim(tc.Balance, tc.Total, tc.Pool))
		})
	}
}
