package drip

import (
	"github.com/iov-one/weave/errors"
)

var (
	// ErrNotWhitelisted is returned when a reward operation references a
	// ticker that was not whitelisted for accrual.
	ErrNotWhitelisted = errors.Register(1200, "ticker not whitelisted")

	// ErrRewardDust is returned when the unaccounted reward balance is
	// below the configured dust floor and not worth opening a window for.
	ErrRewardDust = errors.Register(1201, "reward amount below dust floor")
)
