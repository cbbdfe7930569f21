package drip

import (
	"math/big"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Stream{}, migration.NoModification)
	migration.MustRegister(1, &Position{}, migration.NoModification)
	migration.MustRegister(1, &RewardLedger{}, migration.NoModification)
	migration.MustRegister(1, &Pool{}, migration.NoModification)
	migration.MustRegister(1, &RewardToken{}, migration.NoModification)
}

var _ orm.Model = (*Stream)(nil)

func (m *Stream) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if m.Ticker == "" {
		errs = errors.AppendField(errs, "Ticker", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "WindowStart", m.WindowStart.Validate())
	errs = errors.AppendField(errs, "WindowEnd", m.WindowEnd.Validate())
	if m.WindowEnd < m.WindowStart {
		errs = errors.AppendField(errs, "WindowEnd",
			errors.Wrap(errors.ErrInput, "cannot end before it starts"))
	}
	errs = errors.AppendField(errs, "LastCheckpoint", m.LastCheckpoint.Validate())
	if m.WindowTotal < 0 {
		errs = errors.AppendField(errs, "WindowTotal",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	if m.AccountedReserve < 0 {
		errs = errors.AppendField(errs, "AccountedReserve",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	return errs
}

// Acc returns the reward per share accumulator as a big integer. The
// returned value is owned by the caller.
func (m *Stream) Acc() *big.Int {
	return new(big.Int).SetBytes(m.RewardPerShare)
}

// SetAcc stores the reward per share accumulator. Negative values are not
// representable and must never be passed.
func (m *Stream) SetAcc(acc *big.Int) {
	m.RewardPerShare = acc.Bytes()
}

// NewStreamBucket returns a bucket for streams, keyed by ticker.
func NewStreamBucket() orm.ModelBucket {
	b := orm.NewModelBucket("stream", &Stream{})
	return migration.NewModelBucket("drip", b)
}

var _ orm.Model = (*Position)(nil)

func (m *Position) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Address", m.Address.Validate())
	if m.Shares < 0 {
		errs = errors.AppendField(errs, "Shares",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	errs = errors.AppendField(errs, "StakeStart", m.StakeStart.Validate())
	if (m.Shares == 0) != (m.StakeStart == 0) {
		errs = errors.AppendField(errs, "StakeStart",
			errors.Wrap(errors.ErrState, "must be zero exactly when shares are zero"))
	}
	return errs
}

// NewPositionBucket returns a bucket for positions, keyed by the staker
// address.
func NewPositionBucket() orm.ModelBucket {
	b := orm.NewModelBucket("position", &Position{})
	return migration.NewModelBucket("drip", b)
}

var _ orm.Model = (*RewardLedger)(nil)

func (m *RewardLedger) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Address", m.Address.Validate())
	if m.Ticker == "" {
		errs = errors.AppendField(errs, "Ticker", errors.ErrEmpty)
	}
	if m.Pending < 0 {
		errs = errors.AppendField(errs, "Pending",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	return errs
}

// Debt returns the reward debt as a big integer. The returned value is
// owned by the caller.
func (m *RewardLedger) Debt() *big.Int {
	return new(big.Int).SetBytes(m.RewardDebt)
}

func (m *RewardLedger) SetDebt(debt *big.Int) {
	m.RewardDebt = debt.Bytes()
}

// NewRewardLedgerBucket returns a bucket for reward ledgers, keyed by the
// staker address followed by the reward ticker.
func NewRewardLedgerBucket() orm.ModelBucket {
	b := orm.NewModelBucket("rewledger", &RewardLedger{})
	return migration.NewModelBucket("drip", b)
}

// ledgerKey is the composite reward ledger key.
func ledgerKey(addr weave.Address, ticker string) []byte {
	key := make([]byte, 0, len(addr)+len(ticker))
	key = append(key, addr...)
	return append(key, ticker...)
}

var _ orm.Model = (*Pool)(nil)

func (m *Pool) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if m.TotalShares < 0 {
		errs = errors.AppendField(errs, "TotalShares",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	return errs
}

// poolKey is the key of the singleton pool instance.
var poolKey = []byte("drip")

// NewPoolBucket returns a bucket holding the singleton pool aggregate.
func NewPoolBucket() orm.ModelBucket {
	b := orm.NewModelBucket("pool", &Pool{})
	return migration.NewModelBucket("drip", b)
}

var _ orm.Model = (*RewardToken)(nil)

func (m *RewardToken) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if m.Ticker == "" {
		errs = errors.AppendField(errs, "Ticker", errors.ErrEmpty)
	}
	return errs
}

// NewRewardTokenBucket returns a bucket for the reward token whitelist,
// keyed by ticker.
func NewRewardTokenBucket() orm.ModelBucket {
	b := orm.NewModelBucket("rewtoken", &RewardToken{})
	return migration.NewModelBucket("drip", b)
}
