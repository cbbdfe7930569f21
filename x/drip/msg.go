package drip

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &StakeMsg{}, migration.NoModification)
	migration.MustRegister(1, &UnstakeMsg{}, migration.NoModification)
	migration.MustRegister(1, &AccrueRewardsMsg{}, migration.NoModification)
	migration.MustRegister(1, &ClaimRewardsMsg{}, migration.NoModification)
	migration.MustRegister(1, &TransferStakeMsg{}, migration.NoModification)
	migration.MustRegister(1, &WhitelistTokenMsg{}, migration.NoModification)
	migration.MustRegister(1, &UnwhitelistTokenMsg{}, migration.NoModification)
	migration.MustRegister(1, &UpdateConfigurationMsg{}, migration.NoModification)
}

// validatePositiveAmount ensures a coin is well formed and greater than
// zero.
func validatePositiveAmount(amount coin.Coin) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return errors.Wrap(errors.ErrAmount, "must be greater than zero")
	}
	return nil
}

var _ weave.Msg = (*StakeMsg)(nil)

func (StakeMsg) Path() string {
	return "drip/stake"
}

func (m *StakeMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Staker", m.Staker.Validate())
	errs = errors.AppendField(errs, "Amount", validatePositiveAmount(m.Amount))
	return errs
}

var _ weave.Msg = (*UnstakeMsg)(nil)

func (UnstakeMsg) Path() string {
	return "drip/unstake"
}

func (m *UnstakeMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Staker", m.Staker.Validate())
	errs = errors.AppendField(errs, "Amount", validatePositiveAmount(m.Amount))
	errs = errors.AppendField(errs, "Recipient", m.Recipient.Validate())
	return errs
}

var _ weave.Msg = (*AccrueRewardsMsg)(nil)

func (AccrueRewardsMsg) Path() string {
	return "drip/accrue_rewards"
}

func (m *AccrueRewardsMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if !coin.IsCC(m.Ticker) {
		errs = errors.AppendField(errs, "Ticker",
			errors.Wrap(errors.ErrCurrency, "not a valid ticker"))
	}
	if m.Funding != nil {
		errs = errors.AppendField(errs, "Funding", validatePositiveAmount(*m.Funding))
		if m.Funding.Ticker != m.Ticker {
			errs = errors.AppendField(errs, "Funding",
				errors.Wrap(errors.ErrCurrency, "must match the accrued ticker"))
		}
	}
	return errs
}

var _ weave.Msg = (*ClaimRewardsMsg)(nil)

func (ClaimRewardsMsg) Path() string {
	return "drip/claim_rewards"
}

func (m *ClaimRewardsMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Staker", m.Staker.Validate())
	errs = errors.AppendField(errs, "Recipient", m.Recipient.Validate())
	for _, t := range m.Tickers {
		if !coin.IsCC(t) {
			errs = errors.AppendField(errs, "Tickers",
				errors.Wrapf(errors.ErrCurrency, "not a valid ticker: %q", t))
		}
	}
	return errs
}

var _ weave.Msg = (*TransferStakeMsg)(nil)

func (TransferStakeMsg) Path() string {
	return "drip/transfer_stake"
}

func (m *TransferStakeMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "Source", m.Source.Validate())
	errs = errors.AppendField(errs, "Destination", m.Destination.Validate())
	errs = errors.AppendField(errs, "Amount", validatePositiveAmount(m.Amount))
	if m.Source.Equals(m.Destination) {
		errs = errors.AppendField(errs, "Destination",
			errors.Wrap(errors.ErrInput, "same as the source"))
	}
	return errs
}

var _ weave.Msg = (*WhitelistTokenMsg)(nil)

func (WhitelistTokenMsg) Path() string {
	return "drip/whitelist_token"
}

func (m *WhitelistTokenMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if !coin.IsCC(m.Ticker) {
		errs = errors.AppendField(errs, "Ticker",
			errors.Wrap(errors.ErrCurrency, "not a valid ticker"))
	}
	return errs
}

var _ weave.Msg = (*UnwhitelistTokenMsg)(nil)

func (UnwhitelistTokenMsg) Path() string {
	return "drip/unwhitelist_token"
}

func (m *UnwhitelistTokenMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if !coin.IsCC(m.Ticker) {
		errs = errors.AppendField(errs, "Ticker",
			errors.Wrap(errors.ErrCurrency, "not a valid ticker"))
	}
	return errs
}

var _ weave.Msg = (*UpdateConfigurationMsg)(nil)

func (UpdateConfigurationMsg) Path() string {
	return "drip/update_configuration"
}

func (m *UpdateConfigurationMsg) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if m.Patch == nil {
		errs = errors.AppendField(errs, "Patch", errors.ErrEmpty)
	}
	return errs
}
