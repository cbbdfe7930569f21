package drip

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &Configuration{}, migration.NoModification)
}

var _ orm.Model = (*Configuration)(nil)

func (c *Configuration) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Metadata", c.Metadata.Validate())
	errs = errors.AppendField(errs, "Owner", c.Owner.Validate())
	errs = errors.AppendField(errs, "Admin", c.Admin.Validate())
	if !coin.IsCC(c.PrincipalTicker) {
		errs = errors.AppendField(errs, "PrincipalTicker",
			errors.Wrap(errors.ErrCurrency, "not a valid ticker"))
	}
	if c.VestingDuration <= 0 {
		errs = errors.AppendField(errs, "VestingDuration",
			errors.Wrap(errors.ErrInput, "must be greater than zero"))
	}
	if c.StakeFeeBps > 10000 {
		errs = errors.AppendField(errs, "StakeFeeBps",
			errors.Wrap(errors.ErrInput, "must not exceed 10000"))
	}
	if c.StakeFeeBps > 0 {
		errs = errors.AppendField(errs, "FeeCollector", c.FeeCollector.Validate())
	}
	if c.MinReward < 0 {
		errs = errors.AppendField(errs, "MinReward",
			errors.Wrap(errors.ErrAmount, "must not be negative"))
	}
	if c.PowerUnit <= 0 {
		errs = errors.AppendField(errs, "PowerUnit",
			errors.Wrap(errors.ErrInput, "must be greater than zero"))
	}
	for i, a := range c.PoolAccounts {
		if err := a.Validate(); err != nil {
			errs = errors.AppendField(errs, "PoolAccounts", errors.Wrapf(err, "account %d", i))
		}
	}
	return errs
}

// IsPoolAccount returns true if given address is classified as a pooling
// intermediary by this configuration.
func (c Configuration) IsPoolAccount(addr weave.Address) bool {
	for _, a := range c.PoolAccounts {
		if a.Equals(addr) {
			return true
		}
	}
	return false
}

func loadConf(db gconf.ReadStore) (Configuration, error) {
	var conf Configuration
	if err := gconf.Load(db, "drip", &conf); err != nil {
		return conf, errors.Wrap(err, "load configuration")
	}
	return conf, nil
}
