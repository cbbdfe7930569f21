package drip

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
)

// Initializer fulfils the Initializer interface to load data from the
// genesis file.
type Initializer struct{}

var _ weave.Initializer = (*Initializer)(nil)

// FromGenesis will parse initial configuration and reward token whitelist
// from genesis and save it in the database.
func (*Initializer) FromGenesis(opts weave.Options, params weave.GenesisParams, db weave.KVStore) error {
	conf := Configuration{
		Metadata: &weave.Metadata{Schema: 1},
	}
	switch err := gconf.InitConfig(db, opts, "drip", &conf); {
	default:
		// All good.
	case errors.ErrNotFound.Is(err):
		return nil
	case err != nil:
		return errors.Wrap(err, "cannot initialize gconf based configuration")
	}

	var tickers []string
	if err := opts.ReadOptions("rewardtoken", &tickers); err != nil {
		return err
	}
	b := NewRewardTokenBucket()
	for i, t := range tickers {
		token := RewardToken{
			Metadata: &weave.Metadata{Schema: 1},
			Ticker:   t,
		}
		if err := token.Validate(); err != nil {
			return errors.Wrapf(err, "token %d is invalid", i)
		}
		if _, err := b.Put(db, []byte(t), &token); err != nil {
			return errors.Wrapf(err, "store token %d", i)
		}
	}
	return nil
}
