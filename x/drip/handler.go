package drip

import (
	"encoding/binary"
	"strconv"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
	"github.com/iov-one/weave/x/cash"
	"github.com/tendermint/tendermint/libs/common"
)

// Classifier decides whether an address belongs to a pooling intermediary.
// The stake transfer path uses it to pick the reward reallocation rule.
type Classifier interface {
	IsPool(db weave.ReadOnlyKVStore, addr weave.Address) (bool, error)
}

// ConfClassifier classifies addresses by membership in the configured
// pool account list, maintained by the configuration owner.
type ConfClassifier struct{}

var _ Classifier = ConfClassifier{}

func (ConfClassifier) IsPool(db weave.ReadOnlyKVStore, addr weave.Address) (bool, error) {
	conf, err := loadConf(db)
	if err != nil {
		return false, err
	}
	return conf.IsPoolAccount(addr), nil
}

func RegisterQuery(qr weave.QueryRouter) {
	NewStreamBucket().Register("streams", qr)
	NewPositionBucket().Register("positions", qr)
	NewRewardLedgerBucket().Register("rewardledgers", qr)
	NewPoolBucket().Register("pools", qr)
	NewRewardTokenBucket().Register("rewardtokens", qr)
	qr.Register("/drip/claimable", &claimableQuery{ctrl: NewController(cash.NewController(cash.NewBucket()))})
}

func RegisterRoutes(r weave.Registry, auth x.Authenticator, cashctrl cash.Controller, classifier Classifier) {
	r = migration.SchemaMigratingRegistry("drip", r)

	ctrl := NewController(cashctrl)

	r.Handle(&StakeMsg{}, &stakeHandler{auth: auth, ctrl: ctrl})
	r.Handle(&UnstakeMsg{}, &unstakeHandler{auth: auth, ctrl: ctrl})
	r.Handle(&AccrueRewardsMsg{}, &accrueRewardsHandler{auth: auth, ctrl: ctrl})
	r.Handle(&ClaimRewardsMsg{}, &claimRewardsHandler{auth: auth, ctrl: ctrl})
	r.Handle(&TransferStakeMsg{}, &transferStakeHandler{
		auth:       auth,
		ctrl:       ctrl,
		classifier: classifier,
	})
	r.Handle(&WhitelistTokenMsg{}, &whitelistTokenHandler{auth: auth, tokens: NewRewardTokenBucket()})
	r.Handle(&UnwhitelistTokenMsg{}, &unwhitelistTokenHandler{auth: auth, tokens: NewRewardTokenBucket()})
	r.Handle(&UpdateConfigurationMsg{},
		gconf.NewUpdateConfigurationHandler("drip", &Configuration{}, auth, migration.CurrentAdmin))
}

type stakeHandler struct {
	auth x.Authenticator
	ctrl *Controller
}

func (h *stakeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *stakeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	if err := h.ctrl.Stake(db, weave.AsUnixTime(now), msg.Staker, msg.Amount); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{}, nil
}

func (h *stakeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*StakeMsg, error) {
	var msg StakeMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Staker) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "staker signature is required")
	}
	return &msg, nil
}

type unstakeHandler struct {
	auth x.Authenticator
	ctrl *Controller
}

func (h *unstakeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *unstakeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	power, payouts, err := h.ctrl.Unstake(db, weave.AsUnixTime(now), msg.Staker, msg.Amount, msg.Recipient)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, uint64(power))
	return &weave.DeliverResult{
		Data: data,
		Tags: shortfallTags(msg.Staker, payouts),
	}, nil
}

func (h *unstakeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*UnstakeMsg, error) {
	var msg UnstakeMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Staker) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "staker signature is required")
	}
	return &msg, nil
}

type accrueRewardsHandler struct {
	auth x.Authenticator
	ctrl *Controller
}

func (h *accrueRewardsHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *accrueRewardsHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	var payer weave.Address
	if msg.Funding != nil {
		payer = x.AnySigner(ctx, h.auth).Address()
	}
	if err := h.ctrl.Accrue(db, weave.AsUnixTime(now), msg.Ticker, msg.Funding, payer); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{}, nil
}

func (h *accrueRewardsHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*AccrueRewardsMsg, error) {
	var msg AccrueRewardsMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if msg.Funding != nil && x.AnySigner(ctx, h.auth) == nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "funding requires a signer")
	}
	switch err := h.ctrl.tokens.Has(db, []byte(msg.Ticker)); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		return nil, errors.Wrapf(ErrNotWhitelisted, "%q", msg.Ticker)
	default:
		return nil, errors.Wrap(err, "whitelist lookup")
	}
	return &msg, nil
}

type claimRewardsHandler struct {
	auth x.Authenticator
	ctrl *Controller
}

func (h *claimRewardsHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *claimRewardsHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	payouts, err := h.ctrl.Claim(db, weave.AsUnixTime(now), msg.Staker, msg.Tickers, msg.Recipient)
	if err != nil {
		return nil, err
	}
	return &weave.DeliverResult{
		Tags: shortfallTags(msg.Staker, payouts),
	}, nil
}

func (h *claimRewardsHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*ClaimRewardsMsg, error) {
	var msg ClaimRewardsMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Staker) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "staker signature is required")
	}
	return &msg, nil
}

type transferStakeHandler struct {
	auth       x.Authenticator
	ctrl       *Controller
	classifier Classifier
}

func (h *transferStakeHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *transferStakeHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}
	poolSender, err := h.classifier.IsPool(db, msg.Source)
	if err != nil {
		return nil, errors.Wrap(err, "classify source")
	}
	if err := h.ctrl.Transfer(db, weave.AsUnixTime(now), msg.Source, msg.Destination, msg.Amount, poolSender); err != nil {
		return nil, err
	}
	return &weave.DeliverResult{}, nil
}

func (h *transferStakeHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*TransferStakeMsg, error) {
	var msg TransferStakeMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	if !h.auth.HasAddress(ctx, msg.Source) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "source signature is required")
	}
	return &msg, nil
}

type whitelistTokenHandler struct {
	auth   x.Authenticator
	tokens orm.ModelBucket
}

func (h *whitelistTokenHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *whitelistTokenHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	token := RewardToken{
		Metadata: &weave.Metadata{Schema: 1},
		Ticker:   msg.Ticker,
	}
	if _, err := h.tokens.Put(db, []byte(msg.Ticker), &token); err != nil {
		return nil, errors.Wrap(err, "store token")
	}
	return &weave.DeliverResult{Data: []byte(msg.Ticker)}, nil
}

func (h *whitelistTokenHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*WhitelistTokenMsg, error) {
	var msg WhitelistTokenMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	if !h.auth.HasAddress(ctx, conf.Admin) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "admin signature missing")
	}
	switch err := h.tokens.Has(db, []byte(msg.Ticker)); {
	case err == nil:
		return nil, errors.Wrapf(errors.ErrDuplicate, "%q already whitelisted", msg.Ticker)
	case errors.ErrNotFound.Is(err):
		// Not listed yet.
	default:
		return nil, errors.Wrap(err, "whitelist lookup")
	}
	return &msg, nil
}

type unwhitelistTokenHandler struct {
	auth   x.Authenticator
	tokens orm.ModelBucket
}

func (h *unwhitelistTokenHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: 0}, nil
}

func (h *unwhitelistTokenHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	// Existing streams of this ticker keep vesting. Only new accruals are
	// blocked.
	if err := h.tokens.Delete(db, []byte(msg.Ticker)); err != nil {
		return nil, errors.Wrap(err, "delete token")
	}
	return &weave.DeliverResult{}, nil
}

func (h *unwhitelistTokenHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*UnwhitelistTokenMsg, error) {
	var msg UnwhitelistTokenMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	if !h.auth.HasAddress(ctx, conf.Admin) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "admin signature missing")
	}
	if err := h.tokens.Has(db, []byte(msg.Ticker)); err != nil {
		return nil, errors.Wrapf(err, "%q", msg.Ticker)
	}
	return &msg, nil
}

// shortfallTags reports claims that could not be fully paid, so that
// clients can watch for deferred rewards.
func shortfallTags(staker weave.Address, payouts []Payout) []common.KVPair {
	var tags []common.KVPair
	for _, p := range payouts {
		if p.Shortfall == 0 {
			continue
		}
		tags = append(tags, common.KVPair{
			Key:   []byte("drip:shortfall:" + p.Ticker),
			Value: []byte(staker.String() + ":" + strconv.FormatInt(p.Shortfall, 10)),
		})
	}
	return tags
}

// claimableQuery projects the claimable reward amount for one user and
// ticker. The query data is 8 bytes of big endian unix seconds to project
// to, followed by the user address and the ticker.
type claimableQuery struct {
	ctrl *Controller
}

var _ weave.QueryHandler = (*claimableQuery)(nil)

func (q *claimableQuery) Query(db weave.ReadOnlyKVStore, mod string, data []byte) ([]weave.Model, error) {
	if len(data) < 8+weave.AddressLength+3 {
		return nil, errors.Wrap(errors.ErrInput, "malformed query data")
	}
	now := weave.UnixTime(binary.BigEndian.Uint64(data[:8]))
	addr := weave.Address(data[8 : 8+weave.AddressLength])
	ticker := string(data[8+weave.AddressLength:])
	units, err := q.ctrl.ClaimableRewards(db, now, addr, ticker)
	if err != nil {
		return nil, err
	}
	claimable := asCoin(units, ticker)
	raw, err := claimable.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal claimable")
	}
	return []weave.Model{{Key: data, Value: raw}}, nil
}
