package drip

import (
	"math"
	"math/big"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x/cash"
)

// StakeAccount is the address escrowing all staked principal. Principal is
// never commingled with reward reserves.
func StakeAccount() weave.Address {
	return weave.NewCondition("drip", "escrow", []byte("principal")).Address()
}

// RewardAccount is the address holding all reward token reserves. Funds
// sent here are inert until an accrual folds them into a vesting window.
func RewardAccount() weave.Address {
	return weave.NewCondition("drip", "reserve", []byte("rewards")).Address()
}

// asUnits converts a coin amount into fractional units, the scalar
// representation all stream math runs on.
func asUnits(c coin.Coin) (int64, error) {
	if c.Whole < 0 || c.Fractional < 0 {
		return 0, errors.Wrap(errors.ErrAmount, "must not be negative")
	}
	// The whole product can wrap past the sign bit back into positive
	// range, so a sign check on the result is not enough.
	if c.Whole > math.MaxInt64/coin.FracUnit {
		return 0, errors.Wrap(errors.ErrOverflow, "amount out of range")
	}
	units := c.Whole*coin.FracUnit + c.Fractional
	if units < 0 {
		return 0, errors.Wrap(errors.ErrOverflow, "amount out of range")
	}
	return units, nil
}

// asCoin converts fractional units back into a coin.
func asCoin(units int64, ticker string) coin.Coin {
	return coin.NewCoin(units/coin.FracUnit, units%coin.FracUnit, ticker)
}

// Payout is the result of settling and paying out a single reward stream.
// Shortfall is the part of the owed amount that could not be covered by
// the reward reserve and stays pending.
type Payout struct {
	Ticker    string
	Amount    int64
	Shortfall int64
}

// Controller orchestrates staking, reward streaming and settlement. All
// state transitions of the drip extension go through it.
type Controller struct {
	cash      cash.Controller
	streams   orm.ModelBucket
	positions orm.ModelBucket
	ledgers   orm.ModelBucket
	pools     orm.ModelBucket
	tokens    orm.ModelBucket
}

func NewController(ctrl cash.Controller) *Controller {
	return &Controller{
		cash:      ctrl,
		streams:   NewStreamBucket(),
		positions: NewPositionBucket(),
		ledgers:   NewRewardLedgerBucket(),
		pools:     NewPoolBucket(),
		tokens:    NewRewardTokenBucket(),
	}
}

// Stake escrows principal for the staker and mints shares 1:1 with the
// net amount. A configured fee is taken off the top. All streams are
// settled for the staker before the share balance changes, and a pool
// that was empty resumes vesting of any frozen remainders.
func (c *Controller) Stake(db weave.KVStore, now weave.UnixTime, staker weave.Address, amount coin.Coin) error {
	conf, err := loadConf(db)
	if err != nil {
		return err
	}
	if amount.Ticker != conf.PrincipalTicker {
		return errors.Wrapf(errors.ErrCurrency, "principal is %q", conf.PrincipalTicker)
	}
	units, err := asUnits(amount)
	if err != nil {
		return err
	}
	fee := stakeFee(units, conf.StakeFeeBps)
	net := units - fee
	if net <= 0 {
		return errors.Wrap(errors.ErrAmount, "fee consumes the entire stake")
	}

	pool, err := c.loadPool(db)
	if err != nil {
		return err
	}
	pos, err := c.loadPosition(db, staker)
	if err != nil {
		return err
	}
	if err := c.settleAll(db, now, pool, pos); err != nil {
		return err
	}
	if pool.TotalShares == 0 {
		if err := c.resumeStreams(db, now, conf.VestingDuration); err != nil {
			return err
		}
	}

	pos.StakeStart = weightedStart(now, pos.Shares, pos.StakeStart, net)
	pos.Shares += net
	pool.TotalShares += net
	if _, err := c.positions.Put(db, staker, pos); err != nil {
		return errors.Wrap(err, "store position")
	}
	if _, err := c.pools.Put(db, poolKey, pool); err != nil {
		return errors.Wrap(err, "store pool")
	}

	if fee > 0 {
		feeCoin := asCoin(fee, conf.PrincipalTicker)
		if err := cash.MoveCoins(db, c.cash, staker, conf.FeeCollector, []*coin.Coin{&feeCoin}); err != nil {
			return errors.Wrap(err, "collect fee")
		}
	}
	netCoin := asCoin(net, conf.PrincipalTicker)
	if err := cash.MoveCoins(db, c.cash, staker, StakeAccount(), []*coin.Coin{&netCoin}); err != nil {
		return errors.Wrap(err, "escrow principal")
	}
	return nil
}

// Unstake burns shares, auto claims every stream to the recipient and
// returns the escrowed principal. It returns the voting power remaining
// after the exit. A partial exit pays the quadratic voting power penalty.
func (c *Controller) Unstake(db weave.KVStore, now weave.UnixTime, staker weave.Address, amount coin.Coin, recipient weave.Address) (int64, []Payout, error) {
	conf, err := loadConf(db)
	if err != nil {
		return 0, nil, err
	}
	if amount.Ticker != conf.PrincipalTicker {
		return 0, nil, errors.Wrapf(errors.ErrCurrency, "principal is %q", conf.PrincipalTicker)
	}
	units, err := asUnits(amount)
	if err != nil {
		return 0, nil, err
	}

	pool, err := c.loadPool(db)
	if err != nil {
		return 0, nil, err
	}
	var pos Position
	if err := c.positions.One(db, staker, &pos); err != nil {
		return 0, nil, errors.Wrap(err, "get position")
	}
	if units > pos.Shares {
		return 0, nil, errors.Wrap(errors.ErrAmount, "insufficient staked balance")
	}
	if err := c.settleAll(db, now, pool, &pos); err != nil {
		return 0, nil, err
	}

	tickers, err := c.allStreamTickers(db)
	if err != nil {
		return 0, nil, err
	}
	payouts, err := c.payRewards(db, staker, tickers, recipient)
	if err != nil {
		return 0, nil, err
	}

	pos.StakeStart = survivorStart(now, pos.Shares, pos.StakeStart, units)
	pos.Shares -= units
	pool.TotalShares -= units
	if _, err := c.positions.Put(db, staker, &pos); err != nil {
		return 0, nil, errors.Wrap(err, "store position")
	}
	if _, err := c.pools.Put(db, poolKey, pool); err != nil {
		return 0, nil, errors.Wrap(err, "store pool")
	}

	principal := asCoin(units, conf.PrincipalTicker)
	if err := cash.MoveCoins(db, c.cash, StakeAccount(), recipient, []*coin.Coin{&principal}); err != nil {
		return 0, nil, errors.Wrap(err, "release principal")
	}
	power := votingPower(pos.Shares, pos.StakeStart, now, conf.PowerUnit)
	return power, payouts, nil
}

// Accrue folds the unaccounted reward balance of a ticker, together with
// the unvested remainder of any previous window, into a fresh vesting
// window starting now. An optional funding coin is pulled from the payer
// into the reward account first.
func (c *Controller) Accrue(db weave.KVStore, now weave.UnixTime, ticker string, funding *coin.Coin, payer weave.Address) error {
	conf, err := loadConf(db)
	if err != nil {
		return err
	}
	if err := c.tokens.Has(db, []byte(ticker)); err != nil {
		if errors.ErrNotFound.Is(err) {
			return errors.Wrapf(ErrNotWhitelisted, "%q", ticker)
		}
		return errors.Wrap(err, "whitelist lookup")
	}
	if funding != nil {
		if err := cash.MoveCoins(db, c.cash, payer, RewardAccount(), []*coin.Coin{funding}); err != nil {
			return errors.Wrap(err, "move funding")
		}
	}

	pool, err := c.loadPool(db)
	if err != nil {
		return err
	}
	stream, err := c.loadStream(db, ticker)
	if err != nil {
		return err
	}
	c.settleStream(stream, now, pool.TotalShares)

	bal, err := c.balanceUnits(db, RewardAccount(), ticker)
	if err != nil {
		return err
	}
	unaccounted := bal - stream.AccountedReserve
	if unaccounted <= 0 || unaccounted < conf.MinReward {
		return errors.Wrapf(ErrRewardDust, "unaccounted %d", unaccounted)
	}
	carry := unvested(stream.WindowTotal, stream.WindowStart, stream.WindowEnd, stream.LastCheckpoint, now)
	reopenWindow(stream, now, conf.VestingDuration, carry+unaccounted)
	stream.AccountedReserve += unaccounted
	if _, err := c.streams.Put(db, []byte(ticker), stream); err != nil {
		return errors.Wrap(err, "store stream")
	}
	return nil
}

// Claim settles the requested streams for the staker and pays out the
// pending rewards to the recipient. Tickers without a stream are skipped.
// A reserve shortfall reduces the payout and stays pending instead of
// failing the claim.
func (c *Controller) Claim(db weave.KVStore, now weave.UnixTime, staker weave.Address, tickers []string, recipient weave.Address) ([]Payout, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	pool, err := c.loadPool(db)
	if err != nil {
		return nil, err
	}
	pos, err := c.loadPosition(db, staker)
	if err != nil {
		return nil, err
	}
	if err := c.settleAll(db, now, pool, pos); err != nil {
		return nil, err
	}
	return c.payRewards(db, staker, tickers, recipient)
}

// Transfer moves shares between two positions through the controlled
// transfer path. A pool classified source passes the moved fraction of
// its pending entitlement along, an individual source keeps it all. Stake
// ages update as an exit for the source and a fresh stake for the
// destination.
func (c *Controller) Transfer(db weave.KVStore, now weave.UnixTime, source, destination weave.Address, amount coin.Coin, poolSender bool) error {
	conf, err := loadConf(db)
	if err != nil {
		return err
	}
	if amount.Ticker != conf.PrincipalTicker {
		return errors.Wrapf(errors.ErrCurrency, "principal is %q", conf.PrincipalTicker)
	}
	units, err := asUnits(amount)
	if err != nil {
		return err
	}

	pool, err := c.loadPool(db)
	if err != nil {
		return err
	}
	var src Position
	if err := c.positions.One(db, source, &src); err != nil {
		return errors.Wrap(err, "get source position")
	}
	if units > src.Shares {
		return errors.Wrap(errors.ErrAmount, "insufficient staked balance")
	}
	dst, err := c.loadPosition(db, destination)
	if err != nil {
		return err
	}
	dst.Address = destination
	if err := c.settleAll(db, now, pool, &src); err != nil {
		return err
	}
	if err := c.settleAll(db, now, pool, dst); err != nil {
		return err
	}

	if poolSender {
		tickers, err := c.allStreamTickers(db)
		if err != nil {
			return err
		}
		for _, t := range tickers {
			srcLedger, err := c.loadLedger(db, source, t)
			if err != nil {
				return err
			}
			moved := proportionalClaim(units, src.Shares, srcLedger.Pending)
			if moved == 0 {
				continue
			}
			dstLedger, err := c.loadLedger(db, destination, t)
			if err != nil {
				return err
			}
			srcLedger.Pending -= moved
			dstLedger.Pending += moved
			if _, err := c.ledgers.Put(db, ledgerKey(source, t), srcLedger); err != nil {
				return errors.Wrap(err, "store source ledger")
			}
			if _, err := c.ledgers.Put(db, ledgerKey(destination, t), dstLedger); err != nil {
				return errors.Wrap(err, "store destination ledger")
			}
		}
	}

	src.StakeStart = survivorStart(now, src.Shares, src.StakeStart, units)
	src.Shares -= units
	dst.StakeStart = weightedStart(now, dst.Shares, dst.StakeStart, units)
	dst.Shares += units
	if _, err := c.positions.Put(db, source, &src); err != nil {
		return errors.Wrap(err, "store source position")
	}
	if _, err := c.positions.Put(db, destination, dst); err != nil {
		return errors.Wrap(err, "store destination position")
	}
	return nil
}

// ClaimableRewards projects the amount a user could claim for a ticker as
// of now, without mutating any state.
func (c *Controller) ClaimableRewards(db weave.ReadOnlyKVStore, now weave.UnixTime, user weave.Address, ticker string) (int64, error) {
	var stream Stream
	switch err := c.streams.One(db, []byte(ticker), &stream); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		return 0, nil
	default:
		return 0, errors.Wrap(err, "get stream")
	}
	pool, err := c.loadPool(db)
	if err != nil {
		return 0, err
	}
	pos, err := c.loadPosition(db, user)
	if err != nil {
		return 0, err
	}
	ledger, err := c.loadLedger(db, user, ticker)
	if err != nil {
		return 0, err
	}
	c.settleStream(&stream, now, pool.TotalShares)
	settleUser(&stream, ledger, pos.Shares)
	return ledger.Pending, nil
}

// OutstandingRewards returns the unaccounted reward balance of a ticker,
// available for the next accrual.
func (c *Controller) OutstandingRewards(db weave.KVStore, ticker string) (int64, error) {
	bal, err := c.balanceUnits(db, RewardAccount(), ticker)
	if err != nil {
		return 0, err
	}
	var stream Stream
	switch err := c.streams.One(db, []byte(ticker), &stream); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		return bal, nil
	default:
		return 0, errors.Wrap(err, "get stream")
	}
	return bal - stream.AccountedReserve, nil
}

// VotingPower returns the current time weighted power of a user.
func (c *Controller) VotingPower(db weave.ReadOnlyKVStore, now weave.UnixTime, user weave.Address) (int64, error) {
	conf, err := loadConf(db)
	if err != nil {
		return 0, err
	}
	pos, err := c.loadPosition(db, user)
	if err != nil {
		return 0, err
	}
	return votingPower(pos.Shares, pos.StakeStart, now, conf.PowerUnit), nil
}

// settleStream advances the stream checkpoint and the reward per share
// accumulator to now. An empty pool freezes the stream, so a remainder
// survives a zero staker gap instead of vesting into nobody's share.
func (c *Controller) settleStream(stream *Stream, now weave.UnixTime, totalShares int64) {
	if totalShares <= 0 {
		return
	}
	vested, newLast := vestedSince(stream.WindowTotal, stream.WindowStart, stream.WindowEnd, stream.LastCheckpoint, now)
	if newLast == stream.LastCheckpoint {
		return
	}
	stream.LastCheckpoint = newLast
	if vested > 0 {
		acc := stream.Acc()
		delta := big.NewInt(vested)
		delta.Mul(delta, sharePrecision)
		delta.Div(delta, big.NewInt(totalShares))
		acc.Add(acc, delta)
		stream.SetAcc(acc)
	}
}

// settleUser folds the accumulator delta since the last settlement into
// the user pending amount and aligns the debt with the accumulator.
func settleUser(stream *Stream, ledger *RewardLedger, shares int64) {
	acc := stream.Acc()
	if shares > 0 {
		owed := new(big.Int).Sub(acc, ledger.Debt())
		if owed.Sign() > 0 {
			owed.Mul(owed, big.NewInt(shares))
			owed.Div(owed, sharePrecision)
			ledger.Pending += owed.Int64()
		}
	}
	ledger.SetDebt(acc)
}

// settleAll runs stream and user settlement for every known stream and
// persists the results.
func (c *Controller) settleAll(db weave.KVStore, now weave.UnixTime, pool *Pool, pos *Position) error {
	streams, err := c.allStreams(db)
	if err != nil {
		return err
	}
	for _, s := range streams {
		c.settleStream(s, now, pool.TotalShares)
		ledger, err := c.loadLedger(db, pos.Address, s.Ticker)
		if err != nil {
			return err
		}
		settleUser(s, ledger, pos.Shares)
		if _, err := c.streams.Put(db, []byte(s.Ticker), s); err != nil {
			return errors.Wrap(err, "store stream")
		}
		if _, err := c.ledgers.Put(db, ledgerKey(pos.Address, s.Ticker), ledger); err != nil {
			return errors.Wrap(err, "store ledger")
		}
	}
	return nil
}

// resumeStreams reopens a fresh window for every stream still holding an
// unvested remainder. It must run when the pool transitions from zero to
// positive shares. The first staker after a gap earns the whole remainder
// over a full window and nothing retroactively.
func (c *Controller) resumeStreams(db weave.KVStore, now weave.UnixTime, dur weave.UnixDuration) error {
	streams, err := c.allStreams(db)
	if err != nil {
		return err
	}
	for _, s := range streams {
		carry := unvested(s.WindowTotal, s.WindowStart, s.WindowEnd, s.LastCheckpoint, now)
		if carry == 0 {
			continue
		}
		reopenWindow(s, now, dur, carry)
		if _, err := c.streams.Put(db, []byte(s.Ticker), s); err != nil {
			return errors.Wrap(err, "store stream")
		}
	}
	return nil
}

// reopenWindow anchors a stream to a fresh vesting window starting now.
func reopenWindow(s *Stream, now weave.UnixTime, dur weave.UnixDuration, total int64) {
	s.WindowStart = now
	s.WindowEnd = now.Add(dur.Duration())
	s.WindowTotal = total
	s.LastCheckpoint = now
	if dur > 0 {
		s.RatePerSecond = total / int64(dur)
	} else {
		s.RatePerSecond = 0
	}
}

// payRewards pays the pending amount of each requested stream to the
// recipient, bounded by the reward account balance. What cannot be paid
// stays pending and is reported as a shortfall.
func (c *Controller) payRewards(db weave.KVStore, staker weave.Address, tickers []string, recipient weave.Address) ([]Payout, error) {
	var payouts []Payout
	for _, t := range tickers {
		var stream Stream
		switch err := c.streams.One(db, []byte(t), &stream); {
		case err == nil:
		case errors.ErrNotFound.Is(err):
			continue
		default:
			return nil, errors.Wrap(err, "get stream")
		}
		ledger, err := c.loadLedger(db, staker, t)
		if err != nil {
			return nil, err
		}
		if ledger.Pending == 0 {
			continue
		}
		avail, err := c.balanceUnits(db, RewardAccount(), t)
		if err != nil {
			return nil, err
		}
		pay := ledger.Pending
		if avail < pay {
			pay = avail
		}
		if pay > 0 {
			reward := asCoin(pay, t)
			if err := cash.MoveCoins(db, c.cash, RewardAccount(), recipient, []*coin.Coin{&reward}); err != nil {
				return nil, errors.Wrap(err, "pay reward")
			}
			ledger.Pending -= pay
			stream.AccountedReserve -= pay
			if _, err := c.ledgers.Put(db, ledgerKey(staker, t), ledger); err != nil {
				return nil, errors.Wrap(err, "store ledger")
			}
			if _, err := c.streams.Put(db, []byte(t), &stream); err != nil {
				return nil, errors.Wrap(err, "store stream")
			}
		}
		payouts = append(payouts, Payout{Ticker: t, Amount: pay, Shortfall: ledger.Pending})
	}
	return payouts, nil
}

// stakeFee returns the fee in units for a stake of given size.
func stakeFee(units int64, bps uint32) int64 {
	if bps == 0 {
		return 0
	}
	f := big.NewInt(units)
	f.Mul(f, big.NewInt(int64(bps)))
	f.Div(f, big.NewInt(10000))
	return f.Int64()
}

func (c *Controller) loadPool(db weave.ReadOnlyKVStore) (*Pool, error) {
	var pool Pool
	switch err := c.pools.One(db, poolKey, &pool); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		pool = Pool{Metadata: &weave.Metadata{Schema: 1}}
	default:
		return nil, errors.Wrap(err, "get pool")
	}
	return &pool, nil
}

func (c *Controller) loadPosition(db weave.ReadOnlyKVStore, addr weave.Address) (*Position, error) {
	var pos Position
	switch err := c.positions.One(db, addr, &pos); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		pos = Position{Metadata: &weave.Metadata{Schema: 1}, Address: addr}
	default:
		return nil, errors.Wrap(err, "get position")
	}
	return &pos, nil
}

func (c *Controller) loadLedger(db weave.ReadOnlyKVStore, addr weave.Address, ticker string) (*RewardLedger, error) {
	var ledger RewardLedger
	switch err := c.ledgers.One(db, ledgerKey(addr, ticker), &ledger); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		ledger = RewardLedger{
			Metadata: &weave.Metadata{Schema: 1},
			Address:  addr,
			Ticker:   ticker,
		}
	default:
		return nil, errors.Wrap(err, "get ledger")
	}
	return &ledger, nil
}

func (c *Controller) loadStream(db weave.ReadOnlyKVStore, ticker string) (*Stream, error) {
	var stream Stream
	switch err := c.streams.One(db, []byte(ticker), &stream); {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		stream = Stream{Metadata: &weave.Metadata{Schema: 1}, Ticker: ticker}
	default:
		return nil, errors.Wrap(err, "get stream")
	}
	return &stream, nil
}

// allStreams returns a mutable snapshot of every stream.
func (c *Controller) allStreams(db weave.KVStore) ([]*Stream, error) {
	var streams []*Stream
	it := orm.IterAll("stream")
	for {
		var s Stream
		switch _, err := it.Next(db, &s); {
		case err == nil:
			streams = append(streams, &s)
		case errors.ErrIteratorDone.Is(err):
			return streams, nil
		default:
			return nil, errors.Wrap(err, "stream iterator")
		}
	}
}

func (c *Controller) allStreamTickers(db weave.KVStore) ([]string, error) {
	streams, err := c.allStreams(db)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(streams))
	for _, s := range streams {
		tickers = append(tickers, s.Ticker)
	}
	return tickers, nil
}

// balanceUnits returns the balance of a single ticker in fractional
// units. A missing wallet counts as zero.
func (c *Controller) balanceUnits(db weave.KVStore, addr weave.Address, ticker string) (int64, error) {
	coins, err := c.cash.Balance(db, addr)
	switch {
	case err == nil:
	case errors.ErrNotFound.Is(err):
		return 0, nil
	default:
		return 0, errors.Wrap(err, "wallet balance")
	}
	for _, cn := range coins {
		if cn.Ticker == ticker {
			return asUnits(*cn)
		}
	}
	return 0, nil
}
