package drip

import (
	"testing"
	"time"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/x/cash"
)

func TestStakeClaimUnstakeWalkthrough(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	aliceCond := weavetest.NewCondition()
	bobCond := weavetest.NewCondition()
	alice := aliceCond.Address()
	bob := bobCond.Address()

	saveTestConf(t, db, testConf())
	mustWhitelist(t, db, "RWD")

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(1000, 0, "STK"))
	mustMint(t, db, ctrl, bob, coin.NewCoin(500, 0, "STK"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(1000, 0, "RWD"))

	now := weave.UnixTime(1600000000)

	if err := c.Stake(db, now, alice, coin.NewCoin(1000, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if err := c.Accrue(db, now, "RWD", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	// Half of a three day window means half of the rewards vested.
	half := now.Add(36 * time.Hour)
	claimable, err := c.ClaimableRewards(db, half, alice, "RWD")
	if err != nil {
		t.Fatalf("claimable: %s", err)
	}
	if want := int64(500) * coin.FracUnit; claimable != want {
		t.Fatalf("want %d claimable, got %d", want, claimable)
	}

	// A full exit auto claims the vested half and returns the principal.
	power, payouts, err := c.Unstake(db, half, alice, coin.NewCoin(1000, 0, "STK"), alice)
	if err != nil {
		t.Fatalf("unstake: %s", err)
	}
	if power != 0 {
		t.Fatalf("full exit must leave no power, got %d", power)
	}
	if len(payouts) != 1 || payouts[0].Ticker != "RWD" {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}
	if want := int64(500) * coin.FracUnit; payouts[0].Amount != want || payouts[0].Shortfall != 0 {
		t.Fatalf("want %d paid in full, got %+v", want, payouts[0])
	}
	if got := walletUnits(t, db, c, alice, "STK"); got != 1000*coin.FracUnit {
		t.Fatalf("principal not returned, balance %d", got)
	}
	if got := walletUnits(t, db, c, alice, "RWD"); got != 500*coin.FracUnit {
		t.Fatalf("reward not paid, balance %d", got)
	}

	// The pool is empty now, so the unvested half freezes. The next
	// staker earns it over a fresh full window, nothing retroactively.
	later := now.Add(2 * 24 * time.Hour)
	if err := c.Stake(db, later, bob, coin.NewCoin(500, 0, "STK")); err != nil {
		t.Fatalf("stake after gap: %s", err)
	}
	claimable, err = c.ClaimableRewards(db, later, bob, "RWD")
	if err != nil {
		t.Fatalf("claimable: %s", err)
	}
	if claimable != 0 {
		t.Fatalf("fresh staker must start at zero, got %d", claimable)
	}

	end := later.Add(3 * 24 * time.Hour)
	payouts, err = c.Claim(db, end, bob, []string{"RWD"}, bob)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if want := int64(500) * coin.FracUnit; len(payouts) != 1 || payouts[0].Amount != want {
		t.Fatalf("want %d for the frozen remainder, got %+v", want, payouts)
	}
	// Every reward unit is either paid out or still reserved. Nothing
	// was lost across the zero staker gap.
	if got := walletUnits(t, db, c, RewardAccount(), "RWD"); got != 0 {
		t.Fatalf("reward reserve not drained, %d left", got)
	}
}

func TestRewardSplitBetweenStakers(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()
	bob := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())
	mustWhitelist(t, db, "RWD")

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(1000, 0, "STK"))
	mustMint(t, db, ctrl, bob, coin.NewCoin(500, 0, "STK"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(900, 0, "RWD"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(1000, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if err := c.Accrue(db, now, "RWD", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	// Bob joins a third into the window. The first third vested to
	// alice alone, the rest splits 2:1.
	dayOne := now.Add(24 * time.Hour)
	if err := c.Stake(db, dayOne, bob, coin.NewCoin(500, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	claimable, err := c.ClaimableRewards(db, dayOne, bob, "RWD")
	if err != nil {
		t.Fatalf("claimable: %s", err)
	}
	if claimable != 0 {
		t.Fatalf("joining must not grant vested rewards, got %d", claimable)
	}

	end := now.Add(3 * 24 * time.Hour)
	payouts, err := c.Claim(db, end, alice, []string{"RWD"}, alice)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if want := int64(700) * coin.FracUnit; payouts[0].Amount != want {
		t.Fatalf("want %d for alice, got %+v", want, payouts)
	}
	payouts, err = c.Claim(db, end, bob, []string{"RWD"}, bob)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if want := int64(200) * coin.FracUnit; payouts[0].Amount != want {
		t.Fatalf("want %d for bob, got %+v", want, payouts)
	}
}

func TestTinyStakeClaimsFullReward(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())
	mustWhitelist(t, db, "RWD")

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	// A single fractional unit staked is the whole pool and earns the
	// whole stream, precision notwithstanding.
	mustMint(t, db, ctrl, alice, coin.NewCoin(0, 1, "STK"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(0, 1000000, "RWD"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(0, 1, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if err := c.Accrue(db, now, "RWD", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	end := now.Add(3 * 24 * time.Hour)
	payouts, err := c.Claim(db, end, alice, []string{"RWD"}, alice)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if len(payouts) != 1 || payouts[0].Amount != 1000000 {
		t.Fatalf("want the full 1000000, got %+v", payouts)
	}
}

func TestClaimShortfallStaysPending(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()
	sink := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())
	mustWhitelist(t, db, "RWD")

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(100, 0, "STK"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(100, 0, "RWD"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(100, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if err := c.Accrue(db, now, "RWD", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	// Simulate a reserve drained below the accounted amount.
	drain := coin.NewCoin(40, 0, "RWD")
	if err := cash.MoveCoins(db, ctrl, RewardAccount(), sink, []*coin.Coin{&drain}); err != nil {
		t.Fatalf("drain reserve: %s", err)
	}

	end := now.Add(3 * 24 * time.Hour)
	payouts, err := c.Claim(db, end, alice, []string{"RWD"}, alice)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if want := int64(60) * coin.FracUnit; payouts[0].Amount != want {
		t.Fatalf("want %d paid, got %+v", want, payouts)
	}
	if want := int64(40) * coin.FracUnit; payouts[0].Shortfall != want {
		t.Fatalf("want %d shortfall, got %+v", want, payouts)
	}

	// Topping the reserve back up makes the debt claimable again.
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(40, 0, "RWD"))
	payouts, err = c.Claim(db, end.Add(time.Hour), alice, []string{"RWD"}, alice)
	if err != nil {
		t.Fatalf("claim: %s", err)
	}
	if want := int64(40) * coin.FracUnit; payouts[0].Amount != want || payouts[0].Shortfall != 0 {
		t.Fatalf("want the remaining %d, got %+v", want, payouts)
	}
	if got := walletUnits(t, db, c, alice, "RWD"); got != 100*coin.FracUnit {
		t.Fatalf("want the debt fully paid, balance %d", got)
	}
}

func TestStakeFeeIsCollected(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()
	collector := weavetest.NewCondition().Address()

	conf := testConf()
	conf.StakeFeeBps = 100
	conf.FeeCollector = collector
	saveTestConf(t, db, conf)

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(1000, 0, "STK"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(1000, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}

	if got := walletUnits(t, db, c, collector, "STK"); got != 10*coin.FracUnit {
		t.Fatalf("want a 1%% fee, collector holds %d", got)
	}
	if got := walletUnits(t, db, c, StakeAccount(), "STK"); got != 990*coin.FracUnit {
		t.Fatalf("want the net amount escrowed, got %d", got)
	}
	pool, err := c.loadPool(db)
	if err != nil {
		t.Fatalf("load pool: %s", err)
	}
	if pool.TotalShares != 990*coin.FracUnit {
		t.Fatalf("shares must match the net amount, got %d", pool.TotalShares)
	}
}

func TestAccrueGuards(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()

	conf := testConf()
	conf.MinReward = 50 * coin.FracUnit
	saveTestConf(t, db, conf)

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	now := weave.UnixTime(1600000000)

	if err := c.Accrue(db, now, "RWD", nil, nil); !ErrNotWhitelisted.Is(err) {
		t.Fatalf("want a whitelist failure, got %+v", err)
	}

	mustWhitelist(t, db, "RWD")
	if err := c.Accrue(db, now, "RWD", nil, nil); !ErrRewardDust.Is(err) {
		t.Fatalf("want a dust failure on an empty reserve, got %+v", err)
	}

	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(10, 0, "RWD"))
	if err := c.Accrue(db, now, "RWD", nil, nil); !ErrRewardDust.Is(err) {
		t.Fatalf("want a dust failure below the floor, got %+v", err)
	}

	// Funding attached to the accrual is pulled from the payer and
	// counts towards the unaccounted amount.
	mustMint(t, db, ctrl, alice, coin.NewCoin(90, 0, "RWD"))
	funding := coin.NewCoin(90, 0, "RWD")
	if err := c.Accrue(db, now, "RWD", &funding, alice); err != nil {
		t.Fatalf("accrue: %s", err)
	}
	outstanding, err := c.OutstandingRewards(db, "RWD")
	if err != nil {
		t.Fatalf("outstanding: %s", err)
	}
	if outstanding != 0 {
		t.Fatalf("everything must be accounted after accrual, got %d", outstanding)
	}
}

func TestTransferReallocatesPendingRewards(t *testing.T) {
	cases := map[string]struct {
		PoolSender bool
		WantSrc    int64
		WantDst    int64
	}{
		"pooling source passes the moved fraction along": {
			PoolSender: true,
			WantSrc:    600 * coin.FracUnit,
			WantDst:    200 * coin.FracUnit,
		},
		"individual source keeps the full entitlement": {
			PoolSender: false,
			WantSrc:    800 * coin.FracUnit,
			WantDst:    0,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "drip", "cash")

			src := weavetest.NewCondition().Address()
			dst := weavetest.NewCondition().Address()

			saveTestConf(t, db, testConf())
			mustWhitelist(t, db, "RWD")

			ctrl := cash.NewController(cash.NewBucket())
			c := NewController(ctrl)

			mustMint(t, db, ctrl, src, coin.NewCoin(1000, 0, "STK"))
			mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(800, 0, "RWD"))

			now := weave.UnixTime(1600000000)
			if err := c.Stake(db, now, src, coin.NewCoin(1000, 0, "STK")); err != nil {
				t.Fatalf("stake: %s", err)
			}
			if err := c.Accrue(db, now, "RWD", nil, nil); err != nil {
				t.Fatalf("accrue: %s", err)
			}

			end := now.Add(3 * 24 * time.Hour)
			if err := c.Transfer(db, end, src, dst, coin.NewCoin(250, 0, "STK"), tc.PoolSender); err != nil {
				t.Fatalf("transfer: %s", err)
			}

			claimable, err := c.ClaimableRewards(db, end, src, "RWD")
			if err != nil {
				t.Fatalf("claimable: %s", err)
			}
			if claimable != tc.WantSrc {
				t.Fatalf("want %d for the source, got %d", tc.WantSrc, claimable)
			}
			claimable, err = c.ClaimableRewards(db, end, dst, "RWD")
			if err != nil {
				t.Fatalf("claimable: %s", err)
			}
			if claimable != tc.WantDst {
				t.Fatalf("want %d for the destination, got %d", tc.WantDst, claimable)
			}

			// Shares moved hands but the pool total is unchanged.
			pool, err := c.loadPool(db)
			if err != nil {
				t.Fatalf("load pool: %s", err)
			}
			if pool.TotalShares != 1000*coin.FracUnit {
				t.Fatalf("pool total must not change, got %d", pool.TotalShares)
			}
		})
	}
}

func TestUnstakePowerPenaltyIsQuadratic(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(1000, 0, "STK"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(1000, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}

	// Eight days of 1000 tokens is 8000 power. Removing a quarter
	// scales both the balance and the accumulated age, so the survivor
	// keeps (3/4)^2 of it.
	later := now.Add(8 * 24 * time.Hour)
	power, err := c.VotingPower(db, later, alice)
	if err != nil {
		t.Fatalf("power: %s", err)
	}
	if power != 8000 {
		t.Fatalf("want 8000 power before the exit, got %d", power)
	}
	power, _, err = c.Unstake(db, later, alice, coin.NewCoin(250, 0, "STK"), alice)
	if err != nil {
		t.Fatalf("unstake: %s", err)
	}
	if power != 4500 {
		t.Fatalf("want 4500 power after the exit, got %d", power)
	}
}

func TestControllerInputValidation(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	now := weave.UnixTime(1600000000)

	if err := c.Stake(db, now, alice, coin.NewCoin(10, 0, "RWD")); !errors.ErrCurrency.Is(err) {
		t.Fatalf("want a currency failure, got %+v", err)
	}
	if _, _, err := c.Unstake(db, now, alice, coin.NewCoin(10, 0, "STK"), alice); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want a missing position failure, got %+v", err)
	}

	mustMint(t, db, ctrl, alice, coin.NewCoin(10, 0, "STK"))
	if err := c.Stake(db, now, alice, coin.NewCoin(10, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if _, _, err := c.Unstake(db, now, alice, coin.NewCoin(11, 0, "STK"), alice); !errors.ErrAmount.Is(err) {
		t.Fatalf("want an amount failure, got %+v", err)
	}
}

func TestUnitConversionOverflow(t *testing.T) {
	// A coin can be well formed and still not fit into int64 fractional
	// units. The wrapped product can land positive again, so the
	// conversion must reject on the whole value, not the result sign.
	if _, err := asUnits(coin.NewCoin(18446744074, 0, "STK")); !errors.ErrOverflow.Is(err) {
		t.Fatalf("want an overflow failure, got %+v", err)
	}
	units, err := asUnits(coin.NewCoin(7, 5, "STK"))
	if err != nil {
		t.Fatalf("convert: %s", err)
	}
	if want := int64(7)*coin.FracUnit + 5; units != want {
		t.Fatalf("want %d units, got %d", want, units)
	}
}

func TestStreamsAreIndependentPerToken(t *testing.T) {
	db := store.MemStore()
	migration.MustInitPkg(db, "drip", "cash")

	alice := weavetest.NewCondition().Address()

	saveTestConf(t, db, testConf())
	mustWhitelist(t, db, "AAA", "BBB")

	ctrl := cash.NewController(cash.NewBucket())
	c := NewController(ctrl)

	mustMint(t, db, ctrl, alice, coin.NewCoin(1000, 0, "STK"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(600, 0, "AAA"))
	mustMint(t, db, ctrl, RewardAccount(), coin.NewCoin(900, 0, "BBB"))

	now := weave.UnixTime(1600000000)
	if err := c.Stake(db, now, alice, coin.NewCoin(1000, 0, "STK")); err != nil {
		t.Fatalf("stake: %s", err)
	}
	if err := c.Accrue(db, now, "AAA", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	// Opening a second stream halfway through the first window must not
	// touch the first stream's window or its claimable amount.
	half := now.Add(36 * time.Hour)
	if err := c.Accrue(db, half, "BBB", nil, nil); err != nil {
		t.Fatalf("accrue: %s", err)
	}

	stream, err := c.loadStream(db, "AAA")
	if err != nil {
		t.Fatalf("load stream: %s", err)
	}
	if stream.WindowStart != now || stream.WindowEnd != now.Add(3*24*time.Hour) {
		t.Fatalf("first window moved: %+v", stream)
	}
	if stream.WindowTotal != 600*coin.FracUnit {
		t.Fatalf("first window total changed: %d", stream.WindowTotal)
	}
	claimable, err := c.ClaimableRewards(db, half, alice, "AAA")
	if err != nil {
		t.Fatalf("claimable: %s", err)
	}
	if want := int64(300) * coin.FracUnit; claimable != want {
		t.Fatalf("want %d claimable, got %d", want, claimable)
	}
	claimable, err = c.ClaimableRewards(db, half, alice, "BBB")
	if err != nil {
		t.Fatalf("claimable: %s", err)
	}
	if claimable != 0 {
		t.Fatalf("second stream just opened, want 0, got %d", claimable)
	}
}

func testConf() Configuration {
	return Configuration{
		Metadata:        &weave.Metadata{Schema: 1},
		Owner:           weavetest.NewCondition().Address(),
		Admin:           weavetest.NewCondition().Address(),
		PrincipalTicker: "STK",
		VestingDuration: asDays(3),
		PowerUnit:       asDays(1),
	}
}

func saveTestConf(t testing.TB, db weave.KVStore, conf Configuration) {
	t.Helper()
	if err := gconf.Save(db, "drip", &conf); err != nil {
		t.Fatalf("cannot save configuration: %s", err)
	}
}

func mustWhitelist(t testing.TB, db weave.KVStore, tickers ...string) {
	t.Helper()
	b := NewRewardTokenBucket()
	for _, ticker := range tickers {
		token := RewardToken{Metadata: &weave.Metadata{Schema: 1}, Ticker: ticker}
		if _, err := b.Put(db, []byte(ticker), &token); err != nil {
			t.Fatalf("cannot whitelist %q: %s", ticker, err)
		}
	}
}

func mustMint(t testing.TB, db weave.KVStore, ctrl cash.CoinMinter, wallet weave.Address, amount coin.Coin) {
	t.Helper()
	if err := ctrl.CoinMint(db, wallet, amount); err != nil {
		t.Fatalf("cannot mint coins for %q: %s", wallet, err)
	}
}

func walletUnits(t testing.TB, db weave.KVStore, c *Controller, addr weave.Address, ticker string) int64 {
	t.Helper()
	units, err := c.balanceUnits(db, addr, ticker)
	if err != nil {
		t.Fatalf("cannot read %q balance: %s", addr, err)
	}
	return units
}

func asDays(days int) weave.UnixDuration {
	return weave.AsUnixDuration(time.Duration(days) * 24 * time.Hour)
}
