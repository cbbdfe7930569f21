package drip

import (
	"context"
	"testing"
	"time"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/x/cash"
)

func TestUseCases(t *testing.T) {
	type Request struct {
		Now         weave.UnixTime
		Conditions  []weave.Condition
		Tx          weave.Tx
		BlockHeight int64
		WantErr     *errors.Error
	}

	type AccountBalance struct {
		Wallet weave.Address
		Amount coin.Coin
	}

	var (
		ownerCond = weavetest.NewCondition()
		adminCond = weavetest.NewCondition()
		aliceCond = weavetest.NewCondition()
		bobCond   = weavetest.NewCondition()
		poolCond  = weavetest.NewCondition()
	)

	now := weave.UnixTime(1600000000)

	cases := map[string]struct {
		Funds        []AccountBalance
		PoolAccounts []weave.Address
		Requests     []Request
		AfterTest    func(t *testing.T, db weave.KVStore)
	}{
		"staking requires the staker signature": {
			Funds: []AccountBalance{
				{Wallet: aliceCond.Address(), Amount: coin.NewCoin(100, 0, "STK")},
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &StakeMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Staker:   aliceCond.Address(),
							Amount:   coin.NewCoin(100, 0, "STK"),
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrUnauthorized,
				},
			},
		},
		"full staking lifecycle pays vested rewards": {
			Funds: []AccountBalance{
				{Wallet: aliceCond.Address(), Amount: coin.NewCoin(1000, 0, "STK")},
				{Wallet: adminCond.Address(), Amount: coin.NewCoin(1000, 0, "RWD")},
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 100,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &StakeMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Staker:   aliceCond.Address(),
							Amount:   coin.NewCoin(1000, 0, "STK"),
						},
					},
					BlockHeight: 101,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &AccrueRewardsMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
							Funding:  coin.NewCoinp(1000, 0, "RWD"),
						},
					},
					BlockHeight: 102,
					WantErr:     nil,
				},
				// Half the vesting window later half the rewards are
				// claimable.
				{
					Now:        now.Add(36 * time.Hour),
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &ClaimRewardsMsg{
							Metadata:  &weave.Metadata{Schema: 1},
							Staker:    aliceCond.Address(),
							Tickers:   []string{"RWD"},
							Recipient: aliceCond.Address(),
						},
					},
					BlockHeight: 103,
					WantErr:     nil,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertWallet(t, db, aliceCond.Address(), coin.NewCoin(500, 0, "RWD"))
				assertWallet(t, db, StakeAccount(), coin.NewCoin(1000, 0, "STK"))
			},
		},
		"unstaking returns the principal and auto claims rewards": {
			Funds: []AccountBalance{
				{Wallet: aliceCond.Address(), Amount: coin.NewCoin(1000, 0, "STK")},
				{Wallet: adminCond.Address(), Amount: coin.NewCoin(900, 0, "RWD")},
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 100,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &StakeMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Staker:   aliceCond.Address(),
							Amount:   coin.NewCoin(1000, 0, "STK"),
						},
					},
					BlockHeight: 101,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &AccrueRewardsMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
							Funding:  coin.NewCoinp(900, 0, "RWD"),
						},
					},
					BlockHeight: 102,
					WantErr:     nil,
				},
				{
					Now:        now.Add(3 * 24 * time.Hour),
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &UnstakeMsg{
							Metadata:  &weave.Metadata{Schema: 1},
							Staker:    aliceCond.Address(),
							Amount:    coin.NewCoin(1000, 0, "STK"),
							Recipient: aliceCond.Address(),
						},
					},
					BlockHeight: 103,
					WantErr:     nil,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertWallet(t, db, aliceCond.Address(), coin.NewCoin(1000, 0, "STK"))
				assertWallet(t, db, aliceCond.Address(), coin.NewCoin(900, 0, "RWD"))
			},
		},
		"whitelist management is limited to the admin": {
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrUnauthorized,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 101,
					WantErr:     nil,
				},
				{
					Now:        now + 2,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 102,
					WantErr:     errors.ErrDuplicate,
				},
				{
					Now:        now + 3,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &UnwhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 103,
					WantErr:     nil,
				},
				{
					Now:        now + 4,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &UnwhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 104,
					WantErr:     errors.ErrNotFound,
				},
			},
		},
		"accruing an unlisted ticker fails": {
			Funds: []AccountBalance{
				{Wallet: adminCond.Address(), Amount: coin.NewCoin(100, 0, "RWD")},
			},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &AccrueRewardsMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
							Funding:  coin.NewCoinp(100, 0, "RWD"),
						},
					},
					BlockHeight: 100,
					WantErr:     ErrNotWhitelisted,
				},
			},
		},
		"transfer from a configured pool account splits pending rewards": {
			Funds: []AccountBalance{
				{Wallet: poolCond.Address(), Amount: coin.NewCoin(1000, 0, "STK")},
				{Wallet: adminCond.Address(), Amount: coin.NewCoin(800, 0, "RWD")},
			},
			PoolAccounts: []weave.Address{poolCond.Address()},
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &WhitelistTokenMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
						},
					},
					BlockHeight: 100,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{poolCond},
					Tx: &weavetest.Tx{
						Msg: &StakeMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Staker:   poolCond.Address(),
							Amount:   coin.NewCoin(1000, 0, "STK"),
						},
					},
					BlockHeight: 101,
					WantErr:     nil,
				},
				{
					Now:        now,
					Conditions: []weave.Condition{adminCond},
					Tx: &weavetest.Tx{
						Msg: &AccrueRewardsMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Ticker:   "RWD",
							Funding:  coin.NewCoinp(800, 0, "RWD"),
						},
					},
					BlockHeight: 102,
					WantErr:     nil,
				},
				// A quarter of the shares moves, so a quarter of the
				// vested entitlement moves along with it.
				{
					Now:        now.Add(3 * 24 * time.Hour),
					Conditions: []weave.Condition{poolCond},
					Tx: &weavetest.Tx{
						Msg: &TransferStakeMsg{
							Metadata:    &weave.Metadata{Schema: 1},
							Source:      poolCond.Address(),
							Destination: bobCond.Address(),
							Amount:      coin.NewCoin(250, 0, "STK"),
						},
					},
					BlockHeight: 103,
					WantErr:     nil,
				},
				{
					Now:        now.Add(3*24*time.Hour) + 1,
					Conditions: []weave.Condition{poolCond},
					Tx: &weavetest.Tx{
						Msg: &ClaimRewardsMsg{
							Metadata:  &weave.Metadata{Schema: 1},
							Staker:    poolCond.Address(),
							Tickers:   []string{"RWD"},
							Recipient: poolCond.Address(),
						},
					},
					BlockHeight: 104,
					WantErr:     nil,
				},
				{
					Now:        now.Add(3*24*time.Hour) + 2,
					Conditions: []weave.Condition{bobCond},
					Tx: &weavetest.Tx{
						Msg: &ClaimRewardsMsg{
							Metadata:  &weave.Metadata{Schema: 1},
							Staker:    bobCond.Address(),
							Tickers:   []string{"RWD"},
							Recipient: bobCond.Address(),
						},
					},
					BlockHeight: 105,
					WantErr:     nil,
				},
			},
			AfterTest: func(t *testing.T, db weave.KVStore) {
				assertWallet(t, db, poolCond.Address(), coin.NewCoin(600, 0, "RWD"))
				assertWallet(t, db, bobCond.Address(), coin.NewCoin(200, 0, "RWD"))
			},
		},
		"configuration update is limited to the owner": {
			Requests: []Request{
				{
					Now:        now,
					Conditions: []weave.Condition{aliceCond},
					Tx: &weavetest.Tx{
						Msg: &UpdateConfigurationMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Patch: &Configuration{
								Metadata:        &weave.Metadata{Schema: 1},
								Owner:           aliceCond.Address(),
								Admin:           aliceCond.Address(),
								PrincipalTicker: "STK",
								VestingDuration: asDays(7),
								PowerUnit:       asDays(1),
							},
						},
					},
					BlockHeight: 100,
					WantErr:     errors.ErrUnauthorized,
				},
				{
					Now:        now + 1,
					Conditions: []weave.Condition{ownerCond},
					Tx: &weavetest.Tx{
						Msg: &UpdateConfigurationMsg{
							Metadata: &weave.Metadata{Schema: 1},
							Patch: &Configuration{
								Metadata:        &weave.Metadata{Schema: 1},
								Owner:           ownerCond.Address(),
								Admin:           bobCond.Address(),
								PrincipalTicker: "STK",
								VestingDuration: asDays(7),
								PowerUnit:       asDays(1),
							},
						},
					},
					BlockHeight: 101,
					WantErr:     nil,
				},
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "drip", "cash")

			rt := app.NewRouter()
			auth := &weavetest.CtxAuth{Key: "auth"}
			ctrl := cash.NewController(cash.NewBucket())
			RegisterRoutes(rt, auth, ctrl, ConfClassifier{})

			for _, b := range tc.Funds {
				if err := ctrl.CoinMint(db, b.Wallet, b.Amount); err != nil {
					t.Fatalf("cannot mint coins for %q: %s", b.Wallet, err)
				}
			}

			config := Configuration{
				Metadata:        &weave.Metadata{Schema: 1},
				Owner:           ownerCond.Address(),
				Admin:           adminCond.Address(),
				PrincipalTicker: "STK",
				VestingDuration: asDays(3),
				PowerUnit:       asDays(1),
				PoolAccounts:    tc.PoolAccounts,
			}
			if err := gconf.Save(db, "drip", &config); err != nil {
				t.Fatalf("cannot save configuration: %s", err)
			}

			for i, req := range tc.Requests {
				ctx := weave.WithHeight(context.Background(), req.BlockHeight)
				ctx = weave.WithChainID(ctx, "testchain-123")
				ctx = auth.SetConditions(ctx, req.Conditions...)
				ctx = weave.WithBlockTime(ctx, req.Now.Time())

				cache := db.CacheWrap()
				if _, err := rt.Check(ctx, cache, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("unexpected %d check error: want %q, got %+v", i, req.WantErr, err)
				}
				cache.Discard()
				if _, err := rt.Deliver(ctx, db, req.Tx); !req.WantErr.Is(err) {
					t.Fatalf("unexpected %d deliver error: want %q, got %+v", i, req.WantErr, err)
				}
			}

			if tc.AfterTest != nil {
				tc.AfterTest(t, db)
			}
		})
	}
}

func assertWallet(t testing.TB, db weave.KVStore, wallet weave.Address, funds coin.Coin) {
	t.Helper()

	ctrl := cash.NewController(cash.NewBucket())
	coins, err := ctrl.Balance(db, wallet)
	if err != nil {
		t.Fatalf("balance: %s", err)
	}
	for _, c := range coins {
		if c.Ticker == funds.Ticker {
			if !c.Equals(funds) {
				t.Fatalf("want %q in the wallet, got %q", funds, c)
			}
			return
		}
	}
	t.Fatalf("want %q in the wallet, found only %q", funds, coins)
}
