package drip

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestValidateStakeMsg(t *testing.T) {
	cases := map[string]struct {
		Msg  StakeMsg
		Errs map[string]*errors.Error
	}{
		"valid": {
			Msg: StakeMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Staker:   weavetest.NewCondition().Address(),
				Amount:   coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Metadata": nil,
				"Staker":   nil,
				"Amount":   nil,
			},
		},
		"missing metadata": {
			Msg: StakeMsg{
				Staker: weavetest.NewCondition().Address(),
				Amount: coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Metadata": errors.ErrMetadata,
			},
		},
		"zero amount": {
			Msg: StakeMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Staker:   weavetest.NewCondition().Address(),
				Amount:   coin.NewCoin(0, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Amount": errors.ErrAmount,
			},
		},
		"missing staker": {
			Msg: StakeMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Amount:   coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Staker": errors.ErrEmpty,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestValidateUnstakeMsg(t *testing.T) {
	cases := map[string]struct {
		Msg  UnstakeMsg
		Errs map[string]*errors.Error
	}{
		"valid": {
			Msg: UnstakeMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Staker:    weavetest.NewCondition().Address(),
				Amount:    coin.NewCoin(10, 0, "STK"),
				Recipient: weavetest.NewCondition().Address(),
			},
			Errs: map[string]*errors.Error{
				"Metadata":  nil,
				"Staker":    nil,
				"Amount":    nil,
				"Recipient": nil,
			},
		},
		"missing recipient": {
			Msg: UnstakeMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Staker:   weavetest.NewCondition().Address(),
				Amount:   coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Recipient": errors.ErrEmpty,
			},
		},
		"negative amount": {
			Msg: UnstakeMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Staker:    weavetest.NewCondition().Address(),
				Amount:    coin.NewCoin(-4, 0, "STK"),
				Recipient: weavetest.NewCondition().Address(),
			},
			Errs: map[string]*errors.Error{
				"Amount": errors.ErrAmount,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestValidateAccrueRewardsMsg(t *testing.T) {
	cases := map[string]struct {
		Msg  AccrueRewardsMsg
		Errs map[string]*errors.Error
	}{
		"valid without funding": {
			Msg: AccrueRewardsMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Ticker:   "RWD",
			},
			Errs: map[string]*errors.Error{
				"Metadata": nil,
				"Ticker":   nil,
				"Funding":  nil,
			},
		},
		"valid with funding": {
			Msg: AccrueRewardsMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Ticker:   "RWD",
				Funding:  coin.NewCoinp(100, 0, "RWD"),
			},
			Errs: map[string]*errors.Error{
				"Funding": nil,
			},
		},
		"invalid ticker": {
			Msg: AccrueRewardsMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Ticker:   "x",
			},
			Errs: map[string]*errors.Error{
				"Ticker": errors.ErrCurrency,
			},
		},
		"funding ticker mismatch": {
			Msg: AccrueRewardsMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Ticker:   "RWD",
				Funding:  coin.NewCoinp(100, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Funding": errors.ErrCurrency,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestValidateTransferStakeMsg(t *testing.T) {
	addr := weavetest.NewCondition().Address()

	cases := map[string]struct {
		Msg  TransferStakeMsg
		Errs map[string]*errors.Error
	}{
		"valid": {
			Msg: TransferStakeMsg{
				Metadata:    &weave.Metadata{Schema: 1},
				Source:      weavetest.NewCondition().Address(),
				Destination: weavetest.NewCondition().Address(),
				Amount:      coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Source":      nil,
				"Destination": nil,
				"Amount":      nil,
			},
		},
		"source and destination must differ": {
			Msg: TransferStakeMsg{
				Metadata:    &weave.Metadata{Schema: 1},
				Source:      addr,
				Destination: addr,
				Amount:      coin.NewCoin(10, 0, "STK"),
			},
			Errs: map[string]*errors.Error{
				"Destination": errors.ErrInput,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestValidateClaimRewardsMsg(t *testing.T) {
	cases := map[string]struct {
		Msg  ClaimRewardsMsg
		Errs map[string]*errors.Error
	}{
		"valid with no tickers": {
			Msg: ClaimRewardsMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Staker:    weavetest.NewCondition().Address(),
				Recipient: weavetest.NewCondition().Address(),
			},
			Errs: map[string]*errors.Error{
				"Staker":    nil,
				"Recipient": nil,
				"Tickers":   nil,
			},
		},
		"bad ticker in the list": {
			Msg: ClaimRewardsMsg{
				Metadata:  &weave.Metadata{Schema: 1},
				Staker:    weavetest.NewCondition().Address(),
				Recipient: weavetest.NewCondition().Address(),
				Tickers:   []string{"RWD", "nope"},
			},
			Errs: map[string]*errors.Error{
				"Tickers": errors.ErrCurrency,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}
