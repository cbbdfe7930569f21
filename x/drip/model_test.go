package drip

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestStreamValidate(t *testing.T) {
	cases := map[string]struct {
		Model Stream
		Errs  map[string]*errors.Error
	}{
		"valid": {
			Model: Stream{
				Metadata:       &weave.Metadata{Schema: 1},
				Ticker:         "RWD",
				WindowStart:    100,
				WindowEnd:      200,
				LastCheckpoint: 150,
				WindowTotal:    1000,
			},
			Errs: map[string]*errors.Error{
				"Ticker":    nil,
				"WindowEnd": nil,
			},
		},
		"window cannot end before it starts": {
			Model: Stream{
				Metadata:    &weave.Metadata{Schema: 1},
				Ticker:      "RWD",
				WindowStart: 200,
				WindowEnd:   100,
			},
			Errs: map[string]*errors.Error{
				"WindowEnd": errors.ErrInput,
			},
		},
		"negative totals": {
			Model: Stream{
				Metadata:         &weave.Metadata{Schema: 1},
				Ticker:           "RWD",
				WindowTotal:      -1,
				AccountedReserve: -1,
			},
			Errs: map[string]*errors.Error{
				"WindowTotal":      errors.ErrAmount,
				"AccountedReserve": errors.ErrAmount,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Model.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestPositionValidate(t *testing.T) {
	addr := weavetest.NewCondition().Address()

	cases := map[string]struct {
		Model Position
		Errs  map[string]*errors.Error
	}{
		"valid staked": {
			Model: Position{
				Metadata:   &weave.Metadata{Schema: 1},
				Address:    addr,
				Shares:     100,
				StakeStart: 1600000000,
			},
			Errs: map[string]*errors.Error{
				"Shares":     nil,
				"StakeStart": nil,
			},
		},
		"valid empty": {
			Model: Position{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  addr,
			},
			Errs: map[string]*errors.Error{
				"Shares":     nil,
				"StakeStart": nil,
			},
		},
		"shares without a stake start": {
			Model: Position{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  addr,
				Shares:   100,
			},
			Errs: map[string]*errors.Error{
				"StakeStart": errors.ErrState,
			},
		},
		"stake start without shares": {
			Model: Position{
				Metadata:   &weave.Metadata{Schema: 1},
				Address:    addr,
				StakeStart: 1600000000,
			},
			Errs: map[string]*errors.Error{
				"StakeStart": errors.ErrState,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Model.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}

func TestConfigurationValidate(t *testing.T) {
	cases := map[string]struct {
		Model Configuration
		Errs  map[string]*errors.Error
	}{
		"valid": {
			Model: Configuration{
				Metadata:        &weave.Metadata{Schema: 1},
				Owner:           weavetest.NewCondition().Address(),
				Admin:           weavetest.NewCondition().Address(),
				PrincipalTicker: "STK",
				VestingDuration: 1000,
				PowerUnit:       86400,
			},
			Errs: map[string]*errors.Error{
				"Owner":           nil,
				"Admin":           nil,
				"PrincipalTicker": nil,
				"VestingDuration": nil,
				"PowerUnit":       nil,
			},
		},
		"a fee requires a collector": {
			Model: Configuration{
				Metadata:        &weave.Metadata{Schema: 1},
				Owner:           weavetest.NewCondition().Address(),
				Admin:           weavetest.NewCondition().Address(),
				PrincipalTicker: "STK",
				VestingDuration: 1000,
				PowerUnit:       86400,
				StakeFeeBps:     50,
			},
			Errs: map[string]*errors.Error{
				"FeeCollector": errors.ErrEmpty,
			},
		},
		"fee above 100 percent": {
			Model: Configuration{
				Metadata:        &weave.Metadata{Schema: 1},
				Owner:           weavetest.NewCondition().Address(),
				Admin:           weavetest.NewCondition().Address(),
				PrincipalTicker: "STK",
				VestingDuration: 1000,
				PowerUnit:       86400,
				StakeFeeBps:     10001,
				FeeCollector:    weavetest.NewCondition().Address(),
			},
			Errs: map[string]*errors.Error{
				"StakeFeeBps": errors.ErrInput,
			},
		},
		"vesting duration is required": {
			Model: Configuration{
				Metadata:        &weave.Metadata{Schema: 1},
				Owner:           weavetest.NewCondition().Address(),
				Admin:           weavetest.NewCondition().Address(),
				PrincipalTicker: "STK",
				PowerUnit:       86400,
			},
			Errs: map[string]*errors.Error{
				"VestingDuration": errors.ErrInput,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Model.Validate()
			for field, wantErr := range tc.Errs {
				assert.FieldError(t, err, field, wantErr)
			}
		})
	}
}
