package dripd

import (
	"bytes"
	"testing"

	"github.com/iov-one/drip/x/drip"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
	"github.com/iov-one/weave/x/sigs"
)

func TestGetMsg(t *testing.T) {
	msg := &drip.StakeMsg{
		Metadata: &weave.Metadata{Schema: 1},
		Staker:   weavetest.NewCondition().Address(),
		Amount:   coin.NewCoin(100, 0, "STK"),
	}
	tx := &Tx{
		Sum: &Tx_DripStakeMsg{DripStakeMsg: msg},
	}

	got, err := tx.GetMsg()
	assert.Nil(t, err)
	if got != weave.Msg(msg) {
		t.Fatalf("want %v message, got %v", msg, got)
	}
	assert.Equal(t, "drip/stake", got.Path())
}

func TestSignBytesIgnoreSignatures(t *testing.T) {
	tx := &Tx{
		Sum: &Tx_DripClaimRewardsMsg{
			DripClaimRewardsMsg: &drip.ClaimRewardsMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Staker:   weavetest.NewCondition().Address(),
			},
		},
	}
	unsigned, err := tx.GetSignBytes()
	assert.Nil(t, err)

	tx.Signatures = []*sigs.StdSignature{
		{Sequence: 5, Pubkey: weavetest.NewKey().PublicKey()},
	}
	signed, err := tx.GetSignBytes()
	assert.Nil(t, err)

	// Sign bytes must not depend on attached signatures.
	if !bytes.Equal(unsigned, signed) {
		t.Fatal("sign bytes changed after signing")
	}
	// The signatures must be restored after computing the sign bytes.
	assert.Equal(t, 1, len(tx.Signatures))
}
