/*
Package drip implements a staking ledger with multi token reward streaming.

Stakers escrow a principal token and receive non transferable shares. Any
whitelisted reward token can be accrued into a linear vesting window and is
distributed to stakers proportionally to their shares, using a reward per
share accumulator so that settlement cost does not depend on the number of
participants. Shares carry a time weighted voting power that is preserved
across additional stakes and reduced quadratically on partial exits.
*/
package drip
