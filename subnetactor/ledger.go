package subnetactor

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/specs-actors/v6/actors/builtin"
	"github.com/filecoin-project/specs-actors/v6/actors/util/adt"
	"golang.org/x/xerrors"
)

// getStake returns a validator's current ledger balance, or zero if
// the validator has never staked.
func (st *State) getStake(s adt.Store, addr address.Address) (abi.TokenAmount, error) {
	bt, err := adt.AsBalanceTable(s, st.Stake)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load stake table: %w", err)
	}
	amount, err := bt.Get(addr)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to get stake for %s: %w", addr, err)
	}
	return amount, nil
}

// addStake credits addr's ledger balance by amount, registers it (and
// its network address) in the validator set once the balance crosses
// MinValidatorStake, and keeps TotalStake/ValidatorCount in lockstep.
// Returns the validator's new balance.
func (st *State) addStake(s adt.Store, addr address.Address, netAddr string, amount abi.TokenAmount) (abi.TokenAmount, error) {
	bt, err := adt.AsBalanceTable(s, st.Stake)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to load stake table: %w", err)
	}
	if err := bt.AddCreate(addr, amount); err != nil {
		return big.Zero(), xerrors.Errorf("failed to credit stake for %s: %w", addr, err)
	}
	newBalance, err := bt.Get(addr)
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to read back stake for %s: %w", addr, err)
	}
	st.Stake, err = bt.Root()
	if err != nil {
		return big.Zero(), xerrors.Errorf("failed to flush stake table: %w", err)
	}
	st.TotalStake = big.Add(st.TotalStake, amount)

	if newBalance.GreaterThanEqual(st.MinValidatorStake) {
		already, err := st.isValidator(s, addr)
		if err != nil {
			return big.Zero(), err
		}
		if !already {
			if err := st.putValidator(s, addr, netAddr); err != nil {
				return big.Zero(), err
			}
			st.ValidatorCount++
		}
	}
	return newBalance, nil
}

// removeStake withdraws exactly amount (the validator's full stake;
// this actor never supports a partial unstake, see Design Note 9.2)
// from addr's ledger balance and removes it from the validator set.
func (st *State) removeStake(s adt.Store, addr address.Address, amount abi.TokenAmount) error {
	bt, err := adt.AsBalanceTable(s, st.Stake)
	if err != nil {
		return xerrors.Errorf("failed to load stake table: %w", err)
	}
	current, err := bt.Get(addr)
	if err != nil {
		return xerrors.Errorf("failed to get stake for %s: %w", addr, err)
	}
	if !current.Equals(amount) {
		return xerrors.Errorf("leave must withdraw the caller's full stake: have %s, asked for %s", current, amount)
	}
	if _, err := bt.SubtractWithMinimum(addr, amount, big.Zero()); err != nil {
		return xerrors.Errorf("failed to debit stake for %s: %w", addr, err)
	}
	st.Stake, err = bt.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush stake table: %w", err)
	}
	st.TotalStake = big.Sub(st.TotalStake, amount)

	wasValidator, err := st.isValidator(s, addr)
	if err != nil {
		return err
	}
	if wasValidator {
		if err := st.removeValidator(s, addr); err != nil {
			return err
		}
		st.ValidatorCount--
	}
	return nil
}

func (st *State) isValidator(s adt.Store, addr address.Address) (bool, error) {
	vs, err := adt.AsMap(s, st.ValidatorSet, builtin.DefaultHamtBitwidth)
	if err != nil {
		return false, xerrors.Errorf("failed to load validator set: %w", err)
	}
	var out validatorInfo
	return vs.Get(abi.AddrKey(addr), &out)
}

func (st *State) putValidator(s adt.Store, addr address.Address, netAddr string) error {
	vs, err := adt.AsMap(s, st.ValidatorSet, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load validator set: %w", err)
	}
	info := validatorInfo{NetAddr: netAddr}
	if err := vs.Put(abi.AddrKey(addr), &info); err != nil {
		return xerrors.Errorf("failed to add validator %s: %w", addr, err)
	}
	st.ValidatorSet, err = vs.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush validator set: %w", err)
	}
	return nil
}

func (st *State) removeValidator(s adt.Store, addr address.Address) error {
	vs, err := adt.AsMap(s, st.ValidatorSet, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load validator set: %w", err)
	}
	if err := vs.Delete(abi.AddrKey(addr)); err != nil {
		return xerrors.Errorf("failed to remove validator %s: %w", addr, err)
	}
	st.ValidatorSet, err = vs.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush validator set: %w", err)
	}
	return nil
}
