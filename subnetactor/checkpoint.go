package subnetactor

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/specs-actors/v6/actors/builtin"
	"github.com/filecoin-project/specs-actors/v6/actors/util/adt"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/consensus-shipyard/hc-subnet-actor/schema"
)

// verifyCheckpoint runs every stateless and state-dependent check a
// candidate checkpoint must pass before its vote is even counted:
// it must name this subnet as its source, fall on a positive multiple
// of the check period, not already be committed, and link back to
// whatever this subnet last committed (or to nothing, the first time).
func (st *State) verifyCheckpoint(s adt.Store, source string, ch *schema.Checkpoint) error {
	if ch.Data.Source != source {
		return xerrors.Errorf("checkpoint source %q doesn't match this subnet (%q)", ch.Data.Source, source)
	}
	if ch.Data.Epoch <= 0 || abi.ChainEpoch(ch.Data.Epoch)%st.CheckPeriod != 0 {
		return xerrors.Errorf("checkpoint epoch %d is not a positive multiple of the check period %d", ch.Data.Epoch, st.CheckPeriod)
	}
	if _, found, err := st.getCommittedCheckpoint(s, abi.ChainEpoch(ch.Data.Epoch)); err != nil {
		return err
	} else if found {
		return xerrors.Errorf("checkpoint for epoch %d has already been committed", ch.Data.Epoch)
	}
	prev := cid.Undef
	if st.PrevCheckpoint != nil {
		prev = *st.PrevCheckpoint
	}
	if prev != ch.Data.PrevCheckpoint {
		return xerrors.Errorf("checkpoint doesn't link back to the last committed checkpoint")
	}
	return nil
}

// submitCheckpoint records caller's vote for ch and, once the vote
// tally reaches supermajority, commits it: the committed-checkpoint
// table and PrevCheckpoint advance, and the now-resolved entry is
// dropped from the pending window-vote table. Returns whether this
// vote was the one that tipped the checkpoint into commitment.
func (st *State) submitCheckpoint(s adt.Store, caller address.Address, ch *schema.Checkpoint) (bool, error) {
	ckCid, err := ch.Cid()
	if err != nil {
		return false, xerrors.Errorf("failed to compute checkpoint cid: %w", err)
	}

	votes, found, err := st.getWindowVotes(s, ckCid)
	if err != nil {
		return false, err
	}
	if !found {
		votes = &Votes{}
	}
	for _, v := range votes.Validators {
		if v == caller {
			return false, xerrors.Errorf("validator %s has already voted for this checkpoint", caller)
		}
	}
	votes.Validators = append(votes.Validators, caller)

	if !hasMajority(len(votes.Validators), st.ValidatorCount) {
		return false, st.putWindowVotes(s, ckCid, votes)
	}

	if err := st.putCommittedCheckpoint(s, ch); err != nil {
		return false, err
	}
	st.PrevCheckpoint = &ckCid
	if found {
		// The vote set was only ever persisted if a prior vote fell
		// short of majority; with a single-validator subnet the very
		// first vote already commits, and there is nothing to delete.
		if err := st.deleteWindowVotes(s, ckCid); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (st *State) getCommittedCheckpoint(s adt.Store, epoch abi.ChainEpoch) (*schema.Checkpoint, bool, error) {
	committed, err := adt.AsMap(s, st.CommittedCheckpoints, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load committed checkpoints: %w", err)
	}
	var out schema.Checkpoint
	found, err := committed.Get(abi.UIntKey(uint64(epoch)), &out)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to get checkpoint for epoch %d: %w", epoch, err)
	}
	if !found {
		return nil, false, nil
	}
	return &out, true, nil
}

func (st *State) putCommittedCheckpoint(s adt.Store, ch *schema.Checkpoint) error {
	committed, err := adt.AsMap(s, st.CommittedCheckpoints, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load committed checkpoints: %w", err)
	}
	if err := committed.Put(abi.UIntKey(uint64(ch.Data.Epoch)), ch); err != nil {
		return xerrors.Errorf("failed to commit checkpoint for epoch %d: %w", ch.Data.Epoch, err)
	}
	st.CommittedCheckpoints, err = committed.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush committed checkpoints: %w", err)
	}
	return nil
}

func (st *State) getWindowVotes(s adt.Store, ckCid cid.Cid) (*Votes, bool, error) {
	window, err := adt.AsMap(s, st.WindowChecks, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to load window votes: %w", err)
	}
	var out Votes
	found, err := window.Get(abi.CidKey(ckCid), &out)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to get window votes for %s: %w", ckCid, err)
	}
	if !found {
		return nil, false, nil
	}
	return &out, true, nil
}

func (st *State) putWindowVotes(s adt.Store, ckCid cid.Cid, votes *Votes) error {
	window, err := adt.AsMap(s, st.WindowChecks, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load window votes: %w", err)
	}
	if err := window.Put(abi.CidKey(ckCid), votes); err != nil {
		return xerrors.Errorf("failed to put window votes for %s: %w", ckCid, err)
	}
	st.WindowChecks, err = window.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush window votes: %w", err)
	}
	return nil
}

func (st *State) deleteWindowVotes(s adt.Store, ckCid cid.Cid) error {
	window, err := adt.AsMap(s, st.WindowChecks, builtin.DefaultHamtBitwidth)
	if err != nil {
		return xerrors.Errorf("failed to load window votes: %w", err)
	}
	if err := window.Delete(abi.CidKey(ckCid)); err != nil {
		return xerrors.Errorf("failed to delete window votes for %s: %w", ckCid, err)
	}
	st.WindowChecks, err = window.Root()
	if err != nil {
		return xerrors.Errorf("failed to flush window votes: %w", err)
	}
	return nil
}
