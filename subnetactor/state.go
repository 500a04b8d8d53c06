package subnetactor

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/specs-actors/v6/actors/builtin"
	"github.com/filecoin-project/specs-actors/v6/actors/util/adt"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// ActivationThreshold is the global collateral watermark (the source's
// MIN_COLLATERAL_AMOUNT) that moves a subnet from Instantiated to
// Active. It is distinct from a subnet's own, per-validator
// MinValidatorStake.
//
// Kept at 1FIL like the teacher's MinSubnetStake/MinMinerStake globals;
// a real deployment would source this from the SCA's genesis parameters
// instead of hardcoding it here, but that wiring is the SCA's concern.
var ActivationThreshold = abi.NewTokenAmount(1e18)

// TestAddrID is the single bypass identity the constructor ACL accepts
// besides the init actor. It is a compile-time constant, never stored in
// state, so the bypass cannot be toggled post-deploy; the constructor
// accepts it regardless of any Testing flag.
const TestAddrID abi.ActorID = 339

// State is the subnet actor's single persisted root.
type State struct {
	Parent    address.SubnetID
	Name      string
	Consensus ConsensusType

	MinValidatorStake abi.TokenAmount
	MinValidators     uint64
	FinalityThreshold abi.ChainEpoch
	CheckPeriod       abi.ChainEpoch
	Genesis           []byte

	Status Status

	TotalStake abi.TokenAmount
	Stake      cid.Cid // BalanceTable: address -> TokenAmount

	ValidatorSet   cid.Cid // HAMT: address -> net address (string)
	ValidatorCount uint64  // cached |ValidatorSet|, kept in lockstep with TotalStake

	WindowChecks         cid.Cid  // HAMT: checkpoint cid -> Votes
	PrevCheckpoint       *cid.Cid // nil when no checkpoint has committed yet
	CommittedCheckpoints cid.Cid  // HAMT: epoch -> schema.Checkpoint

	// Testing records whether the state was constructed by a caller
	// other than the init actor (i.e. TestAddrID). It is set once at
	// construction and never changed; no handler reads it.
	Testing bool
}

// Votes is the set of validators that have signed off on a given
// candidate checkpoint cid. Order of arrival is preserved; duplicates
// are rejected by submitCheckpoint before they ever reach this slice.
type Votes struct {
	Validators []address.Address
}

// ConstructState builds the zero-value state for a freshly deployed
// subnet. It does not persist anything; the caller (Constructor) owns
// the single rt.StateCreate call.
func ConstructState(store adt.Store, params *ConstructParams, testing bool) (*State, error) {
	emptyStakeCid, err := adt.StoreEmptyMap(store, adt.BalanceTableBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty stake table: %w", err)
	}
	emptyValidatorsCid, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty validator set: %w", err)
	}
	emptyWindowChecksCid, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty window-checks table: %w", err)
	}
	emptyCommittedCid, err := adt.StoreEmptyMap(store, builtin.DefaultHamtBitwidth)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty committed-checkpoint table: %w", err)
	}

	return &State{
		Parent:               params.Parent,
		Name:                 params.Name,
		Consensus:            params.Consensus,
		MinValidatorStake:    params.MinValidatorStake,
		MinValidators:        params.MinValidators,
		FinalityThreshold:    params.FinalityThreshold,
		CheckPeriod:          params.CheckPeriod,
		Genesis:              params.Genesis,
		Status:               Instantiated,
		TotalStake:           big.Zero(),
		Stake:                emptyStakeCid,
		ValidatorSet:         emptyValidatorsCid,
		ValidatorCount:       0,
		WindowChecks:         emptyWindowChecksCid,
		PrevCheckpoint:       nil,
		CommittedCheckpoints: emptyCommittedCid,
		Testing:              testing,
	}, nil
}

// mutateState re-derives Status from the current TotalStake and
// ValidatorCount. It is the single place the lifecycle transition table
// of spec.md §4.3 is implemented, and is called at the end of every
// handler that can move stake or the validator set: join, leave.
//
// Terminating and Killed are not reachable from here; kill() sets them
// directly, since they are driven by an explicit call, not by collateral
// or validator-set size.
func (st *State) mutateState() {
	switch st.Status {
	case Instantiated:
		if st.isActivated() {
			st.Status = Active
		}
	case Active:
		if st.ValidatorCount == 0 {
			st.Status = Inactive
		}
	case Inactive:
		if st.isActivated() {
			st.Status = Active
		}
	}
}

func (st *State) isActivated() bool {
	return st.TotalStake.GreaterThanEqual(ActivationThreshold) &&
		st.ValidatorCount >= st.MinValidators
}

// hasMajority applies the ceiling 2/3 rule from spec.md §4.4, fixed
// against Design Note 9.3: a candidate needs at least ceil(2*N/3)
// distinct validator votes, where N is the current validator set size.
func hasMajority(votes int, totalValidators uint64) bool {
	if totalValidators == 0 {
		return false
	}
	need := ceilDiv(2*totalValidators, 3)
	return uint64(votes) >= need
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
