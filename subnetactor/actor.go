package subnetactor

import (
	"bytes"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/specs-actors/v6/actors/builtin"
	"github.com/filecoin-project/specs-actors/v6/actors/runtime"
	"github.com/filecoin-project/specs-actors/v6/actors/util/adt"
	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"

	"github.com/consensus-shipyard/hc-subnet-actor/ext"
	"github.com/consensus-shipyard/hc-subnet-actor/schema"
)

var log = logging.Logger("subnetactor")

// Code is this actor's on-chain code id. A real deployment carries
// this in a registry shared with the init actor; it is declared here,
// the way the specs-actors family derives its own builtin code ids,
// so Code() has somewhere real to point.
var Code = func() cid.Cid {
	sum, err := mh.Sum([]byte("fil/6/subnetactor"), mh.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, sum)
}()

var _ runtime.VMActor = Actor{}

// Methods enumerates this actor's exported method numbers.
var Methods = struct {
	Constructor      abi.MethodNum
	Join             abi.MethodNum
	Leave            abi.MethodNum
	Kill             abi.MethodNum
	SubmitCheckpoint abi.MethodNum
}{builtin.MethodConstructor, 2, 3, 4, 5}

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		builtin.MethodConstructor: a.Constructor,
		2:                         a.Join,
		3:                         a.Leave,
		4:                         a.Kill,
		5:                         a.SubmitCheckpoint,
	}
}

func (a Actor) Code() cid.Cid {
	return Code
}

func (a Actor) IsSingleton() bool {
	return false
}

func (a Actor) State() cbor.Er {
	return new(State)
}

// Constructor accepts two callers: the init actor during subnet
// deployment, and TestAddrID, so unit tests can construct state without
// a real init actor in the harness. TestAddrID is accepted in every
// deployment; state built by any caller other than the init actor is
// marked Testing.
func (a Actor) Constructor(rt runtime.Runtime, params *ConstructParams) *abi.EmptyValue {
	testAddr, err := address.NewIDAddress(uint64(TestAddrID))
	if err != nil {
		panic(err)
	}
	rt.ValidateImmediateCallerIs(builtin.InitActorAddr, testAddr)
	testing := rt.Caller() != builtin.InitActorAddr

	st, err := ConstructState(adt.AsStore(rt), params, testing)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct state")
	rt.StateCreate(st)
	return nil
}

// Join stakes the message's attached value on behalf of the caller,
// advertising validatorNetAddr as its network address once it becomes
// (or remains) a validator. While the subnet is still Instantiated, a
// join after which the actor's balance is at or above
// ActivationThreshold registers the subnet with the SCA, sending the
// full TotalStake; every other join only reports the attached value via
// AddStake. A subnet that stays Instantiated after the threshold is
// crossed (too few validators) registers again on each later join.
func (a Actor) Join(rt runtime.Runtime, params *JoinParams) *abi.EmptyValue {
	rt.ValidateImmediateCallerType(builtin.AccountActorCodeID)
	caller := rt.Caller()
	value := rt.ValueReceived()
	if value.LessThanEqual(big.Zero()) {
		rt.Abortf(exitcode.ErrIllegalArgument, "join must attach a positive amount of stake")
	}

	var st State
	var wasInstantiated, crossedThreshold bool
	rt.StateTransaction(&st, func() {
		if st.Status == Terminating || st.Status == Killed {
			rt.Abortf(exitcode.ErrForbidden, "subnet is winding down, no longer accepts validators")
		}
		wasInstantiated = st.Status == Instantiated
		_, err := st.addStake(adt.AsStore(rt), caller, params.ValidatorNetAddr, value)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to credit stake")
		// The registration trigger below is the actor's actual on-chain
		// balance after credit, not the ledger-internal total_stake: they
		// coincide in normal operation, but the balance is the quantity
		// the protocol actually gates registration on.
		crossedThreshold = rt.CurrentBalance().GreaterThanEqual(ActivationThreshold)
		st.mutateState()
	})

	if wasInstantiated && crossedThreshold {
		code := rt.Send(ext.SCAActorAddr, ext.Methods.Register, nil, st.TotalStake, &builtin.Discard{})
		if !code.IsSuccess() {
			rt.Abortf(exitcode.ErrIllegalState, "failed to register subnet with parent")
		}
		log.Infow("subnet registered with parent", "validator", caller)
	} else {
		code := rt.Send(ext.SCAActorAddr, ext.Methods.AddStake, nil, value, &builtin.Discard{})
		if !code.IsSuccess() {
			rt.Abortf(exitcode.ErrIllegalState, "failed to report added stake to parent")
		}
	}

	return nil
}

// Leave withdraws the caller's full stake, returning it directly and,
// unless the subnet is already Terminating (kill has already asked the
// SCA to release everyone's stake in one shot), asking the SCA to
// release its matching reserve first.
func (a Actor) Leave(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerType(builtin.AccountActorCodeID)
	caller := rt.Caller()

	var st State
	rt.StateReadonly(&st)
	stake, err := st.getStake(adt.AsStore(rt), caller)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to read stake")
	if stake.LessThanEqual(big.Zero()) {
		rt.Abortf(exitcode.ErrIllegalArgument, "caller has no stake to withdraw")
	}

	if st.Status != Terminating {
		code := rt.Send(ext.SCAActorAddr, ext.Methods.ReleaseStake, &ext.FundParams{Value: stake}, big.Zero(), &builtin.Discard{})
		if !code.IsSuccess() {
			rt.Abortf(exitcode.ErrIllegalState, "failed to request stake release from parent")
		}
	}

	rt.StateTransaction(&st, func() {
		err := st.removeStake(adt.AsStore(rt), caller, stake)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to debit stake")
		st.mutateState()
	})

	code := rt.Send(caller, builtin.MethodSend, nil, stake, &builtin.Discard{})
	if !code.IsSuccess() {
		rt.Abortf(exitcode.ErrIllegalState, "failed to return stake to validator")
	}

	return nil
}

// Kill begins (and, once the SCA acknowledges, completes) subnet
// teardown. It may only be requested once every staker, validator or
// not, has already left (TotalStake is zero): ACL is deliberately uniform with this actor's other mutating
// methods (account actors only), even though kill() in the consensus
// this actor is modeled on was unrestricted, since an unauthenticated
// kill would let any actor on the parent chain tear down a subnet it
// has no stake in.
func (a Actor) Kill(rt runtime.Runtime, _ *abi.EmptyValue) *abi.EmptyValue {
	rt.ValidateImmediateCallerType(builtin.AccountActorCodeID)

	var st State
	rt.StateTransaction(&st, func() {
		if st.Status == Terminating || st.Status == Killed {
			rt.Abortf(exitcode.ErrIllegalState, "subnet is already winding down")
		}
		if !st.TotalStake.IsZero() {
			rt.Abortf(exitcode.ErrForbidden, "subnet still holds staked collateral; everyone must leave first")
		}
		st.Status = Terminating
	})

	code := rt.Send(ext.SCAActorAddr, ext.Methods.Kill, nil, big.Zero(), &builtin.Discard{})
	if !code.IsSuccess() {
		rt.Abortf(exitcode.ErrIllegalState, "failed to notify parent of subnet kill")
	}

	rt.StateTransaction(&st, func() {
		st.Status = Killed
	})
	log.Infow("subnet killed", "subnet", st.Name)

	return nil
}

// SubmitCheckpoint registers the caller's vote for a checkpoint and,
// once that vote reaches supermajority, commits it and forwards it to
// the SCA for inclusion in the parent's view of this subnet.
func (a Actor) SubmitCheckpoint(rt runtime.Runtime, ch *schema.Checkpoint) *abi.EmptyValue {
	rt.ValidateImmediateCallerType(builtin.AccountActorCodeID)
	caller := rt.Caller()

	var st State
	var committed bool
	rt.StateTransaction(&st, func() {
		if st.Status != Active {
			rt.Abortf(exitcode.ErrIllegalState, "checkpoints may only be submitted while the subnet is active")
		}
		isValidator, err := st.isValidator(adt.AsStore(rt), caller)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to check validator membership")
		if !isValidator {
			rt.Abortf(exitcode.ErrForbidden, "only validators may submit checkpoints")
		}

		source := address.NewSubnetID(st.Parent, rt.Receiver()).String()
		err = st.verifyCheckpoint(adt.AsStore(rt), source, ch)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalArgument, "checkpoint failed verification")

		committed, err = st.submitCheckpoint(adt.AsStore(rt), caller, ch)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to tally checkpoint vote")
	})

	if committed {
		var buf bytes.Buffer
		if err := ch.MarshalCBOR(&buf); err != nil {
			rt.Abortf(exitcode.ErrIllegalState, "failed to marshal committed checkpoint: %s", err)
		}
		code := rt.Send(ext.SCAActorAddr, ext.Methods.CommitChildCheckpoint, &ext.CheckpointParams{Checkpoint: buf.Bytes()}, big.Zero(), &builtin.Discard{})
		if !code.IsSuccess() {
			rt.Abortf(exitcode.ErrIllegalState, "failed to forward committed checkpoint to parent")
		}
		log.Infow("checkpoint committed", "epoch", ch.Data.Epoch)
	}

	return nil
}
