package subnetactor_test

import (
	"bytes"
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/specs-actors/v6/actors/builtin"
	"github.com/filecoin-project/specs-actors/v6/support/mock"
	tutil "github.com/filecoin-project/specs-actors/v6/support/testing"
	"github.com/stretchr/testify/require"

	"github.com/consensus-shipyard/hc-subnet-actor/ext"
	"github.com/consensus-shipyard/hc-subnet-actor/schema"
	"github.com/consensus-shipyard/hc-subnet-actor/subnetactor"
)

func newRuntime(t *testing.T) *mock.Runtime {
	builder := mock.NewBuilder(tutil.NewIDAddr(t, 100)).
		WithActorType(tutil.NewIDAddr(t, 100), (subnetactor.Actor{}).Code()).
		WithCaller(builtin.InitActorAddr, builtin.InitActorCodeID).
		WithBalance(big.Mul(big.NewInt(1000), big.NewInt(1e18)), big.Zero())
	return builder.Build(t)
}

func construct(t *testing.T, rt *mock.Runtime, minValidators uint64, minStake abi.TokenAmount) {
	params := &subnetactor.ConstructParams{
		Parent:            address.SubnetID("/root"),
		Name:              "test-subnet",
		Consensus:         subnetactor.PoW,
		MinValidatorStake: minStake,
		MinValidators:     minValidators,
		FinalityThreshold: 5,
		CheckPeriod:       10,
		Genesis:           []byte("genesis"),
	}
	rt.ExpectValidateCallerAddr(builtin.InitActorAddr, mustTestAddr(t))
	rt.Call(subnetactor.Actor{}.Constructor, params)
	rt.Verify()
}

func mustTestAddr(t *testing.T) address.Address {
	a, err := address.NewIDAddress(uint64(subnetactor.TestAddrID))
	require.NoError(t, err)
	return a
}

// join submits a Join call attaching value. expectSCAMethod/expectSCAValue
// describe the single outbound send Join is expected to make: AddStake
// always carries the attached value, but Register carries the subnet's
// total stake after credit, not the value just attached (spec.md §4.3
// step 3), so callers pass the two independently.
func join(t *testing.T, rt *mock.Runtime, validator address.Address, value abi.TokenAmount, expectSCAMethod abi.MethodNum, expectSCAValue abi.TokenAmount) {
	rt.SetCaller(validator, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerType(builtin.AccountActorCodeID)
	rt.SetReceived(value)
	rt.ExpectSend(ext.SCAActorAddr, expectSCAMethod, nil, expectSCAValue, nil, exitcode.Ok)
	rt.Call(subnetactor.Actor{}.Join, &subnetactor.JoinParams{ValidatorNetAddr: "127.0.0.1:1347"})
	rt.Verify()
}

func TestConstructor(t *testing.T) {
	rt := newRuntime(t)
	construct(t, rt, 2, abi.NewTokenAmount(1e17))

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Instantiated, st.Status)
	require.True(t, st.TotalStake.IsZero())
	require.Equal(t, uint64(0), st.ValidatorCount)
}

func TestJoinBelowThresholdThenActivates(t *testing.T) {
	rt := newRuntime(t)
	minStake := abi.NewTokenAmount(1e17)
	construct(t, rt, 2, minStake)

	// Join gates registration on the actor's on-chain balance after
	// credit, so the balance is set to the stake held after each join
	// instead of the pre-funded default.
	v1 := tutil.NewIDAddr(t, 101)
	rt.SetBalance(minStake)
	join(t, rt, v1, minStake, ext.Methods.AddStake, minStake)

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Instantiated, st.Status, "one validator alone must not activate the subnet")
	require.Equal(t, uint64(1), st.ValidatorCount)

	v2 := tutil.NewIDAddr(t, 102)
	remaining := big.Sub(subnetactor.ActivationThreshold, minStake)
	rt.SetBalance(subnetactor.ActivationThreshold)
	join(t, rt, v2, remaining, ext.Methods.Register, subnetactor.ActivationThreshold)

	rt.GetState(&st)
	require.Equal(t, subnetactor.Active, st.Status, "crossing both thresholds must activate the subnet")
	require.Equal(t, uint64(2), st.ValidatorCount)
}

func TestSecondValidatorAddsStakeAfterActivation(t *testing.T) {
	rt := newRuntime(t)
	minStake := abi.NewTokenAmount(1e17)
	construct(t, rt, 1, minStake)

	v1 := tutil.NewIDAddr(t, 101)
	join(t, rt, v1, subnetactor.ActivationThreshold, ext.Methods.Register, subnetactor.ActivationThreshold)

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Active, st.Status)

	v2 := tutil.NewIDAddr(t, 102)
	join(t, rt, v2, minStake, ext.Methods.AddStake, minStake)

	rt.GetState(&st)
	require.Equal(t, subnetactor.Active, st.Status)
	require.Equal(t, uint64(2), st.ValidatorCount)
}

func TestLeaveReturnsFundsAndDeregisters(t *testing.T) {
	rt := newRuntime(t)
	construct(t, rt, 1, subnetactor.ActivationThreshold)

	v1 := tutil.NewIDAddr(t, 101)
	join(t, rt, v1, subnetactor.ActivationThreshold, ext.Methods.Register, subnetactor.ActivationThreshold)

	rt.SetCaller(v1, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerType(builtin.AccountActorCodeID)
	rt.ExpectSend(ext.SCAActorAddr, ext.Methods.ReleaseStake, &ext.FundParams{Value: subnetactor.ActivationThreshold}, big.Zero(), nil, exitcode.Ok)
	rt.ExpectSend(v1, builtin.MethodSend, nil, subnetactor.ActivationThreshold, nil, exitcode.Ok)
	rt.Call(subnetactor.Actor{}.Leave, nil)
	rt.Verify()

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Inactive, st.Status, "the last validator leaving must deactivate the subnet")
	require.Equal(t, uint64(0), st.ValidatorCount)
	require.True(t, st.TotalStake.IsZero())
}

func TestKillForbiddenWhileValidatorsRemain(t *testing.T) {
	rt := newRuntime(t)
	construct(t, rt, 1, subnetactor.ActivationThreshold)

	v1 := tutil.NewIDAddr(t, 101)
	join(t, rt, v1, subnetactor.ActivationThreshold, ext.Methods.Register, subnetactor.ActivationThreshold)

	rt.SetCaller(v1, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerType(builtin.AccountActorCodeID)
	require.Panics(t, func() {
		rt.Call(subnetactor.Actor{}.Kill, nil)
	})
	rt.Verify()
}

func TestCheckpointReachesSupermajority(t *testing.T) {
	rt := newRuntime(t)
	minStake := abi.NewTokenAmount(1e17)
	construct(t, rt, 1, minStake)

	validators := []address.Address{
		tutil.NewIDAddr(t, 101),
		tutil.NewIDAddr(t, 102),
		tutil.NewIDAddr(t, 103),
	}
	// v1 alone crosses ActivationThreshold and registers; v2 and v3 only
	// top up the SCA's record of stake already held.
	join(t, rt, validators[0], subnetactor.ActivationThreshold, ext.Methods.Register, subnetactor.ActivationThreshold)
	join(t, rt, validators[1], minStake, ext.Methods.AddStake, minStake)
	join(t, rt, validators[2], minStake, ext.Methods.AddStake, minStake)

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Active, st.Status)

	source := address.NewSubnetID(st.Parent, tutil.NewIDAddr(t, 100)).String()
	ch := schema.NewRaw(source, 10, schema.NoPreviousCheck)

	for i, v := range validators {
		rt.SetCaller(v, builtin.AccountActorCodeID)
		rt.ExpectValidateCallerType(builtin.AccountActorCodeID)
		if i == 1 {
			// the second of three votes reaches ceil(2*3/3) = 2, so this is
			// the vote that tips the checkpoint into commitment.
			ckBytes := mustMarshal(t, ch)
			rt.ExpectSend(ext.SCAActorAddr, ext.Methods.CommitChildCheckpoint, &ext.CheckpointParams{Checkpoint: ckBytes}, big.Zero(), nil, exitcode.Ok)
		}
		rt.Call(subnetactor.Actor{}.SubmitCheckpoint, ch)
		rt.Verify()
		if i == 1 {
			break
		}
	}

	rt.GetState(&st)
	committedCid, err := ch.Cid()
	require.NoError(t, err)
	require.NotNil(t, st.PrevCheckpoint)
	require.Equal(t, committedCid, *st.PrevCheckpoint)
}

// TestCheckpointCommitsWithSingleValidator covers the N=1 boundary: a
// lone validator's first vote already reaches ceil(2*1/3)=1, so the
// checkpoint commits without the window-vote entry ever having been
// persisted. This is the configuration the reference implementation's
// own default parameters use.
func TestCheckpointCommitsWithSingleValidator(t *testing.T) {
	rt := newRuntime(t)
	construct(t, rt, 1, subnetactor.ActivationThreshold)

	v1 := tutil.NewIDAddr(t, 101)
	join(t, rt, v1, subnetactor.ActivationThreshold, ext.Methods.Register, subnetactor.ActivationThreshold)

	var st subnetactor.State
	rt.GetState(&st)
	require.Equal(t, subnetactor.Active, st.Status)

	source := address.NewSubnetID(st.Parent, tutil.NewIDAddr(t, 100)).String()
	ch := schema.NewRaw(source, 10, schema.NoPreviousCheck)
	ckBytes := mustMarshal(t, ch)

	rt.SetCaller(v1, builtin.AccountActorCodeID)
	rt.ExpectValidateCallerType(builtin.AccountActorCodeID)
	rt.ExpectSend(ext.SCAActorAddr, ext.Methods.CommitChildCheckpoint, &ext.CheckpointParams{Checkpoint: ckBytes}, big.Zero(), nil, exitcode.Ok)
	rt.Call(subnetactor.Actor{}.SubmitCheckpoint, ch)
	rt.Verify()

	rt.GetState(&st)
	committedCid, err := ch.Cid()
	require.NoError(t, err)
	require.NotNil(t, st.PrevCheckpoint)
	require.Equal(t, committedCid, *st.PrevCheckpoint)
}

func mustMarshal(t *testing.T, ch *schema.Checkpoint) []byte {
	var buf bytes.Buffer
	require.NoError(t, ch.MarshalCBOR(&buf))
	return buf.Bytes()
}
