// Package ext declares the slice of the Subnet Coordinator Actor's
// (SCA's) interface this core depends on as an outbound collaborator.
//
// The SCA itself — its state, its own ACL, its checkpoint bookkeeping —
// is out of scope for this repository; it is deployed separately at a
// well-known address on the parent chain. This package carries only
// what a caller needs to address it and shape the parameters of the
// five messages this actor ever sends it.
package ext

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// SCAActorAddr is the SCA's well-known actor id on the parent chain.
var SCAActorAddr = func() address.Address {
	a, err := address.NewIDAddress(64)
	if err != nil {
		panic(err)
	}
	return a
}()

// Methods enumerates the SCA method numbers this actor calls.
var Methods = struct {
	Register              abi.MethodNum
	AddStake              abi.MethodNum
	ReleaseStake          abi.MethodNum
	Kill                  abi.MethodNum
	CommitChildCheckpoint abi.MethodNum
}{2, 3, 4, 5, 6}

// FundParams is the parameter struct for ReleaseStake: the amount of
// collateral the subnet actor is asking the SCA to release back to it.
type FundParams struct {
	Value abi.TokenAmount
}

// CheckpointParams wraps a marshalled checkpoint for CommitChildCheckpoint.
// The SCA treats checkpoint schemas as opaque bytes, the same way this
// actor does for the application payload inside a checkpoint's Data.
type CheckpointParams struct {
	Checkpoint []byte
}
