package subnetactor

import (
	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// ConsensusType tags the consensus algorithm run inside the subnet.
// Opaque to this actor beyond being recorded and echoed back to callers.
type ConsensusType uint64

const (
	Delegated ConsensusType = iota
	PoW
	PoS
)

// Status describes where in its lifecycle a subnet currently is.
type Status uint64

const (
	Instantiated Status = iota // onboarding collateral and validators, not yet Active
	Active                     // registered, collateral and validator count both above threshold
	Inactive                   // was Active, lost all of its validators
	Terminating                // kill() accepted, waiting for the SCA to acknowledge
	Killed                     // fully wound down; no further mutation is permitted
)

func (s Status) String() string {
	switch s {
	case Instantiated:
		return "Instantiated"
	case Active:
		return "Active"
	case Inactive:
		return "Inactive"
	case Terminating:
		return "Terminating"
	case Killed:
		return "Killed"
	default:
		return "Unknown"
	}
}

// ConstructParams seeds a new subnet's state. Method 1.
type ConstructParams struct {
	Parent            address.SubnetID
	Name              string
	Consensus         ConsensusType
	MinValidatorStake abi.TokenAmount
	MinValidators     uint64
	FinalityThreshold abi.ChainEpoch
	CheckPeriod       abi.ChainEpoch
	Genesis           []byte
}

// JoinParams carries the joining validator's network address. Method 2;
// the collateral amount itself travels as the message's attached value,
// not as a field here.
type JoinParams struct {
	ValidatorNetAddr string
}
