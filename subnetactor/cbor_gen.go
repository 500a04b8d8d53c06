package subnetactor

// Marshal/unmarshal implementations for the types that cross the state
// root or a HAMT/BalanceTable boundary. In a checked-out copy of this
// repo these would normally be produced by `cbor-gen` the same way the
// rest of the specs-actors family generates its state codecs; they are
// hand-authored here against the same github.com/whyrusleeping/cbor-gen
// primitives because this environment never runs `go generate`.

import (
	"fmt"
	"io"

	address "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cid "github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

func writeUint(w io.Writer, v uint64) error {
	return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, v)
}

func readUint(br *cbg.CborReader, scratch []byte) (uint64, error) {
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return 0, err
	}
	if maj != cbg.MajUnsignedInt {
		return 0, fmt.Errorf("expected unsigned int major type, got %d", maj)
	}
	return extra, nil
}

func writeString(w io.Writer, s string) error {
	return cbg.WriteString(w, s)
}

func readString(br *cbg.CborReader) (string, error) {
	return cbg.ReadString(br)
}

func writeBytes(w io.Writer, b []byte) error {
	return cbg.WriteByteArray(w, b)
}

func readBytes(br *cbg.CborReader, maxLen uint64) ([]byte, error) {
	return cbg.ReadByteArray(br, maxLen)
}

func writeBool(w io.Writer, b bool) error {
	if b {
		_, err := w.Write(cbg.CborBoolTrue)
		return err
	}
	_, err := w.Write(cbg.CborBoolFalse)
	return err
}

func readBool(br *cbg.CborReader) (bool, error) {
	return cbg.ReadBool(br)
}

// writeOptionalCid and readOptionalCid handle a *cid.Cid the standard
// cbor-gen way: cid.Undef can't round-trip through cbg.WriteCid (it
// errors on an undefined cid), so an absent link is never encoded as
// one; it's encoded as CBOR null instead, the same as every other
// nullable cid field in this actor family.
func writeOptionalCid(w io.Writer, c *cid.Cid) error {
	if c == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	return cbg.WriteCid(w, *c)
}

func readOptionalCid(br *cbg.CborReader) (*cid.Cid, error) {
	b, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if b == cbg.CborNull[0] {
		return nil, nil
	}
	if err := br.UnreadByte(); err != nil {
		return nil, err
	}
	c, err := cbg.ReadCid(br)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConstructParams: 8 fields.

func (t *ConstructParams) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 8); err != nil {
		return err
	}
	if err := writeString(w, string(t.Parent)); err != nil {
		return err
	}
	if err := writeString(w, t.Name); err != nil {
		return err
	}
	if err := writeUint(w, uint64(t.Consensus)); err != nil {
		return err
	}
	if err := t.MinValidatorStake.MarshalCBOR(w); err != nil {
		return err
	}
	if err := writeUint(w, t.MinValidators); err != nil {
		return err
	}
	if err := writeUint(w, uint64(t.FinalityThreshold)); err != nil {
		return err
	}
	if err := writeUint(w, uint64(t.CheckPeriod)); err != nil {
		return err
	}
	return writeBytes(w, t.Genesis)
}

func (t *ConstructParams) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 8 {
		return fmt.Errorf("ConstructParams: invalid tuple header")
	}

	parent, err := readString(br)
	if err != nil {
		return err
	}
	t.Parent = address.SubnetID(parent)

	if t.Name, err = readString(br); err != nil {
		return err
	}

	consensus, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.Consensus = ConsensusType(consensus)

	if err := t.MinValidatorStake.UnmarshalCBOR(br); err != nil {
		return err
	}

	if t.MinValidators, err = readUint(br, scratch); err != nil {
		return err
	}

	ft, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.FinalityThreshold = abi.ChainEpoch(ft)

	cp, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.CheckPeriod = abi.ChainEpoch(cp)

	t.Genesis, err = readBytes(br, 1<<20)
	return err
}

// JoinParams: 1 field.

func (t *JoinParams) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return writeString(w, t.ValidatorNetAddr)
}

func (t *JoinParams) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 1 {
		return fmt.Errorf("JoinParams: invalid tuple header")
	}
	t.ValidatorNetAddr, err = readString(br)
	return err
}

// Votes: 1 field, a list of addresses.

func (t *Votes) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(t.Validators))); err != nil {
		return err
	}
	for _, v := range t.Validators {
		if err := v.MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (t *Votes) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 1 {
		return fmt.Errorf("Votes: invalid tuple header")
	}
	maj, n, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray {
		return fmt.Errorf("Votes: expected array of validators")
	}
	t.Validators = make([]address.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		var a address.Address
		if err := a.UnmarshalCBOR(br); err != nil {
			return err
		}
		t.Validators = append(t.Validators, a)
	}
	return nil
}

// validatorInfo is the HAMT value type for the validator set: a
// validator's advertised network address.
type validatorInfo struct {
	NetAddr string
}

func (t *validatorInfo) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return writeString(w, t.NetAddr)
}

func (t *validatorInfo) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 1 {
		return fmt.Errorf("validatorInfo: invalid tuple header")
	}
	t.NetAddr, err = readString(br)
	return err
}

// State: the persisted root. 17 fields.

func (t *State) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 17); err != nil {
		return err
	}
	fields := []func() error{
		func() error { return writeString(w, string(t.Parent)) },
		func() error { return writeString(w, t.Name) },
		func() error { return writeUint(w, uint64(t.Consensus)) },
		func() error { return t.MinValidatorStake.MarshalCBOR(w) },
		func() error { return writeUint(w, t.MinValidators) },
		func() error { return writeUint(w, uint64(t.FinalityThreshold)) },
		func() error { return writeUint(w, uint64(t.CheckPeriod)) },
		func() error { return writeBytes(w, t.Genesis) },
		func() error { return writeUint(w, uint64(t.Status)) },
		func() error { return t.TotalStake.MarshalCBOR(w) },
		func() error { return cbg.WriteCid(w, t.Stake) },
		func() error { return cbg.WriteCid(w, t.ValidatorSet) },
		func() error { return writeUint(w, t.ValidatorCount) },
		func() error { return cbg.WriteCid(w, t.WindowChecks) },
		func() error { return writeOptionalCid(w, t.PrevCheckpoint) },
		func() error { return cbg.WriteCid(w, t.CommittedCheckpoints) },
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return err
		}
	}
	return writeBool(w, t.Testing)
}

func (t *State) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 17 {
		return fmt.Errorf("State: invalid tuple header, got %d fields", extra)
	}

	parent, err := readString(br)
	if err != nil {
		return err
	}
	t.Parent = address.SubnetID(parent)

	if t.Name, err = readString(br); err != nil {
		return err
	}

	consensus, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.Consensus = ConsensusType(consensus)

	var minVal big.Int
	if err := minVal.UnmarshalCBOR(br); err != nil {
		return err
	}
	t.MinValidatorStake = minVal

	if t.MinValidators, err = readUint(br, scratch); err != nil {
		return err
	}

	ft, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.FinalityThreshold = abi.ChainEpoch(ft)

	cp, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.CheckPeriod = abi.ChainEpoch(cp)

	if t.Genesis, err = readBytes(br, 1<<20); err != nil {
		return err
	}

	status, err := readUint(br, scratch)
	if err != nil {
		return err
	}
	t.Status = Status(status)

	var total big.Int
	if err := total.UnmarshalCBOR(br); err != nil {
		return err
	}
	t.TotalStake = total

	if t.Stake, err = cbg.ReadCid(br); err != nil {
		return err
	}
	if t.ValidatorSet, err = cbg.ReadCid(br); err != nil {
		return err
	}
	if t.ValidatorCount, err = readUint(br, scratch); err != nil {
		return err
	}
	if t.WindowChecks, err = cbg.ReadCid(br); err != nil {
		return err
	}
	if t.PrevCheckpoint, err = readOptionalCid(br); err != nil {
		return err
	}
	if t.CommittedCheckpoints, err = cbg.ReadCid(br); err != nil {
		return err
	}
	t.Testing, err = readBool(br)
	return err
}

