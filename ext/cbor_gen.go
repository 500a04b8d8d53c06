package ext

// Hand-authored in lieu of a cbor-gen run; see subnetactor/cbor_gen.go
// for the same convention applied to this module's own state types.

import (
	"fmt"
	"io"

	cbg "github.com/whyrusleeping/cbor-gen"
)

func (t *FundParams) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return t.Value.MarshalCBOR(w)
}

func (t *FundParams) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 1 {
		return fmt.Errorf("FundParams: invalid tuple header")
	}
	return t.Value.UnmarshalCBOR(br)
}

func (t *CheckpointParams) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 1); err != nil {
		return err
	}
	return cbg.WriteByteArray(w, t.Checkpoint)
}

func (t *CheckpointParams) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 8)
	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 1 {
		return fmt.Errorf("CheckpointParams: invalid tuple header")
	}
	t.Checkpoint, err = cbg.ReadByteArray(br, 1<<20)
	return err
}
