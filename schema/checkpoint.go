// Package schema defines the wire and content-addressing format for
// subnet checkpoints.
//
// A Checkpoint's Cid is computed over its Data only, the same way the
// hierarchical-consensus checkpoint schema always has: the signature
// (or, here, the aggregated vote set) travels alongside the checkpoint
// but never affects its identity.
package schema

import (
	"bytes"
	"io"

	"github.com/ipfs/go-cid"
	ipld "github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/ipld/go-ipld-prime/schema"
	"github.com/multiformats/go-multicodec"
	"golang.org/x/xerrors"
)

// Linkproto is the link prototype used to compute checkpoint Cids.
var Linkproto = cidlink.LinkPrototype{
	Prefix: cid.Prefix{
		Version:  1,
		Codec:    uint64(multicodec.DagCbor),
		MhType:   uint64(multicodec.Sha2_256),
		MhLength: 32,
	},
}

// NoPreviousCheck is the sentinel PrevCheckpoint value for the first
// checkpoint a subnet ever commits.
var NoPreviousCheck = cid.Undef

// CheckData is the linkage-relevant content of a checkpoint. The core
// does not interpret Data beyond carrying it: what a checkpoint
// "means" for a given subnet's consensus is opaque to this actor.
type CheckData struct {
	// Source is the string form of this subnet's own SubnetID. A
	// checkpoint whose Source doesn't match the subnet committing it
	// is rejected at verification.
	Source string
	// Epoch this checkpoint summarizes; must be a positive multiple
	// of the subnet's check period.
	Epoch int64
	// PrevCheckpoint is the Cid of the checkpoint committed at
	// Epoch - CheckPeriod, or NoPreviousCheck if there is none.
	PrevCheckpoint cid.Cid
	// Data is the opaque application payload.
	Data []byte
}

// Checkpoint is the structure validators vote on and that, once it
// reaches supermajority, is forwarded to the SCA.
type Checkpoint struct {
	Data CheckData
}

var checkpointSchema schema.Type

func init() {
	checkpointSchema = initCheckpointSchema()
}

func initCheckpointSchema() schema.Type {
	ts := schema.TypeSystem{}
	ts.Init()
	ts.Accumulate(schema.SpawnString("String"))
	ts.Accumulate(schema.SpawnInt("Int"))
	ts.Accumulate(schema.SpawnLink("Link"))
	ts.Accumulate(schema.SpawnBytes("Bytes"))
	ts.Accumulate(schema.SpawnStruct("CheckData",
		[]schema.StructField{
			schema.SpawnStructField("Source", "String", false, false),
			schema.SpawnStructField("Epoch", "Int", false, false),
			schema.SpawnStructField("PrevCheckpoint", "Link", false, false),
			schema.SpawnStructField("Data", "Bytes", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))
	ts.Accumulate(schema.SpawnStruct("Checkpoint",
		[]schema.StructField{
			schema.SpawnStructField("Data", "CheckData", false, false),
		},
		schema.SpawnStructRepresentationMap(nil),
	))
	return ts.TypeByName("Checkpoint")
}

// noStoreLinkSystem computes a link without persisting any bytes; used
// purely to derive a checkpoint's Cid.
func noStoreLinkSystem() ipld.LinkSystem {
	lsys := cidlink.DefaultLinkSystem()
	lsys.StorageWriteOpener = func(ipld.LinkContext) (io.Writer, ipld.BlockWriteCommitter, error) {
		buf := bytes.NewBuffer(nil)
		return buf, func(ipld.Link) error { return nil }, nil
	}
	return lsys
}

// NewRaw builds an empty checkpoint template for the given subnet,
// epoch, and predecessor link.
func NewRaw(source string, epoch int64, prev cid.Cid) *Checkpoint {
	return &Checkpoint{
		Data: CheckData{
			Source:         source,
			Epoch:          epoch,
			PrevCheckpoint: prev,
		},
	}
}

// MarshalCBOR encodes the checkpoint in the canonical DAG-CBOR
// representation used both for block storage and for the bytes sent
// onward to the SCA. Matches the cbor.Marshaler signature the rest of
// this module's state types use, so a *Checkpoint can be stored
// directly as a HAMT value.
func (c *Checkpoint) MarshalCBOR(w io.Writer) error {
	node := bindnode.Wrap(c, checkpointSchema)
	return dagcbor.Encode(node.Representation(), w)
}

// UnmarshalCBOR decodes a checkpoint previously produced by MarshalCBOR.
func (c *Checkpoint) UnmarshalCBOR(r io.Reader) error {
	nb := bindnode.Prototype(c, checkpointSchema).NewBuilder()
	if err := dagcbor.Decode(nb, r); err != nil {
		return err
	}
	n := bindnode.Unwrap(nb.Build())
	ch, ok := n.(*Checkpoint)
	if !ok {
		return xerrors.Errorf("unmarshalled node is not a Checkpoint")
	}
	*c = *ch
	return nil
}

// Cid is the checkpoint's content identifier, and the key both the
// vote table and the committed-checkpoint table index by.
func (c *Checkpoint) Cid() (cid.Cid, error) {
	lsys := noStoreLinkSystem()
	lnk, err := lsys.ComputeLink(Linkproto, bindnode.Wrap(c, checkpointSchema))
	if err != nil {
		return cid.Undef, err
	}
	return lnk.(cidlink.Link).Cid, nil
}

// Equals compares two checkpoints by content identity.
func (c *Checkpoint) Equals(other *Checkpoint) (bool, error) {
	c1, err := c.Cid()
	if err != nil {
		return false, err
	}
	c2, err := other.Cid()
	if err != nil {
		return false, err
	}
	return c1 == c2, nil
}
