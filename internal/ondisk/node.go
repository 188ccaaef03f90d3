package ondisk

import "encoding/binary"

// NodeFooterSize is the packed size of the trailer every node block
// (inode, direct, and indirect alike) carries, identifying it within the
// node tree independent of its own nid-to-LPA mapping.
const NodeFooterSize = 16

// NodeFooter mirrors struct node_footer: every node block (inode, direct,
// or indirect) ends with one, so a node fetched by nid alone can still
// answer "whose file am I in, and where in the tree". NextBlkaddr is
// carried for on-disk layout fidelity but unused by the core (SPOR
// recovery was never implemented against it).
type NodeFooter struct {
	Nid           Nid
	Ino           Ino
	Offset        uint32 // this node's index among its parent's sub-nid slots
	NextBlkaddrUnused uint32
}

func (f *NodeFooter) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(f.Nid))
	le.PutUint32(buf[4:], uint32(f.Ino))
	le.PutUint32(buf[8:], f.Offset)
	le.PutUint32(buf[12:], f.NextBlkaddrUnused)
}

func (f *NodeFooter) Decode(buf []byte) {
	le := binary.LittleEndian
	f.Nid = Nid(le.Uint32(buf[0:]))
	f.Ino = Ino(le.Uint32(buf[4:]))
	f.Offset = le.Uint32(buf[8:])
	f.NextBlkaddrUnused = le.Uint32(buf[12:])
}

// InodeEncodedSize is the on-disk size of an inode block's fixed fields
// and arrays, excluding the trailing NodeFooter.
const InodeEncodedSize = 52 + DirectPerInode*4 + NidsPerInode*4

// Inode mirrors struct hscfs_inode: file metadata plus the first level
// of the node index tree (932 inline direct pointers and 5 sub-nid
// slots reaching the rest, per the arithmetic in internal/filemap).
type Inode struct {
	Ino       Ino
	FileType  FileType
	Nlink     uint32
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64

	// Direct holds the inline data-block LPAs for file offsets
	// [0, DirectPerInode*BlockSize).
	Direct [DirectPerInode]LPA

	// Nids holds the five sub-node pointers, indexed by NodeDirect1..
	// NodeDIndirect, reaching file offsets beyond the inline range.
	Nids [NidsPerInode]Nid

	Footer NodeFooter
}

func (n *Inode) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(n.Ino))
	buf[4] = byte(n.FileType)
	le.PutUint32(buf[8:], n.Nlink)
	le.PutUint64(buf[12:], n.Size)
	le.PutUint64(buf[20:], n.Blocks)
	le.PutUint64(buf[28:], n.Atime)
	le.PutUint64(buf[36:], n.Mtime)
	le.PutUint64(buf[44:], n.Ctime)
	off := 52
	for i := range n.Direct {
		le.PutUint32(buf[off+i*4:], uint32(n.Direct[i]))
	}
	off += DirectPerInode * 4
	for i := range n.Nids {
		le.PutUint32(buf[off+i*4:], uint32(n.Nids[i]))
	}
	off += NidsPerInode * 4
	n.Footer.Encode(buf[off:])
}

func (n *Inode) Decode(buf []byte) {
	le := binary.LittleEndian
	n.Ino = Ino(le.Uint32(buf[0:]))
	n.FileType = FileType(buf[4])
	n.Nlink = le.Uint32(buf[8:])
	n.Size = le.Uint64(buf[12:])
	n.Blocks = le.Uint64(buf[20:])
	n.Atime = le.Uint64(buf[28:])
	n.Mtime = le.Uint64(buf[36:])
	n.Ctime = le.Uint64(buf[44:])
	off := 52
	for i := range n.Direct {
		n.Direct[i] = LPA(le.Uint32(buf[off+i*4:]))
	}
	off += DirectPerInode * 4
	for i := range n.Nids {
		n.Nids[i] = Nid(le.Uint32(buf[off+i*4:]))
	}
	off += NidsPerInode * 4
	n.Footer.Decode(buf[off:])
}

// IndirectNodeEncodedSize is the on-disk size of an indirect/direct node
// block's pointer array, excluding its trailing NodeFooter.
const IndirectNodeEncodedSize = NidsPerBlock * 4

// IndirectNode mirrors struct hscfs_indirect_node: a flat array of 1020
// pointers (interpreted as data LPAs for a direct node, or nids for an
// indirect/double-indirect node depending on tree depth) plus a footer.
type IndirectNode struct {
	Entries [NidsPerBlock]uint32
	Footer  NodeFooter
}

func (n *IndirectNode) Encode(buf []byte) {
	le := binary.LittleEndian
	for i, v := range n.Entries {
		le.PutUint32(buf[i*4:], v)
	}
	n.Footer.Encode(buf[IndirectNodeEncodedSize:])
}

func (n *IndirectNode) Decode(buf []byte) {
	le := binary.LittleEndian
	for i := range n.Entries {
		n.Entries[i] = le.Uint32(buf[i*4:])
	}
	n.Footer.Decode(buf[IndirectNodeEncodedSize:])
}
