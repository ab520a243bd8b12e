// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safemem

// BlockSeq represents a gather/scatter list of Blocks, as returned by
// pgalloc.MemoryFile.MapInternal for a range that spans multiple chunks.
// The zero value is an empty sequence.
type BlockSeq struct {
	blocks []Block
}

// BlockSeqOf returns a BlockSeq containing a single Block.
func BlockSeqOf(b Block) BlockSeq {
	return BlockSeq{blocks: []Block{b}}
}

// BlockSeqFromSlice returns a BlockSeq containing the given Blocks.
func BlockSeqFromSlice(blocks []Block) BlockSeq {
	return BlockSeq{blocks: blocks}
}

// NumBlocks returns the number of Blocks in the sequence.
func (bs BlockSeq) NumBlocks() int {
	return len(bs.blocks)
}

// IsEmpty returns true iff the sequence contains no Blocks.
func (bs BlockSeq) IsEmpty() bool {
	return len(bs.blocks) == 0
}

// NumBytes returns the total length of all Blocks in the sequence.
func (bs BlockSeq) NumBytes() uint64 {
	var n uint64
	for _, b := range bs.blocks {
		n += uint64(b.Len())
	}
	return n
}

// Head returns the first Block in the sequence. It panics if the sequence
// is empty.
func (bs BlockSeq) Head() Block {
	return bs.blocks[0]
}

// Tail returns the sequence with the first Block removed.
func (bs BlockSeq) Tail() BlockSeq {
	return BlockSeq{blocks: bs.blocks[1:]}
}

// ForEachBlock calls f for each Block in the sequence, in order.
func (bs BlockSeq) ForEachBlock(f func(Block)) {
	for _, b := range bs.blocks {
		f(b)
	}
}

// CopySeq copies min(dsts.NumBytes(), srcs.NumBytes()) bytes from srcs to
// dsts and returns the number of bytes copied.
func CopySeq(dsts, srcs BlockSeq) uint64 {
	var done uint64
	for !dsts.IsEmpty() && !srcs.IsEmpty() {
		dst, src := dsts.Head(), srcs.Head()
		n := Copy(dst, src)
		done += uint64(n)
		dst, src = dst.DropFirst(n), src.DropFirst(n)
		if dst.Len() == 0 {
			dsts = dsts.Tail()
		} else {
			dsts = BlockSeq{blocks: append([]Block{dst}, dsts.blocks[1:]...)}
		}
		if src.Len() == 0 {
			srcs = srcs.Tail()
		} else {
			srcs = BlockSeq{blocks: append([]Block{src}, srcs.blocks[1:]...)}
		}
	}
	return done
}

// ZeroSeq zeroes up to n bytes across dsts and returns the number of bytes
// zeroed.
func ZeroSeq(dsts BlockSeq, n uint64) uint64 {
	var done uint64
	for !dsts.IsEmpty() && done < n {
		b := dsts.Head()
		remaining := n - done
		take := uint64(b.Len())
		if take > remaining {
			take = remaining
		}
		done += uint64(ZeroOut(b, int(take)))
		dsts = dsts.Tail()
	}
	return done
}
