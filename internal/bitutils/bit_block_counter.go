// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitutils provides block-at-a-time scanners over validity
// bitmaps so kernels can take branch-free fast paths through all-valid
// and all-null regions instead of testing every bit.
package bitutils

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/apache/arrow/go/v17/arrow/bitutil"
)

const wordBits = 64

// BitBlockCount is a run of bits scanned from a bitmap along with the
// number of set bits in that run.
type BitBlockCount struct {
	Len    int16
	Popcnt int16
}

// AllSet returns true if all the bits in this block are set.
func (b BitBlockCount) AllSet() bool { return b.Len == b.Popcnt }

// NoneSet returns true if none of the bits in this block are set.
func (b BitBlockCount) NoneSet() bool { return b.Popcnt == 0 }

// loadWord reads up to 8 bytes little-endian, tolerating a short tail so
// callers don't have to rely on buffer padding.
func loadWord(b []byte) uint64 {
	if len(b) >= 8 {
		return binary.LittleEndian.Uint64(b)
	}
	var tail [8]byte
	copy(tail[:], b)
	return binary.LittleEndian.Uint64(tail[:])
}

// shiftWord recovers a bit-aligned 64-bit window from two adjacent words
// when the bitmap does not start on a byte boundary.
func shiftWord(current, next uint64, shift int64) uint64 {
	if shift == 0 {
		return current
	}
	return (current >> shift) | (next << (64 - shift))
}

// BitBlockCounter scans a bitmap one 64- or 256-bit block at a time,
// returning the popcount of each block.
type BitBlockCounter struct {
	bitmap        []byte
	bitsRemaining int64
	bitOffset     int8
}

func NewBitBlockCounter(bitmap []byte, startOffset, length int64) *BitBlockCounter {
	return &BitBlockCounter{
		bitmap:        bitmap[startOffset/8:],
		bitsRemaining: length,
		bitOffset:     int8(startOffset % 8),
	}
}

// getBlockSlow handles the trailing bits that don't fill a whole block.
func (b *BitBlockCounter) getBlockSlow(blockSize int64) BitBlockCount {
	runLength := int16(min64(b.bitsRemaining, blockSize))
	popcnt := int16(bitutil.CountSetBits(b.bitmap, int(b.bitOffset), int(runLength)))
	b.bitsRemaining -= int64(runLength)
	b.bitmap = b.bitmap[runLength/8:]
	return BitBlockCount{Len: runLength, Popcnt: popcnt}
}

// NextWord returns the next run of up to 64 bits, along with the number
// of those bits that were set. A zero-length block signals exhaustion;
// calling NextWord after that stays safe and keeps returning zero blocks.
func (b *BitBlockCounter) NextWord() BitBlockCount {
	if b.bitsRemaining <= 0 {
		return BitBlockCount{}
	}

	var popcnt int
	if b.bitOffset == 0 {
		if b.bitsRemaining < wordBits {
			return b.getBlockSlow(wordBits)
		}
		popcnt = bits.OnesCount64(loadWord(b.bitmap))
	} else {
		// the word spills into the following byte
		if b.bitsRemaining < wordBits+int64(8-b.bitOffset) {
			return b.getBlockSlow(wordBits)
		}
		popcnt = bits.OnesCount64(shiftWord(loadWord(b.bitmap),
			loadWord(b.bitmap[8:]), int64(b.bitOffset)))
	}
	b.bitmap = b.bitmap[8:]
	b.bitsRemaining -= wordBits
	return BitBlockCount{Len: wordBits, Popcnt: int16(popcnt)}
}

// NextFourWords is like NextWord but covers up to 256 bits at a time,
// amortizing the per-block bookkeeping over larger runs.
func (b *BitBlockCounter) NextFourWords() BitBlockCount {
	if b.bitsRemaining <= 0 {
		return BitBlockCount{}
	}

	var totalPopcnt int
	if b.bitOffset == 0 {
		if b.bitsRemaining < 4*wordBits {
			return b.getBlockSlow(4 * wordBits)
		}
		totalPopcnt = bits.OnesCount64(loadWord(b.bitmap)) +
			bits.OnesCount64(loadWord(b.bitmap[8:])) +
			bits.OnesCount64(loadWord(b.bitmap[16:])) +
			bits.OnesCount64(loadWord(b.bitmap[24:]))
	} else {
		if b.bitsRemaining < 4*wordBits+int64(8-b.bitOffset) {
			return b.getBlockSlow(4 * wordBits)
		}
		shift := int64(b.bitOffset)
		current := loadWord(b.bitmap)
		for i := 0; i < 4; i++ {
			next := loadWord(b.bitmap[8*(i+1):])
			totalPopcnt += bits.OnesCount64(shiftWord(current, next, shift))
			current = next
		}
	}
	b.bitmap = b.bitmap[32:]
	b.bitsRemaining -= 4 * wordBits
	return BitBlockCount{Len: 4 * wordBits, Popcnt: int16(totalPopcnt)}
}

// OptionalBitBlockCounter is a BitBlockCounter that also accepts a nil
// bitmap, in which case every block reports all bits set.
type OptionalBitBlockCounter struct {
	hasBitmap bool
	pos       int64
	length    int64
	counter   BitBlockCounter
}

func NewOptionalBitBlockCounter(bitmap []byte, offset, length int64) *OptionalBitBlockCounter {
	var counter BitBlockCounter
	hasBitmap := len(bitmap) > 0
	if hasBitmap {
		counter = *NewBitBlockCounter(bitmap, offset, length)
	}
	return &OptionalBitBlockCounter{
		hasBitmap: hasBitmap,
		length:    length,
		counter:   counter,
	}
}

const maxBlockLen = int64(math.MaxInt16)

// NextBlock returns block count for next word when the bitmap is present,
// and otherwise a virtual all-set block capped at the int16 limit.
func (o *OptionalBitBlockCounter) NextBlock() BitBlockCount {
	if o.hasBitmap {
		block := o.counter.NextWord()
		o.pos += int64(block.Len)
		return block
	}
	blockSize := int16(min64(maxBlockLen, o.length-o.pos))
	o.pos += int64(blockSize)
	return BitBlockCount{Len: blockSize, Popcnt: blockSize}
}

// NextWord is like NextBlock but always uses the word size even when no
// bitmap is present.
func (o *OptionalBitBlockCounter) NextWord() BitBlockCount {
	if o.hasBitmap {
		block := o.counter.NextWord()
		o.pos += int64(block.Len)
		return block
	}
	blockSize := int16(min64(wordBits, o.length-o.pos))
	o.pos += int64(blockSize)
	return BitBlockCount{Len: blockSize, Popcnt: blockSize}
}

// BinaryBitBlockCounter computes popcounts on the words of a bitwise
// combination of two bitmaps which may start at different bit offsets.
type BinaryBitBlockCounter struct {
	left, right               []byte
	leftOffset, rightOffset   int8
	bitsRemaining             int64
}

func NewBinaryBitBlockCounter(left, right []byte, leftOffset, rightOffset, length int64) *BinaryBitBlockCounter {
	return &BinaryBitBlockCounter{
		left:          left[leftOffset/8:],
		right:         right[rightOffset/8:],
		leftOffset:    int8(leftOffset % 8),
		rightOffset:   int8(rightOffset % 8),
		bitsRemaining: length,
	}
}

// NextAndWord returns the popcount of the next word of left AND right.
func (b *BinaryBitBlockCounter) NextAndWord() BitBlockCount {
	return b.nextWord(func(l, r uint64) uint64 { return l & r })
}

// NextOrWord returns the popcount of the next word of left OR right.
func (b *BinaryBitBlockCounter) NextOrWord() BitBlockCount {
	return b.nextWord(func(l, r uint64) uint64 { return l | r })
}

// NextOrNotWord returns the popcount of the next word of left OR NOT right.
func (b *BinaryBitBlockCounter) NextOrNotWord() BitBlockCount {
	return b.nextWord(func(l, r uint64) uint64 { return l | ^r })
}

func (b *BinaryBitBlockCounter) nextWord(op func(uint64, uint64) uint64) BitBlockCount {
	if b.bitsRemaining <= 0 {
		return BitBlockCount{}
	}

	// the worst aligned offset still fits inside one extra byte
	runLength := min64(b.bitsRemaining, wordBits)
	if runLength < wordBits ||
		b.bitsRemaining < wordBits+int64(8-b.leftOffset) ||
		b.bitsRemaining < wordBits+int64(8-b.rightOffset) {
		var popcnt int16
		for i := int64(0); i < runLength; i++ {
			var l, r uint64
			if bitutil.BitIsSet(b.left, int(int64(b.leftOffset)+i)) {
				l = 1
			}
			if bitutil.BitIsSet(b.right, int(int64(b.rightOffset)+i)) {
				r = 1
			}
			popcnt += int16(op(l, r) & 1)
		}
		b.bitsRemaining -= runLength
		b.left = b.left[runLength/8:]
		b.right = b.right[runLength/8:]
		return BitBlockCount{Len: int16(runLength), Popcnt: popcnt}
	}

	leftWord := shiftWord(loadWord(b.left), loadWord(b.left[8:]), int64(b.leftOffset))
	rightWord := shiftWord(loadWord(b.right), loadWord(b.right[8:]), int64(b.rightOffset))
	popcnt := bits.OnesCount64(op(leftWord, rightWord))

	b.left = b.left[8:]
	b.right = b.right[8:]
	b.bitsRemaining -= wordBits
	return BitBlockCount{Len: wordBits, Popcnt: int16(popcnt)}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
