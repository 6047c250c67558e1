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

package bitutils_test

import (
	"math"
	"testing"

	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/stretchr/testify/assert"

	"github.com/quiverdb/quiver/compute/internal/bitutils"
)

func TestBitBlockCounterBasics(t *testing.T) {
	const nbytes = 1024
	bitmap := make([]byte, nbytes)
	for i := range bitmap {
		bitmap[i] = 0xFF
	}

	counter := bitutils.NewBitBlockCounter(bitmap, 0, nbytes*8)
	for i := 0; i < nbytes/8; i++ {
		block := counter.NextWord()
		assert.EqualValues(t, 64, block.Len)
		assert.EqualValues(t, 64, block.Popcnt)
		assert.True(t, block.AllSet())
		assert.False(t, block.NoneSet())
	}

	// exhausted counters keep returning empty blocks
	block := counter.NextWord()
	assert.Zero(t, block.Len)
	assert.Zero(t, block.Popcnt)
	block = counter.NextWord()
	assert.Zero(t, block.Len)
}

func TestBitBlockCounterOffsets(t *testing.T) {
	bitmap := make([]byte, 16)
	// set every other bit
	for i := 0; i < 128; i += 2 {
		bitutil.SetBit(bitmap, i)
	}

	for _, offset := range []int64{0, 1, 2, 3, 7, 8, 9, 63, 64, 65} {
		length := int64(128) - offset
		counter := bitutils.NewBitBlockCounter(bitmap, offset, length)

		var total, popcnt int64
		for {
			block := counter.NextWord()
			if block.Len == 0 {
				break
			}
			total += int64(block.Len)
			popcnt += int64(block.Popcnt)
		}
		assert.Equal(t, length, total, "offset %d", offset)
		assert.EqualValues(t, bitutil.CountSetBits(bitmap, int(offset), int(length)), popcnt,
			"offset %d", offset)
	}
}

func TestBitBlockCounterTrailingBits(t *testing.T) {
	bitmap := make([]byte, 16)
	for i := 0; i < 100; i++ {
		bitutil.SetBit(bitmap, i)
	}

	counter := bitutils.NewBitBlockCounter(bitmap, 0, 100)
	block := counter.NextWord()
	assert.EqualValues(t, 64, block.Len)
	assert.EqualValues(t, 64, block.Popcnt)
	block = counter.NextWord()
	assert.EqualValues(t, 36, block.Len)
	assert.EqualValues(t, 36, block.Popcnt)
	assert.Zero(t, counter.NextWord().Len)
}

func TestBitBlockCounterFourWords(t *testing.T) {
	bitmap := make([]byte, 64)
	for i := 0; i < 512; i += 3 {
		bitutil.SetBit(bitmap, i)
	}

	for _, offset := range []int64{0, 1, 5, 8, 63} {
		length := int64(512) - offset
		counter := bitutils.NewBitBlockCounter(bitmap, offset, length)

		var total, popcnt int64
		for {
			block := counter.NextFourWords()
			if block.Len == 0 {
				break
			}
			total += int64(block.Len)
			popcnt += int64(block.Popcnt)
		}
		assert.Equal(t, length, total, "offset %d", offset)
		assert.EqualValues(t, bitutil.CountSetBits(bitmap, int(offset), int(length)), popcnt,
			"offset %d", offset)
	}
}

func TestOptionalBitBlockCounter(t *testing.T) {
	// a nil bitmap reports virtual all-set blocks
	counter := bitutils.NewOptionalBitBlockCounter(nil, 0, math.MaxInt16+100)
	block := counter.NextBlock()
	assert.EqualValues(t, math.MaxInt16, block.Len)
	assert.EqualValues(t, math.MaxInt16, block.Popcnt)
	block = counter.NextBlock()
	assert.EqualValues(t, 100, block.Len)
	assert.EqualValues(t, 100, block.Popcnt)
	assert.Zero(t, counter.NextBlock().Len)

	counter = bitutils.NewOptionalBitBlockCounter(nil, 0, 200)
	block = counter.NextWord()
	assert.EqualValues(t, 64, block.Len)
	assert.EqualValues(t, 64, block.Popcnt)

	bitmap := make([]byte, 16)
	for i := 0; i < 64; i++ {
		bitutil.SetBit(bitmap, i)
	}
	counter = bitutils.NewOptionalBitBlockCounter(bitmap, 0, 128)
	block = counter.NextBlock()
	assert.EqualValues(t, 64, block.Len)
	assert.EqualValues(t, 64, block.Popcnt)
	block = counter.NextBlock()
	assert.EqualValues(t, 64, block.Len)
	assert.Zero(t, block.Popcnt)
	assert.True(t, block.NoneSet())
}

func TestBinaryBitBlockCounter(t *testing.T) {
	left := make([]byte, 16)
	right := make([]byte, 16)
	for i := 0; i < 128; i += 2 {
		bitutil.SetBit(left, i)
	}
	for i := 0; i < 128; i += 3 {
		bitutil.SetBit(right, i)
	}

	naiveAnd := func(leftOffset, rightOffset, length int64) int64 {
		var count int64
		for i := int64(0); i < length; i++ {
			if bitutil.BitIsSet(left, int(leftOffset+i)) &&
				bitutil.BitIsSet(right, int(rightOffset+i)) {
				count++
			}
		}
		return count
	}

	for _, offsets := range [][2]int64{{0, 0}, {1, 0}, {0, 1}, {3, 5}, {7, 8}, {62, 62}} {
		length := int64(128) - offsets[0]
		if r := int64(128) - offsets[1]; r < length {
			length = r
		}
		counter := bitutils.NewBinaryBitBlockCounter(left, right, offsets[0], offsets[1], length)

		var total, popcnt int64
		for {
			block := counter.NextAndWord()
			if block.Len == 0 {
				break
			}
			total += int64(block.Len)
			popcnt += int64(block.Popcnt)
		}
		assert.Equal(t, length, total, "offsets %v", offsets)
		assert.Equal(t, naiveAnd(offsets[0], offsets[1], length), popcnt, "offsets %v", offsets)
	}
}

func TestBinaryBitBlockCounterOrVariants(t *testing.T) {
	left := []byte{0b10101010, 0b11001100}
	right := []byte{0b01010101, 0b00110011}

	counter := bitutils.NewBinaryBitBlockCounter(left, right, 0, 0, 16)
	block := counter.NextOrWord()
	assert.EqualValues(t, 16, block.Len)
	assert.EqualValues(t, 16, block.Popcnt)

	counter = bitutils.NewBinaryBitBlockCounter(left, right, 0, 0, 16)
	block = counter.NextAndWord()
	assert.EqualValues(t, 16, block.Len)
	assert.Zero(t, block.Popcnt)

	// left and ^right coincide here, so left | ^right keeps exactly
	// left's set bits
	counter = bitutils.NewBinaryBitBlockCounter(left, right, 0, 0, 16)
	block = counter.NextOrNotWord()
	assert.EqualValues(t, 16, block.Len)
	assert.EqualValues(t, 8, block.Popcnt)
}

func TestVisitBitBlocks(t *testing.T) {
	bitmap := make([]byte, 16)
	setPositions := map[int64]bool{}
	for i := int64(0); i < 128; i += 5 {
		bitutil.SetBit(bitmap, int(i))
		setPositions[i] = true
	}

	for _, offset := range []int64{0, 1, 8, 70} {
		length := int64(128) - offset
		var (
			valid   []int64
			invalid int64
		)
		bitutils.VisitBitBlocks(bitmap, offset, length,
			func(pos int64) { valid = append(valid, pos) },
			func() { invalid++ })

		var wantValid []int64
		for i := int64(0); i < length; i++ {
			if setPositions[offset+i] {
				wantValid = append(wantValid, i)
			}
		}
		assert.Equal(t, wantValid, valid, "offset %d", offset)
		assert.Equal(t, length-int64(len(wantValid)), invalid, "offset %d", offset)
	}

	// nil bitmap visits every position as valid
	var count int64
	bitutils.VisitBitBlocks(nil, 0, 75,
		func(pos int64) {
			assert.Equal(t, count, pos)
			count++
		},
		func() { t.Fatal("no invalid positions expected") })
	assert.EqualValues(t, 75, count)
}

func TestVisitTwoBitBlocks(t *testing.T) {
	left := make([]byte, 16)
	right := make([]byte, 16)
	for i := 0; i < 128; i += 2 {
		bitutil.SetBit(left, i)
	}
	for i := 0; i < 128; i += 3 {
		bitutil.SetBit(right, i)
	}

	var valid []int64
	var nulls int64
	bitutils.VisitTwoBitBlocks(left, right, 0, 0, 128,
		func(pos int64) { valid = append(valid, pos) },
		func() { nulls++ })

	var wantValid []int64
	for i := int64(0); i < 128; i++ {
		if i%6 == 0 {
			wantValid = append(wantValid, i)
		}
	}
	assert.Equal(t, wantValid, valid)
	assert.Equal(t, int64(128)-int64(len(wantValid)), nulls)

	// one nil side defers to the other bitmap
	valid, nulls = nil, 0
	bitutils.VisitTwoBitBlocks(nil, right, 0, 0, 30,
		func(pos int64) { valid = append(valid, pos) },
		func() { nulls++ })
	var wantRight []int64
	for i := int64(0); i < 30; i += 3 {
		wantRight = append(wantRight, i)
	}
	assert.Equal(t, wantRight, valid)
	assert.Equal(t, int64(30)-int64(len(wantRight)), nulls)
}
