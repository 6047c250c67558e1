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

package bitutils

import (
	"github.com/apache/arrow/go/v17/arrow/bitutil"
)

// VisitBitBlocks calls visitValid with the position of each set bit in
// the bitmap and visitInvalid for each unset bit, skipping the per-bit
// test inside all-set and none-set blocks. A nil bitmap is treated as
// all bits set.
func VisitBitBlocks(bitmap []byte, offset, length int64, visitValid func(pos int64), visitInvalid func()) {
	counter := NewOptionalBitBlockCounter(bitmap, offset, length)
	pos := int64(0)
	for pos < length {
		block := counter.NextBlock()
		switch {
		case block.AllSet():
			for i := 0; i < int(block.Len); i++ {
				visitValid(pos)
				pos++
			}
		case block.NoneSet():
			for i := 0; i < int(block.Len); i++ {
				visitInvalid()
				pos++
			}
		default:
			for i := 0; i < int(block.Len); i++ {
				if bitutil.BitIsSet(bitmap, int(offset+pos)) {
					visitValid(pos)
				} else {
					visitInvalid()
				}
				pos++
			}
		}
	}
}

// VisitTwoBitBlocks visits the validity intersection of two bitmaps:
// visitValid is called with the position of each element valid on both
// sides, visitNull for every other element. Either bitmap may be nil,
// meaning all-valid on that side.
func VisitTwoBitBlocks(leftBitmap, rightBitmap []byte, leftOffset, rightOffset, length int64, visitValid func(pos int64), visitNull func()) {
	if leftBitmap == nil || rightBitmap == nil {
		// at most one side has validity, defer to the unary visitor
		bitmap, offset := leftBitmap, leftOffset
		if bitmap == nil {
			bitmap, offset = rightBitmap, rightOffset
		}
		VisitBitBlocks(bitmap, offset, length, visitValid, visitNull)
		return
	}

	counter := NewBinaryBitBlockCounter(leftBitmap, rightBitmap, leftOffset, rightOffset, length)
	pos := int64(0)
	for pos < length {
		block := counter.NextAndWord()
		switch {
		case block.AllSet():
			for i := 0; i < int(block.Len); i++ {
				visitValid(pos)
				pos++
			}
		case block.NoneSet():
			for i := 0; i < int(block.Len); i++ {
				visitNull()
				pos++
			}
		default:
			for i := 0; i < int(block.Len); i++ {
				if bitutil.BitIsSet(leftBitmap, int(leftOffset+pos)) &&
					bitutil.BitIsSet(rightBitmap, int(rightOffset+pos)) {
					visitValid(pos)
				} else {
					visitNull()
				}
				pos++
			}
		}
	}
}
