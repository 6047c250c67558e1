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

package kernels

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

// dictIndexReader returns a closure producing the index value at a
// position of the encoded span, widened to int64.
func dictIndexReader(input *exec.ArraySpan) func(pos int64) int64 {
	switch input.Type.(*arrow.DictionaryType).IndexType.ID() {
	case arrow.INT8:
		data := exec.GetSpanValues[int8](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.UINT8:
		data := exec.GetSpanValues[uint8](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.INT16:
		data := exec.GetSpanValues[int16](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.UINT16:
		data := exec.GetSpanValues[uint16](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.INT32:
		data := exec.GetSpanValues[int32](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.UINT32:
		data := exec.GetSpanValues[uint32](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	case arrow.INT64:
		data := exec.GetSpanValues[int64](input, 1)
		return func(pos int64) int64 { return data[pos] }
	case arrow.UINT64:
		data := exec.GetSpanValues[uint64](input, 1)
		return func(pos int64) int64 { return int64(data[pos]) }
	}
	return nil
}

// CastFromDictionary decodes a dictionary encoded span into its value
// type. Conversions beyond the dictionary's own value type are split by
// the cast meta-function into this decode followed by a second cast on
// the decoded column, so this kernel only ever targets the value type.
func CastFromDictionary(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	input := &batch.Values[0].Array
	dict := input.Dictionary()

	if !arrow.TypeEqual(dict.Type, out.Type) {
		return fmt.Errorf("%w: casting from dictionary with value type %s to %s",
			arrow.ErrNotImplemented, dict.Type, out.Type)
	}

	idxAt := dictIndexReader(input)
	if idxAt == nil {
		return fmt.Errorf("%w: unsupported dictionary index type %s",
			arrow.ErrNotImplemented, input.Type.(*arrow.DictionaryType).IndexType)
	}

	validity := ctx.AllocateBitmap(out.Len)
	out.Buffers[0].WrapBuffer(validity)
	vbits := out.Buffers[0].Buf

	var (
		nulls    int64
		indexErr error
	)
	// resolves a position to its dictionary slot, or invalid when the
	// index or the pointed-at value is null
	resolve := func(pos int64) (int64, bool) {
		if input.Buffers[0].Buf != nil && !bitutil.BitIsSet(input.Buffers[0].Buf, int(input.Offset+pos)) {
			return 0, false
		}
		j := idxAt(pos)
		if j < 0 || j >= dict.Len {
			if indexErr == nil {
				indexErr = fmt.Errorf("%w: dictionary index %d out of bounds", arrow.ErrIndex, j)
			}
			return 0, false
		}
		if dict.Buffers[0].Buf != nil && !bitutil.BitIsSet(dict.Buffers[0].Buf, int(dict.Offset+j)) {
			return j, false
		}
		return j, true
	}

	switch {
	case out.Type.ID() == arrow.BOOL:
		values := ctx.AllocateBitmap(out.Len)
		out.Buffers[1].WrapBuffer(values)
		for i := int64(0); i < out.Len; i++ {
			j, ok := resolve(i)
			bitutil.SetBitTo(vbits, int(i), ok)
			if !ok {
				nulls++
				continue
			}
			bitutil.SetBitTo(out.Buffers[1].Buf, int(i),
				bitutil.BitIsSet(dict.Buffers[1].Buf, int(dict.Offset+j)))
		}
	case arrow.IsBaseBinary(out.Type.ID()):
		var (
			dictData = dict.Buffers[2].Buf
			bldr     = execBufBuilder{mem: exec.GetAllocator(ctx.Ctx)}
			valueAt  func(j int64) []byte
		)
		if offsetWidth(dict.Type.ID()) == 4 {
			offsets := exec.GetSpanOffsets[int32](dict, 1)
			valueAt = func(j int64) []byte { return dictData[offsets[j]:offsets[j+1]] }
		} else {
			offsets := exec.GetSpanOffsets[int64](dict, 1)
			valueAt = func(j int64) []byte { return dictData[offsets[j]:offsets[j+1]] }
		}

		bldr.reserve(int(out.Len) * 4)
		if offsetWidth(out.Type.ID()) == 4 {
			outOffsets := ctx.Allocate(int(out.Len+1) * 4)
			out.Buffers[1].WrapBuffer(outOffsets)
			offs := exec.GetSpanOffsets[int32](out, 1)
			offs[0] = 0
			for i := int64(0); i < out.Len; i++ {
				j, ok := resolve(i)
				bitutil.SetBitTo(vbits, int(i), ok)
				if ok {
					bldr.append(valueAt(j))
				} else {
					nulls++
				}
				offs[i+1] = int32(bldr.sz)
			}
		} else {
			outOffsets := ctx.Allocate(int(out.Len+1) * 8)
			out.Buffers[1].WrapBuffer(outOffsets)
			offs := exec.GetSpanOffsets[int64](out, 1)
			offs[0] = 0
			for i := int64(0); i < out.Len; i++ {
				j, ok := resolve(i)
				bitutil.SetBitTo(vbits, int(i), ok)
				if ok {
					bldr.append(valueAt(j))
				} else {
					nulls++
				}
				offs[i+1] = int64(bldr.sz)
			}
		}
		out.Buffers[2].WrapBuffer(bldr.finish())
	default:
		width := int64(out.Type.(arrow.FixedWidthDataType).Bytes())
		values := ctx.Allocate(int(out.Len * width))
		out.Buffers[1].WrapBuffer(values)
		outData := out.Buffers[1].Buf
		dictData := dict.Buffers[1].Buf
		for i := int64(0); i < out.Len; i++ {
			j, ok := resolve(i)
			bitutil.SetBitTo(vbits, int(i), ok)
			if !ok {
				nulls++
				continue
			}
			src := (dict.Offset + j) * width
			copy(outData[i*width:(i+1)*width], dictData[src:src+width])
		}
	}

	if indexErr != nil {
		return indexErr
	}
	out.Nulls = nulls
	return nil
}
