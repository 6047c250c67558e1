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
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/quiverdb/quiver/compute/internal/bitutils"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

func isStringLike(id arrow.Type) bool {
	return id == arrow.STRING || id == arrow.LARGE_STRING
}

func offsetWidth(id arrow.Type) int {
	if id == arrow.LARGE_BINARY || id == arrow.LARGE_STRING {
		return 8
	}
	return 4
}

// shareBufferSpan points dst at src's bytes without taking another
// reference; the converted ArrayData retains the owner itself.
func shareBufferSpan(dst, src *exec.BufferSpan) {
	dst.Buf = src.Buf
	dst.Owner = src.Owner
	dst.SelfAlloc = false
}

func validateUtf8Span[OffsetT int32 | int64](input *exec.ArraySpan) error {
	var (
		offsets = exec.GetSpanOffsets[OffsetT](input, 1)
		data    = input.Buffers[2].Buf
		err     error
	)

	bitutils.VisitBitBlocks(input.Buffers[0].Buf, input.Offset, input.Len,
		func(pos int64) {
			if err == nil && !utf8.Valid(data[offsets[pos]:offsets[pos+1]]) {
				err = fmt.Errorf("%w: invalid UTF8 sequence at index %d", exec.ErrExecution, pos)
			}
		}, func() {})
	return err
}

func validateUtf8Fsb(input *exec.ArraySpan) error {
	var (
		width = int64(input.Type.(*arrow.FixedSizeBinaryType).ByteWidth)
		data  = input.Buffers[1].Buf
		err   error
	)

	bitutils.VisitBitBlocks(input.Buffers[0].Buf, input.Offset, input.Len,
		func(pos int64) {
			start := (input.Offset + pos) * width
			if err == nil && !utf8.Valid(data[start:start+width]) {
				err = fmt.Errorf("%w: invalid UTF8 sequence at index %d", exec.ErrExecution, pos)
			}
		}, func() {})
	return err
}

// castBinaryToStringSameWidth validates UTF8 when required and then
// passes the buffers through unchanged.
func castBinaryToStringSameWidth[OffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	if !opts.AllowInvalidUtf8 {
		if err := validateUtf8Span[OffsetT](&batch.Values[0].Array); err != nil {
			return err
		}
	}
	return ZeroCopyCastExec(ctx, batch, out)
}

// castBinaryOffsets converts between offset widths, sharing the value
// data buffer with the input.
func castBinaryOffsets[InOffsetT, OutOffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	input := &batch.Values[0].Array

	if isStringLike(out.Type.ID()) && !isStringLike(input.Type.ID()) && !opts.AllowInvalidUtf8 {
		if err := validateUtf8Span[InOffsetT](input); err != nil {
			return err
		}
	}

	inOffsets := exec.GetSpanOffsets[InOffsetT](input, 1)
	if SizeOf[OutOffsetT]() == 4 && int64(inOffsets[input.Len]) > math.MaxInt32 {
		return fmt.Errorf("%w: failed casting from %s to %s: input array too large",
			exec.ErrExecution, input.Type, out.Type)
	}

	outOffsets := exec.GetSpanOffsets[OutOffsetT](out, 1)
	for i, o := range inOffsets {
		outOffsets[i] = OutOffsetT(o)
	}

	shareBufferSpan(&out.Buffers[2], &input.Buffers[2])
	return nil
}

// castFsbToBinary fabricates an offsets buffer over the fixed width
// value data, which is shared with the input.
func castFsbToBinary[OffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	input := &batch.Values[0].Array
	width := int64(input.Type.(*arrow.FixedSizeBinaryType).ByteWidth)

	if isStringLike(out.Type.ID()) && !opts.AllowInvalidUtf8 {
		if err := validateUtf8Fsb(input); err != nil {
			return err
		}
	}

	if SizeOf[OffsetT]() == 4 && (input.Offset+input.Len)*width > math.MaxInt32 {
		return fmt.Errorf("%w: failed casting from %s to %s: input array too large",
			exec.ErrExecution, input.Type, out.Type)
	}

	outOffsets := exec.GetSpanOffsets[OffsetT](out, 1)
	for i := int64(0); i <= input.Len; i++ {
		outOffsets[i] = OffsetT((input.Offset + i) * width)
	}

	shareBufferSpan(&out.Buffers[2], &input.Buffers[1])
	return nil
}

// castFsbToFsb is zero copy when the byte widths agree.
func castFsbToFsb(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	inWidth := batch.Values[0].Array.Type.(*arrow.FixedSizeBinaryType).ByteWidth
	outWidth := out.Type.(*arrow.FixedSizeBinaryType).ByteWidth
	if inWidth != outWidth {
		return fmt.Errorf("%w: failed casting from %s to %s: widths must match",
			arrow.ErrInvalid, batch.Values[0].Array.Type, out.Type)
	}
	return ZeroCopyCastExec(ctx, batch, out)
}

// stringFormatter returns a closure appending the textual form of the
// value at a position of the input span.
func stringFormatter(input *exec.ArraySpan) func(pos int64, dst []byte) []byte {
	switch input.Type.ID() {
	case arrow.BOOL:
		bits := input.Buffers[1].Buf
		return func(pos int64, dst []byte) []byte {
			return strconv.AppendBool(dst, bitutil.BitIsSet(bits, int(input.Offset+pos)))
		}
	case arrow.INT8:
		data := exec.GetSpanValues[int8](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendInt(dst, int64(data[pos]), 10) }
	case arrow.UINT8:
		data := exec.GetSpanValues[uint8](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendUint(dst, uint64(data[pos]), 10) }
	case arrow.INT16:
		data := exec.GetSpanValues[int16](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendInt(dst, int64(data[pos]), 10) }
	case arrow.UINT16:
		data := exec.GetSpanValues[uint16](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendUint(dst, uint64(data[pos]), 10) }
	case arrow.INT32:
		data := exec.GetSpanValues[int32](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendInt(dst, int64(data[pos]), 10) }
	case arrow.UINT32:
		data := exec.GetSpanValues[uint32](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendUint(dst, uint64(data[pos]), 10) }
	case arrow.INT64:
		data := exec.GetSpanValues[int64](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendInt(dst, data[pos], 10) }
	case arrow.UINT64:
		data := exec.GetSpanValues[uint64](input, 1)
		return func(pos int64, dst []byte) []byte { return strconv.AppendUint(dst, data[pos], 10) }
	case arrow.FLOAT32:
		data := exec.GetSpanValues[float32](input, 1)
		return func(pos int64, dst []byte) []byte {
			return strconv.AppendFloat(dst, float64(data[pos]), 'g', -1, 32)
		}
	case arrow.FLOAT64:
		data := exec.GetSpanValues[float64](input, 1)
		return func(pos int64, dst []byte) []byte {
			return strconv.AppendFloat(dst, data[pos], 'g', -1, 64)
		}
	}
	return nil
}

// castNumberToString formats boolean and numeric inputs as text,
// appending the bytes to a freshly built data buffer.
func castNumberToString[OffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	var (
		input      = &batch.Values[0].Array
		format     = stringFormatter(input)
		outOffsets = exec.GetSpanOffsets[OffsetT](out, 1)
		bldr       = execBufBuilder{mem: exec.GetAllocator(ctx.Ctx)}
		scratch    = make([]byte, 0, 32)
		pos        = 0
	)

	bldr.reserve(int(input.Len) * 4)
	outOffsets[0] = 0
	bitutils.VisitBitBlocks(input.Buffers[0].Buf, input.Offset, input.Len,
		func(idx int64) {
			scratch = format(idx, scratch[:0])
			bldr.append(scratch)
			outOffsets[pos+1] = OffsetT(bldr.sz)
			pos++
		}, func() {
			outOffsets[pos+1] = OffsetT(bldr.sz)
			pos++
		})

	out.Buffers[2].WrapBuffer(bldr.finish())
	return nil
}

func addToStringKernels[OffsetT int32 | int64](outType arrow.DataType, kernels []exec.ScalarKernel) []exec.ScalarKernel {
	inputs := append([]arrow.DataType{arrow.FixedWidthTypes.Boolean}, numericTypes...)
	for _, inTy := range inputs {
		k := exec.NewScalarKernel(
			[]exec.InputType{exec.NewExactInput(inTy)}, exec.NewOutputType(outType),
			castNumberToString[OffsetT], nil)
		k.CanWriteIntoSlices = false
		kernels = append(kernels, k)
	}
	return kernels
}

func binaryToBinaryExec(inWidth, outWidth int) exec.ArrayKernelExec {
	if inWidth == 4 {
		if outWidth == 4 {
			return castBinaryOffsets[int32, int32]
		}
		return castBinaryOffsets[int32, int64]
	}
	if outWidth == 4 {
		return castBinaryOffsets[int64, int32]
	}
	return castBinaryOffsets[int64, int64]
}

// GetBinaryLikeCastKernels builds the kernels casting into one of the
// variable length binary or string types.
func GetBinaryLikeCastKernels(outType arrow.DataType) []exec.ScalarKernel {
	var (
		outID    = outType.ID()
		output   = exec.NewOutputType(outType)
		outWidth = offsetWidth(outID)
		toString = isStringLike(outID)
		kernels  = GetCommonCastKernels(outID, output)
	)

	for _, inTy := range baseBinaryTypes {
		inID := inTy.ID()
		inWidth := offsetWidth(inID)
		needsValidation := toString && !isStringLike(inID)
		switch {
		case inWidth == outWidth && !needsValidation:
			kernels = append(kernels, GetZeroCastKernel(inID, exec.NewExactInput(inTy), output))
		case inWidth == outWidth:
			var fn exec.ArrayKernelExec
			if inWidth == 4 {
				fn = castBinaryToStringSameWidth[int32]
			} else {
				fn = castBinaryToStringSameWidth[int64]
			}
			k := exec.NewScalarKernel([]exec.InputType{exec.NewExactInput(inTy)}, output, fn, nil)
			k.NullHandling = exec.NullComputedNoPrealloc
			k.MemAlloc = exec.MemNoPrealloc
			k.CanWriteIntoSlices = false
			kernels = append(kernels, k)
		default:
			k := exec.NewScalarKernel([]exec.InputType{exec.NewExactInput(inTy)}, output,
				binaryToBinaryExec(inWidth, outWidth), nil)
			k.CanWriteIntoSlices = false
			kernels = append(kernels, k)
		}
	}

	var fsbExec exec.ArrayKernelExec = castFsbToBinary[int32]
	if outWidth == 8 {
		fsbExec = castFsbToBinary[int64]
	}
	k := exec.NewScalarKernel([]exec.InputType{exec.NewIDInput(arrow.FIXED_SIZE_BINARY)},
		output, fsbExec, nil)
	k.CanWriteIntoSlices = false
	kernels = append(kernels, k)

	if toString {
		if outWidth == 4 {
			kernels = addToStringKernels[int32](outType, kernels)
		} else {
			kernels = addToStringKernels[int64](outType, kernels)
		}
	}
	return kernels
}

func GetFsbCastKernels() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.FIXED_SIZE_BINARY, OutputTargetType)

	k := exec.NewScalarKernel([]exec.InputType{exec.NewIDInput(arrow.FIXED_SIZE_BINARY)},
		OutputTargetType, castFsbToFsb, nil)
	k.NullHandling = exec.NullComputedNoPrealloc
	k.MemAlloc = exec.MemNoPrealloc
	kernels = append(kernels, k)
	return kernels
}
