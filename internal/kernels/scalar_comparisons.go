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
	"bytes"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/apache/arrow/go/v17/arrow/decimal128"
	"github.com/apache/arrow/go/v17/arrow/decimal256"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/arrow/scalar"
	"github.com/quiverdb/quiver/compute/internal/exec"
	"golang.org/x/exp/constraints"
)

func cmpOp[T constraints.Ordered](op CompareOperator) func(a, b T) bool {
	switch op {
	case CmpEQ:
		return func(a, b T) bool { return a == b }
	case CmpNE:
		return func(a, b T) bool { return a != b }
	case CmpGT:
		return func(a, b T) bool { return a > b }
	case CmpGE:
		return func(a, b T) bool { return a >= b }
	case CmpLT:
		return func(a, b T) bool { return a < b }
	case CmpLE:
		return func(a, b T) bool { return a <= b }
	}
	return nil
}

// cmpResultOp translates a three-way comparison result into the
// boolean outcome of the operator.
func cmpResultOp(op CompareOperator) func(c int) bool {
	switch op {
	case CmpEQ:
		return func(c int) bool { return c == 0 }
	case CmpNE:
		return func(c int) bool { return c != 0 }
	case CmpGT:
		return func(c int) bool { return c > 0 }
	case CmpGE:
		return func(c int) bool { return c >= 0 }
	case CmpLT:
		return func(c int) bool { return c < 0 }
	case CmpLE:
		return func(c int) bool { return c <= 0 }
	}
	return nil
}

func boolCmpOp(op CompareOperator) func(a, b bool) bool {
	switch op {
	case CmpEQ:
		return func(a, b bool) bool { return a == b }
	case CmpNE:
		return func(a, b bool) bool { return a != b }
	case CmpGT:
		return func(a, b bool) bool { return a && !b }
	case CmpGE:
		return func(a, b bool) bool { return a || !b }
	case CmpLT:
		return func(a, b bool) bool { return !a && b }
	case CmpLE:
		return func(a, b bool) bool { return !a || b }
	}
	return nil
}

// comparePrimitive compares the physical values of the two operands,
// writing the outcomes into the preallocated output bitmap. Null
// positions get arbitrary bits, masked out by null propagation.
func comparePrimitive[T exec.NumericTypes](op CompareOperator) exec.ArrayKernelExec {
	fn := cmpOp[T](op)
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		var (
			left      = &batch.Values[0]
			right     = &batch.Values[1]
			outBits   = out.Buffers[1].Buf
			outOffset = int(out.Offset)
		)

		switch {
		case left.IsArray() && right.IsArray():
			l := exec.GetSpanValues[T](&left.Array, 1)
			r := exec.GetSpanValues[T](&right.Array, 1)
			for i := range l {
				bitutil.SetBitTo(outBits, outOffset+i, fn(l[i], r[i]))
			}
		case left.IsArray():
			if !right.Scalar.IsValid() {
				return nil
			}
			rv := exec.UnboxScalar[T](right.Scalar.(scalar.PrimitiveScalar))
			for i, v := range exec.GetSpanValues[T](&left.Array, 1) {
				bitutil.SetBitTo(outBits, outOffset+i, fn(v, rv))
			}
		default:
			if !left.Scalar.IsValid() {
				return nil
			}
			lv := exec.UnboxScalar[T](left.Scalar.(scalar.PrimitiveScalar))
			for i, v := range exec.GetSpanValues[T](&right.Array, 1) {
				bitutil.SetBitTo(outBits, outOffset+i, fn(lv, v))
			}
		}
		return nil
	}
}

func compareBool(op CompareOperator) exec.ArrayKernelExec {
	fn := boolCmpOp(op)
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		for _, v := range batch.Values {
			if !v.IsArray() && !v.Scalar.IsValid() {
				return nil
			}
		}

		valueAt := func(val *exec.ExecValue) func(i int64) bool {
			if val.IsArray() {
				arr := &val.Array
				bits := arr.Buffers[1].Buf
				return func(i int64) bool { return bitutil.BitIsSet(bits, int(arr.Offset+i)) }
			}
			v := val.Scalar.(*scalar.Boolean).Value
			return func(int64) bool { return v }
		}

		var (
			lv      = valueAt(&batch.Values[0])
			rv      = valueAt(&batch.Values[1])
			outBits = out.Buffers[1].Buf
		)
		for i := int64(0); i < batch.Len; i++ {
			bitutil.SetBitTo(outBits, int(out.Offset+i), fn(lv(i), rv(i)))
		}
		return nil
	}
}

func compareBinary[OffsetT int32 | int64](op CompareOperator) exec.ArrayKernelExec {
	fn := cmpResultOp(op)
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		for _, v := range batch.Values {
			if !v.IsArray() && !v.Scalar.IsValid() {
				return nil
			}
		}

		valueAt := func(val *exec.ExecValue) func(i int64) []byte {
			if val.IsArray() {
				arr := &val.Array
				offsets := exec.GetSpanOffsets[OffsetT](arr, 1)
				data := arr.Buffers[2].Buf
				return func(i int64) []byte { return data[offsets[i]:offsets[i+1]] }
			}
			v := val.Scalar.(scalar.BinaryScalar).Data()
			return func(int64) []byte { return v }
		}

		var (
			lv      = valueAt(&batch.Values[0])
			rv      = valueAt(&batch.Values[1])
			outBits = out.Buffers[1].Buf
		)
		for i := int64(0); i < batch.Len; i++ {
			bitutil.SetBitTo(outBits, int(out.Offset+i), fn(bytes.Compare(lv(i), rv(i))))
		}
		return nil
	}
}

func compareFsb(op CompareOperator) exec.ArrayKernelExec {
	fn := cmpResultOp(op)
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		for _, v := range batch.Values {
			if !v.IsArray() && !v.Scalar.IsValid() {
				return nil
			}
		}

		valueAt := func(val *exec.ExecValue) func(i int64) []byte {
			if val.IsArray() {
				arr := &val.Array
				width := int64(arr.Type.(*arrow.FixedSizeBinaryType).ByteWidth)
				data := arr.Buffers[1].Buf
				return func(i int64) []byte {
					start := (arr.Offset + i) * width
					return data[start : start+width]
				}
			}
			v := val.Scalar.(scalar.BinaryScalar).Data()
			return func(int64) []byte { return v }
		}

		var (
			lv      = valueAt(&batch.Values[0])
			rv      = valueAt(&batch.Values[1])
			outBits = out.Buffers[1].Buf
		)
		for i := int64(0); i < batch.Len; i++ {
			bitutil.SetBitTo(outBits, int(out.Offset+i), fn(bytes.Compare(lv(i), rv(i))))
		}
		return nil
	}
}

type orderedDecimal[T any] interface {
	decimal128.Num | decimal256.Num
	Less(T) bool
}

func decCmpOp[T orderedDecimal[T]](op CompareOperator) func(a, b T) bool {
	switch op {
	case CmpEQ:
		return func(a, b T) bool { return !a.Less(b) && !b.Less(a) }
	case CmpNE:
		return func(a, b T) bool { return a.Less(b) || b.Less(a) }
	case CmpGT:
		return func(a, b T) bool { return b.Less(a) }
	case CmpGE:
		return func(a, b T) bool { return !a.Less(b) }
	case CmpLT:
		return func(a, b T) bool { return a.Less(b) }
	case CmpLE:
		return func(a, b T) bool { return !b.Less(a) }
	}
	return nil
}

func compareDecimal[T orderedDecimal[T]](op CompareOperator) exec.ArrayKernelExec {
	fn := decCmpOp[T](op)
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		var (
			left      = &batch.Values[0]
			right     = &batch.Values[1]
			outBits   = out.Buffers[1].Buf
			outOffset = int(out.Offset)
		)

		switch {
		case left.IsArray() && right.IsArray():
			l := exec.GetSpanValues[T](&left.Array, 1)
			r := exec.GetSpanValues[T](&right.Array, 1)
			for i := range l {
				bitutil.SetBitTo(outBits, outOffset+i, fn(l[i], r[i]))
			}
		case left.IsArray():
			if !right.Scalar.IsValid() {
				return nil
			}
			rv := exec.UnboxScalar[T](right.Scalar.(scalar.PrimitiveScalar))
			for i, v := range exec.GetSpanValues[T](&left.Array, 1) {
				bitutil.SetBitTo(outBits, outOffset+i, fn(v, rv))
			}
		default:
			if !left.Scalar.IsValid() {
				return nil
			}
			lv := exec.UnboxScalar[T](left.Scalar.(scalar.PrimitiveScalar))
			for i, v := range exec.GetSpanValues[T](&right.Array, 1) {
				bitutil.SetBitTo(outBits, outOffset+i, fn(lv, v))
			}
		}
		return nil
	}
}

// compareNull zeroes the value bitmap; every position is null anyway.
func compareNull(_ *exec.KernelCtx, _ *exec.ExecSpan, out *exec.ExecResult) error {
	memory.Set(out.Buffers[1].Buf, 0)
	return nil
}

func comparePrimitiveExec(id arrow.Type, op CompareOperator) exec.ArrayKernelExec {
	switch id {
	case arrow.INT8:
		return comparePrimitive[int8](op)
	case arrow.UINT8:
		return comparePrimitive[uint8](op)
	case arrow.INT16:
		return comparePrimitive[int16](op)
	case arrow.UINT16:
		return comparePrimitive[uint16](op)
	case arrow.INT32:
		return comparePrimitive[int32](op)
	case arrow.UINT32:
		return comparePrimitive[uint32](op)
	case arrow.INT64:
		return comparePrimitive[int64](op)
	case arrow.UINT64:
		return comparePrimitive[uint64](op)
	case arrow.FLOAT32:
		return comparePrimitive[float32](op)
	case arrow.FLOAT64:
		return comparePrimitive[float64](op)
	}
	return nil
}

// CompareKernels builds the kernel set of one comparison function:
// one kernel per comparable type, all producing boolean outputs with
// intersected validity.
func CompareKernels(op CompareOperator) []exec.ScalarKernel {
	output := exec.NewOutputType(arrow.FixedWidthTypes.Boolean)
	kernels := make([]exec.ScalarKernel, 0)

	add := func(in exec.InputType, fn exec.ArrayKernelExec) {
		kernels = append(kernels, exec.NewScalarKernel(
			[]exec.InputType{in, in}, output, fn, nil))
	}

	add(exec.NewExactInput(arrow.Null), compareNull)
	add(exec.NewExactInput(arrow.FixedWidthTypes.Boolean), compareBool(op))

	for _, ty := range numericTypes {
		add(exec.NewExactInput(ty), comparePrimitiveExec(ty.ID(), op))
	}

	add(exec.NewExactInput(arrow.FixedWidthTypes.Date32), comparePrimitive[int32](op))
	add(exec.NewExactInput(arrow.FixedWidthTypes.Date64), comparePrimitive[int64](op))

	// Temporal kernels are matched per unit, ignoring the timezone.
	// Mixed-unit arguments miss exact dispatch and get promoted to the
	// finest unit instead of comparing raw values.
	for _, unit := range arrow.TimeUnitValues {
		add(exec.NewMatchedInput(exec.TimestampTypeUnit(unit)), comparePrimitive[int64](op))
		add(exec.NewMatchedInput(exec.DurationTypeUnit(unit)), comparePrimitive[int64](op))
	}
	for _, unit := range []arrow.TimeUnit{arrow.Second, arrow.Millisecond} {
		add(exec.NewMatchedInput(exec.Time32TypeUnit(unit)), comparePrimitive[int32](op))
	}
	for _, unit := range []arrow.TimeUnit{arrow.Microsecond, arrow.Nanosecond} {
		add(exec.NewMatchedInput(exec.Time64TypeUnit(unit)), comparePrimitive[int64](op))
	}

	for _, ty := range baseBinaryTypes {
		if offsetWidth(ty.ID()) == 4 {
			add(exec.NewExactInput(ty), compareBinary[int32](op))
		} else {
			add(exec.NewExactInput(ty), compareBinary[int64](op))
		}
	}
	add(exec.NewIDInput(arrow.FIXED_SIZE_BINARY), compareFsb(op))

	add(exec.NewIDInput(arrow.DECIMAL128), compareDecimal[decimal128.Num](op))
	add(exec.NewIDInput(arrow.DECIMAL256), compareDecimal[decimal256.Num](op))
	return kernels
}
