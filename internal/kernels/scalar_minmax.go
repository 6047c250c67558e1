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
	"github.com/apache/arrow/go/v17/arrow/scalar"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

type MinMaxOptions struct {
	SkipNulls bool `compute:"skip_nulls"`
}

func (MinMaxOptions) TypeName() string { return "MinMaxOptions" }

type MinMaxState = MinMaxOptions

// valueReader reads values and validity of one operand of a variadic
// kernel, regardless of whether it is an array or a scalar.
type valueReader[T exec.FixedWidthTypes] struct {
	value func(i int64) T
	valid func(i int64) bool
}

func accessFixedWidth[T exec.FixedWidthTypes](val *exec.ExecValue) valueReader[T] {
	if val.IsArray() {
		arr := &val.Array
		data := exec.GetSpanValues[T](arr, 1)
		validity := arr.Buffers[0].Buf
		return valueReader[T]{
			value: func(i int64) T { return data[i] },
			valid: func(i int64) bool {
				return validity == nil || bitutil.BitIsSet(validity, int(arr.Offset+i))
			},
		}
	}

	var v T
	ok := val.Scalar.IsValid()
	if ok {
		v = exec.UnboxScalar[T](val.Scalar.(scalar.PrimitiveScalar))
	}
	return valueReader[T]{
		value: func(int64) T { return v },
		valid: func(int64) bool { return ok },
	}
}

// pickValue returns the pairwise min or max combiner. NaN loses against
// any non-NaN value (a != a holds only for NaN), so a pair of NaNs is
// the only way NaN survives.
func pickValue[T exec.NumericTypes](isMax bool) func(a, b T) T {
	if isMax {
		return func(a, b T) T {
			if a != a {
				return b
			}
			if b != b || a >= b {
				return a
			}
			return b
		}
	}
	return func(a, b T) T {
		if a != a {
			return b
		}
		if b != b || a <= b {
			return a
		}
		return b
	}
}

func pickDecimal[T orderedDecimal[T]](isMax bool) func(a, b T) T {
	if isMax {
		return func(a, b T) T {
			if a.Less(b) {
				return b
			}
			return a
		}
	}
	return func(a, b T) T {
		if b.Less(a) {
			return b
		}
		return a
	}
}

// minMaxFixedWidthExec folds all operands elementwise with the given
// combiner. With SkipNulls a null operand is ignored at that position
// and the fold runs over the remaining values; without it a single null
// operand makes the position null. The kernel fills the validity bitmap
// itself.
func minMaxFixedWidthExec[T exec.FixedWidthTypes](pick func(a, b T) T) exec.ArrayKernelExec {
	return func(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		var (
			opts     = ctx.State.(MinMaxState)
			readers  = make([]valueReader[T], len(batch.Values))
			outData  = exec.GetSpanValues[T](out, 1)
			outValid = out.Buffers[0].Buf
			nulls    int64
		)
		for j := range batch.Values {
			readers[j] = accessFixedWidth[T](&batch.Values[j])
		}

		for i := int64(0); i < batch.Len; i++ {
			var (
				acc    T
				seen   bool
				poison bool
			)
			for j := range readers {
				if !readers[j].valid(i) {
					if !opts.SkipNulls {
						poison = true
						break
					}
					continue
				}
				if !seen {
					acc, seen = readers[j].value(i), true
					continue
				}
				acc = pick(acc, readers[j].value(i))
			}

			ok := seen && !poison
			bitutil.SetBitTo(outValid, int(out.Offset+i), ok)
			if ok {
				outData[i] = acc
			} else {
				nulls++
			}
		}
		out.Nulls = nulls
		return nil
	}
}

// minMaxFsbExec is the fixed-size-binary variant, folding byte slices
// lexicographically. All operands carry the output's byte width.
func minMaxFsbExec(isMax bool) exec.ArrayKernelExec {
	return func(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		width := int64(out.Type.(*arrow.FixedSizeBinaryType).ByteWidth)

		valueAt := func(val *exec.ExecValue) func(i int64) []byte {
			if val.IsArray() {
				arr := &val.Array
				data := arr.Buffers[1].Buf
				return func(i int64) []byte {
					start := (arr.Offset + i) * width
					return data[start : start+width]
				}
			}
			var v []byte
			if val.Scalar.IsValid() {
				v = val.Scalar.(scalar.BinaryScalar).Data()
			}
			return func(int64) []byte { return v }
		}
		validAt := func(val *exec.ExecValue) func(i int64) bool {
			if val.IsArray() {
				arr := &val.Array
				validity := arr.Buffers[0].Buf
				return func(i int64) bool {
					return validity == nil || bitutil.BitIsSet(validity, int(arr.Offset+i))
				}
			}
			ok := val.Scalar.IsValid()
			return func(int64) bool { return ok }
		}

		var (
			opts     = ctx.State.(MinMaxState)
			values   = make([]func(i int64) []byte, len(batch.Values))
			valids   = make([]func(i int64) bool, len(batch.Values))
			outData  = out.Buffers[1].Buf
			outValid = out.Buffers[0].Buf
			nulls    int64
		)
		for j := range batch.Values {
			values[j] = valueAt(&batch.Values[j])
			valids[j] = validAt(&batch.Values[j])
		}

		for i := int64(0); i < batch.Len; i++ {
			var (
				acc    []byte
				poison bool
			)
			for j := range values {
				if !valids[j](i) {
					if !opts.SkipNulls {
						poison = true
						break
					}
					continue
				}
				v := values[j](i)
				if acc == nil {
					acc = v
					continue
				}
				if c := bytes.Compare(v, acc); (isMax && c > 0) || (!isMax && c < 0) {
					acc = v
				}
			}

			ok := acc != nil && !poison
			bitutil.SetBitTo(outValid, int(out.Offset+i), ok)
			if ok {
				start := (out.Offset + i) * width
				copy(outData[start:start+width], acc)
			} else {
				nulls++
			}
		}
		out.Nulls = nulls
		return nil
	}
}

func minMaxPrimitiveExec(id arrow.Type, isMax bool) exec.ArrayKernelExec {
	switch id {
	case arrow.INT8:
		return minMaxFixedWidthExec(pickValue[int8](isMax))
	case arrow.UINT8:
		return minMaxFixedWidthExec(pickValue[uint8](isMax))
	case arrow.INT16:
		return minMaxFixedWidthExec(pickValue[int16](isMax))
	case arrow.UINT16:
		return minMaxFixedWidthExec(pickValue[uint16](isMax))
	case arrow.INT32:
		return minMaxFixedWidthExec(pickValue[int32](isMax))
	case arrow.UINT32:
		return minMaxFixedWidthExec(pickValue[uint32](isMax))
	case arrow.INT64:
		return minMaxFixedWidthExec(pickValue[int64](isMax))
	case arrow.UINT64:
		return minMaxFixedWidthExec(pickValue[uint64](isMax))
	case arrow.FLOAT32:
		return minMaxFixedWidthExec(pickValue[float32](isMax))
	case arrow.FLOAT64:
		return minMaxFixedWidthExec(pickValue[float64](isMax))
	}
	return nil
}

// MinMaxKernels builds the kernel set of the elementwise min or max
// function: variadic over one type, result carrying the operand type.
func MinMaxKernels(isMax bool) []exec.ScalarKernel {
	kernels := make([]exec.ScalarKernel, 0)

	add := func(in exec.InputType, fn exec.ArrayKernelExec) {
		k := exec.NewScalarKernelWithSig(&exec.KernelSignature{
			InputTypes: []exec.InputType{in},
			OutType:    OutputFirstType,
			IsVarArgs:  true,
		}, fn, exec.OptionsInit[MinMaxOptions])
		k.NullHandling = exec.NullComputedPrealloc
		kernels = append(kernels, k)
	}

	nullKernel := exec.NewScalarKernelWithSig(&exec.KernelSignature{
		InputTypes: []exec.InputType{exec.NewExactInput(arrow.Null)},
		OutType:    OutputFirstType,
		IsVarArgs:  true,
	}, OutputAllNull, exec.OptionsInit[MinMaxOptions])
	nullKernel.NullHandling = exec.NullComputedNoPrealloc
	kernels = append(kernels, nullKernel)

	for _, ty := range numericTypes {
		add(exec.NewExactInput(ty), minMaxPrimitiveExec(ty.ID(), isMax))
	}

	add(exec.NewExactInput(arrow.FixedWidthTypes.Date32), minMaxFixedWidthExec(pickValue[int32](isMax)))
	add(exec.NewExactInput(arrow.FixedWidthTypes.Date64), minMaxFixedWidthExec(pickValue[int64](isMax)))
	// Temporal kernels are matched per unit so mixed-unit arguments miss
	// exact dispatch and get promoted to the finest unit instead of
	// folding raw values.
	for _, unit := range arrow.TimeUnitValues {
		add(exec.NewMatchedInput(exec.TimestampTypeUnit(unit)), minMaxFixedWidthExec(pickValue[int64](isMax)))
		add(exec.NewMatchedInput(exec.DurationTypeUnit(unit)), minMaxFixedWidthExec(pickValue[int64](isMax)))
	}
	for _, unit := range []arrow.TimeUnit{arrow.Second, arrow.Millisecond} {
		add(exec.NewMatchedInput(exec.Time32TypeUnit(unit)), minMaxFixedWidthExec(pickValue[int32](isMax)))
	}
	for _, unit := range []arrow.TimeUnit{arrow.Microsecond, arrow.Nanosecond} {
		add(exec.NewMatchedInput(exec.Time64TypeUnit(unit)), minMaxFixedWidthExec(pickValue[int64](isMax)))
	}

	add(exec.NewIDInput(arrow.DECIMAL128), minMaxFixedWidthExec(pickDecimal[decimal128.Num](isMax)))
	add(exec.NewIDInput(arrow.DECIMAL256), minMaxFixedWidthExec(pickDecimal[decimal256.Num](isMax)))
	add(exec.NewIDInput(arrow.FIXED_SIZE_BINARY), minMaxFsbExec(isMax))
	return kernels
}
