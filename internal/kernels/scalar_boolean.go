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
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/apache/arrow/go/v17/arrow/scalar"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

type BooleanOp int8

const (
	OpAnd BooleanOp = iota
	OpOr
	OpAndKleene
	OpOrKleene
)

// boolAccessor reads values and validity of a boolean operand,
// regardless of whether it is an array or a scalar.
type boolAccessor struct {
	value func(i int64) bool
	valid func(i int64) bool
}

func accessBool(val *exec.ExecValue) boolAccessor {
	if val.IsArray() {
		arr := &val.Array
		bits := arr.Buffers[1].Buf
		validity := arr.Buffers[0].Buf
		return boolAccessor{
			value: func(i int64) bool { return bitutil.BitIsSet(bits, int(arr.Offset+i)) },
			valid: func(i int64) bool {
				return validity == nil || bitutil.BitIsSet(validity, int(arr.Offset+i))
			},
		}
	}

	var v bool
	ok := val.Scalar.IsValid()
	if ok {
		v = val.Scalar.(*scalar.Boolean).Value
	}
	return boolAccessor{
		value: func(int64) bool { return v },
		valid: func(int64) bool { return ok },
	}
}

// booleanExec computes plain 'and'/'or' values; validity is the
// intersection of the inputs, handled by null propagation.
func booleanExec(isOr bool) exec.ArrayKernelExec {
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		for _, v := range batch.Values {
			if !v.IsArray() && !v.Scalar.IsValid() {
				return nil
			}
		}

		var (
			left    = accessBool(&batch.Values[0])
			right   = accessBool(&batch.Values[1])
			outBits = out.Buffers[1].Buf
		)
		for i := int64(0); i < batch.Len; i++ {
			v := left.value(i) && right.value(i)
			if isOr {
				v = left.value(i) || right.value(i)
			}
			bitutil.SetBitTo(outBits, int(out.Offset+i), v)
		}
		return nil
	}
}

// booleanKleeneExec computes Kleene logic: a false ('and') or true
// ('or') operand determines the result even when the other side is
// null, so the kernel fills the validity bitmap itself.
func booleanKleeneExec(isOr bool) exec.ArrayKernelExec {
	return func(_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
		var (
			left     = accessBool(&batch.Values[0])
			right    = accessBool(&batch.Values[1])
			outBits  = out.Buffers[1].Buf
			outValid = out.Buffers[0].Buf
			nulls    int64
		)

		for i := int64(0); i < batch.Len; i++ {
			var (
				lKnown, rKnown = left.valid(i), right.valid(i)
				lv, rv         = left.value(i), right.value(i)
				value, known   bool
			)
			if isOr {
				known = (lKnown && rKnown) || (lKnown && lv) || (rKnown && rv)
				value = (lKnown && lv) || (rKnown && rv)
			} else {
				known = (lKnown && rKnown) || (lKnown && !lv) || (rKnown && !rv)
				value = (!lKnown || lv) && (!rKnown || rv)
			}

			bitutil.SetBitTo(outValid, int(out.Offset+i), known)
			bitutil.SetBitTo(outBits, int(out.Offset+i), known && value)
			if !known {
				nulls++
			}
		}
		out.Nulls = nulls
		return nil
	}
}

// BooleanKernel returns the kernel executing one of the binary boolean
// operations on a pair of boolean inputs.
func BooleanKernel(op BooleanOp) exec.ScalarKernel {
	in := exec.NewExactInput(arrow.FixedWidthTypes.Boolean)
	output := exec.NewOutputType(arrow.FixedWidthTypes.Boolean)

	switch op {
	case OpAnd:
		return exec.NewScalarKernel([]exec.InputType{in, in}, output, booleanExec(false), nil)
	case OpOr:
		return exec.NewScalarKernel([]exec.InputType{in, in}, output, booleanExec(true), nil)
	case OpAndKleene:
		k := exec.NewScalarKernel([]exec.InputType{in, in}, output, booleanKleeneExec(false), nil)
		k.NullHandling = exec.NullComputedPrealloc
		return k
	default:
		k := exec.NewScalarKernel([]exec.InputType{in, in}, output, booleanKleeneExec(true), nil)
		k.NullHandling = exec.NullComputedPrealloc
		return k
	}
}
