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
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

// castNumericToBool writes true for any non-zero input value.
func castNumericToBool[T numeric](_ *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	var (
		in      = exec.GetSpanValues[T](&batch.Values[0].Array, 1)
		outBits = out.Buffers[1].Buf
	)
	for i, v := range in {
		bitutil.SetBitTo(outBits, int(out.Offset)+i, v != 0)
	}
	return nil
}

func castStringToBool[OffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	fn := ScalarUnaryNotNullBinaryArgBoolOut[OffsetT](false, func(_ *exec.KernelCtx, v []byte, err *error) bool {
		b, e := strconv.ParseBool(string(v))
		if e != nil {
			*err = fmt.Errorf("%w: invalid boolean string '%s'", exec.ErrExecution, string(v))
		}
		return b
	})
	return fn(ctx, batch, out)
}

func numericToBoolExec(id arrow.Type) exec.ArrayKernelExec {
	switch id {
	case arrow.INT8:
		return castNumericToBool[int8]
	case arrow.UINT8:
		return castNumericToBool[uint8]
	case arrow.INT16:
		return castNumericToBool[int16]
	case arrow.UINT16:
		return castNumericToBool[uint16]
	case arrow.INT32:
		return castNumericToBool[int32]
	case arrow.UINT32:
		return castNumericToBool[uint32]
	case arrow.INT64:
		return castNumericToBool[int64]
	case arrow.UINT64:
		return castNumericToBool[uint64]
	case arrow.FLOAT32:
		return castNumericToBool[float32]
	case arrow.FLOAT64:
		return castNumericToBool[float64]
	}
	return nil
}

func GetBooleanCastKernels() []exec.ScalarKernel {
	outType := exec.NewOutputType(arrow.FixedWidthTypes.Boolean)
	kernels := GetCommonCastKernels(arrow.BOOL, outType)

	kernels = append(kernels, GetZeroCastKernel(arrow.BOOL,
		exec.NewExactInput(arrow.FixedWidthTypes.Boolean), outType))

	for _, inTy := range numericTypes {
		kernels = append(kernels, exec.NewScalarKernel(
			[]exec.InputType{exec.NewExactInput(inTy)}, outType,
			numericToBoolExec(inTy.ID()), nil))
	}

	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewExactInput(arrow.BinaryTypes.String)}, outType,
		castStringToBool[int32], nil))
	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewExactInput(arrow.BinaryTypes.LargeString)}, outType,
		castStringToBool[int64], nil))
	return kernels
}
