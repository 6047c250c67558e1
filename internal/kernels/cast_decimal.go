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
	"github.com/apache/arrow/go/v17/arrow/decimal128"
	"github.com/apache/arrow/go/v17/arrow/decimal256"
	"github.com/quiverdb/quiver/compute/internal/exec"
	"golang.org/x/exp/constraints"
)

func rescaleDecimal128(v decimal128.Num, inScale, outPrec, outScale int32, allowTrunc bool) (decimal128.Num, error) {
	if allowTrunc {
		switch {
		case inScale == outScale:
			return v, nil
		case inScale < outScale:
			return v.IncreaseScaleBy(outScale - inScale), nil
		default:
			return v.ReduceScaleBy(inScale-outScale, false), nil
		}
	}

	o, err := v.Rescale(inScale, outScale)
	if err != nil {
		return o, fmt.Errorf("%w: %s", exec.ErrExecution, err)
	}
	if !o.FitsInPrecision(outPrec) {
		return o, fmt.Errorf("%w: decimal value does not fit in precision %d", exec.ErrExecution, outPrec)
	}
	return o, nil
}

func rescaleDecimal256(v decimal256.Num, inScale, outPrec, outScale int32, allowTrunc bool) (decimal256.Num, error) {
	if allowTrunc {
		switch {
		case inScale == outScale:
			return v, nil
		case inScale < outScale:
			return v.IncreaseScaleBy(outScale - inScale), nil
		default:
			return v.ReduceScaleBy(inScale-outScale, false), nil
		}
	}

	o, err := v.Rescale(inScale, outScale)
	if err != nil {
		return o, fmt.Errorf("%w: %s", exec.ErrExecution, err)
	}
	if !o.FitsInPrecision(outPrec) {
		return o, fmt.Errorf("%w: decimal value does not fit in precision %d", exec.ErrExecution, outPrec)
	}
	return o, nil
}

func decimalScaleOf(dt arrow.DataType) int32 {
	switch t := dt.(type) {
	case *arrow.Decimal128Type:
		return t.Scale
	case *arrow.Decimal256Type:
		return t.Scale
	}
	return 0
}

func castDecimal128ToDecimal128(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	outType := out.Type.(*arrow.Decimal128Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal128.Num, err *error) decimal128.Num {
		o, e := rescaleDecimal128(v, inScale, outType.Precision, outType.Scale, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castDecimal256ToDecimal256(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	outType := out.Type.(*arrow.Decimal256Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal256.Num, err *error) decimal256.Num {
		o, e := rescaleDecimal256(v, inScale, outType.Precision, outType.Scale, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castDecimal128ToDecimal256(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	outType := out.Type.(*arrow.Decimal256Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal128.Num, err *error) decimal256.Num {
		o, e := rescaleDecimal256(decimal256.FromDecimal128(v), inScale,
			outType.Precision, outType.Scale, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castDecimal256ToDecimal128(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	outType := out.Type.(*arrow.Decimal128Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal256.Num, err *error) decimal128.Num {
		wide, e := rescaleDecimal256(v, inScale, 76, outType.Scale, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
			return decimal128.Num{}
		}
		o := decimal128.FromBigInt(wide.BigInt())
		if !o.FitsInPrecision(outType.Precision) {
			*err = fmt.Errorf("%w: decimal value does not fit in precision %d",
				exec.ErrExecution, outType.Precision)
		}
		return o
	})
	return fn(ctx, batch, out)
}

// checkIntToDecimalPrecision rejects decimal output types that cannot
// represent every value of the integer input type once scaled, so the
// failure surfaces for the whole batch regardless of the values in it.
func checkIntToDecimalPrecision(inID arrow.Type, prec, scale int32) error {
	if scale < 0 {
		return fmt.Errorf("%w: scale must be non-negative", arrow.ErrInvalid)
	}
	digits, err := MaxDecimalDigitsForInt(inID)
	if err != nil {
		return err
	}
	if prec < digits+scale {
		return fmt.Errorf("%w: precision is not great enough for result. It should be at least %d",
			arrow.ErrInvalid, digits+scale)
	}
	return nil
}

func castSignedToDecimal128[T exec.IntTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	outType := out.Type.(*arrow.Decimal128Type)
	if err := checkIntToDecimalPrecision(batch.Values[0].Array.Type.ID(), outType.Precision, outType.Scale); err != nil {
		return err
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal128.Num {
		o, e := rescaleDecimal128(decimal128.FromI64(int64(v)), 0,
			outType.Precision, outType.Scale, false)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castUnsignedToDecimal128[T exec.UintTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	outType := out.Type.(*arrow.Decimal128Type)
	if err := checkIntToDecimalPrecision(batch.Values[0].Array.Type.ID(), outType.Precision, outType.Scale); err != nil {
		return err
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal128.Num {
		o, e := rescaleDecimal128(decimal128.FromU64(uint64(v)), 0,
			outType.Precision, outType.Scale, false)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castSignedToDecimal256[T exec.IntTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	outType := out.Type.(*arrow.Decimal256Type)
	if err := checkIntToDecimalPrecision(batch.Values[0].Array.Type.ID(), outType.Precision, outType.Scale); err != nil {
		return err
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal256.Num {
		o, e := rescaleDecimal256(decimal256.FromI64(int64(v)), 0,
			outType.Precision, outType.Scale, false)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castUnsignedToDecimal256[T exec.UintTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	outType := out.Type.(*arrow.Decimal256Type)
	if err := checkIntToDecimalPrecision(batch.Values[0].Array.Type.ID(), outType.Precision, outType.Scale); err != nil {
		return err
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal256.Num {
		o, e := rescaleDecimal256(decimal256.FromU64(uint64(v)), 0,
			outType.Precision, outType.Scale, false)
		if e != nil {
			*err = e
		}
		return o
	})
	return fn(ctx, batch, out)
}

// float32 input must convert through FromFloat32: widening to float64
// first changes the rounded result for values near the precision limit.
func castFloatToDecimal128[T constraints.Float](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	outType := out.Type.(*arrow.Decimal128Type)
	fromFloat := func(v T) (decimal128.Num, error) {
		if f32, ok := any(v).(float32); ok {
			return decimal128.FromFloat32(f32, outType.Precision, outType.Scale)
		}
		return decimal128.FromFloat64(float64(v), outType.Precision, outType.Scale)
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal128.Num {
		o, e := fromFloat(v)
		if e != nil {
			if !opts.AllowDecimalTruncate {
				*err = fmt.Errorf("%w: %s", exec.ErrExecution, e)
			}
			return decimal128.Num{}
		}
		return o
	})
	return fn(ctx, batch, out)
}

func castFloatToDecimal256[T constraints.Float](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	outType := out.Type.(*arrow.Decimal256Type)
	fromFloat := func(v T) (decimal256.Num, error) {
		if f32, ok := any(v).(float32); ok {
			return decimal256.FromFloat32(f32, outType.Precision, outType.Scale)
		}
		return decimal256.FromFloat64(float64(v), outType.Precision, outType.Scale)
	}
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v T, err *error) decimal256.Num {
		o, e := fromFloat(v)
		if e != nil {
			if !opts.AllowDecimalTruncate {
				*err = fmt.Errorf("%w: %s", exec.ErrExecution, e)
			}
			return decimal256.Num{}
		}
		return o
	})
	return fn(ctx, batch, out)
}

func decimalToIntValue[T exec.IntTypes | exec.UintTypes](bigIntValue interface {
	IsInt64() bool
	IsUint64() bool
	Int64() int64
	Uint64() uint64
}, allowOverflow bool, err *error) T {
	if allowOverflow {
		return T(bigIntValue.Int64())
	}

	if MinOf[T]() == 0 {
		if !bigIntValue.IsUint64() || bigIntValue.Uint64() > uint64(MaxOf[T]()) {
			*err = fmt.Errorf("%w: decimal value out of range for %T", exec.ErrExecution, T(0))
			return 0
		}
		return T(bigIntValue.Uint64())
	}

	if !bigIntValue.IsInt64() {
		*err = fmt.Errorf("%w: decimal value out of range for %T", exec.ErrExecution, T(0))
		return 0
	}
	v := bigIntValue.Int64()
	if v < int64(MinOf[T]()) || v > int64(MaxOf[T]()) {
		*err = fmt.Errorf("%w: decimal value out of range for %T", exec.ErrExecution, T(0))
		return 0
	}
	return T(v)
}

func castDecimal128ToInt[T exec.IntTypes | exec.UintTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal128.Num, err *error) T {
		o, e := rescaleDecimal128(v, inScale, 38, 0, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
			return 0
		}
		return decimalToIntValue[T](o.BigInt(), opts.AllowIntOverflow, err)
	})
	return fn(ctx, batch, out)
}

func castDecimal256ToInt[T exec.IntTypes | exec.UintTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inScale := decimalScaleOf(batch.Values[0].Array.Type)

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal256.Num, err *error) T {
		o, e := rescaleDecimal256(v, inScale, 76, 0, opts.AllowDecimalTruncate)
		if e != nil {
			*err = e
			return 0
		}
		return decimalToIntValue[T](o.BigInt(), opts.AllowIntOverflow, err)
	})
	return fn(ctx, batch, out)
}

func castDecimal128ToFloat[T constraints.Float](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal128.Num, _ *error) T {
		return T(v.ToFloat64(inScale))
	})
	return fn(ctx, batch, out)
}

func castDecimal256ToFloat[T constraints.Float](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	inScale := decimalScaleOf(batch.Values[0].Array.Type)
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v decimal256.Num, _ *error) T {
		return T(v.ToFloat64(inScale))
	})
	return fn(ctx, batch, out)
}

func numericToDecimal128Exec(id arrow.Type) exec.ArrayKernelExec {
	switch id {
	case arrow.INT8:
		return castSignedToDecimal128[int8]
	case arrow.UINT8:
		return castUnsignedToDecimal128[uint8]
	case arrow.INT16:
		return castSignedToDecimal128[int16]
	case arrow.UINT16:
		return castUnsignedToDecimal128[uint16]
	case arrow.INT32:
		return castSignedToDecimal128[int32]
	case arrow.UINT32:
		return castUnsignedToDecimal128[uint32]
	case arrow.INT64:
		return castSignedToDecimal128[int64]
	case arrow.UINT64:
		return castUnsignedToDecimal128[uint64]
	case arrow.FLOAT32:
		return castFloatToDecimal128[float32]
	case arrow.FLOAT64:
		return castFloatToDecimal128[float64]
	}
	return nil
}

func numericToDecimal256Exec(id arrow.Type) exec.ArrayKernelExec {
	switch id {
	case arrow.INT8:
		return castSignedToDecimal256[int8]
	case arrow.UINT8:
		return castUnsignedToDecimal256[uint8]
	case arrow.INT16:
		return castSignedToDecimal256[int16]
	case arrow.UINT16:
		return castUnsignedToDecimal256[uint16]
	case arrow.INT32:
		return castSignedToDecimal256[int32]
	case arrow.UINT32:
		return castUnsignedToDecimal256[uint32]
	case arrow.INT64:
		return castSignedToDecimal256[int64]
	case arrow.UINT64:
		return castUnsignedToDecimal256[uint64]
	case arrow.FLOAT32:
		return castFloatToDecimal256[float32]
	case arrow.FLOAT64:
		return castFloatToDecimal256[float64]
	}
	return nil
}

func GetCastToDecimal128() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.DECIMAL128, OutputTargetType)

	for _, inTy := range numericTypes {
		kernels = append(kernels, exec.NewScalarKernel(
			[]exec.InputType{exec.NewExactInput(inTy)}, OutputTargetType,
			numericToDecimal128Exec(inTy.ID()), nil))
	}

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.DECIMAL128), castDecimal128ToDecimal128)
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.DECIMAL256), castDecimal256ToDecimal128)
	return kernels
}

func GetCastToDecimal256() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.DECIMAL256, OutputTargetType)

	for _, inTy := range numericTypes {
		kernels = append(kernels, exec.NewScalarKernel(
			[]exec.InputType{exec.NewExactInput(inTy)}, OutputTargetType,
			numericToDecimal256Exec(inTy.ID()), nil))
	}

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.DECIMAL128), castDecimal128ToDecimal256)
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.DECIMAL256), castDecimal256ToDecimal256)
	return kernels
}
