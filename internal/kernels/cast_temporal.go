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
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

const (
	millisecondsInDay int64 = 86400000
	secondsInDay      int64 = 86400
)

func timeUnitOf(dt arrow.DataType) arrow.TimeUnit {
	switch t := dt.(type) {
	case *arrow.TimestampType:
		return t.Unit
	case *arrow.Time32Type:
		return t.Unit
	case *arrow.Time64Type:
		return t.Unit
	case *arrow.DurationType:
		return t.Unit
	}
	return arrow.Second
}

// timeFactor returns whether converting a value between the two units
// multiplies or divides, and the positive factor to use.
func timeFactor(from, to arrow.TimeUnit) (multiply bool, factor int64) {
	f, t := int64(from.Multiplier()), int64(to.Multiplier())
	if f >= t {
		return true, f / t
	}
	return false, t / f
}

// shiftTime rescales the input span into the output span by the given
// factor. Multiplications are bounds checked unless the options allow
// time overflow, divisions are checked for remainders unless the
// options allow time truncation.
func shiftTime[InT, OutT exec.IntTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult, multiply bool, factor int64) error {
	opts := ctx.State.(CastState)
	inType := batch.Values[0].Array.Type

	if factor == 1 {
		fn := ScalarUnary(func(_ *exec.KernelCtx, in []InT, out []OutT) error {
			for i, v := range in {
				out[i] = OutT(v)
			}
			return nil
		})
		return fn(ctx, batch, out)
	}

	if multiply {
		if opts.AllowTimeOverflow {
			fn := ScalarUnary(func(_ *exec.KernelCtx, in []InT, out []OutT) error {
				for i, v := range in {
					out[i] = OutT(int64(v) * factor)
				}
				return nil
			})
			return fn(ctx, batch, out)
		}

		minVal, maxVal := MinOf[int64]()/factor, MaxOf[int64]()/factor
		fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v InT, err *error) OutT {
			if int64(v) < minVal || int64(v) > maxVal {
				*err = fmt.Errorf("%w: casting from %s to %s would result in out of bounds timestamp: %d",
					exec.ErrExecution, inType, out.Type, v)
			}
			return OutT(int64(v) * factor)
		})
		return fn(ctx, batch, out)
	}

	if opts.AllowTimeTruncate {
		fn := ScalarUnary(func(_ *exec.KernelCtx, in []InT, out []OutT) error {
			for i, v := range in {
				out[i] = OutT(int64(v) / factor)
			}
			return nil
		})
		return fn(ctx, batch, out)
	}

	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v InT, err *error) OutT {
		o := int64(v) / factor
		if o*factor != int64(v) {
			*err = fmt.Errorf("%w: casting from %s to %s would lose data: %d",
				exec.ErrExecution, inType, out.Type, v)
		}
		return OutT(o)
	})
	return fn(ctx, batch, out)
}

// castSimpleTemporal handles conversions between two temporal types
// whose physical values differ only by their time unit, such as
// timestamp to timestamp or duration to duration.
func castSimpleTemporal[InT, OutT exec.IntTypes](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	multiply, factor := timeFactor(timeUnitOf(batch.Values[0].Array.Type), timeUnitOf(out.Type))
	return shiftTime[InT, OutT](ctx, batch, out, multiply, factor)
}

func castDate32ToDate64(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	return shiftTime[int32, int64](ctx, batch, out, true, millisecondsInDay)
}

func castDate64ToDate32(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	return shiftTime[int64, int32](ctx, batch, out, false, millisecondsInDay)
}

func castDate32ToTimestamp(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	_, factor := timeFactor(arrow.Second, timeUnitOf(out.Type))
	return shiftTime[int32, int64](ctx, batch, out, true, secondsInDay*factor)
}

func castDate64ToTimestamp(ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	multiply, factor := timeFactor(arrow.Millisecond, timeUnitOf(out.Type))
	return shiftTime[int64, int64](ctx, batch, out, multiply, factor)
}

// timestampToTimeOfDay returns a function converting a timestamp value
// to its local time of day, honoring the timestamp's timezone.
func timestampToTimeOfDay(inType *arrow.TimestampType) (func(arrow.Timestamp) time.Duration, error) {
	toTime, err := inType.GetToTimeFunc()
	if err != nil {
		return nil, err
	}

	localize := func(t time.Time) time.Time { return t }
	if inType.TimeZone != "" && inType.TimeZone != "UTC" {
		localize = func(t time.Time) time.Time {
			_, offset := t.Zone()
			return t.Add(time.Duration(offset) * time.Second).UTC()
		}
	}

	return func(ts arrow.Timestamp) time.Duration {
		t := localize(toTime(ts))
		return t.Sub(t.Truncate(24 * time.Hour))
	}, nil
}

func castTimestampToDate[OutT arrow.Date32 | arrow.Date64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	inType := batch.Values[0].Array.Type.(*arrow.TimestampType)
	toTime, err := inType.GetToTimeFunc()
	if err != nil {
		return fmt.Errorf("%w: %s", arrow.ErrInvalid, err)
	}

	var fn exec.ArrayKernelExec
	if out.Type.ID() == arrow.DATE32 {
		fn = ScalarUnaryNotNull(func(_ *exec.KernelCtx, v arrow.Timestamp, _ *error) OutT {
			return OutT(arrow.Date32FromTime(toTime(v)))
		})
	} else {
		fn = ScalarUnaryNotNull(func(_ *exec.KernelCtx, v arrow.Timestamp, _ *error) OutT {
			return OutT(arrow.Date64FromTime(toTime(v)))
		})
	}
	return fn(ctx, batch, out)
}

func castTimestampToTime[OutT arrow.Time32 | arrow.Time64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	opts := ctx.State.(CastState)
	inType := batch.Values[0].Array.Type.(*arrow.TimestampType)

	timeOfDay, err := timestampToTimeOfDay(inType)
	if err != nil {
		return fmt.Errorf("%w: %s", arrow.ErrInvalid, err)
	}

	// the time of day is exact in nanoseconds, dividing down to the
	// output unit may lose sub-unit digits
	_, factor := timeFactor(timeUnitOf(out.Type), arrow.Nanosecond)
	fn := ScalarUnaryNotNull(func(_ *exec.KernelCtx, v arrow.Timestamp, err *error) OutT {
		ns := int64(timeOfDay(v))
		o := ns / factor
		if !opts.AllowTimeTruncate && o*factor != ns {
			*err = fmt.Errorf("%w: casting from %s to %s would lose data: %d",
				exec.ErrExecution, inType, out.Type, v)
		}
		return OutT(o)
	})
	return fn(ctx, batch, out)
}

func castStringToTimestamp[OffsetT int32 | int64](ctx *exec.KernelCtx, batch *exec.ExecSpan, out *exec.ExecResult) error {
	outType := out.Type.(*arrow.TimestampType)
	fn := ScalarUnaryNotNullBinaryArg[arrow.Timestamp, OffsetT](func(_ *exec.KernelCtx, v []byte, err *error) arrow.Timestamp {
		ts, e := arrow.TimestampFromString(string(v), outType.Unit)
		if e != nil {
			*err = fmt.Errorf("%w: %s", exec.ErrExecution, e)
		}
		return ts
	})
	return fn(ctx, batch, out)
}

func addCastKernel(kernels []exec.ScalarKernel, in exec.InputType, fn exec.ArrayKernelExec) []exec.ScalarKernel {
	return append(kernels, exec.NewScalarKernel([]exec.InputType{in}, OutputTargetType, fn, nil))
}

func GetTimestampCastKernels() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.TIMESTAMP, OutputTargetType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT64,
		exec.NewExactInput(arrow.PrimitiveTypes.Int64), OutputTargetType))

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIMESTAMP), castSimpleTemporal[int64, int64])
	kernels = addCastKernel(kernels, exec.NewExactInput(arrow.FixedWidthTypes.Date32), castDate32ToTimestamp)
	kernels = addCastKernel(kernels, exec.NewExactInput(arrow.FixedWidthTypes.Date64), castDate64ToTimestamp)
	kernels = addCastKernel(kernels, exec.NewExactInput(arrow.BinaryTypes.String), castStringToTimestamp[int32])
	kernels = addCastKernel(kernels, exec.NewExactInput(arrow.BinaryTypes.LargeString), castStringToTimestamp[int64])
	return kernels
}

func GetDate32CastKernels() []exec.ScalarKernel {
	outType := exec.NewOutputType(arrow.FixedWidthTypes.Date32)
	kernels := GetCommonCastKernels(arrow.DATE32, outType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT32,
		exec.NewExactInput(arrow.PrimitiveTypes.Int32), outType))

	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewExactInput(arrow.FixedWidthTypes.Date64)}, outType,
		castDate64ToDate32, nil))
	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewIDInput(arrow.TIMESTAMP)}, outType,
		castTimestampToDate[arrow.Date32], nil))
	return kernels
}

func GetDate64CastKernels() []exec.ScalarKernel {
	outType := exec.NewOutputType(arrow.FixedWidthTypes.Date64)
	kernels := GetCommonCastKernels(arrow.DATE64, outType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT64,
		exec.NewExactInput(arrow.PrimitiveTypes.Int64), outType))

	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewExactInput(arrow.FixedWidthTypes.Date32)}, outType,
		castDate32ToDate64, nil))
	kernels = append(kernels, exec.NewScalarKernel(
		[]exec.InputType{exec.NewIDInput(arrow.TIMESTAMP)}, outType,
		castTimestampToDate[arrow.Date64], nil))
	return kernels
}

func GetTime32CastKernels() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.TIME32, OutputTargetType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT32,
		exec.NewExactInput(arrow.PrimitiveTypes.Int32), OutputTargetType))

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIME32), castSimpleTemporal[int32, int32])
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIME64), castSimpleTemporal[int64, int32])
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIMESTAMP), castTimestampToTime[arrow.Time32])
	return kernels
}

func GetTime64CastKernels() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.TIME64, OutputTargetType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT64,
		exec.NewExactInput(arrow.PrimitiveTypes.Int64), OutputTargetType))

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIME32), castSimpleTemporal[int32, int64])
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIME64), castSimpleTemporal[int64, int64])
	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.TIMESTAMP), castTimestampToTime[arrow.Time64])
	return kernels
}

func GetDurationCastKernels() []exec.ScalarKernel {
	kernels := GetCommonCastKernels(arrow.DURATION, OutputTargetType)

	kernels = append(kernels, GetZeroCastKernel(arrow.INT64,
		exec.NewExactInput(arrow.PrimitiveTypes.Int64), OutputTargetType))

	kernels = addCastKernel(kernels, exec.NewIDInput(arrow.DURATION), castSimpleTemporal[int64, int64])
	return kernels
}

func GetIntervalCastKernels() []exec.ScalarKernel {
	return GetCommonCastKernels(arrow.INTERVAL_MONTH_DAY_NANO,
		exec.NewOutputType(arrow.FixedWidthTypes.MonthDayNanoInterval))
}
