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

package compute

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/scalar"
	"github.com/quiverdb/quiver/compute/internal/exec"
	"github.com/quiverdb/quiver/compute/internal/kernels"
)

// MinMaxOptions controls how elementwise min/max treats nulls: skipping
// them (the default) or letting one null operand null the position.
type MinMaxOptions = kernels.MinMaxOptions

func DefaultMinMaxOptions() *MinMaxOptions {
	return &MinMaxOptions{SkipNulls: true}
}

type minMaxFunction struct {
	ScalarFunction
}

func (fn *minMaxFunction) Execute(ctx context.Context, opt FunctionOptions, args ...Datum) (Datum, error) {
	// with no operands there is nothing to fold, so the result is a
	// typeless null
	if len(args) == 0 {
		return NewDatum(scalar.MakeNullScalar(arrow.Null)), nil
	}
	return execInternal(ctx, fn, opt, -1, args...)
}

func (fn *minMaxFunction) DispatchBest(vals ...arrow.DataType) (exec.Kernel, error) {
	if err := fn.checkArity(len(vals)); err != nil {
		return nil, err
	}

	if err := checkCompatibleTimestamps(vals...); err != nil {
		return nil, err
	}

	ensureDictionaryDecoded(vals...)

	// decimals don't promote here: all operands must already carry one
	// scale, unlike comparisons
	if hasDecimal(vals...) {
		var scale int32 = -1
		for _, v := range vals {
			dec, ok := v.(arrow.DecimalType)
			if !ok {
				return nil, fmt.Errorf("%w: %s between decimal and non-decimal operands",
					arrow.ErrNotImplemented, fn.name)
			}
			if scale == -1 {
				scale = dec.GetScale()
			} else if scale != dec.GetScale() {
				return nil, fmt.Errorf("%w: %s over decimals with differing scales",
					arrow.ErrNotImplemented, fn.name)
			}
		}
	}

	for i, v := range vals {
		if i == 0 || v.ID() != arrow.FIXED_SIZE_BINARY {
			continue
		}
		first, ok := vals[0].(*arrow.FixedSizeBinaryType)
		if !ok || first.ByteWidth != v.(*arrow.FixedSizeBinaryType).ByteWidth {
			return nil, fmt.Errorf("%w: %s over fixed size binary with differing widths",
				arrow.ErrNotImplemented, fn.name)
		}
	}

	if kn, err := fn.DispatchExact(vals...); err == nil {
		return kn, nil
	}

	// null operands take the type of the rest
	var otherType arrow.DataType
	for _, v := range vals {
		if v.ID() != arrow.NULL {
			otherType = v
			break
		}
	}
	if otherType != nil {
		for i, v := range vals {
			if v.ID() == arrow.NULL {
				vals[i] = otherType
			}
		}
	}

	if dt := commonNumeric(vals...); dt != nil {
		replaceTypes(dt, vals...)
	} else if dt := commonTemporal(vals...); dt != nil {
		replaceTypes(dt, vals...)
	}

	return fn.DispatchExact(vals...)
}

var minMaxDoc = FunctionDoc{
	Summary:     "find the elementwise minimum or maximum value",
	Description: "Nulls are by default skipped; MinMaxOptions can make\nthem poison the position instead.",
	ArgNames:    []string{"args"},
	OptionsType: "MinMaxOptions",
}

func makeMinMaxFn(name string, isMax bool) *minMaxFunction {
	fn := &minMaxFunction{*NewScalarFunction(name, VarArgs(0), minMaxDoc)}
	fn.SetDefaultOptions(DefaultMinMaxOptions())
	for _, k := range kernels.MinMaxKernels(isMax) {
		if err := fn.AddKernel(k); err != nil {
			panic(err)
		}
	}
	return fn
}

func RegisterScalarMinMax(reg FunctionRegistry) {
	reg.AddFunction(makeMinMaxFn("min_element_wise", false), false)
	reg.AddFunction(makeMinMaxFn("max_element_wise", true), false)
}

// MinElementWise folds its arguments elementwise to the smallest value
// at each position. A nil opts skips nulls.
func MinElementWise(ctx context.Context, opts *MinMaxOptions, args ...Datum) (Datum, error) {
	var fo FunctionOptions
	if opts != nil {
		fo = opts
	}
	return CallFunction(ctx, "min_element_wise", fo, args...)
}

// MaxElementWise folds its arguments elementwise to the largest value
// at each position. A nil opts skips nulls.
func MaxElementWise(ctx context.Context, opts *MinMaxOptions, args ...Datum) (Datum, error) {
	var fo FunctionOptions
	if opts != nil {
		fo = opts
	}
	return CallFunction(ctx, "max_element_wise", fo, args...)
}
