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
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/quiverdb/quiver/compute/internal/debug"
	"github.com/quiverdb/quiver/compute/internal/exec"
	"github.com/quiverdb/quiver/compute/internal/kernels"
)

// Implicit promotion for dispatch: when no kernel matches the caller's
// types exactly, the argument types are rewritten in place to a common
// type and dispatch is retried. The rewritten types then drive implicit
// casts of the arguments before execution.

func hasDecimal(vals ...arrow.DataType) bool {
	for _, v := range vals {
		if arrow.IsDecimal(v.ID()) {
			return true
		}
	}
	return false
}

func replaceTypes(replacement arrow.DataType, vals ...arrow.DataType) {
	for i := range vals {
		vals[i] = replacement
	}
}

func ensureDictionaryDecoded(vals ...arrow.DataType) {
	for i, v := range vals {
		if v.ID() == arrow.DICTIONARY {
			vals[i] = v.(*arrow.DictionaryType).ValueType
		}
	}
}

func replaceNullWithOtherType(vals ...arrow.DataType) {
	debug.Assert(len(vals) == 2, "should be length 2")

	if vals[0].ID() == arrow.NULL {
		vals[0] = vals[1]
		return
	}

	if vals[1].ID() == arrow.NULL {
		vals[1] = vals[0]
	}
}

// commonNumeric returns the common type all numeric operands promote
// to, or nil when one operand isn't numeric. Floats always win over
// integers; mixed-sign integers promote to the next wider signed type,
// capped at int64 (so int64 against uint64 promotes to int64 and large
// uint64 values fail at cast time).
func commonNumeric(vals ...arrow.DataType) arrow.DataType {
	for _, v := range vals {
		if !arrow.IsFloating(v.ID()) && !arrow.IsInteger(v.ID()) {
			return nil
		}
		if v.ID() == arrow.FLOAT16 {
			// float16 comparisons are not implemented
			return nil
		}
	}

	for _, v := range vals {
		if v.ID() == arrow.FLOAT64 {
			return arrow.PrimitiveTypes.Float64
		}
	}
	for _, v := range vals {
		if v.ID() == arrow.FLOAT32 {
			return arrow.PrimitiveTypes.Float32
		}
	}

	maxWidthSigned, maxWidthUnsigned := 0, 0
	for _, v := range vals {
		width := v.(arrow.FixedWidthDataType).BitWidth()
		if arrow.IsUnsignedInteger(v.ID()) {
			maxWidthUnsigned = exec.Max(width, maxWidthUnsigned)
		} else {
			maxWidthSigned = exec.Max(width, maxWidthSigned)
		}
	}

	if maxWidthSigned == 0 {
		switch {
		case maxWidthUnsigned >= 64:
			return arrow.PrimitiveTypes.Uint64
		case maxWidthUnsigned == 32:
			return arrow.PrimitiveTypes.Uint32
		case maxWidthUnsigned == 16:
			return arrow.PrimitiveTypes.Uint16
		default:
			debug.Assert(maxWidthUnsigned == 8, "bad unsigned width")
			return arrow.PrimitiveTypes.Uint8
		}
	}

	if maxWidthSigned <= maxWidthUnsigned {
		maxWidthSigned = bitutil.NextPowerOf2(maxWidthUnsigned + 1)
	}

	switch {
	case maxWidthSigned >= 64:
		return arrow.PrimitiveTypes.Int64
	case maxWidthSigned == 32:
		return arrow.PrimitiveTypes.Int32
	case maxWidthSigned == 16:
		return arrow.PrimitiveTypes.Int16
	default:
		debug.Assert(maxWidthSigned == 8, "bad signed width")
		return arrow.PrimitiveTypes.Int8
	}
}

// checkCompatibleTimestamps rejects mixing zone-aware and naive
// timestamps, which have no defined ordering against each other.
func checkCompatibleTimestamps(vals ...arrow.DataType) error {
	var zoned, naive bool
	for _, v := range vals {
		if ts, ok := v.(*arrow.TimestampType); ok {
			if len(ts.TimeZone) > 0 {
				zoned = true
			} else {
				naive = true
			}
		}
	}
	if zoned && naive {
		return fmt.Errorf("%w: Cannot compare timestamp with timezone to timestamp without timezone",
			arrow.ErrType)
	}
	return nil
}

// commonTemporal promotes dates and timestamps to a single type: any
// timestamp operand pulls dates up to a timestamp of the finest unit
// seen, date32 against date64 yields date64.
func commonTemporal(vals ...arrow.DataType) arrow.DataType {
	var (
		finestUnit           = arrow.Second
		zone                 string
		initialized          bool
		sawDate32, sawDate64 bool
	)

	for _, v := range vals {
		switch v.ID() {
		case arrow.DATE32:
			sawDate32 = true
		case arrow.DATE64:
			sawDate64 = true
		case arrow.TIMESTAMP:
			ts := v.(*arrow.TimestampType)
			if ts.Unit > finestUnit {
				finestUnit = ts.Unit
			}

			if !initialized {
				initialized = true
				zone = ts.TimeZone
			} else if zone != ts.TimeZone {
				return nil
			}
		default:
			return nil
		}
	}

	switch {
	case initialized:
		return &arrow.TimestampType{Unit: finestUnit, TimeZone: zone}
	case sawDate64:
		return arrow.FixedWidthTypes.Date64
	case sawDate32:
		return arrow.FixedWidthTypes.Date32
	}
	return nil
}

// commonBinary widens binary-like operands: any non-utf8 operand drops
// the result to binary, any 64-bit-offset operand widens the offsets.
// Fixed-size operands participate as binary.
func commonBinary(vals ...arrow.DataType) arrow.DataType {
	allUTF8, allOffset32 := true, true

	for _, v := range vals {
		switch v.ID() {
		case arrow.STRING:
		case arrow.BINARY, arrow.FIXED_SIZE_BINARY:
			allUTF8 = false
		case arrow.LARGE_STRING:
			allOffset32 = false
		case arrow.LARGE_BINARY:
			allOffset32 = false
			allUTF8 = false
		default:
			return nil
		}
	}

	switch {
	case allUTF8:
		if allOffset32 {
			return arrow.BinaryTypes.String
		}
		return arrow.BinaryTypes.LargeString
	case allOffset32:
		return arrow.BinaryTypes.Binary
	}
	return arrow.BinaryTypes.LargeBinary
}

type decimalPromotion uint8

const (
	decPromoteNone decimalPromotion = iota
	decPromoteAdd
	decPromoteMultiply
	decPromoteDivide
)

// castBinaryDecimalArgs rewrites a decimal/decimal, decimal/integer or
// decimal/float pair to directly comparable types: floats pull the
// decimal up to float64, integers become decimals of scale 0, and two
// decimals rescale to the larger scale with enough extra precision to
// hold either operand.
func castBinaryDecimalArgs(promote decimalPromotion, vals ...arrow.DataType) error {
	left, right := vals[0], vals[1]
	debug.Assert(arrow.IsDecimal(left.ID()) || arrow.IsDecimal(right.ID()), "at least one decimal")

	// decimal against float becomes float
	if arrow.IsFloating(left.ID()) {
		vals[1] = vals[0]
		return nil
	} else if arrow.IsFloating(right.ID()) {
		vals[0] = vals[1]
		return nil
	}

	var (
		prec1, scale1, prec2, scale2 int32
		err                          error
	)

	if arrow.IsDecimal(left.ID()) {
		dec := left.(arrow.DecimalType)
		prec1, scale1 = dec.GetPrecision(), dec.GetScale()
	} else if arrow.IsInteger(left.ID()) {
		if prec1, err = kernels.MaxDecimalDigitsForInt(left.ID()); err != nil {
			return err
		}
	} else {
		return fmt.Errorf("%w: invalid combination of types %s and %s for decimal promotion",
			arrow.ErrInvalid, left, right)
	}

	if arrow.IsDecimal(right.ID()) {
		dec := right.(arrow.DecimalType)
		prec2, scale2 = dec.GetPrecision(), dec.GetScale()
	} else if arrow.IsInteger(right.ID()) {
		if prec2, err = kernels.MaxDecimalDigitsForInt(right.ID()); err != nil {
			return err
		}
	} else {
		return fmt.Errorf("%w: invalid combination of types %s and %s for decimal promotion",
			arrow.ErrInvalid, left, right)
	}

	if scale1 < 0 || scale2 < 0 {
		return fmt.Errorf("%w: decimals with negative scales not supported", arrow.ErrNotImplemented)
	}

	var leftScaleup, rightScaleup int32
	switch promote {
	case decPromoteAdd:
		leftScaleup = exec.Max(scale1, scale2) - scale1
		rightScaleup = exec.Max(scale1, scale2) - scale2
	case decPromoteMultiply:
	case decPromoteDivide:
		leftScaleup = exec.Max(4, scale1+prec2-scale2+1) + scale2 - scale1
	default:
		debug.Assert(false, "invalid decimal promotion")
	}

	useDec256 := left.ID() == arrow.DECIMAL256 || right.ID() == arrow.DECIMAL256 ||
		prec1+leftScaleup > 38 || prec2+rightScaleup > 38

	if useDec256 {
		vals[0] = &arrow.Decimal256Type{Precision: prec1 + leftScaleup, Scale: scale1 + leftScaleup}
		vals[1] = &arrow.Decimal256Type{Precision: prec2 + rightScaleup, Scale: scale2 + rightScaleup}
	} else {
		vals[0] = &arrow.Decimal128Type{Precision: prec1 + leftScaleup, Scale: scale1 + leftScaleup}
		vals[1] = &arrow.Decimal128Type{Precision: prec2 + rightScaleup, Scale: scale2 + rightScaleup}
	}
	return nil
}
