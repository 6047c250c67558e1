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

package compute_test

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/scalar"
	"github.com/quiverdb/quiver/compute"
	"github.com/stretchr/testify/suite"
)

type BetweenSuite struct {
	BinaryFuncTestSuite
}

func (b *BetweenSuite) validateBetween(value, lower, upper, expected compute.Datum, opts *compute.BetweenOptions) {
	result, err := compute.Between(b.ctx, value, lower, upper, opts)
	b.Require().NoError(err)
	defer result.Release()

	assertDatumsEqual(b.T(), expected, result)
}

func (b *BetweenSuite) checkArrScalarScalar(dt arrow.DataType, valueStr string, lower, upper scalar.Scalar, expStr string, opts *compute.BetweenOptions) {
	value := b.getArr(dt, valueStr)
	defer value.Release()
	exp := b.getArr(arrow.FixedWidthTypes.Boolean, expStr)
	defer exp.Release()

	b.validateBetween(&compute.ArrayDatum{Value: value.Data()},
		compute.NewDatum(lower), compute.NewDatum(upper),
		&compute.ArrayDatum{Value: exp.Data()}, opts)
}

func (b *BetweenSuite) checkArrays(dt arrow.DataType, valueStr, lowerStr, upperStr, expStr string, opts *compute.BetweenOptions) {
	value := b.getArr(dt, valueStr)
	defer value.Release()
	lower := b.getArr(dt, lowerStr)
	defer lower.Release()
	upper := b.getArr(dt, upperStr)
	defer upper.Release()
	exp := b.getArr(arrow.FixedWidthTypes.Boolean, expStr)
	defer exp.Release()

	b.validateBetween(&compute.ArrayDatum{Value: value.Data()},
		&compute.ArrayDatum{Value: lower.Data()}, &compute.ArrayDatum{Value: upper.Data()},
		&compute.ArrayDatum{Value: exp.Data()}, opts)
}

func (b *BetweenSuite) TestInclusiveVariants() {
	const values = `[0, 1, 2, 3, 4, null]`
	lower := scalar.NewInt32Scalar(1)
	upper := scalar.NewInt32Scalar(3)

	cases := []struct {
		name      string
		inclusive compute.BetweenInclusive
		exp       string
	}{
		{"both", compute.BetweenBoth, `[false, true, true, true, false, null]`},
		{"left", compute.BetweenLeft, `[false, true, true, false, false, null]`},
		{"right", compute.BetweenRight, `[false, false, true, true, false, null]`},
		{"neither", compute.BetweenNeither, `[false, false, true, false, false, null]`},
	}
	for _, tc := range cases {
		b.Run(tc.name, func() {
			b.checkArrScalarScalar(arrow.PrimitiveTypes.Int32, values, lower, upper,
				tc.exp, &compute.BetweenOptions{Inclusive: tc.inclusive})
		})
	}

	// a nil options includes both bounds
	b.checkArrScalarScalar(arrow.PrimitiveTypes.Int32, values, lower, upper,
		`[false, true, true, true, false, null]`, nil)
}

func (b *BetweenSuite) TestArrayBounds() {
	b.checkArrays(arrow.PrimitiveTypes.Int32,
		`[2, 2, 2, 2]`,
		`[1, 3, null, 2]`,
		`[3, 1, 3, null]`,
		`[true, false, null, null]`, nil)
}

func (b *BetweenSuite) TestKleeneNullHandling() {
	// a decidedly false bound comparison dominates a null one, so the
	// result is false rather than null
	b.checkArrays(arrow.PrimitiveTypes.Int32,
		`[5, 5]`,
		`[10, null]`,
		`[null, 4]`,
		`[false, false]`, nil)
}

func (b *BetweenSuite) TestStrings() {
	b.checkArrScalarScalar(arrow.BinaryTypes.String,
		`["aa", "bb", "cc", null]`,
		scalar.NewStringScalar("ab"), scalar.NewStringScalar("cb"),
		`[false, true, false, null]`, nil)
}

func (b *BetweenSuite) TestNumericPromotion() {
	value := b.getArr(arrow.PrimitiveTypes.Int32, `[1, 2, 3]`)
	defer value.Release()
	exp := b.getArr(arrow.FixedWidthTypes.Boolean, `[false, true, false]`)
	defer exp.Release()

	b.validateBetween(&compute.ArrayDatum{Value: value.Data()},
		compute.NewDatum(scalar.NewFloat64Scalar(1.5)),
		compute.NewDatum(scalar.NewFloat64Scalar(2.5)),
		&compute.ArrayDatum{Value: exp.Data()}, nil)
}

func (b *BetweenSuite) TestDecomposesToComparisons() {
	const (
		valuesJSON = `[0.5, 1.0, null, 3.5, 4.0]`
		lowerJSON  = `[1.0, null, 2.0, 1.0, 1.0]`
		upperJSON  = `[3.0, 3.0, 3.0, null, 3.0]`
	)

	value := b.getArr(arrow.PrimitiveTypes.Float64, valuesJSON)
	defer value.Release()
	lower := b.getArr(arrow.PrimitiveTypes.Float64, lowerJSON)
	defer lower.Release()
	upper := b.getArr(arrow.PrimitiveTypes.Float64, upperJSON)
	defer upper.Release()

	valueDatum := &compute.ArrayDatum{Value: value.Data()}
	lowerDatum := &compute.ArrayDatum{Value: lower.Data()}
	upperDatum := &compute.ArrayDatum{Value: upper.Data()}

	cases := []struct {
		inclusive          compute.BetweenInclusive
		lowerCmp, upperCmp string
	}{
		{compute.BetweenBoth, "less_equal", "less_equal"},
		{compute.BetweenLeft, "less_equal", "less"},
		{compute.BetweenRight, "less", "less_equal"},
		{compute.BetweenNeither, "less", "less"},
	}
	for _, tc := range cases {
		aboveLower, err := compute.CallFunction(b.ctx, tc.lowerCmp, nil, lowerDatum, valueDatum)
		b.Require().NoError(err)
		belowUpper, err := compute.CallFunction(b.ctx, tc.upperCmp, nil, valueDatum, upperDatum)
		b.Require().NoError(err)
		expected, err := compute.CallFunction(b.ctx, "and_kleene", nil, aboveLower, belowUpper)
		b.Require().NoError(err)
		aboveLower.Release()
		belowUpper.Release()

		b.validateBetween(valueDatum, lowerDatum, upperDatum, expected,
			&compute.BetweenOptions{Inclusive: tc.inclusive})
		expected.Release()
	}
}

func (b *BetweenSuite) TestTimestampUnits() {
	value := b.getArr(&arrow.TimestampType{Unit: arrow.Second},
		`["1970-01-01", "2000-02-29", "1900-02-28"]`)
	defer value.Release()
	lower := b.getArr(&arrow.TimestampType{Unit: arrow.Millisecond},
		`["1970-01-01", "1970-01-01", "1900-01-01"]`)
	defer lower.Release()
	upper := b.getArr(&arrow.TimestampType{Unit: arrow.Millisecond},
		`["1970-01-02", "2000-03-01", "1900-02-01"]`)
	defer upper.Release()
	exp := b.getArr(arrow.FixedWidthTypes.Boolean, `[true, true, false]`)
	defer exp.Release()

	b.validateBetween(&compute.ArrayDatum{Value: value.Data()},
		&compute.ArrayDatum{Value: lower.Data()}, &compute.ArrayDatum{Value: upper.Data()},
		&compute.ArrayDatum{Value: exp.Data()}, nil)
}

func (b *BetweenSuite) TestZonedAgainstNaive() {
	value := b.getArr(&arrow.TimestampType{Unit: arrow.Second},
		`["1970-01-01", "2000-02-29"]`)
	defer value.Release()
	bound := b.getArr(&arrow.TimestampType{Unit: arrow.Second, TimeZone: "utc"},
		`["1970-01-01", "2000-02-29"]`)
	defer bound.Release()

	_, err := compute.Between(b.ctx, &compute.ArrayDatum{Value: value.Data()},
		&compute.ArrayDatum{Value: bound.Data()}, &compute.ArrayDatum{Value: bound.Data()}, nil)
	b.ErrorIs(err, arrow.ErrType)
	b.ErrorContains(err, "Cannot compare timestamp with timezone to timestamp without timezone")
}

func (b *BetweenSuite) TestInvalidInclusive() {
	value := b.getArr(arrow.PrimitiveTypes.Int32, `[1]`)
	defer value.Release()
	datum := &compute.ArrayDatum{Value: value.Data()}

	_, err := compute.Between(b.ctx, datum, datum, datum,
		&compute.BetweenOptions{Inclusive: compute.BetweenInclusive(99)})
	b.ErrorIs(err, arrow.ErrInvalid)
}

func TestBetween(t *testing.T) {
	suite.Run(t, new(BetweenSuite))
}
