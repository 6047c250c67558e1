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
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=BetweenInclusive -linecomment

// BetweenInclusive selects which bounds of a between call admit
// equality.
type BetweenInclusive int8

const (
	BetweenBoth    BetweenInclusive = iota // both
	BetweenLeft                            // left
	BetweenRight                           // right
	BetweenNeither                         // neither
)

type BetweenOptions struct {
	Inclusive BetweenInclusive `compute:"inclusive"`
}

func (BetweenOptions) TypeName() string { return "BetweenOptions" }

var (
	betweenDoc = FunctionDoc{
		Summary:     "check if values are in the range lower to upper",
		Description: "Which comparison each bound uses is controlled\nthrough BetweenOptions.",
		ArgNames:    []string{"values", "lower", "upper"},
		OptionsType: "BetweenOptions",
	}

	// between decomposes into the two bound comparisons joined with
	// Kleene AND, which gives the null semantics of three-valued logic:
	// a position is false whenever either comparison is decidedly
	// false, null only when undecidable.
	betweenMetaFunc = NewMetaFunction("between", Ternary(), betweenDoc,
		func(ctx context.Context, fo FunctionOptions, d ...Datum) (Datum, error) {
			inclusive := BetweenBoth
			if opts, ok := fo.(*BetweenOptions); ok && opts != nil {
				inclusive = opts.Inclusive
			}

			var lowerCmp, upperCmp string
			switch inclusive {
			case BetweenBoth:
				lowerCmp, upperCmp = "less_equal", "less_equal"
			case BetweenLeft:
				lowerCmp, upperCmp = "less_equal", "less"
			case BetweenRight:
				lowerCmp, upperCmp = "less", "less_equal"
			case BetweenNeither:
				lowerCmp, upperCmp = "less", "less"
			default:
				return nil, fmt.Errorf("%w: invalid inclusive option %d", arrow.ErrInvalid, inclusive)
			}

			value, lower, upper := d[0], d[1], d[2]

			aboveLower, err := CallFunction(ctx, lowerCmp, nil, lower, value)
			if err != nil {
				return nil, err
			}
			defer aboveLower.Release()

			belowUpper, err := CallFunction(ctx, upperCmp, nil, value, upper)
			if err != nil {
				return nil, err
			}
			defer belowUpper.Release()

			return CallFunction(ctx, "and_kleene", nil, aboveLower, belowUpper)
		})
)

func RegisterScalarBetween(reg FunctionRegistry) {
	reg.AddFunction(betweenMetaFunc, false)
}

// Between checks elementwise whether value lies between lower and
// upper, honoring the inclusivity of opts. A nil opts includes both
// bounds.
func Between(ctx context.Context, value, lower, upper Datum, opts *BetweenOptions) (Datum, error) {
	var fo FunctionOptions
	if opts != nil {
		fo = opts
	}
	return CallFunction(ctx, "between", fo, value, lower, upper)
}
