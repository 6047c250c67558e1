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

	"github.com/quiverdb/quiver/compute/internal/kernels"
)

func RegisterScalarBoolean(reg FunctionRegistry) {
	ops := []struct {
		name string
		op   kernels.BooleanOp
	}{
		{"and", kernels.OpAnd},
		{"or", kernels.OpOr},
		{"and_kleene", kernels.OpAndKleene},
		{"or_kleene", kernels.OpOrKleene},
	}

	for _, o := range ops {
		fn := NewScalarFunction(o.name, Binary(), EmptyFuncDoc)
		if err := fn.AddKernel(kernels.BooleanKernel(o.op)); err != nil {
			panic(err)
		}
		reg.AddFunction(fn, false)
	}
}

// And computes the conjunction of two boolean datums elementwise, null
// whenever either input is null.
func And(ctx context.Context, left, right Datum) (Datum, error) {
	return CallFunction(ctx, "and", nil, left, right)
}

// Or computes the disjunction of two boolean datums elementwise, null
// whenever either input is null.
func Or(ctx context.Context, left, right Datum) (Datum, error) {
	return CallFunction(ctx, "or", nil, left, right)
}

// AndKleene computes the three-valued conjunction: false AND null is
// false, only true AND null is null.
func AndKleene(ctx context.Context, left, right Datum) (Datum, error) {
	return CallFunction(ctx, "and_kleene", nil, left, right)
}

// OrKleene computes the three-valued disjunction: true OR null is true,
// only false OR null is null.
func OrKleene(ctx context.Context, left, right Datum) (Datum, error) {
	return CallFunction(ctx, "or_kleene", nil, left, right)
}
