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

// Package compute is the kernel dispatch and execution core of the
// quiver columnar engine, operating on Arrow-formatted data.
//
// Callers hand the library Datums (scalars, arrays or chunked arrays),
// name a function out of the process-wide registry, and get a Datum
// back:
//
//	out, err := compute.CallFunction(ctx, "equal", nil, lhs, rhs)
//
// Dispatch finds a kernel matching the argument types, promoting them
// to a common type when no kernel matches exactly. Large arrays are
// split into chunks executed in parallel on the executor configured in
// the context's ExecCtx, and reassembled in caller order.
//
// The built-in functions cover casts ("cast", plus CastArray and
// friends), the six comparisons ("equal" through "less_equal"),
// boolean logic in plain and Kleene flavors, "between", and the
// variadic "min_element_wise"/"max_element_wise".
package compute
