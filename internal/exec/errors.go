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

package exec

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ErrExecution marks data-dependent failures discovered while running a
// kernel over actual values (disallowed overflow, invalid UTF-8, and the
// like), as opposed to type-level failures caught at dispatch. It wraps
// arrow.ErrInvalid so callers matching on the broader class still catch
// it.
var ErrExecution = fmt.Errorf("%w: execution error", arrow.ErrInvalid)
