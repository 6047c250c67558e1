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
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/quiverdb/quiver/compute/internal/exec"
)

func doStaticCast[InT, OutT numeric](in []InT, out []OutT) {
	for i, v := range in {
		out[i] = OutT(v)
	}
}

func castToNumeric[InT numeric](outID arrow.Type, in []InT, outBytes []byte, length int) {
	switch outID {
	case arrow.INT8:
		doStaticCast(in, exec.GetData[int8](outBytes)[:length])
	case arrow.UINT8:
		doStaticCast(in, exec.GetData[uint8](outBytes)[:length])
	case arrow.INT16:
		doStaticCast(in, exec.GetData[int16](outBytes)[:length])
	case arrow.UINT16:
		doStaticCast(in, exec.GetData[uint16](outBytes)[:length])
	case arrow.INT32:
		doStaticCast(in, exec.GetData[int32](outBytes)[:length])
	case arrow.UINT32:
		doStaticCast(in, exec.GetData[uint32](outBytes)[:length])
	case arrow.INT64:
		doStaticCast(in, exec.GetData[int64](outBytes)[:length])
	case arrow.UINT64:
		doStaticCast(in, exec.GetData[uint64](outBytes)[:length])
	case arrow.FLOAT32:
		doStaticCast(in, exec.GetData[float32](outBytes)[:length])
	case arrow.FLOAT64:
		doStaticCast(in, exec.GetData[float64](outBytes)[:length])
	}
}

// castNumericUnsafe converts between any two numeric physical
// representations with plain Go conversions: no bounds checking happens
// here, callers are responsible for validating ranges beforehand.
func castNumericUnsafe(inID, outID arrow.Type, inBytes, outBytes []byte, length int) {
	switch inID {
	case arrow.INT8:
		castToNumeric(outID, exec.GetData[int8](inBytes)[:length], outBytes, length)
	case arrow.UINT8:
		castToNumeric(outID, exec.GetData[uint8](inBytes)[:length], outBytes, length)
	case arrow.INT16:
		castToNumeric(outID, exec.GetData[int16](inBytes)[:length], outBytes, length)
	case arrow.UINT16:
		castToNumeric(outID, exec.GetData[uint16](inBytes)[:length], outBytes, length)
	case arrow.INT32:
		castToNumeric(outID, exec.GetData[int32](inBytes)[:length], outBytes, length)
	case arrow.UINT32:
		castToNumeric(outID, exec.GetData[uint32](inBytes)[:length], outBytes, length)
	case arrow.INT64:
		castToNumeric(outID, exec.GetData[int64](inBytes)[:length], outBytes, length)
	case arrow.UINT64:
		castToNumeric(outID, exec.GetData[uint64](inBytes)[:length], outBytes, length)
	case arrow.FLOAT32:
		castToNumeric(outID, exec.GetData[float32](inBytes)[:length], outBytes, length)
	case arrow.FLOAT64:
		castToNumeric(outID, exec.GetData[float64](inBytes)[:length], outBytes, length)
	}
}
