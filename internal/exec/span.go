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
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/arrow/scalar"
)

// BufferSpan is a view over a buffer of data. The Owner is kept so the
// underlying refcounted buffer stays alive while the span is in use, but
// kernels operate on the raw byte slice. SelfAlloc marks a buffer whose
// reference is held by the span itself (allocated or retained on its
// behalf) and must be handed off when the span is converted to
// ArrayData.
type BufferSpan struct {
	Buf       []byte
	Owner     *memory.Buffer
	SelfAlloc bool
}

// SetBuffer points the span at buf without taking a reference.
func (b *BufferSpan) SetBuffer(buf *memory.Buffer) {
	b.Buf = buf.Bytes()
	b.Owner = buf
	b.SelfAlloc = false
}

// WrapBuffer points the span at buf, whose reference the span now owns.
func (b *BufferSpan) WrapBuffer(buf *memory.Buffer) {
	b.Buf = buf.Bytes()
	b.Owner = buf
	b.SelfAlloc = true
}

func numBuffersForType(dt arrow.DataType) int {
	switch dt.ID() {
	case arrow.NULL:
		return 1
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.STRING, arrow.LARGE_STRING:
		return 3
	case arrow.EXTENSION:
		return numBuffersForType(dt.(arrow.ExtensionType).StorageType())
	default:
		return 2
	}
}

// FillZeroLength fills a span as a zero-length array of the given type,
// pointing the buffers at the span's scratch space so no allocation is
// needed.
func FillZeroLength(dt arrow.DataType, span *ArraySpan) {
	span.Scratch[0], span.Scratch[1] = 0, 0
	span.Type = dt
	span.Len = 0
	numBufs := numBuffersForType(dt)
	for i := 0; i < numBufs; i++ {
		span.Buffers[i].Buf = arrow.Uint64Traits.CastToBytes(span.Scratch[:])[:0]
		span.Buffers[i].Owner = nil
		span.Buffers[i].SelfAlloc = false
	}
	for i := numBufs; i < 3; i++ {
		span.Buffers[i].Buf, span.Buffers[i].Owner = nil, nil
	}

	nt, ok := dt.(arrow.NestedType)
	if !ok {
		if len(span.Children) > 0 {
			span.Children = span.Children[:0]
		}
		return
	}

	span.resizeChildren(len(nt.Fields()))
	for i, f := range nt.Fields() {
		FillZeroLength(f.Type, &span.Children[i])
	}
}

// PromoteExecSpanScalars converts any scalar values in the span into
// length-1 array spans so kernels only ever see arrays.
func PromoteExecSpanScalars(span ExecSpan) {
	for i := range span.Values {
		if span.Values[i].Scalar != nil {
			span.Values[i].Array.FillFromScalar(span.Values[i].Scalar)
			span.Values[i].Scalar = nil
		}
	}
}

// ArraySpan is a zero-copy view over an array's buffers: the type, the
// logical length and offset, the null count, and up to three buffer
// views (validity, data/offsets, variable-width data). Dictionary arrays
// keep their dictionary as the single child span.
type ArraySpan struct {
	Type    arrow.DataType
	Len     int64
	Nulls   int64
	Offset  int64
	Buffers [3]BufferSpan

	// Scratch is local storage for fabricating small buffers, such as
	// the offsets buffer when a binary scalar is promoted to a length-1
	// array view.
	Scratch [2]uint64

	Children []ArraySpan
}

// UpdateNullCount computes the null count from the validity bitmap if it
// is not already known, caching the result.
func (a *ArraySpan) UpdateNullCount() int64 {
	if a.Nulls != array.UnknownNullCount {
		return a.Nulls
	}
	a.Nulls = a.Len - int64(bitutil.CountSetBits(a.Buffers[0].Buf, int(a.Offset), int(a.Len)))
	return a.Nulls
}

// MayHaveNulls returns true unless the span is known null-free.
func (a *ArraySpan) MayHaveNulls() bool {
	return a.Nulls != 0 && len(a.Buffers[0].Buf) > 0
}

func (a *ArraySpan) Dictionary() *ArraySpan { return &a.Children[0] }

func (a *ArraySpan) NumBuffers() int { return numBuffersForType(a.Type) }

// MakeData converts the span back into ArrayData, retaining buffer
// ownership appropriately.
func (a *ArraySpan) MakeData() arrow.ArrayData {
	bufs := make([]*memory.Buffer, a.NumBuffers())
	for i := range bufs {
		b := a.GetBuffer(i)
		bufs[i] = b
		// release after NewData retains: the span's own reference is
		// handed off to the resulting ArrayData
		if b != nil && a.Buffers[i].SelfAlloc {
			defer b.Release()
		}
	}

	var (
		nulls  = int(a.Nulls)
		length = int(a.Len)
		off    = int(a.Offset)
		dt     = a.Type
	)

	if a.Type.ID() == arrow.NULL {
		nulls = length
	} else if len(a.Buffers[0].Buf) == 0 {
		nulls = 0
	}

	// the storage type decides whether a dictionary is attached
	if dt.ID() == arrow.EXTENSION {
		dt = dt.(arrow.ExtensionType).StorageType()
	}

	if dt.ID() == arrow.DICTIONARY {
		result := array.NewData(a.Type, length, bufs, nil, nulls, off)
		dict := a.Dictionary().MakeData()
		defer dict.Release()
		result.SetDictionary(dict)
		return result
	}

	children := make([]arrow.ArrayData, len(a.Children))
	for i, c := range a.Children {
		d := c.MakeData()
		defer d.Release()
		children[i] = d
	}
	return array.NewData(a.Type, length, bufs, children, nulls, off)
}

// MakeArray converts the span into an arrow.Array.
func (a *ArraySpan) MakeArray() arrow.Array {
	d := a.MakeData()
	defer d.Release()
	return array.MakeFromData(d)
}

// SetSlice updates the span to view a logical slice without touching the
// buffers. The null count becomes unknown and is recomputed on demand.
func (a *ArraySpan) SetSlice(off, length int64) {
	a.Offset, a.Len = off, length
	if a.Type.ID() != arrow.NULL {
		a.Nulls = array.UnknownNullCount
	} else {
		a.Nulls = a.Len
	}
}

// GetBuffer returns the buffer at idx as a refcounted memory.Buffer,
// fabricating a non-owning one when the span views foreign bytes.
func (a *ArraySpan) GetBuffer(idx int) *memory.Buffer {
	buf := a.Buffers[idx]
	switch {
	case buf.Owner != nil:
		return buf.Owner
	case buf.Buf != nil:
		return memory.NewBufferBytes(buf.Buf)
	}
	return nil
}

func (a *ArraySpan) resizeChildren(i int) {
	if cap(a.Children) >= i {
		a.Children = a.Children[:i]
	} else {
		a.Children = make([]ArraySpan, i)
	}
}

// setOffsetsForScalar writes a [0, valueSize] offsets buffer into the
// span's scratch space and points the buffer at bufidx to it.
func setOffsetsForScalar[T int32 | int64](span *ArraySpan, buf []T, valueSize int64, bufidx int) {
	buf[0] = 0
	buf[1] = T(valueSize)

	span.Buffers[bufidx].Buf = unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), 2*int(unsafe.Sizeof(T(0))))
	span.Buffers[bufidx].Owner = nil
	span.Buffers[bufidx].SelfAlloc = false
}

// FillFromScalar populates the span as a length-1 array viewing the
// scalar's storage. No allocation happens: variable-width offsets live
// in the span's scratch space.
func (a *ArraySpan) FillFromScalar(val scalar.Scalar) {
	var (
		trueBit  byte = 0x01
		falseBit byte = 0x00
	)

	// drop any buffer state left over from a previous use of the span
	for i := range a.Buffers {
		a.Buffers[i].Buf = nil
		a.Buffers[i].Owner = nil
		a.Buffers[i].SelfAlloc = false
	}

	a.Type = val.DataType()
	a.Len = 1
	typeID := a.Type.ID()
	if val.IsValid() {
		a.Nulls = 0
	} else {
		a.Nulls = 1
	}

	if !arrow.IsUnion(typeID) && typeID != arrow.NULL {
		if val.IsValid() {
			a.Buffers[0].Buf = []byte{trueBit}
		} else {
			a.Buffers[0].Buf = []byte{falseBit}
		}
	}

	switch {
	case typeID == arrow.BOOL:
		if val.(*scalar.Boolean).Value {
			a.Buffers[1].Buf = []byte{trueBit}
		} else {
			a.Buffers[1].Buf = []byte{falseBit}
		}
	case arrow.IsPrimitive(typeID) || arrow.IsDecimal(typeID):
		sc := val.(scalar.PrimitiveScalar)
		a.Buffers[1].Buf = sc.Data()
	case typeID == arrow.DICTIONARY:
		sc := val.(scalar.PrimitiveScalar)
		a.Buffers[1].Buf = sc.Data()
		a.resizeChildren(1)
		a.Children[0].SetMembers(val.(*scalar.Dictionary).Value.Dict.Data())
	case arrow.IsBaseBinary(typeID):
		sc := val.(scalar.BinaryScalar)
		a.Buffers[1].Buf = arrow.Uint64Traits.CastToBytes(a.Scratch[:])

		var dataBuffer []byte
		if sc.IsValid() {
			dataBuffer = sc.Data()
			a.Buffers[2].Owner = sc.Buffer()
		}
		if arrow.IsBinaryLike(typeID) {
			setOffsetsForScalar(a,
				unsafe.Slice((*int32)(unsafe.Pointer(&a.Scratch[0])), 2),
				int64(len(dataBuffer)), 1)
		} else {
			// large_binary and large_string use 64-bit offsets
			setOffsetsForScalar(a,
				unsafe.Slice((*int64)(unsafe.Pointer(&a.Scratch[0])), 2),
				int64(len(dataBuffer)), 1)
		}
		a.Buffers[2].Buf = dataBuffer
	case typeID == arrow.FIXED_SIZE_BINARY:
		sc := val.(scalar.BinaryScalar)
		if sc.IsValid() {
			a.Buffers[1].Buf = sc.Data()
			a.Buffers[1].Owner = sc.Buffer()
		} else {
			// fabricate zeroed storage so the data buffer has the
			// type's width even for a null scalar
			a.Buffers[1].Buf = make([]byte, a.Type.(*arrow.FixedSizeBinaryType).ByteWidth)
		}
	case arrow.IsListLike(typeID):
		sc := val.(scalar.ListScalar)
		valueLen := 0
		a.resizeChildren(1)

		if sc.GetList() != nil {
			a.Children[0].SetMembers(sc.GetList().Data())
			valueLen = sc.GetList().Len()
		} else {
			// a null list scalar still needs valid child data
			FillZeroLength(a.Type.(arrow.NestedType).Fields()[0].Type, &a.Children[0])
		}

		switch typeID {
		case arrow.LIST, arrow.MAP:
			setOffsetsForScalar(a,
				unsafe.Slice((*int32)(unsafe.Pointer(&a.Scratch[0])), 2),
				int64(valueLen), 1)
		case arrow.LARGE_LIST:
			setOffsetsForScalar(a,
				unsafe.Slice((*int64)(unsafe.Pointer(&a.Scratch[0])), 2),
				int64(valueLen), 1)
		default:
			// fixed size list has no offsets buffer
			a.Buffers[1].Buf, a.Buffers[1].Owner = nil, nil
		}
	case typeID == arrow.STRUCT:
		sc := val.(*scalar.Struct)
		a.resizeChildren(len(sc.Value))
		for i, v := range sc.Value {
			a.Children[i].FillFromScalar(v)
		}
	case arrow.IsUnion(typeID):
		// unions carry no validity bitmap, the type codes buffer marks
		// the active member
		a.Buffers[1].Buf = arrow.Uint64Traits.CastToBytes(a.Scratch[:])[:1]
		codes := unsafe.Slice((*arrow.UnionTypeCode)(unsafe.Pointer(&a.Buffers[1].Buf[0])), 1)

		a.resizeChildren(len(a.Type.(arrow.UnionType).Fields()))
		switch sc := val.(type) {
		case *scalar.DenseUnion:
			codes[0] = sc.TypeCode
			// offsets start 4 bytes in so they're aligned to 32 bits
			off := unsafe.Slice((*int32)(unsafe.Add(unsafe.Pointer(&a.Scratch[0]), arrow.Int32SizeBytes)), 2)
			setOffsetsForScalar(a, off, 1, 2)
			// only the active member is visible, the rest become
			// zero-length arrays
			childIDS := a.Type.(arrow.UnionType).ChildIDs()
			for i, f := range a.Type.(arrow.UnionType).Fields() {
				if i == childIDS[sc.TypeCode] {
					a.Children[i].FillFromScalar(sc.Value)
				} else {
					FillZeroLength(f.Type, &a.Children[i])
				}
			}
		case *scalar.SparseUnion:
			codes[0] = sc.TypeCode
			// sparse union scalars carry a full complement of child
			// values even though only one is relevant
			for i, v := range sc.Value {
				a.Children[i].FillFromScalar(v)
			}
		}
	case typeID == arrow.EXTENSION:
		// fill from the storage scalar and restore the extension type
		sc := val.(*scalar.Extension)
		a.FillFromScalar(sc.Value)
		a.Type = val.DataType()
	}
}

// TakeOwnership populates the span from data while retaining each
// buffer, so the span keeps the memory alive independently of the
// caller's reference to data.
func (a *ArraySpan) TakeOwnership(data arrow.ArrayData) {
	a.SetMembers(data)
	a.retainBuffers()
}

func (a *ArraySpan) retainBuffers() {
	for i := range a.Buffers {
		if a.Buffers[i].Owner != nil {
			a.Buffers[i].Owner.Retain()
			a.Buffers[i].SelfAlloc = true
		}
	}
	for i := range a.Children {
		a.Children[i].retainBuffers()
	}
}

// ReleaseBuffers drops the references the span itself holds, for output
// spans whose buffers never get handed off to an ArrayData because
// execution failed. Borrowed buffers are left alone.
func (a *ArraySpan) ReleaseBuffers() {
	for i := range a.Buffers {
		if a.Buffers[i].SelfAlloc && a.Buffers[i].Owner != nil {
			a.Buffers[i].Owner.Release()
		}
		a.Buffers[i].Buf = nil
		a.Buffers[i].Owner = nil
		a.Buffers[i].SelfAlloc = false
	}
	for i := range a.Children {
		a.Children[i].ReleaseBuffers()
	}
}

// SetMembers populates the span to view existing ArrayData.
func (a *ArraySpan) SetMembers(data arrow.ArrayData) {
	a.Type = data.DataType()
	a.Len = int64(data.Len())
	if a.Type.ID() == arrow.NULL {
		a.Nulls = a.Len
	} else {
		a.Nulls = int64(data.NullN())
	}
	a.Offset = int64(data.Offset())

	for i, b := range data.Buffers() {
		if b != nil {
			a.Buffers[i].SetBuffer(b)
		} else {
			a.Buffers[i].Buf = nil
			a.Buffers[i].Owner = nil
			a.Buffers[i].SelfAlloc = false
		}
	}

	if a.Buffers[0].Buf == nil && a.Type.ID() != arrow.NULL {
		// no validity bitmap means no nulls
		a.Nulls = 0
	}

	for i := len(data.Buffers()); i < 3; i++ {
		a.Buffers[i].Buf = nil
		a.Buffers[i].Owner = nil
		a.Buffers[i].SelfAlloc = false
	}

	if a.Type.ID() == arrow.DICTIONARY {
		a.resizeChildren(1)
		a.Children[0].SetMembers(data.Dictionary())
	} else if len(a.Children) > 0 {
		a.Children = a.Children[:0]
	}
}

// ExecValue is a single kernel argument: either an array span or a
// scalar, never both.
type ExecValue struct {
	Array  ArraySpan
	Scalar scalar.Scalar
}

func (e *ExecValue) IsArray() bool  { return e.Scalar == nil }
func (e *ExecValue) IsScalar() bool { return !e.IsArray() }

func (e *ExecValue) Type() arrow.DataType {
	if e.IsArray() {
		return e.Array.Type
	}
	return e.Scalar.DataType()
}

// ExecResult is the write target a kernel fills for each span.
type ExecResult = ArraySpan

// ExecSpan is a unit of work for a kernel: a set of same-length values
// (or scalars broadcast across that length).
type ExecSpan struct {
	Len    int64
	Values []ExecValue
}
