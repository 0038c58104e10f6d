package dtype

// Type Conversion Strategy
//
// This file implements conversion between HDF5 raw bytes and Go values for
// the three datatype classes this module supports: fixed-point, floating
// point, and fixed-length string. Compound, array, variable-length, enum,
// bitfield and opaque datatypes are rejected by GoType (see dtype.go) before
// Convert is ever reached for them.
//
// # Fast Path Optimization
//
// For common cases where the HDF5 type exactly matches the Go type (same
// size, same endianness as the platform), we use direct memory copy via
// unsafe.Pointer. This is controlled by canDirectCopy() and directCopy().

import (
	"math"
	"reflect"
	"unsafe"

	"github.com/h5coro-go/h5coro/internal/herrors"
	"github.com/h5coro-go/h5coro/internal/message"
)

// Convert converts raw HDF5 data to Go values.
// The dest parameter should be a pointer to a slice or array of the appropriate type.
func Convert(dt *message.Datatype, data []byte, numElements uint64, dest interface{}) error {
	if dt == nil {
		return herrors.New(herrors.FormatError, "nil datatype")
	}

	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Ptr {
		return herrors.New(herrors.FormatError, "dest must be a pointer")
	}

	elemVal := destVal.Elem()

	switch dt.Class {
	case message.ClassFixedPoint:
		return convertFixedPoint(dt, data, numElements, elemVal)
	case message.ClassFloatPoint:
		return convertFloatPoint(dt, data, numElements, elemVal)
	case message.ClassString:
		return convertString(dt, data, numElements, elemVal)
	default:
		return herrors.New(herrors.UnsupportedFormat, "unsupported datatype class for conversion").
			WithDetail("class", dt.Class)
	}
}

// ConvertToSlice converts raw HDF5 data to a newly allocated slice.
func ConvertToSlice[T any](dt *message.Datatype, data []byte, numElements uint64) ([]T, error) {
	result := make([]T, numElements)
	err := Convert(dt, data, numElements, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func convertFixedPoint(dt *message.Datatype, data []byte, n uint64, dest reflect.Value) error {
	order := ByteOrder(dt)
	size := int(dt.Size)
	signed := dt.Signed

	// Fast path: if dest is a compatible slice and endianness matches
	if dest.Kind() == reflect.Slice && dest.CanSet() {
		if canDirectCopy(dt, dest.Type().Elem()) {
			return directCopy(data, n, size, dest)
		}
	}

	// Slow path: element-by-element conversion
	if dest.Kind() == reflect.Slice {
		if dest.Len() < int(n) {
			dest.Set(reflect.MakeSlice(dest.Type(), int(n), int(n)))
		}
	}

	for i := uint64(0); i < n; i++ {
		offset := int(i) * size
		if offset+size > len(data) {
			break
		}

		elemData := data[offset : offset+size]
		var val interface{}

		switch size {
		case 1:
			if signed {
				val = int8(elemData[0])
			} else {
				val = elemData[0]
			}
		case 2:
			v := order.Uint16(elemData)
			if signed {
				val = int16(v)
			} else {
				val = v
			}
		case 4:
			v := order.Uint32(elemData)
			if signed {
				val = int32(v)
			} else {
				val = v
			}
		case 8:
			v := order.Uint64(elemData)
			if signed {
				val = int64(v)
			} else {
				val = v
			}
		default:
			return herrors.New(herrors.UnsupportedFormat, "unsupported integer size").WithDetail("size", size)
		}

		if dest.Kind() == reflect.Slice {
			dest.Index(int(i)).Set(reflect.ValueOf(val).Convert(dest.Type().Elem()))
		}
	}

	return nil
}

func convertFloatPoint(dt *message.Datatype, data []byte, n uint64, dest reflect.Value) error {
	order := ByteOrder(dt)
	size := int(dt.Size)

	// Fast path
	if dest.Kind() == reflect.Slice && canDirectCopy(dt, dest.Type().Elem()) {
		return directCopy(data, n, size, dest)
	}

	// Slow path
	if dest.Kind() == reflect.Slice {
		if dest.Len() < int(n) {
			dest.Set(reflect.MakeSlice(dest.Type(), int(n), int(n)))
		}
	}

	for i := uint64(0); i < n; i++ {
		offset := int(i) * size
		if offset+size > len(data) {
			break
		}

		elemData := data[offset : offset+size]
		var val interface{}

		switch size {
		case 4:
			bits := order.Uint32(elemData)
			val = math.Float32frombits(bits)
		case 8:
			bits := order.Uint64(elemData)
			val = math.Float64frombits(bits)
		default:
			return herrors.New(herrors.UnsupportedFormat, "unsupported float size").WithDetail("size", size)
		}

		if dest.Kind() == reflect.Slice {
			dest.Index(int(i)).Set(reflect.ValueOf(val).Convert(dest.Type().Elem()))
		}
	}

	return nil
}

func convertString(dt *message.Datatype, data []byte, n uint64, dest reflect.Value) error {
	size := int(dt.Size)

	if dest.Kind() == reflect.Slice {
		if dest.Len() < int(n) {
			dest.Set(reflect.MakeSlice(dest.Type(), int(n), int(n)))
		}
	}

	for i := uint64(0); i < n; i++ {
		offset := int(i) * size
		if offset+size > len(data) {
			break
		}

		strData := data[offset : offset+size]

		// Find null terminator or end of padding
		end := len(strData)
		for j := 0; j < len(strData); j++ {
			if strData[j] == 0 {
				end = j
				break
			}
		}

		// Trim trailing spaces for space-padded strings
		if dt.StringPadding == message.PadSpacePad {
			for end > 0 && strData[end-1] == ' ' {
				end--
			}
		}

		str := string(strData[:end])

		if dest.Kind() == reflect.Slice {
			dest.Index(int(i)).SetString(str)
		} else if dest.Kind() == reflect.String {
			dest.SetString(str)
		}
	}

	return nil
}

// canDirectCopy checks if we can do a direct memory copy.
func canDirectCopy(dt *message.Datatype, elemType reflect.Type) bool {
	// Must be little-endian (native for most systems)
	if dt.ByteOrder != message.OrderLE {
		return false
	}

	// Size must match
	if int(dt.Size) != int(elemType.Size()) {
		return false
	}

	// Type must be compatible
	switch dt.Class {
	case message.ClassFixedPoint:
		switch elemType.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return dt.Signed
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return !dt.Signed
		}
	case message.ClassFloatPoint:
		switch elemType.Kind() {
		case reflect.Float32, reflect.Float64:
			return true
		}
	}

	return false
}

// directCopy performs a direct memory copy for compatible types.
func directCopy(data []byte, n uint64, size int, dest reflect.Value) error {
	needed := int(n) * size
	if needed > len(data) {
		return herrors.New(herrors.FormatError, "not enough data for direct copy").
			WithDetail("needed", needed).WithDetail("have", len(data))
	}

	if dest.Len() < int(n) {
		dest.Set(reflect.MakeSlice(dest.Type(), int(n), int(n)))
	}

	// Get pointer to slice data
	sliceHeader := (*reflect.SliceHeader)(unsafe.Pointer(dest.UnsafeAddr()))
	destPtr := unsafe.Pointer(sliceHeader.Data)

	// Copy data directly
	copy(unsafe.Slice((*byte)(destPtr), needed), data[:needed])

	return nil
}

// ReadScalar reads a single scalar value from raw data.
func ReadScalar[T any](dt *message.Datatype, data []byte) (T, error) {
	var zero T
	result := make([]T, 1)
	err := Convert(dt, data, 1, &result)
	if err != nil {
		return zero, err
	}
	return result[0], nil
}
