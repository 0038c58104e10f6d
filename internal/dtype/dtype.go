// Package dtype provides datatype handling and conversion for HDF5 data.
//
// This package works with the message.Datatype parsed from object headers
// and provides utilities for converting raw HDF5 data to Go types.
package dtype

import (
	"encoding/binary"
	"reflect"

	"github.com/h5coro-go/h5coro/internal/herrors"
	"github.com/h5coro-go/h5coro/internal/message"
)

// GoType returns the Go reflect.Type that corresponds to the given HDF5 datatype.
//
// Only fixed-point, floating-point and string classes are supported.
// Compound, array, variable-length and enumerated datatypes are not decoded
// by this module; GoType reports them as unsupported-format rather than
// guessing at a Go representation.
func GoType(dt *message.Datatype) (reflect.Type, error) {
	if dt == nil {
		return nil, herrors.New(herrors.FormatError, "nil datatype")
	}

	switch dt.Class {
	case message.ClassFixedPoint:
		return goTypeFixedPoint(dt)
	case message.ClassFloatPoint:
		return goTypeFloatPoint(dt)
	case message.ClassString:
		return reflect.TypeOf(""), nil
	default:
		return nil, herrors.New(herrors.UnsupportedFormat, "unsupported datatype class").
			WithDetail("class", dt.Class)
	}
}

func goTypeFixedPoint(dt *message.Datatype) (reflect.Type, error) {
	signed := dt.Signed

	switch dt.Size {
	case 1:
		if signed {
			return reflect.TypeOf(int8(0)), nil
		}
		return reflect.TypeOf(uint8(0)), nil
	case 2:
		if signed {
			return reflect.TypeOf(int16(0)), nil
		}
		return reflect.TypeOf(uint16(0)), nil
	case 4:
		if signed {
			return reflect.TypeOf(int32(0)), nil
		}
		return reflect.TypeOf(uint32(0)), nil
	case 8:
		if signed {
			return reflect.TypeOf(int64(0)), nil
		}
		return reflect.TypeOf(uint64(0)), nil
	default:
		return nil, herrors.New(herrors.UnsupportedFormat, "unsupported fixed-point size").
			WithDetail("size", dt.Size)
	}
}

func goTypeFloatPoint(dt *message.Datatype) (reflect.Type, error) {
	switch dt.Size {
	case 4:
		return reflect.TypeOf(float32(0)), nil
	case 8:
		return reflect.TypeOf(float64(0)), nil
	default:
		return nil, herrors.New(herrors.UnsupportedFormat, "unsupported float size").
			WithDetail("size", dt.Size)
	}
}

// ByteOrder returns the binary.ByteOrder for the datatype.
func ByteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ElementSize returns the size of a single element in bytes.
func ElementSize(dt *message.Datatype) int {
	return int(dt.Size)
}

// IsNumeric returns true if the datatype is a numeric type.
func IsNumeric(dt *message.Datatype) bool {
	return dt.Class == message.ClassFixedPoint || dt.Class == message.ClassFloatPoint
}
