// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package message is the neutral, protocol-agnostic representation that
// transforms operate on. It never inspects raw wire bytes; codecs populate it
// and it is the core's only view of a request or response.
package message

import (
	"fmt"
	"math"
	"net"
	"time"
)

// Kind tags the active field of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindAscii
	KindBigint
	KindBlob
	KindBoolean
	KindCounter
	KindDecimal
	KindDouble
	KindFloat
	KindInt
	KindTimestamp
	KindUUID
	KindVarchar
	KindVarint
	KindTimeUUID
	KindInet
	KindDate
	KindTime
	KindSmallint
	KindTinyint
	KindList
	KindSet
	KindMap
	KindTuple
	KindUDT
)

// UDTField is one named field of a user-defined type, kept ordered because
// Cassandra UDTs are positional on the wire even though they are named.
type UDTField struct {
	Name  string
	Value Value
}

// MapEntry is one (key, value) pair of a Map value. Kept as an ordered slice
// rather than a Go map because Cassandra collections are ordered sequences on
// the wire even when the CQL type is semantically unordered.
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is a tagged sum covering every native Cassandra type plus the
// collection and UDT types. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int64
	Float32 float32
	Float64 float64
	Bytes   []byte
	Text    string
	Time    time.Time
	UUID    [16]byte
	IP      net.IP

	List  []Value
	Tuple []Value
	Map   []MapEntry
	UDT   []UDTField
}

// Null is the zero-arity value for a NULL cell.
var Null = Value{Kind: KindNull}

// Equal reports structural equality: collections compare element-wise in
// order, sets forbid duplicates (not enforced here — constructors are
// responsible), and floats compare via their IEEE-754 bit pattern so NaN
// and -0/+0 are deterministic in tests.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.Bool == other.Bool
	case KindBigint, KindCounter, KindInt, KindSmallint, KindTinyint, KindVarint, KindTimestamp:
		return v.Int == other.Int
	case KindFloat:
		return math.Float32bits(v.Float32) == math.Float32bits(other.Float32)
	case KindDouble, KindDecimal:
		return math.Float64bits(v.Float64) == math.Float64bits(other.Float64)
	case KindBlob:
		return bytesEqual(v.Bytes, other.Bytes)
	case KindAscii, KindVarchar, KindDate, KindTime:
		return v.Text == other.Text
	case KindUUID, KindTimeUUID:
		return v.UUID == other.UUID
	case KindInet:
		return v.IP.Equal(other.IP)
	case KindList, KindSet, KindTuple:
		a, b := v.valuesOf(), other.valuesOf()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for i := range v.Map {
			if !v.Map[i].Key.Equal(other.Map[i].Key) || !v.Map[i].Value.Equal(other.Map[i].Value) {
				return false
			}
		}
		return true
	case KindUDT:
		if len(v.UDT) != len(other.UDT) {
			return false
		}
		for i := range v.UDT {
			if v.UDT[i].Name != other.UDT[i].Name || !v.UDT[i].Value.Equal(other.UDT[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) valuesOf() []Value {
	if v.Kind == KindTuple {
		return v.Tuple
	}
	return v.List
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// valueFields has Value's fields but not its methods, so formatting it with
// %+v prints the struct instead of calling String again.
type valueFields Value

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindVarchar, KindAscii:
		return v.Text
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return fmt.Sprintf("%+v", valueFields(v))
	}
}
