// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

package wire

import (
	"math/big"
	"strings"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

// maxSafeInteger is the largest integer a JSON number can carry without
// precision loss (2^53 - 1).
var maxSafeInteger = big.NewInt(1<<53 - 1)

// BigInt is an arbitrary-precision integer field. Values within the IEEE-754
// safe range marshal as plain JSON numbers; larger magnitudes marshal as
// decimal strings with a trailing "n" sentinel. Unmarshaling accepts
// numbers, "123" strings and "123n" sentinel strings.
type BigInt struct {
	big.Int
}

// NewBigInt wraps an int64.
func NewBigInt(v int64) *BigInt {
	b := new(BigInt)
	b.SetInt64(v)
	return b
}

// NewBigIntFromString parses a decimal string (with optional "n" suffix).
func NewBigIntFromString(s string) (*BigInt, error) {
	b := new(BigInt)
	if err := b.setDecimal(s); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BigInt) isSafe() bool {
	return b.CmpAbs(maxSafeInteger) <= 0
}

// MarshalJSON implements json.Marshaler.
func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b.isSafe() {
		return []byte(b.String()), nil
	}
	return []byte(`"` + b.String() + `n"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	return b.setJSON(data)
}

func (b *BigInt) setJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) == 0 || s == "null" {
		return errors.New(errors.CodeInvalidInput, "empty integer field")
	}
	if s[0] == '"' {
		if len(s) < 2 || s[len(s)-1] != '"' {
			return errors.New(errors.CodeInvalidInput, "unterminated string integer")
		}
		return b.setDecimal(s[1 : len(s)-1])
	}
	return b.setDecimal(s)
}

func (b *BigInt) setDecimal(s string) error {
	s = strings.TrimSuffix(s, "n")
	if _, ok := b.SetString(s, 10); !ok {
		return errors.Newf(errors.CodeInvalidInput, "not a decimal integer: %q", s)
	}
	return nil
}

// IntString is an integer field that travels as a decimal JSON string
// (e.g. identifiers such as jobId). Unmarshaling restores the big-integer
// value from numbers, "123" and "123n" forms alike.
type IntString struct {
	big.Int
}

// NewIntString wraps an int64.
func NewIntString(v int64) *IntString {
	i := new(IntString)
	i.SetInt64(v)
	return i
}

// NewIntStringFromString parses a decimal string (with optional "n" suffix).
func NewIntStringFromString(s string) (*IntString, error) {
	i := new(IntString)
	var b BigInt
	if err := b.setDecimal(s); err != nil {
		return nil, err
	}
	i.Set(&b.Int)
	return i, nil
}

// MarshalJSON implements json.Marshaler.
func (i *IntString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *IntString) UnmarshalJSON(data []byte) error {
	var b BigInt
	if err := b.setJSON(data); err != nil {
		return err
	}
	i.Set(&b.Int)
	return nil
}
