// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package snpdata

import "fmt"

// Symbol is one encoded call in a site row. Values below ' ' are the
// encoded states; any ASCII letter is an ambiguous literal that is
// carried through unmodified.
type Symbol byte

const (
	Major Symbol = iota
	Minor
	Unknown
	ImputedMajor
	ImputedMinor
)

// UnknownChar is the raw (and serialized) marker for a missing call.
const UnknownChar = '?'

// Literal returns the ambiguous-literal symbol for raw character c.
func Literal(c byte) Symbol {
	return Symbol(c)
}

func (s Symbol) IsLiteral() bool {
	return s >= 'A'
}

func (s Symbol) IsImputed() bool {
	return s == ImputedMajor || s == ImputedMinor
}

func (s Symbol) String() string {
	switch s {
	case Major:
		return "MAJ"
	case Minor:
		return "MIN"
	case Unknown:
		return "?"
	case ImputedMajor:
		return "IMAJ"
	case ImputedMinor:
		return "IMIN"
	}
	if s.IsLiteral() {
		return string(rune(s))
	}
	return fmt.Sprintf("Symbol(%d)", byte(s))
}

// Alleles holds the literal characters used to decode Major and Minor
// symbols at one site.
type Alleles struct {
	Major byte
	Minor byte
}

func (a Alleles) String() string {
	return string([]byte{a.Major, a.Minor})
}

// decode returns the output character for s.
func (a Alleles) decode(s Symbol) byte {
	switch s {
	case Major:
		return a.Major
	case Minor:
		return a.Minor
	case ImputedMajor:
		return toLower(a.Major)
	case ImputedMinor:
		return toLower(a.Minor)
	case Unknown:
		return UnknownChar
	default:
		return byte(s)
	}
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
