// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package richtext models inline message formatting independently of any
// chat network's markup. Text is held as an ordered sequence of segments,
// each carrying a uniform set of attributes. Network transports convert
// their own dialect to and from this form: interval-annotated dialects go
// through [Changes], delimiter-based dialects through [Dialect], and
// rendering back to markup goes through [Encoder].
package richtext

import "strings"

// Attr identifies a single formatting attribute.
type Attr int

const (
	Bold Attr = iota
	Italic
	Strike
	Code
	Pre
)

// String returns the attribute name as used in config and logs.
func (a Attr) String() string {
	switch a {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case Strike:
		return "strike"
	case Code:
		return "code"
	case Pre:
		return "pre"
	default:
		return "unknown"
	}
}

// Segment is the smallest unit of uniformly-formatted text.
type Segment struct {
	Text   string
	Bold   bool
	Italic bool
	Strike bool
	Code   bool
	Pre    bool
	// Link holds a URL target when the segment is a hyperlink, empty otherwise.
	Link string
}

// Has reports whether the given attribute is set on the segment.
func (s Segment) Has(attr Attr) bool {
	switch attr {
	case Bold:
		return s.Bold
	case Italic:
		return s.Italic
	case Strike:
		return s.Strike
	case Code:
		return s.Code
	case Pre:
		return s.Pre
	default:
		return false
	}
}

// Set applies or clears the given attribute on the segment.
func (s *Segment) Set(attr Attr, on bool) {
	switch attr {
	case Bold:
		s.Bold = on
	case Italic:
		s.Italic = on
	case Strike:
		s.Strike = on
	case Code:
		s.Code = on
	case Pre:
		s.Pre = on
	}
}

// SameFormat reports whether two segments carry an identical attribute set,
// ignoring their text.
func (s Segment) SameFormat(other Segment) bool {
	return s.Bold == other.Bold &&
		s.Italic == other.Italic &&
		s.Strike == other.Strike &&
		s.Code == other.Code &&
		s.Pre == other.Pre &&
		s.Link == other.Link
}

// RichText is an ordered sequence of segments.
type RichText []Segment

// Plain wraps a string in a single unformatted segment.
func Plain(text string) RichText {
	if text == "" {
		return nil
	}
	return RichText{{Text: text}}
}

// String returns the concatenated text of all segments with formatting dropped.
func (rt RichText) String() string {
	var sb strings.Builder
	for _, seg := range rt {
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Clone returns an independent copy of the sequence.
func (rt RichText) Clone() RichText {
	if rt == nil {
		return nil
	}
	out := make(RichText, len(rt))
	copy(out, rt)
	return out
}

// Normalize returns a copy of the sequence with empty segments dropped and
// adjacent segments holding an identical attribute set merged. Normalizing
// an already-normalized sequence returns an equal sequence.
func (rt RichText) Normalize() RichText {
	out := make(RichText, 0, len(rt))
	for _, seg := range rt {
		if seg.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].SameFormat(seg) {
			out[n-1].Text += seg.Text
			continue
		}
		out = append(out, seg)
	}
	return out
}
