// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package richtext

import "strings"

// Tag is one dialect markup construct toggled by an attribute. Open and
// Close may be identical for symmetric delimiters.
type Tag struct {
	Attr  Attr
	Open  string
	Close string
}

// Encoder renders a segment sequence back into dialect markup. The segment
// model carries no nesting order, so the encoder tracks currently-open tags
// and closes them last-opened-first, guaranteeing well-nested output.
type Encoder struct {
	Tags []Tag
	// Link renders a hyperlink construct from a target and (already escaped)
	// label. When nil, only the label is emitted.
	Link func(url, text string) string
	// Escape sanitizes segment text for the dialect. When nil, text is
	// emitted as-is.
	Escape func(string) string
}

// Encode renders the sequence as dialect markup. The input is normalized
// first, so callers may pass raw segment sequences.
func (e *Encoder) Encode(rt RichText) string {
	var sb strings.Builder
	var open []Tag
	for _, seg := range rt.Normalize() {
		// Close tags no longer active. Unwinding to the deepest stale tag
		// keeps the output well-nested; still-active tags closed along the
		// way are reopened immediately.
		for {
			stale := -1
			for i, tag := range open {
				if !seg.Has(tag.Attr) {
					stale = i
					break
				}
			}
			if stale < 0 {
				break
			}
			for i := len(open) - 1; i >= stale; i-- {
				sb.WriteString(open[i].Close)
			}
			kept := append([]Tag(nil), open[stale+1:]...)
			open = open[:stale]
			for _, tag := range kept {
				if seg.Has(tag.Attr) {
					sb.WriteString(tag.Open)
					open = append(open, tag)
				}
			}
		}
		// Open newly-active tags.
		for _, tag := range e.Tags {
			if seg.Has(tag.Attr) && !contains(open, tag.Attr) {
				sb.WriteString(tag.Open)
				open = append(open, tag)
			}
		}
		text := seg.Text
		if e.Escape != nil {
			text = e.Escape(text)
		}
		if seg.Link != "" && e.Link != nil {
			text = e.Link(seg.Link, text)
		}
		sb.WriteString(text)
	}
	for i := len(open) - 1; i >= 0; i-- {
		sb.WriteString(open[i].Close)
	}
	return sb.String()
}

func contains(tags []Tag, attr Attr) bool {
	for _, tag := range tags {
		if tag.Attr == attr {
			return true
		}
	}
	return false
}
