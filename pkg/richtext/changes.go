// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package richtext

import "sort"

// change is a single formatting transition at a text offset: either an
// attribute toggled on or off, or a link opened or closed.
type change struct {
	isLink bool
	link   string
	attr   Attr
	on     bool
}

// Changes is a change-map built by a dialect-specific decoder: byte offsets
// into a plain string mapped to the formatting transitions occurring there.
// Offsets are bytes, so decoders working in other units (UTF-16 code units,
// runes) must convert before recording.
type Changes map[int][]change

// Format records an attribute applied over the half-open range [start, end).
func (c Changes) Format(start, end int, attr Attr) {
	if end <= start {
		return
	}
	c[start] = append(c[start], change{attr: attr, on: true})
	c[end] = append(c[end], change{attr: attr, on: false})
}

// LinkTo records a hyperlink with the given target over [start, end).
func (c Changes) LinkTo(start, end int, url string) {
	if end <= start {
		return
	}
	c[start] = append(c[start], change{isLink: true, link: url, on: true})
	c[end] = append(c[end], change{isLink: true, on: false})
}

// SubstituteFunc rewrites one span of source text before it becomes a
// segment, typically replacing platform reference syntax (user or channel
// mentions, bare URL constructs) with plain display text.
type SubstituteFunc func(string) string

// Apply segments text at every recorded offset and returns the resulting
// sequence. Each span between consecutive breakpoints becomes one segment
// carrying the attribute state active at its start; zero-length spans are
// skipped. Where a turn-off and a turn-on of the same attribute coincide at
// one offset, the turn-off is processed first so no segment is emitted with
// a self-contradictory state.
func (c Changes) Apply(text string, sub SubstituteFunc) RichText {
	points := make([]int, 0, len(c)+2)
	seen := make(map[int]struct{}, len(c)+2)
	add := func(p int) {
		if p < 0 {
			p = 0
		}
		if p > len(text) {
			p = len(text)
		}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			points = append(points, p)
		}
	}
	add(0)
	for p := range c {
		add(p)
	}
	add(len(text))
	sort.Ints(points)

	var state Segment
	segments := make(RichText, 0, len(points))
	for i, start := range points {
		// Turn-offs first, then turn-ons.
		for _, ch := range c[start] {
			if ch.on {
				continue
			}
			if ch.isLink {
				state.Link = ""
			} else {
				state.Set(ch.attr, false)
			}
		}
		for _, ch := range c[start] {
			if !ch.on {
				continue
			}
			if ch.isLink {
				state.Link = ch.link
			} else {
				state.Set(ch.attr, true)
			}
		}
		if i == len(points)-1 {
			break
		}
		end := points[i+1]
		if start == end {
			continue
		}
		seg := state
		seg.Text = text[start:end]
		if sub != nil {
			seg.Text = sub(seg.Text)
		}
		if seg.Text == "" {
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}
