// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package richtext

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dialect describes the inline formatting delimiters of a chat network that
// marks up formatting in-band rather than with offset annotations, e.g.
// Slack's mrkdwn or Mattermost's markdown subset.
//
// A delimiter pair is only treated as formatting when it reads like
// formatting in ordinary prose: an opening delimiter must not be preceded
// by an alphanumeric or another delimiter character, and must not be
// followed by whitespace or its own character; the closing delimiter is
// checked symmetrically. A delimiter preceded by the escape character is
// literal text.
type Dialect struct {
	// Tags maps a delimiter string to the attribute it toggles. Longer
	// delimiters win over shorter prefixes ("```" before "`").
	Tags map[string]Attr
	// Escape is the escape character, usually a backslash. Zero disables
	// escape handling.
	Escape byte
}

// Parse scans the text for delimited formatting runs, strips the delimiters
// and escape characters, and segments the remainder. The optional sub
// callback is applied to each emitted span, as with [Changes.Apply].
func (d Dialect) Parse(text string, sub SubstituteFunc) RichText {
	changes := make(Changes)
	tags := d.sortedTags()
	for {
		start, end, tag, ok := d.find(text, tags)
		if !ok {
			break
		}
		inner := text[start+len(tag) : end-len(tag)]
		text = text[:start] + inner + text[end:]
		changes.Format(start, end-2*len(tag), d.Tags[tag])
	}
	unescape := func(span string) string {
		span = d.unescape(span)
		if sub != nil {
			span = sub(span)
		}
		return span
	}
	return changes.Apply(text, unescape)
}

// sortedTags returns the delimiters longest-first so that e.g. a code fence
// is never misread as three inline code delimiters.
func (d Dialect) sortedTags() []string {
	tags := make([]string, 0, len(d.Tags))
	for tag := range d.Tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if len(tags[i]) != len(tags[j]) {
			return len(tags[i]) > len(tags[j])
		}
		return tags[i] < tags[j]
	})
	return tags
}

// find locates the leftmost valid delimited run, returning the offsets of
// the opening delimiter and one past the closing delimiter.
func (d Dialect) find(text string, tags []string) (start, end int, tag string, ok bool) {
	for i := 0; i < len(text); i++ {
		for _, t := range tags {
			if !strings.HasPrefix(text[i:], t) {
				continue
			}
			if !d.validOpen(text, i, t) {
				continue
			}
			if j := d.findClose(text, i+len(t), t); j >= 0 {
				return i, j + len(t), t, true
			}
		}
	}
	return 0, 0, "", false
}

// findClose scans for a valid closing delimiter at or after from, returning
// its offset, or -1 if the run never closes.
func (d Dialect) findClose(text string, from int, tag string) int {
	for j := from + 1; j+len(tag) <= len(text); j++ {
		if !strings.HasPrefix(text[j:], tag) {
			continue
		}
		if d.validClose(text, j, tag) {
			return j
		}
	}
	return -1
}

func (d Dialect) validOpen(text string, i int, tag string) bool {
	if i > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if d.outside(prev) {
			return false
		}
		if d.Escape != 0 && text[i-1] == d.Escape {
			return false
		}
	}
	after := i + len(tag)
	if after >= len(text) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[after:])
	return !unicode.IsSpace(next) && next != rune(tag[0])
}

func (d Dialect) validClose(text string, j int, tag string) bool {
	prev, _ := utf8.DecodeLastRuneInString(text[:j])
	if unicode.IsSpace(prev) || prev == rune(tag[0]) {
		return false
	}
	if d.Escape != 0 && j > 0 && text[j-1] == d.Escape {
		return false
	}
	after := j + len(tag)
	if after < len(text) {
		next, _ := utf8.DecodeRuneInString(text[after:])
		if d.outside(next) {
			return false
		}
	}
	return true
}

// outside reports whether a rune may not sit directly against the outside
// of a delimiter: alphanumerics and other delimiter characters.
func (d Dialect) outside(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	for tag := range d.Tags {
		if strings.ContainsRune(tag, r) {
			return true
		}
	}
	return false
}

// unescape drops the escape character from escape+delimiter pairs, leaving
// the delimiter as literal text.
func (d Dialect) unescape(span string) string {
	if d.Escape == 0 || !strings.Contains(span, string(d.Escape)) {
		return span
	}
	var sb strings.Builder
	sb.Grow(len(span))
	for i := 0; i < len(span); i++ {
		if span[i] == d.Escape && i+1 < len(span) && d.escapable(span[i+1]) {
			continue
		}
		sb.WriteByte(span[i])
	}
	return sb.String()
}

func (d Dialect) escapable(b byte) bool {
	if b == d.Escape {
		return true
	}
	for tag := range d.Tags {
		if strings.IndexByte(tag, b) >= 0 {
			return true
		}
	}
	return false
}
