// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package richtext

import (
	"reflect"
	"strings"
	"testing"
)

func TestChangesAdjacentIntervals(t *testing.T) {
	t.Parallel()
	// Two touching intervals over a 10-character string must produce exactly
	// two segments with no zero-length segment at the shared offset.
	text := "aaaaabbbbb"
	changes := make(Changes)
	changes.Format(0, 5, Bold)
	changes.Format(5, 10, Italic)
	got := changes.Apply(text, nil)
	want := RichText{
		{Text: "aaaaa", Bold: true},
		{Text: "bbbbb", Italic: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesCoincidentSameAttribute(t *testing.T) {
	t.Parallel()
	// Bold turns off at 5 and on again at 5: the turn-off must be processed
	// first, so the second span is still bold and no contradictory segment
	// appears.
	text := "aaaaabbbbb"
	changes := make(Changes)
	changes.Format(0, 5, Bold)
	changes.Format(5, 10, Bold)
	got := changes.Apply(text, nil).Normalize()
	want := RichText{{Text: "aaaaabbbbb", Bold: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesUnformattedGaps(t *testing.T) {
	t.Parallel()
	text := "one two three"
	changes := make(Changes)
	changes.Format(4, 7, Bold)
	got := changes.Apply(text, nil)
	want := RichText{
		{Text: "one "},
		{Text: "two", Bold: true},
		{Text: " three"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesLink(t *testing.T) {
	t.Parallel()
	text := "see here now"
	changes := make(Changes)
	changes.LinkTo(4, 8, "https://example.com")
	got := changes.Apply(text, nil)
	want := RichText{
		{Text: "see "},
		{Text: "here", Link: "https://example.com"},
		{Text: " now"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesSubstitution(t *testing.T) {
	t.Parallel()
	text := "hi <@U123>"
	changes := make(Changes)
	changes.Format(0, 2, Bold)
	got := changes.Apply(text, func(span string) string {
		return strings.ReplaceAll(span, "<@U123>", "@alice")
	})
	want := RichText{
		{Text: "hi", Bold: true},
		{Text: " @alice"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesOutOfRangeOffsetsClamped(t *testing.T) {
	t.Parallel()
	text := "short"
	changes := make(Changes)
	changes.Format(0, 50, Bold)
	got := changes.Apply(text, nil)
	want := RichText{{Text: "short", Bold: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply: got %+v, want %+v", got, want)
	}
}

func TestChangesEmptyText(t *testing.T) {
	t.Parallel()
	changes := make(Changes)
	if got := changes.Apply("", nil); len(got) != 0 {
		t.Errorf("Apply on empty text: got %+v", got)
	}
}
