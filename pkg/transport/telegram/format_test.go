// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"reflect"
	"testing"

	"github.com/whychoosebob/IMMP/pkg/richtext"
)

func TestDecodeEntitiesPlain(t *testing.T) {
	t.Parallel()
	got := decodeEntities("hello", nil)
	want := richtext.RichText{{Text: "hello"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeEntitiesBold(t *testing.T) {
	t.Parallel()
	got := decodeEntities("hello world", []apiEntity{
		{Type: "bold", Offset: 0, Length: 5},
	})
	want := richtext.RichText{
		{Text: "hello", Bold: true},
		{Text: " world"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeEntitiesAstralOffsets(t *testing.T) {
	t.Parallel()
	// The emoji occupies two UTF-16 units but four bytes; offsets past it
	// must land on the right bytes.
	got := decodeEntities("\U0001F600 bold", []apiEntity{
		{Type: "bold", Offset: 3, Length: 4},
	})
	want := richtext.RichText{
		{Text: "\U0001F600 "},
		{Text: "bold", Bold: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeEntitiesLinks(t *testing.T) {
	t.Parallel()
	text := "see https://example.com and @alice"
	got := decodeEntities(text, []apiEntity{
		{Type: "url", Offset: 4, Length: 19},
		{Type: "mention", Offset: 28, Length: 6},
	})
	want := richtext.RichText{
		{Text: "see "},
		{Text: "https://example.com", Link: "https://example.com"},
		{Text: " and "},
		{Text: "@alice", Link: "https://t.me/alice"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeEntitiesTextLink(t *testing.T) {
	t.Parallel()
	got := decodeEntities("click here", []apiEntity{
		{Type: "text_link", Offset: 6, Length: 4, URL: "https://example.com"},
	})
	want := richtext.RichText{
		{Text: "click "},
		{Text: "here", Link: "https://example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeEntitiesOverlap(t *testing.T) {
	t.Parallel()
	got := decodeEntities("abcdef", []apiEntity{
		{Type: "bold", Offset: 0, Length: 4},
		{Type: "italic", Offset: 2, Length: 4},
	})
	want := richtext.RichText{
		{Text: "ab", Bold: true},
		{Text: "cd", Bold: true, Italic: true},
		{Text: "ef", Italic: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestEncodeHTML(t *testing.T) {
	t.Parallel()
	got := htmlEncoder.Encode(richtext.RichText{
		{Text: "a <b", Bold: true},
		{Text: " & c"},
	})
	want := "<b>a &lt;b</b> &amp; c"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncodeHTMLLink(t *testing.T) {
	t.Parallel()
	got := htmlEncoder.Encode(richtext.RichText{
		{Text: "docs", Link: "https://example.com/?a=1&b=2"},
	})
	want := `<a href="https://example.com/?a=1&amp;b=2">docs</a>`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncodeHTMLNesting(t *testing.T) {
	t.Parallel()
	got := htmlEncoder.Encode(richtext.RichText{
		{Text: "a", Bold: true},
		{Text: "b", Bold: true, Italic: true},
		{Text: "c", Italic: true},
	})
	want := "<b>a<i>b</i></b><i>c</i>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
