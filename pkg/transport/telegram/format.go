// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"html"

	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// htmlEncoder renders rich text as Telegram HTML for parse_mode=HTML.
var htmlEncoder = &richtext.Encoder{
	Tags: []richtext.Tag{
		{Attr: richtext.Bold, Open: "<b>", Close: "</b>"},
		{Attr: richtext.Italic, Open: "<i>", Close: "</i>"},
		{Attr: richtext.Strike, Open: "<s>", Close: "</s>"},
		{Attr: richtext.Code, Open: "<code>", Close: "</code>"},
		{Attr: richtext.Pre, Open: "<pre>", Close: "</pre>"},
	},
	Link: func(url, text string) string {
		return `<a href="` + html.EscapeString(url) + `">` + text + `</a>`
	},
	Escape: html.EscapeString,
}

// utf16ByteOffsets maps UTF-16 code unit indexes to byte offsets in text.
// Entity offsets from the bot API count UTF-16 units, so astral-plane runes
// occupy two indexes; both halves of a surrogate pair map to the rune start.
func utf16ByteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		offsets = append(offsets, i)
		if r > 0xFFFF {
			offsets = append(offsets, i)
		}
	}
	return append(offsets, len(text))
}

func offsetAt(offsets []int, i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(offsets) {
		return offsets[len(offsets)-1]
	}
	return offsets[i]
}

// decodeEntities converts bot API entity annotations over a plain string
// into rich text.
func decodeEntities(text string, entities []apiEntity) richtext.RichText {
	if text == "" {
		return nil
	}
	if len(entities) == 0 {
		return richtext.Plain(text)
	}
	offsets := utf16ByteOffsets(text)
	changes := make(richtext.Changes)
	for _, entity := range entities {
		start := offsetAt(offsets, entity.Offset)
		end := offsetAt(offsets, entity.Offset+entity.Length)
		switch entity.Type {
		case "bold":
			changes.Format(start, end, richtext.Bold)
		case "italic":
			changes.Format(start, end, richtext.Italic)
		case "strikethrough":
			changes.Format(start, end, richtext.Strike)
		case "code":
			changes.Format(start, end, richtext.Code)
		case "pre":
			changes.Format(start, end, richtext.Pre)
		case "url", "email":
			changes.LinkTo(start, end, text[start:end])
		case "text_link":
			changes.LinkTo(start, end, entity.URL)
		case "mention":
			// "@username" links to the public profile.
			if end-start > 1 {
				changes.LinkTo(start, end, "https://t.me/"+text[start+1:end])
			}
		}
	}
	return changes.Apply(text, nil)
}
