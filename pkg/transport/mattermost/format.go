// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"regexp"

	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// markdown is the inline subset of Mattermost's markdown.
var markdown = richtext.Dialect{
	Tags: map[string]richtext.Attr{
		"**":  richtext.Bold,
		"*":   richtext.Italic,
		"_":   richtext.Italic,
		"~~":  richtext.Strike,
		"`":   richtext.Code,
		"```": richtext.Pre,
	},
	Escape: '\\',
}

var markdownEncoder = &richtext.Encoder{
	Tags: []richtext.Tag{
		{Attr: richtext.Bold, Open: "**", Close: "**"},
		{Attr: richtext.Italic, Open: "_", Close: "_"},
		{Attr: richtext.Strike, Open: "~~", Close: "~~"},
		{Attr: richtext.Pre, Open: "```", Close: "```"},
		{Attr: richtext.Code, Open: "`", Close: "`"},
	},
	Link: func(url, text string) string {
		return "[" + text + "](" + url + ")"
	},
}

var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// decodeMarkdown converts message markdown into rich text: delimited runs
// become attributes, then [label](url) constructs become link segments.
func decodeMarkdown(text string) richtext.RichText {
	parsed := markdown.Parse(text, nil)
	var out richtext.RichText
	for _, seg := range parsed {
		out = append(out, expandLinks(seg)...)
	}
	return out.Normalize()
}

func expandLinks(seg richtext.Segment) richtext.RichText {
	var out richtext.RichText
	text := seg.Text
	for {
		loc := linkPattern.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		if loc[0] > 0 {
			before := seg
			before.Text = text[:loc[0]]
			out = append(out, before)
		}
		link := seg
		link.Text = text[loc[2]:loc[3]]
		link.Link = text[loc[4]:loc[5]]
		out = append(out, link)
		text = text[loc[1]:]
	}
	if text != "" {
		rest := seg
		rest.Text = text
		out = append(out, rest)
	}
	return out
}

// encodeMarkdown renders rich text back into markdown.
func encodeMarkdown(rt richtext.RichText) string {
	return markdownEncoder.Encode(rt)
}
