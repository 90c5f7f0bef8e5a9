// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package slack

import (
	"regexp"
	"strings"

	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// mrkdwn is Slack's inline formatting dialect.
var mrkdwn = richtext.Dialect{
	Tags: map[string]richtext.Attr{
		"*":   richtext.Bold,
		"_":   richtext.Italic,
		"~":   richtext.Strike,
		"`":   richtext.Code,
		"```": richtext.Pre,
	},
	Escape: '\\',
}

var mrkdwnEncoder = &richtext.Encoder{
	Tags: []richtext.Tag{
		{Attr: richtext.Bold, Open: "*", Close: "*"},
		{Attr: richtext.Italic, Open: "_", Close: "_"},
		{Attr: richtext.Strike, Open: "~", Close: "~"},
		{Attr: richtext.Pre, Open: "```", Close: "```"},
		{Attr: richtext.Code, Open: "`", Close: "`"},
	},
	Link: func(url, text string) string {
		return "<" + url + "|" + text + ">"
	},
	Escape: strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace,
}

// refPattern matches Slack's in-band reference syntax: user mentions
// <@U123|name>, channel references <#C123|name>, and links <url|label>.
var refPattern = regexp.MustCompile(`<([@#]?)([^|>]+)(?:\|([^>]+))?>`)

var mrkdwnUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">")

// decodeMrkdwn converts a mrkdwn string into rich text. Delimited runs
// become attributes, and reference constructs are expanded afterwards:
// mention and channel references to display text resolved through the
// transport's caches, bare links to link segments.
func (t *Transport) decodeMrkdwn(text string) richtext.RichText {
	parsed := mrkdwn.Parse(text, nil)
	var out richtext.RichText
	for _, seg := range parsed {
		out = append(out, t.expandRefs(seg)...)
	}
	return out.Normalize()
}

// expandRefs splits one segment around its reference constructs.
func (t *Transport) expandRefs(seg richtext.Segment) richtext.RichText {
	var out richtext.RichText
	text := seg.Text
	emit := func(part richtext.Segment) {
		if part.Text != "" {
			out = append(out, part)
		}
	}
	for {
		loc := refPattern.FindStringSubmatchIndex(text)
		if loc == nil {
			break
		}
		before := seg
		before.Text = mrkdwnUnescaper.Replace(text[:loc[0]])
		emit(before)

		kind := text[loc[2]:loc[3]]
		target := text[loc[4]:loc[5]]
		label := ""
		if loc[6] >= 0 {
			label = text[loc[6]:loc[7]]
		}
		part := seg
		switch kind {
		case "@":
			part.Text = "@" + t.usernameFor(target, label)
		case "#":
			part.Text = "#" + t.channelNameFor(target, label)
		default:
			if label == "" {
				label = target
			}
			part.Text = label
			part.Link = target
		}
		emit(part)
		text = text[loc[1]:]
	}
	rest := seg
	rest.Text = mrkdwnUnescaper.Replace(text)
	emit(rest)
	return out
}

// encodeMrkdwn renders rich text back into mrkdwn.
func encodeMrkdwn(rt richtext.RichText) string {
	return mrkdwnEncoder.Encode(rt)
}
