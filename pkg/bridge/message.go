// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"io"
	"time"

	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// User is a person or bot on one network.
type User struct {
	ID string
	// Transport names the network the user belongs to; empty for synthetic
	// users constructed by hooks.
	Transport string
	Username  string
	RealName  string
	Avatar    string
	// Raw holds the untouched network payload the user was decoded from.
	Raw any
}

// DisplayName returns the best human-readable name available.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.RealName
}

// FileType classifies a file attachment.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeImage
)

// Attachment is a non-text payload carried by a message.
type Attachment interface {
	attachment()
}

// File is a file attachment. Content is fetched lazily through the owning
// transport, as the source URL may require network credentials.
type File struct {
	Title string
	Type  FileType
	// Source is a URL for the file where one is public; transports may
	// leave it empty and provide only a fetcher.
	Source string
	// Fetch retrieves the file content. Nil when the content is not
	// retrievable.
	Fetch func(ctx context.Context) (io.ReadCloser, error)
}

func (*File) attachment() {}

// Open retrieves the file content via the transport that produced it.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.Fetch == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return f.Fetch(ctx)
}

// Message is a normalized chat event: a new message, an edit, a deletion,
// or a membership change.
type Message struct {
	// ID is the network's identifier for this message.
	ID string
	At time.Time
	// Original carries the edited or deleted message's ID when this message
	// represents an edit or deletion of an earlier one.
	Original string
	// Text is nil for messages without a body (e.g. deletions, bare
	// attachments).
	Text richtext.RichText
	User *User
	// Action marks emote-style messages ("/me waves") and synthesized
	// membership notices.
	Action      bool
	Deleted     bool
	ReplyTo     *Message
	Joined      []*User
	Left        []*User
	Attachments []Attachment
	// Raw holds the untouched network payload the message was decoded from.
	Raw any
}

// Clone returns a copy of the message; the embedded reply is copied too so
// the clone owns its state independently.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Text = m.Text.Clone()
	cp.ReplyTo = m.ReplyTo.Clone()
	cp.Joined = append([]*User(nil), m.Joined...)
	cp.Left = append([]*User(nil), m.Left...)
	cp.Attachments = append([]Attachment(nil), m.Attachments...)
	return &cp
}
