// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telegram is a transport for Telegram bots using the HTTP bot API.
// Inbound updates arrive over a long-poll loop; outbound messages are sent
// as HTML.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
	"github.com/whychoosebob/IMMP/pkg/richtext"
)

// Config holds the transport settings.
type Config struct {
	// Token is the bot token issued by @BotFather.
	Token string `yaml:"token"`
	// APIBase overrides the bot API endpoint; used by tests.
	APIBase string `yaml:"api-base"`
	// ProfileBase overrides the public profile page host used for avatar
	// lookups; used by tests.
	ProfileBase string `yaml:"profile-base"`
	// PollTimeout is the long-poll wait in seconds.
	PollTimeout int `yaml:"poll-timeout"`
}

// PostProcess validates the config and fills defaults.
func (c *Config) PostProcess() error {
	if c.Token == "" {
		return bridge.ConfigErrorf("telegram: token is required")
	}
	if c.APIBase == "" {
		c.APIBase = "https://api.telegram.org"
	}
	if c.ProfileBase == "" {
		c.ProfileBase = "https://t.me"
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 240
	}
	return nil
}

// Transport implements bridge.Transport for one Telegram bot.
type Transport struct {
	bridge.Openable
	name string
	cfg  Config
	log  zerolog.Logger

	http    *http.Client
	avatars *avatarCache

	events chan bridge.Event
	stop   context.CancelFunc
	done   chan struct{}
	// offset is the next update ID to request; owned by the poll goroutine.
	offset int64
}

var _ bridge.Transport = (*Transport)(nil)

// New builds a transport from a validated config.
func New(name string, cfg Config, log zerolog.Logger) (*Transport, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	client := &http.Client{}
	return &Transport{
		name:    name,
		cfg:     cfg,
		log:     log.With().Str("component", "telegram").Str("transport", name).Logger(),
		http:    client,
		avatars: newAvatarCache(client, cfg.ProfileBase),
	}, nil
}

func (t *Transport) Name() string { return t.name }

// Connect verifies the token and starts the update loop.
func (t *Transport) Connect(ctx context.Context) error {
	return t.Open(ctx, func(ctx context.Context) error {
		var me apiUser
		if err := t.api(ctx, "getMe", nil, &me); err != nil {
			return &bridge.TransportError{Transport: t.name, Err: err}
		}
		t.log.Info().Str("username", me.Username).Msg("Authenticated")
		t.events = make(chan bridge.Event)
		t.done = make(chan struct{})
		pollCtx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		go t.poll(pollCtx)
		return nil
	})
}

// Disconnect stops the update loop and closes the event stream.
func (t *Transport) Disconnect(ctx context.Context) error {
	return t.Close(ctx, func(ctx context.Context) error {
		// A connect that failed before spawning the loop left nothing
		// to stop.
		if t.stop == nil {
			return nil
		}
		t.stop()
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		t.stop = nil
		t.offset = 0
		return nil
	})
}

// Get implements bridge.Transport.
func (t *Transport) Get() <-chan bridge.Event { return t.events }

// IsPrivate reports whether the chat is a direct conversation with one
// user. Telegram gives private chats positive IDs and groups or channels
// negative ones.
func (t *Transport) IsPrivate(_ context.Context, source string) (bool, error) {
	id, err := strconv.ParseInt(source, 10, 64)
	if err != nil {
		return false, fmt.Errorf("bad chat ID %q: %w", source, err)
	}
	return id > 0, nil
}

// poll runs the getUpdates long-poll loop until the context is cancelled.
func (t *Transport) poll(ctx context.Context) {
	defer close(t.done)
	defer close(t.events)
	for {
		updates, err := t.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Error().Err(err).Msg("Long poll failed, backing off")
			select {
			case <-time.After(10 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		for _, update := range updates {
			if ev := t.translateUpdate(ctx, &update); ev != nil {
				select {
				case t.events <- *ev:
				case <-ctx.Done():
					return
				}
			}
			if next := update.UpdateID + 1; next > t.offset {
				t.offset = next
			}
		}
	}
}

// getUpdates makes one long-poll request, retrying transient failures.
func (t *Transport) getUpdates(ctx context.Context) ([]apiUpdate, error) {
	params := url.Values{
		"offset":  {strconv.FormatInt(t.offset, 10)},
		"timeout": {strconv.Itoa(t.cfg.PollTimeout)},
	}
	var updates []apiUpdate
	var err error
	for retry := 0; retry < 3; retry++ {
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(t.cfg.PollTimeout+30)*time.Second)
		err = t.api(reqCtx, "getUpdates", params, &updates)
		cancel()
		if err == nil {
			return updates, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		t.log.Debug().Err(err).Msg("Unexpected response or timeout")
		select {
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// translateUpdate converts one API update into an event, or nil for update
// types we don't consume.
func (t *Transport) translateUpdate(ctx context.Context, update *apiUpdate) *bridge.Event {
	var raw *apiMessage
	edited := false
	switch {
	case update.Message != nil:
		raw = update.Message
	case update.ChannelPost != nil:
		raw = update.ChannelPost
	case update.EditedMessage != nil:
		raw = update.EditedMessage
		edited = true
	case update.EditedChannelPost != nil:
		raw = update.EditedChannelPost
		edited = true
	default:
		return nil
	}
	msg := t.translateMessage(ctx, raw)
	if edited {
		// Telegram edits messages in place; no new ID is issued.
		msg.Original = msg.ID
	}
	source := strconv.FormatInt(raw.Chat.ID, 10)
	return &bridge.Event{
		Channel: &bridge.Channel{Transport: t, Source: source},
		Message: msg,
	}
}

func (t *Transport) translateMessage(ctx context.Context, raw *apiMessage) *bridge.Message {
	msg := &bridge.Message{
		ID:  strconv.FormatInt(raw.MessageID, 10),
		At:  time.Unix(raw.Date, 0),
		Raw: raw,
	}
	if raw.From != nil {
		msg.User = t.translateUser(ctx, raw.From)
	}
	for _, member := range raw.NewChatMembers {
		msg.Joined = append(msg.Joined, t.translateUser(ctx, &member))
	}
	if raw.LeftChatMember != nil {
		msg.Left = []*bridge.User{t.translateUser(ctx, raw.LeftChatMember)}
	}
	switch {
	case raw.Text != "":
		msg.Text = decodeEntities(raw.Text, raw.Entities)
	case raw.NewChatTitle != "":
		msg.Action = true
		msg.Text = richtext.RichText{
			{Text: "changed group name to "},
			{Text: raw.NewChatTitle, Bold: true},
		}
	case len(msg.Joined) > 0:
		msg.Action = true
		msg.Text = joinedText(msg.User, msg.Joined)
	case len(msg.Left) > 0:
		msg.Action = true
		msg.Text = leftText(msg.User, msg.Left[0])
	}
	if raw.ReplyToMessage != nil {
		msg.ReplyTo = t.translateMessage(ctx, raw.ReplyToMessage)
	}
	if len(raw.Photo) > 0 {
		msg.Attachments = append(msg.Attachments, t.translatePhoto(raw.Photo))
	}
	return msg
}

func (t *Transport) translateUser(ctx context.Context, raw *apiUser) *bridge.User {
	realName := raw.FirstName
	if raw.LastName != "" {
		realName += " " + raw.LastName
	}
	return &bridge.User{
		ID:        strconv.FormatInt(raw.ID, 10),
		Transport: t.name,
		Username:  raw.Username,
		RealName:  realName,
		Avatar:    t.avatars.lookup(ctx, raw.Username),
		Raw:       raw,
	}
}

// translatePhoto picks the original-size rendition and defers the file URL
// resolution until the content is actually wanted.
func (t *Transport) translatePhoto(sizes []apiPhotoSize) *bridge.File {
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Height > best.Height {
			best = size
		}
	}
	return &bridge.File{
		Type: bridge.FileTypeImage,
		Fetch: func(ctx context.Context) (io.ReadCloser, error) {
			fileURL, err := t.fileURL(ctx, best.FileID)
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err := t.http.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("fetching file: HTTP %d", resp.StatusCode)
			}
			return resp.Body, nil
		},
	}
}

func userLink(user *bridge.User) (string, bool) {
	if user == nil || user.Username == "" {
		return "", false
	}
	return "https://t.me/" + user.Username, true
}

func joinedText(actor *bridge.User, joined []*bridge.User) richtext.RichText {
	if len(joined) == 1 && actor != nil && joined[0].ID == actor.ID {
		return richtext.Plain("joined group via invite link")
	}
	text := richtext.RichText{{Text: "invited "}}
	for i, user := range joined {
		if i > 0 {
			text = append(text, richtext.Segment{Text: ", "})
		}
		seg := richtext.Segment{Text: user.RealName}
		if link, ok := userLink(user); ok {
			seg.Link = link
		} else {
			seg.Bold = true
		}
		text = append(text, seg)
	}
	return text
}

func leftText(actor *bridge.User, left *bridge.User) richtext.RichText {
	if actor != nil && left.ID == actor.ID {
		return richtext.Plain("left group")
	}
	seg := richtext.Segment{Text: left.RealName}
	if link, ok := userLink(left); ok {
		seg.Link = link
	} else {
		seg.Bold = true
	}
	return richtext.RichText{{Text: "removed "}, seg}
}

// Put sends a message to a chat. Image attachments go out as separate
// sendPhoto calls before the text body; the IDs of all sent parts are
// returned in order.
func (t *Transport) Put(ctx context.Context, ch *bridge.Channel, msg *bridge.Message) ([]string, error) {
	if msg.Deleted {
		if msg.Original == "" {
			return nil, nil
		}
		params := url.Values{
			"chat_id":    {ch.Source},
			"message_id": {msg.Original},
		}
		if err := t.api(ctx, "deleteMessage", params, nil); err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: err}
		}
		return nil, nil
	}
	var sent []string
	for _, attach := range msg.Attachments {
		file, ok := attach.(*bridge.File)
		if !ok || file.Type != bridge.FileTypeImage {
			continue
		}
		id, err := t.sendPhoto(ctx, ch.Source, msg, file)
		if err != nil {
			return sent, &bridge.TransportError{Transport: t.name, Err: err}
		}
		sent = append(sent, id)
	}
	if len(msg.Text) > 0 {
		params := url.Values{
			"chat_id":    {ch.Source},
			"text":       {htmlEncoder.Encode(msg.Text)},
			"parse_mode": {"HTML"},
		}
		if msg.ReplyTo != nil && msg.ReplyTo.ID != "" {
			params.Set("reply_to_message_id", msg.ReplyTo.ID)
		}
		var result apiMessage
		if err := t.api(ctx, "sendMessage", params, &result); err != nil {
			return sent, &bridge.TransportError{Transport: t.name, Err: err}
		}
		sent = append(sent, strconv.FormatInt(result.MessageID, 10))
	}
	return sent, nil
}

// sendPhoto uploads one image, by URL when the file has a public source and
// as a multipart body otherwise.
func (t *Transport) sendPhoto(ctx context.Context, chatID string, msg *bridge.Message, file *bridge.File) (string, error) {
	caption := ""
	if msg.User != nil {
		caption = msg.User.DisplayName() + " sent an image"
	}
	var result apiMessage
	if file.Source != "" {
		params := url.Values{
			"chat_id": {chatID},
			"photo":   {file.Source},
		}
		if caption != "" {
			params.Set("caption", caption)
		}
		if err := t.api(ctx, "sendPhoto", params, &result); err != nil {
			return "", err
		}
		return strconv.FormatInt(result.MessageID, 10), nil
	}
	content, err := file.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("opening attachment: %w", err)
	}
	defer content.Close()
	name := file.Title
	if name == "" {
		name = "photo"
	}
	fields := map[string]string{"chat_id": chatID}
	if caption != "" {
		fields["caption"] = caption
	}
	if err := t.upload(ctx, "sendPhoto", fields, "photo", name, content, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.MessageID, 10), nil
}

// upload posts a multipart method call with one file part.
func (t *Transport) upload(ctx context.Context, method string, fields map[string]string, fileField, filename string, content io.Reader, out any) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile(fileField, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIBase, t.cfg.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	var envelope apiResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("%s: unexpected response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}
