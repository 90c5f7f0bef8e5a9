// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost is a transport for Mattermost servers using the
// official client: REST for actions, a websocket for the event stream.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
)

// Config holds the transport settings.
type Config struct {
	// ServerURL is the base URL of the Mattermost server.
	ServerURL string `yaml:"server-url"`
	// Token is a personal access token or bot token.
	Token string `yaml:"token"`
}

// PostProcess validates the config.
func (c *Config) PostProcess() error {
	if c.ServerURL == "" {
		return bridge.ConfigErrorf("mattermost: server-url is required")
	}
	if c.Token == "" {
		return bridge.ConfigErrorf("mattermost: token is required")
	}
	return nil
}

// Transport implements bridge.Transport for one Mattermost server.
type Transport struct {
	bridge.Openable
	name string
	cfg  Config
	log  zerolog.Logger

	client *model.Client4
	userID string

	wsMu sync.Mutex
	ws   *model.WebSocketClient

	mu    sync.RWMutex
	users map[string]*bridge.User

	events chan bridge.Event
	stop   context.CancelFunc
	done   chan struct{}
}

var _ bridge.Transport = (*Transport)(nil)

// New builds a transport from a validated config.
func New(name string, cfg Config, log zerolog.Logger) (*Transport, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &Transport{
		name:  name,
		cfg:   cfg,
		log:   log.With().Str("component", "mattermost").Str("transport", name).Logger(),
		users: make(map[string]*bridge.User),
	}, nil
}

func (t *Transport) Name() string { return t.name }

// Connect verifies the token, opens the websocket and starts the event loop.
func (t *Transport) Connect(ctx context.Context) error {
	return t.Open(ctx, func(ctx context.Context) error {
		t.client = model.NewAPIv4Client(t.cfg.ServerURL)
		t.client.SetToken(t.cfg.Token)
		me, _, err := t.client.GetMe(ctx, "")
		if err != nil {
			return &bridge.TransportError{Transport: t.name, Err: fmt.Errorf("verifying session: %w", err)}
		}
		t.userID = me.Id
		t.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

		if err := t.connectWebSocket(); err != nil {
			return &bridge.TransportError{Transport: t.name, Err: err}
		}
		t.events = make(chan bridge.Event)
		t.done = make(chan struct{})
		loopCtx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		go t.listen(loopCtx)
		return nil
	})
}

func (t *Transport) connectWebSocket() error {
	ws, err := model.NewWebSocketClient4(httpToWS(t.cfg.ServerURL), t.client.AuthToken)
	if err != nil {
		return fmt.Errorf("creating websocket client: %w", err)
	}
	ws.Listen()
	t.wsMu.Lock()
	t.ws = ws
	t.wsMu.Unlock()
	t.log.Debug().Msg("WebSocket connected")
	return nil
}

func (t *Transport) closeWS() {
	t.wsMu.Lock()
	defer t.wsMu.Unlock()
	if t.ws != nil {
		t.ws.Close()
		t.ws = nil
	}
}

// wsEvents returns the current socket's event channel, or nil once the
// socket is closed. Receiving from the nil channel blocks, so callers must
// select against their context.
func (t *Transport) wsEvents() <-chan *model.WebSocketEvent {
	t.wsMu.Lock()
	defer t.wsMu.Unlock()
	if t.ws == nil {
		return nil
	}
	return t.ws.EventChannel
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// Disconnect closes the websocket and stops the event loop.
func (t *Transport) Disconnect(ctx context.Context) error {
	return t.Close(ctx, func(ctx context.Context) error {
		// A connect that failed before spawning the loop left nothing
		// to stop.
		if t.stop == nil {
			t.closeWS()
			return nil
		}
		t.stop()
		t.closeWS()
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		t.stop = nil
		return nil
	})
}

// Get implements bridge.Transport.
func (t *Transport) Get() <-chan bridge.Event { return t.events }

// IsPrivate reports whether the channel is a direct conversation.
func (t *Transport) IsPrivate(ctx context.Context, source string) (bool, error) {
	channel, _, err := t.client.GetChannel(ctx, source, "")
	if err != nil {
		return false, &bridge.TransportError{Transport: t.name, Err: err}
	}
	return channel.Type == model.ChannelTypeDirect, nil
}

// listen consumes websocket events until the context is cancelled,
// reconnecting when the server drops the connection.
func (t *Transport) listen(ctx context.Context) {
	defer close(t.done)
	defer close(t.events)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-t.wsEvents():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				t.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				t.closeWS()
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return
				}
				if err := t.connectWebSocket(); err != nil {
					t.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
					return
				}
				continue
			}
			if evt == nil {
				continue
			}
			t.handleEvent(ctx, evt)
		}
	}
}

func (t *Transport) handleEvent(ctx context.Context, evt *model.WebSocketEvent) {
	var msg *bridge.Message
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		post, err := t.parsePost(evt)
		if err != nil {
			t.log.Debug().Err(err).Msg("Undecodable posted event")
			return
		}
		if post == nil {
			return
		}
		msg = t.translatePost(ctx, post, true)
	case model.WebsocketEventPostEdited:
		post, err := t.parsePost(evt)
		if err != nil || post == nil {
			return
		}
		msg = t.translatePost(ctx, post, true)
		msg.Original = post.Id
		msg.At = time.UnixMilli(post.EditAt)
	case model.WebsocketEventPostDeleted:
		post, err := t.parsePost(evt)
		if err != nil || post == nil {
			return
		}
		msg = &bridge.Message{
			ID:       post.Id,
			Original: post.Id,
			Deleted:  true,
			Raw:      post,
		}
	default:
		t.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
		return
	}
	post := msg.Raw.(*model.Post)
	select {
	case t.events <- bridge.Event{
		Channel: &bridge.Channel{Transport: t, Source: post.ChannelId},
		Message: msg,
	}:
	case <-ctx.Done():
	}
}

// parsePost extracts the post payload from a websocket event. Own posts and
// system messages yield nil so they are skipped silently.
func (t *Transport) parsePost(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("event missing post data")
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("unmarshalling post: %w", err)
	}
	if post.UserId == t.userID {
		return nil, nil
	}
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}
	return &post, nil
}

func (t *Transport) translatePost(ctx context.Context, post *model.Post, withReply bool) *bridge.Message {
	msg := &bridge.Message{
		ID:   post.Id,
		At:   time.UnixMilli(post.CreateAt),
		User: t.userFor(ctx, post.UserId),
		Raw:  post,
	}
	if post.Message != "" {
		msg.Text = decodeMarkdown(post.Message)
	}
	for _, fileID := range post.FileIds {
		if file := t.translateFile(ctx, fileID); file != nil {
			msg.Attachments = append(msg.Attachments, file)
		}
	}
	if withReply && post.RootId != "" && post.RootId != post.Id {
		if root, _, err := t.client.GetPost(ctx, post.RootId, ""); err == nil {
			msg.ReplyTo = t.translatePost(ctx, root, false)
		} else {
			t.log.Debug().Err(err).Str("root_id", post.RootId).Msg("Failed to fetch thread root")
		}
	}
	return msg
}

// userFor resolves a user ID through the lazy cache.
func (t *Transport) userFor(ctx context.Context, id string) *bridge.User {
	if id == "" {
		return nil
	}
	t.mu.RLock()
	user, ok := t.users[id]
	t.mu.RUnlock()
	if ok {
		return user
	}
	remote, _, err := t.client.GetUser(ctx, id, "")
	if err != nil {
		t.log.Debug().Err(err).Str("user_id", id).Msg("Failed to fetch user")
		return &bridge.User{ID: id, Transport: t.name}
	}
	user = &bridge.User{
		ID:        remote.Id,
		Transport: t.name,
		Username:  remote.Username,
		RealName:  strings.TrimSpace(remote.FirstName + " " + remote.LastName),
		Raw:       remote,
	}
	t.mu.Lock()
	t.users[id] = user
	t.mu.Unlock()
	return user
}

func (t *Transport) translateFile(ctx context.Context, fileID string) *bridge.File {
	info, _, err := t.client.GetFileInfo(ctx, fileID)
	if err != nil {
		t.log.Error().Err(err).Str("file_id", fileID).Msg("Failed to get file info")
		return nil
	}
	fileType := bridge.FileTypeUnknown
	if strings.HasPrefix(info.MimeType, "image/") {
		fileType = bridge.FileTypeImage
	}
	return &bridge.File{
		Title: info.Name,
		Type:  fileType,
		Fetch: func(ctx context.Context) (io.ReadCloser, error) {
			data, _, err := t.client.GetFile(ctx, fileID)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Put sends, edits or deletes a post in a channel.
func (t *Transport) Put(ctx context.Context, ch *bridge.Channel, msg *bridge.Message) ([]string, error) {
	if msg.Deleted {
		if msg.Original == "" {
			return nil, nil
		}
		if _, err := t.client.DeletePost(ctx, msg.Original); err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: fmt.Errorf("deleting post: %w", err)}
		}
		return nil, nil
	}

	text := msg.Text.Clone()
	if msg.Action {
		for i := range text {
			text[i].Italic = true
		}
	}
	body := encodeMarkdown(text)

	if msg.Original != "" {
		patch := &model.PostPatch{Message: &body}
		if _, _, err := t.client.PatchPost(ctx, msg.Original, patch); err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: fmt.Errorf("editing post: %w", err)}
		}
		return []string{msg.Original}, nil
	}

	post := &model.Post{
		ChannelId: ch.Source,
		Message:   body,
	}
	if msg.ReplyTo != nil && msg.ReplyTo.ID != "" {
		post.RootId = msg.ReplyTo.ID
	}
	for _, attach := range msg.Attachments {
		file, ok := attach.(*bridge.File)
		if !ok {
			continue
		}
		fileID, err := t.uploadFile(ctx, ch.Source, file)
		if err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: err}
		}
		post.FileIds = append(post.FileIds, fileID)
	}
	if post.Message == "" && len(post.FileIds) == 0 {
		return nil, nil
	}
	created, _, err := t.client.CreatePost(ctx, post)
	if err != nil {
		return nil, &bridge.TransportError{Transport: t.name, Err: fmt.Errorf("creating post: %w", err)}
	}
	return []string{created.Id}, nil
}

func (t *Transport) uploadFile(ctx context.Context, channelID string, file *bridge.File) (string, error) {
	content, err := file.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("opening attachment: %w", err)
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading attachment: %w", err)
	}
	name := file.Title
	if name == "" {
		name = "file"
	}
	resp, _, err := t.client.UploadFile(ctx, data, channelID, name)
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}
	if len(resp.FileInfos) == 0 {
		return "", fmt.Errorf("upload returned no file info")
	}
	return resp.FileInfos[0].Id, nil
}
