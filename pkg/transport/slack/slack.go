// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slack is a transport for Slack workspaces over the RTM API.
// The rtm.start bootstrap primes user, channel and bot caches; events
// then stream in over a websocket.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/whychoosebob/IMMP/pkg/bridge"
)

// Config holds the transport settings.
type Config struct {
	// Token is a bot token, usually starting with xoxb-.
	Token string `yaml:"token"`
	// FallbackName is shown for outbound messages without an attached user.
	FallbackName string `yaml:"fallback-name"`
	// FallbackImage is the avatar for outbound messages without a user image.
	FallbackImage string `yaml:"fallback-image"`
	// APIBase overrides the web API endpoint; used by tests.
	APIBase string `yaml:"api-base"`
}

// PostProcess validates the config and fills defaults.
func (c *Config) PostProcess() error {
	if c.Token == "" {
		return bridge.ConfigErrorf("slack: token is required")
	}
	if c.FallbackName == "" {
		c.FallbackName = "Bridge"
	}
	if c.APIBase == "" {
		c.APIBase = "https://slack.com/api"
	}
	return nil
}

// Transport implements bridge.Transport for one Slack workspace.
type Transport struct {
	bridge.Openable
	name string
	cfg  Config
	log  zerolog.Logger
	http *http.Client

	// Caches primed by rtm.start and kept current from RTM events.
	mu       sync.RWMutex
	users    map[string]*bridge.User
	botUsers map[string]string
	channels map[string]string
	directs  map[string]struct{}

	connMu sync.Mutex
	conn   *websocket.Conn

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
		name: name,
		cfg:  cfg,
		log:  log.With().Str("component", "slack").Str("transport", name).Logger(),
		http: &http.Client{Timeout: time.Minute},
	}, nil
}

func (t *Transport) Name() string { return t.name }

// Connect bootstraps an RTM session and starts the event loop.
func (t *Transport) Connect(ctx context.Context) error {
	return t.Open(ctx, func(ctx context.Context) error {
		if err := t.rtm(ctx); err != nil {
			return &bridge.TransportError{Transport: t.name, Err: err}
		}
		t.events = make(chan bridge.Event)
		t.done = make(chan struct{})
		loopCtx, cancel := context.WithCancel(context.Background())
		t.stop = cancel
		go t.loop(loopCtx)
		return nil
	})
}

// Disconnect closes the websocket and stops the event loop.
func (t *Transport) Disconnect(ctx context.Context) error {
	return t.Close(ctx, func(ctx context.Context) error {
		// A connect that failed before spawning the loop left nothing
		// to stop.
		if t.stop == nil {
			t.closeConn()
			return nil
		}
		t.stop()
		t.closeConn()
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

// IsPrivate reports whether the channel is a direct conversation, looked up
// in the IM cache maintained from rtm.start and im_created events.
func (t *Transport) IsPrivate(_ context.Context, source string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.directs[source]
	return ok, nil
}

// rtm requests an RTM session, primes the caches and connects the socket.
func (t *Transport) rtm(ctx context.Context) error {
	t.log.Debug().Msg("Requesting RTM session")
	var resp rtmStartResponse
	if err := t.api(ctx, "rtm.start", nil, &resp); err != nil {
		return err
	}
	users := make(map[string]*bridge.User, len(resp.Users))
	botUsers := make(map[string]string)
	for _, member := range resp.Users {
		users[member.ID] = t.translateUser(member)
		if member.Profile.BotID != "" {
			botUsers[member.Profile.BotID] = member.ID
		}
	}
	channels := make(map[string]string, len(resp.Channels)+len(resp.Groups))
	for _, ch := range resp.Channels {
		channels[ch.ID] = ch.Name
	}
	for _, ch := range resp.Groups {
		channels[ch.ID] = ch.Name
	}
	directs := make(map[string]struct{}, len(resp.IMs))
	for _, im := range resp.IMs {
		directs[im.ID] = struct{}{}
	}
	t.mu.Lock()
	t.users = users
	t.botUsers = botUsers
	t.channels = channels
	t.directs = directs
	t.mu.Unlock()
	t.log.Debug().
		Int("users", len(users)).
		Int("channels", len(channels)).
		Int("directs", len(directs)).
		Msg("Caches primed")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, resp.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing RTM socket: %w", err)
	}
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.log.Debug().Msg("Connected to websocket")
	return nil
}

func (t *Transport) closeConn() {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *Transport) readFrame() (json.RawMessage, error) {
	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("socket closed")
	}
	var raw json.RawMessage
	err := conn.ReadJSON(&raw)
	return raw, err
}

// loop consumes RTM frames until the context is cancelled, reconnecting on
// socket failure.
func (t *Transport) loop(ctx context.Context) {
	defer close(t.done)
	defer close(t.events)
	for {
		raw, err := t.readFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Msg("Socket failed, reconnecting in 3 seconds")
			t.closeConn()
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return
			}
			if err := t.rtm(ctx); err != nil {
				t.log.Error().Err(err).Msg("Reconnect failed")
			}
			continue
		}
		t.handleFrame(ctx, raw)
	}
}

func (t *Transport) handleFrame(ctx context.Context, raw json.RawMessage) {
	var ev apiEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.log.Debug().Err(err).Msg("Undecodable frame")
		return
	}
	t.log.Debug().Str("type", ev.Type).Str("subtype", ev.Subtype).Msg("Received an event")
	switch ev.Type {
	case "team_join", "user_change":
		var payload struct {
			User apiUser `json:"user"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
		t.mu.Lock()
		t.users[payload.User.ID] = t.translateUser(payload.User)
		if payload.User.Profile.BotID != "" {
			t.botUsers[payload.User.Profile.BotID] = payload.User.ID
		}
		t.mu.Unlock()
	case "channel_joined", "group_joined":
		var payload struct {
			Channel apiChannel `json:"channel"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
		t.mu.Lock()
		t.channels[payload.Channel.ID] = payload.Channel.Name
		t.mu.Unlock()
	case "im_created":
		var payload struct {
			Channel apiChannel `json:"channel"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return
		}
		t.mu.Lock()
		t.directs[payload.Channel.ID] = struct{}{}
		t.mu.Unlock()
	case "message":
		if ev.Subtype == "message_replied" {
			return
		}
		var msg apiMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.log.Debug().Err(err).Msg("Undecodable message event")
			return
		}
		translated := t.translateMessage(ctx, &msg)
		select {
		case t.events <- bridge.Event{
			Channel: &bridge.Channel{Transport: t, Source: msg.Channel},
			Message: translated,
		}:
		case <-ctx.Done():
		}
	}
}

func (t *Transport) translateUser(member apiUser) *bridge.User {
	return &bridge.User{
		ID:        member.ID,
		Transport: t.name,
		Username:  member.Name,
		RealName:  member.Profile.RealName,
		Avatar:    member.Profile.bestImage(),
		Raw:       member,
	}
}

// userFor resolves a user ID against the cache, synthesizing a stub for
// unknown IDs.
func (t *Transport) userFor(id string) *bridge.User {
	if id == "" {
		return nil
	}
	t.mu.RLock()
	user, ok := t.users[id]
	t.mu.RUnlock()
	if ok {
		return user
	}
	return &bridge.User{ID: id, Transport: t.name}
}

func (t *Transport) usernameFor(id, label string) string {
	t.mu.RLock()
	user, ok := t.users[id]
	t.mu.RUnlock()
	if ok && user.Username != "" {
		return user.Username
	}
	if label != "" {
		return label
	}
	return id
}

func (t *Transport) channelNameFor(id, label string) string {
	t.mu.RLock()
	name, ok := t.channels[id]
	t.mu.RUnlock()
	if ok && name != "" {
		return name
	}
	if label != "" {
		return label
	}
	return id
}

// tsTime converts a Slack "1234567890.000200" timestamp to a time.
func tsTime(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

func (t *Transport) translateMessage(ctx context.Context, ev *apiMessage) *bridge.Message {
	msg := &bridge.Message{
		ID:  ev.TS,
		At:  tsTime(ev.TS),
		Raw: ev,
	}
	text := ev.Text
	userID := ev.User
	switch ev.Subtype {
	case "bot_message":
		// The event carries the integration's bot ID, not a user ID.
		t.mu.RLock()
		userID = t.botUsers[ev.BotID]
		t.mu.RUnlock()
	case "message_changed":
		if ev.Message != nil {
			msg.Original = ev.Message.TS
			text = ev.Message.Text
			// The editing user may differ from the original sender.
			userID = ev.Message.User
			if ev.Message.Edited != nil && ev.Message.Edited.User != "" {
				userID = ev.Message.Edited.User
			}
		}
	case "message_deleted":
		msg.Original = ev.DeletedTS
		msg.Deleted = true
		userID = ""
		text = ""
	case "file_share", "file_mention":
		msg.Action = true
		if ev.File != nil {
			msg.Attachments = append(msg.Attachments, t.translateFile(ev.File))
		}
	case "channel_join", "group_join":
		msg.Action = true
		msg.Joined = []*bridge.User{t.userFor(userID)}
	case "channel_leave", "group_leave":
		msg.Action = true
		msg.Left = []*bridge.User{t.userFor(userID)}
	case "me_message":
		msg.Action = true
	}
	msg.User = t.userFor(userID)
	if userID != "" && text != "" {
		// A message starting with the sender's own mention is an action.
		selfRef := regexp.MustCompile(`^<@` + regexp.QuoteMeta(userID) + `(\|[^>]*)?> `)
		if selfRef.MatchString(text) {
			msg.Action = true
			text = selfRef.ReplaceAllString(text, "")
		}
	}
	if text != "" {
		msg.Text = t.decodeMrkdwn(text)
	}
	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		msg.ReplyTo = t.fetchParent(ctx, ev.Channel, ev.ThreadTS)
	}
	return msg
}

// fetchParent retrieves a thread's root message so replies can embed it.
// Failures degrade to an unthreaded message.
func (t *Transport) fetchParent(ctx context.Context, channel, ts string) *bridge.Message {
	params := url.Values{
		"channel":   {channel},
		"latest":    {ts},
		"inclusive": {"true"},
		"limit":     {"1"},
	}
	var history historyResponse
	if err := t.api(ctx, "conversations.history", params, &history); err != nil {
		t.log.Debug().Err(err).Str("thread_ts", ts).Msg("Failed to fetch thread parent")
		return nil
	}
	if len(history.Messages) == 0 || history.Messages[0].TS != ts {
		return nil
	}
	parent := history.Messages[0]
	parent.Channel = channel
	return t.translateMessage(ctx, &parent)
}

func (t *Transport) translateFile(file *apiFile) *bridge.File {
	fileType := bridge.FileTypeUnknown
	if strings.HasPrefix(file.Mimetype, "image/") {
		fileType = bridge.FileTypeImage
	}
	source := file.URLPrivate
	return &bridge.File{
		Title: file.Name,
		Type:  fileType,
		// url_private needs credentials, so no public source is exposed.
		Fetch: func(ctx context.Context) (io.ReadCloser, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
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

// Put sends a message to a channel. Attachments are uploaded first; the
// text body goes out via chat.postMessage under the sender's name and
// avatar where available.
func (t *Transport) Put(ctx context.Context, ch *bridge.Channel, msg *bridge.Message) ([]string, error) {
	if msg.Deleted {
		if msg.Original == "" {
			return nil, nil
		}
		params := url.Values{
			"channel": {ch.Source},
			"ts":      {msg.Original},
		}
		var resp postMessageResponse
		if err := t.api(ctx, "chat.delete", params, &resp); err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: err}
		}
		return nil, nil
	}
	uploads := 0
	for _, attach := range msg.Attachments {
		file, ok := attach.(*bridge.File)
		if !ok {
			continue
		}
		if err := t.uploadFile(ctx, ch.Source, file); err != nil {
			return nil, &bridge.TransportError{Transport: t.name, Err: err}
		}
		uploads++
	}

	text := msg.Text.Clone()
	if msg.Action {
		for i := range text {
			text[i].Italic = true
		}
	}
	body := ""
	switch {
	case len(text) > 0:
		body = encodeMrkdwn(text)
	case uploads > 1:
		body = fmt.Sprintf("_shared %d files_", uploads)
	case uploads == 1:
		body = "_shared this file_"
	default:
		return nil, nil
	}

	name := t.cfg.FallbackName
	image := t.cfg.FallbackImage
	if msg.User != nil {
		if display := msg.User.DisplayName(); display != "" {
			name = display
		}
		if msg.User.Avatar != "" {
			image = msg.User.Avatar
		}
	}
	params := url.Values{
		"channel":  {ch.Source},
		"as_user":  {"false"},
		"username": {name},
		"text":     {body},
	}
	if image != "" {
		params.Set("icon_url", image)
	}
	var resp postMessageResponse
	if err := t.api(ctx, "chat.postMessage", params, &resp); err != nil {
		return nil, &bridge.TransportError{Transport: t.name, Err: err}
	}
	return []string{resp.TS}, nil
}

// uploadFile posts one attachment through files.upload.
func (t *Transport) uploadFile(ctx context.Context, channel string, file *bridge.File) error {
	content, err := file.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer content.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"token":    t.cfg.Token,
		"channels": channel,
		"filename": file.Title,
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", "file")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.APIBase+"/files.upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("files.upload: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("files.upload: %w", err)
	}
	var upload uploadResponse
	if err := json.Unmarshal(payload, &upload); err != nil {
		return fmt.Errorf("files.upload: unexpected response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !upload.OK {
		return &APIError{Reason: upload.Error}
	}
	return nil
}
