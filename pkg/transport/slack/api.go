// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-ok response from the Slack web API.
type APIError struct {
	Reason string
}

func (e *APIError) Error() string {
	return "slack api: " + e.Reason
}

type apiProfile struct {
	RealName      string `json:"real_name"`
	BotID         string `json:"bot_id"`
	ImageOriginal string `json:"image_original"`
	Image512      string `json:"image_512"`
	Image192      string `json:"image_192"`
	Image72       string `json:"image_72"`
	Image48       string `json:"image_48"`
}

// bestImage picks the largest avatar rendition present on a profile.
func (p apiProfile) bestImage() string {
	for _, image := range []string{p.ImageOriginal, p.Image512, p.Image192, p.Image72, p.Image48} {
		if image != "" {
			return image
		}
	}
	return ""
}

type apiUser struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Deleted bool       `json:"deleted"`
	Profile apiProfile `json:"profile"`
}

type apiChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiBot struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type apiFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Mimetype   string `json:"mimetype"`
	URLPrivate string `json:"url_private"`
}

type apiEdited struct {
	User string `json:"user"`
}

type apiMessage struct {
	TS        string      `json:"ts"`
	Type      string      `json:"type"`
	Subtype   string      `json:"subtype"`
	Channel   string      `json:"channel"`
	User      string      `json:"user"`
	Text      string      `json:"text"`
	BotID     string      `json:"bot_id"`
	Username  string      `json:"username"`
	ThreadTS  string      `json:"thread_ts"`
	DeletedTS string      `json:"deleted_ts"`
	Edited    *apiEdited  `json:"edited"`
	Message   *apiMessage `json:"message"`
	File      *apiFile    `json:"file"`
}

// apiEvent is the minimal shape of an RTM frame, enough to route it; the
// payload is re-decoded per type.
type apiEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

type rtmStartResponse struct {
	OK       bool         `json:"ok"`
	Error    string       `json:"error"`
	URL      string       `json:"url"`
	Self     apiUser      `json:"self"`
	Users    []apiUser    `json:"users"`
	Channels []apiChannel `json:"channels"`
	Groups   []apiChannel `json:"groups"`
	IMs      []apiChannel `json:"ims"`
	Bots     []apiBot     `json:"bots"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

type uploadResponse struct {
	OK    bool    `json:"ok"`
	Error string  `json:"error"`
	File  apiFile `json:"file"`
}

type historyResponse struct {
	OK       bool         `json:"ok"`
	Error    string       `json:"error"`
	Messages []apiMessage `json:"messages"`
}

// okayer lets the api helper check the shared ok/error envelope fields
// without decoding twice.
type okayer interface {
	okay() (bool, string)
}

func (r *rtmStartResponse) okay() (bool, string)    { return r.OK, r.Error }
func (r *postMessageResponse) okay() (bool, string) { return r.OK, r.Error }
func (r *uploadResponse) okay() (bool, string)      { return r.OK, r.Error }
func (r *historyResponse) okay() (bool, string)     { return r.OK, r.Error }

// api posts a web API method call as a form body and decodes the response.
func (t *Transport) api(ctx context.Context, method string, params url.Values, out okayer) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", t.cfg.Token)
	endpoint := t.cfg.APIBase + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: unexpected response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if ok, reason := out.okay(); !ok {
		return &APIError{Reason: reason}
	}
	return nil
}
