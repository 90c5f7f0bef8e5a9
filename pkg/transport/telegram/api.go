// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-ok response from the bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api: %s (%d)", e.Description, e.Code)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

type apiUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type apiEntity struct {
	Type   string   `json:"type"`
	Offset int      `json:"offset"`
	Length int      `json:"length"`
	URL    string   `json:"url"`
	User   *apiUser `json:"user"`
}

type apiChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type apiPhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiMessage struct {
	MessageID      int64          `json:"message_id"`
	Chat           apiChat        `json:"chat"`
	Date           int64          `json:"date"`
	From           *apiUser       `json:"from"`
	Text           string         `json:"text"`
	Entities       []apiEntity    `json:"entities"`
	ReplyToMessage *apiMessage    `json:"reply_to_message"`
	Photo          []apiPhotoSize `json:"photo"`
	NewChatMembers []apiUser      `json:"new_chat_members"`
	LeftChatMember *apiUser       `json:"left_chat_member"`
	NewChatTitle   string         `json:"new_chat_title"`
}

type apiUpdate struct {
	UpdateID          int64       `json:"update_id"`
	Message           *apiMessage `json:"message"`
	EditedMessage     *apiMessage `json:"edited_message"`
	ChannelPost       *apiMessage `json:"channel_post"`
	EditedChannelPost *apiMessage `json:"edited_channel_post"`
}

type apiFile struct {
	FilePath string `json:"file_path"`
}

// api posts a method call and decodes the result envelope into out. A non-ok
// envelope becomes an APIError regardless of the HTTP status.
func (t *Transport) api(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIBase, t.cfg.Token, method)
	body := ""
	if params != nil {
		body = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
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
	var envelope apiResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("%s: unexpected response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return nil
}

// fileURL resolves a file ID to its bot API download URL.
func (t *Transport) fileURL(ctx context.Context, fileID string) (string, error) {
	var file apiFile
	params := url.Values{"file_id": {fileID}}
	if err := t.api(ctx, "getFile", params, &file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/file/bot%s/%s", t.cfg.APIBase, t.cfg.Token, file.FilePath), nil
}
