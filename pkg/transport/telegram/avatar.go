// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// The bot API has no endpoint for public avatar URLs. The t.me profile page
// exposes one through its og:image meta property, so we scrape and cache it
// per username. Negative results are cached too.
var ogImage = regexp.MustCompile(`<meta[^>]*property="og:image"[^>]*content="([^"]*)"|<meta[^>]*content="([^"]*)"[^>]*property="og:image"`)

type avatarCache struct {
	http *http.Client
	base string

	mu   sync.Mutex
	urls map[string]string
}

func newAvatarCache(client *http.Client, base string) *avatarCache {
	return &avatarCache{http: client, base: base, urls: make(map[string]string)}
}

// lookup returns the avatar URL for a public username, or empty when the
// user has none or can't be resolved.
func (c *avatarCache) lookup(ctx context.Context, username string) string {
	if username == "" {
		// Users without a public username can't be looked up.
		return ""
	}
	c.mu.Lock()
	url, ok := c.urls[username]
	c.mu.Unlock()
	if ok {
		return url
	}
	url = c.fetch(ctx, username)
	c.mu.Lock()
	c.urls[username] = url
	c.mu.Unlock()
	return url
}

func (c *avatarCache) fetch(ctx context.Context, username string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+username, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	page, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	match := ogImage.FindSubmatch(page)
	if match == nil {
		return ""
	}
	if len(match[1]) > 0 {
		return string(match[1])
	}
	return string(match[2])
}
