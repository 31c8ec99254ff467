// Package emby is a thin client for an Emby media server's remote-control
// surface: enough to find a controllable playback session, start library
// items on it, and steer playback. Media control is best-effort; every
// failure path returns a human-readable error that can be spoken back.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoSession is returned when no session on the server accepts remote
// control commands.
var ErrNoSession = errors.New("emby: no controllable session found")

const requestTimeout = 10 * time.Second

// Client talks to one Emby server.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New creates a Client for the server at baseURL (scheme://host:port,
// without the /emby path segment).
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// Session is one connected player as reported by /Sessions.
type Session struct {
	ID                    string `json:"Id"`
	DeviceName            string `json:"DeviceName"`
	SupportsRemoteControl bool   `json:"SupportsRemoteControl"`
	NowPlayingItem        *Item  `json:"NowPlayingItem"`
	PlayState             struct {
		IsPaused bool `json:"IsPaused"`
	} `json:"PlayState"`
}

// Item is a library entry.
type Item struct {
	ID      string   `json:"Id"`
	Name    string   `json:"Name"`
	Type    string   `json:"Type"`
	Artists []string `json:"Artists"`
}

// Sessions lists active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.getJSON(ctx, "/Sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// controllableSession returns the first session that accepts remote control.
func (c *Client) controllableSession(ctx context.Context) (Session, error) {
	sessions, err := c.Sessions(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.SupportsRemoteControl {
			return s, nil
		}
	}
	return Session{}, ErrNoSession
}

// Search queries the library. itemTypes narrows results ("Audio",
// "MusicAlbum", "Playlist"); empty searches everything.
func (c *Client) Search(ctx context.Context, query, itemTypes string, limit int) ([]Item, error) {
	userID, err := c.userID(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"SearchTerm": {query},
		"Recursive":  {"true"},
		"Limit":      {strconv.Itoa(limit)},
	}
	if itemTypes != "" {
		params.Set("IncludeItemTypes", itemTypes)
	}
	var result struct {
		Items []Item `json:"Items"`
	}
	if err := c.getJSON(ctx, "/emby/Users/"+userID+"/Items", params, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// SearchAndPlay finds the first audio match for query and starts it on the
// controllable session. Returns a speakable description of what started.
func (c *Client) SearchAndPlay(ctx context.Context, query string) (string, error) {
	items, err := c.Search(ctx, query, "Audio", 10)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("emby: no results for %q", query)
	}
	item := items[0]
	if err := c.Play(ctx, item.ID); err != nil {
		return "", err
	}
	return describe(item), nil
}

// Play starts the given item on the controllable session.
func (c *Client) Play(ctx context.Context, itemID string) error {
	session, err := c.controllableSession(ctx)
	if err != nil {
		return err
	}
	body := map[string]string{"ItemIds": itemID, "PlayCommand": "PlayNow"}
	return c.postJSON(ctx, "/Sessions/"+session.ID+"/Playing", body)
}

// Pause pauses the controllable session and returns its device name.
func (c *Client) Pause(ctx context.Context) (string, error) { return c.control(ctx, "Pause") }

// Resume resumes the controllable session and returns its device name.
func (c *Client) Resume(ctx context.Context) (string, error) { return c.control(ctx, "Unpause") }

// Skip advances to the next track and returns the device name.
func (c *Client) Skip(ctx context.Context) (string, error) { return c.control(ctx, "NextTrack") }

func (c *Client) control(ctx context.Context, command string) (string, error) {
	session, err := c.controllableSession(ctx)
	if err != nil {
		return "", err
	}
	if err := c.postJSON(ctx, "/Sessions/"+session.ID+"/Playing/"+command, nil); err != nil {
		return "", err
	}
	return session.DeviceName, nil
}

// NowPlaying describes the first session with an active item, or reports
// that nothing is playing.
func (c *Client) NowPlaying(ctx context.Context) (string, error) {
	sessions, err := c.Sessions(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range sessions {
		if s.NowPlayingItem == nil {
			continue
		}
		state := "Playing"
		if s.PlayState.IsPaused {
			state = "Paused"
		}
		return state + ": " + describe(*s.NowPlayingItem), nil
	}
	return "Nothing playing", nil
}

// userID resolves the account used for library queries: prefers the bot
// account, falls back to the first user.
func (c *Client) userID(ctx context.Context) (string, error) {
	var users []struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	}
	if err := c.getJSON(ctx, "/emby/Users", nil, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", errors.New("emby: server has no users")
	}
	for _, u := range users {
		if u.Name == "discordbot" {
			return u.ID, nil
		}
	}
	return users[0].ID, nil
}

func describe(item Item) string {
	if len(item.Artists) > 0 && item.Artists[0] != "" {
		return item.Artists[0] + " - " + item.Name
	}
	if item.Type != "" {
		return fmt.Sprintf("%s (%s)", item.Name, item.Type)
	}
	return item.Name
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("emby: build request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("emby: GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emby: GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("emby: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("emby: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("emby: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("emby: POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emby: POST %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Emby-Token", c.apiKey)
	}
}
