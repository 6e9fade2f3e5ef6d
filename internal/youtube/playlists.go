package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"shorts-uploader/internal/executor"
)

// playlistCache holds the channel's playlists by title, fetched once
// per client lifetime. Runs are short enough that playlists created
// mid-run are not worth chasing.
type playlistCache struct {
	mu     sync.Mutex
	loaded bool
	byName map[string]string
}

// Find resolves a playlist title to its ID among the authenticated
// channel's own playlists. Returns executor.ErrPlaylistNotFound when
// no playlist carries the title; lookup never creates one.
func (c *Client) Find(ctx context.Context, name string) (string, error) {
	c.playlists.mu.Lock()
	defer c.playlists.mu.Unlock()

	if !c.playlists.loaded {
		byName, err := c.fetchPlaylists(ctx)
		if err != nil {
			return "", err
		}
		c.playlists.byName = byName
		c.playlists.loaded = true
	}

	id, ok := c.playlists.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", executor.ErrPlaylistNotFound, name)
	}
	return id, nil
}

func (c *Client) fetchPlaylists(ctx context.Context) (map[string]string, error) {
	byName := make(map[string]string)
	pageToken := ""

	for {
		query := url.Values{
			"part":       {"snippet"},
			"mine":       {"true"},
			"maxResults": {"50"},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		body, uploadErr := c.do(ctx, http.MethodGet, c.cfg.APIURL+"/playlists?"+query.Encode(), "", nil)
		if uploadErr != nil {
			return nil, uploadErr
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Items         []struct {
				ID      string `json:"id"`
				Snippet struct {
					Title string `json:"title"`
				} `json:"snippet"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("invalid playlists response: %w", err)
		}

		for _, item := range page.Items {
			// First occurrence wins for duplicate titles.
			if _, exists := byName[item.Snippet.Title]; !exists {
				byName[item.Snippet.Title] = item.ID
			}
		}

		if page.NextPageToken == "" {
			return byName, nil
		}
		pageToken = page.NextPageToken
	}
}

// AddItem appends a video to a playlist. Costs quota but never affects
// the upload outcome: the video is already live when this is called.
func (c *Client) AddItem(ctx context.Context, playlistID, videoID string) error {
	payload := map[string]any{
		"snippet": map[string]any{
			"playlistId": playlistID,
			"resourceId": map[string]string{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := c.cfg.APIURL + "/playlistItems?part=snippet"
	if _, uploadErr := c.do(ctx, http.MethodPost, endpoint, "application/json; charset=UTF-8", bytes.NewReader(body)); uploadErr != nil {
		return uploadErr
	}
	return nil
}

var (
	_ executor.Uploader         = (*Client)(nil)
	_ executor.PlaylistResolver = (*Client)(nil)
)
