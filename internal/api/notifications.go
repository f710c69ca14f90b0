package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Notification is an entry of the user's notification feed.
type Notification struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      string    `json:"type,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type notificationsResponse struct {
	Items      []Notification `json:"items"`
	NextCursor string         `json:"nextCursor"`
}

// ListNotifications fetches one page of the feed. An empty cursor starts
// from the newest entry.
func (c *Client) ListNotifications(ctx context.Context, cursor string, limit int) (Page[Notification], error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp notificationsResponse
	if err := c.do(ctx, http.MethodGet, "/api/notifications", q, nil, &resp); err != nil {
		return Page[Notification]{}, err
	}
	return Page[Notification]{Items: resp.Items, NextCursor: resp.NextCursor}, nil
}

// Notifications returns a pager over the feed.
func (c *Client) Notifications(limit int) *Pager[Notification] {
	return NewPager(func(ctx context.Context, cursor string) (Page[Notification], error) {
		return c.ListNotifications(ctx, cursor, limit)
	})
}
