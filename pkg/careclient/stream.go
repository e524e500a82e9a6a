package careclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// StreamURL returns the WebSocket URL for the given tables.
func (c *Client) StreamURL(tables ...string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL + "/ws")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if len(tables) > 0 {
		u.RawQuery = url.Values{"tables": {strings.Join(tables, ",")}}.Encode()
	}
	return u.String(), nil
}

// Watch streams changes on tables to fn until ctx is cancelled or the
// connection drops. It returns nil after cancellation. Events may be missed
// while disconnected; callers should treat a return as "re-fetch
// everything" before watching again.
func (c *Client) Watch(ctx context.Context, tables []string, fn func(Event)) error {
	target, err := c.StreamURL(tables...)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.DevEmail != "" {
		header.Set(devEmailHeader, c.cfg.DevEmail)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial change stream: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial change stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read change stream: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fn(ev)
	}
}
