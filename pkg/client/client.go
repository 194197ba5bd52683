// Package client is a websocket client for the relay, used by the CLI to
// exercise a running gateway with recorded audio.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/juru/pkg/protocol"
)

// ErrServer wraps an error event sent by the relay.
var ErrServer = errors.New("relay error")

type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// OneShot sends a complete clip in the combined audioData form.
func (c *Client) OneShot(audio []byte, target string) error {
	return c.writeJSON(map[string]string{
		"event":      protocol.EventAudio,
		"audioData":  base64.StdEncoding.EncodeToString(audio),
		"targetLang": target,
	})
}

func (c *Client) Start(target string) error {
	msg := map[string]string{"event": protocol.EventStart}
	if target != "" {
		msg["targetLanguage"] = target
	}
	return c.writeJSON(msg)
}

// Chunk sends one audio chunk as a binary frame.
func (c *Client) Chunk(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (c *Client) Stop() error {
	return c.writeJSON(map[string]string{"event": protocol.EventStop})
}

// Stream sends audio as a start, chunks of chunkSize bytes, and a stop.
func (c *Client) Stream(audio []byte, target string, chunkSize int, pace time.Duration) error {
	if chunkSize <= 0 {
		chunkSize = len(audio)
	}
	if err := c.Start(target); err != nil {
		return err
	}
	for len(audio) > 0 {
		n := min(chunkSize, len(audio))
		if err := c.Chunk(audio[:n]); err != nil {
			return err
		}
		audio = audio[n:]
		if pace > 0 {
			time.Sleep(pace)
		}
	}
	return c.Stop()
}

// Next reads one event. Error events are returned as ErrServer.
func (c *Client) Next(ctx context.Context) (protocol.Outbound, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Outbound{}, ctx.Err()
		}
		return protocol.Outbound{}, err
	}
	var ev protocol.Outbound
	if err := json.Unmarshal(msg, &ev); err != nil {
		return protocol.Outbound{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Event == protocol.EventError {
		return ev, fmt.Errorf("%w: %s", ErrServer, ev.Message)
	}
	return ev, nil
}

// Audio decodes the payload of an audio event.
func Audio(ev protocol.Outbound) ([]byte, error) {
	return base64.StdEncoding.DecodeString(ev.Data)
}

func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
