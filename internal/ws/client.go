package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vtgofer/internal/source"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one streaming connection. Every request is submitted as soon as
// it is read; responses are written in completion order.
type Client struct {
	conn   *websocket.Conn
	src    source.Source
	logger zerolog.Logger

	sendChan  chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, src source.Source, logger zerolog.Logger) *Client {
	return &Client{
		conn:      conn,
		src:       src,
		logger:    logger,
		sendChan:  make(chan []byte, 256),
		closeChan: make(chan struct{}),
	}
}

// Run starts the client read and write loops and returns when the
// connection is closed
func (c *Client) Run(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump(ctx)

	c.readPump(ctx)
	c.inflight.Wait()
}

// readPump reads lookups from the WebSocket connection
func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}

		c.handleMessage(ctx, data)
	}
}

// writePump writes responses and keepalive pings
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case data := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage submits one lookup and waits for its outcome in the background
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var req LookupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendResponse(&LookupResponse{Error: ErrMsgParse})
		return
	}
	if req.Key == "" {
		c.sendResponse(&LookupResponse{ID: req.ID, Error: ErrMsgMissingKey})
		return
	}

	ch := c.src.Submit(ctx, source.Query{Key: req.Key, ContentType: req.ContentType})

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		select {
		case out := <-ch:
			c.sendResponse(newLookupResponse(req, out))
		case <-c.closeChan:
		case <-ctx.Done():
		}
	}()
}

func newLookupResponse(req LookupRequest, out source.Outcome) *LookupResponse {
	resp := &LookupResponse{ID: req.ID, Key: req.Key}
	if out.Err != nil {
		resp.Error = out.Err.Error()
		return resp
	}
	if out.Result != nil {
		resp.Count = out.Result.Count
		resp.Buffer = out.Result.Buffer
	}
	return resp
}

// sendResponse queues resp for the write pump
func (c *Client) sendResponse(resp *LookupResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	c.send(data)
}

// send sends data to the client
func (c *Client) send(data []byte) {
	select {
	case c.sendChan <- data:
	case <-c.closeChan:
	default:
		// Channel full, drop message
		c.logger.Warn().Msg("send channel full, dropping message")
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
		c.logger.Debug().Msg("client closed")
	})
}
