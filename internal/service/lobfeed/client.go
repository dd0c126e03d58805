package lobfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"LobCast/internal/domain/models"
	drepo "LobCast/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by a WebSocket depth feed.
type Client struct {
	websocketURL   string
	instruments    []string
	depth          int
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a depth feed MarketStream.
func New(websocketURL string, instruments []string, depth int, reconnectDelay, pingInterval time.Duration) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		instruments:    instruments,
		depth:          depth,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("lobfeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("lobfeed: connected")
	return nil
}

// Subscribe subscribes to depth updates for the configured instruments.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("lobfeed not connected")
	}
	for _, ins := range c.instruments {
		msg := map[string]interface{}{"type": "subscribe", "instrument": ins, "depth": c.depth}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ins, err)
		}
		log.Printf("lobfeed: subscribed %s depth %d", ins, c.depth)
	}
	return nil
}

type wsSnapshot struct {
	Type       string       `json:"type"`
	Instrument string       `json:"instrument"`
	Ts         int64        `json:"ts"` // ms
	Seq        uint64       `json:"seq"`
	Asks       [][2]float64 `json:"asks"` // [price, size], best first
	Bids       [][2]float64 `json:"bids"`
}

// Read streams Snapshot events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Snapshot, <-chan error) {
	snaps := make(chan *models.Snapshot, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(snaps)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("lobfeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("lobfeed read: %w", err)
					return
				}
				var m wsSnapshot
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-snapshot frames
					continue
				}
				if m.Type != "snapshot" {
					continue
				}
				snap := &models.Snapshot{
					Instrument: m.Instrument,
					Timestamp:  time.UnixMilli(m.Ts).UTC(),
					Seq:        m.Seq,
					Asks:       toLevels(m.Asks),
					Bids:       toLevels(m.Bids),
				}
				select {
				case snaps <- snap:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return snaps, errs
}

func toLevels(pairs [][2]float64) []models.PriceLevel {
	out := make([]models.PriceLevel, len(pairs))
	for i, p := range pairs {
		out[i] = models.PriceLevel{Price: p[0], Size: p[1]}
	}
	return out
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
