package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"mlm_shop/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	pollPeriod = 2 * time.Second
)

// LogLister is the slice of the order log repository the feed needs.
type LogLister interface {
	ListAfter(ctx context.Context, orderID, afterID int64) ([]*domain.OrderLog, error)
}

// Client streams new order_log rows for one order to one connection.
// Entries are delivered in id order; lastID tracks the watermark.
type Client struct {
	OrderID    int64
	OperatorID int64
	Conn       *websocket.Conn
	Send       chan []byte
	Done       chan struct{}

	logs   LogLister
	lastID int64
}

func NewClient(orderID, operatorID int64, conn *websocket.Conn, logs LogLister) *Client {
	return &Client{
		OrderID:    orderID,
		OperatorID: operatorID,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		Done:       make(chan struct{}),
		logs:       logs,
	}
}

func (c *Client) Run() {
	go c.writePump()
	go c.pollPump()

	// send explicit ready handshake so clients can wait for it
	readyMsg := []byte(`{"type":"ready"}`)
	select {
	case c.Send <- readyMsg:
	case <-time.After(500 * time.Millisecond):
		log.Printf("Client.Run: timeout queuing ready for order=%d", c.OrderID)
	}

	c.readPump()
}

// readPump only services control frames; the feed is one-directional.
func (c *Client) readPump() {
	defer close(c.Done)

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) pollPump() {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()

	// first fetch immediately, then on the ticker
	c.pushNew()
	for {
		select {
		case <-ticker.C:
			c.pushNew()
		case <-c.Done:
			return
		}
	}
}

func (c *Client) pushNew() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := c.logs.ListAfter(ctx, c.OrderID, c.lastID)
	if err != nil {
		log.Printf("Client.pushNew: order=%d list error: %v", c.OrderID, err)
		return
	}

	for _, entry := range entries {
		msg, err := json.Marshal(map[string]any{
			"type":  "order_log",
			"entry": entry,
		})
		if err != nil {
			continue
		}
		select {
		case c.Send <- msg:
			c.lastID = entry.ID
		case <-c.Done:
			return
		default:
			// slow consumer, drop the connection rather than block the poller
			c.Conn.Close()
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done:
			return
		}
	}
}
