package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"auction-engine/utils"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the web shell in front of this service handles origin policy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection. Outbound frames go through a buffered
// send channel drained by a single writer goroutine, so delivery order per
// connection matches enqueue order.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, hub.opts.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// ServeWS upgrades the request and runs the connection's pumps
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(hub, conn, userID)
	go c.writePump()
	go c.readPump()
	return nil
}

// trySend queues a frame without blocking. A false return means the buffer
// is full and the connection should be dropped. Frames for an already
// closed connection count as delivered: they are undeliverable, not errors.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// deliver marshals and queues a single-connection envelope (snapshots,
// private bid results, errors)
func (c *Client) deliver(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		utils.Error("failed to marshal envelope", map[string]any{
			"type":  env.Type,
			"error": err.Error(),
		})
		return
	}
	if !c.trySend(data) {
		c.hub.Disconnect(c)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump reads client messages until the connection dies, then cleans up
// the registry. An abrupt network loss surfaces as a read error once the
// pong deadline lapses.
func (c *Client) readPump() {
	defer c.hub.Disconnect(c)

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("websocket closed unexpectedly", map[string]any{
					"user_id": c.userID,
					"error":   err.Error(),
				})
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.deliver(errorEnvelope("", "malformed message", time.Now().UTC()))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case TypeJoin:
		if err := c.hub.Join(context.Background(), c, msg.AuctionID); err != nil {
			c.deliver(errorEnvelope(msg.AuctionID, "cannot join: "+err.Error(), time.Now().UTC()))
		}
	case TypeLeave:
		c.hub.Leave(c, msg.AuctionID)
	case TypeBid:
		amount, err := decimal.NewFromString(msg.Amount)
		if err != nil {
			c.deliver(errorEnvelope(msg.AuctionID, "malformed bid amount", time.Now().UTC()))
			return
		}
		// the lane wait may be long; keep the read pump responsive. The
		// result goes back to this connection whether or not it is
		// subscribed, and is simply undeliverable after a disconnect.
		go c.submitBid(msg.AuctionID, amount)
	default:
		c.deliver(errorEnvelope(msg.AuctionID, "unknown message type "+msg.Type, time.Now().UTC()))
	}
}

func (c *Client) submitBid(auctionID string, amount decimal.Decimal) {
	res, err := c.hub.engine.PlaceBid(context.Background(), auctionID, c.userID, amount)
	if err != nil {
		c.deliver(errorEnvelope(auctionID, "bid failed: "+err.Error(), time.Now().UTC()))
		return
	}

	event := &BidResultEvent{
		Accepted:     res.Accepted,
		Reason:       string(res.Reason),
		Detail:       res.Detail,
		CurrentPrice: res.Snapshot.CurrentPrice.String(),
	}
	if res.Bid != nil {
		event.BidID = res.Bid.BidID
	}
	c.deliver(Envelope{
		Type:      TypeBidResult,
		AuctionID: auctionID,
		Seq:       res.Snapshot.Seq,
		Timestamp: time.Now().UTC(),
		Result:    event,
	})
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
