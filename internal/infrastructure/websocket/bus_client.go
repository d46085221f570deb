package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"

	"github.com/gorilla/websocket"
)

type GatewayDialer struct {
	url string
	log logger.Logger
}

func NewGatewayDialer(url string, log logger.Logger) *GatewayDialer {
	return &GatewayDialer{
		url: url,
		log: log,
	}
}

func (d *GatewayDialer) Dial(ctx context.Context) (domain.BusConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", d.url, err)
	}

	d.log.Info("Connected to gateway", "url", d.url)
	return &GatewayConn{conn: conn, log: d.log}, nil
}

type GatewayConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	log     logger.Logger
}

func (c *GatewayConn) ReadEvent() (*domain.Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", domain.ErrMalformedEvent)
	}

	return &env, nil
}

func (c *GatewayConn) WriteEvent(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(&domain.Envelope{Event: event, Data: data})
}

func (c *GatewayConn) Close() error {
	return c.conn.Close()
}
