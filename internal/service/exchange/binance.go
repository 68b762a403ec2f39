package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"CandleCast/internal/domain/models"
	drepo "CandleCast/internal/domain/repository"
	applogger "CandleCast/pkg/logger"
)

// Config for the Binance aggregate-trade stream.
type Config struct {
	URL            string
	Pairs          []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	Buffer         int
}

// BinanceClient implements TradeStream over the combined-stream endpoint.
type BinanceClient struct {
	cfg Config
	l   *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	reqID     atomic.Int64
}

// NewBinanceClient returns a disconnected client.
func NewBinanceClient(cfg Config, l *applogger.Logger) drepo.TradeStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &BinanceClient{cfg: cfg, l: l.With(applogger.String("component", "binance"))}
}

func (c *BinanceClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.l.Info("connected", applogger.String("url", c.cfg.URL))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Subscribe requests the aggTrade stream of every configured pair.
func (c *BinanceClient) Subscribe(ctx context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("binance not connected")
	}
	streams := make([]string, 0, len(c.cfg.Pairs))
	for _, p := range c.cfg.Pairs {
		streams = append(streams, strings.ToLower(p)+"@aggTrade")
	}
	req := subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: c.reqID.Add(1)}
	if err := c.write(func(conn *websocket.Conn) error { return conn.WriteJSON(req) }); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.l.Info("subscribed", applogger.Any("streams", streams))
	return nil
}

func (c *BinanceClient) write(fn func(*websocket.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("binance conn nil")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return fn(c.conn)
}

type aggTrade struct {
	EventType    string `json:"e"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

var errNotTrade = errors.New("not a trade frame")

// parseFrame accepts both combined-stream envelopes and raw events.
func parseFrame(b []byte) (*models.Trade, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	payload := b
	if len(env.Data) > 0 {
		payload = env.Data
	}
	var ev aggTrade
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if ev.EventType != "aggTrade" && ev.EventType != "trade" {
		return nil, errNotTrade
	}
	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", ev.Price, err)
	}
	qty, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return nil, fmt.Errorf("quantity %q: %w", ev.Quantity, err)
	}
	return &models.Trade{
		Pair:         strings.ToUpper(ev.Symbol),
		Price:        price.InexactFloat64(),
		Quantity:     qty.InexactFloat64(),
		TimestampMs:  ev.TradeTime,
		IsBuyerMaker: ev.IsBuyerMaker,
	}, nil
}

// Read streams trades until the context ends or the connection fails. Both
// channels are closed when reading stops.
func (c *BinanceClient) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, c.cfg.Buffer)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = c.write(func(conn *websocket.Conn) error {
					return conn.WriteMessage(websocket.PingMessage, nil)
				})
			}
		}
	}()

	go func() {
		defer close(trades)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("binance conn nil")
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			t, err := parseFrame(b)
			if err != nil {
				if !errors.Is(err, errNotTrade) {
					c.l.Debug("skip frame", applogger.Error(err))
				}
				continue
			}
			select {
			case trades <- t:
			case <-ctx.Done():
				return
			default:
				c.l.Warn("trade buffer full, dropping", applogger.String("pair", t.Pair))
			}
		}
	}()

	return trades, errs
}

// Reconnect closes the connection, waits the reconnect delay and subscribes again.
func (c *BinanceClient) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *BinanceClient) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *BinanceClient) IsConnected() bool { return c.connected.Load() }
