package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"EthCast/internal/domain/models"
	"EthCast/internal/domain/repository"
	"EthCast/pkg/config"
	"EthCast/pkg/logger"
)

// Binance implements PriceStream over the exchange websocket, subscribed to
// the symbol's miniTicker updates. Ticks feed the freshness gauge and the
// validation fallback when the candle covering a target minute has not
// landed yet.
type Binance struct {
	url            string
	symbol         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	log            *logger.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

func NewBinance(cfg *config.Config, log *logger.Logger) *Binance {
	return &Binance{
		url:            cfg.Stream.URL,
		symbol:         cfg.Market.Symbol,
		reconnectDelay: cfg.Stream.ReconnectDelay,
		pingInterval:   cfg.Stream.PingInterval,
		bufferSize:     cfg.Stream.BufferSize,
		log:            log.Named("stream"),
	}
}

// Connect dials the websocket and subscribes to the symbol's miniTicker
// stream.
func (b *Binance) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{strings.ToLower(b.symbol) + "@miniTicker"},
		"id":     1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return fmt.Errorf("stream subscribe %s: %w", b.symbol, err)
	}

	b.mu.Lock()
	b.conn = conn
	b.connected = true
	b.mu.Unlock()

	b.log.Info("stream connected", logger.String("symbol", b.symbol))
	return nil
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"` // ms
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// Read streams ticks and errors. Both channels close when the read loop
// exits; a read error ends the loop and the caller decides whether to
// Reconnect.
func (b *Binance) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, b.bufferSize)
	errs := make(chan error, 1)

	// The ping loop lives only as long as this read session, so repeated
	// Read calls after reconnects do not stack keepalive goroutines.
	pingCtx, stopPing := context.WithCancel(ctx)
	go b.pingLoop(pingCtx)

	go func() {
		defer stopPing()
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn := b.current()
			if conn == nil {
				errs <- fmt.Errorf("stream not connected")
				return
			}

			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}

			var m miniTicker
			if err := json.Unmarshal(raw, &m); err != nil {
				// subscribe acks and other control frames
				continue
			}
			if m.Event != "24hrMiniTicker" {
				continue
			}

			price, err := strconv.ParseFloat(m.Close, 64)
			if err != nil {
				b.log.Warn("bad tick price", logger.String("raw", m.Close))
				continue
			}

			tick := &models.Tick{
				Symbol:    m.Symbol,
				Price:     price,
				EventTime: time.UnixMilli(m.EventTime).UTC(),
			}
			select {
			case ticks <- tick:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

func (b *Binance) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if conn := b.current(); conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (b *Binance) current() *websocket.Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

// Reconnect closes the connection, waits out the backoff delay, and dials
// again with a fresh subscription.
func (b *Binance) Reconnect(ctx context.Context) error {
	_ = b.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.reconnectDelay):
	}
	return b.Connect(ctx)
}

func (b *Binance) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *Binance) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

var _ repository.PriceStream = (*Binance)(nil)
