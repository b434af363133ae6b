// Package feed streams tracked-wallet activity over the Polymarket user
// WebSocket channel so copies land faster than the polling interval alone
// allows. The poller remains the source of truth; the feed is a latency
// optimisation and every trade it delivers goes through the same ingest
// path, so duplicates are absorbed by the seen set.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/platform/polymarket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Ingestor accepts trade records from the feed. Implemented by
// pipeline.Poller so streamed and polled trades share one code path.
type Ingestor interface {
	Ingest(ctx context.Context, rec domain.TradeRecord) bool
}

// WalletSource reports the currently tracked wallet.
type WalletSource interface {
	Wallet() (string, error)
}

// subscribeCommand is the subscription frame for the user channel.
type subscribeCommand struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	User    string `json:"user"`
}

// wsMessage is the envelope for incoming frames. Trade frames carry the
// trade fields inline, so the envelope is decoded first to pick the event
// type and the raw frame is re-decoded as a trade when it matches.
type wsMessage struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
}

// UserFeed subscribes to the user channel for the tracked wallet and pushes
// each trade into the ingest path. It reconnects with exponential backoff
// on disconnect, and resubscribes when the tracked wallet changes.
type UserFeed struct {
	wsURL    string
	wallets  WalletSource
	ingestor Ingestor
	logger   *slog.Logger
}

// NewUserFeed creates a feed for the given WebSocket endpoint.
func NewUserFeed(wsURL string, wallets WalletSource, ingestor Ingestor, logger *slog.Logger) *UserFeed {
	return &UserFeed{
		wsURL:    wsURL,
		wallets:  wallets,
		ingestor: ingestor,
		logger:   logger.With(slog.String("component", "user_feed")),
	}
}

// Run connects and streams until ctx is cancelled. Connection errors are
// retried with exponential backoff; a clean shutdown returns nil.
func (f *UserFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		wallet, err := f.wallets.Wallet()
		if err != nil {
			// Nothing to subscribe to yet. Check again shortly.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}
			continue
		}

		err = f.runConnection(ctx, wallet)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			f.logger.Warn("user feed disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials, subscribes and reads frames until the connection
// drops, ctx is cancelled, or the tracked wallet changes.
func (f *UserFeed) runConnection(ctx context.Context, wallet string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	cmd := subscribeCommand{Type: "subscribe", Channel: "user", User: wallet}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("user feed subscribed", slog.String("wallet", wallet))

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, wallet, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}
		f.handleFrame(ctx, raw)
	}
}

// keepAlive pings the peer and tears the connection down when ctx is
// cancelled or the tracked wallet changes, which unblocks ReadMessage.
func (f *UserFeed) keepAlive(ctx context.Context, conn *websocket.Conn, wallet string, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			current, err := f.wallets.Wallet()
			if err != nil || !strings.EqualFold(current, wallet) {
				f.logger.Info("tracked wallet changed, resubscribing")
				conn.Close()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// handleFrame decodes a single frame and feeds trade events to the ingestor.
// Non-trade frames (subscription acks, order events) are ignored.
func (f *UserFeed) handleFrame(ctx context.Context, raw []byte) {
	var env wsMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Debug("user feed: undecodable frame", slog.String("error", err.Error()))
		return
	}

	kind := env.EventType
	if kind == "" {
		kind = env.Type
	}
	if !strings.EqualFold(kind, "trade") {
		return
	}

	var apiTrade polymarket.APITrade
	if err := json.Unmarshal(raw, &apiTrade); err != nil {
		f.logger.Warn("user feed: bad trade frame", slog.String("error", err.Error()))
		return
	}

	rec := apiTrade.ToDomain()
	if f.ingestor.Ingest(ctx, rec) {
		f.logger.Debug("user feed trade copied", slog.String("trade", rec.Identity()))
	}
}
