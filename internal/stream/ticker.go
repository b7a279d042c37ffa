// Package stream maintains a websocket ticker feed so the bot can watch
// quotes move between REST scan cycles.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	wsPath          = "/trade-api/ws/v2"
	reconnBaseDelay = 1 * time.Second
	reconnMaxDelay  = 30 * time.Second
	pingPeriod      = 15 * time.Second
)

// Quote is the latest ticker snapshot for one market, prices in cents.
type Quote struct {
	Ticker    string    `json:"ticker"`
	YesBid    int       `json:"yes_bid"`
	YesAsk    int       `json:"yes_ask"`
	LastPrice int       `json:"last_price"`
	Volume    int       `json:"volume"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TickerStream keeps a live quote cache fed by the exchange's ticker
// channel. The connection is authenticated the same way REST requests are,
// and it reconnects with capped exponential backoff until stopped.
type TickerStream struct {
	url  string
	cred *exchange.Credential

	conn        *websocket.Conn
	mu          sync.RWMutex
	quotes      map[string]Quote
	subs        []string
	nextCmdID   int
	isConnected bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTickerStream(streamURL string, cred *exchange.Credential) *TickerStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &TickerStream{
		url:       streamURL,
		cred:      cred,
		quotes:    make(map[string]Quote),
		subs:      make([]string, 0),
		nextCmdID: 1,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the connection loop in a background goroutine.
func (s *TickerStream) Start() {
	go s.runLoop()
}

// Stop closes the stream.
func (s *TickerStream) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// Subscribe adds market tickers to the subscription list and updates the
// live connection if one is up.
func (s *TickerStream) Subscribe(tickers []string) {
	s.mu.Lock()

	var added []string
	for _, t := range tickers {
		found := false
		for _, existing := range s.subs {
			if existing == t {
				found = true
				break
			}
		}
		if !found {
			s.subs = append(s.subs, t)
			added = append(added, t)
		}
	}
	connected := s.isConnected
	s.mu.Unlock()

	if len(added) > 0 && connected {
		if err := s.sendSubscribe(added); err != nil {
			logger.Error("ticker subscribe failed", "error", err)
		}
	}
}

// Quote returns the latest cached quote for a market.
func (s *TickerStream) Quote(ticker string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ticker]
	return q, ok
}

// Quotes returns a copy of the full quote cache.
func (s *TickerStream) Quotes() map[string]Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Quote, len(s.quotes))
	for k, v := range s.quotes {
		out[k] = v
	}
	return out
}

func (s *TickerStream) runLoop() {
	delay := reconnBaseDelay

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.connect()
		if err != nil {
			logger.Error("stream connection failed", "error", err, "retry_in", delay)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnMaxDelay {
				delay = reconnMaxDelay
			}
			continue
		}

		delay = reconnBaseDelay
		// Stop and the pinger read s.conn from other goroutines, so the
		// field only changes under the lock.
		s.mu.Lock()
		s.conn = conn
		s.isConnected = true
		allSubs := make([]string, len(s.subs))
		copy(allSubs, s.subs)
		s.mu.Unlock()

		if len(allSubs) > 0 {
			if err := s.sendSubscribe(allSubs); err != nil {
				logger.Error("resubscribe failed", "error", err)
				conn.Close()
				s.clearConn()
				continue
			}
		}

		s.readLoop(conn)
		s.clearConn()
	}
}

func (s *TickerStream) clearConn() {
	s.mu.Lock()
	s.conn = nil
	s.isConnected = false
	s.mu.Unlock()
}

func (s *TickerStream) connect() (*websocket.Conn, error) {
	// The stream authenticates with the same signed headers as REST; the
	// signature covers the websocket path. A credential-less stream (public
	// data only) dials bare.
	h := http.Header{}
	if s.cred != nil {
		headers, err := s.cred.AuthHeaders(http.MethodGet, wsPath)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			h.Set(k, v)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.url, h)
	if err != nil {
		return nil, err
	}

	readTimeout := pingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.isConnected || s.conn != conn {
					s.mu.Unlock()
					return
				}
				err := conn.WriteMessage(websocket.PingMessage, []byte{})
				s.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	logger.Info("ticker stream connected", "url", s.url)
	return conn, nil
}

type wsCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type wsMessage struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		YesBid       int    `json:"yes_bid"`
		YesAsk       int    `json:"yes_ask"`
		Price        int    `json:"price"`
		Volume       int    `json:"volume"`
	} `json:"msg"`
}

func (s *TickerStream) sendSubscribe(tickers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("no connection")
	}
	cmd := wsCommand{
		ID:  s.nextCmdID,
		Cmd: "subscribe",
		Params: wsParams{
			Channels:      []string{"ticker"},
			MarketTickers: tickers,
		},
	}
	s.nextCmdID++
	return s.conn.WriteJSON(cmd)
}

func (s *TickerStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	readTimeout := pingPeriod + 10*time.Second

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Error("stream read error", "error", err)
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "ticker" || msg.Msg.MarketTicker == "" {
			continue
		}

		s.mu.Lock()
		s.quotes[msg.Msg.MarketTicker] = Quote{
			Ticker:    msg.Msg.MarketTicker,
			YesBid:    msg.Msg.YesBid,
			YesAsk:    msg.Msg.YesAsk,
			LastPrice: msg.Msg.Price,
			Volume:    msg.Msg.Volume,
			UpdatedAt: time.Now().UTC(),
		}
		s.mu.Unlock()
	}
}
