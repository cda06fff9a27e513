package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leafsii/collateral-engine/internal/oracle"
)

const (
	BinanceRestAPI = "https://api.binance.com"
	BinanceWS      = "wss://stream.binance.com:9443/ws"

	// Decimals is the precision of the rounds this feed produces
	Decimals = 8
)

// Feed serves oracle rounds from Binance spot prices. REST lookups for the
// same symbol are coalesced; trades received over Stream take precedence
// over REST while they are fresh.
type Feed struct {
	logger   *zap.SugaredLogger
	client   *http.Client
	registry *oracle.Registry
	restURL  string
	wsURL    string
	maxTrade time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	health oracle.ProviderHealth
	trades map[string]oracle.Round
	rounds map[string]uint64
}

type Option func(*Feed)

// WithEndpoints overrides the REST and websocket base URLs
func WithEndpoints(restURL, wsURL string) Option {
	return func(f *Feed) {
		f.restURL = strings.TrimRight(restURL, "/")
		f.wsURL = strings.TrimRight(wsURL, "/")
	}
}

// WithTradeFreshness sets how long a streamed trade is preferred over REST
func WithTradeFreshness(d time.Duration) Option {
	return func(f *Feed) { f.maxTrade = d }
}

// NewFeed creates a new Binance feed
func NewFeed(logger *zap.SugaredLogger, registry *oracle.Registry, opts ...Option) *Feed {
	f := &Feed{
		logger:   logger,
		registry: registry,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		restURL:  BinanceRestAPI,
		wsURL:    BinanceWS,
		maxTrade: 30 * time.Second,
		health: oracle.ProviderHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
		trades: make(map[string]oracle.Round),
		rounds: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the provider identifier
func (f *Feed) Name() string {
	return "binance"
}

// Health returns current provider health status
func (f *Feed) Health() oracle.ProviderHealth {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.health
}

func (f *Feed) updateHealth(healthy bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.health.Healthy = healthy
	if healthy {
		f.health.LastSuccess = time.Now()
		f.health.LastError = ""
	} else if err != nil {
		f.health.LastError = err.Error()
	}
}

// LatestRound returns the freshest known price for feedID
func (f *Feed) LatestRound(ctx context.Context, feedID string) (oracle.Round, error) {
	symbol, err := f.registry.ProviderSymbol(feedID)
	if err != nil {
		return oracle.Round{}, err
	}

	f.mu.RLock()
	trade, ok := f.trades[symbol]
	f.mu.RUnlock()
	if ok && time.Since(trade.UpdatedAt) <= f.maxTrade {
		return trade, nil
	}

	v, err, _ := f.group.Do(symbol, func() (interface{}, error) {
		return f.fetchTicker(ctx, symbol)
	})
	if err != nil {
		return oracle.Round{}, err
	}
	return v.(oracle.Round), nil
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *Feed) fetchTicker(ctx context.Context, symbol string) (oracle.Round, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	requestURL := fmt.Sprintf("%s/api/v3/ticker/price?%s", f.restURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		f.updateHealth(false, err)
		return oracle.Round{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.updateHealth(false, err)
		return oracle.Round{}, fmt.Errorf("failed to fetch from Binance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("binance API error: %d", resp.StatusCode)
		f.updateHealth(false, err)
		return oracle.Round{}, err
	}

	var ticker tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		f.updateHealth(false, err)
		return oracle.Round{}, fmt.Errorf("failed to decode response: %w", err)
	}

	answer, err := toAnswer(ticker.Price)
	if err != nil {
		f.updateHealth(false, err)
		return oracle.Round{}, err
	}

	f.updateHealth(true, nil)
	round := f.nextRound(symbol, answer, time.Now())
	f.logger.Debugw("Fetched ticker from Binance", "symbol", symbol, "price", ticker.Price)
	return round, nil
}

func (f *Feed) nextRound(symbol string, answer *big.Int, at time.Time) oracle.Round {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[symbol]++
	return oracle.Round{
		RoundID:   f.rounds[symbol],
		Answer:    answer,
		Decimals:  Decimals,
		UpdatedAt: at,
	}
}

func toAnswer(price string) (*big.Int, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", oracle.ErrInvalidPrice, price)
	}
	return d.Shift(Decimals).Truncate(0).BigInt(), nil
}

// Trade represents a trade message from the Binance websocket
type Trade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// Stream keeps the trade cache warm for every symbol until ctx is done,
// reconnecting with backoff
func (f *Feed) Stream(ctx context.Context, symbols []string) {
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			backoff := time.Second
			for {
				err := f.subscribe(ctx, symbol)
				if ctx.Err() != nil {
					return
				}
				f.logger.Warnw("Binance stream dropped", "symbol", symbol, "error", err, "retry_in", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
			}
		}(symbol)
	}
	wg.Wait()
}

func (f *Feed) subscribe(ctx context.Context, symbol string) error {
	wsURL := fmt.Sprintf("%s/%s@trade", f.wsURL, strings.ToLower(symbol))

	f.logger.Infow("Connecting to Binance WebSocket", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		f.updateHealth(false, err)
		return fmt.Errorf("failed to connect to Binance WebSocket: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.updateHealth(true, nil)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			f.updateHealth(false, err)
			f.mu.Lock()
			f.health.Reconnects++
			f.mu.Unlock()
			return fmt.Errorf("WebSocket read error: %w", err)
		}

		var trade Trade
		if err := json.Unmarshal(message, &trade); err != nil {
			f.logger.Warnw("Failed to parse trade message", "error", err, "message", string(message))
			continue
		}

		answer, err := toAnswer(trade.Price)
		if err != nil || answer.Sign() <= 0 {
			f.logger.Warnw("Failed to parse trade price", "error", err, "price", trade.Price)
			continue
		}

		round := f.nextRound(symbol, answer, time.UnixMilli(trade.EventTime))
		f.mu.Lock()
		f.trades[symbol] = round
		f.mu.Unlock()
		f.updateHealth(true, nil)
	}
}
