package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chhaycheu1/future/internal/domain"
	"github.com/chhaycheu1/future/internal/infra"
)

// Binance USDT-M futures REST endpoints.
const (
	MainnetURL = "https://fapi.binance.com"
	TestnetURL = "https://testnet.binancefuture.com"

	maxRetries = 3
)

// BinanceClient is the live Exchange implementation. Requests pass through
// a per-endpoint-class rate limiter and a shared circuit breaker.
type BinanceClient struct {
	baseURL string
	http    *http.Client
	signer  *Signer
	breaker *infra.CircuitBreaker
	logger  *slog.Logger
}

// NewBinanceClient creates a REST client. testnet selects the demo venue.
func NewBinanceClient(apiKey, apiSecret string, testnet bool, logger *slog.Logger) *BinanceClient {
	baseURL := MainnetURL
	if testnet {
		baseURL = TestnetURL
	}
	return &BinanceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		signer:  NewSigner(apiKey, apiSecret),
		breaker: infra.DefaultBreaker("binance-rest"),
		logger:  logger.With(slog.String("component", "exchange")),
	}
}

// Close wipes credentials from memory.
func (c *BinanceClient) Close() {
	c.signer.Wipe()
}

// MarketPrice returns the latest traded price for symbol.
func (c *BinanceClient) MarketPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, infra.MarketLimiter(), "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", resp.Price, err)
	}
	return price, nil
}

// HistoricalCandles returns up to limit closed candles, oldest first.
// The venue's last kline is the still-forming one; it is dropped.
func (c *BinanceClient) HistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	// Request one extra so the trimmed result still honors limit.
	params.Set("limit", strconv.Itoa(limit+1))

	body, err := c.get(ctx, infra.MarketLimiter(), "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode klines: %w", err)
	}
	if len(raw) > 0 {
		raw = raw[:len(raw)-1] // drop the forming candle
	}
	if len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// AccountBalance returns the USDT futures wallet snapshot.
func (c *BinanceClient) AccountBalance(ctx context.Context) (Balance, error) {
	body, err := c.get(ctx, infra.QueryLimiter(), "/fapi/v2/balance", url.Values{}, true)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to fetch balance: %w", err)
	}

	var entries []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return Balance{}, fmt.Errorf("failed to decode balance: %w", err)
	}

	for _, e := range entries {
		if e.Asset != "USDT" {
			continue
		}
		wallet, err := strconv.ParseFloat(e.Balance, 64)
		if err != nil {
			return Balance{}, fmt.Errorf("invalid wallet balance %q: %w", e.Balance, err)
		}
		available, err := strconv.ParseFloat(e.AvailableBalance, 64)
		if err != nil {
			return Balance{}, fmt.Errorf("invalid available balance %q: %w", e.AvailableBalance, err)
		}
		return Balance{Wallet: wallet, Available: available}, nil
	}
	return Balance{}, nil
}

// AllPositions returns open positions with nonzero amounts.
func (c *BinanceClient) AllPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.get(ctx, infra.QueryLimiter(), "/fapi/v2/positionRisk", url.Values{}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}

	var entries []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		Leverage         string `json:"leverage"`
		Notional         string `json:"notional"`
		UnrealizedProfit string `json:"unRealizedProfit"`
		LiquidationPrice string `json:"liquidationPrice"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}

	var positions []domain.Position
	for _, e := range entries {
		amount, _ := strconv.ParseFloat(e.PositionAmt, 64)
		if amount == 0 {
			continue
		}
		side := string(domain.Long)
		if amount < 0 {
			side = string(domain.Short)
			amount = -amount
		}
		entry, _ := strconv.ParseFloat(e.EntryPrice, 64)
		leverage, _ := strconv.Atoi(e.Leverage)
		notional, _ := strconv.ParseFloat(e.Notional, 64)
		pnl, _ := strconv.ParseFloat(e.UnrealizedProfit, 64)
		liq, _ := strconv.ParseFloat(e.LiquidationPrice, 64)

		positions = append(positions, domain.Position{
			Symbol:           e.Symbol,
			Side:             side,
			Amount:           amount,
			EntryPrice:       entry,
			Leverage:         leverage,
			Notional:         notional,
			UnrealizedPnL:    pnl,
			LiquidationPrice: liq,
		})
	}
	return positions, nil
}

// PlaceOrder submits a market order.
func (c *BinanceClient) PlaceOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderAck, error) {
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("invalid order side %q", side)
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))

	body, err := c.signedRequest(ctx, infra.OrderLimiter(), http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s %s order: %w", side, symbol, err)
	}

	var resp struct {
		OrderID int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Side    string `json:"side"`
		Status  string `json:"status"`
		OrigQty string `json:"origQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode order ack: %w", err)
	}
	qty, _ := strconv.ParseFloat(resp.OrigQty, 64)

	c.logger.Info("order placed",
		slog.String("symbol", resp.Symbol),
		slog.String("side", resp.Side),
		slog.Float64("quantity", qty),
		slog.Int64("order_id", resp.OrderID))

	return &OrderAck{
		OrderID:  resp.OrderID,
		Symbol:   resp.Symbol,
		Side:     resp.Side,
		Quantity: qty,
		Status:   resp.Status,
	}, nil
}

// SetLeverage sets the leverage for a symbol.
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	if _, err := c.signedRequest(ctx, infra.QueryLimiter(), http.MethodPost, "/fapi/v1/leverage", params); err != nil {
		return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
	}
	return nil
}

// get performs a GET request, signed when signed is true.
func (c *BinanceClient) get(ctx context.Context, limiter *infra.RateLimiter, path string, params url.Values, signed bool) ([]byte, error) {
	if signed {
		return c.signedRequest(ctx, limiter, http.MethodGet, path, params)
	}
	return c.do(ctx, limiter, http.MethodGet, path, params.Encode(), false)
}

// signedRequest appends the timestamp and signature before dispatch.
func (c *BinanceClient) signedRequest(ctx context.Context, limiter *infra.RateLimiter, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + c.signer.Sign(query)
	return c.do(ctx, limiter, method, path, query, true)
}

func (c *BinanceClient) do(ctx context.Context, limiter *infra.RateLimiter, method, path, query string, signed bool) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(infra.BackoffWithJitter(attempt - 1)):
			}
		}
		if !c.breaker.Allow() {
			return nil, fmt.Errorf("circuit breaker open for %s", path)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.dispatch(ctx, method, path, query, signed)
		if err == nil {
			c.breaker.RecordSuccess()
			return body, nil
		}
		c.breaker.RecordFailure()
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("request failed, retrying",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	return nil, fmt.Errorf("request to %s exhausted retries: %w", path, lastErr)
}

// dispatch performs a single HTTP round trip. The bool reports whether the
// failure is worth retrying: network errors and 5xx are, 4xx are not.
func (c *BinanceClient) dispatch(ctx context.Context, method, path, query string, signed bool) ([]byte, bool, error) {
	fullURL := c.baseURL + path
	var reqBody io.Reader
	if method == http.MethodGet {
		if query != "" {
			fullURL += "?" + query
		}
	} else {
		reqBody = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, false, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(body))
	}
	return body, false, nil
}

// parseKline decodes one raw kline array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(k []any) (domain.Candle, error) {
	if len(k) < 6 {
		return domain.Candle{}, fmt.Errorf("kline too short: %d fields", len(k))
	}
	openMs, ok := k[0].(float64)
	if !ok {
		return domain.Candle{}, fmt.Errorf("invalid open time %v", k[0])
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		s, ok := k[i+1].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("invalid kline field %v", k[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("invalid kline value %q: %w", s, err)
		}
		fields[i] = v
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
