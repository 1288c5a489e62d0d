package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/httpclient"
	"github.com/brightspin-gaming/slot-engine/logging"
)

// HTTPGateway talks to the wallet service over HTTP. The wallet applies
// each delta atomically on its side; a debit that would overdraw comes
// back as 409 and maps to ErrInsufficientFunds, everything else non-2xx is
// treated as a transport failure the caller may retry.
type HTTPGateway struct {
	client *httpclient.Client
	logger zerolog.Logger
}

// HTTPGatewayConfig configures the wallet HTTP gateway.
type HTTPGatewayConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	return &HTTPGateway{
		client: httpclient.New(httpclient.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Logger:  cfg.Logger,
		}),
		logger: logging.WithComponent(cfg.Logger, "wallet_gateway"),
	}
}

type balanceResponse struct {
	Data struct {
		Balance decimal.Decimal `json:"balance"`
	} `json:"data"`
}

func (g *HTTPGateway) GetBalance(ctx context.Context, userID string, currency Currency) (decimal.Decimal, error) {
	path := fmt.Sprintf("/wallet/balance?user_id=%s&currency=%s",
		url.QueryEscape(userID), currency)

	var result balanceResponse
	if err := g.client.GetJSON(ctx, path, nil, &result); err != nil {
		return decimal.Zero, fmt.Errorf("get balance for %s: %w", userID, err)
	}
	return result.Data.Balance, nil
}

func (g *HTTPGateway) ApplyDelta(ctx context.Context, userID string, currency Currency, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	body := map[string]interface{}{
		"user_id":  userID,
		"currency": currency,
		"delta":    delta,
		"reason":   reason,
	}

	resp, err := g.client.Post(ctx, "/wallet/delta", body, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply delta for %s: %w", userID, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return decimal.Zero, ErrInsufficientFunds
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("wallet service returned status %d: %s",
			resp.StatusCode, string(resp.Body))
	}

	var result balanceResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("decode delta response: %w", err)
	}

	g.logger.Debug().
		Str("user_id", userID).
		Str("currency", currency.String()).
		Str("delta", delta.String()).
		Str("reason", reason).
		Str("balance", result.Data.Balance.String()).
		Msg("wallet delta applied")

	return result.Data.Balance, nil
}
