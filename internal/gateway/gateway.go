package gateway

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/pkg/logger"
	"github.com/assetdesk/tradefront/pkg/ratelimit"
)

// PositionFunc returns the caller's derived position for an asset. The sell
// path consults it before any network I/O.
type PositionFunc func(ctx context.Context, assetID string) (float64, error)

// Config is the injected gateway configuration; there is no package-level
// base URL.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// MaxRequestsPerSecond throttles outbound requests. Zero disables
	// throttling.
	MaxRequestsPerSecond int
}

// Client talks to the trading backend. It owns no persisted state: callers
// are responsible for mirroring results into the ledger.
type Client struct {
	http       *resty.Client
	positionOf PositionFunc
	log        *logrus.Entry
}

// NewClient builds a gateway client. positionOf may be nil, in which case
// sells are not position-gated locally (tests use this).
func NewClient(cfg Config, positionOf PositionFunc) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Retries stay at zero: every retry in this module is user-initiated.
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "tradefront")

	if cfg.MaxRequestsPerSecond > 0 {
		bucket := ratelimit.NewTokenBucket(cfg.MaxRequestsPerSecond, cfg.MaxRequestsPerSecond)
		rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return bucket.Wait(req.Context())
		})
	}

	return &Client{
		http:       rc,
		positionOf: positionOf,
		log:        logger.WithField("component", "gateway"),
	}
}

type orderRequest struct {
	OwnerAddress  string       `json:"ownerAddress"`
	AssetID       string       `json:"assetId"`
	ShareAmount   float64      `json:"shareAmount"`
	PricePerShare domain.Milli `json:"pricePerShare"`
}

type cancelRequest struct {
	OrderID   int64            `json:"orderId"`
	AssetID   string           `json:"assetId"`
	OrderType domain.OrderType `json:"orderType"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// SubmitBuy places a buy order. Invalid share amounts short-circuit locally
// with ErrValidation; no request is made.
func (c *Client) SubmitBuy(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error) {
	if err := validateOrderInput(assetID, shares, price); err != nil {
		return nil, err
	}
	return c.submit(ctx, "/api/orders/buy", domain.OrderTypeBuy, orderRequest{
		OwnerAddress:  owner,
		AssetID:       assetID,
		ShareAmount:   shares,
		PricePerShare: price,
	})
}

// SubmitSell places a sell order. On top of the local input validation it is
// gated by the derived position: selling more than currently held fails with
// ErrInsufficientPosition before the backend is contacted.
func (c *Client) SubmitSell(ctx context.Context, assetID string, shares float64, price domain.Milli, owner string) (*domain.OrderResult, error) {
	if err := validateOrderInput(assetID, shares, price); err != nil {
		return nil, err
	}
	if c.positionOf != nil {
		held, err := c.positionOf(ctx, assetID)
		if err != nil {
			return nil, errors.Wrap(err, "derive position")
		}
		if shares > held {
			return nil, errors.Wrapf(domain.ErrInsufficientPosition,
				"sell %v shares of %s with only %v held", shares, assetID, held)
		}
	}
	return c.submit(ctx, "/api/orders/sell", domain.OrderTypeSell, orderRequest{
		OwnerAddress:  owner,
		AssetID:       assetID,
		ShareAmount:   shares,
		PricePerShare: price,
	})
}

func (c *Client) submit(ctx context.Context, endpoint string, side domain.OrderType, req orderRequest) (*domain.OrderResult, error) {
	var result domain.OrderResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(endpoint)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNetwork, "%s %s: %v", side, req.AssetID, err)
	}
	if !resp.IsSuccess() {
		return nil, httpError(resp)
	}
	if result.OrderType == "" {
		result.OrderType = side
	}
	c.log.Infof("%s submitted: asset=%s orderId=%d pending=%v fills=%d",
		side, req.AssetID, result.OrderID, result.PendingOrder != nil, len(result.FilledTrades))
	return &result, nil
}

// Cancel asks the backend to remove a pending order. A backend 404 maps to
// ErrNotFound, which callers treat as already resolved.
func (c *Client) Cancel(ctx context.Context, orderID int64, assetID string, orderType domain.OrderType) (string, error) {
	if !orderType.Valid() {
		return "", errors.Wrapf(domain.ErrValidation, "unknown order type %q", orderType)
	}
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(cancelRequest{OrderID: orderID, AssetID: assetID, OrderType: orderType}).
		SetResult(&out).
		Post("/api/orders/cancel")
	if err != nil {
		return "", errors.Wrapf(domain.ErrNetwork, "cancel order %d: %v", orderID, err)
	}
	if !resp.IsSuccess() {
		return "", httpError(resp)
	}
	c.log.Infof("cancel confirmed: orderId=%d asset=%s", orderID, assetID)
	return out.Message, nil
}

// PriceHistory fetches the ascending price series for an asset. A response
// with zero points fails with ErrEmptyHistory so callers keep their previous
// price instead of rendering garbage.
func (c *Client) PriceHistory(ctx context.Context, assetID string) ([]domain.PricePoint, error) {
	var series []domain.PricePoint
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&series).
		Get(fmt.Sprintf("/api/assets/%s/price-history", assetID))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNetwork, "price history %s: %v", assetID, err)
	}
	if !resp.IsSuccess() {
		return nil, httpError(resp)
	}
	if len(series) == 0 {
		return nil, errors.Wrapf(domain.ErrEmptyHistory, "asset %s", assetID)
	}
	return series, nil
}

func validateOrderInput(assetID string, shares float64, price domain.Milli) error {
	if assetID == "" {
		return errors.Wrap(domain.ErrValidation, "asset id is empty")
	}
	if math.IsNaN(shares) || math.IsInf(shares, 0) || shares <= 0 {
		return errors.Wrapf(domain.ErrValidation, "share amount %v is not a positive finite number", shares)
	}
	if price < 0 {
		return errors.Wrapf(domain.ErrValidation, "price %d is negative", price)
	}
	return nil
}

// httpError converts a non-2xx response into the error taxonomy.
func httpError(resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return errors.Wrapf(domain.ErrNotFound, "backend: %s", body)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.Wrapf(domain.ErrValidation, "backend rejected request: %s", body)
	default:
		return errors.Wrapf(domain.ErrNetwork, "http %d: %s", resp.StatusCode(), body)
	}
}
