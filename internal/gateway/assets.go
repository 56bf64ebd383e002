package gateway

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
)

// ListAssets fetches the full asset catalog.
func (c *Client) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&assets).
		Get("/api/assets")
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNetwork, "list assets: %v", err)
	}
	if !resp.IsSuccess() {
		return nil, httpError(resp)
	}
	return assets, nil
}

// GetAsset fetches a single asset record.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	var asset domain.Asset
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&asset).
		Get(fmt.Sprintf("/api/assets/%s", assetID))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNetwork, "get asset %s: %v", assetID, err)
	}
	if !resp.IsSuccess() {
		return nil, httpError(resp)
	}
	return &asset, nil
}

// CreateAsset registers a newly tokenized asset with the backend catalog and
// returns the created record.
func (c *Client) CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error) {
	if asset.Name == "" || asset.Value <= 0 {
		return nil, errors.Wrap(domain.ErrValidation, "asset needs a name and a positive value")
	}
	var created domain.Asset
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(asset).
		SetResult(&created).
		Post("/api/assets")
	if err != nil {
		return nil, errors.Wrapf(domain.ErrNetwork, "create asset: %v", err)
	}
	if !resp.IsSuccess() {
		return nil, httpError(resp)
	}
	return &created, nil
}
