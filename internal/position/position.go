// Package position derives holdings from the matched-order ledger. A position
// is never stored; it is recomputed from the fill records every time, so the
// ledger stays the single source of truth.
package position

import (
	"github.com/assetdesk/tradefront/internal/domain"
)

// Derive folds matched orders into the net share count for assetID. Buy fills
// add, sell fills subtract. Records for other assets and records with an
// unknown side contribute nothing.
func Derive(assetID string, matched []domain.MatchedOrder) float64 {
	total := 0.0
	for _, trade := range matched {
		if trade.AssetID != assetID {
			continue
		}
		switch trade.OrderType {
		case domain.OrderTypeBuy:
			total += trade.Shares
		case domain.OrderTypeSell:
			total -= trade.Shares
		}
	}
	return total
}

// DeriveAll folds matched orders into per-asset net share counts.
func DeriveAll(matched []domain.MatchedOrder) map[string]float64 {
	totals := make(map[string]float64)
	for _, trade := range matched {
		switch trade.OrderType {
		case domain.OrderTypeBuy:
			totals[trade.AssetID] += trade.Shares
		case domain.OrderTypeSell:
			totals[trade.AssetID] -= trade.Shares
		}
	}
	return totals
}
