package domain

// OrderType is the side of an order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// Valid reports whether t is a known side. Unknown sides are tolerated in
// stored data (they contribute nothing to positions) but rejected on input.
func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// Order is an intent to buy or sell shares of an asset. OrderID is assigned
// by the backend; Timestamp is stamped by the client when the order is
// recorded locally, which is not necessarily when the backend matched it.
type Order struct {
	OrderID       int64     `json:"orderId"`
	AssetID       string    `json:"assetId"`
	OrderType     OrderType `json:"orderType"`
	ShareAmount   float64   `json:"shareAmount"`
	PricePerShare Milli     `json:"pricePerShare"`
	Timestamp     int64     `json:"timestamp"` // ms since epoch
}

// MatchedOrder is an executed trade. Shares is always positive; a partial
// sell reduces Shares in place and the record is deleted once it reaches zero.
type MatchedOrder struct {
	OrderID   int64     `json:"orderId"`
	AssetID   string    `json:"assetId"`
	OrderType OrderType `json:"orderType"`
	Buyer     string    `json:"buyer"`
	Seller    string    `json:"seller"`
	Price     Milli     `json:"price"`
	Shares    float64   `json:"shares"`
	Timestamp int64     `json:"timestamp"` // ms since epoch
}

// OrderResult is the backend's answer to a buy or sell submission. A single
// request can produce both an unmatched remainder (PendingOrder) and filled
// trades, so neither field excludes the other.
type OrderResult struct {
	Message      string         `json:"message"`
	OrderID      int64          `json:"orderId"`
	AssetID      string         `json:"assetId"`
	OrderType    OrderType      `json:"orderType"`
	PendingOrder *Order         `json:"pendingOrder"`
	FilledTrades []MatchedOrder `json:"filledTrades"`
}

// PricePoint is one sample of an asset's price history. Series are ordered by
// timestamp ascending; the last point is authoritative for the current price.
type PricePoint struct {
	Timestamp     int64 `json:"timestamp"` // ms since epoch
	PricePerShare Milli `json:"pricePerShare"`
}
