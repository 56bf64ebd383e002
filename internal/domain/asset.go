package domain

// AssetType distinguishes physical assets (which require an ownership
// document) from digital ones.
type AssetType string

const (
	AssetTypePhysical AssetType = "Physical"
	AssetTypeDigital  AssetType = "Digital"
)

// Asset is a tokenized asset record as submitted by a user and served by the
// backend catalog.
type Asset struct {
	ID                   string    `json:"id,omitempty"`
	Name                 string    `json:"name"`
	Value                float64   `json:"value"`
	Description          string    `json:"description"`
	Type                 AssetType `json:"type"`
	TotalShares          float64   `json:"totalShares"`
	PricePerShare        Milli     `json:"pricePerShare"`
	OwnershipDocumentURL string    `json:"ownershipDocumentURL,omitempty"`
	ImageURLs            []string  `json:"assetImages,omitempty"`
	CreatedAt            string    `json:"createdAt"`
}

// UserProfile is the per-user record kept at users/{uid}.
type UserProfile struct {
	FullName      string `json:"fullName"`
	Address       string `json:"address"`
	IDURL         string `json:"idURL"`
	WalletAddress string `json:"walletAddress"`
}
