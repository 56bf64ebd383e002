// Package assets implements asset tokenization: uploading the supporting
// files, registering the asset with the backend catalog, and mirroring the
// record into the local store.
package assets

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/pkg/logger"
)

// defaultTotalShares is the share count an asset is split into when the
// request does not say otherwise.
const defaultTotalShares = 1000

// Catalog is the slice of the gateway the tokenizer uses.
type Catalog interface {
	CreateAsset(ctx context.Context, asset domain.Asset) (*domain.Asset, error)
}

// Upload is one file attached to a tokenization request.
type Upload struct {
	Filename string
	Content  io.Reader
}

// TokenizeRequest describes the asset a user wants to tokenize.
type TokenizeRequest struct {
	Name              string
	Value             float64
	Description       string
	Type              domain.AssetType
	TotalShares       float64
	Images            []Upload
	OwnershipDocument *Upload
}

// Tokenizer runs the tokenization flow for one user.
type Tokenizer struct {
	uid     string
	catalog Catalog
	objects ObjectStore
	store   ledger.Store
	log     *logrus.Entry
}

// NewTokenizer builds a tokenizer for uid.
func NewTokenizer(uid string, catalog Catalog, objects ObjectStore, store ledger.Store) *Tokenizer {
	return &Tokenizer{
		uid:     uid,
		catalog: catalog,
		objects: objects,
		store:   store,
		log:     logger.WithField("component", "assets").WithField("uid", uid),
	}
}

// Tokenize uploads the request's files, registers the asset with the backend
// and mirrors the created record under assets/{uid}/{key}. Files are uploaded
// before the catalog write so the record never references missing objects.
func (t *Tokenizer) Tokenize(ctx context.Context, req TokenizeRequest) (*domain.Asset, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	totalShares := req.TotalShares
	if totalShares <= 0 {
		totalShares = defaultTotalShares
	}

	asset := domain.Asset{
		Name:          req.Name,
		Value:         req.Value,
		Description:   req.Description,
		Type:          req.Type,
		TotalShares:   totalShares,
		PricePerShare: domain.MilliFromFloat(req.Value / totalShares),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if req.OwnershipDocument != nil {
		url, err := t.objects.Save("documents", req.OwnershipDocument.Filename, req.OwnershipDocument.Content)
		if err != nil {
			return nil, errors.Wrap(err, "upload ownership document")
		}
		asset.OwnershipDocumentURL = url
	}
	for _, img := range req.Images {
		url, err := t.objects.Save("images", img.Filename, img.Content)
		if err != nil {
			return nil, errors.Wrap(err, "upload asset image")
		}
		asset.ImageURLs = append(asset.ImageURLs, url)
	}

	created, err := t.catalog.CreateAsset(ctx, asset)
	if err != nil {
		return nil, err
	}

	key := ledger.NewKey()
	if err := t.store.Put("assets/"+t.uid+"/"+key, created); err != nil {
		return nil, errors.Wrap(err, "mirror asset record")
	}
	t.log.Infof("tokenized %q: value=%v shares=%v pricePerShare=%s",
		created.Name, created.Value, created.TotalShares, created.PricePerShare)
	return created, nil
}

// Mine lists the assets this user has tokenized, in creation order.
func (t *Tokenizer) Mine() ([]domain.Asset, error) {
	records, err := t.store.List("assets/" + t.uid + "/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Asset, 0, len(records))
	for _, rec := range records {
		var a domain.Asset
		if err := json.Unmarshal(rec.Value, &a); err != nil {
			t.log.Warnf("skipping undecodable asset record %s: %v", rec.Key, err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func validate(req TokenizeRequest) error {
	if req.Name == "" {
		return errors.Wrap(domain.ErrValidation, "asset name is empty")
	}
	if req.Value <= 0 {
		return errors.Wrapf(domain.ErrValidation, "asset value %v is not positive", req.Value)
	}
	switch req.Type {
	case domain.AssetTypePhysical:
		if req.OwnershipDocument == nil {
			return errors.Wrap(domain.ErrValidation, "physical assets require an ownership document")
		}
	case domain.AssetTypeDigital:
	default:
		return errors.Wrapf(domain.ErrValidation, "unknown asset type %q", req.Type)
	}
	return nil
}
