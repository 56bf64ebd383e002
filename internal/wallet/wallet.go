// Package wallet abstracts the external wallet connection. Connection
// mechanics live behind Provider; this package only validates and normalizes
// what comes out of it.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
)

// Provider yields the user's wallet address. Implementations wrap whatever
// signer or extension the deployment uses.
type Provider interface {
	Address(ctx context.Context) (string, error)
}

// Normalize validates addr and returns its EIP-55 checksummed form.
func Normalize(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", errors.Wrapf(domain.ErrValidation, "%q is not a valid wallet address", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// StaticProvider serves a fixed, pre-validated address. Used when the address
// comes from configuration instead of a live wallet connection.
type StaticProvider struct {
	addr string
}

// NewStaticProvider validates addr once and serves it thereafter.
func NewStaticProvider(addr string) (*StaticProvider, error) {
	normalized, err := Normalize(addr)
	if err != nil {
		return nil, err
	}
	return &StaticProvider{addr: normalized}, nil
}

func (p *StaticProvider) Address(ctx context.Context) (string, error) {
	return p.addr, nil
}
