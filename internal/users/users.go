// Package users manages per-user profile records at users/{uid}.
package users

import (
	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/internal/wallet"
)

// Identity names the authenticated user. In this build identity comes from
// configuration; the interface keeps the rest of the module ignorant of that.
type Identity interface {
	UID() string
}

// StaticIdentity is an Identity with a fixed uid.
type StaticIdentity string

func (s StaticIdentity) UID() string { return string(s) }

// Service reads and writes the profile of one user.
type Service struct {
	uid   string
	store ledger.Store
}

// NewService builds a profile service for id.
func NewService(id Identity, store ledger.Store) *Service {
	return &Service{uid: id.UID(), store: store}
}

func (s *Service) path() string { return "users/" + s.uid }

// Save validates and persists the profile. The wallet address, if present, is
// normalized to its checksummed form before it is stored.
func (s *Service) Save(profile domain.UserProfile) error {
	if profile.FullName == "" {
		return errors.Wrap(domain.ErrValidation, "profile needs a full name")
	}
	if profile.WalletAddress != "" {
		normalized, err := wallet.Normalize(profile.WalletAddress)
		if err != nil {
			return err
		}
		profile.WalletAddress = normalized
	}
	return s.store.Put(s.path(), profile)
}

// Load returns the stored profile, or ErrNotFound if none exists yet.
func (s *Service) Load() (*domain.UserProfile, error) {
	var profile domain.UserProfile
	found, err := s.store.Get(s.path(), &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(domain.ErrNotFound, "no profile for %s", s.uid)
	}
	return &profile, nil
}
