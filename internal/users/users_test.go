package users

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/assetdesk/tradefront/internal/domain"
	"github.com/assetdesk/tradefront/internal/ledger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := ledger.OpenBadgerInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(StaticIdentity("u1"), store)
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestService(t)

	profile := domain.UserProfile{
		FullName:      "Ada Lovelace",
		Address:       "12 Crescent Rd",
		WalletAddress: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	}
	if err := s.Save(profile); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.FullName != "Ada Lovelace" {
		t.Fatalf("got=%+v", got)
	}
	if got.WalletAddress != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("wallet address not normalized on save: %s", got.WalletAddress)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Load(); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSaveValidation(t *testing.T) {
	s := newTestService(t)
	if err := s.Save(domain.UserProfile{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty name: want ErrValidation, got %v", err)
	}
	if err := s.Save(domain.UserProfile{FullName: "Ada", WalletAddress: "bogus"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad wallet: want ErrValidation, got %v", err)
	}
}
