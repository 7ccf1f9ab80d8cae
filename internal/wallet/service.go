package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/p2pcore/internal/allocation"
	"github.com/congo-pay/p2pcore/internal/ledger"
)

const (
	statusActive    = "active"
	defaultCurrency = "NGN"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	currency string
}

// NewService builds a wallet service instance.
func NewService(repo Repository, ledger ledger.Ledger) *Service {
	return &Service{repo: repo, ledger: ledger, currency: defaultCurrency}
}

// WithCurrency sets the currency assigned to wallets created without one.
func (s *Service) WithCurrency(currency string) *Service {
	if currency != "" {
		s.currency = currency
	}
	return s
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

// Create provisions a wallet and its wallet and commission ledger accounts.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	walletID := uuid.New().String()

	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}

	accountCode := fmt.Sprintf("wallet:%s", walletID)
	commissionCode := fmt.Sprintf("commission:%s", walletID)
	for _, code := range []string{accountCode, commissionCode} {
		if err := s.ledger.EnsureAccount(ctx, code); err != nil {
			return Wallet{}, err
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}

	wallet := Wallet{
		ID:                    walletID,
		OwnerID:               input.OwnerID,
		AccountCode:           accountCode,
		CommissionAccountCode: commissionCode,
		Currency:              currency,
		Status:                statusActive,
		CreatedAt:             time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the wallet owned by ownerID.
func (s *Service) GetByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Balance returns both pool balances for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return s.balanceOf(ctx, wallet)
}

// Snapshot reads the owner's pools for allocation, wallet first.
func (s *Service) Snapshot(ctx context.Context, ownerID string) ([]allocation.Pool, error) {
	wallet, err := s.repo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if wallet.Status != statusActive {
		return nil, fmt.Errorf("wallet %s is %s", wallet.ID, wallet.Status)
	}
	bal, err := s.balanceOf(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return []allocation.Pool{
		{Tag: allocation.PoolWallet, Balance: max(bal.Wallet, 0)},
		{Tag: allocation.PoolCommission, Balance: max(bal.Commission, 0)},
	}, nil
}

func (s *Service) balanceOf(ctx context.Context, wallet Wallet) (Balance, error) {
	var walletAmount, commissionAmount int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		amount, err := s.ledger.Balance(gctx, wallet.AccountCode)
		walletAmount = amount
		return err
	})
	g.Go(func() error {
		amount, err := s.ledger.Balance(gctx, wallet.CommissionAccountCode)
		commissionAmount = amount
		return err
	})
	if err := g.Wait(); err != nil {
		return Balance{}, fmt.Errorf("read balances: %w", err)
	}

	return Balance{WalletID: wallet.ID, Wallet: walletAmount, Commission: commissionAmount, AsOf: time.Now().UTC()}, nil
}
