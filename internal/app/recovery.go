package app

import (
	"context"
	"fmt"

	"github.com/ramonzeraa/teste-crypto/internal/breaker"
	"github.com/ramonzeraa/teste-crypto/internal/gateway/exchange"
	"github.com/ramonzeraa/teste-crypto/internal/store"
)

// recoveryChecks are the gates a manual resume must pass before trading
// restarts: the venue answers, the balance call works, and the store is
// readable.
func recoveryChecks(ex exchange.Exchange, st store.Store) []breaker.RecoveryCheck {
	return []breaker.RecoveryCheck{
		{
			Name: "exchange_connectivity",
			Run: func(ctx context.Context) error {
				return ex.Ping(ctx)
			},
		},
		{
			Name: "exchange_account",
			Run: func(ctx context.Context) error {
				bal, err := ex.GetBalance(ctx)
				if err != nil {
					return err
				}
				if bal.Total < 0 {
					return fmt.Errorf("negative balance %v", bal.Total)
				}
				return nil
			},
		},
		{
			Name: "store_integrity",
			Run: func(ctx context.Context) error {
				if _, err := st.ListPositions(ctx); err != nil {
					return fmt.Errorf("positions unreadable: %w", err)
				}
				if _, err := st.LoadAccount(ctx); err != nil {
					return fmt.Errorf("account unreadable: %w", err)
				}
				return nil
			},
		},
	}
}
