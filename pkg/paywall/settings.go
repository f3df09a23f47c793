package paywall

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetPaymentSettings returns the product and price charged at checkout
func (m *Manager) GetPaymentSettings(ctx context.Context) (*PaymentSettings, error) {
	return m.storage.GetPaymentSettings(ctx)
}

// ReplacePaymentSettings swaps the stored settings for a new product/price pair.
// Concurrent replacements are not coordinated; the last one to commit wins.
func (m *Manager) ReplacePaymentSettings(ctx context.Context, productID, priceID string) (*PaymentSettings, error) {
	if productID == "" || priceID == "" {
		return nil, fmt.Errorf("%w: product and price are required", ErrInvalidPaymentSettings)
	}

	settings := &PaymentSettings{
		ID:        uuid.NewString(),
		ProductID: productID,
		PriceID:   priceID,
		CreatedAt: m.now(),
	}
	if err := m.storage.ReplacePaymentSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to replace payment settings: %w", err)
	}

	m.logger().Info("payment settings replaced",
		Field{"settings_id", settings.ID},
		Field{"product_id", productID},
		Field{"price_id", priceID},
	)
	return settings, nil
}
