package app

import (
	"context"

	"github.com/neomorfeo/svclife/internal/domain"
)

// HistoryFor returns the instance's audit trail, newest first.
func (c *Controller) HistoryFor(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	if _, err := c.instances.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return c.history.ListHistory(ctx, instanceID)
}
