package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-ledger-backend/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestPointsService_AppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.AppendRequest
	}{
		{"MissingAccount", domain.AppendRequest{PointType: domain.PointTypePenalty, Points: -1, Description: "x"}},
		{"UnknownType", domain.AppendRequest{AccountID: "T", PointType: "BOGUS", Points: 1, Description: "x"}},
		{"ZeroPoints", domain.AppendRequest{AccountID: "T", PointType: domain.PointTypePenalty, Points: 0, Description: "x"}},
		{"BlankDescription", domain.AppendRequest{AccountID: "T", PointType: domain.PointTypePenalty, Points: -1, Description: "   "}},
		{"KeyedWithoutSource", domain.AppendRequest{AccountID: "T", PointType: domain.PointTypeClientAccepted, Points: 10, Description: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.points.Append(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.store.Entries())
}

func TestPointsService_AppendKeyedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.AppendRequest{
		AccountID: "T", PointType: domain.PointTypeTrainerAccepted, Points: 25,
		Description: "Trainer invitation accepted", SourceID: strPtr("inv-1"),
	}

	entry, created, err := f.points.Append(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, t0, entry.CreatedAt)

	entry, created, err = f.points.Append(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, entry)

	has, err := f.points.HasEntry(ctx, "T", domain.PointTypeTrainerAccepted, "inv-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPointsService_BalanceMatchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := domain.AppendRequest{AccountID: "T", PointType: domain.PointTypeClientAccepted, Points: 10,
				Description: "Client invitation accepted", SourceID: strPtr(fmt.Sprintf("inv-%d", i%5))}
			if i%4 == 0 {
				req = domain.AppendRequest{AccountID: "T", PointType: domain.PointTypePenalty, Points: -3, Description: "late cancel"}
			}
			_, _, err := f.points.Append(ctx, req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	balance, err := f.points.BalanceOf(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, f.ledgerSum("T"), balance)

	summary, err := f.points.Summary(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, balance, summary.Balance)
	assert.Equal(t, 5, summary.ByType[domain.PointTypePenalty].Count)

	entries, total, err := f.points.ListEntries(ctx, "T", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, len(f.store.Entries()), total)
	assert.LessOrEqual(t, len(entries), 20)
}

func TestPointsService_AdminAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account("admin", domain.AccountRoleAdmin)
	f.account("T", domain.AccountRoleTrainer)

	t.Run("Success", func(t *testing.T) {
		entry, err := f.points.AdminAdjust(ctx, "admin", domain.AppendRequest{
			AccountID: "T", PointType: domain.PointTypeCorrection, Points: -5, Description: "duplicate signup",
		})
		require.NoError(t, err)
		assert.Equal(t, -5, entry.Points)
		assert.Equal(t, int64(-5), f.ledgerSum("T"))
	})

	t.Run("NonAdmin", func(t *testing.T) {
		_, err := f.points.AdminAdjust(ctx, "T", domain.AppendRequest{
			AccountID: "T", PointType: domain.PointTypeManualAdjustment, Points: 100, Description: "self grant",
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("SystemTypeRejected", func(t *testing.T) {
		_, err := f.points.AdminAdjust(ctx, "admin", domain.AppendRequest{
			AccountID: "T", PointType: domain.PointTypeBonusRetention, Points: 25, Description: "bonus", SourceID: strPtr("x"),
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		_, err := f.points.AdminAdjust(ctx, "admin", domain.AppendRequest{
			AccountID: "ghost", PointType: domain.PointTypePenalty, Points: -1, Description: "x",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
