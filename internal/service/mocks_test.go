package service_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"referral-ledger-backend/internal/domain"
)

// MockMailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockPointsRepo
type MockPointsRepo struct {
	mock.Mock
}

func (m *MockPointsRepo) Append(ctx context.Context, entry *domain.PointsEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}
func (m *MockPointsRepo) Exists(ctx context.Context, accountID string, pointType domain.PointType, sourceID string) (bool, error) {
	args := m.Called(ctx, accountID, pointType, sourceID)
	return args.Bool(0), args.Error(1)
}
func (m *MockPointsRepo) Balance(ctx context.Context, accountID string) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockPointsRepo) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.PointsEntry, int, error) {
	args := m.Called(ctx, accountID, page, pageSize)
	return args.Get(0).([]domain.PointsEntry), args.Int(1), args.Error(2)
}
func (m *MockPointsRepo) Summary(ctx context.Context, accountID string) (*domain.PointsSummary, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PointsSummary), args.Error(1)
}

// recordingMailer captures messages for assertions on content.
type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
}

func (r *recordingMailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) messages() []domain.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EmailMessage(nil), r.sent...)
}
