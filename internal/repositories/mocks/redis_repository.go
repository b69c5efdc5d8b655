package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRateLimitRepository struct {
	mock.Mock
}

func NewMockRateLimitRepository() *MockRateLimitRepository {
	return &MockRateLimitRepository{}
}

func (m *MockRateLimitRepository) CheckMutationRateLimit(ctx context.Context, ownerKey string) (bool, int, int, error) {
	args := m.Called(ctx, ownerKey)

	return args.Bool(0), args.Int(1), args.Int(2), args.Error(3)
}

type MockMergeGate struct {
	mock.Mock
}

func NewMockMergeGate() *MockMergeGate {
	return &MockMergeGate{}
}

func (m *MockMergeGate) Claim(ctx context.Context, guestSessionID string) (bool, error) {
	args := m.Called(ctx, guestSessionID)

	return args.Bool(0), args.Error(1)
}

func (m *MockMergeGate) Release(ctx context.Context, guestSessionID string) error {
	args := m.Called(ctx, guestSessionID)

	return args.Error(0)
}
