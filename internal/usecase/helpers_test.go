package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"storefront/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// HTTPErrorの実装詳細に依存しない
func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

// ステータスと種類をまとめて確認
func assertKind(t *testing.T, err error, status int, kind error) {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "not HTTPError: %v", err)
	assert.Equal(t, status, he.Status, "err=%v", err)
	assert.True(t, errors.Is(err, kind), "err=%v want kind %v", err, kind)
}

type OrderLockMock struct{ mock.Mock }

func (m *OrderLockMock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *OrderLockMock) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
