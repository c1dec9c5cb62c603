package usecase_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestAuditLogUsecase_List_Invalid(t *testing.T) {
	from := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	cases := []struct {
		name string
		in   usecase.AuditLogListInput
		want string
	}{
		{"limit too large", usecase.AuditLogListInput{Limit: 201}, "invalid limit"},
		{"negative limit", usecase.AuditLogListInput{Limit: -1}, "invalid limit"},
		{"negative offset", usecase.AuditLogListInput{Offset: -1}, "invalid offset"},
		{"actor zero", usecase.AuditLogListInput{ActorUserID: int64Ptr(0)}, "invalid actor_user_id"},
		{"resource id zero", usecase.AuditLogListInput{ResourceID: int64Ptr(0)}, "invalid resource_id"},
		{"unknown action", usecase.AuditLogListInput{Action: "DELETE_ALL"}, "invalid action"},
		{"unknown resource", usecase.AuditLogListInput{ResourceType: "cart"}, "invalid resource_type"},
		{"period reversed", usecase.AuditLogListInput{From: &from, To: &to}, "invalid period"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			audits := new(AdminAuditRepoMock)
			uc := usecase.NewAuditLogUsecase(audits)

			_, err := uc.List(context.Background(), tc.in)
			assertKind(t, err, http.StatusBadRequest, usecase.ErrInvalidInput)
			assertErrContains(t, err, tc.want)
			audits.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestAuditLogUsecase_List_Success(t *testing.T) {
	audits := new(AdminAuditRepoMock)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	audits.On("List", mock.Anything, mock.MatchedBy(func(f repo.AuditLogFilter) bool {
		return f.ActorUserID != nil && *f.ActorUserID == 1 &&
			f.Action != nil && *f.Action == model.AuditActionUpdateOrderStatus &&
			f.ResourceType != nil && *f.ResourceType == model.AuditResourceOrder &&
			f.ResourceID == nil &&
			f.CreatedFrom != nil && f.CreatedFrom.Equal(from) &&
			f.Limit == 50 && f.Offset == 10
	})).Return([]model.AuditLog{
		{ID: 9, ActorUserID: 1, Action: model.AuditActionUpdateOrderStatus, ResourceType: model.AuditResourceOrder, ResourceID: 50},
	}, nil)

	uc := usecase.NewAuditLogUsecase(audits)
	out, err := uc.List(context.Background(), usecase.AuditLogListInput{
		ActorUserID:  int64Ptr(1),
		Action:       "UPDATE_ORDER_STATUS",
		ResourceType: " order ",
		From:         &from,
		Offset:       10,
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(50), out.Items[0].ResourceID)
	assert.Equal(t, 50, out.Limit)
	assert.Equal(t, 10, out.Offset)
	audits.AssertExpectations(t)
}

func TestAuditLogUsecase_List_EmptyAndDBError(t *testing.T) {
	audits := new(AdminAuditRepoMock)
	audits.On("List", mock.Anything, mock.MatchedBy(func(f repo.AuditLogFilter) bool { return f.Offset == 0 })).Return(nil, nil).Once()
	audits.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	uc := usecase.NewAuditLogUsecase(audits)

	out, err := uc.List(context.Background(), usecase.AuditLogListInput{})
	require.NoError(t, err)
	assert.NotNil(t, out.Items)
	assert.Empty(t, out.Items)

	_, err = uc.List(context.Background(), usecase.AuditLogListInput{Offset: 5})
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
}
