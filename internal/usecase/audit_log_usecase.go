package usecase

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type AuditLogUsecase struct {
	audits repo.AuditLogRepository
}

func NewAuditLogUsecase(audits repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{audits: audits}
}

// GET /admin/audit-logs の検索条件
type AuditLogListInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type AuditLogListOutput struct {
	Items  []model.AuditLog `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// 監査ログを新しい順で返す
func (u *AuditLogUsecase) List(ctx context.Context, in AuditLogListInput) (AuditLogListOutput, error) {
	if in.Limit == 0 {
		in.Limit = 50
	}
	if in.Limit < 1 || in.Limit > 200 {
		return AuditLogListOutput{}, invalidInput("invalid limit")
	}
	if in.Offset < 0 {
		return AuditLogListOutput{}, invalidInput("invalid offset")
	}
	if in.ActorUserID != nil && *in.ActorUserID <= 0 {
		return AuditLogListOutput{}, invalidInput("invalid actor_user_id")
	}
	if in.ResourceID != nil && *in.ResourceID <= 0 {
		return AuditLogListOutput{}, invalidInput("invalid resource_id")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return AuditLogListOutput{}, invalidInput("invalid period")
	}

	f := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
		CreatedFrom: in.From,
		CreatedTo:   in.To,
		Limit:       in.Limit,
		Offset:      in.Offset,
	}
	if s := strings.TrimSpace(in.Action); s != "" {
		a, ok := model.ParseAuditAction(s)
		if !ok {
			return AuditLogListOutput{}, invalidInput("invalid action")
		}
		f.Action = &a
	}
	if s := strings.TrimSpace(in.ResourceType); s != "" {
		rt, ok := model.ParseAuditResourceType(s)
		if !ok {
			return AuditLogListOutput{}, invalidInput("invalid resource_type")
		}
		f.ResourceType = &rt
	}

	logs, err := u.audits.List(ctx, f)
	if err != nil {
		return AuditLogListOutput{}, newDBError(err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return AuditLogListOutput{Items: logs, Limit: in.Limit, Offset: in.Offset}, nil
}
