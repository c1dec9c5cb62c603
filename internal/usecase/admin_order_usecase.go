package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/sirupsen/logrus"
)

type AdminOrderUsecase struct {
	tx  repo.TransactionManager
	log logrus.FieldLogger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, log logrus.FieldLogger) *AdminOrderUsecase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminOrderUsecase{tx: tx, log: log}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

type AdminOrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return AdminOrderListOutput{}, invalidInput("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, invalidInput("invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return AdminOrderListOutput{}, invalidInput("invalid status")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return AdminOrderListOutput{}, invalidInput("invalid period")
	}

	out := AdminOrderListOutput{Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return newDBError(err)
		}

		out.Total = total
		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			out.Items = append(out.Items, toOrderOutput(o))
		}
		return nil
	})

	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

// ステータス更新（CANCELLED なら在庫戻し）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, invalidInput("invalid id")
	}

	newStatus, ok := model.ParseOrderStatus(strings.TrimSpace(in.Status))
	if !ok {
		return OrderOutput{}, invalidInput("invalid status")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newKindError(http.StatusNotFound, ErrNotFound, "not found")
		}
		if err != nil {
			return newDBError(err)
		}

		beforeStatus := o.Status
		updated, changed, err := transitionOrder(ctx, r, o, newStatus)
		if err != nil {
			return err
		}
		out = toOrderOutput(updated)

		// すでに同じなら何もしない（200）
		if !changed {
			return nil
		}

		// ★監査ログ（UPDATE_ORDER_STATUS）。ステータス変更と同じtxで書く
		beforeJSON, _ := json.Marshal(map[string]string{"status": string(beforeStatus)})
		afterJSON, _ := json.Marshal(map[string]string{"status": string(newStatus)})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    time.Now(),
		}); err != nil {
			return newDBError(err)
		}

		return nil
	})
	if err != nil {
		u.log.WithError(err).WithFields(logrus.Fields{"admin_id": actorAdminUserID, "order_id": orderID, "to": newStatus}).Info("order status change rejected")
		return OrderOutput{}, err
	}

	u.log.WithFields(logrus.Fields{"admin_id": actorAdminUserID, "order_id": orderID, "status": out.Status}).Info("order status updated")
	return out, nil
}

// 期間パラメータ（RFC3339）。空なら nil
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
