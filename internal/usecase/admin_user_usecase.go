package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type AdminUserUsecase struct {
	tx  repo.TransactionManager
	log logrus.FieldLogger
}

func NewAdminUserUsecase(tx repo.TransactionManager, log logrus.FieldLogger) *AdminUserUsecase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminUserUsecase{tx: tx, log: log}
}

type ForceLogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// token_version を上げて、そのユーザーの発行済みトークンを全部無効にする
func (u *AdminUserUsecase) ForceLogout(ctx context.Context, adminUserID int64, targetUserID int64) (ForceLogoutOutput, error) {
	if adminUserID <= 0 {
		return ForceLogoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if targetUserID <= 0 {
		return ForceLogoutOutput{}, invalidInput("invalid user_id")
	}

	var out ForceLogoutOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Users().FindByID(ctx, targetUserID)
		if errors.Is(err, repo.ErrNotFound) {
			return newKindError(http.StatusNotFound, ErrNotFound, "user not found")
		}
		if err != nil {
			return newDBError(err)
		}

		if err := r.Users().IncrementTokenVersion(ctx, targetUserID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return newKindError(http.StatusNotFound, ErrNotFound, "user not found")
			}
			return newDBError(err)
		}

		after, err := r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return newDBError(err)
		}
		out = ForceLogoutOutput{UserID: targetUserID, NewTokenVersion: after.TokenVersion}

		beforeJSON, _ := json.Marshal(map[string]int{"token_version": before.TokenVersion})
		afterJSON, _ := json.Marshal(map[string]int{"token_version": after.TokenVersion})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       model.AuditActionForceLogout,
			ResourceType: model.AuditResourceUser,
			ResourceID:   targetUserID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    time.Now(),
		}); err != nil {
			return newDBError(err)
		}
		return nil
	})
	if err != nil {
		return ForceLogoutOutput{}, err
	}

	u.log.WithFields(logrus.Fields{"admin_id": adminUserID, "user_id": targetUserID, "token_version": out.NewTokenVersion}).Info("user force logged out")
	return out, nil
}
