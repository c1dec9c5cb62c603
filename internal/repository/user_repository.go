package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type UserRepository interface {
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (model.User, error)
	// 強制ログアウト。発行済みトークンはこれで全部無効になる
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
