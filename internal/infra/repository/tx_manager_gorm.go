package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders    repo.OrderRepository
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	inventory repo.InventoryRepository
	products  repo.ProductRepository
	sequences repo.SequenceRepository
	auditLogs repo.AuditLogRepository
	users     repo.UserRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository        { return r.orders }
func (r *txReposGorm) Carts() repo.CartRepository          { return r.carts }
func (r *txReposGorm) CartItems() repo.CartItemRepository  { return r.cartItems }
func (r *txReposGorm) Inventory() repo.InventoryRepository { return r.inventory }
func (r *txReposGorm) Products() repo.ProductRepository    { return r.products }
func (r *txReposGorm) Sequences() repo.SequenceRepository  { return r.sequences }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository  { return r.auditLogs }
func (r *txReposGorm) Users() repo.UserRepository          { return r.users }

type TxManagerGorm struct {
	db *gorm.DB
	// nilならcountersテーブル（Tx内）で発番する
	sequences repo.SequenceRepository
}

func NewTxManagerGorm(db *gorm.DB, sequences repo.SequenceRepository) *TxManagerGorm {
	return &TxManagerGorm{db: db, sequences: sequences}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		cart := NewCartGormRepository(tx)
		r := &txReposGorm{
			orders:    NewOrderGormRepository(tx),
			carts:     cart,
			cartItems: cart,
			inventory: NewInventoryGormRepository(tx),
			products:  NewProductGormRepository(tx),
			sequences: tm.sequences,
			auditLogs: NewAuditLogGormRepository(tx),
			users:     NewUserGormRepository(tx),
		}
		if r.sequences == nil {
			r.sequences = NewSequenceGormRepository(tx)
		}
		return fn(r)
	})
}
