package usecase

import (
	"context"
	"net/http"
	"sort"

	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// 注文1行ぶんの在庫要求
type StockLine struct {
	ProductID int64
	VariantID int64
	Quantity  int64
}

// 減算済みの在庫。Release で戻せる
type StockReservation struct {
	inventory repo.InventoryRepository
	lines     []StockLine
}

func (r *StockReservation) Lines() []StockLine {
	return r.lines
}

// 減算した行をすべて戻す。途中で失敗しても残りは戻し続ける
func (r *StockReservation) Release(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var first error
	for _, l := range r.lines {
		if err := r.inventory.IncreaseVariantStock(ctx, l.VariantID, l.Quantity); err != nil && first == nil {
			first = errors.Wrapf(err, "release variant=%d qty=%d", l.VariantID, l.Quantity)
		}
	}
	r.lines = nil
	return first
}

type StockLedger struct {
	log logrus.FieldLogger
}

func NewStockLedger(log logrus.FieldLogger) *StockLedger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StockLedger{log: log}
}

// 全行の在庫を確認して減らす。1行でも足りなければ何も減っていない状態で返す
func (l *StockLedger) CheckAndReserve(ctx context.Context, inventory repo.InventoryRepository, products repo.ProductRepository, lines []StockLine) (*StockReservation, error) {
	merged, err := mergeStockLines(lines)
	if err != nil {
		return nil, err
	}

	//先に商品/バリアントの存在を全部確認（ここでは在庫に触らない）
	checked := make(map[int64]struct{}, len(merged))
	for _, line := range merged {
		if _, ok := checked[line.ProductID]; ok {
			continue
		}
		p, err := products.FindByID(ctx, line.ProductID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return nil, newKindError(http.StatusNotFound, ErrProductNotFound, "product not found")
		}
		if err != nil {
			return nil, newDBError(err)
		}
		for _, other := range merged {
			if other.ProductID != line.ProductID {
				continue
			}
			if _, ok := p.FindVariant(other.VariantID); !ok {
				return nil, newKindError(http.StatusNotFound, ErrVariantNotFound, "variant not found")
			}
		}
		checked[line.ProductID] = struct{}{}
	}

	//variant id 昇順で減算（ロック順を揃える）
	res := &StockReservation{inventory: inventory}
	for _, line := range merged {
		ok, err := inventory.DecreaseVariantStockIfEnough(ctx, line.VariantID, line.Quantity)
		if err != nil {
			l.release(ctx, res)
			return nil, newDBError(err)
		}
		if !ok {
			l.release(ctx, res)
			return nil, &HTTPError{
				Status:  http.StatusConflict,
				Message: "insufficient stock",
				Err: &InsufficientStockError{
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					Available: l.available(ctx, products, line.VariantID),
					Requested: line.Quantity,
				},
			}
		}
		res.lines = append(res.lines, line)
	}
	return res, nil
}

func (l *StockLedger) release(ctx context.Context, res *StockReservation) {
	n := len(res.lines)
	err := res.Release(context.WithoutCancel(ctx))
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrTxAborted):
		//tx が既に失敗している。rollback で在庫は戻る
		l.log.WithField("lines", n).Debug("stock release skipped, transaction rolls back")
	default:
		l.log.WithError(err).WithField("lines", n).Error("stock release failed")
	}
}

// エラー表示用の現在庫。取れなければ 0
func (l *StockLedger) available(ctx context.Context, products repo.ProductRepository, variantID int64) int64 {
	v, err := products.FindVariantByID(ctx, variantID)
	if err != nil {
		return 0
	}
	return v.Stock
}

// 同じバリアントはまとめて、variant id 昇順に並べる
func mergeStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, invalidInput("no stock lines")
	}
	idx := make(map[int64]int, len(lines))
	merged := make([]StockLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 || line.VariantID <= 0 || line.ProductID <= 0 {
			return nil, invalidInput("invalid stock line")
		}
		if i, ok := idx[line.VariantID]; ok {
			if merged[i].ProductID != line.ProductID {
				return nil, invalidInput("invalid stock line")
			}
			merged[i].Quantity += line.Quantity
			continue
		}
		idx[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].VariantID < merged[j].VariantID })
	return merged, nil
}
