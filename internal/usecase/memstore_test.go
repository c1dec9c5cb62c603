package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// テスト用のインメモリ実装。atomic=true なら WithinTx は直列化されて、エラーで巻き戻る。
// atomic=false でもカート行のロック（LockByUserID）は tx の終わりまで保持する
type memStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	atomic bool

	// cart id ごとの行ロック。map 自体は mu で守る
	cartLocks map[int64]*sync.Mutex

	nextID    int64
	products  map[int64]model.Product
	variants  map[int64]model.Variant
	carts     map[int64]model.Cart
	cartItems map[int64]model.CartItem
	orders    map[int64]model.Order
	counters  map[string]int64
	addresses map[int64]model.Address

	// 失敗の注入
	failSequence      error
	failCreateOrder   error
	failSubtractItems error
	failIncrease      error
	// 減算の直前に呼ばれる
	beforeDecrease func(variantID int64)
}

func newMemStore() *memStore {
	return &memStore{
		atomic:    true,
		nextID:    1000,
		products:  map[int64]model.Product{},
		variants:  map[int64]model.Variant{},
		carts:     map[int64]model.Cart{},
		cartItems: map[int64]model.CartItem{},
		orders:    map[int64]model.Order{},
		counters:  map[string]int64{},
		addresses: map[int64]model.Address{},
		cartLocks: map[int64]*sync.Mutex{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

type memSnapshot struct {
	nextID    int64
	products  map[int64]model.Product
	variants  map[int64]model.Variant
	carts     map[int64]model.Cart
	cartItems map[int64]model.CartItem
	orders    map[int64]model.Order
	counters  map[string]int64
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		nextID:    s.nextID,
		products:  copyMap(s.products),
		variants:  copyMap(s.variants),
		carts:     copyMap(s.carts),
		cartItems: copyMap(s.cartItems),
		orders:    copyMap(s.orders),
		counters:  copyMap(s.counters),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.products = snap.products
	s.variants = snap.variants
	s.carts = snap.carts
	s.cartItems = snap.cartItems
	s.orders = snap.orders
	s.counters = snap.counters
}

// tx 中に取った行ロック
type memTx struct {
	held map[int64]*sync.Mutex
}

func (t *memTx) unlockAll() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	tx := &memTx{held: map[int64]*sync.Mutex{}}
	defer tx.unlockAll()

	if !s.atomic {
		return fn(memTxRepos{s: s, tx: tx})
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(memTxRepos{s: s, tx: tx}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) cartLock(cartID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.cartLocks[cartID]
	if !ok {
		l = &sync.Mutex{}
		s.cartLocks[cartID] = l
	}
	return l
}

// ---- seed helpers ----

func (s *memStore) addProduct(name string, variants ...model.Variant) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Product{ID: s.id(), Name: name, IsActive: true}
	for _, v := range variants {
		v.ProductID = p.ID
		if v.ID == 0 {
			v.ID = s.id()
		}
		s.variants[v.ID] = v
		p.Variants = append(p.Variants, v)
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addToCart(userID int64, p model.Product, v model.Variant, qty int64) model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cart model.Cart
	for _, c := range s.carts {
		if c.UserID == userID {
			cart = c
		}
	}
	if cart.ID == 0 {
		cart = model.Cart{ID: s.id(), UserID: userID}
		s.carts[cart.ID] = cart
	}
	it := model.CartItem{
		ID:            s.id(),
		CartID:        cart.ID,
		ProductID:     p.ID,
		VariantID:     v.ID,
		Quantity:      qty,
		NameSnapshot:  p.Name,
		PriceSnapshot: v.Price,
		SizeSnapshot:  v.Size,
		ColorSnapshot: v.Color,
	}
	s.cartItems[it.ID] = it
	return it
}

func (s *memStore) stock(variantID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variants[variantID].Stock
}

func (s *memStore) cartItemCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.cartItems {
		if c, ok := s.carts[it.CartID]; ok && c.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) orderList() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- TxRepos ----

type memTxRepos struct {
	s  *memStore
	tx *memTx
}

func (r memTxRepos) Orders() repo.OrderRepository        { return memOrders{r.s} }
func (r memTxRepos) Carts() repo.CartRepository          { return memTxCarts{memCarts{r.s}, r.tx} }
func (r memTxRepos) CartItems() repo.CartItemRepository  { return memCarts{r.s} }
func (r memTxRepos) Inventory() repo.InventoryRepository { return memInventory{r.s} }
func (r memTxRepos) Products() repo.ProductRepository    { return memProducts{r.s} }
func (r memTxRepos) Sequences() repo.SequenceRepository  { return memSequences{r.s} }
func (r memTxRepos) AuditLogs() repo.AuditLogRepository  { panic("not used") }
func (r memTxRepos) Users() repo.UserRepository          { panic("not used") }

// ---- products ----

type memProducts struct{ s *memStore }

func (m memProducts) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	panic("not used")
}

func (m memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	p.Variants = nil
	for _, v := range m.s.variants {
		if v.ProductID == id {
			p.Variants = append(p.Variants, v)
		}
	}
	sort.Slice(p.Variants, func(i, j int) bool { return p.Variants[i].ID < p.Variants[j].ID })
	return p, nil
}

func (m memProducts) FindVariantByID(ctx context.Context, variantID int64) (model.Variant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	v, ok := m.s.variants[variantID]
	if !ok {
		return model.Variant{}, repo.ErrNotFound
	}
	return v, nil
}

func (m memProducts) Create(ctx context.Context, p model.Product) (model.Product, error) {
	panic("not used")
}

func (m memProducts) Update(ctx context.Context, p model.Product) error { panic("not used") }

func (m memProducts) SoftDelete(ctx context.Context, id int64) error { panic("not used") }

// ---- inventory ----

type memInventory struct{ s *memStore }

func (m memInventory) SetVariantStock(ctx context.Context, variantID int64, newStock int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	v, ok := m.s.variants[variantID]
	if !ok {
		return repo.ErrNotFound
	}
	v.Stock = newStock
	m.s.variants[variantID] = v
	return nil
}

func (m memInventory) DecreaseVariantStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error) {
	if m.s.beforeDecrease != nil {
		m.s.beforeDecrease(variantID)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	v, ok := m.s.variants[variantID]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	m.s.variants[variantID] = v
	return true, nil
}

func (m memInventory) IncreaseVariantStock(ctx context.Context, variantID int64, qty int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failIncrease != nil {
		return m.s.failIncrease
	}
	v, ok := m.s.variants[variantID]
	if !ok {
		return repo.ErrNotFound
	}
	v.Stock += qty
	m.s.variants[variantID] = v
	return nil
}

func (m memInventory) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return nil
}

// ---- carts ----

type memCarts struct{ s *memStore }

func (m memCarts) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if c, err := m.FindByUserID(ctx, userID); err == nil {
		return c, nil
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c := model.Cart{ID: m.s.id(), UserID: userID}
	m.s.carts[c.ID] = c
	return c, nil
}

func (m memCarts) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.carts {
		if c.UserID == userID {
			return c, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

// tx の外ではロックしない
func (m memCarts) LockByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	return m.FindByUserID(ctx, userID)
}

func (m memCarts) SubtractItems(ctx context.Context, cartID int64, used []repo.CartItemUsage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failSubtractItems != nil {
		return m.s.failSubtractItems
	}
	for _, u := range used {
		it, ok := m.s.cartItems[u.CartItemID]
		if !ok || it.CartID != cartID {
			continue
		}
		it.Quantity -= u.Quantity
		if it.Quantity <= 0 {
			delete(m.s.cartItems, u.CartItemID)
			continue
		}
		m.s.cartItems[u.CartItemID] = it
	}
	return nil
}

// tx の中のカート。LockByUserID は tx が終わるまで行ロックを持つ
type memTxCarts struct {
	memCarts
	tx *memTx
}

func (m memTxCarts) LockByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	c, err := m.FindByUserID(ctx, userID)
	if err != nil {
		return model.Cart{}, err
	}
	if _, ok := m.tx.held[c.ID]; !ok {
		l := m.s.cartLock(c.ID)
		l.Lock()
		m.tx.held[c.ID] = l
	}
	return c, nil
}

func (m memCarts) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []model.CartItem{}
	for _, it := range m.s.cartItems {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memCarts) UpsertByCartAndVariant(ctx context.Context, item model.CartItem) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, it := range m.s.cartItems {
		if it.CartID == item.CartID && it.VariantID == item.VariantID {
			it.Quantity += item.Quantity
			m.s.cartItems[id] = it
			return nil
		}
	}
	item.ID = m.s.id()
	m.s.cartItems[item.ID] = item
	return nil
}

func (m memCarts) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	m.s.cartItems[cartItemID] = it
	return nil
}

func (m memCarts) DeleteByID(ctx context.Context, cartItemID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.cartItems[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.s.cartItems, cartItemID)
	return nil
}

func (m memCarts) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (m memCarts) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	it, ok := m.s.cartItems[cartItemID]
	if !ok {
		return false, nil
	}
	return m.s.carts[it.CartID].UserID == userID, nil
}

// ---- orders ----

type memOrders struct{ s *memStore }

func (m memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range m.s.orderList() {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (m memOrders) Create(ctx context.Context, order model.Order) (model.Order, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failCreateOrder != nil {
		return model.Order{}, m.s.failCreateOrder
	}
	for _, o := range m.s.orders {
		if o.UserID == order.UserID && o.IdempotencyKey == order.IdempotencyKey {
			return model.Order{}, repo.ErrDuplicateIdempotencyKey
		}
		if o.OrderNumber == order.OrderNumber {
			return model.Order{}, errors.New("duplicate order number")
		}
	}
	order.ID = m.s.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	items := make([]model.OrderItem, len(order.Items))
	for i, it := range order.Items {
		it.ID = m.s.id()
		it.OrderID = order.ID
		items[i] = it
	}
	order.Items = items
	m.s.orders[order.ID] = order
	return order, nil
}

func (m memOrders) UpdateStatusIf(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	m.s.orders[orderID] = o
	return true, nil
}

func (m memOrders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, o := range m.s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (m memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	out := m.s.orderList()
	return out, int64(len(out)), nil
}

func (m memOrders) MarkCartCleared(ctx context.Context, orderID int64, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.CartClearedAt = &at
	m.s.orders[orderID] = o
	return nil
}

func (m memOrders) ListCartClearPending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.s.orderList() {
		if o.CartClearedAt == nil && o.CreatedAt.Before(createdBefore) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m memOrders) ListCartClearPendingByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.s.orderList() {
		if o.CartClearedAt == nil && o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ---- sequences ----

type memSequences struct{ s *memStore }

func (m memSequences) IncrementAndGet(ctx context.Context, name string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failSequence != nil {
		return 0, m.s.failSequence
	}
	m.s.counters[name]++
	return m.s.counters[name], nil
}

// ---- addresses ----

type memAddresses struct{ s *memStore }

func (m memAddresses) Create(ctx context.Context, a model.Address) (model.Address, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a.ID = m.s.id()
	m.s.addresses[a.ID] = a
	return a, nil
}

func (m memAddresses) ListByUserID(ctx context.Context, userID int64) ([]model.Address, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Address
	for _, a := range m.s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m memAddresses) FindByID(ctx context.Context, addressID int64) (model.Address, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.addresses[addressID]
	if !ok {
		return model.Address{}, repo.ErrNotFound
	}
	return a, nil
}

func (m memAddresses) Delete(ctx context.Context, addressID int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.addresses[addressID]; !ok {
		return repo.ErrNotFound
	}
	delete(m.s.addresses, addressID)
	return nil
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	_ repo.TransactionManager = (*memStore)(nil)
	_ repo.AddressRepository  = memAddresses{}
)
