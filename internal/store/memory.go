package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Repository used by tests and the "memory"
// store driver. A single mutex serializes every call and every unit of work,
// so conditional stock updates are trivially atomic.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time

	// tx marks the view handed to an InTx callback; the root mutex is
	// already held and writes go to the root's data.
	tx   bool
	root *MemoryStore
}

type memData struct {
	seq           int64
	products      map[int64]models.Product
	variants      map[int64]models.Variant
	resellers     map[int64]models.Reseller
	orders        map[int64]models.Order
	transactions  map[int64]models.Transaction
	roles         map[int64]models.Role
	users         map[int64]models.User
	settings      map[string]models.Setting
	notifications map[int64]models.Notification
	events        map[string]models.ProcessedEvent
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData(), now: time.Now}
}

// WithClock overrides the timestamp source
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func newMemData() *memData {
	return &memData{
		products:      map[int64]models.Product{},
		variants:      map[int64]models.Variant{},
		resellers:     map[int64]models.Reseller{},
		orders:        map[int64]models.Order{},
		transactions:  map[int64]models.Transaction{},
		roles:         map[int64]models.Role{},
		users:         map[int64]models.User{},
		settings:      map[string]models.Setting{},
		notifications: map[int64]models.Notification{},
		events:        map[string]models.ProcessedEvent{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.seq = d.seq
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.variants {
		c.variants[k] = v
	}
	for k, v := range d.resellers {
		c.resellers[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.roles {
		v.Permissions = append([]string(nil), v.Permissions...)
		c.roles[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	return c
}

func (m *MemoryStore) lock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) db() *memData {
	if m.tx {
		return m.root.data
	}
	return m.data
}

func (m *MemoryStore) nextID() int64 {
	d := m.db()
	d.seq++
	return d.seq
}

// InTx runs fn with exclusive access. On error every write made through the
// callback's repository is discarded.
func (m *MemoryStore) InTx(ctx context.Context, fn func(Repository) error) error {
	if m.tx {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	view := &MemoryStore{now: m.now, tx: true, root: m}
	if err := fn(view); err != nil {
		m.data = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// Catalog

func (m *MemoryStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	defer m.lock()()
	p, ok := m.db().products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Variants = m.variantsOf(id)
	return &p, nil
}

func (m *MemoryStore) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	defer m.lock()()
	out := []models.Product{}
	search := strings.ToLower(filter.Search)
	for _, p := range m.db().products {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		p.Variants = m.variantsOf(p.ID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return pageOf(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, product *models.Product) error {
	defer m.lock()()
	if product.Stock < 0 {
		return fmt.Errorf("%w: products_stock_nonnegative", ErrInsufficientStock)
	}
	product.ID = m.nextID()
	product.CreatedAt = m.now()
	product.UpdatedAt = product.CreatedAt
	stored := *product
	stored.Variants = nil
	m.db().products[product.ID] = stored
	return nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	defer m.lock()()
	cur, ok := m.db().products[product.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = product.Name
	cur.Description = product.Description
	cur.Price = product.Price
	cur.Status = product.Status
	cur.ImageURL = product.ImageURL
	cur.UpdatedAt = m.now()
	product.UpdatedAt = cur.UpdatedAt
	m.db().products[product.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	defer m.lock()()
	d := m.db()
	if _, ok := d.products[id]; !ok {
		return ErrNotFound
	}
	for _, t := range d.transactions {
		if t.ProductID == id {
			return fmt.Errorf("%w: transactions_product_id_fkey", ErrReferenced)
		}
	}
	for vid, v := range d.variants {
		if v.ProductID == id {
			delete(d.variants, vid)
		}
	}
	delete(d.products, id)
	return nil
}

func (m *MemoryStore) GetVariantByID(ctx context.Context, id int64) (*models.Variant, error) {
	defer m.lock()()
	v, ok := m.db().variants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) ListVariants(ctx context.Context, productID int64) ([]models.Variant, error) {
	defer m.lock()()
	return m.variantsOf(productID), nil
}

func (m *MemoryStore) CountVariants(ctx context.Context, productID int64) (int, error) {
	defer m.lock()()
	return len(m.variantsOf(productID)), nil
}

func (m *MemoryStore) variantsOf(productID int64) []models.Variant {
	out := []models.Variant{}
	for _, v := range m.db().variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) CreateVariant(ctx context.Context, variant *models.Variant) error {
	defer m.lock()()
	if _, ok := m.db().products[variant.ProductID]; !ok {
		return fmt.Errorf("%w: variants_product_id_fkey", ErrReferenced)
	}
	if variant.Stock < 0 {
		return fmt.Errorf("%w: variants_stock_nonnegative", ErrInsufficientStock)
	}
	variant.ID = m.nextID()
	variant.CreatedAt = m.now()
	variant.UpdatedAt = variant.CreatedAt
	m.db().variants[variant.ID] = *variant
	return nil
}

func (m *MemoryStore) UpdateVariant(ctx context.Context, variant *models.Variant) error {
	defer m.lock()()
	cur, ok := m.db().variants[variant.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = variant.Name
	cur.Value = variant.Value
	cur.SortOrder = variant.SortOrder
	cur.UpdatedAt = m.now()
	variant.UpdatedAt = cur.UpdatedAt
	m.db().variants[variant.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteVariant(ctx context.Context, id int64) error {
	defer m.lock()()
	d := m.db()
	if _, ok := d.variants[id]; !ok {
		return ErrNotFound
	}
	for _, t := range d.transactions {
		if t.VariantID != nil && *t.VariantID == id {
			return fmt.Errorf("%w: transactions_variant_id_fkey", ErrReferenced)
		}
	}
	delete(d.variants, id)
	return nil
}

func (m *MemoryStore) DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	defer m.lock()()
	p, ok := m.db().products[productID]
	if !ok || p.Stock < quantity {
		return 0, ErrInsufficientStock
	}
	p.Stock -= quantity
	p.UpdatedAt = m.now()
	m.db().products[productID] = p
	return p.Stock, nil
}

func (m *MemoryStore) DecrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	defer m.lock()()
	v, ok := m.db().variants[variantID]
	if !ok || v.Stock < quantity {
		return 0, ErrInsufficientStock
	}
	v.Stock -= quantity
	v.UpdatedAt = m.now()
	m.db().variants[variantID] = v
	return v.Stock, nil
}

func (m *MemoryStore) IncrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	defer m.lock()()
	p, ok := m.db().products[productID]
	if !ok {
		return 0, ErrNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = m.now()
	m.db().products[productID] = p
	return p.Stock, nil
}

func (m *MemoryStore) IncrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	defer m.lock()()
	v, ok := m.db().variants[variantID]
	if !ok {
		return 0, ErrNotFound
	}
	v.Stock += quantity
	v.UpdatedAt = m.now()
	m.db().variants[variantID] = v
	return v.Stock, nil
}

// Resellers

func (m *MemoryStore) GetResellerByID(ctx context.Context, id int64) (*models.Reseller, error) {
	defer m.lock()()
	r, ok := m.db().resellers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) GetResellerByUniqueID(ctx context.Context, uniqueID string) (*models.Reseller, error) {
	defer m.lock()()
	for _, r := range m.db().resellers {
		if r.UniqueID == uniqueID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListResellers(ctx context.Context) ([]models.Reseller, error) {
	defer m.lock()()
	out := []models.Reseller{}
	for _, r := range m.db().resellers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) CreateReseller(ctx context.Context, reseller *models.Reseller) error {
	defer m.lock()()
	for _, r := range m.db().resellers {
		if r.UniqueID == reseller.UniqueID {
			return fmt.Errorf("%w: resellers_unique_id_key", ErrDuplicate)
		}
	}
	reseller.ID = m.nextID()
	reseller.CreatedAt = m.now()
	reseller.UpdatedAt = reseller.CreatedAt
	m.db().resellers[reseller.ID] = *reseller
	return nil
}

func (m *MemoryStore) UpdateReseller(ctx context.Context, reseller *models.Reseller) error {
	defer m.lock()()
	d := m.db()
	cur, ok := d.resellers[reseller.ID]
	if !ok {
		return ErrNotFound
	}
	for id, r := range d.resellers {
		if id != reseller.ID && r.UniqueID == reseller.UniqueID {
			return fmt.Errorf("%w: resellers_unique_id_key", ErrDuplicate)
		}
	}
	cur.Name = reseller.Name
	cur.Phone = reseller.Phone
	cur.UniqueID = reseller.UniqueID
	cur.UpdatedAt = m.now()
	reseller.UpdatedAt = cur.UpdatedAt
	d.resellers[reseller.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteReseller(ctx context.Context, id int64) error {
	defer m.lock()()
	d := m.db()
	if _, ok := d.resellers[id]; !ok {
		return ErrNotFound
	}
	for oid, o := range d.orders {
		if o.ResellerID != nil && *o.ResellerID == id {
			o.ResellerID = nil
			d.orders[oid] = o
		}
	}
	for tid, t := range d.transactions {
		if t.ResellerID != nil && *t.ResellerID == id {
			t.ResellerID = nil
			d.transactions[tid] = t
		}
	}
	delete(d.resellers, id)
	return nil
}

// Orders and transactions

func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	defer m.lock()()
	d := m.db()
	for _, o := range d.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return fmt.Errorf("%w: orders_idempotency_key_key", ErrDuplicate)
		}
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("%w: orders_order_number_key", ErrDuplicate)
		}
	}
	if order.ResellerID != nil {
		if _, ok := d.resellers[*order.ResellerID]; !ok {
			return fmt.Errorf("%w: orders_reseller_id_fkey", ErrReferenced)
		}
	}
	order.ID = m.nextID()
	order.CreatedAt = m.now()
	d.orders[order.ID] = *order
	return nil
}

func (m *MemoryStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer m.lock()()
	o, ok := m.db().orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	defer m.lock()()
	for _, o := range m.db().orders {
		if o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	defer m.lock()()
	d := m.db()
	if _, ok := d.orders[txn.OrderID]; !ok {
		return fmt.Errorf("%w: transactions_order_id_fkey", ErrReferenced)
	}
	if _, ok := d.products[txn.ProductID]; !ok {
		return fmt.Errorf("%w: transactions_product_id_fkey", ErrReferenced)
	}
	if txn.VariantID != nil {
		if _, ok := d.variants[*txn.VariantID]; !ok {
			return fmt.Errorf("%w: transactions_variant_id_fkey", ErrReferenced)
		}
	}
	if txn.Quantity <= 0 {
		return fmt.Errorf("invalid quantity %d", txn.Quantity)
	}
	if txn.Status == "" {
		txn.Status = models.StatusPending
	}
	txn.ID = m.nextID()
	txn.CreatedAt = m.now()
	txn.UpdatedAt = txn.CreatedAt
	stored := *txn
	stored.ProductName, stored.VariantLabel, stored.ResellerName = "", "", ""
	d.transactions[txn.ID] = stored
	return nil
}

func (m *MemoryStore) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	defer m.lock()()
	t, ok := m.db().transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.joinTransaction(&t)
	return &t, nil
}

func (m *MemoryStore) joinTransaction(t *models.Transaction) {
	d := m.db()
	t.ProductName = d.products[t.ProductID].Name
	t.VariantLabel = ""
	if t.VariantID != nil {
		if v, ok := d.variants[*t.VariantID]; ok {
			t.VariantLabel = v.Label()
		}
	}
	t.ResellerName = ""
	if t.ResellerID != nil {
		t.ResellerName = d.resellers[*t.ResellerID].Name
	}
}

func (m *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	defer m.lock()()
	out := []models.Transaction{}
	for _, t := range m.db().transactions {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.ResellerID != nil && (t.ResellerID == nil || *t.ResellerID != *filter.ResellerID) {
			continue
		}
		if filter.OrderID != nil && t.OrderID != *filter.OrderID {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !t.CreatedAt.Before(*filter.To) {
			continue
		}
		m.joinTransaction(&t)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return pageOf(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) UpdateTransactionStatus(ctx context.Context, id int64, from, to models.TransactionStatus, notes *string) error {
	defer m.lock()()
	t, ok := m.db().transactions[id]
	if !ok || t.Status != from {
		return ErrStaleStatus
	}
	t.Status = to
	if notes != nil {
		t.Notes = *notes
	}
	t.UpdatedAt = m.now()
	m.db().transactions[id] = t
	return nil
}

func (m *MemoryStore) UpdateTransactionDetails(ctx context.Context, id int64, customer models.Customer, notes string) error {
	defer m.lock()()
	t, ok := m.db().transactions[id]
	if !ok {
		return ErrNotFound
	}
	t.Customer = customer
	t.Notes = notes
	t.UpdatedAt = m.now()
	m.db().transactions[id] = t
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, id int64) error {
	defer m.lock()()
	if _, ok := m.db().transactions[id]; !ok {
		return ErrNotFound
	}
	delete(m.db().transactions, id)
	return nil
}

func (m *MemoryStore) SummarizeTransactions(ctx context.Context) (*models.DashboardSummary, error) {
	defer m.lock()()
	counts := map[models.TransactionStatus]int64{}
	summary := &models.DashboardSummary{ByStatus: []models.StatusCount{}, Revenue: decimal.Zero}
	for _, t := range m.db().transactions {
		counts[t.Status]++
		summary.TotalTransactions++
		if t.Status == models.StatusCompleted {
			summary.Revenue = summary.Revenue.Add(t.TotalPrice)
		}
	}
	for status, n := range counts {
		summary.ByStatus = append(summary.ByStatus, models.StatusCount{Status: status, Count: n})
	}
	sort.Slice(summary.ByStatus, func(i, j int) bool {
		return summary.ByStatus[i].Status < summary.ByStatus[j].Status
	})
	return summary, nil
}

// Roles and users

func (m *MemoryStore) GetRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	defer m.lock()()
	r, ok := m.db().roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Permissions = append([]string{}, r.Permissions...)
	return &r, nil
}

func (m *MemoryStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	defer m.lock()()
	for _, r := range m.db().roles {
		if r.Name == name {
			r.Permissions = append([]string{}, r.Permissions...)
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	defer m.lock()()
	out := []models.Role{}
	for _, r := range m.db().roles {
		r.Permissions = append([]string{}, r.Permissions...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateRole(ctx context.Context, role *models.Role) error {
	defer m.lock()()
	for _, r := range m.db().roles {
		if r.Name == role.Name {
			return fmt.Errorf("%w: roles_name_key", ErrDuplicate)
		}
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	role.ID = m.nextID()
	role.CreatedAt = m.now()
	role.UpdatedAt = role.CreatedAt
	stored := *role
	stored.Permissions = append([]string{}, role.Permissions...)
	m.db().roles[role.ID] = stored
	return nil
}

func (m *MemoryStore) UpdateRole(ctx context.Context, role *models.Role) error {
	defer m.lock()()
	d := m.db()
	cur, ok := d.roles[role.ID]
	if !ok {
		return ErrNotFound
	}
	for id, r := range d.roles {
		if id != role.ID && r.Name == role.Name {
			return fmt.Errorf("%w: roles_name_key", ErrDuplicate)
		}
	}
	cur.Name = role.Name
	cur.Permissions = append([]string{}, role.Permissions...)
	cur.UpdatedAt = m.now()
	role.UpdatedAt = cur.UpdatedAt
	d.roles[role.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteRole(ctx context.Context, id int64) error {
	defer m.lock()()
	d := m.db()
	if _, ok := d.roles[id]; !ok {
		return ErrNotFound
	}
	for _, u := range d.users {
		if u.RoleID == id {
			return fmt.Errorf("%w: users_role_id_fkey", ErrReferenced)
		}
	}
	delete(d.roles, id)
	return nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	defer m.lock()()
	u, ok := m.db().users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.RoleName = m.db().roles[u.RoleID].Name
	return &u, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	defer m.lock()()
	for _, u := range m.db().users {
		if u.Username == username {
			u.RoleName = m.db().roles[u.RoleID].Name
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	defer m.lock()()
	out := []models.User{}
	for _, u := range m.db().users {
		u.RoleName = m.db().roles[u.RoleID].Name
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	defer m.lock()()
	d := m.db()
	if err := m.checkUser(user); err != nil {
		return err
	}
	user.ID = m.nextID()
	user.CreatedAt = m.now()
	user.UpdatedAt = user.CreatedAt
	d.users[user.ID] = *user
	return nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	defer m.lock()()
	d := m.db()
	cur, ok := d.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if err := m.checkUser(user); err != nil {
		return err
	}
	cur.Username = user.Username
	cur.PasswordHash = user.PasswordHash
	cur.RoleID = user.RoleID
	cur.UpdatedAt = m.now()
	user.UpdatedAt = cur.UpdatedAt
	d.users[user.ID] = cur
	return nil
}

func (m *MemoryStore) checkUser(user *models.User) error {
	d := m.db()
	if _, ok := d.roles[user.RoleID]; !ok {
		return fmt.Errorf("%w: users_role_id_fkey", ErrReferenced)
	}
	for id, u := range d.users {
		if id != user.ID && u.Username == user.Username {
			return fmt.Errorf("%w: users_username_key", ErrDuplicate)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	defer m.lock()()
	if _, ok := m.db().users[id]; !ok {
		return ErrNotFound
	}
	delete(m.db().users, id)
	return nil
}

// Settings, notifications, processed events

func (m *MemoryStore) GetSettings(ctx context.Context) (map[string]string, error) {
	defer m.lock()()
	out := make(map[string]string, len(m.db().settings))
	for k, s := range m.db().settings {
		out[k] = s.Value
	}
	return out, nil
}

func (m *MemoryStore) UpsertSettings(ctx context.Context, values map[string]string) error {
	defer m.lock()()
	now := m.now()
	for k, v := range values {
		m.db().settings[k] = models.Setting{Key: k, Value: v, UpdatedAt: now}
	}
	return nil
}

func (m *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	defer m.lock()()
	for _, existing := range m.db().notifications {
		if existing.EventID == n.EventID {
			return fmt.Errorf("%w: notifications_event_id_key", ErrDuplicate)
		}
	}
	n.ID = m.nextID()
	n.CreatedAt = m.now()
	m.db().notifications[n.ID] = *n
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	defer m.lock()()
	out := []models.Notification{}
	for _, n := range m.db().notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return pageOf(out, limit, offset), nil
}

func (m *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer m.lock()()
	_, ok := m.db().events[eventID]
	return ok, nil
}

func (m *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer m.lock()()
	if _, ok := m.db().events[eventID]; ok {
		return nil
	}
	m.db().events[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: m.now()}
	return nil
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
