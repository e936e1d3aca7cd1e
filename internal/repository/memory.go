package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// MemoryRepository хранит данные в памяти процесса. Поведение совпадает
// с PostgresRepository; используется без DATABASE_URI и в тестах.
type MemoryRepository struct {
	mu sync.RWMutex

	nextID     int64
	lastNumber int64

	cities    map[int64]model.City
	products  map[int64]model.Product
	districts map[int64]model.District
	assoc     map[model.Association]struct{}
	payments  map[int64]model.PaymentMethod
	users     map[int64]model.User
	orders    map[int64]model.Order
	settings  map[string]string
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cities:    make(map[int64]model.City),
		products:  make(map[int64]model.Product),
		districts: make(map[int64]model.District),
		assoc:     make(map[model.Association]struct{}),
		payments:  make(map[int64]model.PaymentMethod),
		users:     make(map[int64]model.User),
		orders:    make(map[int64]model.Order),
		settings:  make(map[string]string),
	}
}

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

func sortedValues[T any](m map[int64]T, keep func(T) bool) []T {
	keys := make([]int64, 0, len(m))
	for k, v := range m {
		if keep == nil || keep(v) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	res := make([]T, 0, len(keys))
	for _, k := range keys {
		res = append(res, m[k])
	}
	return res
}

func cloneCity(c model.City) model.City {
	c.Aliases = slices.Clone(c.Aliases)
	return c
}

// CreateCity создаёт город с вариантами написания.
func (r *MemoryRepository) CreateCity(_ context.Context, name string, aliases []string) (*model.City, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.cities {
		if c.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrCityExists, name)
		}
	}

	c := model.City{ID: r.id(), Name: name, Aliases: validation.NormalizeAliases(aliases)}
	r.cities[c.ID] = c
	c = cloneCity(c)
	return &c, nil
}

// UpdateCity меняет название и варианты написания города.
func (r *MemoryRepository) UpdateCity(_ context.Context, c model.City) error {
	name, err := validation.NormalizeName(c.Name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cities[c.ID]; !ok {
		return ErrCityNotFound
	}
	for _, other := range r.cities {
		if other.ID != c.ID && other.Name == name {
			return fmt.Errorf("%w: %s", ErrCityExists, name)
		}
	}

	r.cities[c.ID] = model.City{ID: c.ID, Name: name, Aliases: validation.NormalizeAliases(c.Aliases)}
	return nil
}

// GetCity возвращает город по идентификатору.
func (r *MemoryRepository) GetCity(_ context.Context, id int64) (*model.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cities[id]
	if !ok {
		return nil, ErrCityNotFound
	}
	c = cloneCity(c)
	return &c, nil
}

// ListCities возвращает все города.
func (r *MemoryRepository) ListCities(_ context.Context) ([]model.City, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := sortedValues(r.cities, nil)
	for i := range res {
		res[i] = cloneCity(res[i])
	}
	return res, nil
}

// FindCityByNameOrAlias ищет город по названию или варианту написания без учёта регистра.
func (r *MemoryRepository) FindCityByNameOrAlias(_ context.Context, query string) (*model.City, error) {
	key := validation.MatchKey(query)
	if key == "" {
		return nil, ErrCityNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range sortedValues(r.cities, nil) {
		if slices.Contains(validation.CityMatchKeys(c.Name, c.Aliases), key) {
			c = cloneCity(c)
			return &c, nil
		}
	}
	return nil, ErrCityNotFound
}

// DeleteCity удаляет город вместе с районами и их связями с товарами.
func (r *MemoryRepository) DeleteCity(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cities[id]; !ok {
		return ErrCityNotFound
	}
	for did, d := range r.districts {
		if d.CityID == id {
			r.dropDistrictLocked(did)
		}
	}
	delete(r.cities, id)
	return nil
}

func (r *MemoryRepository) dropDistrictLocked(id int64) {
	for a := range r.assoc {
		if a.DistrictID == id {
			delete(r.assoc, a)
		}
	}
	delete(r.districts, id)
}

// CreateProduct создаёт товар.
func (r *MemoryRepository) CreateProduct(_ context.Context, name string, price decimal.Decimal) (*model.Product, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePrice(price); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := model.Product{ID: r.id(), Name: name, Price: price}
	r.products[p.ID] = p
	return &p, nil
}

// UpdateProduct меняет название и цену товара.
func (r *MemoryRepository) UpdateProduct(_ context.Context, p model.Product) error {
	name, err := validation.NormalizeName(p.Name)
	if err != nil {
		return err
	}
	if err := validation.ValidatePrice(p.Price); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[p.ID] = model.Product{ID: p.ID, Name: name, Price: p.Price}
	return nil
}

// GetProduct возвращает товар по идентификатору.
func (r *MemoryRepository) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// ListProducts возвращает все товары каталога.
func (r *MemoryRepository) ListProducts(_ context.Context) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedValues(r.products, nil), nil
}

// ProductsAvailableInCity возвращает товары, привязанные хотя бы к одному району города.
func (r *MemoryRepository) ProductsAvailableInCity(_ context.Context, cityID int64) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make(map[int64]struct{})
	for a := range r.assoc {
		if d, ok := r.districts[a.DistrictID]; ok && d.CityID == cityID {
			available[a.ProductID] = struct{}{}
		}
	}

	return sortedValues(r.products, func(p model.Product) bool {
		_, ok := available[p.ID]
		return ok
	}), nil
}

// DeleteProduct удаляет товар вместе со всеми связями с районами.
func (r *MemoryRepository) DeleteProduct(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return ErrProductNotFound
	}
	for a := range r.assoc {
		if a.ProductID == id {
			delete(r.assoc, a)
		}
	}
	delete(r.products, id)
	return nil
}

// CreateDistrict создаёт район в городе.
func (r *MemoryRepository) CreateDistrict(_ context.Context, cityID int64, name string) (*model.District, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cities[cityID]; !ok {
		return nil, ErrCityNotFound
	}
	d := model.District{ID: r.id(), Name: name, CityID: cityID}
	r.districts[d.ID] = d
	return &d, nil
}

// GetDistrict возвращает район по идентификатору.
func (r *MemoryRepository) GetDistrict(_ context.Context, id int64) (*model.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.districts[id]
	if !ok {
		return nil, ErrDistrictNotFound
	}
	return &d, nil
}

// ListDistricts возвращает районы города.
func (r *MemoryRepository) ListDistricts(_ context.Context, cityID int64) ([]model.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedValues(r.districts, func(d model.District) bool { return d.CityID == cityID }), nil
}

// DistrictsOfferingProduct возвращает районы города, в которых доступен товар.
func (r *MemoryRepository) DistrictsOfferingProduct(_ context.Context, cityID, productID int64) ([]model.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedValues(r.districts, func(d model.District) bool {
		_, ok := r.assoc[model.Association{DistrictID: d.ID, ProductID: productID}]
		return d.CityID == cityID && ok
	}), nil
}

// DeleteDistrict удаляет район вместе со связями с товарами.
func (r *MemoryRepository) DeleteDistrict(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.districts[id]; !ok {
		return ErrDistrictNotFound
	}
	r.dropDistrictLocked(id)
	return nil
}

// AddAssociation делает товар доступным в районе. Возвращает false, если связь уже была.
func (r *MemoryRepository) AddAssociation(_ context.Context, districtID, productID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.addAssociationLocked(districtID, productID)
}

func (r *MemoryRepository) addAssociationLocked(districtID, productID int64) (bool, error) {
	if _, ok := r.districts[districtID]; !ok {
		return false, ErrDistrictNotFound
	}
	if _, ok := r.products[productID]; !ok {
		return false, ErrProductNotFound
	}

	a := model.Association{DistrictID: districtID, ProductID: productID}
	if _, ok := r.assoc[a]; ok {
		return false, nil
	}
	r.assoc[a] = struct{}{}
	return true, nil
}

// RemoveAssociation убирает товар из района. Возвращает false, если связи не было.
func (r *MemoryRepository) RemoveAssociation(_ context.Context, districtID, productID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := model.Association{DistrictID: districtID, ProductID: productID}
	if _, ok := r.assoc[a]; !ok {
		return false, nil
	}
	delete(r.assoc, a)
	return true, nil
}

// CreatePaymentMethod создаёт способ оплаты.
func (r *MemoryRepository) CreatePaymentMethod(_ context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error) {
	pm, err := normalizePaymentMethod(pm)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.payments {
		if other.Code == pm.Code || other.Name == pm.Name {
			return nil, fmt.Errorf("%w: %s", ErrPaymentMethodExists, pm.Code)
		}
	}
	pm.ID = r.id()
	r.payments[pm.ID] = pm
	return &pm, nil
}

func (r *MemoryRepository) paymentByCodeLocked(code string) (model.PaymentMethod, bool) {
	code = validation.MatchKey(code)
	for _, pm := range r.payments {
		if pm.Code == code {
			return pm, true
		}
	}
	return model.PaymentMethod{}, false
}

// GetPaymentMethodByCode возвращает способ оплаты по коду.
func (r *MemoryRepository) GetPaymentMethodByCode(_ context.Context, code string) (*model.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pm, ok := r.paymentByCodeLocked(code)
	if !ok {
		return nil, ErrPaymentMethodNotFound
	}
	return &pm, nil
}

// ListPaymentMethods возвращает способы оплаты; enabledOnly оставляет только включённые.
func (r *MemoryRepository) ListPaymentMethods(_ context.Context, enabledOnly bool) ([]model.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedValues(r.payments, func(pm model.PaymentMethod) bool {
		return pm.Enabled || !enabledOnly
	}), nil
}

// UpdatePaymentRate меняет курс способа оплаты.
func (r *MemoryRepository) UpdatePaymentRate(_ context.Context, code string, rate decimal.Decimal) error {
	if err := validation.ValidateRate(rate); err != nil {
		return err
	}
	return r.updatePaymentMethod(code, func(pm *model.PaymentMethod) { pm.Rate = rate })
}

// UpdatePaymentAddress меняет адрес или реквизиты для оплаты.
func (r *MemoryRepository) UpdatePaymentAddress(_ context.Context, code, address string) error {
	return r.updatePaymentMethod(code, func(pm *model.PaymentMethod) { pm.Address = address })
}

// SetPaymentEnabled включает или выключает способ оплаты.
func (r *MemoryRepository) SetPaymentEnabled(_ context.Context, code string, enabled bool) error {
	return r.updatePaymentMethod(code, func(pm *model.PaymentMethod) { pm.Enabled = enabled })
}

func (r *MemoryRepository) updatePaymentMethod(code string, apply func(pm *model.PaymentMethod)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, ok := r.paymentByCodeLocked(code)
	if !ok {
		return ErrPaymentMethodNotFound
	}
	apply(&pm)
	r.payments[pm.ID] = pm
	return nil
}

// DeletePaymentMethod удаляет способ оплаты без проверки ссылающихся заявок.
func (r *MemoryRepository) DeletePaymentMethod(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, ok := r.paymentByCodeLocked(code)
	if !ok {
		return ErrPaymentMethodNotFound
	}
	delete(r.payments, pm.ID)
	return nil
}

// CreateOrder выделяет следующий номер заявки и сохраняет заявку под одной блокировкой.
func (r *MemoryRepository) CreateOrder(_ context.Context, o model.NewOrder, initialNumber int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	number := max(r.lastNumber+1, initialNumber)
	if _, taken := r.orders[number]; taken {
		return nil, fmt.Errorf("order number %d already allocated", number)
	}
	r.lastNumber = number

	order := model.Order{
		ID:             r.id(),
		Number:         number,
		UserID:         o.UserID,
		ProductID:      o.ProductID,
		CityID:         o.CityID,
		DistrictID:     o.DistrictID,
		PaymentMethod:  o.PaymentMethod,
		AmountBase:     o.AmountBase,
		AmountCurrency: o.AmountCurrency,
		CurrencyCode:   o.CurrencyCode,
		Status:         model.OrderStatusPending,
		CreatedAt:      o.CreatedAt,
		ExpiresAt:      o.ExpiresAt,
		UpdatedAt:      o.CreatedAt,
	}
	r.orders[number] = order
	return &order, nil
}

// GetOrderByNumber возвращает заявку по номеру.
func (r *MemoryRepository) GetOrderByNumber(_ context.Context, number int64) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[number]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

// TransitionOrder переводит заявку из статуса from в статус to, только если текущий статус равен from.
func (r *MemoryRepository) TransitionOrder(_ context.Context, number int64, from, to model.OrderStatus) (bool, error) {
	if err := checkTransition(from, to); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[number]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.orders[number] = o
	return true, nil
}

// ListPendingOrders возвращает заявки в статусе pending в порядке истечения срока оплаты.
func (r *MemoryRepository) ListPendingOrders(_ context.Context) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := sortedValues(r.orders, func(o model.Order) bool { return o.Status == model.OrderStatusPending })
	slices.SortStableFunc(res, func(a, b model.Order) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	return res, nil
}

// OrderStats возвращает сводку по заявкам и пользователям.
func (r *MemoryRepository) OrderStats(_ context.Context) (*model.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := model.Stats{Total: int64(len(r.orders)), Users: int64(len(r.users))}
	for _, o := range r.orders {
		switch o.Status {
		case model.OrderStatusPending:
			s.Pending++
		case model.OrderStatusPaid:
			s.Paid++
		case model.OrderStatusCancelled:
			s.Cancelled++
		}
	}
	for _, u := range r.users {
		if u.Blocked {
			s.BlockedUsers++
		}
	}
	return &s, nil
}

// UpsertUser сохраняет профиль пользователя. Флаг блокировки не меняется.
func (r *MemoryRepository) UpsertUser(_ context.Context, u model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.users[u.ID]
	if !ok {
		existing = model.User{ID: u.ID, CreatedAt: now}
	}
	existing.Username = u.Username
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.UpdatedAt = now
	r.users[u.ID] = existing
	return &existing, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUser(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// SetUserBlocked блокирует или разблокирует пользователя, создавая неизвестного.
func (r *MemoryRepository) SetUserBlocked(_ context.Context, id int64, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	u, ok := r.users[id]
	if !ok {
		u = model.User{ID: id, CreatedAt: now}
	}
	u.Blocked = blocked
	u.UpdatedAt = now
	r.users[id] = u
	return nil
}

// IsUserBlocked сообщает, заблокирован ли пользователь.
func (r *MemoryRepository) IsUserBlocked(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.users[id].Blocked, nil
}

// GetSetting возвращает значение настройки или def.
func (r *MemoryRepository) GetSetting(_ context.Context, key, def string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

// SetSetting сохраняет значение настройки.
func (r *MemoryRepository) SetSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[key] = value
	return nil
}

// ListSettings возвращает все заданные настройки.
func (r *MemoryRepository) ListSettings(_ context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.settings), nil
}

// ExportCatalog выгружает каталог и настройки.
func (r *MemoryRepository) ExportCatalog(_ context.Context) (*model.CatalogSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &model.CatalogSnapshot{
		Cities:         []model.SnapshotCity{},
		Products:       []model.SnapshotProduct{},
		PaymentMethods: sortedValues(r.payments, nil),
		Settings:       maps.Clone(r.settings),
	}
	for _, p := range sortedValues(r.products, nil) {
		snap.Products = append(snap.Products, model.SnapshotProduct{Name: p.Name, Price: p.Price})
	}
	for _, c := range sortedValues(r.cities, nil) {
		sc := model.SnapshotCity{Name: c.Name, Aliases: slices.Clone(c.Aliases), Districts: []model.SnapshotDistrict{}}
		for _, d := range sortedValues(r.districts, func(d model.District) bool { return d.CityID == c.ID }) {
			sd := model.SnapshotDistrict{Name: d.Name}
			for _, p := range sortedValues(r.products, nil) {
				if _, ok := r.assoc[model.Association{DistrictID: d.ID, ProductID: p.ID}]; ok {
					sd.Products = append(sd.Products, p.Name)
				}
			}
			sc.Districts = append(sc.Districts, sd)
		}
		snap.Cities = append(snap.Cities, sc)
	}
	return snap, nil
}

// ImportCatalog загружает каталог. При ошибке хранилище остаётся без изменений.
func (r *MemoryRepository) ImportCatalog(_ context.Context, snap model.CatalogSnapshot) error {
	snap, err := normalizeSnapshot(snap)
	if err != nil {
		return err
	}
	methods := make([]model.PaymentMethod, 0, len(snap.PaymentMethods))
	for _, pm := range snap.PaymentMethods {
		pm, err := normalizePaymentMethod(pm)
		if err != nil {
			return fmt.Errorf("payment method %s: %w", pm.Code, err)
		}
		methods = append(methods, pm)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	backup := r.cloneLocked()
	if err := r.importLocked(snap, methods); err != nil {
		r.restoreLocked(backup)
		return err
	}
	return nil
}

func (r *MemoryRepository) importLocked(snap model.CatalogSnapshot, methods []model.PaymentMethod) error {
	productByName := func(name string) (int64, bool) {
		key := validation.MatchKey(name)
		for _, p := range sortedValues(r.products, nil) {
			if validation.MatchKey(p.Name) == key {
				return p.ID, true
			}
		}
		return 0, false
	}

	for _, p := range snap.Products {
		if id, ok := productByName(p.Name); ok {
			r.products[id] = model.Product{ID: id, Name: r.products[id].Name, Price: p.Price}
			continue
		}
		id := r.id()
		r.products[id] = model.Product{ID: id, Name: p.Name, Price: p.Price}
	}

	for _, c := range snap.Cities {
		var cityID int64
		for _, existing := range r.cities {
			if existing.Name == c.Name {
				cityID = existing.ID
			}
		}
		if cityID == 0 {
			cityID = r.id()
		}
		r.cities[cityID] = model.City{ID: cityID, Name: c.Name, Aliases: c.Aliases}

		for _, d := range c.Districts {
			var districtID int64
			for _, existing := range sortedValues(r.districts, nil) {
				if existing.CityID == cityID && validation.MatchKey(existing.Name) == validation.MatchKey(d.Name) {
					districtID = existing.ID
					break
				}
			}
			if districtID == 0 {
				districtID = r.id()
				r.districts[districtID] = model.District{ID: districtID, Name: d.Name, CityID: cityID}
			}

			for _, name := range d.Products {
				productID, ok := productByName(name)
				if !ok {
					return fmt.Errorf("%w: %s", ErrProductNotFound, name)
				}
				if _, err := r.addAssociationLocked(districtID, productID); err != nil {
					return err
				}
			}
		}
	}

	for _, pm := range methods {
		existing, ok := r.paymentByCodeLocked(pm.Code)
		for _, other := range r.payments {
			if other.Name == pm.Name && other.Code != pm.Code {
				return fmt.Errorf("%w: %s", ErrPaymentMethodExists, pm.Name)
			}
		}
		if ok {
			pm.ID = existing.ID
		} else {
			pm.ID = r.id()
		}
		r.payments[pm.ID] = pm
	}

	for k, v := range snap.Settings {
		r.settings[k] = v
	}
	return nil
}

// cloneLocked копирует состояние для отката неудачного импорта.
func (r *MemoryRepository) cloneLocked() *MemoryRepository {
	c := &MemoryRepository{
		nextID:     r.nextID,
		lastNumber: r.lastNumber,
		cities:     make(map[int64]model.City, len(r.cities)),
		products:   maps.Clone(r.products),
		districts:  maps.Clone(r.districts),
		assoc:      maps.Clone(r.assoc),
		payments:   maps.Clone(r.payments),
		users:      maps.Clone(r.users),
		orders:     maps.Clone(r.orders),
		settings:   maps.Clone(r.settings),
	}
	for k, v := range r.cities {
		c.cities[k] = cloneCity(v)
	}
	return c
}

func (r *MemoryRepository) restoreLocked(b *MemoryRepository) {
	r.nextID = b.nextID
	r.lastNumber = b.lastNumber
	r.cities = b.cities
	r.products = b.products
	r.districts = b.districts
	r.assoc = b.assoc
	r.payments = b.payments
	r.users = b.users
	r.orders = b.orders
	r.settings = b.settings
}

// Close ничего не делает; нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}
