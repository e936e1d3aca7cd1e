package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderbot/internal/model"
)

// store перечисляет методы, общие для обеих реализаций хранилища.
type store interface {
	CreateCity(ctx context.Context, name string, aliases []string) (*model.City, error)
	UpdateCity(ctx context.Context, c model.City) error
	FindCityByNameOrAlias(ctx context.Context, query string) (*model.City, error)
	DeleteCity(ctx context.Context, id int64) error
	CreateProduct(ctx context.Context, name string, price decimal.Decimal) (*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ProductsAvailableInCity(ctx context.Context, cityID int64) ([]model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateDistrict(ctx context.Context, cityID int64, name string) (*model.District, error)
	ListDistricts(ctx context.Context, cityID int64) ([]model.District, error)
	DistrictsOfferingProduct(ctx context.Context, cityID, productID int64) ([]model.District, error)
	DeleteDistrict(ctx context.Context, id int64) error
	AddAssociation(ctx context.Context, districtID, productID int64) (bool, error)
	RemoveAssociation(ctx context.Context, districtID, productID int64) (bool, error)
	CreatePaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error)
	GetPaymentMethodByCode(ctx context.Context, code string) (*model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, enabledOnly bool) ([]model.PaymentMethod, error)
	UpdatePaymentRate(ctx context.Context, code string, rate decimal.Decimal) error
	SetPaymentEnabled(ctx context.Context, code string, enabled bool) error
	DeletePaymentMethod(ctx context.Context, code string) error
	CreateOrder(ctx context.Context, o model.NewOrder, initialNumber int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number int64) (*model.Order, error)
	TransitionOrder(ctx context.Context, number int64, from, to model.OrderStatus) (bool, error)
	ListPendingOrders(ctx context.Context) ([]model.Order, error)
	OrderStats(ctx context.Context) (*model.Stats, error)
	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	SetUserBlocked(ctx context.Context, id int64, blocked bool) error
	IsUserBlocked(ctx context.Context, id int64) (bool, error)
	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ExportCatalog(ctx context.Context) (*model.CatalogSnapshot, error)
	ImportCatalog(ctx context.Context, snap model.CatalogSnapshot) error
}

const testInitialNumber = 10207903

func newTestOrder(userID int64) model.NewOrder {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.NewOrder{
		UserID:         userID,
		ProductID:      1,
		CityID:         1,
		DistrictID:     1,
		PaymentMethod:  "usdt",
		AmountBase:     decimal.NewFromInt(100),
		AmountCurrency: decimal.NewFromInt(100).DivRound(decimal.RequireFromString("90"), 8),
		CurrencyCode:   "USDT",
		CreatedAt:      now,
		ExpiresAt:      now.Add(30 * time.Minute),
	}
}

// runStoreTests проверяет инварианты каталога и журнала заявок на свежем хранилище.
func runStoreTests(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("order numbers are unique under concurrent burst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 100
		numbers := make(chan int64, n)
		errs := make(chan error, n)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				<-start
				o, err := s.CreateOrder(ctx, newTestOrder(userID), testInitialNumber)
				if err != nil {
					errs <- err
					return
				}
				numbers <- o.Number
			}(int64(i + 1))
		}
		close(start)
		wg.Wait()
		close(numbers)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		seen := make(map[int64]struct{}, n)
		for num := range numbers {
			assert.GreaterOrEqual(t, num, int64(testInitialNumber))
			_, dup := seen[num]
			assert.False(t, dup, "duplicate order number %d", num)
			seen[num] = struct{}{}
		}
		assert.Len(t, seen, n)
	})

	t.Run("order numbers increase monotonically", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber)
		require.NoError(t, err)
		assert.Equal(t, int64(testInitialNumber), first.Number)
		assert.Equal(t, model.OrderStatusPending, first.Status)

		second, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber)
		require.NoError(t, err)
		assert.Greater(t, second.Number, first.Number)

		// Увеличенный начальный номер работает как нижняя граница.
		third, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber+1000)
		require.NoError(t, err)
		assert.Equal(t, int64(testInitialNumber+1000), third.Number)

		fourth, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber)
		require.NoError(t, err)
		assert.Equal(t, third.Number+1, fourth.Number)
	})

	t.Run("only one transition wins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		o, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber)
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			paid    bool
			expired bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			paid, _ = s.TransitionOrder(ctx, o.Number, model.OrderStatusPending, model.OrderStatusPaid)
		}()
		go func() {
			defer wg.Done()
			expired, _ = s.TransitionOrder(ctx, o.Number, model.OrderStatusPending, model.OrderStatusCancelled)
		}()
		wg.Wait()

		assert.True(t, paid != expired, "exactly one transition must win: paid=%v expired=%v", paid, expired)

		got, err := s.GetOrderByNumber(ctx, o.Number)
		require.NoError(t, err)
		if paid {
			assert.Equal(t, model.OrderStatusPaid, got.Status)
		} else {
			assert.Equal(t, model.OrderStatusCancelled, got.Status)
		}

		ok, err := s.TransitionOrder(ctx, o.Number, model.OrderStatusPending, model.OrderStatusCancelled)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transition rejects terminal source and unknown order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.TransitionOrder(ctx, 1, model.OrderStatusPaid, model.OrderStatusCancelled)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = s.TransitionOrder(ctx, 1, model.OrderStatusPending, model.OrderStatusPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = s.TransitionOrder(ctx, 42, model.OrderStatusPending, model.OrderStatusPaid)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetOrderByNumber(ctx, 42)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("pending orders are listed by deadline", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		late := newTestOrder(1)
		late.ExpiresAt = late.CreatedAt.Add(time.Hour)
		a, err := s.CreateOrder(ctx, late, testInitialNumber)
		require.NoError(t, err)

		b, err := s.CreateOrder(ctx, newTestOrder(2), testInitialNumber)
		require.NoError(t, err)

		c, err := s.CreateOrder(ctx, newTestOrder(3), testInitialNumber)
		require.NoError(t, err)
		_, err = s.TransitionOrder(ctx, c.Number, model.OrderStatusPending, model.OrderStatusPaid)
		require.NoError(t, err)

		pending, err := s.ListPendingOrders(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, b.Number, pending[0].Number)
		assert.Equal(t, a.Number, pending[1].Number)
		assert.True(t, pending[1].ExpiresAt.Equal(late.ExpiresAt))

		stats, err := s.OrderStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Total)
		assert.Equal(t, int64(2), stats.Pending)
		assert.Equal(t, int64(1), stats.Paid)
	})

	t.Run("city lookup by name or alias", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		berlin, err := s.CreateCity(ctx, "Berlin", []string{"berlin", " BRL "})
		require.NoError(t, err)
		_, err = s.CreateCity(ctx, "Brlin", []string{"brl"})
		require.NoError(t, err)

		for _, q := range []string{"BERLIN", " berlin ", "brl"} {
			got, err := s.FindCityByNameOrAlias(ctx, q)
			require.NoError(t, err, q)
			assert.Equal(t, berlin.ID, got.ID, q)
		}

		_, err = s.FindCityByNameOrAlias(ctx, "Paris")
		assert.ErrorIs(t, err, ErrCityNotFound)

		_, err = s.CreateCity(ctx, "Berlin", nil)
		assert.ErrorIs(t, err, ErrCityExists)

		berlin.Aliases = []string{"Berolina"}
		require.NoError(t, s.UpdateCity(ctx, *berlin))
		got, err := s.FindCityByNameOrAlias(ctx, "berolina")
		require.NoError(t, err)
		assert.Equal(t, berlin.ID, got.ID)
	})

	t.Run("city lookup with cyrillic names", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		moscow, err := s.CreateCity(ctx, "Москва", []string{"МСК", "moscow"})
		require.NoError(t, err)

		for _, q := range []string{"москва", "МОСКВА", " мск ", "Moscow"} {
			got, err := s.FindCityByNameOrAlias(ctx, q)
			require.NoError(t, err, q)
			assert.Equal(t, moscow.ID, got.ID, q)
		}

		moscow.Name = "Ёлкино"
		moscow.Aliases = []string{"ЁЛКИ"}
		require.NoError(t, s.UpdateCity(ctx, *moscow))
		got, err := s.FindCityByNameOrAlias(ctx, "ёлки")
		require.NoError(t, err)
		assert.Equal(t, moscow.ID, got.ID)

		_, err = s.FindCityByNameOrAlias(ctx, "москва")
		assert.ErrorIs(t, err, ErrCityNotFound)

		snap := model.CatalogSnapshot{
			Products: []model.SnapshotProduct{{Name: "Виджет", Price: decimal.NewFromInt(100)}},
			Cities: []model.SnapshotCity{{
				Name:      "Санкт-Петербург",
				Aliases:   []string{"Питер", "СПБ"},
				Districts: []model.SnapshotDistrict{{Name: "Центр", Products: []string{"ВИДЖЕТ"}}},
			}},
		}
		require.NoError(t, s.ImportCatalog(ctx, snap))
		snap.Cities[0].Districts[0].Name = "центр"
		require.NoError(t, s.ImportCatalog(ctx, snap))

		spb, err := s.FindCityByNameOrAlias(ctx, "питер")
		require.NoError(t, err)
		assert.Equal(t, "Санкт-Петербург", spb.Name)

		districts, err := s.ListDistricts(ctx, spb.ID)
		require.NoError(t, err)
		require.Len(t, districts, 1)
		assert.Equal(t, "Центр", districts[0].Name)

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 1)
		offering, err := s.DistrictsOfferingProduct(ctx, spb.ID, products[0].ID)
		require.NoError(t, err)
		assert.Len(t, offering, 1)
	})

	t.Run("association is idempotent and checks references", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		city, err := s.CreateCity(ctx, "Berlin", nil)
		require.NoError(t, err)
		mitte, err := s.CreateDistrict(ctx, city.ID, "Mitte")
		require.NoError(t, err)
		widget, err := s.CreateProduct(ctx, "Widget", decimal.NewFromInt(100))
		require.NoError(t, err)

		inserted, err := s.AddAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = s.AddAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)
		assert.False(t, inserted)

		_, err = s.AddAssociation(ctx, mitte.ID+1000, widget.ID)
		assert.ErrorIs(t, err, ErrDistrictNotFound)
		_, err = s.AddAssociation(ctx, mitte.ID, widget.ID+1000)
		assert.ErrorIs(t, err, ErrProductNotFound)

		removed, err := s.RemoveAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = s.RemoveAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("product deletion removes availability", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		city, err := s.CreateCity(ctx, "Berlin", nil)
		require.NoError(t, err)
		mitte, err := s.CreateDistrict(ctx, city.ID, "Mitte")
		require.NoError(t, err)
		kreuzberg, err := s.CreateDistrict(ctx, city.ID, "Kreuzberg")
		require.NoError(t, err)
		widget, err := s.CreateProduct(ctx, "Widget", decimal.NewFromInt(100))
		require.NoError(t, err)
		gadget, err := s.CreateProduct(ctx, "Gadget", decimal.NewFromInt(50))
		require.NoError(t, err)

		for _, d := range []int64{mitte.ID, kreuzberg.ID} {
			_, err = s.AddAssociation(ctx, d, widget.ID)
			require.NoError(t, err)
		}
		_, err = s.AddAssociation(ctx, mitte.ID, gadget.ID)
		require.NoError(t, err)

		products, err := s.ProductsAvailableInCity(ctx, city.ID)
		require.NoError(t, err)
		assert.Len(t, products, 2)

		require.NoError(t, s.DeleteProduct(ctx, widget.ID))

		districts, err := s.DistrictsOfferingProduct(ctx, city.ID, widget.ID)
		require.NoError(t, err)
		assert.Empty(t, districts)

		_, err = s.AddAssociation(ctx, mitte.ID, widget.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)

		products, err = s.ProductsAvailableInCity(ctx, city.ID)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, gadget.ID, products[0].ID)

		_, err = s.GetProduct(ctx, widget.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)
		assert.ErrorIs(t, s.DeleteProduct(ctx, widget.ID), ErrProductNotFound)
	})

	t.Run("city deletion cascades to districts but keeps products", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		city, err := s.CreateCity(ctx, "Berlin", []string{"berlin"})
		require.NoError(t, err)
		mitte, err := s.CreateDistrict(ctx, city.ID, "Mitte")
		require.NoError(t, err)
		widget, err := s.CreateProduct(ctx, "Widget", decimal.NewFromInt(100))
		require.NoError(t, err)
		_, err = s.AddAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)

		require.NoError(t, s.DeleteCity(ctx, city.ID))

		_, err = s.FindCityByNameOrAlias(ctx, "berlin")
		assert.ErrorIs(t, err, ErrCityNotFound)

		districts, err := s.ListDistricts(ctx, city.ID)
		require.NoError(t, err)
		assert.Empty(t, districts)

		_, err = s.GetProduct(ctx, widget.ID)
		assert.NoError(t, err)

		_, err = s.CreateDistrict(ctx, city.ID, "Mitte")
		assert.ErrorIs(t, err, ErrCityNotFound)
	})

	t.Run("district deletion removes its associations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		city, err := s.CreateCity(ctx, "Berlin", nil)
		require.NoError(t, err)
		mitte, err := s.CreateDistrict(ctx, city.ID, "Mitte")
		require.NoError(t, err)
		widget, err := s.CreateProduct(ctx, "Widget", decimal.NewFromInt(100))
		require.NoError(t, err)
		_, err = s.AddAssociation(ctx, mitte.ID, widget.ID)
		require.NoError(t, err)

		require.NoError(t, s.DeleteDistrict(ctx, mitte.ID))

		products, err := s.ProductsAvailableInCity(ctx, city.ID)
		require.NoError(t, err)
		assert.Empty(t, products)
		assert.ErrorIs(t, s.DeleteDistrict(ctx, mitte.ID), ErrDistrictNotFound)
	})

	t.Run("rate change keeps quoted amount", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreatePaymentMethod(ctx, model.PaymentMethod{
			Name: "Tether", Code: "USDT", Rate: decimal.RequireFromString("90.0"), Enabled: true,
		})
		require.NoError(t, err)

		o, err := s.CreateOrder(ctx, newTestOrder(1), testInitialNumber)
		require.NoError(t, err)

		err = s.UpdatePaymentRate(ctx, "usdt", decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidRate)

		require.NoError(t, s.UpdatePaymentRate(ctx, "usdt", decimal.RequireFromString("95")))

		pm, err := s.GetPaymentMethodByCode(ctx, "USDT")
		require.NoError(t, err)
		assert.True(t, pm.Rate.Equal(decimal.NewFromInt(95)))

		got, err := s.GetOrderByNumber(ctx, o.Number)
		require.NoError(t, err)
		assert.True(t, got.AmountCurrency.Equal(o.AmountCurrency), "got %s want %s", got.AmountCurrency, o.AmountCurrency)
	})

	t.Run("payment methods are unique and can be disabled", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.CreatePaymentMethod(ctx, model.PaymentMethod{Name: "Tether", Code: "usdt", Rate: decimal.NewFromInt(90), Enabled: true})
		require.NoError(t, err)
		_, err = s.CreatePaymentMethod(ctx, model.PaymentMethod{Name: "Bitcoin", Code: "btc", Rate: decimal.NewFromInt(6000000), Enabled: true})
		require.NoError(t, err)

		_, err = s.CreatePaymentMethod(ctx, model.PaymentMethod{Name: "Other", Code: "usdt", Rate: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, ErrPaymentMethodExists)
		_, err = s.CreatePaymentMethod(ctx, model.PaymentMethod{Name: "Bad", Code: "bad", Rate: decimal.NewFromInt(-1)})
		assert.ErrorIs(t, err, ErrInvalidRate)

		require.NoError(t, s.SetPaymentEnabled(ctx, "btc", false))
		enabled, err := s.ListPaymentMethods(ctx, true)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, "usdt", enabled[0].Code)

		all, err := s.ListPaymentMethods(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, s.DeletePaymentMethod(ctx, "btc"))
		assert.ErrorIs(t, s.DeletePaymentMethod(ctx, "btc"), ErrPaymentMethodNotFound)
		assert.ErrorIs(t, s.SetPaymentEnabled(ctx, "btc", true), ErrPaymentMethodNotFound)
	})

	t.Run("blocked flag survives profile upsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetUserBlocked(ctx, 7, true))

		u, err := s.UpsertUser(ctx, model.User{ID: 7, Username: "alice"})
		require.NoError(t, err)
		assert.True(t, u.Blocked)
		assert.Equal(t, "alice", u.Username)

		blocked, err := s.IsUserBlocked(ctx, 7)
		require.NoError(t, err)
		assert.True(t, blocked)

		blocked, err = s.IsUserBlocked(ctx, 8)
		require.NoError(t, err)
		assert.False(t, blocked)

		stats, err := s.OrderStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Users)
		assert.Equal(t, int64(1), stats.BlockedUsers)
	})

	t.Run("settings fall back to default", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.GetSetting(ctx, "product_icon", "📦")
		require.NoError(t, err)
		assert.Equal(t, "📦", v)

		require.NoError(t, s.SetSetting(ctx, "product_icon", "🎁"))
		v, err = s.GetSetting(ctx, "product_icon", "📦")
		require.NoError(t, err)
		assert.Equal(t, "🎁", v)
	})

	t.Run("catalog import upserts by natural keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		snap := model.CatalogSnapshot{
			Products: []model.SnapshotProduct{{Name: "Widget", Price: decimal.NewFromInt(100)}},
			Cities: []model.SnapshotCity{{
				Name:    "Berlin",
				Aliases: []string{"berlin"},
				Districts: []model.SnapshotDistrict{
					{Name: "Mitte", Products: []string{"Widget"}},
				},
			}},
			PaymentMethods: []model.PaymentMethod{{Name: "Tether", Code: "usdt", Rate: decimal.NewFromInt(90), Enabled: true}},
			Settings:       map[string]string{"operator_link": "https://t.me/operator"},
		}
		require.NoError(t, s.ImportCatalog(ctx, snap))
		// Повторный импорт не создаёт дубликатов.
		require.NoError(t, s.ImportCatalog(ctx, snap))

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, products, 1)

		city, err := s.FindCityByNameOrAlias(ctx, "berlin")
		require.NoError(t, err)
		districts, err := s.DistrictsOfferingProduct(ctx, city.ID, products[0].ID)
		require.NoError(t, err)
		require.Len(t, districts, 1)
		assert.Equal(t, "Mitte", districts[0].Name)

		exported, err := s.ExportCatalog(ctx)
		require.NoError(t, err)
		require.Len(t, exported.Cities, 1)
		require.Len(t, exported.Cities[0].Districts, 1)
		assert.Equal(t, []string{"Widget"}, exported.Cities[0].Districts[0].Products)
		assert.Equal(t, "https://t.me/operator", exported.Settings["operator_link"])
		require.Len(t, exported.PaymentMethods, 1)
		assert.Equal(t, "usdt", exported.PaymentMethods[0].Code)
	})

	t.Run("failed import changes nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.ImportCatalog(ctx, model.CatalogSnapshot{
			Products: []model.SnapshotProduct{{Name: "Widget", Price: decimal.NewFromInt(100)}},
			Cities: []model.SnapshotCity{{
				Name:      "Berlin",
				Districts: []model.SnapshotDistrict{{Name: "Mitte", Products: []string{"Unknown"}}},
			}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrProductNotFound))

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		assert.Empty(t, products)

		_, err = s.FindCityByNameOrAlias(ctx, "Berlin")
		assert.ErrorIs(t, err, ErrCityNotFound)
	})
}
