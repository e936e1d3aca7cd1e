// Package service реализует жизненный цикл заявок и администрирование каталога.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/metrics"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/scheduler"
)

var (
	// ErrUserBlocked возвращается для заблокированного пользователя до начала оформления заявки.
	ErrUserBlocked = errors.New("user is blocked")
	// ErrProductUnavailable возвращается, если выбранный район не предлагает товар.
	ErrProductUnavailable = errors.New("product is not available in district")
	// ErrPaymentMethodDisabled возвращается для выключенного способа оплаты.
	ErrPaymentMethodDisabled = errors.New("payment method is disabled")
	// ErrForbidden возвращается при обращении к чужой заявке.
	ErrForbidden = errors.New("order belongs to another user")
)

// Ключи настроек и тексты по умолчанию.
const (
	SettingProductIcon           = "product_icon"
	SettingOperatorLink          = "operator_link"
	SettingPaymentSuccessMessage = "payment_success_message"
	SettingOrderTimeoutMessage   = "order_timeout_message"
	SettingPaymentInstruction    = "payment_instruction_"

	DefaultProductIcon           = "📦"
	DefaultPaymentInstruction    = "Переведите указанную сумму"
	DefaultPaymentSuccessMessage = "✅ Спасибо! Мы получили информацию об оплате.\nМы свяжемся с вами в ближайшее время."
	DefaultOrderTimeoutMessage   = "⏰ Время на оплату заявки истекло. Заявка отменена."
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateCity(ctx context.Context, name string, aliases []string) (*model.City, error)
	UpdateCity(ctx context.Context, c model.City) error
	GetCity(ctx context.Context, id int64) (*model.City, error)
	ListCities(ctx context.Context) ([]model.City, error)
	FindCityByNameOrAlias(ctx context.Context, query string) (*model.City, error)
	DeleteCity(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, name string, price decimal.Decimal) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) error
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ProductsAvailableInCity(ctx context.Context, cityID int64) ([]model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateDistrict(ctx context.Context, cityID int64, name string) (*model.District, error)
	GetDistrict(ctx context.Context, id int64) (*model.District, error)
	ListDistricts(ctx context.Context, cityID int64) ([]model.District, error)
	DistrictsOfferingProduct(ctx context.Context, cityID, productID int64) ([]model.District, error)
	DeleteDistrict(ctx context.Context, id int64) error
	AddAssociation(ctx context.Context, districtID, productID int64) (bool, error)
	RemoveAssociation(ctx context.Context, districtID, productID int64) (bool, error)

	CreatePaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error)
	GetPaymentMethodByCode(ctx context.Context, code string) (*model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, enabledOnly bool) ([]model.PaymentMethod, error)
	UpdatePaymentRate(ctx context.Context, code string, rate decimal.Decimal) error
	UpdatePaymentAddress(ctx context.Context, code, address string) error
	SetPaymentEnabled(ctx context.Context, code string, enabled bool) error
	DeletePaymentMethod(ctx context.Context, code string) error

	CreateOrder(ctx context.Context, o model.NewOrder, initialNumber int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number int64) (*model.Order, error)
	TransitionOrder(ctx context.Context, number int64, from, to model.OrderStatus) (bool, error)
	ListPendingOrders(ctx context.Context) ([]model.Order, error)
	OrderStats(ctx context.Context) (*model.Stats, error)

	UpsertUser(ctx context.Context, u model.User) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetUserBlocked(ctx context.Context, id int64, blocked bool) error
	IsUserBlocked(ctx context.Context, id int64) (bool, error)

	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	ExportCatalog(ctx context.Context) (*model.CatalogSnapshot, error)
	ImportCatalog(ctx context.Context, snap model.CatalogSnapshot) error
}

// Scheduler взводит и снимает таймеры истечения срока оплаты.
type Scheduler interface {
	ArmAt(orderNumber int64, deadline time.Time, onExpire func(orderNumber int64)) scheduler.Handle
	Disarm(h scheduler.Handle) bool
}

//go:generate mockgen -destination=../mocks/notifier/notifier.go -package=notifier github.com/mmeshcher/orderbot/internal/service Notifier

// Notifier доставляет сообщения пользователям и администраторам.
type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string) error
	NotifyAdmins(ctx context.Context, text string) error
}

// EventPublisher публикует события жизненного цикла заявок.
type EventPublisher interface {
	Publish(ctx context.Context, e events.OrderEvent) error
}

// Config содержит параметры жизненного цикла заявок.
type Config struct {
	PaymentTimeout     time.Duration
	InitialOrderNumber int64
	AdminIDs           []int64
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents задаёт публикацию событий.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service является единственным компонентом, меняющим статус заявок.
type Service struct {
	repo      Repository
	scheduler Scheduler
	notifier  Notifier
	events    EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	cfg    Config
	admins map[int64]struct{}

	mu      sync.Mutex
	handles map[int64]scheduler.Handle
}

// NewService создаёт сервис.
func NewService(repo Repository, sched Scheduler, notifier Notifier, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		scheduler: sched,
		notifier:  notifier,
		events:    events.NopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
		cfg:       cfg,
		admins:    make(map[int64]struct{}, len(cfg.AdminIDs)),
		handles:   make(map[int64]scheduler.Handle),
	}
	for _, id := range cfg.AdminIDs {
		s.admins[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IsAdmin сообщает, является ли пользователь администратором.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// RegisterUser сохраняет профиль пользователя. Заблокированный пользователь получает ErrUserBlocked.
func (s *Service) RegisterUser(ctx context.Context, u model.User) (*model.User, error) {
	saved, err := s.repo.UpsertUser(ctx, u)
	if err != nil {
		return nil, err
	}
	if saved.Blocked {
		return saved, ErrUserBlocked
	}
	return saved, nil
}

// FindCity ищет город по названию или варианту написания.
func (s *Service) FindCity(ctx context.Context, query string) (*model.City, error) {
	return s.repo.FindCityByNameOrAlias(ctx, query)
}

// ProductsInCity возвращает товары, доступные в городе.
func (s *Service) ProductsInCity(ctx context.Context, cityID int64) ([]model.Product, error) {
	if _, err := s.repo.GetCity(ctx, cityID); err != nil {
		return nil, err
	}
	return s.repo.ProductsAvailableInCity(ctx, cityID)
}

// DistrictsForProduct возвращает районы города, где доступен товар.
func (s *Service) DistrictsForProduct(ctx context.Context, cityID, productID int64) ([]model.District, error) {
	return s.repo.DistrictsOfferingProduct(ctx, cityID, productID)
}

// EnabledPaymentMethods возвращает включённые способы оплаты.
func (s *Service) EnabledPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, true)
}

// GetOrder возвращает заявку по номеру.
func (s *Service) GetOrder(ctx context.Context, number int64) (*model.Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

// GetUserOrder возвращает заявку, только если она принадлежит пользователю.
func (s *Service) GetUserOrder(ctx context.Context, userID, number int64) (*model.Order, error) {
	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}
