package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/events"
	"github.com/mmeshcher/orderbot/internal/model"
)

const (
	amountPrecision   = 8
	sideEffectTimeout = 10 * time.Second
	expireTimeout     = 30 * time.Second
)

// AdminPaidNotification формирует уведомление администраторам об оплаченной заявке.
func AdminPaidNotification(orderNumber int64) string {
	return fmt.Sprintf("✅ Успешный клиент. Заявка № %d", orderNumber)
}

// CreateOrder проверяет выбор пользователя, создаёт заявку в статусе pending
// и взводит таймер истечения срока оплаты.
func (s *Service) CreateOrder(ctx context.Context, sel model.Selection) (*model.OrderReceipt, error) {
	blocked, err := s.repo.IsUserBlocked(ctx, sel.UserID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrUserBlocked
	}

	city, err := s.repo.GetCity(ctx, sel.CityID)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, sel.ProductID)
	if err != nil {
		return nil, err
	}
	district, err := s.repo.GetDistrict(ctx, sel.DistrictID)
	if err != nil {
		return nil, err
	}
	if district.CityID != city.ID {
		return nil, fmt.Errorf("%w: district %d is not in city %d", ErrProductUnavailable, district.ID, city.ID)
	}

	offering, err := s.repo.DistrictsOfferingProduct(ctx, city.ID, product.ID)
	if err != nil {
		return nil, err
	}
	if !containsDistrict(offering, district.ID) {
		return nil, fmt.Errorf("%w: product %d, district %d", ErrProductUnavailable, product.ID, district.ID)
	}

	pm, err := s.repo.GetPaymentMethodByCode(ctx, sel.PaymentCode)
	if err != nil {
		return nil, err
	}
	if !pm.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrPaymentMethodDisabled, pm.Code)
	}

	now := s.now()
	order, err := s.repo.CreateOrder(ctx, model.NewOrder{
		UserID:         sel.UserID,
		ProductID:      product.ID,
		CityID:         city.ID,
		DistrictID:     district.ID,
		PaymentMethod:  pm.Code,
		AmountBase:     product.Price,
		AmountCurrency: product.Price.DivRound(pm.Rate, amountPrecision),
		CurrencyCode:   strings.ToUpper(pm.Code),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.PaymentTimeout),
	}, s.cfg.InitialOrderNumber)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.arm(order.Number, order.ExpiresAt)
	s.metrics.OrderCreated()
	s.publish(ctx, events.OrderCreated, *order)

	s.logger.Info("order created",
		zap.Int64("order_number", order.Number),
		zap.Int64("user_id", order.UserID),
		zap.String("payment_method", order.PaymentMethod),
		zap.Time("expires_at", order.ExpiresAt),
	)

	return &model.OrderReceipt{
		OrderNumber:    order.Number,
		AmountBase:     order.AmountBase,
		AmountCurrency: order.AmountCurrency,
		CurrencyCode:   order.CurrencyCode,
		ExpiresAt:      order.ExpiresAt,
		ProductName:    product.Name,
		ProductIcon:    s.setting(ctx, SettingProductIcon, DefaultProductIcon),
		CityName:       city.Name,
		DistrictName:   district.Name,
		PaymentAddress: pm.Address,
		Instruction:    s.setting(ctx, SettingPaymentInstruction+pm.Code, DefaultPaymentInstruction),
		OperatorLink:   s.setting(ctx, SettingOperatorLink, ""),
	}, nil
}

func containsDistrict(districts []model.District, id int64) bool {
	for _, d := range districts {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Confirm переводит заявку в статус paid, если она ещё ожидает оплаты.
// Победивший переход снимает таймер и уведомляет администраторов.
func (s *Service) Confirm(ctx context.Context, number int64) (*model.TransitionResult, error) {
	ok, err := s.repo.TransitionOrder(ctx, number, model.OrderStatusPending, model.OrderStatusPaid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.alreadyResolved(ctx, number)
	}

	s.disarm(number)
	s.metrics.Transition(string(model.OutcomeConfirmed))
	s.logger.Info("order paid", zap.Int64("order_number", number))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.notifier.NotifyAdmins(sctx, AdminPaidNotification(number)); err != nil {
		s.metrics.NotificationFailed()
		s.logger.Warn("failed to notify admins", zap.Int64("order_number", number), zap.Error(err))
	}
	s.publishByNumber(sctx, events.OrderPaid, number)

	return &model.TransitionResult{
		OrderNumber:  number,
		Outcome:      model.OutcomeConfirmed,
		Status:       model.OrderStatusPaid,
		Message:      s.setting(sctx, SettingPaymentSuccessMessage, DefaultPaymentSuccessMessage),
		OperatorLink: s.setting(sctx, SettingOperatorLink, ""),
	}, nil
}

// Cancel отменяет заявку по запросу пользователя, если она ещё ожидает оплаты.
func (s *Service) Cancel(ctx context.Context, number int64) (*model.TransitionResult, error) {
	ok, err := s.repo.TransitionOrder(ctx, number, model.OrderStatusPending, model.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.alreadyResolved(ctx, number)
	}

	s.disarm(number)
	s.metrics.Transition(string(model.OutcomeCancelled))
	s.logger.Info("order cancelled", zap.Int64("order_number", number))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	s.publishByNumber(sctx, events.OrderCancelled, number)

	return &model.TransitionResult{
		OrderNumber: number,
		Outcome:     model.OutcomeCancelled,
		Status:      model.OrderStatusCancelled,
	}, nil
}

func (s *Service) alreadyResolved(ctx context.Context, number int64) (*model.TransitionResult, error) {
	s.metrics.Transition(string(model.OutcomeAlreadyResolved))

	res := &model.TransitionResult{OrderNumber: number, Outcome: model.OutcomeAlreadyResolved}
	if o, err := s.repo.GetOrderByNumber(ctx, number); err == nil {
		res.Status = o.Status
	}
	return res, nil
}

// expire вызывается планировщиком по истечении срока оплаты. Проигравший
// переход ничего не делает: заявку уже подтвердили или отменили.
func (s *Service) expire(number int64) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	s.forget(number)

	ok, err := s.repo.TransitionOrder(ctx, number, model.OrderStatusPending, model.OrderStatusCancelled)
	if err != nil {
		s.logger.Error("failed to expire order", zap.Int64("order_number", number), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("expiry skipped, order already resolved", zap.Int64("order_number", number))
		return
	}

	s.metrics.Transition(string(model.OutcomeExpired))
	s.logger.Info("order expired", zap.Int64("order_number", number))

	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		s.logger.Error("failed to load expired order", zap.Int64("order_number", number), zap.Error(err))
		return
	}

	text := s.setting(ctx, SettingOrderTimeoutMessage, DefaultOrderTimeoutMessage)
	if err := s.notifier.NotifyUser(ctx, o.UserID, text); err != nil {
		s.metrics.NotificationFailed()
		s.logger.Warn("failed to notify user about expiry",
			zap.Int64("order_number", number),
			zap.Int64("user_id", o.UserID),
			zap.Error(err),
		)
	}
	s.publish(ctx, events.OrderExpired, *o)
}

// RestorePending взводит таймеры для заявок, оставшихся в статусе pending
// после перезапуска. Просроченные заявки истекают сразу.
func (s *Service) RestorePending(ctx context.Context) (int, error) {
	orders, err := s.repo.ListPendingOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}

	restored := 0
	for _, o := range orders {
		if s.arm(o.Number, o.ExpiresAt) {
			restored++
		}
	}

	s.logger.Info("pending orders restored", zap.Int("count", restored))
	return restored, nil
}

// arm взводит таймер, если для заявки его ещё нет. Блокировка держится на время
// ArmAt, чтобы сработавший таймер не удалил запись раньше, чем она сохранена.
func (s *Service) arm(number int64, deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[number]; ok {
		return false
	}
	s.handles[number] = s.scheduler.ArmAt(number, deadline, s.expire)
	return true
}

func (s *Service) disarm(number int64) {
	s.mu.Lock()
	h, ok := s.handles[number]
	delete(s.handles, number)
	s.mu.Unlock()

	if ok {
		s.scheduler.Disarm(h)
	}
}

func (s *Service) forget(number int64) {
	s.mu.Lock()
	delete(s.handles, number)
	s.mu.Unlock()
}

// ArmedCount возвращает число заявок, ожидающих истечения срока оплаты.
func (s *Service) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Service) setting(ctx context.Context, key, def string) string {
	v, err := s.repo.GetSetting(ctx, key, def)
	if err != nil {
		s.logger.Warn("failed to read setting, using default", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}

func (s *Service) publish(ctx context.Context, t events.Type, o model.Order) {
	if err := s.events.Publish(ctx, events.NewOrderEvent(t, o, s.now())); err != nil {
		s.metrics.EventFailed()
		s.logger.Warn("failed to publish order event",
			zap.String("type", string(t)),
			zap.Int64("order_number", o.Number),
			zap.Error(err),
		)
	}
}

func (s *Service) publishByNumber(ctx context.Context, t events.Type, number int64) {
	o, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("failed to load order for event", zap.Int64("order_number", number), zap.Error(err))
		}
		return
	}
	s.publish(ctx, t, *o)
}
