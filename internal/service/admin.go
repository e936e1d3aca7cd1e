package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// CreateCity добавляет город. aliases задаются строкой через запятую, "-" означает без вариантов.
func (s *Service) CreateCity(ctx context.Context, name, aliases string) (*model.City, error) {
	c, err := s.repo.CreateCity(ctx, name, validation.ParseAliases(aliases))
	if err != nil {
		return nil, err
	}
	s.logger.Info("city created", zap.Int64("city_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// UpdateCity меняет название и варианты написания города.
func (s *Service) UpdateCity(ctx context.Context, c model.City) error {
	return s.repo.UpdateCity(ctx, c)
}

// ListCities возвращает все города.
func (s *Service) ListCities(ctx context.Context) ([]model.City, error) {
	return s.repo.ListCities(ctx)
}

// DeleteCity удаляет город с районами. Товары остаются в каталоге.
func (s *Service) DeleteCity(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCity(ctx, id); err != nil {
		return err
	}
	s.logger.Info("city deleted", zap.Int64("city_id", id))
	return nil
}

// CreateProduct добавляет товар.
func (s *Service) CreateProduct(ctx context.Context, name string, price decimal.Decimal) (*model.Product, error) {
	p, err := s.repo.CreateProduct(ctx, name, price)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct меняет название и цену товара.
func (s *Service) UpdateProduct(ctx context.Context, p model.Product) error {
	return s.repo.UpdateProduct(ctx, p)
}

// ListProducts возвращает все товары.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// DeleteProduct удаляет товар и его связи с районами. Заявки с этим товаром не меняются.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

// CreateDistrict добавляет район в город.
func (s *Service) CreateDistrict(ctx context.Context, cityID int64, name string) (*model.District, error) {
	return s.repo.CreateDistrict(ctx, cityID, name)
}

// ListDistricts возвращает районы города.
func (s *Service) ListDistricts(ctx context.Context, cityID int64) ([]model.District, error) {
	if _, err := s.repo.GetCity(ctx, cityID); err != nil {
		return nil, err
	}
	return s.repo.ListDistricts(ctx, cityID)
}

// DeleteDistrict удаляет район и его связи с товарами.
func (s *Service) DeleteDistrict(ctx context.Context, id int64) error {
	return s.repo.DeleteDistrict(ctx, id)
}

// AddProductToDistrict делает товар доступным в районе. false означает, что связь уже была.
func (s *Service) AddProductToDistrict(ctx context.Context, districtID, productID int64) (bool, error) {
	return s.repo.AddAssociation(ctx, districtID, productID)
}

// RemoveProductFromDistrict убирает товар из района.
func (s *Service) RemoveProductFromDistrict(ctx context.Context, districtID, productID int64) (bool, error) {
	return s.repo.RemoveAssociation(ctx, districtID, productID)
}

// CreatePaymentMethod добавляет способ оплаты.
func (s *Service) CreatePaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error) {
	created, err := s.repo.CreatePaymentMethod(ctx, pm)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment method created", zap.String("code", created.Code), zap.String("rate", created.Rate.String()))
	return created, nil
}

// ListPaymentMethods возвращает все способы оплаты, включая выключенные.
func (s *Service) ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, false)
}

// UpdatePaymentRate меняет курс. Суммы уже созданных заявок остаются прежними.
func (s *Service) UpdatePaymentRate(ctx context.Context, code string, rate decimal.Decimal) error {
	if err := s.repo.UpdatePaymentRate(ctx, code, rate); err != nil {
		return err
	}
	s.logger.Info("payment rate updated", zap.String("code", code), zap.String("rate", rate.String()))
	return nil
}

// UpdatePaymentAddress меняет реквизиты способа оплаты.
func (s *Service) UpdatePaymentAddress(ctx context.Context, code, address string) error {
	return s.repo.UpdatePaymentAddress(ctx, code, address)
}

// SetPaymentEnabled включает или выключает способ оплаты.
func (s *Service) SetPaymentEnabled(ctx context.Context, code string, enabled bool) error {
	return s.repo.SetPaymentEnabled(ctx, code, enabled)
}

// DeletePaymentMethod удаляет способ оплаты. Заявки сохраняют его код.
func (s *Service) DeletePaymentMethod(ctx context.Context, code string) error {
	if err := s.repo.DeletePaymentMethod(ctx, code); err != nil {
		return err
	}
	s.logger.Info("payment method deleted", zap.String("code", code))
	return nil
}

// BlockUser блокирует пользователя.
func (s *Service) BlockUser(ctx context.Context, userID int64) error {
	if err := s.repo.SetUserBlocked(ctx, userID, true); err != nil {
		return err
	}
	s.logger.Info("user blocked", zap.Int64("user_id", userID))
	return nil
}

// UnblockUser снимает блокировку.
func (s *Service) UnblockUser(ctx context.Context, userID int64) error {
	if err := s.repo.SetUserBlocked(ctx, userID, false); err != nil {
		return err
	}
	s.logger.Info("user unblocked", zap.Int64("user_id", userID))
	return nil
}

func (s *Service) GetSetting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key, "")
}

func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	return s.repo.SetSetting(ctx, key, value)
}

func (s *Service) ListSettings(ctx context.Context) (map[string]string, error) {
	return s.repo.ListSettings(ctx)
}

// Export выгружает каталог и настройки.
func (s *Service) Export(ctx context.Context) (*model.CatalogSnapshot, error) {
	return s.repo.ExportCatalog(ctx)
}

// Import загружает каталог целиком или не загружает ничего.
func (s *Service) Import(ctx context.Context, snap model.CatalogSnapshot) error {
	if err := s.repo.ImportCatalog(ctx, snap); err != nil {
		return err
	}
	s.logger.Info("catalog imported",
		zap.Int("cities", len(snap.Cities)),
		zap.Int("products", len(snap.Products)),
		zap.Int("payment_methods", len(snap.PaymentMethods)),
	)
	return nil
}

// Stats возвращает сводку по заявкам и пользователям.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.OrderStats(ctx)
}
