// Package model содержит доменные сущности бота приёма заявок.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// City описывает город, в котором работает магазин.
type City struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Product описывает товар каталога. Товары не привязаны к городу.
type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// District описывает район доставки внутри города.
type District struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	CityID int64  `json:"city_id"`
}

// Association связывает район и доступный в нём товар.
type Association struct {
	DistrictID int64 `json:"district_id"`
	ProductID  int64 `json:"product_id"`
}

// PaymentMethod описывает способ оплаты и курс его валюты.
type PaymentMethod struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Code    string          `json:"code"`
	Rate    decimal.Decimal `json:"rate"`
	Address string          `json:"address,omitempty"`
	Enabled bool            `json:"enabled"`
}

// User описывает пользователя чат-платформы.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStatus описывает статус заявки.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// Order описывает заявку пользователя.
type Order struct {
	ID             int64           `json:"-"`
	Number         int64           `json:"order_number"`
	UserID         int64           `json:"user_id"`
	ProductID      int64           `json:"product_id"`
	CityID         int64           `json:"city_id"`
	DistrictID     int64           `json:"district_id"`
	PaymentMethod  string          `json:"payment_method"`
	AmountBase     decimal.Decimal `json:"amount_base"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
	CurrencyCode   string          `json:"currency_code"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewOrder содержит данные для создания заявки; номер выдаёт журнал заявок.
type NewOrder struct {
	UserID         int64
	ProductID      int64
	CityID         int64
	DistrictID     int64
	PaymentMethod  string
	AmountBase     decimal.Decimal
	AmountCurrency decimal.Decimal
	CurrencyCode   string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Selection описывает проверенный выбор пользователя.
type Selection struct {
	UserID      int64
	CityID      int64
	ProductID   int64
	DistrictID  int64
	PaymentCode string
}

// OrderReceipt возвращается слою представления после создания заявки.
type OrderReceipt struct {
	OrderNumber    int64           `json:"order_number"`
	AmountBase     decimal.Decimal `json:"amount_base"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
	CurrencyCode   string          `json:"currency_code"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ProductName    string          `json:"product_name"`
	ProductIcon    string          `json:"product_icon"`
	CityName       string          `json:"city_name"`
	DistrictName   string          `json:"district_name"`
	PaymentAddress string          `json:"payment_address,omitempty"`
	Instruction    string          `json:"instruction"`
	OperatorLink   string          `json:"operator_link,omitempty"`
}

// Outcome описывает результат попытки перевода заявки.
type Outcome string

const (
	OutcomeConfirmed       Outcome = "confirmed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeExpired         Outcome = "expired"
	OutcomeAlreadyResolved Outcome = "already-resolved"
)

// TransitionResult возвращается на подтверждение и отмену заявки.
type TransitionResult struct {
	OrderNumber  int64       `json:"order_number"`
	Outcome      Outcome     `json:"outcome"`
	Status       OrderStatus `json:"status"`
	Message      string      `json:"message,omitempty"`
	OperatorLink string      `json:"operator_link,omitempty"`
}

// CatalogSnapshot используется для выгрузки и загрузки каталога.
// Связи ссылаются на районы и товары по именам, а не по идентификаторам.
type CatalogSnapshot struct {
	Cities         []SnapshotCity    `json:"cities"`
	Products       []SnapshotProduct `json:"products"`
	PaymentMethods []PaymentMethod   `json:"payment_methods"`
	Settings       map[string]string `json:"settings"`
}

// SnapshotCity описывает город вместе с районами.
type SnapshotCity struct {
	Name      string             `json:"name"`
	Aliases   []string           `json:"aliases"`
	Districts []SnapshotDistrict `json:"districts"`
}

// SnapshotDistrict описывает район и названия товаров, доступных в нём.
type SnapshotDistrict struct {
	Name     string   `json:"name"`
	Products []string `json:"products"`
}

// SnapshotProduct описывает товар каталога.
type SnapshotProduct struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Stats содержит сводку для администратора.
type Stats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Paid         int64 `json:"paid"`
	Cancelled    int64 `json:"cancelled"`
	Users        int64 `json:"users"`
	BlockedUsers int64 `json:"blocked_users"`
}
