package repository

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/orderbot/internal/validation"
)

// ErrNotFound является общей причиной всех ошибок отсутствия записи.
var ErrNotFound = errors.New("not found")

var (
	// ErrCityNotFound возвращается, если город не найден.
	ErrCityNotFound = fmt.Errorf("city %w", ErrNotFound)
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrDistrictNotFound возвращается, если район не найден.
	ErrDistrictNotFound = fmt.Errorf("district %w", ErrNotFound)
	// ErrPaymentMethodNotFound возвращается, если способ оплаты не найден.
	ErrPaymentMethodNotFound = fmt.Errorf("payment method %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заявка не найдена.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)

var (
	// ErrCityExists возвращается при попытке создать город с существующим названием.
	ErrCityExists = errors.New("city already exists")
	// ErrPaymentMethodExists возвращается при совпадении названия или кода способа оплаты.
	ErrPaymentMethodExists = errors.New("payment method already exists")
	// ErrInvalidTransition возвращается для перехода, которого нет в жизненном цикле заявки.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidRate возвращается, если курс способа оплаты не положителен.
	ErrInvalidRate = validation.ErrInvalidRate
)
