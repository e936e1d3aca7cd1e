// Package handler содержит HTTP-обработчики API сервиса заявок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/service"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	IsAdmin(userID int64) bool
	RegisterUser(ctx context.Context, u model.User) (*model.User, error)

	FindCity(ctx context.Context, query string) (*model.City, error)
	ProductsInCity(ctx context.Context, cityID int64) ([]model.Product, error)
	DistrictsForProduct(ctx context.Context, cityID, productID int64) ([]model.District, error)
	EnabledPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)

	CreateOrder(ctx context.Context, sel model.Selection) (*model.OrderReceipt, error)
	GetUserOrder(ctx context.Context, userID, number int64) (*model.Order, error)
	Confirm(ctx context.Context, number int64) (*model.TransitionResult, error)
	Cancel(ctx context.Context, number int64) (*model.TransitionResult, error)

	CreateCity(ctx context.Context, name, aliases string) (*model.City, error)
	UpdateCity(ctx context.Context, c model.City) error
	ListCities(ctx context.Context) ([]model.City, error)
	DeleteCity(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, name string, price decimal.Decimal) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) error
	ListProducts(ctx context.Context) ([]model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateDistrict(ctx context.Context, cityID int64, name string) (*model.District, error)
	ListDistricts(ctx context.Context, cityID int64) ([]model.District, error)
	DeleteDistrict(ctx context.Context, id int64) error
	AddProductToDistrict(ctx context.Context, districtID, productID int64) (bool, error)
	RemoveProductFromDistrict(ctx context.Context, districtID, productID int64) (bool, error)

	CreatePaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error)
	UpdatePaymentRate(ctx context.Context, code string, rate decimal.Decimal) error
	UpdatePaymentAddress(ctx context.Context, code, address string) error
	SetPaymentEnabled(ctx context.Context, code string, enabled bool) error
	DeletePaymentMethod(ctx context.Context, code string) error

	BlockUser(ctx context.Context, userID int64) error
	UnblockUser(ctx context.Context, userID int64) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
	Export(ctx context.Context) (*model.CatalogSnapshot, error)
	Import(ctx context.Context, snap model.CatalogSnapshot) error
	Stats(ctx context.Context) (*model.Stats, error)
}

// Handler реализует HTTP-обработчики API сервиса заявок.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	gatewayToken   string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// Регистрация пользователей доступна только с заголовком gatewayToken.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, gatewayToken string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		gatewayToken:   gatewayToken,
	}
}

type registerRequest struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type registerResponse struct {
	User    *model.User `json:"user"`
	Token   string      `json:"token"`
	IsAdmin bool        `json:"is_admin"`
}

// RegisterUser сохраняет профиль пользователя чата и выдаёт токен авторизации.
// Идентификатор берётся из тела запроса, поэтому маршрут закрыт секретом адаптера.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.ID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), model.User{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, "register user", err, zap.Int64("userID", req.ID))
		return
	}

	token, err := h.authMiddleware.SetAuthCookie(w, u.ID)
	if err != nil {
		h.writeError(w, "issue token", err, zap.Int64("userID", u.ID))
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{User: u, Token: token, IsAdmin: h.service.IsAdmin(u.ID)})
}

// FindCity ищет город по названию или варианту написания.
func (h *Handler) FindCity(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	city, err := h.service.FindCity(r.Context(), query)
	if err != nil {
		h.writeError(w, "find city", err, zap.String("query", query))
		return
	}
	writeJSON(w, http.StatusOK, city)
}

// ProductsInCity возвращает товары, доступные хотя бы в одном районе города.
func (h *Handler) ProductsInCity(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}

	products, err := h.service.ProductsInCity(r.Context(), cityID)
	if err != nil {
		h.writeError(w, "products in city", err, zap.Int64("cityID", cityID))
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// DistrictsForProduct возвращает районы города, где доступен товар.
func (h *Handler) DistrictsForProduct(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	districts, err := h.service.DistrictsForProduct(r.Context(), cityID, productID)
	if err != nil {
		h.writeError(w, "districts for product", err, zap.Int64("cityID", cityID), zap.Int64("productID", productID))
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

// PaymentMethods возвращает включённые способы оплаты.
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.EnabledPaymentMethods(r.Context())
	if err != nil {
		h.writeError(w, "payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

type createOrderRequest struct {
	CityID      int64  `json:"city_id"`
	ProductID   int64  `json:"product_id"`
	DistrictID  int64  `json:"district_id"`
	PaymentCode string `json:"payment_code"`
}

// CreateOrder оформляет заявку текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.CityID <= 0 || req.ProductID <= 0 || req.DistrictID <= 0 || req.PaymentCode == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	receipt, err := h.service.CreateOrder(r.Context(), model.Selection{
		UserID:      userID,
		CityID:      req.CityID,
		ProductID:   req.ProductID,
		DistrictID:  req.DistrictID,
		PaymentCode: req.PaymentCode,
	})
	if err != nil {
		h.writeError(w, "create order", err, zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// GetOrder возвращает заявку текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, number, ok := h.ownOrderParams(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetUserOrder(r.Context(), userID, number)
	if err != nil {
		h.writeError(w, "get order", err, zap.Int64("order", number))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ConfirmOrder отмечает заявку оплаченной по сообщению пользователя.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm order", h.service.Confirm)
}

// CancelOrder отменяет заявку по запросу пользователя.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel order", h.service.Cancel)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, number int64) (*model.TransitionResult, error),
) {
	userID, number, ok := h.ownOrderParams(w, r)
	if !ok {
		return
	}

	if _, err := h.service.GetUserOrder(r.Context(), userID, number); err != nil {
		h.writeError(w, op, err, zap.Int64("order", number))
		return
	}

	res, err := apply(r.Context(), number)
	if err != nil {
		h.writeError(w, op, err, zap.Int64("order", number))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ownOrderParams(w http.ResponseWriter, r *http.Request) (userID, number int64, ok bool) {
	userID, ok = middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, 0, false
	}

	number, err := validation.ParseOrderNumber(chi.URLParam(r, "number"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, number, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor сопоставляет ошибку бизнес-логики HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserBlocked), errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrCityExists),
		errors.Is(err, repository.ErrPaymentMethodExists),
		errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrPaymentMethodDisabled),
		errors.Is(err, validation.ErrInvalidRate),
		errors.Is(err, validation.ErrInvalidPrice),
		errors.Is(err, validation.ErrInvalidName),
		errors.Is(err, validation.ErrInvalidPaymentCode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}
	http.Error(w, err.Error(), status)
}
