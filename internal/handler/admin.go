package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

type cityRequest struct {
	Name    string `json:"name"`
	Aliases string `json:"aliases"`
}

// CreateCity добавляет город.
func (h *Handler) CreateCity(w http.ResponseWriter, r *http.Request) {
	var req cityRequest
	if !decode(w, r, &req) {
		return
	}

	city, err := h.service.CreateCity(r.Context(), req.Name, req.Aliases)
	if err != nil {
		h.writeError(w, "create city", err)
		return
	}
	writeJSON(w, http.StatusCreated, city)
}

// UpdateCity меняет название и варианты написания города.
func (h *Handler) UpdateCity(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}
	var req cityRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.service.UpdateCity(r.Context(), model.City{
		ID:      cityID,
		Name:    req.Name,
		Aliases: validation.ParseAliases(req.Aliases),
	})
	if err != nil {
		h.writeError(w, "update city", err, zap.Int64("cityID", cityID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCities возвращает все города.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.service.ListCities(r.Context())
	if err != nil {
		h.writeError(w, "list cities", err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

// DeleteCity удаляет город вместе с районами.
func (h *Handler) DeleteCity(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}
	if err := h.service.DeleteCity(r.Context(), cityID); err != nil {
		h.writeError(w, "delete city", err, zap.Int64("cityID", cityID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type productRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// CreateProduct добавляет товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), req.Name, req.Price)
	if err != nil {
		h.writeError(w, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct меняет название и цену товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req productRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.service.UpdateProduct(r.Context(), model.Product{ID: productID, Name: req.Name, Price: req.Price})
	if err != nil {
		h.writeError(w, "update product", err, zap.Int64("productID", productID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProducts возвращает все товары.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), productID); err != nil {
		h.writeError(w, "delete product", err, zap.Int64("productID", productID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type districtRequest struct {
	Name string `json:"name"`
}

// CreateDistrict добавляет район в город.
func (h *Handler) CreateDistrict(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}
	var req districtRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.service.CreateDistrict(r.Context(), cityID, req.Name)
	if err != nil {
		h.writeError(w, "create district", err, zap.Int64("cityID", cityID))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDistricts возвращает районы города.
func (h *Handler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	cityID, ok := pathID(w, r, "cityID")
	if !ok {
		return
	}
	districts, err := h.service.ListDistricts(r.Context(), cityID)
	if err != nil {
		h.writeError(w, "list districts", err, zap.Int64("cityID", cityID))
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

// DeleteDistrict удаляет район.
func (h *Handler) DeleteDistrict(w http.ResponseWriter, r *http.Request) {
	districtID, ok := pathID(w, r, "districtID")
	if !ok {
		return
	}
	if err := h.service.DeleteDistrict(r.Context(), districtID); err != nil {
		h.writeError(w, "delete district", err, zap.Int64("districtID", districtID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type associationResponse struct {
	Changed bool `json:"changed"`
}

// AddProductToDistrict делает товар доступным в районе. Повторный вызов ничего не меняет.
func (h *Handler) AddProductToDistrict(w http.ResponseWriter, r *http.Request) {
	districtID, ok := pathID(w, r, "districtID")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	added, err := h.service.AddProductToDistrict(r.Context(), districtID, productID)
	if err != nil {
		h.writeError(w, "add product to district", err, zap.Int64("districtID", districtID), zap.Int64("productID", productID))
		return
	}
	writeJSON(w, http.StatusOK, associationResponse{Changed: added})
}

// RemoveProductFromDistrict убирает товар из района.
func (h *Handler) RemoveProductFromDistrict(w http.ResponseWriter, r *http.Request) {
	districtID, ok := pathID(w, r, "districtID")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	removed, err := h.service.RemoveProductFromDistrict(r.Context(), districtID, productID)
	if err != nil {
		h.writeError(w, "remove product from district", err, zap.Int64("districtID", districtID), zap.Int64("productID", productID))
		return
	}
	writeJSON(w, http.StatusOK, associationResponse{Changed: removed})
}

// CreatePaymentMethod добавляет способ оплаты.
func (h *Handler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req model.PaymentMethod
	if !decode(w, r, &req) {
		return
	}

	pm, err := h.service.CreatePaymentMethod(r.Context(), req)
	if err != nil {
		h.writeError(w, "create payment method", err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

// ListPaymentMethods возвращает все способы оплаты, включая выключенные.
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.ListPaymentMethods(r.Context())
	if err != nil {
		h.writeError(w, "list payment methods", err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

type updatePaymentRequest struct {
	Rate    *decimal.Decimal `json:"rate"`
	Address *string          `json:"address"`
	Enabled *bool            `json:"enabled"`
}

// UpdatePaymentMethod меняет курс, реквизиты или доступность способа оплаты.
// Меняются только переданные поля.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req updatePaymentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Rate == nil && req.Address == nil && req.Enabled == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Rate != nil {
		if err := h.service.UpdatePaymentRate(ctx, code, *req.Rate); err != nil {
			h.writeError(w, "update payment rate", err, zap.String("code", code))
			return
		}
	}
	if req.Address != nil {
		if err := h.service.UpdatePaymentAddress(ctx, code, *req.Address); err != nil {
			h.writeError(w, "update payment address", err, zap.String("code", code))
			return
		}
	}
	if req.Enabled != nil {
		if err := h.service.SetPaymentEnabled(ctx, code, *req.Enabled); err != nil {
			h.writeError(w, "set payment enabled", err, zap.String("code", code))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePaymentMethod удаляет способ оплаты.
func (h *Handler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.DeletePaymentMethod(r.Context(), code); err != nil {
		h.writeError(w, "delete payment method", err, zap.String("code", code))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BlockUser блокирует пользователя.
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.BlockUser(r.Context(), userID); err != nil {
		h.writeError(w, "block user", err, zap.Int64("userID", userID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnblockUser снимает блокировку пользователя.
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.UnblockUser(r.Context(), userID); err != nil {
		h.writeError(w, "unblock user", err, zap.Int64("userID", userID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSettings возвращает все настройки.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.ListSettings(r.Context())
	if err != nil {
		h.writeError(w, "list settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetSetting возвращает значение настройки. Незаданная настройка возвращается пустой строкой.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.service.GetSetting(r.Context(), key)
	if err != nil {
		h.writeError(w, "get setting", err, zap.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, settingBody{Key: key, Value: value})
}

// SetSetting сохраняет значение настройки.
func (h *Handler) SetSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req settingBody
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetSetting(r.Context(), key, req.Value); err != nil {
		h.writeError(w, "set setting", err, zap.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export выгружает каталог и настройки в JSON.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Export(r.Context())
	if err != nil {
		h.writeError(w, "export catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Import загружает каталог целиком или не загружает ничего.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var snap model.CatalogSnapshot
	if !decode(w, r, &snap) {
		return
	}
	if err := h.service.Import(r.Context(), snap); err != nil {
		h.writeError(w, "import catalog", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats возвращает сводку по заявкам и пользователям.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}
