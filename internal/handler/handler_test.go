package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/metrics"
	"github.com/mmeshcher/orderbot/internal/middleware"
	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/notify"
	"github.com/mmeshcher/orderbot/internal/repository"
	"github.com/mmeshcher/orderbot/internal/scheduler"
	"github.com/mmeshcher/orderbot/internal/service"
	"github.com/mmeshcher/orderbot/internal/validation"
)

const (
	adminID          = 1
	testGatewayToken = "test-gateway-token"
)

// stubService реализует только методы, которые вызывают тесты.
// Вызов остальных методов паникует на nil-интерфейсе.
type stubService struct {
	Service

	registerErr error

	receipt   *model.OrderReceipt
	createErr error
	selection model.Selection

	order    *model.Order
	orderErr error

	confirmRes *model.TransitionResult
	confirmed  []int64

	cities []model.City

	rateErr     error
	rateUpdated decimal.Decimal
	enabledSet  *bool
}

func (s *stubService) IsAdmin(userID int64) bool { return userID == adminID }

func (s *stubService) RegisterUser(_ context.Context, u model.User) (*model.User, error) {
	if s.registerErr != nil {
		return &u, s.registerErr
	}
	return &u, nil
}

func (s *stubService) CreateOrder(_ context.Context, sel model.Selection) (*model.OrderReceipt, error) {
	s.selection = sel
	return s.receipt, s.createErr
}

func (s *stubService) GetUserOrder(_ context.Context, userID, number int64) (*model.Order, error) {
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	if s.order.UserID != userID {
		return nil, service.ErrForbidden
	}
	return s.order, nil
}

func (s *stubService) Confirm(_ context.Context, number int64) (*model.TransitionResult, error) {
	s.confirmed = append(s.confirmed, number)
	return s.confirmRes, nil
}

func (s *stubService) ListCities(context.Context) ([]model.City, error) {
	return s.cities, nil
}

func (s *stubService) UpdatePaymentRate(_ context.Context, _ string, rate decimal.Decimal) error {
	s.rateUpdated = rate
	return s.rateErr
}

func (s *stubService) SetPaymentEnabled(_ context.Context, _ string, enabled bool) error {
	s.enabledSet = &enabled
	return nil
}

type testServer struct {
	router http.Handler
	auth   *middleware.AuthMiddleware
}

func newTestServer(t *testing.T, svc Service) *testServer {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, logger, auth, testGatewayToken)

	reg := prometheus.NewRegistry()
	return &testServer{
		router: h.SetupRouter(metrics.New(reg), metrics.Handler(reg)),
		auth:   auth,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doWithHeaders(t, method, path, userID, body, nil)
}

// register вызывает регистрацию так, как это делает адаптер чата.
func (ts *testServer) register(t *testing.T, body registerRequest) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doWithHeaders(t, http.MethodPost, "/api/users", 0, body,
		map[string]string{middleware.GatewayTokenHeader: testGatewayToken})
}

func (ts *testServer) doWithHeaders(t *testing.T, method, path string, userID int64, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if userID != 0 {
		token, err := ts.auth.IssueToken(userID)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterUser_IssuesToken(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	rec := ts.register(t, registerRequest{ID: 42, Username: "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp registerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User == nil || resp.User.ID != 42 {
		t.Fatalf("user = %+v, want id 42", resp.User)
	}
	if resp.IsAdmin {
		t.Fatalf("user 42 must not be admin")
	}

	id, err := ts.auth.ParseToken(resp.Token)
	if err != nil || id != 42 {
		t.Fatalf("token subject = %d, %v", id, err)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestRegisterUser_Blocked(t *testing.T) {
	ts := newTestServer(t, &stubService{registerErr: service.ErrUserBlocked})

	rec := ts.register(t, registerRequest{ID: 13})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("blocked user must not get a token")
	}
}

func TestRegisterUser_RequiresGatewayToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{name: "no header"},
		{name: "wrong token", headers: map[string]string{middleware.GatewayTokenHeader: "guess"}},
		{name: "user token instead", headers: map[string]string{"Authorization": "Bearer x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubService{})

			rec := ts.doWithHeaders(t, http.MethodPost, "/api/users", 0, registerRequest{ID: adminID}, tt.headers)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if len(rec.Result().Cookies()) != 0 {
				t.Fatalf("token must not be issued")
			}
		})
	}
}

// Без секрета адаптера нельзя получить токен администратора и попасть в /api/admin.
func TestAnonymousCannotBecomeAdmin(t *testing.T) {
	svc := service.NewService(
		repository.NewMemoryRepository(),
		scheduler.New(nil),
		notify.NewLogNotifier(zap.NewNop()),
		service.Config{PaymentTimeout: time.Minute, InitialOrderNumber: 1, AdminIDs: []int64{42}},
	)
	h := NewHandler(svc, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"), "")
	reg := prometheus.NewRegistry()
	router := h.SetupRouter(metrics.New(reg), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"id":42}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("register status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/cities", strings.NewReader(`{"name":"Pwned"}`))
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	cities, err := svc.ListCities(context.Background())
	if err != nil {
		t.Fatalf("list cities: %v", err)
	}
	if len(cities) != 0 {
		t.Fatalf("cities = %v, want none", cities)
	}
}

func TestCreateOrder(t *testing.T) {
	svc := &stubService{
		receipt: &model.OrderReceipt{
			OrderNumber:    10207903,
			AmountBase:     decimal.NewFromInt(100),
			AmountCurrency: decimal.RequireFromString("1.11111111"),
			CurrencyCode:   "USDT",
			ExpiresAt:      time.Now().Add(30 * time.Minute),
		},
	}
	ts := newTestServer(t, svc)

	rec := ts.do(t, http.MethodPost, "/api/orders", 100, createOrderRequest{
		CityID: 1, ProductID: 2, DistrictID: 3, PaymentCode: "usdt",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got model.OrderReceipt
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OrderNumber != 10207903 || got.AmountCurrency.String() != "1.11111111" {
		t.Fatalf("receipt = %+v", got)
	}

	want := model.Selection{UserID: 100, CityID: 1, ProductID: 2, DistrictID: 3, PaymentCode: "usdt"}
	if svc.selection != want {
		t.Fatalf("selection = %+v, want %+v", svc.selection, want)
	}
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body any
		want int
	}{
		{name: "unauthenticated", want: http.StatusUnauthorized},
		{name: "missing fields", body: createOrderRequest{CityID: 1}, want: http.StatusBadRequest},
		{name: "blocked", err: service.ErrUserBlocked, want: http.StatusForbidden},
		{name: "unavailable", err: fmt.Errorf("%w: product 2", service.ErrProductUnavailable), want: http.StatusUnprocessableEntity},
		{name: "disabled", err: service.ErrPaymentMethodDisabled, want: http.StatusUnprocessableEntity},
		{name: "unknown payment", err: repository.ErrPaymentMethodNotFound, want: http.StatusNotFound},
		{name: "storage failure", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubService{createErr: tt.err})

			body := tt.body
			if body == nil {
				body = createOrderRequest{CityID: 1, ProductID: 2, DistrictID: 3, PaymentCode: "usdt"}
			}
			userID := int64(100)
			if tt.want == http.StatusUnauthorized {
				userID = 0
			}

			rec := ts.do(t, http.MethodPost, "/api/orders", userID, body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestConfirmOrder(t *testing.T) {
	svc := &stubService{
		order: &model.Order{Number: 10207903, UserID: 100},
		confirmRes: &model.TransitionResult{
			OrderNumber: 10207903,
			Outcome:     model.OutcomeAlreadyResolved,
			Status:      model.OrderStatusCancelled,
		},
	}
	ts := newTestServer(t, svc)

	rec := ts.do(t, http.MethodPost, "/api/orders/10207903/confirm", 200, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign order: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(svc.confirmed) != 0 {
		t.Fatalf("foreign order must not be confirmed")
	}

	rec = ts.do(t, http.MethodPost, "/api/orders/abc/confirm", 100, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad number: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = ts.do(t, http.MethodPost, "/api/orders/10207903/confirm", 100, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var res model.TransitionResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Outcome != model.OutcomeAlreadyResolved {
		t.Fatalf("outcome = %q, want %q", res.Outcome, model.OutcomeAlreadyResolved)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	ts := newTestServer(t, &stubService{orderErr: repository.ErrOrderNotFound})

	rec := ts.do(t, http.MethodGet, "/api/orders/5", 100, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAdminRoutes(t *testing.T) {
	svc := &stubService{cities: []model.City{{ID: 1, Name: "Berlin"}}}
	ts := newTestServer(t, svc)

	rec := ts.do(t, http.MethodGet, "/api/admin/cities", 100, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("client: status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/cities", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want %d", rec.Code, http.StatusOK)
	}
	var cities []model.City
	if err := json.NewDecoder(rec.Body).Decode(&cities); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cities) != 1 || cities[0].Name != "Berlin" {
		t.Fatalf("cities = %+v", cities)
	}
}

func TestUpdatePaymentMethod(t *testing.T) {
	svc := &stubService{}
	ts := newTestServer(t, svc)

	rec := ts.do(t, http.MethodPatch, "/api/admin/payment-methods/usdt", adminID, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = ts.do(t, http.MethodPatch, "/api/admin/payment-methods/usdt", adminID, map[string]any{
		"rate":    "95.5",
		"enabled": false,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !svc.rateUpdated.Equal(decimal.RequireFromString("95.5")) {
		t.Fatalf("rate = %s, want 95.5", svc.rateUpdated)
	}
	if svc.enabledSet == nil || *svc.enabledSet {
		t.Fatalf("enabled flag was not switched off")
	}

	svc.rateErr = validation.ErrInvalidRate
	rec = ts.do(t, http.MethodPatch, "/api/admin/payment-methods/usdt", adminID, map[string]any{"rate": "0"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid rate: status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubService{cities: []model.City{}})

	ts.do(t, http.MethodGet, "/api/admin/cities", adminID, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `orderbot_http_requests_total{route="/api/admin/cities",status="200"} 1`) {
		t.Fatalf("request counter missing from metrics output:\n%s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repository.ErrCityNotFound, http.StatusNotFound},
		{fmt.Errorf("get: %w", repository.ErrDistrictNotFound), http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{repository.ErrCityExists, http.StatusConflict},
		{repository.ErrPaymentMethodExists, http.StatusConflict},
		{validation.ErrInvalidName, http.StatusUnprocessableEntity},
		{validation.ErrInvalidPrice, http.StatusUnprocessableEntity},
		{validation.ErrInvalidPaymentCode, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
