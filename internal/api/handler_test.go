package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leftuber-api/internal/models"
	"leftuber-api/internal/service"
	"leftuber-api/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type stubInventory struct {
	InventoryService
	created *service.CreateProductRequest
	getErr  error
	lastGet string
}

func (s *stubInventory) ListAvailable(_ context.Context, f models.ProductFilter) ([]models.Product, error) {
	return []models.Product{{ID: "p1", Title: "filter:" + f.Category + "/" + f.Search}}, nil
}

func (s *stubInventory) Get(_ context.Context, id string) (*models.Product, error) {
	s.lastGet = id
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.Product{ID: id, Title: "Bagels", OfferPrice: decimal.NewFromInt(12)}, nil
}

func (s *stubInventory) Create(_ context.Context, requester models.Identity, req *service.CreateProductRequest) (*models.Product, error) {
	s.created = req
	return &models.Product{ID: uuid.NewString(), MerchantID: requester.UserID, Title: req.Title}, nil
}

type stubOrders struct {
	OrderService
	createReq *service.CreateOrderRequest
	createErr error
	statusErr error
}

func (s *stubOrders) CreateOrder(_ context.Context, buyer models.Identity, req *service.CreateOrderRequest) (*models.Order, error) {
	s.createReq = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.Order{ID: uuid.NewString(), BuyerID: buyer.UserID, Total: decimal.NewFromInt(130), Status: models.StatusPending}, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, _ models.Identity, orderID, status string) (*models.Order, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &models.Order{ID: orderID, Status: models.OrderStatus(status)}, nil
}

type stubAuth struct {
	AuthService
	code string
}

func (s *stubAuth) RequestCode(_ context.Context, phone string) (*service.CodeIssued, error) {
	if len(phone) < 7 {
		return nil, fmt.Errorf("%w: valid phone number required", models.ErrValidation)
	}
	return &service.CodeIssued{Phone: phone, ExpiresAt: time.Now().Add(5 * time.Minute), Code: s.code}, nil
}

func (s *stubAuth) VerifyCode(_ context.Context, phone, code string) (*service.Session, error) {
	if code != "1234" {
		return nil, models.ErrInvalidOTP
	}
	return &service.Session{Token: "tok", User: &models.User{ID: "u1", Phone: phone, Role: models.RoleBuyer}, IsNewUser: true}, nil
}

type stubUsers struct {
	UserService
}

func (stubUsers) Stats(_ context.Context, requester models.Identity) (*models.MerchantStats, error) {
	if requester.Role != models.RoleMerchant {
		return nil, models.ErrForbidden
	}
	return &models.MerchantStats{ProductCount: 2, TotalSales: decimal.NewFromInt(260)}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type HandlerSuite struct {
	suite.Suite
	router    *gin.Engine
	inventory *stubInventory
	orders    *stubOrders
	auth      *stubAuth
	issuer    *session.Issuer
	redis     *stubPinger
	opts      Options
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.inventory = &stubInventory{}
	s.orders = &stubOrders{}
	s.auth = &stubAuth{}
	s.issuer = session.NewIssuer("test-secret", time.Hour)
	s.redis = &stubPinger{}
	s.opts = Options{
		AuthRatePerMinute: 100,
		Readiness:         map[string]Pinger{"redis": s.redis},
	}
	s.build()
}

func (s *HandlerSuite) build() {
	h := NewHandler(s.inventory, s.orders, s.auth, stubUsers{}, s.issuer, zap.NewNop(), s.opts)
	s.router = gin.New()
	h.SetupRoutes(s.router)
}

func (s *HandlerSuite) token(role models.Role) string {
	tok, err := s.issuer.Issue(&models.User{ID: uuid.NewString(), Phone: "+201000000001", Role: role})
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			s.Require().NoError(json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestReadiness() {
	w := s.do(http.MethodGet, "/ready", "", nil)
	s.Equal(http.StatusOK, w.Code)

	s.redis.err = errors.New("connection refused")
	w = s.do(http.MethodGet, "/ready", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(w.Body.String(), "redis")
}

func (s *HandlerSuite) TestSendOTPHidesCode() {
	w := s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": "5551234"})
	s.Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal(true, body["success"])
	s.NotContains(body, "otp")
}

func (s *HandlerSuite) TestSendOTPExposesCodeWhenIssued() {
	s.auth.code = "0042"
	w := s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": "5551234"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("0042", s.decode(w)["otp"])
}

func (s *HandlerSuite) TestSendOTPValidation() {
	w := s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{})
	s.Equal(http.StatusBadRequest, w.Code)
	body := s.decode(w)
	s.Equal("VALIDATION_ERROR", body["code"])
	details, ok := body["details"].([]interface{})
	s.Require().True(ok)
	s.Equal("phone", details[0].(map[string]interface{})["field"])

	w = s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": "123"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestVerifyOTP() {
	w := s.do(http.MethodPost, "/api/v1/auth/verify-otp", "", gin.H{"phone": "5551234", "otp": "9999"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("INVALID_OTP", s.decode(w)["code"])

	w = s.do(http.MethodPost, "/api/v1/auth/verify-otp", "", gin.H{"phone": "5551234", "otp": "1234"})
	s.Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.Equal("tok", body["token"])
	s.Equal(true, body["isNewUser"])
}

func (s *HandlerSuite) TestAuthRateLimit() {
	s.opts.AuthRatePerMinute = 2
	s.build()

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": "5551234"})
		s.Equal(http.StatusOK, w.Code)
	}
	w := s.do(http.MethodPost, "/api/v1/auth/send-otp", "", gin.H{"phone": "5551234"})
	s.Equal(http.StatusTooManyRequests, w.Code)
}

func (s *HandlerSuite) TestListProductsIsPublic() {
	w := s.do(http.MethodGet, "/api/v1/products?category=Drinks&search=tea", "", nil)
	s.Equal(http.StatusOK, w.Code)

	var products []models.Product
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &products))
	s.Require().Len(products, 1)
	s.Equal("filter:Drinks/tea", products[0].Title)
}

func (s *HandlerSuite) TestGetProduct() {
	id := uuid.NewString()
	w := s.do(http.MethodGet, "/api/v1/products/"+id, "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(id, s.inventory.lastGet)

	w = s.do(http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	s.Equal(http.StatusNotFound, w.Code)

	s.inventory.getErr = fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	w = s.do(http.MethodGet, "/api/v1/products/"+id, "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestCreateProductRequiresMerchant() {
	body := `{"title":"Bagels","offerPrice":"12.5","quantity":"3"}`

	w := s.do(http.MethodPost, "/api/v1/products", "", body)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/products", s.token(models.RoleBuyer), body)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/products", s.token(models.RoleMerchant), body)
	s.Equal(http.StatusCreated, w.Code)
	s.Require().NotNil(s.inventory.created)
	s.True(decimal.RequireFromString("12.5").Equal(*s.inventory.created.OfferPrice))
	s.Equal(3, s.inventory.created.Quantity.Value)
}

func (s *HandlerSuite) TestInvalidToken() {
	w := s.do(http.MethodGet, "/api/v1/orders", "garbage", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("UNAUTHENTICATED", s.decode(w)["code"])
}

func (s *HandlerSuite) TestCreateOrder() {
	productID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		bytes.NewBufferString(fmt.Sprintf(`{"productId":%q,"deliveryType":"PICKUP"}`, productID)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(models.RoleBuyer))
	req.Header.Set("Idempotency-Key", "abc")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusCreated, w.Code)
	s.Equal("abc", s.orders.createReq.IdempotencyKey)
	s.Equal("130", s.decode(w)["total"])
}

func (s *HandlerSuite) TestCreateOrderErrors() {
	tok := s.token(models.RoleBuyer)

	w := s.do(http.MethodPost, "/api/v1/orders", tok, gin.H{})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/orders", tok, gin.H{"productId": "nope"})
	s.Equal(http.StatusNotFound, w.Code)

	s.orders.createErr = fmt.Errorf("%w: product x", models.ErrOutOfStock)
	w = s.do(http.MethodPost, "/api/v1/orders", tok, gin.H{"productId": uuid.NewString()})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("OUT_OF_STOCK", s.decode(w)["code"])
}

func (s *HandlerSuite) TestInternalErrorMessage() {
	tok := s.token(models.RoleBuyer)
	s.orders.createErr = errors.New("pq: connection reset")

	w := s.do(http.MethodPost, "/api/v1/orders", tok, gin.H{"productId": uuid.NewString()})
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Contains(s.decode(w)["error"], "connection reset")

	s.opts.Production = true
	s.build()
	w = s.do(http.MethodPost, "/api/v1/orders", tok, gin.H{"productId": uuid.NewString()})
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("Internal server error", s.decode(w)["error"])
}

func (s *HandlerSuite) TestUpdateOrderStatus() {
	tok := s.token(models.RoleMerchant)
	orderID := uuid.NewString()

	w := s.do(http.MethodPut, "/api/v1/orders/"+orderID+"/status", tok, gin.H{"status": "CONFIRMED"})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("CONFIRMED", s.decode(w)["status"])

	s.orders.statusErr = fmt.Errorf("%w: only the merchant can update order status", models.ErrForbidden)
	w = s.do(http.MethodPut, "/api/v1/orders/"+orderID+"/status", tok, gin.H{"status": "CANCELLED"})
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestMerchantStats() {
	w := s.do(http.MethodGet, "/api/v1/users/stats", s.token(models.RoleBuyer), nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/users/stats", s.token(models.RoleMerchant), nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("260", s.decode(w)["totalSales"])
}
