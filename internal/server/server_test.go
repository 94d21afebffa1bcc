package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeaway-storefront/internal/config"
	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/infrastructure/repo"
	"takeaway-storefront/internal/location"
	"takeaway-storefront/internal/push"
	"takeaway-storefront/internal/usecase"
)

type fixture struct {
	srv  *Server
	svc  *usecase.OrderService
	auth *usecase.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newEnvFixture(t, "dev")
}

func newEnvFixture(t *testing.T, env string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Env = env
	cfg.JWTSecret = "test-secret"
	cfg.WechatDelay = time.Millisecond
	cfg.StatusInterval = 10 * time.Millisecond
	cfg.PollInterval = 50 * time.Millisecond
	cfg.ReconnectDelay = 0

	hub := push.NewHub(nil)
	catalog := repo.NewMemoryCatalog(
		domain.Merchant{ID: 10, Name: "Noodle House", MinOrder: decimal.NewFromInt(10), DeliveryFee: decimal.NewFromInt(3),
			Menu: []domain.MenuItem{{ID: 1, Name: "Beef noodles", Price: decimal.NewFromInt(20), Available: true}}},
		domain.Merchant{ID: 20, Name: "Dumpling Bar", MinOrder: decimal.NewFromInt(10), DeliveryFee: decimal.NewFromInt(2),
			Menu: []domain.MenuItem{{ID: 5, Name: "Pork dumplings", Price: decimal.NewFromInt(15), Available: true}}},
	)
	svc := &usecase.OrderService{
		Repo:      repo.NewMemoryOrderRepo(),
		Wallets:   repo.NewMemoryWalletRepo(),
		Catalog:   catalog,
		Publisher: hub,
		ReturnURL: "http://localhost/pay/return",
	}
	auth := &usecase.AuthService{JWTSecret: cfg.JWTSecret, TTL: time.Hour}
	loc := location.NewCache(location.StaticLocator{Latitude: 31.23, Longitude: 121.47, Set: true}, nil, repo.NewMemoryLocationRepo(), nil)
	srv := New(Options{
		Config:   cfg,
		Auth:     auth,
		Backends: func(uid int64) Backend { return svc.ForUser(uid) },
		Location: loc,
		Channels: func() push.Channel { return push.NewHubChannel(hub) },
		Orders:   svc,
		Catalog:  catalog,
	})
	return &fixture{srv: srv, svc: svc, auth: auth}
}

func (f *fixture) token(t *testing.T, uid int64) string {
	t.Helper()
	tok, err := f.auth.Issue(uid)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (f *fixture) fillCart(t *testing.T, tok string) {
	t.Helper()
	for _, add := range []map[string]any{
		{"item": map[string]any{"id": 1, "name": "Beef noodles", "price": "20"}, "merchantId": 10, "merchantName": "Noodle House"},
		{"item": map[string]any{"id": 1, "name": "Beef noodles", "price": "20"}, "merchantId": 10, "merchantName": "Noodle House"},
		{"item": map[string]any{"id": 5, "name": "Pork dumplings", "price": "15"}, "merchantId": 20, "merchantName": "Dumpling Bar"},
	} {
		w, _ := f.do(t, http.MethodPost, "/api/cart/items", tok, add)
		require.Equal(t, http.StatusOK, w.Code)
	}
	for id, fee := range map[int]string{10: "3", 20: "2"} {
		w, _ := f.do(t, http.MethodPut, "/api/merchants/"+strconv.Itoa(id)+"/policy", tok, map[string]any{"minOrder": "10", "deliveryFee": fee})
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func errorBody(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	require.True(t, ok, "error body expected, got %v", out)
	return e
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e := errorBody(t, out)
	assert.Equal(t, "Unauthorized", e["code"])
	assert.NotEmpty(t, e["requestId"])

	w, _ = f.do(t, http.MethodGet, "/api/cart", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDevToken(t *testing.T) {
	f := newFixture(t)
	w, out := f.do(t, http.MethodPost, "/api/dev/token", "", map[string]any{"userId": 7, "phone": "138", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	tok, _ := out["token"].(string)
	require.NotEmpty(t, tok)

	w, _ = f.do(t, http.MethodGet, "/api/cart", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminStatusRoute_DevOnly(t *testing.T) {
	ctx := context.Background()
	for _, env := range []string{"dev", "prod"} {
		t.Run(env, func(t *testing.T) {
			f := newEnvFixture(t, env)
			o, err := f.svc.CreateOrder(ctx, domain.CreateOrderRequest{UserID: 1, RestaurantID: 10,
				Items: []domain.CreateOrderItem{{MenuItemID: 1, Quantity: 1}}, Address: "1 Main St", Phone: "138"})
			require.NoError(t, err)
			_, err = f.svc.Recharge(ctx, 1, decimal.NewFromInt(50))
			require.NoError(t, err)
			_, err = f.svc.PayOrder(ctx, 1, o.ID, "balance")
			require.NoError(t, err)

			path := "/api/admin/orders/" + strconv.FormatInt(o.ID, 10) + "/status"
			w, _ := f.do(t, http.MethodPut, path, "", map[string]any{"status": "confirmed"})
			got, err := f.svc.GetOrder(ctx, 1, o.ID)
			require.NoError(t, err)
			if env == "dev" {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, domain.OrderConfirmed, got.Status)
				return
			}
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, domain.OrderPaid, got.Status)

			w, _ = f.do(t, http.MethodPost, "/api/dev/token", "", map[string]any{"userId": 1})
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestCheckout_BalanceAcrossMerchants(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 1)
	w, _ := f.do(t, http.MethodPut, "/api/profile", tok, map[string]any{"phone": "138", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	f.fillCart(t, tok)

	w, out := f.do(t, http.MethodGet, "/api/cart", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", out["grandTotal"])
	assert.EqualValues(t, 3, out["totalCount"])
	delivery := out["delivery"].(map[string]any)
	assert.Equal(t, "1 Main St", delivery["10"].(map[string]any)["address"])

	w, _ = f.do(t, http.MethodPost, "/api/wallet/recharge", tok, map[string]any{"amount": "100"})
	require.Equal(t, http.StatusOK, w.Code)

	w, out = f.do(t, http.MethodPost, "/api/checkout", tok, map[string]any{"paymentMethod": "balance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, out["orders"], 2)
	assert.Equal(t, "/orders", out["next"])
	assert.Equal(t, false, out["pending"])

	_, out = f.do(t, http.MethodGet, "/api/cart", tok, nil)
	assert.EqualValues(t, 0, out["totalCount"])

	_, out = f.do(t, http.MethodGet, "/api/wallet", tok, nil)
	assert.Equal(t, "40", out["balance"])

	_, out = f.do(t, http.MethodGet, "/api/orders", tok, nil)
	assert.EqualValues(t, 2, out["total"])
}

func TestMerchantBrowsingRecordsPolicy(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 9)
	_, out := f.do(t, http.MethodGet, "/api/merchants", tok, nil)
	assert.Len(t, out["records"], 2)

	w, _ := f.do(t, http.MethodGet, "/api/merchants/99", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/merchants/20", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	f.do(t, http.MethodPost, "/api/cart/items", tok, map[string]any{
		"item": map[string]any{"id": 5, "name": "Pork dumplings", "price": "15"}, "merchantId": 20, "merchantName": "Dumpling Bar"})
	_, out = f.do(t, http.MethodGet, "/api/cart", tok, nil)
	assert.Equal(t, "17", out["grandTotal"])
}

func TestCheckout_MissingDeliveryIsReported(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 2)
	f.fillCart(t, tok)

	w, out := f.do(t, http.MethodPost, "/api/checkout", tok, map[string]any{"paymentMethod": "wechat"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := errorBody(t, out)
	assert.Equal(t, "missing_delivery", e["code"])
	assert.EqualValues(t, 10, e["merchantId"])

	list, total := f.svc.ListOrders(context.Background(), 2, 1, 10)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestCheckout_InsufficientBalanceBlocksBeforeCreating(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 3)
	f.do(t, http.MethodPut, "/api/profile", tok, map[string]any{"phone": "138", "address": "1 Main St"})
	f.fillCart(t, tok)

	w, out := f.do(t, http.MethodPost, "/api/checkout", tok, map[string]any{"paymentMethod": "balance"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_balance", errorBody(t, out)["code"])

	w, _ = f.do(t, http.MethodPost, "/api/checkout", tok, map[string]any{"paymentMethod": "paypal"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_RedirectThenAwait(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 4)
	f.do(t, http.MethodPut, "/api/profile", tok, map[string]any{"phone": "138", "address": "1 Main St"})
	w, _ := f.do(t, http.MethodPost, "/api/cart/items", tok, map[string]any{
		"item": map[string]any{"id": 1, "name": "Beef noodles", "price": "20"}, "merchantId": 10, "merchantName": "Noodle House"})
	require.Equal(t, http.StatusOK, w.Code)

	w, out := f.do(t, http.MethodPost, "/api/checkout", tok, map[string]any{"paymentMethod": "alipay"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, out["pending"])
	redirects := out["redirects"].([]any)
	require.Len(t, redirects, 1)
	orderNo := redirects[0].(map[string]any)["orderNo"].(string)
	require.NotEmpty(t, orderNo)

	_, out = f.do(t, http.MethodGet, "/api/payment/alipay/status/"+orderNo, tok, nil)
	assert.Equal(t, "pending", out["outcome"])

	w, _ = f.do(t, http.MethodPost, "/api/payment/notify", "", map[string]any{"orderNo": orderNo, "method": "alipay"})
	require.Equal(t, http.StatusOK, w.Code)

	_, out = f.do(t, http.MethodGet, "/api/payment/alipay/status/"+orderNo, tok, nil)
	assert.Equal(t, "paid", out["outcome"])
}

func TestOrderActions(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 5)
	o, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: 5, RestaurantID: 10, Items: []domain.CreateOrderItem{{MenuItemID: 1, Quantity: 1}}, Address: "a", Phone: "b"})
	require.NoError(t, err)
	id := strconv.FormatInt(o.ID, 10)

	w, _ := f.do(t, http.MethodGet, "/api/orders/"+id, f.token(t, 6), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodPut, "/api/orders/"+id+"/confirm", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out := f.do(t, http.MethodPut, "/api/orders/"+id+"/cancel", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", out["status"])

	w, _ = f.do(t, http.MethodPut, "/api/orders/abc/cancel", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLocationResolve(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 1)

	w, out := f.do(t, http.MethodPost, "/api/location/resolve", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 31.23, out["latitude"], 1e-9)

	_, out = f.do(t, http.MethodGet, "/api/location", tok, nil)
	assert.NotNil(t, out["record"])

	w, _ = f.do(t, http.MethodDelete, "/api/location", tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOrderEvents_StreamsPushedChange(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, 8)
	o, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		UserID: 8, RestaurantID: 10, Items: []domain.CreateOrderItem{{MenuItemID: 1, Quantity: 1}}, Address: "a", Phone: "b"})
	require.NoError(t, err)

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/orders/"+strconv.FormatInt(o.ID, 10)+"/events?view=v1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, prefix) {
				return line
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}
	next("event:status")
	assert.Contains(t, next("data:"), "PENDING")

	w, out := f.do(t, http.MethodPut, "/api/views/v1/visibility", tok, map[string]any{"visible": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["visible"])
	w, _ = f.do(t, http.MethodPut, "/api/views/v1/visibility", tok, map[string]any{"visible": true})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodPut, "/api/views/missing/visibility", tok, map[string]any{"visible": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err = f.svc.CompletePayment(context.Background(), o.OrderNo, "wechat")
	require.NoError(t, err)

	next("event:change")
	data := next("data:")
	assert.Contains(t, data, `"to":"PAID"`)
	assert.Contains(t, data, "Order status updated")
}
