package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"takeaway-storefront/internal/domain"
)

// APIError carries the server's message verbatim so it can be shown to users.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string { return e.Message }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type page struct {
	Records []domain.Order `json:"records"`
	Total   int            `json:"total"`
}

// Client talks to the order backend on behalf of one signed-in user.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type tokenKey struct{}

// ContextWithToken lets one shared Client act for whichever user the
// request belongs to. An explicit Client.Token wins.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOrders(ctx context.Context, pageNo, pageSize int) ([]domain.Order, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(pageNo))
	q.Set("size", strconv.Itoa(pageSize))
	var out page
	if err := c.do(ctx, http.MethodGet, "/api/orders?"+q.Encode(), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Records, out.Total, nil
}

func (c *Client) CancelOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return c.orderAction(ctx, id, "cancel")
}

func (c *Client) ConfirmReceipt(ctx context.Context, id int64) (*domain.Order, error) {
	return c.orderAction(ctx, id, "confirm")
}

func (c *Client) orderAction(ctx context.Context, id int64, action string) (*domain.Order, error) {
	var out domain.Order
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+strconv.FormatInt(id, 10)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PayOrder(ctx context.Context, id int64, method string) (*domain.Order, error) {
	var out domain.Order
	body := map[string]string{"paymentMethod": method}
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+strconv.FormatInt(id, 10)+"/pay", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentSession(ctx context.Context, id int64, method string) (*domain.PaymentSession, error) {
	var out domain.PaymentSession
	p := "/api/payment/" + url.PathEscape(method) + "/create/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, http.MethodPost, p, nil, &out); err != nil {
		return nil, err
	}
	if out.OrderID == 0 {
		out.OrderID = id
	}
	out.Method = method
	return &out, nil
}

func (c *Client) QueryPaymentStatus(ctx context.Context, method, orderNo string) (*domain.PaymentStatus, error) {
	var out domain.PaymentStatus
	p := "/api/payment/" + url.PathEscape(method) + "/query?orderNo=" + url.QueryEscape(orderNo)
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	if out.OrderNo == "" {
		out.OrderNo = orderNo
	}
	return &out, nil
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/balance", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = "http://localhost:8080"
	}
	u := strings.TrimRight(base, "/") + path
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.Token
	if token == "" {
		token = tokenFrom(ctx)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: fallbackMessage(resp.StatusCode)}
		}
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	if resp.StatusCode >= 400 || (env.Code != 0 && env.Code != 200) {
		msg := env.Message
		if msg == "" {
			msg = fallbackMessage(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func fallbackMessage(status int) string {
	if status == http.StatusUnauthorized {
		return "please sign in again"
	}
	return "request failed, please try again"
}
