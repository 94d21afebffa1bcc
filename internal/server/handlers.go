package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"takeaway-storefront/internal/cart"
	"takeaway-storefront/internal/checkout"
	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/location"
	"takeaway-storefront/internal/payment"
)

type tokenRequest struct {
	UserID  int64  `json:"userId" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// issueToken signs in a shopper for local development only.
func (s *Server) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "userId required")
		return
	}
	tok, err := s.auth.Issue(req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Set(ctxUserID, req.UserID)
	s.session(c).SetProfile(domain.Profile{Phone: req.Phone, Address: req.Address})
	c.JSON(http.StatusOK, gin.H{"token": tok, "userId": req.UserID})
}

func (s *Server) updateProfile(c *gin.Context) {
	var p domain.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid profile")
		return
	}
	sess := s.session(c)
	sess.SetProfile(p)
	c.JSON(http.StatusOK, sess.Profile())
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// syncDelivery seeds delivery info for merchants newly present in the cart.
func (s *Server) syncDelivery(sess *Session) []cart.MerchantCart {
	groups := sess.Cart.GroupByMerchant()
	p := sess.Profile()
	d := checkout.Defaults{Phone: p.Phone, ProfileAddress: p.Address}
	if s.location != nil {
		d.LocationAddress = s.location.DefaultAddress()
	}
	sess.Delivery.Sync(groups, d)
	return groups
}

type cartView struct {
	Groups     []cart.MerchantCart           `json:"groups"`
	TotalCount int                           `json:"totalCount"`
	TotalPrice decimal.Decimal               `json:"totalPrice"`
	GrandTotal decimal.Decimal               `json:"grandTotal"`
	Delivery   map[int64]domain.DeliveryInfo `json:"delivery"`
}

func (s *Server) cartView(sess *Session) cartView {
	groups := s.syncDelivery(sess)
	return cartView{
		Groups:     groups,
		TotalCount: sess.Cart.TotalCount(),
		TotalPrice: sess.Cart.TotalPrice(),
		GrandTotal: sess.Checkout.GrandTotal(groups),
		Delivery:   sess.Delivery.All(),
	}
}

func (s *Server) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, s.cartView(s.session(c)))
}

type addItemRequest struct {
	Item         cart.CatalogItem `json:"item"`
	MerchantID   int64            `json:"merchantId"`
	MerchantName string           `json:"merchantName"`
}

func (s *Server) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid cart item")
		return
	}
	if req.Item.ID <= 0 || req.MerchantID <= 0 || req.Item.Price.IsNegative() {
		s.abort(c, http.StatusBadRequest, "BadRequest", "item id, merchantId and a non-negative price are required")
		return
	}
	sess := s.session(c)
	sess.Cart.AddItem(req.Item, req.MerchantID, req.MerchantName)
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) decrementItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid item id")
		return
	}
	sess := s.session(c)
	sess.Cart.RemoveItem(id)
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) deleteItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid item id")
		return
	}
	sess := s.session(c)
	sess.Cart.DeleteItem(id)
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) clearCart(c *gin.Context) {
	sess := s.session(c)
	sess.Cart.Clear()
	sess.Delivery.Reset()
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) clearMerchant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid merchant id")
		return
	}
	sess := s.session(c)
	sess.Cart.ClearMerchant(id)
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) setDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid merchant id")
		return
	}
	var info domain.DeliveryInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid delivery info")
		return
	}
	sess := s.session(c)
	sess.Delivery.Set(id, info)
	c.JSON(http.StatusOK, s.cartView(sess))
}

func (s *Server) setPolicy(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid merchant id")
		return
	}
	var p checkout.Policy
	if err := c.ShouldBindJSON(&p); err != nil || p.MinOrder.IsNegative() || p.DeliveryFee.IsNegative() {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid merchant policy")
		return
	}
	sess := s.session(c)
	sess.Policies.Set(id, p)
	c.JSON(http.StatusOK, p)
}

func (s *Server) listMerchants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"records": s.catalog.List()})
}

// getMerchant also records the merchant's policy for the shopper's checkout.
func (s *Server) getMerchant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid merchant id")
		return
	}
	m, ok := s.catalog.Merchant(id)
	if !ok {
		s.abort(c, http.StatusNotFound, "NotFound", "merchant not found")
		return
	}
	s.session(c).Policies.Set(m.ID, checkout.Policy{MinOrder: m.MinOrder, DeliveryFee: m.DeliveryFee})
	c.JSON(http.StatusOK, m)
}

func (s *Server) checkoutState(c *gin.Context) {
	sess := s.session(c)
	view := s.cartView(sess)
	bal, known := sess.Wallet.Balance()
	out := gin.H{
		"cart":     view,
		"methods":  sess.Payments.Methods(),
		"loading":  sess.Loading(),
		"balance":  nil,
		"problems": gin.H{},
	}
	if known {
		out["balance"] = bal
	}
	problems := gin.H{}
	for _, m := range sess.Payments.Methods() {
		if err := sess.Checkout.Validate(m); err != nil {
			var v *checkout.ValidationError
			if errors.As(err, &v) {
				problems[m] = v
			}
		}
	}
	out["problems"] = problems
	c.JSON(http.StatusOK, out)
}

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

func (s *Server) submitCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "paymentMethod required")
		return
	}
	sess := s.session(c)
	if !sess.Payments.Supports(req.PaymentMethod) {
		s.abort(c, http.StatusBadRequest, "BadRequest", "unsupported payment method")
		return
	}
	s.syncDelivery(sess)
	if req.PaymentMethod == payment.MethodBalance {
		if _, err := sess.Wallet.Refresh(c.Request.Context()); err != nil {
			s.logger.Warn("refresh balance before checkout", zap.Int64("userId", sess.UserID), zap.Error(err))
		}
	}
	if !sess.submitting.TryLock() {
		s.fail(c, checkout.ErrInProgress)
		return
	}
	sess.handoff.reset()
	res, err := sess.Checkout.Submit(c.Request.Context(), req.PaymentMethod)
	redirects, shown := sess.handoff.take()
	sess.submitting.Unlock()
	if err != nil {
		s.fail(c, err)
		return
	}
	next := ""
	if len(shown) > 0 {
		next = "/orders"
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":     res.Orders,
		"payments":   res.Payments,
		"grandTotal": res.GrandTotal,
		"pending":    res.Pending,
		"redirects":  redirects,
		"next":       next,
	})
}

func (s *Server) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}
	list, total, err := s.session(c).Backend.ListOrders(c.Request.Context(), page, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"records": list, "total": total, "page": page, "size": size})
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	o, err := s.session(c).Backend.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	o, err := s.session(c).Backend.CancelOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) confirmOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	o, err := s.session(c).Backend.ConfirmReceipt(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// awaitPayment is hit when the shopper returns from a redirect provider.
func (s *Server) awaitPayment(c *gin.Context) {
	sess := s.session(c)
	res, err := sess.Poller.Await(c.Request.Context(), c.Param("method"), c.Param("orderNo"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.Outcome == payment.OutcomePaid {
		if _, err := sess.Wallet.Refresh(c.Request.Context()); err != nil {
			s.logger.Warn("refresh balance after payment", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getWallet(c *gin.Context) {
	sess := s.session(c)
	if c.Query("refresh") != "" {
		if _, err := sess.Wallet.Refresh(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
	}
	bal, known := sess.Wallet.Balance()
	out := gin.H{"known": known, "balance": nil}
	if known {
		out["balance"] = bal
		out["updatedAt"] = sess.Wallet.UpdatedAt()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getLocation(c *gin.Context) {
	if s.location == nil {
		s.abort(c, http.StatusServiceUnavailable, "Unavailable", "location is not configured")
		return
	}
	c.JSON(http.StatusOK, s.location.Snapshot())
}

func (s *Server) resolveLocation(c *gin.Context) {
	if s.location == nil {
		s.abort(c, http.StatusServiceUnavailable, "Unavailable", "location is not configured")
		return
	}
	rec, err := s.location.Resolve(c.Request.Context())
	switch {
	case errors.Is(err, location.ErrPermissionDenied):
		s.abort(c, http.StatusForbidden, "PermissionDenied", err.Error())
	case errors.Is(err, location.ErrPositionUnavailable):
		s.abort(c, http.StatusServiceUnavailable, "PositionUnavailable", err.Error())
	case errors.Is(err, location.ErrTimeout):
		s.abort(c, http.StatusGatewayTimeout, "Timeout", err.Error())
	case err != nil:
		s.fail(c, err)
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) clearLocation(c *gin.Context) {
	if s.location != nil {
		s.location.Clear()
	}
	c.Status(http.StatusNoContent)
}

type rechargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) recharge(c *gin.Context) {
	var req rechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid amount")
		return
	}
	sess := s.session(c)
	b, err := s.orders.Recharge(c.Request.Context(), sess.UserID, req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	sess.Wallet.Set(b)
	c.JSON(http.StatusOK, gin.H{"balance": b})
}

type notifyRequest struct {
	OrderNo string `json:"orderNo" binding:"required"`
	Method  string `json:"method" binding:"required"`
}

// paymentNotify stands in for the provider's asynchronous callback.
func (s *Server) paymentNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "orderNo and method required")
		return
	}
	o, err := s.orders.CompletePayment(c.Request.Context(), req.OrderNo, req.Method)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type advanceRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (s *Server) advanceOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "status required")
		return
	}
	req.Status = domain.OrderStatus(strings.ToUpper(string(req.Status)))
	if !req.Status.Valid() {
		s.abort(c, http.StatusBadRequest, "BadRequest", "unknown status")
		return
	}
	o, err := s.orders.Advance(c.Request.Context(), id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
