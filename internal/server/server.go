package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"takeaway-storefront/internal/checkout"
	"takeaway-storefront/internal/config"
	"takeaway-storefront/internal/domain"
	"takeaway-storefront/internal/infrastructure/backend"
	"takeaway-storefront/internal/location"
	"takeaway-storefront/internal/push"
	"takeaway-storefront/internal/usecase"
)

const (
	ctxRequestID = "request_id"
	ctxUserID    = "user_id"
)

type Server struct {
	cfg      config.Config
	auth     *usecase.AuthService
	backends BackendFactory
	location *location.Cache
	channels func() push.Channel
	// orders is the built-in reference backend; nil when talking to a remote one.
	orders  *usecase.OrderService
	catalog Catalog
	logger  *zap.Logger
	engine  *gin.Engine

	mu       sync.Mutex
	sessions map[int64]*Session
}

type Options struct {
	Config   config.Config
	Auth     *usecase.AuthService
	Backends BackendFactory
	Location *location.Cache
	// Channels builds one push connection per streamed order view.
	Channels func() push.Channel
	Orders   *usecase.OrderService
	Catalog  Catalog
	Logger   *zap.Logger
}

type Catalog interface {
	List() []domain.Merchant
	Merchant(id int64) (*domain.Merchant, bool)
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:      opts.Config,
		auth:     opts.Auth,
		backends: opts.Backends,
		location: opts.Location,
		channels: opts.Channels,
		orders:   opts.Orders,
		catalog:  opts.Catalog,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
	s.engine = gin.New()
	s.engine.Use(requestID(), s.requestLogger(), gin.CustomRecovery(s.recovered), cors())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "env": s.cfg.Env, "backend": s.cfg.BackendMode})
	})
	dev := s.cfg.Env == "dev"
	if dev && s.auth != nil {
		r.POST("/api/dev/token", s.issueToken)
	}

	api := r.Group("/api", s.authenticate())
	{
		api.PUT("/profile", s.updateProfile)

		api.GET("/cart", s.getCart)
		api.POST("/cart/items", s.addItem)
		api.POST("/cart/items/:id/decrement", s.decrementItem)
		api.DELETE("/cart/items/:id", s.deleteItem)
		api.DELETE("/cart", s.clearCart)
		api.DELETE("/cart/merchants/:id", s.clearMerchant)
		api.PUT("/cart/merchants/:id/delivery", s.setDelivery)
		api.PUT("/merchants/:id/policy", s.setPolicy)

		api.GET("/checkout", s.checkoutState)
		api.POST("/checkout", s.submitCheckout)

		api.GET("/orders", s.listOrders)
		api.GET("/orders/:id", s.getOrder)
		api.PUT("/orders/:id/cancel", s.cancelOrder)
		api.PUT("/orders/:id/confirm", s.confirmOrder)
		api.GET("/orders/:id/events", s.orderEvents)
		api.PUT("/views/:view/visibility", s.setVisibility)

		api.GET("/payment/:method/status/:orderNo", s.awaitPayment)
		api.GET("/wallet", s.getWallet)

		api.GET("/location", s.getLocation)
		api.POST("/location/resolve", s.resolveLocation)
		api.DELETE("/location", s.clearLocation)
	}

	if s.catalog != nil {
		api.GET("/merchants", s.listMerchants)
		api.GET("/merchants/:id", s.getMerchant)
	}
	if s.orders != nil {
		api.POST("/wallet/recharge", s.recharge)
		r.POST("/api/payment/notify", s.paymentNotify)
		// stands in for the merchant side; never exposed outside dev
		if dev {
			r.PUT("/api/admin/orders/:id/status", s.advanceOrder)
		}
	}
}

func (s *Server) session(c *gin.Context) *Session {
	uid := c.GetInt64(ctxUserID)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uid]
	if !ok {
		sess = newSession(uid, s.backends(uid), s.cfg, s.logger)
		s.sessions[uid] = sess
	}
	return sess
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = c.GetHeader("Idempotency-Key")
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(ctxRequestID)))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) recovered(c *gin.Context, v any) {
	s.logger.Error("panic in handler", zap.Any("panic", v), zap.String("request_id", c.GetString(ctxRequestID)))
	s.abort(c, http.StatusInternalServerError, "Internal", "internal error")
}

// authenticate accepts the same HS256 bearer tokens the order backend issues
// and forwards the raw token so a remote backend sees the caller.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			s.abort(c, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		if s.auth == nil {
			s.abort(c, http.StatusUnauthorized, "Unauthorized", "authentication unavailable")
			return
		}
		uid, err := s.auth.Verify(token)
		if err != nil {
			s.abort(c, http.StatusUnauthorized, "Unauthorized", "please sign in again")
			return
		}
		c.Set(ctxUserID, uid)
		c.Request = c.Request.WithContext(backend.ContextWithToken(c.Request.Context(), token))
		c.Next()
	}
}

func (s *Server) abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   msg,
			"requestId": c.GetString(ctxRequestID),
		},
	})
}

// fail maps an error onto the error body. Checkout errors carry their notice
// so the UI can show it as is.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		nf       usecase.ErrNotFound
		conflict usecase.ErrConflict
		bad      usecase.ErrBadRequest
		unauth   usecase.ErrUnauthorized
		apiErr   *backend.APIError
		invalid  *checkout.ValidationError
		submit   *checkout.SubmitError
	)
	reqID := c.GetString(ctxRequestID)
	switch {
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": gin.H{
			"code": string(invalid.Kind), "message": invalid.Detail, "requestId": reqID,
			"title": invalid.Title, "merchantId": invalid.MerchantID, "shortfall": invalid.Shortfall,
		}})
	case errors.As(err, &submit):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": gin.H{
			"code": "CheckoutFailed", "message": submit.Detail, "requestId": reqID,
			"title": submit.Title, "orders": submit.Orders,
		}})
	case errors.Is(err, checkout.ErrInProgress):
		s.abort(c, http.StatusConflict, "InProgress", err.Error())
	case errors.As(err, &nf):
		s.abort(c, http.StatusNotFound, "NotFound", err.Error())
	case errors.As(err, &conflict):
		s.abort(c, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &bad):
		s.abort(c, http.StatusBadRequest, "BadRequest", err.Error())
	case errors.As(err, &unauth):
		s.abort(c, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		s.abort(c, status, "Backend", apiErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.abort(c, http.StatusGatewayTimeout, "Timeout", "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err), zap.String("request_id", reqID))
		s.abort(c, http.StatusInternalServerError, "Internal", "internal error")
	}
}
