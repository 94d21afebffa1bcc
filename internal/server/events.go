package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"takeaway-storefront/internal/ordersync"
	"takeaway-storefront/internal/push"
)

// orderEvents streams status changes of one order for as long as the
// client keeps the connection open.
func (s *Server) orderEvents(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		s.abort(c, http.StatusBadRequest, "BadRequest", "invalid order id")
		return
	}
	sess := s.session(c)
	view := c.Query("view")
	if view == "" {
		view = uuid.NewString()
	}
	log := s.logger.With(zap.Int64("orderId", id), zap.String("view", view))

	changes := make(chan ordersync.Change, 16)
	notify := ordersync.NotifierFunc(func(ch ordersync.Change) {
		select {
		case changes <- ch:
		default:
			log.Warn("order event dropped, client is too slow", zap.String("to", string(ch.To)))
		}
	})

	var ch push.Channel
	if s.channels != nil {
		ch = s.channels()
	}
	sy := ordersync.New(id, sess.UserID, sess.Backend, ch, notify, s.logger)
	if s.cfg.PollInterval > 0 {
		sy.Interval = s.cfg.PollInterval
	}
	sy.ReconnectDelay = s.cfg.ReconnectDelay

	ctx := c.Request.Context()
	if err := sy.Start(ctx); err != nil {
		if ch != nil {
			_ = ch.Disconnect()
		}
		s.fail(c, err)
		return
	}
	sess.attachView(view, sy)
	defer func() {
		sess.detachView(view, sy)
		sy.Close()
		if ch != nil {
			_ = ch.Disconnect()
		}
	}()

	status := sy.Status()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-View-ID", view)
	c.SSEvent("status", gin.H{"orderId": id, "view": view, "status": status, "label": status.Label()})
	c.Writer.Flush()
	if status.Terminal() {
		return
	}
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-changes:
			c.SSEvent("change", ev)
			return !ev.To.Terminal()
		}
	})
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (s *Server) setVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "BadRequest", "visible required")
		return
	}
	sy, ok := s.session(c).view(c.Param("view"))
	if !ok {
		s.abort(c, http.StatusNotFound, "NotFound", "view not found")
		return
	}
	sy.SetVisible(*req.Visible)
	c.JSON(http.StatusOK, gin.H{"view": c.Param("view"), "visible": *req.Visible, "push": sy.ConnState()})
}
