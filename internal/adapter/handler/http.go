package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/core/service"
)

// HTTPHandler exposes the transfer engine and the history resolver over
// REST. Caller identity arrives in the X-User-ID header; authentication
// itself happens upstream.
type HTTPHandler struct {
	transfers *service.TransferCoordinator
	history   *service.HistoryResolver
	logger    *zap.Logger
}

func NewHTTPHandler(transfers *service.TransferCoordinator, history *service.HistoryResolver, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{transfers: transfers, history: history, logger: logger}
}

// NewRouter wires the Gin engine with routes and middlewares.
func NewRouter(h *HTTPHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.POST("/api/transfers", h.CreateTransfer)
	r.POST("/api/transfers/:id/cancel", h.CancelTransfer)
	r.POST("/api/transfers/:id/complete", h.CompleteTransfer)
	r.GET("/api/items/history", h.ItemHistory)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

type locationRef struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

type transferHTTPRequest struct {
	RequestID        string          `json:"request_id"`
	ItemType         string          `json:"item_type" binding:"required"`
	ItemID           string          `json:"item_id" binding:"required"`
	From             locationRef     `json:"from" binding:"required"`
	To               locationRef     `json:"to" binding:"required"`
	Quantity         decimal.Decimal `json:"quantity"`
	DestinationBoxID string          `json:"destination_box_id"`
	Notes            string          `json:"notes"`
}

type transferHTTPResponse struct {
	TransferID     string `json:"transfer_id"`
	Status         string `json:"status"`
	LotSplit       bool   `json:"lot_split"`
	ChildLotNumber string `json:"child_lot_number,omitempty"`
}

func (h *HTTPHandler) CreateTransfer(c *gin.Context) {
	actor := c.GetHeader("X-User-ID")
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return
	}

	var req transferHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.transfers.Execute(c.Request.Context(), service.TransferRequest{
		RequestID:        req.RequestID,
		ItemType:         domain.ItemType(req.ItemType),
		ItemID:           req.ItemID,
		From:             domain.LocationRef{Type: domain.LocationType(req.From.Type), ID: req.From.ID},
		To:               domain.LocationRef{Type: domain.LocationType(req.To.Type), ID: req.To.ID},
		Quantity:         req.Quantity,
		DestinationBoxID: req.DestinationBoxID,
		Actor:            actor,
		Notes:            req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := transferHTTPResponse{
		TransferID: result.Transfer.ID,
		Status:     string(result.Transfer.Status),
		LotSplit:   result.LotSplit,
	}
	if result.Child != nil {
		resp.ChildLotNumber = result.Child.LotNumber
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *HTTPHandler) CancelTransfer(c *gin.Context) {
	h.transition(c, h.transfers.Cancel)
}

func (h *HTTPHandler) CompleteTransfer(c *gin.Context) {
	h.transition(c, h.transfers.Complete)
}

func (h *HTTPHandler) transition(c *gin.Context, apply func(ctx context.Context, transferID, actor string) (*domain.Transfer, error)) {
	actor := c.GetHeader("X-User-ID")
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return
	}

	transfer, err := apply(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, transferHTTPResponse{
		TransferID: transfer.ID,
		Status:     string(transfer.Status),
	})
}

type historyEventJSON struct {
	Type        string            `json:"type"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
	Description string            `json:"description"`
	User        string            `json:"user,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

type locationJSON struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	BoxID   string `json:"box_id,omitempty"`
	BoxName string `json:"box_name,omitempty"`
}

type lotSummaryJSON struct {
	LotNumber string          `json:"lot_number"`
	Status    string          `json:"status"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type itemHistoryJSON struct {
	ItemFound       bool               `json:"item_found"`
	Message         string             `json:"message,omitempty"`
	ItemType        string             `json:"item_type,omitempty"`
	Item            *itemDetailsJSON   `json:"item,omitempty"`
	CurrentLocation *locationJSON      `json:"current_location,omitempty"`
	ParentLot       *lotSummaryJSON    `json:"parent_lot,omitempty"`
	ChildLots       []lotSummaryJSON   `json:"child_lots,omitempty"`
	History         []historyEventJSON `json:"history,omitempty"`
}

type itemDetailsJSON struct {
	ID             string          `json:"id"`
	Identifier     string          `json:"identifier"`
	TrackingNumber string          `json:"tracking_number"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status"`
	Quantity       decimal.Decimal `json:"quantity"`
}

func (h *HTTPHandler) ItemHistory(c *gin.Context) {
	identifier := c.Query("identifier")
	tracking := c.Query("tracking_number")
	if identifier == "" || tracking == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and tracking_number are required"})
		return
	}

	history, err := h.history.Resolve(c.Request.Context(), identifier, tracking)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toItemHistoryJSON(history))
}

func toItemHistoryJSON(hist *domain.ItemHistory) itemHistoryJSON {
	out := itemHistoryJSON{
		ItemFound: hist.ItemFound,
		Message:   hist.Message,
	}
	// A miss carries only the flag and the message.
	if !hist.ItemFound {
		return out
	}

	out.ItemType = string(hist.ItemType)
	out.Item = &itemDetailsJSON{
		ID:             hist.Item.ID,
		Identifier:     hist.Item.Identifier,
		TrackingNumber: hist.Item.TrackingNumber,
		Description:    hist.Item.Description,
		Status:         string(hist.Item.Status),
		Quantity:       hist.Item.Quantity,
	}
	out.CurrentLocation = &locationJSON{
		Type:    hist.CurrentLocation.Type,
		ID:      hist.CurrentLocation.ID,
		Name:    hist.CurrentLocation.Name,
		BoxID:   hist.CurrentLocation.BoxID,
		BoxName: hist.CurrentLocation.BoxName,
	}
	if hist.ParentLot != nil {
		out.ParentLot = &lotSummaryJSON{
			LotNumber: hist.ParentLot.LotNumber,
			Status:    string(hist.ParentLot.Status),
			Quantity:  hist.ParentLot.Quantity,
		}
	}
	for _, lot := range hist.ChildLots {
		out.ChildLots = append(out.ChildLots, lotSummaryJSON{
			LotNumber: lot.LotNumber,
			Status:    string(lot.Status),
			Quantity:  lot.Quantity,
		})
	}
	for _, ev := range hist.History {
		ej := historyEventJSON{
			Type:        ev.Type,
			Description: ev.Description,
			User:        ev.User,
			Details:     ev.Details,
		}
		if !ev.Timestamp.IsZero() {
			ts := ev.Timestamp
			ej.Timestamp = &ts
		}
		out.History = append(out.History, ej)
	}
	return out
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInvalidStateTransition):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidQuantityForType),
		errors.Is(err, domain.ErrInvalidItemType),
		errors.Is(err, domain.ErrLocationMismatch):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, domain.ErrInsufficientQuantity):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	default:
		h.logger.Error("request failed", zap.Error(err))
	}

	c.JSON(status, gin.H{"error": message})
}
