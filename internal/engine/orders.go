package engine

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/andyluo22/mini-hft/internal/logging"
	"github.com/gin-gonic/gin"
)

type OrderRequest struct {
	ID     uint64 `json:"id" binding:"required"`
	Trader uint64 `json:"trader"`
	Side   string `json:"side" binding:"required,oneof=bid ask buy sell"`
	Type   string `json:"type" binding:"omitempty,oneof=limit market"`
	TIF    string `json:"tif" binding:"omitempty,oneof=day ioc fok"`
	Price  int64  `json:"price" binding:"gte=0"`
	Qty    int64  `json:"qty" binding:"required,gt=0"`
}

type ReplaceRequest struct {
	Trader uint64 `json:"trader"`
	Price  int64  `json:"price" binding:"required,gt=0"`
	Qty    int64  `json:"qty" binding:"required,gt=0"`
	TIF    string `json:"tif" binding:"omitempty,oneof=day ioc fok"`
}

type BookResponse struct {
	Bid    *Price   `json:"bid"`
	Ask    *Price   `json:"ask"`
	Mid    *float64 `json:"mid"`
	Spread *Price   `json:"spread"`
}

// OrdersHandler exposes the match engine over HTTP.
type OrdersHandler struct {
	engine *MatchEngine
}

func NewOrdersHandler(engine *MatchEngine) *OrdersHandler {
	return &OrdersHandler{engine: engine}
}

func parseTIF(raw string) TimeInForce {
	switch raw {
	case "ioc":
		return IOC
	case "fok":
		return FOK
	}
	return Day
}

func (req OrderRequest) order() (Order, error) {
	side, err := ParseSide(req.Side)
	if err != nil {
		return Order{}, err
	}
	o := Order{
		ID:     OrderID(req.ID),
		Trader: TraderID(req.Trader),
		Side:   side,
		Type:   Limit,
		TIF:    parseTIF(req.TIF),
		Price:  Price(req.Price),
		Qty:    Qty(req.Qty),
	}
	if req.Type == "market" {
		o.Type = Market
		if req.TIF == "" {
			o.TIF = IOC
		}
	}
	return o, nil
}

func orderStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnknownOrder):
		return http.StatusNotFound
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicateOrder), errors.Is(err, ErrFOKUnfilled):
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func orderID(c *gin.Context) (OrderID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return OrderID(id), true
}

func (h *OrdersHandler) Submit(c *gin.Context) {
	logger := logging.NewLogger(c.Request.Context())

	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o, err := req.order()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Submit(o)
	if err != nil {
		logger.LogDebugf("submit_order", "order %d rejected: %v", o.ID, err)
		c.JSON(orderStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *OrdersHandler) Replace(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.Replace(TraderID(req.Trader), id, Price(req.Price), Qty(req.Qty), parseTIF(req.TIF))
	if err != nil {
		logging.NewLogger(c.Request.Context()).LogDebugf("replace_order", "replace %d failed: %v", id, err)
		c.JSON(orderStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *OrdersHandler) Cancel(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	res, err := h.engine.Cancel(id)
	if err != nil {
		c.JSON(orderStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *OrdersHandler) Book(c *gin.Context) {
	best := h.engine.Best()

	var resp BookResponse
	if best.HasBid {
		resp.Bid = &best.Bid
	}
	if best.HasAsk {
		resp.Ask = &best.Ask
	}
	if mid, ok := best.Mid(); ok {
		resp.Mid = &mid
	}
	if spread, ok := best.Spread(); ok {
		resp.Spread = &spread
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OrdersHandler) RegisterRoutes(r gin.IRouter) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.Submit)
		orders.PUT("/:id", h.Replace)
		orders.DELETE("/:id", h.Cancel)
	}
	r.GET("/book", h.Book)
}
