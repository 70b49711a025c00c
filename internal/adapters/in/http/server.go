package http

import (
	"context"
	"log/slog"
	"net/http"

	"fulfillment/internal/core/application/admission"
	"fulfillment/internal/core/application/stages"
	"fulfillment/internal/core/application/usecases/commands"
	"fulfillment/internal/core/application/usecases/queries"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/core/domain/model/token"
	"fulfillment/internal/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OrderCreator interface {
	Handle(ctx context.Context, cmd commands.CreateOrderCommand) error
}

type OrderReader interface {
	Handle(ctx context.Context, query queries.GetOrderQuery) (queries.GetOrderQueryResponse, error)
}

type CustomerOrdersReader interface {
	Handle(ctx context.Context, query queries.ListOrdersByCustomerQuery) (queries.ListOrdersByCustomerQueryResponse, error)
}

type StageMachine interface {
	StartStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (*step.Step, error)
	CompleteStage(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (stages.Completion, error)
}

type Confirmations interface {
	Confirm(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor string) (*token.Token, error)
	Reject(ctx context.Context, key kernel.OrderKey, stage order.Stage, actor, reason string) (*token.Token, error)
	SweepExpired(ctx context.Context) (int, error)
	Redeliver(ctx context.Context) (int, error)
}

type Capacity interface {
	RequestDeliverySlot(ctx context.Context, key kernel.OrderKey, continuationToken string) (admission.Admission, error)
	ReleaseDeliverySlot(ctx context.Context, key kernel.OrderKey) (admission.Release, error)
	Snapshot(ctx context.Context) (admission.Snapshot, error)
}

// Server serves the fulfillment REST API.
type Server struct {
	createOrder   OrderCreator
	getOrder      OrderReader
	listOrders    CustomerOrdersReader
	stages        StageMachine
	confirmations Confirmations
	capacity      Capacity

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func NewServer(
	createOrder OrderCreator,
	getOrder OrderReader,
	listOrders CustomerOrdersReader,
	stageMachine StageMachine,
	confirmations Confirmations,
	capacity Capacity,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	return &Server{
		createOrder:   createOrder,
		getOrder:      getOrder,
		listOrders:    listOrders,
		stages:        stageMachine,
		confirmations: confirmations,
		capacity:      capacity,
		metrics:       m,
		gatherer:      gatherer,
		logger:        logger.With("component", "HTTPServer"),
	}
}

// Echo builds a configured echo instance with middleware and routes.
func (s *Server) Echo(ctx context.Context) (*echo.Echo, error) {
	doc, err := LoadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	validator, err := requestValidator(doc)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(s.logger))
	if s.metrics != nil {
		e.Use(instrument(s.metrics))
	}
	e.Use(validator)

	s.Register(e)
	return e, nil
}

// Register mounts the API routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.Health)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/v1")
	api.POST("/orders", s.CreateOrder)
	api.GET("/orders/:tenantId/:orderId", s.GetOrder)
	api.GET("/customers/:customerId/orders", s.ListCustomerOrders)
	api.POST("/orders/:tenantId/:orderId/stages/:stage/start", s.StartStage)
	api.POST("/orders/:tenantId/:orderId/stages/:stage/complete", s.CompleteStage)
	api.POST("/orders/:tenantId/:orderId/stages/:stage/confirm", s.ConfirmStage)
	api.POST("/orders/:tenantId/:orderId/stages/:stage/reject", s.RejectStage)
	api.POST("/orders/:tenantId/:orderId/delivery-slot", s.RequestDeliverySlot)
	api.DELETE("/orders/:tenantId/:orderId/delivery-slot", s.ReleaseDeliverySlot)
	api.GET("/delivery/capacity", s.GetCapacity)
	api.POST("/maintenance/sweep", s.Sweep)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type newOrderRequest struct {
	TenantID   string            `json:"tenantId"`
	OrderID    string            `json:"orderId"`
	CustomerID string            `json:"customerId"`
	AutoStart  bool              `json:"autoStart"`
	Items      []lineItemRequest `json:"items"`
}

type lineItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

type orderRef struct {
	TenantID string `json:"tenantId"`
	OrderID  string `json:"orderId"`
}

// CreateOrder handles POST /api/v1/orders. A missing orderId is generated.
func (s *Server) CreateOrder(c echo.Context) error {
	var req newOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.OrderID == "" {
		req.OrderID = kernel.NewUUID().String()
	}

	key, err := kernel.NewOrderKey(req.TenantID, req.OrderID)
	if err != nil {
		return writeError(c, err)
	}
	items := make([]order.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		item, err := order.NewLineItem(it.ProductID, it.Quantity, it.UnitPrice)
		if err != nil {
			return writeError(c, err)
		}
		items = append(items, item)
	}

	cmd, err := commands.NewCreateOrderCommand(key, req.CustomerID, items, req.AutoStart)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.createOrder.Handle(c.Request().Context(), cmd); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, orderRef{TenantID: key.TenantID(), OrderID: key.OrderID()})
}

// GetOrder handles GET /api/v1/orders/:tenantId/:orderId.
func (s *Server) GetOrder(c echo.Context) error {
	key, err := orderKeyParam(c)
	if err != nil {
		return writeError(c, err)
	}
	query, err := queries.NewGetOrderQuery(key)
	if err != nil {
		return writeError(c, err)
	}

	view, err := s.getOrder.Handle(c.Request().Context(), query)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ListCustomerOrders handles GET /api/v1/customers/:customerId/orders?tenantId=.
func (s *Server) ListCustomerOrders(c echo.Context) error {
	var customerID, tenantID string
	if err := bindPath(c, "customerId", &customerID); err != nil {
		return writeError(c, err)
	}
	if err := runtime.BindQueryParameter("form", true, true, "tenantId", c.QueryParams(), &tenantID); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, err.Error()))
	}

	query, err := queries.NewListOrdersByCustomerQuery(tenantID, customerID)
	if err != nil {
		return writeError(c, err)
	}
	resp, err := s.listOrders.Handle(c.Request().Context(), query)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type stepResponse struct {
	TenantID        string `json:"tenantId"`
	OrderID         string `json:"orderId"`
	Stage           string `json:"stage"`
	Status          string `json:"status"`
	AssignedTo      string `json:"assignedTo,omitempty"`
	CompletedBy     string `json:"completedBy,omitempty"`
	DurationSeconds int64  `json:"durationSeconds"`
}

func toStepResponse(s *step.Step, duration int64) stepResponse {
	return stepResponse{
		TenantID:        s.Key().TenantID(),
		OrderID:         s.Key().OrderID(),
		Stage:           s.Stage().String(),
		Status:          s.Status().String(),
		AssignedTo:      s.AssignedTo(),
		CompletedBy:     s.CompletedBy(),
		DurationSeconds: duration,
	}
}

func (s *Server) StartStage(c echo.Context) error {
	key, stage, req, err := stageRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	st, err := s.stages.StartStage(c.Request().Context(), key, stage, req.Actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toStepResponse(st, 0))
}

func (s *Server) CompleteStage(c echo.Context) error {
	key, stage, req, err := stageRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	done, err := s.stages.CompleteStage(c.Request().Context(), key, stage, req.Actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toStepResponse(done.Step, done.DurationSeconds))
}

type tokenResponse struct {
	TenantID   string `json:"tenantId"`
	OrderID    string `json:"orderId"`
	Scope      string `json:"scope"`
	Status     string `json:"status"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func toTokenResponse(t *token.Token) tokenResponse {
	return tokenResponse{
		TenantID:   t.Key().TenantID(),
		OrderID:    t.Key().OrderID(),
		Scope:      t.Scope().String(),
		Status:     t.Status().String(),
		ResolvedBy: t.ResolvedBy(),
		Reason:     t.Reason(),
	}
}

func (s *Server) ConfirmStage(c echo.Context) error {
	key, stage, req, err := stageRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	t, err := s.confirmations.Confirm(c.Request().Context(), key, stage, req.Actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTokenResponse(t))
}

func (s *Server) RejectStage(c echo.Context) error {
	key, stage, req, err := stageRequest(c)
	if err != nil {
		return writeError(c, err)
	}

	t, err := s.confirmations.Reject(c.Request().Context(), key, stage, req.Actor, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTokenResponse(t))
}

type slotRequest struct {
	ContinuationToken string `json:"continuationToken"`
}

type admissionResponse struct {
	CanProceed    bool   `json:"canProceed"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queuePosition"`
	InFlight      int    `json:"inFlight"`
	MaxCapacity   int    `json:"maxCapacity"`
}

// RequestDeliverySlot answers 200 when admitted and 202 while waiting.
func (s *Server) RequestDeliverySlot(c echo.Context) error {
	key, err := orderKeyParam(c)
	if err != nil {
		return writeError(c, err)
	}
	var req slotRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	adm, err := s.capacity.RequestDeliverySlot(c.Request().Context(), key, req.ContinuationToken)
	if err != nil {
		return writeError(c, err)
	}

	code := http.StatusOK
	if !adm.CanProceed {
		code = http.StatusAccepted
	}
	return c.JSON(code, admissionResponse{
		CanProceed:    adm.CanProceed,
		Status:        adm.Status,
		QueuePosition: adm.QueuePosition,
		InFlight:      adm.InFlight,
		MaxCapacity:   adm.MaxCapacity,
	})
}

type releaseResponse struct {
	Released bool       `json:"released"`
	Granted  []orderRef `json:"granted"`
}

func (s *Server) ReleaseDeliverySlot(c echo.Context) error {
	key, err := orderKeyParam(c)
	if err != nil {
		return writeError(c, err)
	}

	rel, err := s.capacity.ReleaseDeliverySlot(c.Request().Context(), key)
	if err != nil {
		return writeError(c, err)
	}

	resp := releaseResponse{Released: rel.Released, Granted: make([]orderRef, 0, len(rel.Granted))}
	for _, g := range rel.Granted {
		resp.Granted = append(resp.Granted, orderRef{TenantID: g.TenantID(), OrderID: g.OrderID()})
	}
	return c.JSON(http.StatusOK, resp)
}

type capacityResponse struct {
	InFlight    int `json:"inFlight"`
	Waiting     int `json:"waiting"`
	MaxCapacity int `json:"maxCapacity"`
	QueueDepth  int `json:"queueDepth"`
}

func (s *Server) GetCapacity(c echo.Context) error {
	snap, err := s.capacity.Snapshot(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, capacityResponse(snap))
}

type sweepResponse struct {
	Expired     int `json:"expired"`
	Redelivered int `json:"redelivered"`
}

func (s *Server) Sweep(c echo.Context) error {
	ctx := c.Request().Context()
	expired, err := s.confirmations.SweepExpired(ctx)
	if err != nil {
		return writeError(c, err)
	}
	redelivered, err := s.confirmations.Redeliver(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sweepResponse{Expired: expired, Redelivered: redelivered})
}

func orderKeyParam(c echo.Context) (kernel.OrderKey, error) {
	var tenantID, orderID string
	if err := bindPath(c, "tenantId", &tenantID); err != nil {
		return kernel.OrderKey{}, err
	}
	if err := bindPath(c, "orderId", &orderID); err != nil {
		return kernel.OrderKey{}, err
	}
	return kernel.NewOrderKey(tenantID, orderID)
}

func stageRequest(c echo.Context) (kernel.OrderKey, order.Stage, actorRequest, error) {
	var req actorRequest
	key, err := orderKeyParam(c)
	if err != nil {
		return kernel.OrderKey{}, order.StageUnknown, req, err
	}

	var raw string
	if err := bindPath(c, "stage", &raw); err != nil {
		return kernel.OrderKey{}, order.StageUnknown, req, err
	}
	stage, err := order.ParseStage(raw)
	if err != nil {
		return kernel.OrderKey{}, order.StageUnknown, req, err
	}

	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return kernel.OrderKey{}, order.StageUnknown, req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	return key, stage, req, nil
}

func bindPath(c echo.Context, name string, dest *string) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
