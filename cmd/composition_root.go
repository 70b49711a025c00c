package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	httpin "fulfillment/internal/adapters/in/http"
	"fulfillment/internal/adapters/out/events"
	"fulfillment/internal/adapters/out/inproc"
	"fulfillment/internal/adapters/out/memory"
	"fulfillment/internal/adapters/out/postgres"
	"fulfillment/internal/adapters/out/postgres/outbox"
	"fulfillment/internal/adapters/out/postgres/queuerepo"
	"fulfillment/internal/adapters/out/temporal"
	"fulfillment/internal/core/application/admission"
	"fulfillment/internal/core/application/confirmation"
	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/application/stages"
	"fulfillment/internal/core/application/usecases/commands"
	"fulfillment/internal/core/application/usecases/queries"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/jobs"
	"fulfillment/internal/metrics"
	"fulfillment/internal/workflows"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"gorm.io/gorm"
)

// CompositionRoot owns every long-lived component of the process.
type CompositionRoot struct {
	cfg      Config
	logger   *slog.Logger
	clock    kernel.Clock
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	gormDB     *gorm.DB
	outbox     *outbox.Outbox
	uowFactory ports.UnitOfWorkFactory
	queue      ports.CapacityQueue

	// downstream receives events directly, or through the outbox relay when
	// storage is postgres.
	downstream ports.EventNotifier
	notifier   ports.EventNotifier

	temporalClient client.Client
	hub            *inproc.Hub
	continuations  ports.Continuations

	machine   *stages.Machine
	waiter    *confirmation.Waiter
	admission *admission.Controller
	driver    *orchestration.Driver
	launcher  commands.Launcher
	plan      orchestration.Plan
}

func NewCompositionRoot(cfg Config, logger *slog.Logger) (*CompositionRoot, error) {
	root := &CompositionRoot{
		cfg:      cfg,
		logger:   logger,
		clock:    kernel.SystemClock{},
		metrics:  metrics.New(),
		registry: prometheus.NewRegistry(),
	}
	root.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	root.metrics.Register(root.registry)

	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}
	root.plan = plan

	root.downstream = events.NewMetricsNotifier(events.NewLogNotifier(logger), root.metrics)

	if err := root.openStorage(); err != nil {
		root.Close()
		return nil, err
	}
	if err := root.openEngine(); err != nil {
		root.Close()
		return nil, err
	}
	if err := root.buildServices(); err != nil {
		root.Close()
		return nil, err
	}
	return root, nil
}

func (c *CompositionRoot) openStorage() error {
	switch c.cfg.Storage {
	case StoragePostgres:
		db, err := postgres.Open(c.cfg.DSN())
		if err != nil {
			return err
		}
		c.gormDB = db
		if err := postgres.Migrate(db); err != nil {
			return err
		}
		c.uowFactory = postgres.NewGormUnitOfWorkFactory(db)
		c.queue = queuerepo.NewGormCapacityQueue(db, c.clock)
		c.outbox = outbox.New(db, c.clock, c.logger)
		c.notifier = c.outbox
	default:
		store := memory.NewStore()
		c.uowFactory = memory.NewUnitOfWorkFactory(store)
		c.queue = memory.NewCapacityQueue()
		c.notifier = c.downstream
	}
	return nil
}

func (c *CompositionRoot) openEngine() error {
	if c.cfg.Engine != EngineTemporal {
		c.hub = inproc.NewHub(c.logger)
		c.continuations = c.hub
		return nil
	}

	tc, err := client.Dial(client.Options{
		HostPort:  c.cfg.TemporalHost,
		Namespace: c.cfg.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(c.logger),
	})
	if err != nil {
		return err
	}
	c.temporalClient = tc
	c.continuations = temporal.NewContinuations(tc, c.logger)
	return nil
}

func (c *CompositionRoot) buildServices() error {
	machine, err := stages.NewMachine(c.uowFactory, c.notifier, c.clock, c.logger)
	if err != nil {
		return err
	}
	waiter, err := confirmation.NewWaiter(c.uowFactory, c.continuations, c.notifier, c.clock, c.logger)
	if err != nil {
		return err
	}
	controller, err := admission.NewController(c.uowFactory, c.queue, c.continuations, c.notifier, c.clock, c.logger,
		admission.Config{MaxDeliveryCapacity: c.cfg.MaxDeliveryCapacity, WaitTimeout: c.cfg.CapacityWaitTimeout})
	if err != nil {
		return err
	}
	c.machine = machine
	c.waiter = waiter.WithOrphanHandler(machine)
	c.admission = controller

	if c.temporalClient != nil {
		c.launcher = workflows.NewStarter(c.temporalClient, c.plan, c.cfg.CapacityWaitTimeout).
			WithTaskQueue(c.cfg.TemporalTaskQueue)
		return nil
	}

	driver, err := orchestration.NewDriver(machine, c.waiter, controller, c.hub, c.plan, c.logger)
	if err != nil {
		return err
	}
	c.driver = driver
	c.launcher = driver
	return nil
}

func (c *CompositionRoot) CreateCreateOrderCommandHandler() commands.CreateOrderCommandHandler {
	var f commands.OrderUoWFactory = commands.OrderUoWFactoryFunc(func() commands.OrderUoW {
		return c.uowFactory.Create()
	})

	var launcher commands.Launcher
	if c.cfg.AutoStart {
		launcher = c.launcher
	}
	return commands.NewCreateOrderCommandHandler(f, c.notifier, launcher, c.clock, c.logger)
}

func (c *CompositionRoot) CreateGetOrderQueryHandler() queries.GetOrderQueryHandler {
	return queries.NewGetOrderQueryHandler(c.uowFactory)
}

func (c *CompositionRoot) CreateListOrdersByCustomerQueryHandler() queries.ListOrdersByCustomerQueryHandler {
	return queries.NewListOrdersByCustomerQueryHandler(c.uowFactory)
}

func (c *CompositionRoot) CreateHTTPServer() *httpin.Server {
	createOrder := c.CreateCreateOrderCommandHandler()
	return httpin.NewServer(
		&createOrder,
		c.CreateGetOrderQueryHandler(),
		c.CreateListOrdersByCustomerQueryHandler(),
		c.machine,
		c.waiter,
		c.admission,
		c.metrics,
		c.registry,
		c.logger,
	)
}

// CreateJobManager builds the maintenance jobs. The outbox relay only
// exists with postgres storage.
func (c *CompositionRoot) CreateJobManager() *jobs.JobManager {
	list := []jobs.Job{
		jobs.NewTokenSweepJob(c.waiter, c.cfg.SweepSchedule, c.metrics, c.logger),
		jobs.NewCapacityHeartbeatJob(c.admission, c.cfg.HeartbeatSchedule, c.metrics, c.logger),
		jobs.NewStaleReservationJob(c.admission, c.cfg.StaleReservationAge, c.cfg.ReaperSchedule, c.metrics, c.logger),
	}
	if c.outbox != nil {
		list = append(list, jobs.NewOutboxRelayJob(c.outbox, c.downstream, c.clock, c.cfg.OutboxSchedule, c.metrics, c.logger))
	}
	return jobs.NewJobManager(list...)
}

// CreateWorker builds a Temporal worker running the fulfillment workflow and
// its activities against this process's services.
func (c *CompositionRoot) CreateWorker() (worker.Worker, error) {
	if c.temporalClient == nil {
		return nil, errors.New("temporal engine is not configured")
	}

	w := worker.New(c.temporalClient, c.cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.FulfillmentWorkflow)
	w.RegisterActivity(&workflows.Activities{
		Machine:   c.machine,
		Waiter:    c.waiter,
		Admission: c.admission,
	})
	return w, nil
}

func (c *CompositionRoot) UsesTemporal() bool {
	return c.temporalClient != nil
}

// Close releases connections and stops in-process orchestrations.
func (c *CompositionRoot) Close() {
	if c.driver != nil {
		c.driver.Close()
	}
	if c.temporalClient != nil {
		c.temporalClient.Close()
	}
	if c.gormDB != nil {
		if sqlDB, err := c.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// NewLogger builds the process logger.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Sweep runs every maintenance job once.
func (c *CompositionRoot) Sweep(ctx context.Context) error {
	return c.CreateJobManager().RunAll(ctx)
}
