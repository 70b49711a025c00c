package commands_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"fulfillment/internal/core/application/usecases/commands"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderRepository struct{ mock.Mock }

func (m *MockOrderRepository) Add(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}
func (m *MockOrderRepository) Get(_ context.Context, _ kernel.OrderKey) (*order.Order, error) {
	return nil, errors.New("not implemented in mock")
}
func (m *MockOrderRepository) UpdateIfStage(_ context.Context, _ *order.Order, _ order.Stage) error {
	return errors.New("not implemented in mock")
}
func (m *MockOrderRepository) ListByCustomer(_ context.Context, _, _ string) ([]*order.Order, error) {
	return nil, errors.New("not implemented in mock")
}

type MockOrderUoW struct{ mock.Mock }

func (m *MockOrderUoW) Begin(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *MockOrderUoW) Commit(ctx context.Context) error   { return m.Called(ctx).Error(0) }
func (m *MockOrderUoW) Rollback(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockOrderUoW) OrderRepository() ports.OrderRepository {
	return m.Called().Get(0).(ports.OrderRepository)
}

type MockOrderUoWFactory struct{ mock.Mock }

func (m *MockOrderUoWFactory) Create() commands.OrderUoW {
	return m.Called().Get(0).(commands.OrderUoW)
}

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) Publish(ctx context.Context, event ports.Event) error {
	return m.Called(ctx, event).Error(0)
}

type MockLauncher struct{ mock.Mock }

func (m *MockLauncher) Launch(ctx context.Context, key kernel.OrderKey) error {
	return m.Called(ctx, key).Error(0)
}

var fixedClock = kernel.ClockFunc(func() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
})

func newHandler(factory commands.OrderUoWFactory, notifier ports.EventNotifier, launcher commands.Launcher) commands.CreateOrderCommandHandler {
	return commands.NewCreateOrderCommandHandler(factory, notifier, launcher, fixedClock, slog.Default())
}

func TestCreateOrderCommandHandler_Handle_Success(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), true)

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	notifier := new(MockNotifier)
	launcher := new(MockLauncher)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", mock.Anything, mock.AnythingOfType("*order.Order")).Return(nil).Once(),
		uow.On("Commit", ctx).Return(nil).Once(),
		notifier.On("Publish", mock.Anything, mock.MatchedBy(func(e ports.Event) bool {
			return e.Type == ports.EventOrderCreated && e.Payload["total"] == int64(5180)
		})).Return(nil).Once(),
		launcher.On("Launch", mock.Anything, testKey(t)).Return(nil).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	h := newHandler(factory, notifier, launcher)
	require.NoError(t, h.Handle(ctx, cmd))

	repo.AssertExpectations(t)
	uow.AssertExpectations(t)
	notifier.AssertExpectations(t)
	launcher.AssertExpectations(t)
}

func TestCreateOrderCommandHandler_Handle_ValidationError(t *testing.T) {
	h := newHandler(new(MockOrderUoWFactory), new(MockNotifier), nil)
	require.Error(t, h.Handle(t.Context(), commands.CreateOrderCommand{}))
}

func TestCreateOrderCommandHandler_Handle_BeginError(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), false)

	uow := new(MockOrderUoW)
	factory := new(MockOrderUoWFactory)
	mock.InOrder(
		factory.On("Create").Return(uow).Once(),
		uow.On("Begin", ctx).Return(errors.New("begin error")).Once(),
	)

	h := newHandler(factory, new(MockNotifier), nil)
	assert.ErrorIs(t, h.Handle(ctx, cmd), errs.ErrStoreUnavailable)
}

func TestCreateOrderCommandHandler_Handle_DuplicateKey(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), true)

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", mock.Anything, mock.Anything).Return(errs.ErrConcurrentUpdate).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	launcher := new(MockLauncher)
	h := newHandler(factory, new(MockNotifier), launcher)

	assert.ErrorIs(t, h.Handle(ctx, cmd), errs.ErrInvalidTransition)
	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
	uow.AssertExpectations(t)
}

// A notifier outage is logged and does not fail the command.
func TestCreateOrderCommandHandler_Handle_PublishErrorIsIgnored(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), false)

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	uow.On("Begin", ctx).Return(nil).Once()
	uow.On("OrderRepository").Return(repo).Once()
	repo.On("Add", mock.Anything, mock.Anything).Return(nil).Once()
	uow.On("Commit", ctx).Return(nil).Once()
	uow.On("Rollback", ctx).Return(nil).Once()

	notifier := new(MockNotifier)
	notifier.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	h := newHandler(factory, notifier, nil)
	require.NoError(t, h.Handle(ctx, cmd))
	notifier.AssertExpectations(t)
}

func TestCreateOrderCommandHandler_Handle_CommitError(t *testing.T) {
	ctx := t.Context()
	cmd, _ := commands.NewCreateOrderCommand(testKey(t), "c-1", testItems(t), false)

	repo := new(MockOrderRepository)
	uow := new(MockOrderUoW)
	mock.InOrder(
		uow.On("Begin", ctx).Return(nil).Once(),
		uow.On("OrderRepository").Return(repo).Once(),
		repo.On("Add", mock.Anything, mock.Anything).Return(nil).Once(),
		uow.On("Commit", ctx).Return(errors.New("commit error")).Once(),
		uow.On("Rollback", ctx).Return(nil).Once(),
	)

	factory := new(MockOrderUoWFactory)
	factory.On("Create").Return(uow).Once()

	h := newHandler(factory, new(MockNotifier), nil)
	assert.ErrorIs(t, h.Handle(ctx, cmd), errs.ErrStoreUnavailable)
	uow.AssertExpectations(t)
}
