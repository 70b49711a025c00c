package queuerepo_test

import (
	"context"
	"testing"

	"fulfillment/internal/adapters/out/postgres/pgtest"
	"fulfillment/internal/adapters/out/postgres/queuerepo"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/suite"
)

type CapacityQueueIntegrationTestSuite struct {
	suite.Suite
	database *pgtest.Database
	queue    *queuerepo.GormCapacityQueue
}

func (suite *CapacityQueueIntegrationTestSuite) SetupSuite() {
	database, err := pgtest.Start(context.Background())
	suite.Require().NoError(err)
	suite.database = database
	suite.Require().NoError(database.DB.AutoMigrate(&queuerepo.MarkerDTO{}))
	suite.queue = queuerepo.NewGormCapacityQueue(database.DB, kernel.SystemClock{})
}

func (suite *CapacityQueueIntegrationTestSuite) SetupTest() {
	suite.Require().NoError(suite.database.DB.Exec("TRUNCATE TABLE capacity_queue").Error)
}

func (suite *CapacityQueueIntegrationTestSuite) TearDownSuite() {
	if suite.database != nil {
		suite.Require().NoError(suite.database.Terminate(context.Background()))
	}
}

func (suite *CapacityQueueIntegrationTestSuite) TestEnqueueDequeue() {
	ctx := context.Background()

	first, err := suite.queue.Enqueue(ctx, []byte(`{"tenantId":"pardos","orderId":"o-1"}`))
	suite.Require().NoError(err)
	_, err = suite.queue.Enqueue(ctx, []byte(`{"tenantId":"pardos","orderId":"o-2"}`))
	suite.Require().NoError(err)

	depth, err := suite.queue.ApproximateDepth(ctx)
	suite.Require().NoError(err)
	suite.Equal(2, depth)

	suite.Require().NoError(suite.queue.Dequeue(ctx, first))
	suite.ErrorIs(suite.queue.Dequeue(ctx, first), errs.ErrObjectNotFound)

	depth, err = suite.queue.ApproximateDepth(ctx)
	suite.Require().NoError(err)
	suite.Equal(1, depth)
}

func TestCapacityQueueIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(CapacityQueueIntegrationTestSuite))
}
