package steprepo_test

import (
	"context"
	"testing"
	"time"

	"fulfillment/internal/adapters/out/postgres/pgtest"
	"fulfillment/internal/adapters/out/postgres/steprepo"
	"fulfillment/internal/core/domain/model/kernel"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/domain/model/step"
	"fulfillment/internal/pkg/errs"

	"github.com/stretchr/testify/suite"
)

type StepRepositoryIntegrationTestSuite struct {
	suite.Suite
	database   *pgtest.Database
	repository *steprepo.GormStepRepository
	key        kernel.OrderKey
}

func (suite *StepRepositoryIntegrationTestSuite) SetupSuite() {
	database, err := pgtest.Start(context.Background())
	suite.Require().NoError(err)
	suite.database = database
	suite.Require().NoError(database.DB.AutoMigrate(&steprepo.StepDTO{}))

	suite.key, err = kernel.NewOrderKey("pardos", "o-1")
	suite.Require().NoError(err)
}

func (suite *StepRepositoryIntegrationTestSuite) SetupTest() {
	suite.Require().NoError(suite.database.DB.Exec("TRUNCATE TABLE stage_steps").Error)
	suite.repository = steprepo.NewGormStepRepository(suite.database.DB)
}

func (suite *StepRepositoryIntegrationTestSuite) TearDownSuite() {
	if suite.database != nil {
		suite.Require().NoError(suite.database.Terminate(context.Background()))
	}
}

func (suite *StepRepositoryIntegrationTestSuite) TestAdd_SecondInProgress_ConcurrentUpdate() {
	ctx := context.Background()
	started := time.Now()

	first, err := step.NewStep(suite.key, order.StageCooking, started, step.SystemActor)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.repository.Add(ctx, first))

	second, err := step.NewStep(suite.key, order.StageCooking, started.Add(time.Second), step.SystemActor)
	suite.Require().NoError(err)
	suite.ErrorIs(suite.repository.Add(ctx, second), errs.ErrConcurrentUpdate)
}

func (suite *StepRepositoryIntegrationTestSuite) TestUpdateIfStatus_CompletesOnce() {
	ctx := context.Background()
	started := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC)

	s, err := step.NewStep(suite.key, order.StageCooking, started, step.SystemActor)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.repository.Add(ctx, s))

	duration, err := s.Complete(started.Add(17900*time.Millisecond), "chef-1")
	suite.Require().NoError(err)
	suite.Equal(int64(17), duration)
	suite.Require().NoError(suite.repository.UpdateIfStatus(ctx, s, step.InProgress))

	suite.ErrorIs(suite.repository.UpdateIfStatus(ctx, s, step.InProgress), errs.ErrConcurrentUpdate)

	steps, err := suite.repository.ListByStage(ctx, suite.key, order.StageCooking)
	suite.Require().NoError(err)
	suite.Require().Len(steps, 1)
	suite.Equal(step.Completed, steps[0].Status())
	suite.Equal("chef-1", steps[0].CompletedBy())
	suite.Equal(int64(17), steps[0].DurationSeconds())
}

func (suite *StepRepositoryIntegrationTestSuite) TestUpdateIfStatus_Missing_ObjectNotFound() {
	s, err := step.NewStep(suite.key, order.StagePackaging, time.Now(), step.SystemActor)
	suite.Require().NoError(err)

	suite.ErrorIs(suite.repository.UpdateIfStatus(context.Background(), s, step.InProgress), errs.ErrObjectNotFound)
}

// A stage expired once can be started again; List keeps both records in order.
func (suite *StepRepositoryIntegrationTestSuite) TestList_KeepsHistoryInStartOrder() {
	ctx := context.Background()
	start := time.Now().UTC()

	expired, err := step.NewStep(suite.key, order.StageCooking, start, step.SystemActor)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.repository.Add(ctx, expired))
	suite.Require().NoError(expired.Expire(start.Add(time.Minute)))
	suite.Require().NoError(suite.repository.UpdateIfStatus(ctx, expired, step.InProgress))

	retry, err := step.NewStep(suite.key, order.StageCooking, start.Add(2*time.Minute), step.SystemActor)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.repository.Add(ctx, retry))

	steps, err := suite.repository.List(ctx, suite.key)
	suite.Require().NoError(err)
	suite.Require().Len(steps, 2)
	suite.Equal(step.Expired, steps[0].Status())
	suite.Equal(step.InProgress, steps[1].Status())
	suite.Same(steps[1], step.Latest(steps))
}

func TestStepRepositoryIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(StepRepositoryIntegrationTestSuite))
}
