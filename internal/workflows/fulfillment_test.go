package workflows_test

import (
	"testing"
	"time"

	"fulfillment/internal/core/application/orchestration"
	"fulfillment/internal/core/domain/model/order"
	"fulfillment/internal/core/ports"
	"fulfillment/internal/workflows"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

type FulfillmentWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env *testsuite.TestWorkflowEnvironment
	a   *workflows.Activities
}

func (s *FulfillmentWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.a = &workflows.Activities{}
	s.env.RegisterActivity(s.a)
}

func (s *FulfillmentWorkflowTestSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *FulfillmentWorkflowTestSuite) input(manual ...order.Stage) workflows.Input {
	plan := orchestration.AutomaticPlan()
	plan.Manual = map[order.Stage]bool{}
	for _, stage := range manual {
		plan.Manual[stage] = true
	}
	return workflows.Input{TenantID: "pardos", OrderID: "o-1", Plan: plan, CapacityWait: time.Hour}
}

func stageIs(stage order.Stage) interface{} {
	return mock.MatchedBy(func(req workflows.StageRequest) bool { return req.Stage == stage })
}

func (s *FulfillmentWorkflowTestSuite) expectAutomaticRun() {
	for _, stage := range []order.Stage{order.StageCooking, order.StagePackaging, order.StageDelivery} {
		s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(stage)).Return(nil).Once()
	}
	s.env.OnActivity(s.a.RequestDeliverySlot, mock.Anything, mock.Anything).
		Return(ports.Outcome{Success: true, QueuePosition: 1}, nil).Once()
	s.env.OnActivity(s.a.CompleteStage, mock.Anything, stageIs(order.StageDelivery)).Return(nil).Once()
	s.env.OnActivity(s.a.ReleaseDeliverySlot, mock.Anything, mock.Anything).Return(nil).Once()
	s.env.OnActivity(s.a.StartStage, mock.Anything, stageIs(order.StageDelivered)).Return(nil).Once()
}

func (s *FulfillmentWorkflowTestSuite) result() workflows.Result {
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result workflows.Result
	s.NoError(s.env.GetWorkflowResult(&result))
	return result
}

func (s *FulfillmentWorkflowTestSuite) TestAutomaticPlan_Delivers() {
	s.expectAutomaticRun()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input())

	s.Equal(workflows.Result{FinalStage: "DELIVERED", Outcome: workflows.OutcomeDelivered}, s.result())
}

func (s *FulfillmentWorkflowTestSuite) TestManualCooking_CompletesWithConfirmingActor() {
	s.expectAutomaticRun()
	s.env.OnActivity(s.a.AwaitConfirmation, mock.Anything, mock.MatchedBy(func(req workflows.ConfirmationRequest) bool {
		return req.Stage == order.StageCooking && req.Timeout == orchestration.DefaultConfirmationTimeout
	})).Return(ports.Outcome{Success: true, Actor: "chef-1"}, nil).Once()
	s.env.OnActivity(s.a.CompleteStage, mock.Anything, mock.MatchedBy(func(req workflows.StageRequest) bool {
		return req.Stage == order.StageCooking && req.Actor == "chef-1"
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input(order.StageCooking))

	s.Equal(workflows.OutcomeDelivered, s.result().Outcome)
}

func (s *FulfillmentWorkflowTestSuite) TestRejectedConfirmation_FailsStage() {
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StageCooking)).Return(nil).Once()
	s.env.OnActivity(s.a.AwaitConfirmation, mock.Anything, mock.Anything).Return(ports.Outcome{},
		sdktemporal.NewNonRetryableApplicationError("burnt", ports.FailureConfirmationRejected, nil)).Once()
	s.env.OnActivity(s.a.FailStage, mock.Anything, mock.MatchedBy(func(req workflows.StageRequest) bool {
		return req.Stage == order.StageCooking && req.Reason == "burnt"
	})).Return(nil).Once()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input(order.StageCooking))

	s.Equal(workflows.Result{FinalStage: "COOKING", Outcome: workflows.OutcomeRejected}, s.result())
}

func (s *FulfillmentWorkflowTestSuite) TestExpiredConfirmation_ExpiresStage() {
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StageCooking)).Return(nil).Once()
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StagePackaging)).Return(nil).Once()
	s.env.OnActivity(s.a.AwaitConfirmation, mock.Anything, mock.Anything).Return(ports.Outcome{},
		sdktemporal.NewNonRetryableApplicationError("expired", ports.FailureTokenExpired, nil)).Once()
	s.env.OnActivity(s.a.ExpireStage, mock.Anything, stageIs(order.StagePackaging)).Return(nil).Once()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input(order.StagePackaging))

	s.Equal(workflows.Result{FinalStage: "PACKAGING", Outcome: workflows.OutcomeExpired}, s.result())
}

func (s *FulfillmentWorkflowTestSuite) TestCapacityWaitExpired_ExpiresPackaging() {
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StageCooking)).Return(nil).Once()
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StagePackaging)).Return(nil).Once()
	s.env.OnActivity(s.a.RequestDeliverySlot, mock.Anything, mock.Anything).Return(ports.Outcome{},
		sdktemporal.NewNonRetryableApplicationError("capacity wait expired", ports.FailureTokenExpired, nil)).Once()
	s.env.OnActivity(s.a.ExpireStage, mock.Anything, stageIs(order.StagePackaging)).Return(nil).Once()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input())

	s.Equal(workflows.Result{FinalStage: "PACKAGING", Outcome: workflows.OutcomeExpired}, s.result())
}

// A failure after the slot was granted still returns the slot.
func (s *FulfillmentWorkflowTestSuite) TestFailureInDelivery_ReleasesSlot() {
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StageCooking)).Return(nil).Once()
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StagePackaging)).Return(nil).Once()
	s.env.OnActivity(s.a.RequestDeliverySlot, mock.Anything, mock.Anything).
		Return(ports.Outcome{Success: true, QueuePosition: 5}, nil).Once()
	s.env.OnActivity(s.a.AdvanceStage, mock.Anything, stageIs(order.StageDelivery)).
		Return(sdktemporal.NewNonRetryableApplicationError("bad transition", "InvalidTransition", nil)).Once()
	s.env.OnActivity(s.a.ReleaseDeliverySlot, mock.Anything, mock.Anything).Return(nil).Once()

	s.env.ExecuteWorkflow(workflows.FulfillmentWorkflow, s.input())

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestFulfillmentWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(FulfillmentWorkflowTestSuite))
}
