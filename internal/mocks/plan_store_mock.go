package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pubplan/pubplan/internal/models"
)

type PlanStoreMock struct {
	mock.Mock
}

func (m *PlanStoreMock) SavePlan(ctx context.Context, plan *models.SchedulePlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *PlanStoreMock) GetPlanByPublicID(ctx context.Context, publicID string) (*models.SchedulePlan, error) {
	args := m.Called(ctx, publicID)

	plan, _ := args.Get(0).(*models.SchedulePlan)
	return plan, args.Error(1)
}

func (m *PlanStoreMock) ListAssignmentsSince(ctx context.Context, channel string, since time.Time) ([]models.PlanAssignment, error) {
	args := m.Called(ctx, channel, since)

	assignments, _ := args.Get(0).([]models.PlanAssignment)
	return assignments, args.Error(1)
}

func (m *PlanStoreMock) UpsertWeight(ctx context.Context, w *models.AdaptiveWeight) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *PlanStoreMock) ListWeights(ctx context.Context) ([]models.AdaptiveWeight, error) {
	args := m.Called(ctx)

	rows, _ := args.Get(0).([]models.AdaptiveWeight)
	return rows, args.Error(1)
}

func (m *PlanStoreMock) CreateOutcome(ctx context.Context, metric *models.OutcomeMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

func (m *PlanStoreMock) ListUnprocessedOutcomes(ctx context.Context, limit int) ([]models.OutcomeMetric, error) {
	args := m.Called(ctx, limit)

	metrics, _ := args.Get(0).([]models.OutcomeMetric)
	return metrics, args.Error(1)
}

func (m *PlanStoreMock) MarkOutcomesProcessed(ctx context.Context, ids []uint) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}
