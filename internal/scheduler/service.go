package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/dto"
	"github.com/pubplan/pubplan/internal/models"
)

// PlanStore is the persistence seam for plans, adaptive weights and outcome
// metrics.
type PlanStore interface {
	SavePlan(ctx context.Context, plan *models.SchedulePlan) error
	GetPlanByPublicID(ctx context.Context, publicID string) (*models.SchedulePlan, error)
	ListAssignmentsSince(ctx context.Context, channel string, since time.Time) ([]models.PlanAssignment, error)
	UpsertWeight(ctx context.Context, w *models.AdaptiveWeight) error
	ListWeights(ctx context.Context) ([]models.AdaptiveWeight, error)
	CreateOutcome(ctx context.Context, m *models.OutcomeMetric) error
	ListUnprocessedOutcomes(ctx context.Context, limit int) ([]models.OutcomeMetric, error)
	MarkOutcomesProcessed(ctx context.Context, ids []uint) error
}

const (
	recentPostLookback = 7 * 24 * time.Hour
	sweepBatchSize     = 500
)

// Service wires the pure optimizer to persistence and the API surface.
type Service struct {
	opt         *Optimizer
	store       PlanStore
	successRate float64
	log         zerolog.Logger
}

func NewService(opt *Optimizer, store PlanStore, successRate float64, log zerolog.Logger) *Service {
	return &Service{
		opt:         opt,
		store:       store,
		successRate: successRate,
		log:         log.With().Str("component", "scheduler").Logger(),
	}
}

// WarmWeights loads the persisted adaptive weights into the in-memory table.
func (s *Service) WarmWeights(ctx context.Context) error {
	rows, err := s.store.ListWeights(ctx)
	if err != nil {
		return err
	}
	s.opt.Adaptive().Load(rows)
	s.log.Info().Int("slots", len(rows)).Msg("scheduler.weights_warmed")
	return nil
}

// BuildPlan validates a schedule request, pulls each channel's most recent
// committed post for spacing, runs the assignment and persists the result.
func (s *Service) BuildPlan(ctx context.Context, req *dto.ScheduleRequestDTO) (*dto.SchedulePlanDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	assignReq, err := s.buildAssignRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	plan, err := s.opt.Assign(*assignReq)
	if err != nil {
		return nil, common.Errf(http.StatusBadRequest, "cannot build schedule: %v", err)
	}

	record := planRecord(plan)
	if err := s.store.SavePlan(ctx, record); err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to persist schedule plan")
	}

	return planDTO(plan), nil
}

func (s *Service) buildAssignRequest(ctx context.Context, req *dto.ScheduleRequestDTO) (*AssignRequest, error) {
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, common.Errf(http.StatusBadRequest, "window_end must be after window_start")
	}

	posts := make([]CandidatePost, 0, len(req.Artifacts))
	channels := make(map[config.Channel]struct{})
	for _, a := range req.Artifacts {
		channel := config.Channel(a.Channel)
		kind := config.ContentKind(a.ContentKind)
		if !slices.Contains(config.AllowedChannels, channel) {
			return nil, common.NewAPIError(http.StatusBadRequest, "invalid channel", map[string]any{
				"provided": a.Channel,
				"allowed":  config.AllowedChannels,
			})
		}
		if !slices.Contains(config.AllowedContentKinds, kind) {
			return nil, common.NewAPIError(http.StatusBadRequest, "invalid content kind", map[string]any{
				"provided": a.ContentKind,
				"allowed":  config.AllowedContentKinds,
			})
		}
		priority := config.Priority(a.Priority)
		if !priority.Valid() {
			priority = config.PriorityNormal
		}
		posts = append(posts, CandidatePost{
			ArtifactID:  a.ArtifactID,
			Channel:     channel,
			ContentKind: kind,
			Priority:    priority,
		})
		channels[channel] = struct{}{}
	}

	constraints := make(map[config.Channel]Constraint, len(req.Constraints))
	for _, c := range req.Constraints {
		constraints[config.Channel(c.Channel)] = Constraint{
			Channel:            config.Channel(c.Channel),
			MinGapHours:        c.MinGapHours,
			MaxConcurrentPosts: c.MaxConcurrentPosts,
		}
	}

	audiences := make(map[config.Channel]AudienceProfile, len(req.Audiences))
	for _, a := range req.Audiences {
		audiences[config.Channel(a.Channel)] = AudienceProfile{
			AgeBand:     a.AgeBand,
			MobileShare: a.MobileShare,
		}
	}

	recent := make(map[config.Channel]time.Time, len(channels))
	for channel := range channels {
		history, err := s.store.ListAssignmentsSince(ctx, string(channel), req.WindowStart.Add(-recentPostLookback))
		if err != nil {
			return nil, common.Errf(http.StatusInternalServerError, "failed to load channel history")
		}
		for _, h := range history {
			if h.ScheduledAt.Before(req.WindowStart) {
				if cur, ok := recent[channel]; !ok || h.ScheduledAt.After(cur) {
					recent[channel] = h.ScheduledAt
				}
			}
		}
	}

	return &AssignRequest{
		Posts:         posts,
		Constraints:   constraints,
		Audiences:     audiences,
		WindowStart:   req.WindowStart,
		WindowEnd:     req.WindowEnd,
		MaxConcurrent: req.MaxConcurrent,
		RecentPosts:   recent,
		BulkJobID:     req.BulkJobID,
	}, nil
}

// GetPlan returns a persisted plan with its assignments by public id.
func (s *Service) GetPlan(ctx context.Context, publicID string) (*dto.SchedulePlanDTO, error) {
	record, err := s.store.GetPlanByPublicID(ctx, publicID)
	if err != nil {
		return nil, common.Errf(http.StatusNotFound, "plan not found")
	}

	out := &dto.SchedulePlanDTO{
		PlanID:    record.PublicID,
		BulkJobID: record.BulkJobID,
		CreatedAt: record.CreatedAt,
	}
	for _, a := range record.Assignments {
		var violations []string
		if len(a.Violations) > 0 {
			_ = json.Unmarshal(a.Violations, &violations)
		}
		out.Assignments = append(out.Assignments, dto.PlanAssignmentDTO{
			ArtifactID:  a.ArtifactID,
			Channel:     a.Channel,
			ContentKind: a.ContentKind,
			ScheduledAt: a.ScheduledAt,
			Score:       a.Score,
			Penalty:     a.Penalty,
			Violations:  violations,
		})
	}
	return out, nil
}

// RecordOutcome stores one observed performance sample for the next sweep.
func (s *Service) RecordOutcome(ctx context.Context, out *dto.OutcomeDTO) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}
	if !slices.Contains(config.AllowedChannels, config.Channel(out.Channel)) {
		return common.Errf(http.StatusBadRequest, "invalid channel")
	}
	if !slices.Contains(config.AllowedContentKinds, config.ContentKind(out.ContentKind)) {
		return common.Errf(http.StatusBadRequest, "invalid content kind")
	}

	metric := &models.OutcomeMetric{
		ArtifactID:     out.ArtifactID,
		Channel:        out.Channel,
		ContentKind:    out.ContentKind,
		PostedAt:       out.PostedAt.UTC(),
		EngagementRate: out.EngagementRate,
	}
	if err := s.store.CreateOutcome(ctx, metric); err != nil {
		return common.Errf(http.StatusInternalServerError, "failed to record outcome")
	}
	return nil
}

// SweepOutcomes folds every unprocessed outcome metric into the adaptive
// weights: one posterior update per touched slot, then one smoothing blend.
// Returns the number of metrics processed.
func (s *Service) SweepOutcomes(ctx context.Context) (int, error) {
	metrics, err := s.store.ListUnprocessedOutcomes(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	type tally struct{ successes, failures int }
	tallies := make(map[WeightKey]*tally)
	ids := make([]uint, 0, len(metrics))
	for _, m := range metrics {
		key := WeightKey{
			Channel: config.Channel(m.Channel),
			Kind:    config.ContentKind(m.ContentKind),
			Weekday: m.PostedAt.UTC().Weekday(),
			Hour:    m.PostedAt.UTC().Hour(),
		}
		t, ok := tallies[key]
		if !ok {
			t = &tally{}
			tallies[key] = t
		}
		if m.EngagementRate >= s.successRate {
			t.successes++
		} else {
			t.failures++
		}
		ids = append(ids, m.ID)
	}

	table := s.opt.Adaptive()
	for key, t := range tallies {
		weight := table.Update(key, t.successes, t.failures)
		row := table.Row(key)
		if err := s.store.UpsertWeight(ctx, &row); err != nil {
			return 0, err
		}
		s.log.Debug().
			Str("channel", string(key.Channel)).
			Str("kind", string(key.Kind)).
			Int("weekday", int(key.Weekday)).
			Int("hour", key.Hour).
			Float64("weight", weight).
			Msg("scheduler.weight_updated")
	}

	if err := s.store.MarkOutcomesProcessed(ctx, ids); err != nil {
		return 0, err
	}

	s.log.Info().Int("metrics", len(ids)).Int("slots", len(tallies)).Msg("scheduler.outcomes_swept")
	return len(ids), nil
}

func planRecord(plan *Plan) *models.SchedulePlan {
	record := &models.SchedulePlan{
		PublicID:  plan.PlanID,
		BulkJobID: plan.BulkJobID,
	}
	for _, a := range plan.Assignments {
		var violations datatypes.JSON
		if len(a.Violations) > 0 {
			b, _ := json.Marshal(a.Violations)
			violations = datatypes.JSON(b)
		}
		record.Assignments = append(record.Assignments, models.PlanAssignment{
			ArtifactID:  a.ArtifactID,
			Channel:     string(a.Channel),
			ContentKind: string(a.ContentKind),
			ScheduledAt: a.ScheduledAt,
			Score:       a.Score,
			Penalty:     a.Penalty,
			Violations:  violations,
		})
	}
	return record
}

func planDTO(plan *Plan) *dto.SchedulePlanDTO {
	out := &dto.SchedulePlanDTO{
		PlanID:    plan.PlanID,
		BulkJobID: plan.BulkJobID,
		CreatedAt: plan.CreatedAt,
	}
	for _, a := range plan.Assignments {
		out.Assignments = append(out.Assignments, dto.PlanAssignmentDTO{
			ArtifactID:  a.ArtifactID,
			Channel:     string(a.Channel),
			ContentKind: string(a.ContentKind),
			ScheduledAt: a.ScheduledAt,
			Score:       a.Score,
			Penalty:     a.Penalty,
			Violations:  a.Violations,
		})
	}
	return out
}
