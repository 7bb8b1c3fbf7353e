// Package orchestrator drives each (lead, campaign) pair through its
// campaign steps: a tick-based state machine that consults the cadence and
// experiment engines, dispatches deliveries fire-and-forget, and reacts to
// engagement events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/cadence"
	"github.com/GrayGhostDev/leadflow/internal/delivery"
	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/store"
)

// Store is the entity-store surface the orchestrator needs.
type Store interface {
	store.LeadStore
	store.CampaignStore
	store.EnrollmentStore
	store.ExecutionStore
	store.LeaseStore
}

// EngagementSource serves fresh engagement history. The orchestrator
// re-reads it at the start of every transition instead of caching across
// ticks, so a concurrently recorded event is never missed.
type EngagementSource interface {
	History(ctx context.Context, leadID string, channel domain.Channel) ([]domain.EngagementEvent, error)
}

// EventRecorder appends synthetic engagement events (sent/failed) produced
// by dispatch outcomes.
type EventRecorder interface {
	Record(ctx context.Context, event domain.EngagementEvent) (domain.EngagementEvent, error)
}

// VariantAssigner resolves a subject's experiment variant.
type VariantAssigner interface {
	Assign(ctx context.Context, experimentID, subjectID string) (string, error)
}

// DeliveryDispatcher submits deliveries with its own retry policy.
type DeliveryDispatcher interface {
	Dispatch(ctx context.Context, d delivery.Delivery) (string, error)
}

// Config tunes the tick loop.
type Config struct {
	// WorkerID owns the leases this orchestrator takes.
	WorkerID string
	// Partitions/PartitionIndex split the due-set across workers by lead-id
	// hash. Partitions <= 1 disables partitioning.
	Partitions     int
	PartitionIndex int
	LeaseTTL       time.Duration
	TickBatchSize  int
	Concurrency    int
}

// Orchestrator is the campaign state machine over one entity store.
type Orchestrator struct {
	store       Store
	events      EngagementSource
	recorder    EventRecorder
	cadence     *cadence.Engine
	experiments VariantAssigner
	renderer    delivery.Renderer
	dispatcher  DeliveryDispatcher
	config      Config
	now         func() time.Time
	newID       func() string
	log         *zap.Logger

	inflight sync.WaitGroup
}

// New creates an orchestrator.
func New(s Store, events EngagementSource, recorder EventRecorder, cadenceEngine *cadence.Engine, experiments VariantAssigner, renderer delivery.Renderer, dispatcher DeliveryDispatcher, config Config, now func() time.Time, log *zap.Logger) *Orchestrator {
	if config.WorkerID == "" {
		config.WorkerID = uuid.NewString()
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = 5 * time.Minute
	}
	if config.TickBatchSize <= 0 {
		config.TickBatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:       s,
		events:      events,
		recorder:    recorder,
		cadence:     cadenceEngine,
		experiments: experiments,
		renderer:    renderer,
		dispatcher:  dispatcher,
		config:      config,
		now:         now,
		newID:       func() string { return uuid.NewString() },
		log:         log,
	}
}

// Enroll evaluates the campaign's segment predicate exactly once and, when
// it matches, creates the pair's state-machine row. The predicate is never
// re-evaluated afterwards.
func (o *Orchestrator) Enroll(ctx context.Context, leadID, campaignID string) (domain.Enrollment, error) {
	lead, err := o.store.GetLead(ctx, leadID)
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("failed to load lead: %w", err)
	}
	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign.Status != domain.CampaignActive {
		return domain.Enrollment{}, &domain.ValidationError{Field: "campaign", Reason: "campaign is not active"}
	}
	if lead.Archived {
		return domain.Enrollment{}, domain.ErrNotEligible
	}
	if !campaign.Segment.Matches(lead) {
		return domain.Enrollment{}, domain.ErrNotEligible
	}

	now := o.now().UTC()
	enrollment := domain.Enrollment{
		LeadID:       leadID,
		CampaignID:   campaignID,
		State:        domain.StateStepPending,
		StepIndex:    0,
		NextActionAt: now,
		EnrolledAt:   now,
		UpdatedAt:    now,
	}
	if err := o.store.CreateEnrollment(ctx, &enrollment); err != nil {
		return domain.Enrollment{}, err
	}

	campaign.Metrics.Enrolled++
	campaign.UpdatedAt = now
	if err := o.store.UpdateCampaign(ctx, &campaign); err != nil {
		o.log.Warn("Failed to bump campaign enrollment metric",
			zap.String("campaign_id", campaignID), zap.Error(err))
	}

	o.log.Info("Lead enrolled",
		zap.String("lead_id", leadID),
		zap.String("campaign_id", campaignID))

	return enrollment, nil
}

// Unenroll removes the pair from automation with an early exit.
func (o *Orchestrator) Unenroll(ctx context.Context, leadID, campaignID, reason string) error {
	enrollment, err := o.store.GetEnrollment(ctx, leadID, campaignID)
	if err != nil {
		return err
	}
	if enrollment.State.Terminal() {
		return nil
	}
	return o.exitEarly(ctx, &enrollment, reason)
}

// ClearEscalation returns an escalated pair to automation. Only manual
// clearance resumes an escalated pair.
func (o *Orchestrator) ClearEscalation(ctx context.Context, leadID, campaignID string) error {
	enrollment, err := o.store.GetEnrollment(ctx, leadID, campaignID)
	if err != nil {
		return err
	}
	if enrollment.State != domain.StateEscalated {
		return &domain.ValidationError{Field: "state", Reason: "pair is not escalated"}
	}

	now := o.now().UTC()
	enrollment.State = domain.StateStepPending
	enrollment.EscalatedAt = time.Time{}
	// Clearing also moves the reply watermark so the same reply does not
	// immediately re-escalate.
	enrollment.LastTouchAt = now
	enrollment.NextActionAt = now
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, &enrollment); err != nil {
		return err
	}

	o.log.Info("Escalation cleared",
		zap.String("lead_id", leadID),
		zap.String("campaign_id", campaignID))
	return nil
}

// OnEvent reacts to a newly recorded engagement event for all of the lead's
// active enrollments: campaign-level exits first, then reply escalation,
// then step exit conditions.
func (o *Orchestrator) OnEvent(ctx context.Context, event domain.EngagementEvent) {
	enrollments, err := o.store.EnrollmentsForLead(ctx, event.LeadID)
	if err != nil {
		o.log.Warn("Failed to load enrollments for event",
			zap.String("lead_id", event.LeadID), zap.Error(err))
		return
	}

	for _, enrollment := range enrollments {
		if !enrollment.State.Active() {
			continue
		}
		if err := o.reactToEvent(ctx, enrollment.LeadID, enrollment.CampaignID, event); err != nil {
			// Fault isolation: one pair's failure never halts the others.
			o.log.Error("Failed to react to event",
				zap.String("lead_id", enrollment.LeadID),
				zap.String("campaign_id", enrollment.CampaignID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// reactToEvent applies one event to one pair under the pair lease — the same
// lock Tick transitions hold — so a reaction can never interleave with a
// running step and have its write clobbered by a stale row. A held lease is
// waited out; if the wait exhausts, the transition is only delayed, because
// the tick path re-derives every reaction from history.
func (o *Orchestrator) reactToEvent(ctx context.Context, leadID, campaignID string, event domain.EngagementEvent) error {
	key := leadID + "|" + campaignID
	// A distinct owner per reaction: the worker's own tick must contend with
	// its reactions, not share their lease.
	owner := o.config.WorkerID + "/react/" + o.newID()

	acquire := func() (struct{}, error) {
		err := o.store.AcquireLease(ctx, key, owner, o.config.LeaseTTL, o.now().UTC())
		if err != nil && !errors.Is(err, domain.ErrLeaseHeld) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	// Lease holders finish in milliseconds; poll fast and give up once the
	// lease ceiling has passed.
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 20 * time.Millisecond
	expo.MaxInterval = time.Second
	if _, err := backoff.Retry(ctx, acquire,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(o.config.LeaseTTL)); err != nil {
		return fmt.Errorf("failed to take pair lease: %w", err)
	}
	defer func() {
		if err := o.store.ReleaseLease(context.WithoutCancel(ctx), key, owner); err != nil {
			o.log.Warn("Failed to release lease", zap.String("key", key), zap.Error(err))
		}
	}()

	// Fresh read under the lease: the row may have moved since the event was
	// recorded.
	enrollment, err := o.store.GetEnrollment(ctx, leadID, campaignID)
	if err != nil {
		return err
	}
	if !enrollment.State.Active() {
		return nil
	}

	campaign, err := o.store.GetCampaign(ctx, enrollment.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}

	if campaign.ExitsEarlyOn(event.Type) {
		return o.exitEarly(ctx, &enrollment, string(event.Type))
	}

	// A newly recorded reply always halts automation. The tracker delivers
	// each event exactly once, so the reply watermark only guards the tick
	// path's history rescans, never this one.
	if event.Type == domain.EventReplied && !event.OccurredAt().Before(enrollment.EnrolledAt) {
		return o.escalate(ctx, &enrollment, &campaign)
	}

	if enrollment.State == domain.StateWaitingForEngagement {
		if step, ok := campaign.Step(enrollment.StepIndex); ok && step.ExitsOn(event.Type) {
			return o.completeWait(ctx, &enrollment, event)
		}
	}
	return nil
}

// completeWait ends the waiting state early because the step's exit
// condition was satisfied by an observed event.
func (o *Orchestrator) completeWait(ctx context.Context, enrollment *domain.Enrollment, event domain.EngagementEvent) error {
	if execution, err := o.store.GetExecution(ctx, enrollment.LeadID, enrollment.CampaignID, enrollment.StepIndex); err == nil {
		execution.Status = domain.ExecutionEngaged
		if err := o.store.UpdateExecution(ctx, &execution); err != nil {
			o.log.Warn("Failed to mark execution engaged",
				zap.String("lead_id", enrollment.LeadID), zap.Error(err))
		}
	}

	now := o.now().UTC()
	enrollment.State = domain.StateStepPending
	enrollment.StepIndex++
	enrollment.NextActionAt = now
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, enrollment); err != nil {
		return err
	}

	o.log.Info("Step exit condition met; advancing",
		zap.String("lead_id", enrollment.LeadID),
		zap.String("campaign_id", enrollment.CampaignID),
		zap.String("event_type", string(event.Type)),
		zap.Int("next_step", enrollment.StepIndex))
	return nil
}

func (o *Orchestrator) escalate(ctx context.Context, enrollment *domain.Enrollment, campaign *domain.Campaign) error {
	now := o.now().UTC()
	enrollment.State = domain.StateEscalated
	enrollment.EscalatedAt = now
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, enrollment); err != nil {
		return err
	}

	campaign.Metrics.Escalated++
	campaign.UpdatedAt = now
	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		o.log.Warn("Failed to bump campaign escalation metric",
			zap.String("campaign_id", campaign.ID), zap.Error(err))
	}

	o.log.Info("Pair escalated for human handoff",
		zap.String("lead_id", enrollment.LeadID),
		zap.String("campaign_id", enrollment.CampaignID))
	return nil
}

func (o *Orchestrator) exitEarly(ctx context.Context, enrollment *domain.Enrollment, reason string) error {
	now := o.now().UTC()
	enrollment.State = domain.StateExitedEarly
	enrollment.ExitReason = reason
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, enrollment); err != nil {
		return err
	}

	if campaign, err := o.store.GetCampaign(ctx, enrollment.CampaignID); err == nil {
		campaign.Metrics.Exited++
		campaign.UpdatedAt = now
		if err := o.store.UpdateCampaign(ctx, &campaign); err != nil {
			o.log.Warn("Failed to bump campaign exit metric",
				zap.String("campaign_id", campaign.ID), zap.Error(err))
		}
	}

	o.log.Info("Pair exited early",
		zap.String("lead_id", enrollment.LeadID),
		zap.String("campaign_id", enrollment.CampaignID),
		zap.String("reason", reason))
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, enrollment *domain.Enrollment) error {
	now := o.now().UTC()
	enrollment.State = domain.StateCompleted
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, enrollment); err != nil {
		return err
	}

	if campaign, err := o.store.GetCampaign(ctx, enrollment.CampaignID); err == nil {
		campaign.Metrics.Completed++
		campaign.UpdatedAt = now
		if err := o.store.UpdateCampaign(ctx, &campaign); err != nil {
			o.log.Warn("Failed to bump campaign completion metric",
				zap.String("campaign_id", campaign.ID), zap.Error(err))
		}
	}

	o.log.Info("Campaign completed for lead",
		zap.String("lead_id", enrollment.LeadID),
		zap.String("campaign_id", enrollment.CampaignID))
	return nil
}

// Drain waits for in-flight dispatch goroutines; used on shutdown and in
// tests.
func (o *Orchestrator) Drain() {
	o.inflight.Wait()
}
