package orchestrator

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GrayGhostDev/leadflow/internal/cadence"
	"github.com/GrayGhostDev/leadflow/internal/delivery"
	"github.com/GrayGhostDev/leadflow/internal/domain"
)

// Tick processes every due (lead, campaign) pair in this worker's partition.
// Each pair transitions under its own lease; one pair's failure never stalls
// the rest. Returns the number of pairs processed.
func (o *Orchestrator) Tick(ctx context.Context) (int, error) {
	now := o.now().UTC()
	due, err := o.store.DueEnrollments(ctx, now, o.config.TickBatchSize)
	if err != nil {
		return 0, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Concurrency)

	processed := 0
	for _, enrollment := range due {
		if !o.ownsPartition(enrollment.LeadID) {
			continue
		}
		processed++
		group.Go(func() error {
			if err := o.processPair(groupCtx, enrollment.LeadID, enrollment.CampaignID, now); err != nil {
				o.log.Error("Failed to process pair",
					zap.String("lead_id", enrollment.LeadID),
					zap.String("campaign_id", enrollment.CampaignID),
					zap.Error(err))
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return processed, err
	}
	return processed, nil
}

// ownsPartition reports whether this worker is responsible for the lead.
func (o *Orchestrator) ownsPartition(leadID string) bool {
	if o.config.Partitions <= 1 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(leadID))
	return int(h.Sum32())%o.config.Partitions == o.config.PartitionIndex
}

// processPair runs one transition for the pair under its lease. Losing the
// lease race produces no side effects at all.
func (o *Orchestrator) processPair(ctx context.Context, leadID, campaignID string, now time.Time) error {
	key := leadID + "|" + campaignID
	if err := o.store.AcquireLease(ctx, key, o.config.WorkerID, o.config.LeaseTTL, now); err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) {
			o.log.Debug("Lease held elsewhere; skipping pair", zap.String("key", key))
			return nil
		}
		return err
	}
	defer func() {
		if err := o.store.ReleaseLease(context.WithoutCancel(ctx), key, o.config.WorkerID); err != nil {
			o.log.Warn("Failed to release lease", zap.String("key", key), zap.Error(err))
		}
	}()

	// Fresh reads inside the lease: the due-set snapshot may be stale.
	enrollment, err := o.store.GetEnrollment(ctx, leadID, campaignID)
	if err != nil {
		return err
	}
	if !enrollment.State.Active() || enrollment.NextActionAt.After(now) {
		return nil
	}

	lead, err := o.store.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	campaign, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignPaused {
		// Paused campaigns freeze their pairs in place.
		return nil
	}

	history, err := o.events.History(ctx, leadID, "")
	if err != nil {
		return err
	}
	if exit, reason := o.campaignExitEvent(campaign, enrollment, history); exit {
		return o.exitEarly(ctx, &enrollment, reason)
	}

	switch enrollment.State {
	case domain.StateWaitingForEngagement:
		return o.advanceAfterWait(ctx, &enrollment, lead, campaign, history, now)
	default:
		return o.runStep(ctx, &enrollment, lead, campaign, history, now)
	}
}

// campaignExitEvent scans history recorded since enrollment for a
// campaign-level exit event.
func (o *Orchestrator) campaignExitEvent(campaign domain.Campaign, enrollment domain.Enrollment, history []domain.EngagementEvent) (bool, string) {
	for _, event := range history {
		if event.OccurredAt().Before(enrollment.EnrolledAt) {
			continue
		}
		if campaign.ExitsEarlyOn(event.Type) {
			return true, string(event.Type)
		}
	}
	return false, ""
}

// runStep handles a step_pending pair: consult cadence, then hold, escalate
// or execute.
func (o *Orchestrator) runStep(ctx context.Context, enrollment *domain.Enrollment, lead domain.Lead, campaign domain.Campaign, history []domain.EngagementEvent, now time.Time) error {
	step, ok := campaign.Step(enrollment.StepIndex)
	if !ok {
		return o.complete(ctx, enrollment)
	}

	decision := o.cadence.Next(lead, *enrollment, step, history, now)
	switch decision.Kind {
	case cadence.DecisionHandoff:
		return o.escalate(ctx, enrollment, &campaign)
	case cadence.DecisionHold:
		enrollment.NextActionAt = decision.At
		enrollment.UpdatedAt = now
		o.log.Info("Pair held",
			zap.String("lead_id", enrollment.LeadID),
			zap.String("campaign_id", enrollment.CampaignID),
			zap.String("reason", decision.Reason),
			zap.Time("until", decision.At))
		return o.store.UpdateEnrollment(ctx, enrollment)
	}

	if decision.At.After(now) {
		enrollment.NextActionAt = decision.At
		enrollment.UpdatedAt = now
		return o.store.UpdateEnrollment(ctx, enrollment)
	}
	return o.executeStep(ctx, enrollment, lead, step, decision, now)
}

// executeStep dispatches the current step exactly once and moves the pair to
// waiting_for_engagement. Delivery runs fire-and-forget: its outcome updates
// the execution record but never blocks the pair's progress.
func (o *Orchestrator) executeStep(ctx context.Context, enrollment *domain.Enrollment, lead domain.Lead, step domain.CampaignStep, decision cadence.Decision, now time.Time) error {
	// No double-send across restarts: a terminal execution for this step
	// means it already ran, so only advance the state machine.
	existing, err := o.store.GetExecution(ctx, enrollment.LeadID, enrollment.CampaignID, enrollment.StepIndex)
	switch {
	case err == nil && existing.Status.Terminal():
		o.log.Info("Step already executed; skipping dispatch",
			zap.String("lead_id", enrollment.LeadID),
			zap.String("campaign_id", enrollment.CampaignID),
			zap.Int("step_index", enrollment.StepIndex))
		return o.enterWait(ctx, enrollment, step, now)
	case err == nil:
		// A pending row means a previous run died before its dispatch outcome
		// settled. The send may or may not have left, so settle it failed
		// rather than re-create the row (conflict) or re-dispatch (double-send).
		return o.settleInterrupted(ctx, enrollment, existing, step, now)
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	variantID := ""
	if step.ExperimentID != "" {
		assigned, err := o.experiments.Assign(ctx, step.ExperimentID, enrollment.LeadID)
		if err != nil {
			return err
		}
		variantID = assigned
	}

	content, err := o.renderer.Render(ctx, step.TemplateRef, variantID, lead.Attributes)
	if err != nil {
		return err
	}

	execution := domain.CampaignExecution{
		ID:          o.newID(),
		LeadID:      enrollment.LeadID,
		CampaignID:  enrollment.CampaignID,
		StepIndex:   enrollment.StepIndex,
		Channel:     decision.Channel,
		ScheduledAt: now,
		Status:      domain.ExecutionPending,
		VariantID:   variantID,
	}
	if err := o.store.CreateExecution(ctx, &execution); err != nil {
		return err
	}

	enrollment.State = domain.StateStepExecuting
	enrollment.UpdatedAt = now
	if err := o.store.UpdateEnrollment(ctx, enrollment); err != nil {
		return err
	}

	o.dispatchAsync(ctx, execution, delivery.Delivery{
		LeadID:      enrollment.LeadID,
		CampaignID:  enrollment.CampaignID,
		StepIndex:   enrollment.StepIndex,
		Channel:     decision.Channel,
		TemplateRef: step.TemplateRef,
		VariantID:   variantID,
		Content:     content,
	})

	return o.enterWait(ctx, enrollment, step, now)
}

// settleInterrupted closes out an execution stranded in pending by a crash
// between CreateExecution and the dispatch outcome landing. The pair advances
// past the step; without this the re-created execution would conflict on
// every tick and wedge the pair forever.
func (o *Orchestrator) settleInterrupted(ctx context.Context, enrollment *domain.Enrollment, execution domain.CampaignExecution, step domain.CampaignStep, now time.Time) error {
	execution.Status = domain.ExecutionFailed
	execution.LastError = "dispatch interrupted before outcome settled"
	execution.ExecutedAt = now
	if err := o.store.UpdateExecution(ctx, &execution); err != nil {
		return err
	}

	if _, err := o.recorder.Record(ctx, domain.EngagementEvent{
		LeadID:     execution.LeadID,
		Channel:    execution.Channel,
		Type:       domain.EventFailed,
		CampaignID: execution.CampaignID,
		Timestamp:  now.Unix(),
	}); err != nil {
		o.log.Warn("Failed to record interrupted dispatch event",
			zap.String("lead_id", execution.LeadID), zap.Error(err))
	}

	o.log.Warn("Unsettled execution found; marked failed and advancing",
		zap.String("lead_id", execution.LeadID),
		zap.String("campaign_id", execution.CampaignID),
		zap.Int("step_index", execution.StepIndex),
		zap.String("execution_id", execution.ID))
	return o.enterWait(ctx, enrollment, step, now)
}

// enterWait moves the pair into waiting_for_engagement for the step's
// minimum dwell.
func (o *Orchestrator) enterWait(ctx context.Context, enrollment *domain.Enrollment, step domain.CampaignStep, now time.Time) error {
	enrollment.State = domain.StateWaitingForEngagement
	enrollment.LastTouchAt = now
	enrollment.NextActionAt = now.Add(step.MinWait)
	enrollment.UpdatedAt = now
	return o.store.UpdateEnrollment(ctx, enrollment)
}

// dispatchAsync hands the delivery to the dispatcher on a tracked goroutine.
// Outcomes settle the execution record and synthesize a sent/failed event so
// cadence and scoring observe the touch.
func (o *Orchestrator) dispatchAsync(ctx context.Context, execution domain.CampaignExecution, d delivery.Delivery) {
	// Detach from the tick's context so cancellation mid-retry cannot strand
	// the execution record in pending.
	dispatchCtx := context.WithoutCancel(ctx)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		deliveryID, err := o.dispatcher.Dispatch(dispatchCtx, d)
		executedAt := o.now().UTC()
		outcome := domain.EventSent
		execution.ExecutedAt = executedAt
		if err != nil {
			outcome = domain.EventFailed
			execution.Status = domain.ExecutionFailed
			execution.LastError = err.Error()
			o.log.Error("Delivery dispatch failed",
				zap.String("lead_id", execution.LeadID),
				zap.String("campaign_id", execution.CampaignID),
				zap.Int("step_index", execution.StepIndex),
				zap.Error(err))
		} else {
			execution.Status = domain.ExecutionSent
			execution.DeliveryID = deliveryID
		}
		if err := o.store.UpdateExecution(dispatchCtx, &execution); err != nil {
			o.log.Error("Failed to settle execution record",
				zap.String("execution_id", execution.ID), zap.Error(err))
		}

		if _, err := o.recorder.Record(dispatchCtx, domain.EngagementEvent{
			LeadID:     execution.LeadID,
			Channel:    execution.Channel,
			Type:       outcome,
			CampaignID: execution.CampaignID,
			Timestamp:  executedAt.Unix(),
		}); err != nil {
			o.log.Warn("Failed to record dispatch outcome event",
				zap.String("lead_id", execution.LeadID), zap.Error(err))
		}
	}()
}

// advanceAfterWait handles a waiting_for_engagement pair whose minimum dwell
// has elapsed: mark the execution engaged when the step's exit condition was
// met, then move to the next step or complete the campaign.
func (o *Orchestrator) advanceAfterWait(ctx context.Context, enrollment *domain.Enrollment, lead domain.Lead, campaign domain.Campaign, history []domain.EngagementEvent, now time.Time) error {
	step, ok := campaign.Step(enrollment.StepIndex)
	if ok && o.stepExitMet(*enrollment, step, history) {
		if execution, err := o.store.GetExecution(ctx, enrollment.LeadID, enrollment.CampaignID, enrollment.StepIndex); err == nil && execution.Status != domain.ExecutionEngaged {
			execution.Status = domain.ExecutionEngaged
			if err := o.store.UpdateExecution(ctx, &execution); err != nil {
				o.log.Warn("Failed to mark execution engaged",
					zap.String("lead_id", enrollment.LeadID), zap.Error(err))
			}
		}
	}

	if enrollment.StepIndex+1 >= len(campaign.Steps) {
		return o.complete(ctx, enrollment)
	}

	enrollment.State = domain.StateStepPending
	enrollment.StepIndex++
	enrollment.UpdatedAt = now

	next, _ := campaign.Step(enrollment.StepIndex)
	decision := o.cadence.Next(lead, *enrollment, next, history, now)
	if decision.Kind == cadence.DecisionHandoff {
		return o.escalate(ctx, enrollment, &campaign)
	}
	enrollment.NextActionAt = decision.At
	return o.store.UpdateEnrollment(ctx, enrollment)
}

// stepExitMet reports whether an event since the step's touch satisfies its
// exit condition.
func (o *Orchestrator) stepExitMet(enrollment domain.Enrollment, step domain.CampaignStep, history []domain.EngagementEvent) bool {
	if len(step.ExitOn) == 0 {
		return false
	}
	for _, event := range history {
		if event.OccurredAt().Before(enrollment.LastTouchAt) {
			continue
		}
		if step.ExitsOn(event.Type) {
			return true
		}
	}
	return false
}
