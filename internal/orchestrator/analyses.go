package orchestrator

import (
	"context"
	"encoding/json"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/jobs"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
)

// StartAnalysis starts a job of type t. When recent results exist it returns
// ErrConfirmationRequired unless confirmed is set. A rejected start is recorded
// as the type's start error and the local job is dropped so it can be retried.
func (o *Orchestrator) StartAnalysis(ctx context.Context, t analysis.Type, confirmed bool) error {
	if !t.Valid() {
		return derrors.ValidationError("unknown analysis type").WithContext("analysis_type", string(t)).Build()
	}
	if o.HasRecentData() && !confirmed {
		return ErrConfirmationRequired
	}
	if err := o.tracker.StartJob(t); err != nil {
		return err
	}
	o.setStartErr(t, nil)

	res, err := o.repo.StartAnalysis(ctx, o.project, t)
	return o.afterStart(t, res, err)
}

// RetryAnalysis re-runs type t. A job that failed remotely with a known id is
// retried in place; otherwise a new analysis is started.
func (o *Orchestrator) RetryAnalysis(ctx context.Context, t analysis.Type) error {
	if !t.Valid() {
		return derrors.ValidationError("unknown analysis type").WithContext("analysis_type", string(t)).Build()
	}
	prev, err := o.tracker.RetryJob(t)
	if err != nil {
		return err
	}
	o.setStartErr(t, nil)

	var res analysis.MutationResult
	if prev != nil && prev.Status == analysis.StatusFailed && prev.ID != "" {
		o.logger.Info("Retrying failed analysis step", logfields.Category(string(t)), logfields.JobID(prev.ID))
		res, err = o.repo.RetryStep(ctx, o.project, prev.ID)
	} else {
		res, err = o.repo.StartAnalysis(ctx, o.project, t)
	}
	return o.afterStart(t, res, err)
}

func (o *Orchestrator) afterStart(t analysis.Type, res analysis.MutationResult, err error) error {
	if err == nil && !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "analysis start rejected"
		}
		err = derrors.JobError(msg).WithContext("analysis_type", string(t)).Build()
	}
	if err != nil {
		o.tracker.CancelJob(t)
		o.setStartErr(t, err)
		o.logger.Warn("Analysis start failed", logfields.Category(string(t)), logfields.Error(err))
		return err
	}
	if id := jobID(res.Data); id != "" {
		o.tracker.ApplyEvent(jobs.Event{Type: string(t), Transition: jobs.TransitionCreated, ID: id})
	}
	o.logger.Info("Analysis started", logfields.Category(string(t)))
	return nil
}

// CancelAnalysis drops the local job of type t. When remote cancellation is
// enabled and the job id is known the backend is asked to stop as well; that
// request is best effort and its error does not restore the local job.
func (o *Orchestrator) CancelAnalysis(ctx context.Context, t analysis.Type) (bool, error) {
	job, removed := o.tracker.CancelJob(t)
	if !removed {
		return false, nil
	}
	o.setStartErr(t, nil)
	if !o.cancelRemote || job.ID == "" || !job.Status.IsActive() {
		return true, nil
	}
	res, err := o.repo.CancelStep(ctx, o.project, job.ID)
	if err == nil && !res.Success {
		err = derrors.JobError("remote cancel rejected").WithContext("reason", res.Error).Warning().Build()
	}
	if err != nil {
		o.logger.Warn("Remote cancel failed", logfields.Category(string(t)), logfields.JobID(job.ID), logfields.Error(err))
		return true, err
	}
	return true, nil
}

// StartError returns the inline error of the last failed start of t.
func (o *Orchestrator) StartError(t analysis.Type) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startErrs[t]
}

func (o *Orchestrator) setStartErr(t analysis.Type, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		delete(o.startErrs, t)
		return
	}
	o.startErrs[t] = err
}

// jobID extracts the job id from a start response, accepting {"id"}, {"stepId"}
// and {"jobId"}.
func jobID(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var body struct {
		ID     string `json:"id"`
		StepID string `json:"stepId"`
		JobID  string `json:"jobId"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	for _, id := range []string{body.ID, body.StepID, body.JobID} {
		if id != "" {
			return id
		}
	}
	return ""
}
