package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/formatter"
	"github.com/newthinker/pushrelay/internal/notifier"
	"github.com/newthinker/pushrelay/internal/policy"
	"go.uber.org/zap"
)

// Recorder receives one observation per dispatch.
type Recorder interface {
	RecordDispatch(kind, outcome, reason string, duration float64)
	SetProviderRemaining(remaining int)
}

// Dispatcher runs policy, formatting and delivery for each occurrence
type Dispatcher struct {
	sender   notifier.Sender
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// New creates a new dispatcher
func New(sender notifier.Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// SetRecorder sets the metrics recorder
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// OnEvent handles an error event of a group. The group identity travels in
// event.Group and event.GroupID.
func (d *Dispatcher) OnEvent(ctx context.Context, event core.ErrorEvent, isNew bool, cfg core.Configuration) core.Result {
	return d.dispatch(ctx, event, isNew, cfg)
}

// OnAlert handles an alert.
func (d *Dispatcher) OnAlert(ctx context.Context, alert core.Alert, cfg core.Configuration) core.Result {
	return d.dispatch(ctx, alert, true, cfg)
}

func (d *Dispatcher) dispatch(ctx context.Context, occ core.Occurrence, isNew bool, cfg core.Configuration) core.Result {
	start := d.now()
	result := core.Result{
		ID:      uuid.NewString(),
		Project: cfg.Slug,
		At:      start,
	}
	if occ != nil {
		result.Kind = occ.Kind()
	}

	if reason := policy.Evaluate(cfg, occ, isNew); reason != nil {
		result.Outcome = core.OutcomeSkipped
		d.finish(&result, reason, start)
		d.logger.Debug("occurrence skipped",
			zap.String("project", cfg.Slug),
			zap.String("kind", string(result.Kind)),
			zap.String("reason", result.Reason),
			zap.Error(reason),
		)
		return result
	}

	payload, err := formatter.Format(occ, cfg.DisplayName())
	if err != nil {
		result.Outcome = core.OutcomeFailed
		d.finish(&result, asCoreError(err, core.ErrFormat), start)
		d.logger.Error("failed to format occurrence",
			zap.String("project", cfg.Slug),
			zap.String("kind", string(result.Kind)),
			zap.Error(err),
		)
		return result
	}
	payload.Sound = cfg.Sound.OrDefault()
	payload.Priority = cfg.Priority
	result.Title = payload.Title

	receipt, err := d.sender.Deliver(ctx, payload, cfg.Credentials())
	result.StatusCode = receipt.StatusCode
	result.RequestID = receipt.RequestID
	result.Attempts = receipt.Attempts
	result.Diagnostic = receipt.Diagnostic
	if receipt.AppRemaining >= 0 && d.recorder != nil {
		d.recorder.SetProviderRemaining(receipt.AppRemaining)
	}

	if err != nil {
		result.Outcome = core.OutcomeFailed
		d.finish(&result, asCoreError(err, core.ErrTransportFailure), start)
		d.logger.Error("notification delivery failed",
			zap.String("project", cfg.Slug),
			zap.String("kind", string(result.Kind)),
			zap.String("sender", d.sender.Name()),
			zap.Int("status", receipt.StatusCode),
			zap.Int("attempts", receipt.Attempts),
			zap.String("diagnostic", receipt.Diagnostic),
			zap.Error(err),
		)
		return result
	}

	result.Outcome = core.OutcomeDelivered
	d.finish(&result, nil, start)

	fields := []zap.Field{
		zap.String("project", cfg.Slug),
		zap.String("kind", string(result.Kind)),
		zap.String("level", occ.Level().String()),
		zap.String("request_id", receipt.RequestID),
		zap.Int("attempts", receipt.Attempts),
		zap.Duration("duration", result.Duration),
	}
	if ev, ok := occ.(core.ErrorEvent); ok {
		fields = append(fields, zap.String("group", ev.Group), zap.Any("tags", ev.Tags))
	}
	d.logger.Info("notification delivered", fields...)

	return result
}

func (d *Dispatcher) finish(result *core.Result, reason *core.Error, start time.Time) {
	result.Duration = d.now().Sub(start)
	if reason != nil {
		result.Err = reason
		result.Reason = reason.Code
		result.Error = reason.Error()
	}
	if d.recorder != nil {
		d.recorder.RecordDispatch(string(result.Kind), string(result.Outcome), result.Reason, result.Duration.Seconds())
	}
}

// asCoreError extracts the *core.Error from err, wrapping it in fallback
// when the sender returned a plain error.
func asCoreError(err error, fallback *core.Error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.WrapError(fallback, err)
}
