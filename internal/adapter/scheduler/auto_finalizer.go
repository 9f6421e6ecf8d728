package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/metrics"
)

// Finalizer closes the current round on behalf of caller
type Finalizer interface {
	FinalizeRound(ctx context.Context, caller domain.Account) (*domain.RoundResult, error)
}

// AutoFinalizer periodically finalizes expired rounds as the administrator
type AutoFinalizer struct {
	cron      *cron.Cron
	spec      string
	finalizer Finalizer
	admin     domain.Account
	logger    *zap.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAutoFinalizer schedules finalization attempts on spec (cron with a seconds field)
// m may be nil
func NewAutoFinalizer(spec string, finalizer Finalizer, admin domain.Account, logger *zap.Logger, m *metrics.Metrics) (*AutoFinalizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := &zapCronLogger{logger: logger.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AutoFinalizer{
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)), cron.WithLogger(cronLogger)),
		spec:      spec,
		finalizer: finalizer,
		admin:     admin,
		logger:    logger,
		metrics:   m,
		timeout:   25 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}

	_, err := a.cron.AddFunc(spec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		if _, err := a.RunOnce(rctx); err != nil {
			a.logger.Error("[scheduler] auto-finalize failed", zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid auto-finalize spec %q: %w", spec, err)
	}

	return a, nil
}

// RunOnce attempts a single finalization
// A round that is still open is not an error: it returns (nil, nil)
func (a *AutoFinalizer) RunOnce(ctx context.Context) (*domain.RoundResult, error) {
	result, err := a.finalizer.FinalizeRound(ctx, a.admin)
	if errors.Is(err, domain.ErrRoundStillOpen) {
		a.logger.Debug("[scheduler] round still open")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.ObserveFinalized(result)
	}
	a.logger.Info("[scheduler] round auto-finalized",
		zap.Uint64("round", result.Round),
		zap.String("user", result.User.String()))
	return result, nil
}

// Start starts the cron scheduler
func (a *AutoFinalizer) Start() {
	a.cron.Start()
	a.logger.Info("[scheduler] Cron started", zap.String("cronSpec", a.spec))
}

// Stop stops the scheduler and waits for a running attempt to finish
func (a *AutoFinalizer) Stop() {
	a.cancel()
	<-a.cron.Stop().Done()
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
