package worker

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/engine"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/monitoring"
	"github.com/clipforge/highlights-api/internal/notification"
	"github.com/clipforge/highlights-api/internal/repository"
	"github.com/clipforge/highlights-api/internal/token"
)

type Config struct {
	JobRepo         repository.ClipJobRepository
	Launcher        *engine.Launcher
	Tokens          *token.Service
	Notifier        notification.Service
	PollInterval    time.Duration
	CallbackBaseURL string
	ServerPort      string
}

// Worker polls for pending clip jobs and runs each one in an engine
// container. Claiming uses FOR UPDATE SKIP LOCKED, so several workers can
// share one queue without double-processing.
type Worker struct {
	cfg    Config
	logger zerolog.Logger
}

func NewWorker(cfg Config, logger zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		logger: logger.With().Str("component", "clip_worker").Logger(),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Msg("worker started, polling for clip jobs")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.processNext(ctx); err != nil {
				w.logger.Error().Err(err).Msg("error processing clip job")
			}
		}
	}
}

func (w *Worker) processNext(ctx context.Context) error {
	job, err := w.cfg.JobRepo.ClaimNextPending(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return errors.Wrap(err, "claim next pending job")
	}

	monitoring.ClipJobsActive.Inc()
	defer monitoring.ClipJobsActive.Dec()

	logger := w.logger.With().Str("job_id", job.ID).Str("tenant_id", job.TenantID).Logger()
	logger.Info().Msg("running clip job")

	authToken, err := w.cfg.Tokens.Issue(token.ClassService, token.Claims{
		Subject: "clip-engine-" + job.ID,
		Roles:   []models.UserRole{models.RoleService},
	}, 0)
	if err != nil {
		w.fail(ctx, job, "failed to generate engine token", "")
		return errors.Wrap(err, "generate engine token")
	}

	callbackURL, err := w.callbackURL(job)
	if err != nil {
		w.fail(ctx, job, "failed to build callback url", "")
		return err
	}

	result, err := w.cfg.Launcher.Run(ctx, job, authToken, callbackURL)
	if err != nil {
		w.fail(ctx, job, err.Error(), result.Logs)
		return errors.Wrap(err, "run engine container")
	}
	if result.ExitCode != 0 {
		reason := fmt.Sprintf("engine exited with code %d", result.ExitCode)
		w.fail(ctx, job, reason, result.Logs)
		return nil
	}

	// Give the engine's callback a few seconds to arrive before the worker
	// takes responsibility for settling the job.
	time.Sleep(5 * time.Second)

	current, err := w.cfg.JobRepo.GetJob(job.TenantID, job.ID)
	if err != nil {
		return errors.Wrap(err, "re-fetch job after run")
	}
	if current.Status != models.ClipJobStatusRunning {
		logger.Info().Str("status", string(current.Status)).Msg("job settled by engine callback")
		return nil
	}

	manifest := result.Manifest
	if len(manifest) == 0 {
		manifest = []byte("{}")
	}
	if err := w.cfg.JobRepo.CompleteJob(job.TenantID, job.ID, manifest, result.Logs); err != nil {
		return errors.Wrap(err, "complete job")
	}
	if w.cfg.Notifier != nil {
		w.cfg.Notifier.ClipJobSucceeded(ctx, job.TenantID, job.ID)
	}
	logger.Info().Msg("clip job completed")
	return nil
}

func (w *Worker) fail(ctx context.Context, job models.ClipJob, reason, logs string) {
	if err := w.cfg.JobRepo.FailJob(job.TenantID, job.ID, reason, logs); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job failed")
		return
	}
	if w.cfg.Notifier != nil {
		w.cfg.Notifier.ClipJobFailed(ctx, job.TenantID, job.ID, reason)
	}
}

func (w *Worker) callbackURL(job models.ClipJob) (string, error) {
	base := w.cfg.CallbackBaseURL
	if base == "" {
		hostIP, err := getOutboundIP()
		if err != nil {
			return "", errors.Wrap(err, "determine host address")
		}
		base = fmt.Sprintf("http://%s:%s", hostIP, w.cfg.ServerPort)
	}
	return fmt.Sprintf("%s/internal/jobs/%s/%s/complete", base, job.TenantID, job.ID), nil
}

func getOutboundIP() (string, error) {
	// This doesn't actually send a packet. It just asks the kernel
	// which local interface it would use to reach this destination.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}
