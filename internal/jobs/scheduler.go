// Package jobs runs the periodic maintenance tasks: flagging overdue missions, purging
// old read notifications and forgetting expired OAuth state nonces.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/internal/metrics"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/statetoken"
	"github.com/robfig/cron/v3"
)

const (
	JobOverdueMissions   = "overdue_missions"
	JobNotificationPurge = "notification_purge"
	JobStateCleanup      = "state_cleanup"

	jobTimeout = 2 * time.Minute
)

type job struct {
	name string
	spec string
	fn   func(context.Context) error
}

type Scheduler struct {
	cron          *cron.Cron
	cfg           config.JobsConfig
	missions      *services.MissionService
	notifications *services.NotificationService
	audit         *services.AuditService
	states        *statetoken.Issuer
	metrics       *metrics.Metrics
}

func NewScheduler(cfg config.JobsConfig, missions *services.MissionService, notifications *services.NotificationService, audit *services.AuditService, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:           cfg,
		missions:      missions,
		notifications: notifications,
		audit:         audit,
		metrics:       m,
	}
}

// WithStateCleanup enables the periodic purge of consumed login state nonces.
func (s *Scheduler) WithStateCleanup(states *statetoken.Issuer) *Scheduler {
	s.states = states
	return s
}

// Start registers the jobs and starts the cron loop. An empty spec disables that job.
func (s *Scheduler) Start() error {
	jobs := []job{
		{JobOverdueMissions, s.cfg.OverdueMissionsSpec, s.FlagOverdueMissions},
		{JobNotificationPurge, s.cfg.NotificationPurgeSpec, s.PurgeNotifications},
	}
	if s.states != nil {
		jobs = append(jobs, job{JobStateCleanup, s.cfg.StateCleanupSpec, s.CleanupStates})
	}

	for _, j := range jobs {
		if j.spec == "" {
			logger.Info("job_disabled", map[string]interface{}{"job": j.name})
			continue
		}
		name, fn := j.name, j.fn
		if _, err := s.cron.AddFunc(j.spec, func() { s.run(name, fn) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", j.spec, name, err)
		}
		logger.Info("job_scheduled", map[string]interface{}{
			"job":      name,
			"schedule": j.spec,
		})
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		logger.Error("job_failed", err, map[string]interface{}{
			"job":        name,
			"latency_ms": elapsed.Milliseconds(),
		})
	}

	if s.metrics != nil {
		s.metrics.JobRunsTotal.WithLabelValues(name, status).Inc()
		s.metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// FlagOverdueMissions marks missions past their due date and records one audit event per
// mission, which notifies the assignee.
func (s *Scheduler) FlagOverdueMissions(ctx context.Context) error {
	flagged, err := s.missions.MarkOverdue(ctx)
	for _, mission := range flagged {
		missionID := mission.ID
		s.audit.LogAsync(services.AuditEntry{
			Action:       "mission.overdue",
			ResourceType: "mission",
			ResourceID:   &missionID,
			Details: map[string]interface{}{
				"mission_title": mission.Title,
				"assignee_id":   mission.AssigneeID.String(),
			},
			IPAddress: "scheduler",
		})
	}
	if len(flagged) > 0 {
		logger.Info("missions_flagged_overdue", map[string]interface{}{
			"count": len(flagged),
		})
	}
	return err
}

func (s *Scheduler) PurgeNotifications(ctx context.Context) error {
	purged, err := s.notifications.PurgeRead(ctx, s.cfg.NotificationRetention)
	if err != nil {
		return err
	}
	if purged > 0 {
		logger.Info("notifications_purged", map[string]interface{}{
			"count":          purged,
			"retention_days": int(s.cfg.NotificationRetention.Hours() / 24),
		})
	}
	return nil
}

func (s *Scheduler) CleanupStates(_ context.Context) error {
	if removed := s.states.Cleanup(); removed > 0 {
		logger.Info("login_states_cleaned", map[string]interface{}{"count": removed})
	}
	return nil
}
