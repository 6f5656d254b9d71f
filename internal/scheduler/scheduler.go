// Package scheduler implements cron job scheduling and bus-driven event
// triggers, both of which spawn agent processes through a callback.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/bus"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// ErrInvalidCron rejects a malformed cron expression at registration time.
var ErrInvalidCron = errors.New("invalid cron expression")

// SpawnFunc spawns an agent process for a fired job/trigger and returns its
// kernel PID.
type SpawnFunc func(ownerUID string, cfg domain.SpawnConfig) (int, error)

// Scheduler owns cron jobs and event triggers.
type Scheduler struct {
	mu    sync.Mutex
	log   *logger.Logger
	bus   *bus.Bus
	store store.Store
	spawn SpawnFunc

	jobs     map[string]domain.CronJob
	triggers map[string]domain.EventTrigger

	tickInterval time.Duration
	stopCh       chan struct{}
	subID        string
}

// New builds a Scheduler hydrated from st and subscribes once to the bus
// for trigger dispatch.
func New(tickInterval time.Duration, spawn SpawnFunc, b *bus.Bus, st store.Store, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	s := &Scheduler{
		log:          log,
		bus:          b,
		store:        st,
		spawn:        spawn,
		jobs:         make(map[string]domain.CronJob),
		triggers:     make(map[string]domain.EventTrigger),
		tickInterval: tickInterval,
	}
	if st != nil {
		if rows, err := st.GetAllCronJobs(); err == nil {
			now := time.Now()
			for _, j := range rows {
				if j.Enabled && j.NextRun.Before(now) {
					if nr, err := getNextCronTime(j.Expression, now); err == nil {
						j.NextRun = nr
					}
				}
				s.jobs[j.ID] = j
			}
		}
		if rows, err := st.GetAllTriggers(); err == nil {
			for _, t := range rows {
				s.triggers[t.ID] = t
			}
		}
	}
	if b != nil {
		s.subID = b.SubscribeFunc("*", func(evt bus.Event) { s.dispatchTrigger(evt) })
	}
	return s
}

// CreateJob validates and persists a new cron job, computing its first
// next-run.
func (s *Scheduler) CreateJob(name, expression string, ownerUID string, cfg domain.SpawnConfig, enabled bool) (domain.CronJob, error) {
	nextRun, err := getNextCronTime(expression, time.Now())
	if err != nil {
		return domain.CronJob{}, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	job := domain.CronJob{
		ID:         uuid.NewString(),
		Name:       name,
		Expression: expression,
		Config:     cfg,
		OwnerUID:   ownerUID,
		Enabled:    enabled,
		NextRun:    nextRun,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	s.persistJob(job)
	return job, nil
}

// DeleteJob removes a cron job.
func (s *Scheduler) DeleteJob(id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	if s.store != nil {
		return s.store.DeleteCronJob(id)
	}
	return nil
}

// EnableJob / DisableJob toggle a job's enabled flag.
func (s *Scheduler) EnableJob(id string) error  { return s.setJobEnabled(id, true) }
func (s *Scheduler) DisableJob(id string) error { return s.setJobEnabled(id, false) }

func (s *Scheduler) setJobEnabled(id string, enabled bool) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	job.Enabled = enabled
	if enabled {
		if nr, err := getNextCronTime(job.Expression, time.Now()); err == nil {
			job.NextRun = nr
		}
	}
	s.jobs[id] = job
	s.mu.Unlock()
	s.persistJob(job)
	return nil
}

// ListJobs returns every cron job.
func (s *Scheduler) ListJobs() []domain.CronJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CronJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *Scheduler) persistJob(job domain.CronJob) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertCronJob(job); err != nil {
		s.log.WithField("job_id", job.ID).WithField("err", err).Warn("scheduler: persist cron job failed")
	}
}

// Tick scans jobs whose next-run has passed and fires each, advancing
// next-run and incrementing the run count.
func (s *Scheduler) Tick() {
	now := time.Now()
	s.mu.Lock()
	due := make([]domain.CronJob, 0)
	for _, j := range s.jobs {
		if j.Enabled && !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.fireJob(j, now)
	}
}

func (s *Scheduler) fireJob(j domain.CronJob, now time.Time) {
	var pid int
	if s.spawn != nil {
		var err error
		pid, err = s.spawn(j.OwnerUID, j.Config)
		if err != nil {
			s.log.WithField("job_id", j.ID).WithField("err", err).Warn("scheduler: cron spawn failed")
		}
	}

	nextRun, err := getNextCronTime(j.Expression, now)
	if err != nil {
		s.log.WithField("job_id", j.ID).WithField("err", err).Error("scheduler: recompute next-run failed")
		return
	}

	s.mu.Lock()
	j.FireCount++
	j.LastRun = now
	j.NextRun = nextRun
	s.jobs[j.ID] = j
	s.mu.Unlock()
	s.persistJob(j)

	s.publish("cron.fired", map[string]any{"jobId": j.ID, "pid": pid})
}

// Run starts the tick loop; it blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// RegisterTrigger validates and persists an event trigger. Duplicate
// (name, pattern) registration replaces the prior trigger row.
func (s *Scheduler) RegisterTrigger(name, pattern string, filter map[string]any, cfg domain.SpawnConfig, cooldownMs int64) (domain.EventTrigger, error) {
	if strings.TrimSpace(pattern) == "" {
		return domain.EventTrigger{}, fmt.Errorf("scheduler: trigger pattern is required")
	}

	s.mu.Lock()
	var existingID string
	for id, t := range s.triggers {
		if t.Name == name && t.Pattern == pattern {
			existingID = id
			break
		}
	}
	id := existingID
	if id == "" {
		id = uuid.NewString()
	}
	trig := domain.EventTrigger{
		ID:         id,
		Name:       name,
		Pattern:    pattern,
		Filter:     filter,
		Config:     cfg,
		CooldownMs: cooldownMs,
	}
	if existingID != "" {
		trig.FireCount = s.triggers[existingID].FireCount
		trig.LastFired = s.triggers[existingID].LastFired
	}
	s.triggers[id] = trig
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertTrigger(trig); err != nil {
			s.log.WithField("trigger_id", id).WithField("err", err).Warn("scheduler: persist trigger failed")
		}
	}
	return trig, nil
}

// DeleteTrigger removes an event trigger.
func (s *Scheduler) DeleteTrigger(id string) error {
	s.mu.Lock()
	delete(s.triggers, id)
	s.mu.Unlock()
	if s.store != nil {
		return s.store.DeleteTrigger(id)
	}
	return nil
}

// ListTriggers returns every event trigger.
func (s *Scheduler) ListTriggers() []domain.EventTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventTrigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	return out
}

func matchesPattern(pattern, kind string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(kind, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == kind
}

func (s *Scheduler) dispatchTrigger(evt bus.Event) {
	s.mu.Lock()
	var matched []domain.EventTrigger
	now := time.Now()
	for id, t := range s.triggers {
		if !matchesPattern(t.Pattern, evt.Kind) {
			continue
		}
		if t.CooldownMs > 0 && !t.LastFired.IsZero() && now.Sub(t.LastFired) < time.Duration(t.CooldownMs)*time.Millisecond {
			continue
		}
		if !filterMatches(t.Filter, evt.Payload) {
			continue
		}
		t.LastFired = now
		t.FireCount++
		s.triggers[id] = t
		matched = append(matched, t)
	}
	s.mu.Unlock()

	for _, t := range matched {
		s.persistTrigger(t)
		var pid int
		if s.spawn != nil {
			var err error
			pid, err = s.spawn(t.Config.Role, t.Config)
			if err != nil {
				s.log.WithField("trigger_id", t.ID).WithField("err", err).Warn("scheduler: trigger spawn failed")
			}
		}
		s.publish("trigger.fired", map[string]any{"triggerId": t.ID, "pid": pid})
	}
}

func filterMatches(filter map[string]any, payload any) bool {
	if len(filter) == 0 {
		return true
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	for k, v := range filter {
		if fmt.Sprintf("%v", m[k]) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func (s *Scheduler) persistTrigger(t domain.EventTrigger) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertTrigger(t); err != nil {
		s.log.WithField("trigger_id", t.ID).WithField("err", err).Warn("scheduler: persist trigger failed")
	}
}

func (s *Scheduler) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(kind, payload)
}
