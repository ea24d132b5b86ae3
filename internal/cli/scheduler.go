package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/matzehuels/gemmirror/internal/server"
)

// scheduler runs a cycle every interval, at most one at a time.
type scheduler struct {
	s      gocron.Scheduler
	job    gocron.Job
	state  *server.State
	logger *log.Logger
}

// newScheduler schedules run every interval, starting immediately. Nothing
// runs until start.
func newScheduler(interval time.Duration, state *server.State, logger *log.Logger, run func()) (*scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	sc := &scheduler{s: s, state: state, logger: logger}

	sc.job, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { sc.execute(run) }),
		gocron.WithName("sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(gocron.AfterJobRuns(func(uuid.UUID, string) {
			sc.recordNextRun()
		})),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule sync: %w", err)
	}
	return sc, nil
}

func (sc *scheduler) start() {
	sc.s.Start()
	sc.logger.Info("scheduler started", "job", sc.job.Name())
}

func (sc *scheduler) stop() error {
	return sc.s.Shutdown()
}

// execute skips the tick when a cycle is still running, e.g. one started
// through another path.
func (sc *scheduler) execute(run func()) {
	if !sc.state.Begin() {
		sc.logger.Warn("previous cycle still running, skipping")
		return
	}
	run()
}

func (sc *scheduler) recordNextRun() {
	next, err := sc.job.NextRun()
	if err != nil {
		sc.logger.Debug("next run unknown", "err", err)
		return
	}
	sc.state.SetNextRun(next)
	sc.logger.Debug("next cycle scheduled", "at", next.Format(time.RFC3339))
}
