package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobhound/internal/logger"
	"github.com/spigell/jobhound/internal/runner"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run on a daily schedule: once at startup, a morning catch-up and then hourly",
	Run: func(_ *cobra.Command, _ []string) {
		schedule()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func schedule() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the jobhound scheduler", zap.String("version", version))
	logger.Debug(fmt.Sprintf("starting with config: \n %s", prettyConfig(config)))

	loc, err := time.LoadLocation(config.Schedule.Timezone)
	if err != nil {
		logger.Fatal("loading schedule timezone", zap.Error(err))
	}

	spec, err := cronSpec(config.Schedule.StartHour, config.Schedule.EndHour)
	if err != nil {
		logger.Fatal("building schedule", zap.Error(err))
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		logger.Fatal("parsing schedule", zap.String("spec", spec), zap.Error(err))
	}

	// Scheduled runs never force notifications.
	config.Match.ForceNotify = false

	a, err := newApp(ctx, config, runner.RunStartup, false, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.Close()

	cronLogger := &cronLog{logger: logger.Sugar()}
	job := &scheduledRun{
		ctx:       ctx,
		runner:    a.runner,
		location:  loc,
		startHour: config.Schedule.StartHour,
		logger:    logger,
		now:       time.Now,
	}
	job.pendingStartup.Store(true)

	// One guarded job serves every trigger, so no two runs overlap.
	guarded := cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)).Then(job)

	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger))
	c.Schedule(sched, guarded)
	c.Start()

	logger.Info("scheduler started",
		zap.String("spec", spec),
		zap.String("timezone", loc.String()),
		zap.Time("next_run", sched.Next(time.Now().In(loc))),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		guarded.Run()
	}()

	<-ctx.Done()
	logger.Info("stopping the scheduler")

	// wait for a run in flight to flush its summary
	<-c.Stop().Done()
	wg.Wait()
}

// cronSpec returns the hourly trigger between start and end. The first
// trigger of the day is the morning catch-up run.
func cronSpec(start, end int) (string, error) {
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return "", fmt.Errorf("schedule hours must be within 0..23, got %d..%d", start, end)
	}
	if start > end {
		return "", fmt.Errorf("schedule start hour %d is after end hour %d", start, end)
	}
	if start == end {
		return fmt.Sprintf("0 %d * * *", start), nil
	}
	return fmt.Sprintf("0 %d-%d * * *", start, end), nil
}

type scheduledRun struct {
	ctx       context.Context
	runner    *runner.Runner
	location  *time.Location
	startHour int
	logger    *zap.Logger
	now       func() time.Time

	pendingStartup atomic.Bool
}

func (j *scheduledRun) Run() {
	if j.ctx.Err() != nil {
		return
	}

	runType := j.nextRunType()
	summary := j.runner.Run(j.ctx, runType)

	j.logger.Info("scheduled run finished",
		zap.String("run_type", string(runType)),
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
	)
}

func (j *scheduledRun) nextRunType() runner.RunType {
	if j.pendingStartup.Swap(false) {
		return runner.RunStartup
	}
	if j.now().In(j.location).Hour() == j.startHour {
		return runner.RunMorning
	}
	return runner.RunHourly
}

// cronLog adapts zap to the cron logger interface.
type cronLog struct {
	logger *zap.SugaredLogger
}

func (l *cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
