package relay

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// DailyAlarm fires once a day at a local wall-clock time.
type DailyAlarm struct {
	s    gocron.Scheduler
	job  gocron.Job
	fire func()
}

// NewDailyAlarm schedules fire at hour:minute in the zone offset from UTC.
// clock may be nil for the real clock.
func NewDailyAlarm(hour, minute int, offset time.Duration, clock clockwork.Clock, fire func()) (*DailyAlarm, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("daily alarm: invalid time %02d:%02d", hour, minute)
	}
	opts := []gocron.SchedulerOption{gocron.WithLocation(time.FixedZone("local", int(offset/time.Second)))}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	a := &DailyAlarm{s: s, fire: fire}
	job, err := s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(a.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	a.job = job
	return a, nil
}

func (a *DailyAlarm) run() {
	log.Printf("relay daily alarm")
	a.fire()
}

func (a *DailyAlarm) Start() {
	a.s.Start()
}

// NextRun is the next scheduled fire time. It is zero until Start.
func (a *DailyAlarm) NextRun() (time.Time, error) {
	return a.job.NextRun()
}

func (a *DailyAlarm) Close() error {
	if a == nil {
		return nil
	}
	return a.s.Shutdown()
}
