package game

import (
	"sync"
	"time"
)

// Canceler stops a scheduled task. Stop is idempotent.
type Canceler interface {
	Stop()
}

// Scheduler owns every timer the engine creates, so tests can drive time by hand.
type Scheduler interface {
	// Every calls fn once per period until stopped. Calls never overlap.
	Every(period time.Duration, fn func(now time.Time)) Canceler
	// After calls fn once after d unless stopped first.
	After(d time.Duration, fn func()) Canceler
}

type realScheduler struct{}

func NewScheduler() Scheduler {
	return realScheduler{}
}

type periodicTask struct {
	stop chan struct{}
	once sync.Once
}

func (t *periodicTask) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (realScheduler) Every(period time.Duration, fn func(now time.Time)) Canceler {
	task := &periodicTask{stop: make(chan struct{})}
	ticker := time.NewTicker(period)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-task.stop:
				return
			case now := <-ticker.C:
				select {
				case <-task.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()
	return task
}

type oneShot struct {
	timer *time.Timer
}

func (o oneShot) Stop() {
	o.timer.Stop()
}

func (realScheduler) After(d time.Duration, fn func()) Canceler {
	return oneShot{timer: time.AfterFunc(d, fn)}
}
