// Package schedule starts pump runs at configured cron times.
package schedule

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Entry runs mode at every time matched by Spec (standard five-field cron).
type Entry struct {
	Spec string
	Mode logic.Mode
}

// Submitter accepts commands without waiting for them to be applied.
type Submitter interface {
	TrySubmit(cmd logic.Command) error
}

// Scheduler submits an activate command for each due entry. The command
// goes through the same queue as network commands, so a run already in
// progress or edit mode makes it a no-op.
type Scheduler struct {
	cron    *cron.Cron
	entries []Entry
}

// New validates entries and registers them.
func New(entries []Entry, sub Submitter) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), entries: entries}
	for _, e := range entries {
		if !e.Mode.Valid() {
			return nil, fmt.Errorf("schedule %q: invalid mode", e.Spec)
		}
		e := e
		if _, err := s.cron.AddFunc(e.Spec, func() { fire(sub, e) }); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", e.Spec, err)
		}
	}
	return s, nil
}

func fire(sub Submitter, e Entry) {
	log.Printf("schedule: %q due, activating %s", e.Spec, e.Mode)
	cmd := logic.Command{Kind: logic.CommandActivate, Mode: e.Mode, Source: logic.SourceSchedule}
	if err := sub.TrySubmit(cmd); err != nil {
		log.Printf("schedule: submit %s: %v", e.Mode, err)
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Describe lists the entries as "spec -> Mode N".
func (s *Scheduler) Describe() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = fmt.Sprintf("%s -> %s", e.Spec, e.Mode)
	}
	return out
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}
