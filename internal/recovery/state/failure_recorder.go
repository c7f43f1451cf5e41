package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureRecorder writes cycle.json and failure.json for compile cycles.
//
// Callers provide cycle metadata and, on failure, the triggering error; the
// recorder classifies the error and persists it through Store.
type FailureRecorder struct {
	Store *Store
	Now   func() time.Time
}

func NewFailureRecorder(store *Store) *FailureRecorder {
	return &FailureRecorder{Store: store}
}

func (r *FailureRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *FailureRecorder) NewCycleID() string {
	return uuid.NewString()
}

// StartCycle fills in defaults (start time, previous cycle link) and saves
// the record in the running state.
func (r *FailureRecorder) StartCycle(c Cycle) (Cycle, error) {
	if r == nil || r.Store == nil {
		return Cycle{}, errors.New("Store is required")
	}
	if c.CycleID == "" {
		c.CycleID = r.NewCycleID()
	}
	if c.StartTime.IsZero() {
		c.StartTime = r.now()
	}
	if c.Status == "" {
		c.Status = CycleStatusRunning
	}
	if c.PreviousCycleID == nil {
		prev, ok, err := r.Store.LatestCycle()
		if err != nil {
			return Cycle{}, fmt.Errorf("find previous cycle: %w", err)
		}
		if ok && prev.CycleID != c.CycleID {
			id := prev.CycleID
			c.PreviousCycleID = &id
		}
	}
	if err := c.Validate(); err != nil {
		return Cycle{}, fmt.Errorf("invalid cycle: %w", err)
	}
	return c, r.Store.SaveCycle(c)
}

// FinishCycle stamps the end time and final status.
func (r *FailureRecorder) FinishCycle(c Cycle, status CycleStatus) (Cycle, error) {
	if r == nil || r.Store == nil {
		return Cycle{}, errors.New("Store is required")
	}
	end := r.now()
	if end.Before(c.StartTime) {
		end = c.StartTime
	}
	c.EndTime = &end
	c.Status = status
	return c, r.Store.SaveCycle(c)
}

func (r *FailureRecorder) RecordFailure(cycleID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, ferr := failureFromError(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailure(cycleID, f)
}
