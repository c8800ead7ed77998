package client

import (
	"context"
	"fmt"
	"time"
)

// PollBudget bounds how long an export job is watched.
type PollBudget struct {
	// MaxAttempts is the number of status checks before giving up.
	MaxAttempts int

	// Interval is the fixed wait before every status check.
	Interval time.Duration
}

// DefaultPollBudget returns 30 checks two seconds apart.
func DefaultPollBudget() PollBudget {
	return PollBudget{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
	}
}

// MaxWait is the longest total wait the budget allows.
func (b PollBudget) MaxWait() time.Duration {
	return time.Duration(b.MaxAttempts) * b.Interval
}

// Validate checks the budget bounds.
func (b PollBudget) Validate() error {
	if b.MaxAttempts < 1 {
		return fmt.Errorf("poll budget: max attempts must be >= 1 (got %d)", b.MaxAttempts)
	}
	if b.Interval < 0 {
		return fmt.Errorf("poll budget: interval must be >= 0 (got %s)", b.Interval)
	}
	return nil
}

// PollResult records how a poll loop ended.
type PollResult struct {
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	Waited      time.Duration
	MaxWait     time.Duration
}

// PollExport waits Interval, checks the job status and repeats until the job
// reports Success or MaxAttempts checks were made. Exhausting the budget is
// not an error. A failed status check or a cancelled context ends the loop
// with an error.
func (c *Client) PollExport(ctx context.Context, id JobID, budget PollBudget) (PollResult, error) {
	result := PollResult{
		Status:      StatusUnknown,
		MaxAttempts: budget.MaxAttempts,
		MaxWait:     budget.MaxWait(),
	}
	if err := budget.Validate(); err != nil {
		return result, err
	}

	defer func() {
		exportWaitSeconds.Observe(result.Waited.Seconds())
	}()

	for !result.Status.IsSuccess() && result.Attempts < budget.MaxAttempts {
		if err := wait(ctx, budget.Interval); err != nil {
			c.logger.Warn().
				Str("job", string(id)).
				Int("attempt", result.Attempts).
				Msg("Context cancelled while polling")
			return result, err
		}

		result.Attempts++
		result.Waited = time.Duration(result.Attempts) * budget.Interval

		status, err := c.ExportStatus(ctx, id)
		if err != nil {
			return result, fmt.Errorf("poll job %s attempt %d: %w", id, result.Attempts, err)
		}
		result.Status = status
		exportPollsTotal.WithLabelValues(status.String()).Inc()

		c.logger.Debug().
			Str("job", string(id)).
			Str("status", status.String()).
			Int("attempt", result.Attempts).
			Int("max_attempts", budget.MaxAttempts).
			Dur("waited", result.Waited).
			Msg("Polled export job")
	}

	return result, nil
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
