package sync

import (
	"context"
	"errors"
	"fmt"

	"tablesync/internal/logger"
)

// TransactionState counts the work of a destination endpoint.
type TransactionState struct {
	Pending int // destructive operations not yet committed
	Commits int
	Inserts int
	Deletes int

	// Latched the first time the matching ceiling refuses an operation.
	HitMaxInserts bool
	HitMaxDeletes bool
}

// CheckPending commits once more than CommitEvery operations are pending.
// Sources and dry-run destinations never commit.
func (c *Client) CheckPending(ctx context.Context) error {
	if err := c.ready("check-pending"); err != nil {
		return err
	}
	if !c.cfg.IsDestination() || c.cfg.DryRun {
		return nil
	}
	if c.state.Pending <= c.commitEvery {
		return nil
	}
	return c.commit("check-pending")
}

func (c *Client) commit(op string) error {
	pending := c.state.Pending
	if err := c.write.Commit(); err != nil {
		return c.fail(op, ErrCommit, err)
	}
	c.state.Commits++
	c.state.Pending = 0
	if c.cfg.Debug {
		logger.Debugf("表 %s 已提交 %d 个待提交操作（第 %d 次提交）", c.cfg.Table, pending, c.state.Commits)
	}
	return nil
}

// checkCeiling refuses a destructive operation once its ceiling is met.
// The refusal rolls back uncommitted work unless the client is a dry run.
func (c *Client) checkCeiling(op string) error {
	if c.cfg.Force {
		return nil
	}

	limit, count, latch, kind := c.cfg.MaxInserts, c.state.Inserts, &c.state.HitMaxInserts, ErrMaxInserts
	if op != "insert" {
		limit, count, latch, kind = c.cfg.MaxDeletes, c.state.Deletes, &c.state.HitMaxDeletes, ErrMaxDeletes
	}
	if limit <= 0 || count < limit {
		return nil
	}

	if !*latch {
		*latch = true
		logger.Warnf("表 %s 已达到上限：%v（当前=%d 上限=%d），后续操作将被拒绝", c.cfg.Table, kind, count, limit)
	}
	if !c.cfg.DryRun {
		if err := c.write.Rollback(); err != nil {
			return c.fail(op, ErrRollback, err)
		}
		c.state.Pending = 0
	}
	return c.fail(op, kind, fmt.Errorf("当前=%d 上限=%d", count, limit))
}

// RollBack discards uncommitted work on a destination. Sources and dry runs ignore it.
func (c *Client) RollBack(ctx context.Context) error {
	if err := c.ready("rollback"); err != nil {
		return err
	}
	if !c.cfg.IsDestination() || c.cfg.DryRun {
		return nil
	}
	if err := c.write.Rollback(); err != nil {
		return c.fail("rollback", ErrRollback, err)
	}
	c.state.Pending = 0
	return nil
}

// Close commits pending work when no error is latched, then releases the
// cursor and statements and restores auto-commit. Cleanup runs even when
// the commit fails.
func (c *Client) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	var errs []error

	if c.rows != nil {
		if err := c.rows.Close(); err != nil {
			errs = append(errs, c.fail("close", ErrFetch, err))
		}
		c.rows = nil
	}

	if c.initialized && c.cfg.IsDestination() && !c.cfg.DryRun && c.state.Pending > 0 {
		if c.lastErr == nil {
			if err := c.commit("close"); err != nil {
				errs = append(errs, err)
			}
		} else {
			logger.Warnf("表 %s 存在未处理错误，放弃提交 %d 个待提交操作：%v", c.cfg.Table, c.state.Pending, c.lastErr)
		}
	}

	if c.queries != nil {
		if err := c.queries.close(); err != nil {
			errs = append(errs, c.fail("close", ErrWrite, err))
		}
	}

	// Turning auto-commit back on discards anything still uncommitted.
	if c.autoCommitOff {
		if err := c.write.SetAutoCommit(true); err != nil {
			errs = append(errs, c.fail("close", ErrRollback, err))
		}
		c.autoCommitOff = false
	}

	c.closed = true
	return errors.Join(errs...)
}
