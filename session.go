package gloss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StartSession binds the local snapshot to accountID and brings it in line
// with the shared store: the snapshot is cleared when it belongs to another
// account, merged with the cloud copy, saved, and written back.
//
// Cloud problems never fail the session. They are reported in the result's
// Cloud status and journaled; only local storage errors are returned.
func (c *Client) StartSession(ctx context.Context, accountID string) (*SessionResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrNoSession
	}

	start := c.now()
	res := &SessionResult{AccountID: accountID}

	owner, err := c.local.Owner()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if owner != "" && owner != accountID {
		if err := c.local.Clear(); err != nil {
			return nil, fmt.Errorf("session: clear: %w", err)
		}
		res.OwnerChanged = true
		c.log.Info().Str("previous", owner).Str("account", accountID).Msg("owner changed, local snapshot cleared")
	}
	if owner != accountID {
		if err := c.local.SetOwner(accountID); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}
	c.bind(accountID)

	local, err := c.local.Load()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	res.Local = local.Counts()
	res.Merged = res.Local

	if c.cloud == nil {
		res.Cloud = CloudOffline
		return c.finish(res, start), nil
	}

	remote, err := c.cloud.Fetch(ctx, accountID)
	if err != nil {
		res.Cloud = CloudFailed
		if errors.Is(err, ErrCloudUnsupported) {
			res.Cloud = CloudUnsupported
		}
		res.Error = err.Error()
		c.log.Warn().Err(err).Str("account", accountID).Msg("cloud fetch failed, continuing offline")
		return c.finish(res, start), nil
	}
	res.Remote = remote.Counts()

	// Merge against the snapshot as it is at save time so mutations made
	// while the fetch was in flight are not lost.
	merged, err := c.local.Mutate(func(s *PersonalStore) error {
		*s = c.merger.Merge(*s, remote)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: save merged: %w", err)
	}
	res.Merged = merged.Counts()

	report, err := c.cloud.SyncStore(ctx, accountID, merged)
	res.Sync = &report
	if err != nil {
		res.Cloud = CloudFailed
		res.Error = err.Error()
		c.log.Warn().Err(err).Str("account", accountID).Msg("cloud write-back failed")
	} else {
		res.Cloud = CloudOK
	}

	return c.finish(res, start), nil
}

// finish stamps the duration and journals the run. Journal failures are
// logged; the session itself already succeeded.
func (c *Client) finish(res *SessionResult, start time.Time) *SessionResult {
	end := c.now()
	res.Duration = end.Sub(start)

	run := &SyncRun{
		AccountID:  res.AccountID,
		Status:     res.Cloud,
		Local:      res.Local.Total(),
		Remote:     res.Remote.Total(),
		Merged:     res.Merged.Total(),
		Error:      res.Error,
		StartedAt:  start,
		FinishedAt: end,
	}
	if res.Sync != nil {
		run.Written = res.Sync.Written.Total()
		run.Deleted = res.Sync.Deleted.Total()
		run.ReconcileSkipped = res.Sync.ReconcileSkipped
	}
	if err := c.store.RecordSyncRun(run); err != nil {
		c.log.Warn().Err(err).Msg("journal sync run")
	}
	res.RunID = run.ID

	c.log.Info().
		Str("run", res.RunID).
		Str("account", res.AccountID).
		Str("cloud", string(res.Cloud)).
		Int("merged", run.Merged).
		Dur("took", res.Duration).
		Msg("session started")
	return res
}
