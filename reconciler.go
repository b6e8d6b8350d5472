package ddns

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Startup compares the record's current target with the host's address and corrects any drift.
//
// It records the matching record's id and target as the baseline for Poll.
// The returned error wraps ErrZoneNotOwned or ErrRecordNotFound when the configuration cannot work;
// other errors are transient.
// Either way the caller is expected to keep polling.
func (c *Client) Startup(ctx context.Context) error {
	owned, err := c.ZoneExists(ctx, c.domain)
	if err != nil {
		return fmt.Errorf("checking ownership of %s: %w", c.domain, err)
	}
	if !owned {
		return fmt.Errorf("%w: %s", ErrZoneNotOwned, c.domain)
	}

	record, err := c.locate(ctx)
	if err != nil {
		return err
	}
	c.state.RecordID = record.ID
	c.state.LastKnownTarget = record.Target
	c.logger.Info("found DNS record", "id", record.ID, "record", c.FQDN(), "target", record.Target, "ttl", record.TTL)

	addr, err := c.Resolve(ctx)
	if err != nil {
		// there is no address to update to; the first polling cycle compares against the baseline again
		c.logger.Error(err, "unable to resolve local address at startup, drift check deferred", "target", record.Target)
		return nil
	}
	local := addr.String()

	if local == record.Target {
		c.logger.Info("local address and DNS record are the same - no action at startup", "ip", local, "target", record.Target)
		return nil
	}

	c.logger.Info("DNS record differs from local address - updating", "target", record.Target, "ip", local)
	update := Record{ID: record.ID, SubDomain: c.subDomain, Target: local, TTL: c.startupTTL}
	if err := c.UpdateRecord(ctx, c.domain, update); err != nil {
		c.logger.Error(err, "DNS record update failed", "id", record.ID, "ip", local)
		return nil
	}
	c.state.LastKnownTarget = local
	c.logger.Info("DNS record update returned success", "id", record.ID, "ip", local, "ttl", c.startupTTL)

	c.scheduleVerify(ctx, record.ID, local)
	return nil
}

// locate scans the zone and returns the first record whose subdomain matches.
func (c *Client) locate(ctx context.Context) (Record, error) {
	ids, err := c.ListRecordIDs(ctx, c.domain)
	if err != nil {
		return Record{}, fmt.Errorf("listing records of %s: %w", c.domain, err)
	}
	for _, id := range ids {
		r, err := c.GetRecord(ctx, c.domain, id)
		if err != nil {
			if ctx.Err() != nil {
				return Record{}, ctx.Err()
			}
			c.logger.Error(err, "unable to read DNS record, skipping", "id", id)
			continue
		}
		if r.SubDomain == c.subDomain {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %q in %s (%d records scanned)", ErrRecordNotFound, c.subDomain, c.domain, len(ids))
}

// scheduleVerify re-reads the record after the verify delay without blocking the caller.
// It only reads and logs; client state is never touched from the verification goroutine.
func (c *Client) scheduleVerify(ctx context.Context, id, want string) {
	c.logger.Info("waiting before double checking the DNS record", "delay", c.verifyDelay)
	c.verifications.Add(1)
	go func() {
		defer c.verifications.Done()
		t := time.NewTimer(c.verifyDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		c.verify(ctx, id, want)
	}()
}

func (c *Client) verify(ctx context.Context, id, want string) {
	r, err := c.GetRecord(ctx, c.domain, id)
	if err != nil {
		c.logger.Error(err, "double checking if DNS record was updated successfully: FAILURE", "id", id)
		return
	}
	if r.Target != want {
		c.logger.Error(errors.New("target mismatch"), "double checking if DNS record was updated successfully: FAILURE",
			"id", id, "target", r.Target, "ip", want)
		return
	}
	c.logger.Info("double checking if DNS record was updated successfully: SUCCESS", "id", id, "target", r.Target)

	if c.nameserver == nil {
		return
	}
	served, err := c.nameserver.lookupA(ctx, c.FQDN())
	if err != nil {
		c.logger.Error(err, "nameserver check failed", "record", c.FQDN())
		return
	}
	for _, s := range served {
		if s == want {
			c.logger.Info("nameserver serves the new address", "record", c.FQDN(), "ip", want)
			return
		}
	}
	c.logger.Info("nameserver does not serve the new address yet", "record", c.FQDN(), "ip", want, "served", served)
}

// Poll runs one steady-state cycle: resolve the local address and update the record if it changed.
//
// A failed resolution skips the cycle and leaves state untouched.
// A changed address is stored in State.LastKnownTarget before the update is issued,
// so a failed update is only re-issued when retrying is enabled or the address changes again.
func (c *Client) Poll(ctx context.Context) error {
	addr, err := c.Resolve(ctx)
	if err != nil {
		c.logger.Error(err, "connection problem, couldn't fetch new IP - skipping cycle")
		return err
	}
	local := addr.String()

	if local == c.state.LastKnownTarget && !c.state.PendingUpdate {
		c.logger.Info("addresses were the same", "ip", local, "target", c.state.LastKnownTarget)
		return nil
	}

	previous := c.state.LastKnownTarget
	c.state.LastKnownTarget = local
	if local == previous {
		c.logger.Info("retrying failed DNS record update", "ip", local)
	} else {
		c.logger.Info("addresses were different", "ip", local, "previous", previous)
	}

	if c.state.RecordID == "" {
		err := fmt.Errorf("%w: %q in %s, not updating", ErrRecordNotFound, c.subDomain, c.domain)
		c.logger.Error(err, "no DNS record to update", "ip", local)
		return err
	}

	update := Record{ID: c.state.RecordID, SubDomain: c.subDomain, Target: local, TTL: c.loopTTL}
	if err := c.UpdateRecord(ctx, c.domain, update); err != nil {
		c.state.PendingUpdate = c.retryFailed
		c.logger.Error(err, "DNS record update failed", "id", update.ID, "ip", local)
		return fmt.Errorf("updating record %s: %w", update.ID, err)
	}
	c.state.PendingUpdate = false
	c.logger.Info("DNS record updated", "id", update.ID, "ip", local, "ttl", c.loopTTL)
	return nil
}
