package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Bulk delete rejects messages older than two weeks.
const bulkDeleteMaxAge = 14*24*time.Hour - time.Hour

// Purger periodically clears command channels.
type Purger struct {
	gw       Gateway
	guild    *Guild
	channels []string
	interval time.Duration
	now      func() time.Time
}

func NewPurger(gw Gateway, guild *Guild, interval time.Duration, channels ...string) *Purger {
	return &Purger{gw: gw, guild: guild, channels: channels, interval: interval, now: time.Now}
}

// Run purges every interval until ctx ends. A non-positive interval disables it.
func (p *Purger) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PurgeOnce()
		}
	}
}

func (p *Purger) PurgeOnce() {
	for _, name := range p.channels {
		id, err := p.guild.ChannelID(name)
		if err != nil {
			slog.Warn("purge: resolve channel failed", "channel", name, "err", err)
			continue
		}
		n, err := purgeChannel(p.gw, id, 100, p.now())
		if err != nil {
			slog.Warn("purge failed", "channel", name, "err", err)
			continue
		}
		if n > 0 {
			slog.Info("purged channel", "channel", name, "deleted", n)
		}
	}
}

// purgeChannel deletes up to limit of the newest messages in channelID.
func purgeChannel(gw Gateway, channelID string, limit int, now time.Time) (int, error) {
	if limit > 100 {
		limit = 100
	}
	msgs, err := gw.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	var recent, old []string
	for _, m := range msgs {
		if now.Sub(m.Timestamp) < bulkDeleteMaxAge {
			recent = append(recent, m.ID)
		} else {
			old = append(old, m.ID)
		}
	}

	deleted := 0
	if len(recent) >= 2 {
		if err := gw.ChannelMessagesBulkDelete(channelID, recent); err != nil {
			return deleted, fmt.Errorf("bulk delete: %w", err)
		}
		deleted += len(recent)
	} else {
		old = append(recent, old...)
	}
	for _, id := range old {
		if err := gw.ChannelMessageDelete(channelID, id); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}
