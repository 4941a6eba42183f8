package mailroom

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Ingestor receives one deduplicated batch per poll cycle.
type Ingestor interface {
	IngestBatch(ctx context.Context, msgs []Message) error
}

type PollerConfig struct {
	// Schedule is a cron expression; robfig descriptors like
	// "@every 5m" are accepted. Default: every 5 minutes.
	Schedule string `json:"schedule" yaml:"schedule"`
	// BatchLimit caps messages fetched per cycle. Default: 10.
	BatchLimit int `json:"batch_limit" yaml:"batch_limit"`
	// CycleTimeout bounds one full fetch+ingest cycle. Default: 10m.
	CycleTimeout time.Duration `json:"cycle_timeout" yaml:"cycle_timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *PollerConfig) defaults() {
	if c.Schedule == "" {
		c.Schedule = "@every 5m"
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 10
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 10 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Poller runs the fetch cycle on a cron schedule. Cycles never overlap;
// if one is still running when the next fires, the new one is skipped.
type Poller struct {
	cfg      PollerConfig
	fetcher  Fetcher
	ingestor Ingestor
	logger   *slog.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

func NewPoller(fetcher Fetcher, ingestor Ingestor, cfg PollerConfig) *Poller {
	cfg.defaults()
	return &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		ingestor: ingestor,
		logger:   cfg.Logger.With("component", "mailroom"),
	}
}

// Start schedules the poll loop. It returns once the schedule is
// registered; cycles run on the cron goroutine.
func (p *Poller) Start(ctx context.Context) error {
	if p.fetcher == nil || p.ingestor == nil {
		return errors.New("mailroom: poller needs a fetcher and an ingestor")
	}
	p.cron = cron.New()
	_, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.Error("poll cycle failed", "error", err)
		}
	})
	if err != nil {
		return errors.Join(errors.New("mailroom: bad schedule"), err)
	}
	p.cron.Start()
	p.logger.Info("poller started", "schedule", p.cfg.Schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (p *Poller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// RunOnce executes a single fetch+ingest cycle. Exposed so the service
// can trigger an immediate poll from its admin surface.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("previous cycle still running, skipping")
		return nil
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	msgs, err := p.fetcher.FetchUnread(ctx, p.cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	batch := DedupeBatch(msgs)
	if dropped := len(msgs) - len(batch); dropped > 0 {
		p.logger.Info("collapsed repeated subjects in batch", "dropped", dropped)
	}
	return p.ingestor.IngestBatch(ctx, batch)
}
