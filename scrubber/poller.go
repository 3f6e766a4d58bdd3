package scrubber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Endpoint URLs of the FPL outage maps
const (
	CountyOutageURL = "https://www.fplmaps.com/customer/outage/CountyOutages.json"
	StormRestoreURL = "https://www.fplmaps.com/customer/outage/StormFeedRestoration.json"
	GreenTicketsURL = "https://www.fplmaps.com/customer/outage/GreenTickets.json"
)

// Poller pulls one endpoint and writes its batch to the sink
type Poller struct {
	source  Source
	url     string
	build   BuildFunc
	client  *http.Client
	sink    Sink
	metrics *Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// Pull performs one POST against the endpoint. A non-200 status skips the
// cycle and returns nil. Decode, validation and sink errors are returned and
// nothing is written.
func (p *Poller) Pull(ctx context.Context) error {
	started := time.Now()

	p.logger.Infof("Poller: pulling %s", p.source)

	written, err := p.pull(ctx)

	result := resultSuccess
	switch {
	case err != nil:
		result = resultError
	case written < 0:
		result = resultSkipped
	}
	p.metrics.observePull(p.source, result, time.Since(started).Seconds())

	return err
}

// pull returns the number of records written, or -1 when the cycle was skipped
func (p *Poller) pull(ctx context.Context) (int, error) {
	ts := CaptureTime(p.now())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("Poller: %s: %w", p.source, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("Poller: %s: %w", p.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warnf("Poller: %s returned status %d, skipping", p.source, resp.StatusCode)

		return -1, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("Poller: %s: reading body: %w", p.source, err)
	}

	records, err := p.build(body, ts)
	if err != nil {
		return 0, fmt.Errorf("Poller: %s: %w", p.source, err)
	}

	for _, r := range records {
		p.logger.Debugw("Poller: record",
			"measurement", r.Measurement,
			"tags", r.Tags,
			"fields", r.Fields,
		)
	}

	if err := p.sink.Write(ctx, records); err != nil {
		return 0, fmt.Errorf("Poller: %s: %w", p.source, err)
	}

	p.metrics.observeWritten(p.source, len(records))
	p.logger.Infof("Poller: wrote %d %s records", len(records), p.source)

	return len(records), nil
}

// NewPoller creates a new Poller. A nil client means http.DefaultClient.
func NewPoller(source Source, url string, build BuildFunc, client *http.Client, sink Sink, metrics *Metrics, logger *zap.SugaredLogger) *Poller {
	if client == nil {
		client = http.DefaultClient
	}

	return &Poller{
		source:  source,
		url:     url,
		build:   build,
		client:  client,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}
