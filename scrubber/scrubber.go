package scrubber

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Endpoint describes one polled data source
type Endpoint struct {
	Source Source
	URL    string
	Build  BuildFunc
}

// Endpoints returns the polled sources in cycle order
func Endpoints() []Endpoint {
	return []Endpoint{
		{Source: SourceCountyOutage, URL: CountyOutageURL, Build: DecodeCountyOutages},
		{Source: SourceStormRestore, URL: StormRestoreURL, Build: DecodeStormRestore},
		{Source: SourceGreenTickets, URL: GreenTicketsURL, Build: DecodeGreenTickets},
	}
}

// Scrubber uses one Poller per endpoint and a Scheduler to feed a Sink
type Scrubber struct {
	config        Config
	sink          Sink
	metrics       *Metrics
	scheduler     *Scheduler
	metricsServer *http.Server
	logger        *zap.SugaredLogger
}

// Run connects the sink and starts polling. A failed connect is logged and
// polling starts anyway; the writes will report the failure.
func (s *Scrubber) Run(ctx context.Context) {
	if err := s.sink.Connect(ctx); err != nil {
		s.logger.Errorf("scrubber: %s", err)
	}

	if s.metricsServer != nil {
		go func() {
			s.logger.Infof("scrubber: serving metrics on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("scrubber: metrics server: %s", err)
			}
		}()
	}

	s.scheduler.Start(ctx)
}

// Shutdown stops polling and releases the sink
func (s *Scrubber) Shutdown(ctx context.Context) {
	s.scheduler.Stop()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Errorf("scrubber: metrics server: %s", err)
		}
	}

	if err := s.sink.Close(); err != nil {
		s.logger.Errorf("scrubber: %s", err)
	}
}

// NewScrubber creates a new Scrubber polling the given endpoints every interval
func NewScrubber(config Config, endpoints []Endpoint, interval time.Duration, sink Sink, logger *zap.SugaredLogger) *Scrubber {
	metrics := NewMetrics()
	client := &http.Client{Timeout: config.HTTPTimeout()}

	jobs := make([]Job, 0, len(endpoints))
	for _, e := range endpoints {
		jobs = append(jobs, NewPoller(e.Source, e.URL, e.Build, client, sink, metrics, logger))
	}

	s := &Scrubber{
		config:    config,
		sink:      sink,
		metrics:   metrics,
		scheduler: NewScheduler(interval, logger, jobs...),
		logger:    logger,
	}

	if config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsServer = &http.Server{Addr: config.MetricsAddr, Handler: mux}
	}

	return s
}
