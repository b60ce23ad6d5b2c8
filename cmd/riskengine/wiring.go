package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/config"
	"leasing/risk-engine/internal/dealers"
	"leasing/risk-engine/internal/events"
	"leasing/risk-engine/internal/metrics"
	"leasing/risk-engine/internal/registry"
	"leasing/risk-engine/internal/scoring"
	"leasing/risk-engine/internal/segments"
	"leasing/risk-engine/internal/store"
)

// services is everything the server needs, built from config.
type services struct {
	engine     *scoring.Engine
	store      store.Store
	dispatcher *events.Dispatcher
	metrics    *metrics.Metrics
	refresher  *dealers.Refresher
	segments   *segments.Refresher
	registry   registry.Registry

	pool    *pgxpool.Pool // set when the store is Postgres
	datahub *pgxpool.Pool
	riskDB  *pgxpool.Pool
	closers []func()
}

// Close releases connections in reverse creation order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildEngine loads the calibration file when one is configured. Without a
// file the built-in calibration is used under the configured model version.
func buildEngine(c *config.Config, l *slog.Logger) (*scoring.Engine, error) {
	cal := scoring.DefaultCalibration()
	if c.Scoring.CalibrationFile != "" {
		loaded, err := scoring.LoadCalibration(c.Scoring.CalibrationFile)
		if err != nil {
			return nil, err
		}
		cal = loaded
	} else if c.Scoring.ModelVersion != "" {
		cal.Version = c.Scoring.ModelVersion
	}
	l.Info("calibration loaded", "model_version", cal.Version, "file", c.Scoring.CalibrationFile)
	return scoring.New(scoring.WithCalibration(cal), scoring.WithLogger(l)), nil
}

func buildStore(ctx context.Context, c *config.Config, s *services) (store.Store, error) {
	switch c.Store.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.pool = pool
		return store.NewPostgres(pool), nil
	case config.DriverRedis:
		client, err := store.ConnectRedis(ctx, c.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		return store.NewRedis(client, time.Duration(c.Store.RedisTTLHours)*time.Hour), nil
	default:
		return store.NewMemory(), nil
	}
}

func buildPublisher(c *config.Config, s *services) events.Publisher {
	var pubs events.Multi
	if c.Kafka.Enabled {
		k := events.NewKafka(events.NewKafkaWriter(c.Kafka.Brokers, c.Kafka.Topic), c.Kafka.Topic)
		s.closers = append(s.closers, func() { _ = k.Close() })
		pubs = append(pubs, k)
	}
	if c.Webhook.URL != "" {
		pubs = append(pubs, events.NewWebhook(c.Webhook.URL, time.Duration(c.Webhook.TimeoutSecs)*time.Second))
	}
	if len(pubs) == 0 {
		return events.Nop{}
	}
	return pubs
}

// connectWarehouse opens the DataHub and risk engine database pools shared
// by the batch jobs. Repeated calls reuse them.
func connectWarehouse(ctx context.Context, c *config.Config, s *services) (datahub, db *pgxpool.Pool, err error) {
	if s.datahub != nil {
		return s.datahub, s.riskDB, nil
	}
	datahub, err = store.Connect(ctx, c.Dealers.DataHubURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "connect datahub")
	}
	s.closers = append(s.closers, datahub.Close)
	db, err = store.Connect(ctx, c.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	s.closers = append(s.closers, db.Close)
	s.datahub, s.riskDB = datahub, db
	return datahub, db, nil
}

// buildRefresher connects to the warehouse and the risk engine database.
func buildRefresher(ctx context.Context, c *config.Config, l *slog.Logger, s *services) (*dealers.Refresher, error) {
	if c.Dealers.DataHubURL == "" || c.Store.DatabaseURL == "" {
		return nil, eris.New("dealer refresh needs dealers.datahub_url and store.database_url")
	}
	datahub, db, err := connectWarehouse(ctx, c, s)
	if err != nil {
		return nil, err
	}
	return dealers.NewRefresher(datahub, db, c.Dealers.MinVolume, l), nil
}

// buildSegmentRefresher wires the segment job to the same warehouse pools.
// Snapshots are filed under the active calibration, or the configured
// model version when no engine is running.
func buildSegmentRefresher(ctx context.Context, c *config.Config, l *slog.Logger, s *services) (*segments.Refresher, error) {
	if c.Dealers.DataHubURL == "" || c.Store.DatabaseURL == "" {
		return nil, eris.New("segment refresh needs dealers.datahub_url and store.database_url")
	}
	datahub, db, err := connectWarehouse(ctx, c, s)
	if err != nil {
		return nil, err
	}
	version := func() string { return c.Scoring.ModelVersion }
	if s.engine != nil {
		engine := s.engine
		version = func() string { return engine.Calibration().Version }
	}
	return segments.NewRefresher(datahub, db, c.Segments.MinBinVolume, version, l), nil
}

// buildRegistry keeps calibration versions next to the assessments when the
// store is Postgres and in memory otherwise, then activates the published
// version. A fresh registry records the boot calibration as its first
// version.
func buildRegistry(ctx context.Context, l *slog.Logger, s *services) error {
	if s.pool != nil {
		s.registry = registry.NewPostgres(s.pool)
	} else {
		s.registry = registry.NewMemory()
	}
	v, err := registry.Activate(ctx, s.registry, s.engine, "system")
	if err != nil {
		return err
	}
	l.Info("calibration activated", "model_version", v.VersionID, "published_by", *v.PublishedBy)
	return nil
}

func buildServices(ctx context.Context, c *config.Config, l *slog.Logger) (*services, error) {
	s := &services{}

	engine, err := buildEngine(c, l)
	if err != nil {
		return nil, err
	}
	s.engine = engine

	st, err := buildStore(ctx, c, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = st

	if err := buildRegistry(ctx, l, s); err != nil {
		s.Close()
		return nil, err
	}

	if c.Metrics.Enabled {
		s.metrics = metrics.New()
	}
	timeout := time.Duration(c.Webhook.TimeoutSecs) * time.Second
	s.dispatcher = events.NewDispatcher(buildPublisher(c, s), timeout, l, s.metrics)

	if c.Dealers.Enabled {
		r, err := buildRefresher(ctx, c, l, s)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.refresher = r
	}
	if c.Segments.Enabled {
		r, err := buildSegmentRefresher(ctx, c, l, s)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.segments = r
	}
	return s, nil
}
