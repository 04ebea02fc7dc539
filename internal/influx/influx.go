// Package influx writes one point per finished playback run to InfluxDB,
// falling back to a gzipped line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/playback"
)

// MeasurementPlayback is the measurement written for each playback run.
const MeasurementPlayback = "playback_run"

const (
	batchSize       = 100
	flushIntervalMs = 1000
	retention       = 90 * 24 * time.Hour
)

var (
	ErrDisabled = errors.New("influx.enabled is false")
	ErrNoSink   = errors.New("influx manager not connected")
)

// sink is where points end up: the server, or the backup file.
type sink interface {
	write(p *influxdb2_write.Point) error
	close() error
}

// Manager reports playback runs. Connect picks the sink.
type Manager struct {
	log        zerolog.Logger
	cfg        config.InfluxConfig
	backupPath string

	mu     sync.Mutex
	sink   sink
	remote bool
}

// NewManager creates a manager that falls back to backupPath.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{log: log, cfg: cfg, backupPath: backupPath}
}

// Connect pings the server. When it answers, the org and bucket are
// created as needed and points go to the server; otherwise they go to the
// backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	url := fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
	client := influxdb2.NewClientWithOptions(url, m.cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(batchSize).SetFlushInterval(flushIntervalMs))

	if up, err := client.Ping(ctx); err != nil || !up {
		client.Close()
		m.log.Warn().Err(err).Str("url", url).Str("backupPath", m.backupPath).Msg("InfluxDB unreachable, writing to backup file")
		s, err := openFileSink(m.backupPath)
		if err != nil {
			return err
		}
		m.install(s, false)
		return nil
	}

	if err := m.ensureBucket(ctx, client); err != nil {
		client.Close()
		return err
	}
	m.install(newRemoteSink(client, m.cfg, m.log), true)
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) install(s sink, remote bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
	m.remote = remote
}

// Remote reports whether points go to the server.
func (m *Manager) Remote() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

func (m *Manager) ensureBucket(ctx context.Context, client influxdb2.Client) error {
	orgs := client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.log.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		if org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org); err != nil {
			return fmt.Errorf("create organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.log.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	expire := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &expire,
		EverySeconds: int64(retention / time.Second),
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// WritePoint hands a point to the current sink.
func (m *Manager) WritePoint(p *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return ErrNoSink
	}
	return m.sink.write(p)
}

// ReportPlayback records a finished or interrupted run. It has the shape
// of playback.Config.OnFinish.
func (m *Manager) ReportPlayback(r playback.Report) {
	if err := m.WritePoint(PlaybackPoint(r, time.Now())); err != nil {
		m.log.Warn().Err(err).Str("sequence", r.SequenceID).Msg("Failed to record playback run")
	}
}

// Close flushes pending points and releases the sink.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sink == nil {
		return nil
	}
	err := m.sink.close()
	m.sink = nil
	m.remote = false
	return err
}

// PlaybackPoint builds the point for a playback report.
func PlaybackPoint(r playback.Report, at time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementPlayback,
		map[string]string{
			"sequence":  r.SequenceID,
			"completed": strconv.FormatBool(r.Completed),
		},
		map[string]interface{}{
			"title":       r.Title,
			"position_ms": r.Position,
			"total_ms":    r.Total,
			"frames":      r.Frames,
			"skipped":     r.Skipped,
			"speed":       r.Speed,
			"wall_ms":     r.WallTime.Milliseconds(),
		},
		at,
	)
}

// remoteSink batches points through the non-blocking write API.
type remoteSink struct {
	client influxdb2.Client
	api    influxdb2_api.WriteAPI
}

func newRemoteSink(client influxdb2.Client, cfg config.InfluxConfig, log zerolog.Logger) *remoteSink {
	api := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range api.Errors() {
			log.Error().Err(err).Str("bucket", cfg.Bucket).Msg("Error sending data to InfluxDB")
		}
	}()
	return &remoteSink{client: client, api: api}
}

func (s *remoteSink) write(p *influxdb2_write.Point) error {
	s.api.WritePoint(p)
	return nil
}

func (s *remoteSink) close() error {
	s.api.Flush()
	s.client.Close()
	return nil
}

// fileSink appends line protocol to a gzip stream.
type fileSink struct {
	f  *os.File
	gz *gzip.Writer
}

func openFileSink(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating backup file: %w", err)
	}
	return &fileSink{f: f, gz: gzip.NewWriter(f)}, nil
}

func (s *fileSink) write(p *influxdb2_write.Point) error {
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	if _, err := s.gz.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

func (s *fileSink) close() error {
	return errors.Join(s.gz.Close(), s.f.Close())
}
