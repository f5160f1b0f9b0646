// Package influx sends edit session statistics to InfluxDB. When the server
// is unreachable points are appended to a gzip line-protocol backup file.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/bookmarks/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names.
const (
	MeasurementFlush = "bookmarks_flush"
	MeasurementLoad  = "bookmarks_load"
)

// retention of the created bucket
const bucketRetentionSeconds = 60 * 60 * 24 * 90

// Config describes the InfluxDB target.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BackupPath receives line protocol when the server is down.
	BackupPath string
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	backupFile   *os.File
	IsValid      bool
	Logger       zerolog.Logger
	cfg          Config
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg Config) *Manager {
	return &Manager{
		IsValid: false,
		Logger:  log,
		cfg:     cfg,
	}
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.URL == "" {
		return errors.New("influx url is empty")
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("url", m.cfg.URL).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influxDB unreachable and no backup path configured")
	}
	m.Logger.Warn().Str("backupPath", m.cfg.BackupPath).
		Msg("Failed to initialize InfluxDB client, writing to backup file")

	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: bucketRetentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// WritePoint writes a point to InfluxDB or the backup file. It never blocks
// on the network.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// RecordFlush writes one flush summary.
func (m *Manager) RecordFlush(stats core.FlushStats) error {
	return m.WritePoint(FlushPoint(stats))
}

// RecordLoad writes the outcome of one file load.
func (m *Manager) RecordLoad(path string, transient bool, loadErr error, at time.Time) error {
	return m.WritePoint(LoadPoint(path, transient, loadErr, at))
}

// FlushPoint converts flush statistics into a point.
func FlushPoint(stats core.FlushStats) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementFlush,
		map[string]string{},
		map[string]interface{}{
			"duration_ms":    float64(stats.Duration) / float64(time.Millisecond),
			"created_marks":  stats.CreatedMarks,
			"updated_marks":  stats.UpdatedMarks,
			"removed_marks":  stats.RemovedMarks,
			"created_lines":  stats.CreatedLines,
			"removed_lines":  stats.RemovedLines,
			"dirty_groups":   stats.DirtyGroups,
			"removed_groups": stats.RemovedGroups,
			"saved_files":    stats.SavedFiles,
			"failed_saves":   stats.FailedSaves,
		},
		stats.At)
}

// LoadPoint converts a load outcome into a point.
func LoadPoint(path string, transient bool, loadErr error, at time.Time) *influxdb2_write.Point {
	result := "success"
	if loadErr != nil {
		result = "error"
	}
	p := influxdb2.NewPointWithMeasurement(MeasurementLoad).
		AddTag("result", result).
		AddTag("transient", fmt.Sprint(transient)).
		AddField("path", path).
		SetTime(at)
	if loadErr != nil {
		p.AddField("error", loadErr.Error())
	}
	return p
}

// Close flushes pending points and releases the connection and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	m.IsValid = false
	return errors.Join(errs...)
}
