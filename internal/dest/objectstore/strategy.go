// Package objectstore implements the S3-compatible destination. It has
// no watermark concept: every run is a full export. Rows are written by
// the source engine's native parquet export, partitioned by run date,
// then uploaded; the day's partition is simply overwritten on re-runs.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/schema"
)

// Exporter is the slice of the source engine this strategy needs: a
// native columnar export plus a count read back from the written file.
type Exporter interface {
	ExportParquet(ctx context.Context, table, path string) error
	CountParquet(ctx context.Context, path string) (int64, error)
}

// Strategy is the object-store implementation of dest.Strategy.
type Strategy struct {
	cfg      config.ObjectStoreConfig
	exporter Exporter
	log      *logger.Logger

	client   *miniogo.Client
	stageDir string
}

// New returns an unconnected Strategy. Call Connect before use.
func New(cfg config.ObjectStoreConfig, exporter Exporter, log *logger.Logger) *Strategy {
	return &Strategy{cfg: cfg, exporter: exporter, log: log}
}

// Connect builds the client, verifies the bucket is reachable (creating
// it when absent) and prepares a local staging directory for exports.
// There is no control structure to ensure since this variant has no
// watermarks.
func (s *Strategy) Connect(ctx context.Context) error {
	client, err := miniogo.New(s.cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		Secure: s.cfg.UseSSL,
		Region: s.cfg.Region,
	})
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "failed to create object store client", err)
	}

	exists, err := client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "object store unreachable", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, s.cfg.Bucket, miniogo.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("failed to create bucket %q", s.cfg.Bucket), err)
		}
		s.log.Infof("bucket %q created", s.cfg.Bucket)
	}

	stageDir, err := os.MkdirTemp("", "ducksync-export-")
	if err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "failed to create staging directory", err)
	}

	s.client = client
	s.stageDir = stageDir
	return nil
}

// Close removes the staging directory. The SDK client holds no
// persistent connections. Safe to call even if Connect partially failed.
func (s *Strategy) Close(_ context.Context) error {
	if s.stageDir != "" {
		return os.RemoveAll(s.stageDir)
	}
	return nil
}

// LastSync always reports "never synced": this variant performs a full
// export on every run.
func (s *Strategy) LastSync(_ context.Context, _ string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

// PrepareTable is a no-op; objects need no schema preparation.
func (s *Strategy) PrepareTable(_ context.Context, _ *schema.Table) error {
	return nil
}

// LoadsWholeTable marks that LoadData needs no row cursor.
func (s *Strategy) LoadsWholeTable() {}

// LoadData ignores the row cursor (callers may pass nil): the source
// engine exports the whole table to parquet and the file is uploaded
// under the current date's partition. The reported count is read back
// from the written file.
func (s *Strategy) LoadData(ctx context.Context, t *schema.Table, _ dest.RowSource, _ string) (int64, error) {
	localPath := filepath.Join(s.stageDir, t.Name+".parquet")
	if err := s.exporter.ExportParquet(ctx, t.Name, localPath); err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(localPath) }()

	count, err := s.exporter.CountParquet(ctx, localPath)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("%s/dt=%s/%s.parquet", t.Name, time.Now().Format("2006-01-02"), t.Name)
	_, err = s.client.FPutObject(ctx, s.cfg.Bucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: "application/vnd.apache.parquet",
	})
	if err != nil {
		return 0, errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("failed to upload %q", key), err)
	}

	s.log.With().Str("table", t.Name).Str("key", key).Int64("rows", count).Logger().
		Info("table exported to object store")
	return count, nil
}
