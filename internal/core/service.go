package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/datalab/internal/logging"
	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/JonMunkholm/datalab/internal/report"
	"github.com/JonMunkholm/datalab/internal/store"
	"github.com/JonMunkholm/datalab/internal/tabular"
)

// DefaultUploadTimeout bounds a whole upload batch.
const DefaultUploadTimeout = 10 * time.Minute

// ExportBaseName is the base file name of the product export.
const ExportBaseName = "products_export"

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	UploadDir     string // raw upload copies; empty disables them
	ExportDir     string
	UploadTimeout time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	Synonyms      map[string]string // nil means product.DefaultSynonyms
}

// Service runs the product operations on top of a Store.
type Service struct {
	store      store.Store
	normalizer *product.Normalizer
	exporter   *tabular.Exporter
	limiter    *UploadLimiter

	uploadDir     string
	uploadTimeout time.Duration
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts Options) *Service {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "exports"
	}

	return &Service{
		store:         st,
		normalizer:    product.NewNormalizer(opts.Synonyms),
		exporter:      tabular.NewExporter(opts.ExportDir),
		limiter:       NewUploadLimiter(opts.MaxConcurrent, opts.MaxWait),
		uploadDir:     opts.UploadDir,
		uploadTimeout: opts.UploadTimeout,
	}
}

// Limiter exposes the upload limiter for health reporting and shutdown.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// List returns records matching f, newest transaction first.
func (s *Service) List(ctx context.Context, f store.Filter) ([]product.Record, error) {
	f.Order = store.OrderRecent
	return s.store.List(ctx, f)
}

// Export writes every record to a new XLSX file and returns its path.
// Rows are ordered by transaction date descending, then SKU.
func (s *Service) Export(ctx context.Context) (string, error) {
	records, err := s.store.List(ctx, store.Filter{Order: store.OrderExport})
	if err != nil {
		return "", err
	}

	path, err := s.exporter.Write(records, ExportBaseName)
	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).Info("export written", "path", path, "records", len(records))
	return path, nil
}

// Stats computes the five report datasets over the current records.
func (s *Service) Stats(ctx context.Context) (report.Stats, error) {
	records, err := s.store.All(ctx)
	if err != nil {
		return report.Stats{}, err
	}
	return report.BuildStats(records), nil
}

// Dashboard computes the summary figures over the current records.
func (s *Service) Dashboard(ctx context.Context) (report.Dashboard, error) {
	records, err := s.store.All(ctx)
	if err != nil {
		return report.Dashboard{}, err
	}
	return report.BuildDashboard(records), nil
}
