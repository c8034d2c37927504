package metacache

import (
	"context"
	"time"
)

// CacheService wires the configured metastore, page cache and source store
// into a MetadataCoordinator and runs the optional background refresh
// sweep.
type CacheService struct {
	cfg         MetaCacheConfig
	coordinator *MetadataCoordinator
	metastore   MetadataStore
	pages       *RistrettoPageCache
	source      SourceStore
}

func NewCacheService(ctx context.Context, cfg MetaCacheConfig) (*CacheService, error) {
	metastore, err := NewMetadataStore(cfg.Metastore)
	if err != nil {
		return nil, err
	}

	pages, err := NewRistrettoPageCache(cfg)
	if err != nil {
		return nil, err
	}

	source, err := NewSourceStore(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.PushURL != "" {
		initMetricsPush(ctx, cfg.Metrics)
	}

	return &CacheService{
		cfg:         cfg,
		coordinator: NewMetadataCoordinator(metastore, pages, source, nil),
		metastore:   metastore,
		pages:       pages,
		source:      source,
	}, nil
}

// NewMetadataStore creates the metadata store selected by config.
func NewMetadataStore(config MetastoreConfig) (MetadataStore, error) {
	switch config.Driver {
	case MetastoreDriverBadger:
		return NewBadgerMetadataStore(config)
	case MetastoreDriverMemory:
		return NewMemoryMetadataStore(), nil
	}

	return nil, ErrInvalidMetastoreDriver
}

// NewSourceStore creates the source store selected by config.
func NewSourceStore(ctx context.Context, config SourceConfig) (SourceStore, error) {
	switch config.Mode {
	case SourceModeFS:
		return NewFSSourceStore(config.FilesystemPath)
	case SourceModeS3:
		return NewS3SourceStore(ctx, config.S3)
	}

	return nil, ErrInvalidSourceMode
}

func (s *CacheService) Coordinator() *MetadataCoordinator {
	return s.coordinator
}

func (s *CacheService) PageCache() *RistrettoPageCache {
	return s.pages
}

// Run blocks until the context is cancelled. With a positive refresh
// interval it periodically re-stats every tracked path, so content deleted
// or rewritten upstream gets evicted or invalidated locally without waiting
// for a reader to notice.
func (s *CacheService) Run(ctx context.Context) error {
	Logger.Infof("metacache %s running (source=%s, metastore=%s)", MetaCacheVersion, s.cfg.Source.Mode, s.cfg.Metastore.Driver)

	if s.cfg.RefreshIntervalS <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(time.Duration(s.cfg.RefreshIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshTrackedPaths(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *CacheService) refreshTrackedPaths(ctx context.Context) {
	paths, err := s.metastore.Paths(ctx)
	if err != nil {
		Logger.Errorf("Failed to list tracked paths: %v", err)
		return
	}

	for _, path := range paths {
		if _, _, err := s.coordinator.LoadFromSource(ctx, path); err != nil {
			Logger.Errorf("Failed to refresh path <%s>: %v", path, err)
		}
	}
}

func (s *CacheService) Cleanup() {
	s.pages.Cleanup()

	if err := s.metastore.Close(); err != nil {
		Logger.Errorf("Failed to close metadata store: %v", err)
	}
}
