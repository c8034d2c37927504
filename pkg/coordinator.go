package metacache

import (
	"context"
	"errors"
)

// MetadataCoordinator reconciles three independently-owned pieces of state
// per tracked path: ground truth from the source store, the locally
// persisted metadata record, and cached content pages keyed by file
// identity. Whenever the source's view of a file changes, cached pages for
// the old identity are purged before the new metadata becomes observable,
// so a reader can never pair fresh metadata with stale bytes.
//
// Put and Remove hold a per-path lock around their read-decide-purge-write
// sequence; concurrent calls for distinct paths do not block each other.
type MetadataCoordinator struct {
	metastore MetadataStore
	pages     PageCache
	source    SourceStore
	translate StatusTranslator
	locks     *pathLockTable
}

func NewMetadataCoordinator(metastore MetadataStore, pages PageCache, source SourceStore, translate StatusTranslator) *MetadataCoordinator {
	if translate == nil {
		translate = DefaultStatusTranslator
	}

	return &MetadataCoordinator{
		metastore: metastore,
		pages:     pages,
		source:    source,
		translate: translate,
		locks:     newPathLockTable(),
	}
}

// DefaultStatusTranslator maps a source stat result 1:1 onto a metadata
// record. Hosting workers can inject their own translator to enrich or
// filter records.
func DefaultStatusTranslator(path string, status *SourceStatus) (*FileMeta, error) {
	return &FileMeta{
		Path: path,
		Info: FileInfo{
			IsFolder:    status.IsFolder,
			Length:      status.Length,
			UfsType:     status.StoreType,
			ContentHash: status.ContentHash,
		},
	}, nil
}

// GetFromSource stats a path against the source store. A source not-found
// is an empty result, not an error. Does not touch the metastore or the
// page cache.
func (c *MetadataCoordinator) GetFromSource(ctx context.Context, path string) (*FileMeta, bool, error) {
	status, err := c.source.Stat(ctx, path)
	if errors.Is(err, ErrSourceNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	meta, err := c.translate(path, status)
	if err != nil {
		return nil, false, err
	}
	if meta == nil {
		return nil, false, nil
	}

	return meta, true, nil
}

// LoadFromSource stats a path against the source store and syncs local
// state to the result: a found record is reconciled and persisted via Put,
// a not-found evicts the path's metadata and cached pages. This is the only
// operation that transitions a path between existing and not existing
// locally based on authoritative truth.
func (c *MetadataCoordinator) LoadFromSource(ctx context.Context, path string) (*FileMeta, bool, error) {
	meta, found, err := c.GetFromSource(ctx, path)
	if err != nil {
		return nil, false, err
	}

	if !found {
		if _, _, err := c.Remove(ctx, path); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if err := c.Put(ctx, path, meta); err != nil {
		return nil, false, err
	}

	metricSourceLoads.Inc()
	return meta, true, nil
}

// GetFromMetaStore reads the locally persisted record for a path. Pure
// read, no invalidation logic.
func (c *MetadataCoordinator) GetFromMetaStore(ctx context.Context, path string) (*FileMeta, bool, error) {
	meta, err := c.metastore.Get(ctx, path)
	if errors.Is(err, ErrMetaNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return meta, true, nil
}

// Put reconciles a newly observed record against the existing one and
// persists it. When the records disagree in a way that could make cached
// pages stale, the pages for the OLD identity and length are purged before
// the metadata write. The metadata write always happens, and always last.
//
// A missing prior record, a prior folder record, or a prior zero-length
// record bypasses the invalidation decision: nothing meaningful can be
// cached under those.
func (c *MetadataCoordinator) Put(ctx context.Context, path string, meta *FileMeta) error {
	unlock := c.locks.Lock(path)
	defer unlock()

	existing, err := c.metastore.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrMetaNotFound) {
		return err
	}

	if existing == nil || existing.Info.IsFolder || existing.Info.Length == 0 {
		metricMetaPuts.Inc()
		return c.metastore.Put(ctx, path, meta)
	}

	if c.shouldInvalidatePages(&existing.Info, &meta.Info) {
		c.invalidateCachedPages(path, existing.Info.Length)
	}

	metricMetaPuts.Inc()
	return c.metastore.Put(ctx, path, meta)
}

// Remove purges the path's cached pages and removes its metadata record,
// returning the removed record if one existed. Pages go first so a failure
// midway leaves a cache-miss-safe state instead of orphaned pages.
func (c *MetadataCoordinator) Remove(ctx context.Context, path string) (*FileMeta, bool, error) {
	unlock := c.locks.Lock(path)
	defer unlock()

	existing, err := c.metastore.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrMetaNotFound) {
		return nil, false, err
	}

	length := int64(0)
	if existing != nil {
		length = existing.Info.Length
	}
	c.invalidateCachedPages(path, length)

	if existing == nil {
		return nil, false, nil
	}

	if err := c.metastore.Remove(ctx, path); err != nil {
		return nil, false, err
	}

	metricPathEvictions.Inc()
	return existing, true, nil
}

func (c *MetadataCoordinator) invalidateCachedPages(path string, length int64) {
	fileId := FileIdOf(path)

	c.pages.DeleteFile(fileId)
	for _, page := range c.pages.CachedPageIds(fileId, length) {
		c.pages.DeletePage(page)
	}

	metricPageInvalidations.Inc()
	Logger.Debugf("Invalidated cached pages for path <%s> (file id %s)", path, fileId)
}

// shouldInvalidatePages decides whether cached pages must be dropped when a
// path's metadata is superseded. Invalidation is the conservative default:
// a backing-store type change, a file/folder type change, or a content hash
// that is missing on either side or differs all mean the cached bytes can
// no longer be trusted against the new record.
func (c *MetadataCoordinator) shouldInvalidatePages(existing *FileInfo, updated *FileInfo) bool {
	if c.source.StoreType() != existing.UfsType {
		return true
	}
	if existing.IsFolder != updated.IsFolder {
		return true
	}
	return existing.ContentHash == "" ||
		updated.ContentHash == "" ||
		existing.ContentHash != updated.ContentHash
}
