package metacache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoPageCache is a PageCache backed by a cost-bounded ristretto
// cache. Ristretto cannot enumerate its contents, so a side index tracks
// which pages are cached per file identity; the OnEvict hook keeps the
// index honest when ristretto drops pages under memory pressure.
type RistrettoPageCache struct {
	cache    *ristretto.Cache[string, cachedPage]
	pageSize int64

	mu    sync.Mutex
	index map[FileId]map[int64]struct{}
}

type cachedPage struct {
	id   PageId
	data []byte
}

func NewRistrettoPageCache(config MetaCacheConfig) (*RistrettoPageCache, error) {
	if config.MaxCacheSizeMb <= 0 || config.PageSizeBytes <= 0 {
		return nil, errors.New("invalid cache configuration")
	}

	pc := &RistrettoPageCache{
		pageSize: config.PageSizeBytes,
		index:    map[FileId]map[int64]struct{}{},
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, cachedPage]{
		NumCounters: 1e7,
		MaxCost:     config.MaxCacheSizeMb * 1e6,
		BufferItems: 64,
		OnEvict:     pc.onEvict,
		Metrics:     false,
	})
	if err != nil {
		return nil, err
	}

	pc.cache = cache
	return pc, nil
}

func pageKey(id PageId) string {
	return fmt.Sprintf("%s-%d", id.FileId, id.PageIndex)
}

func (pc *RistrettoPageCache) StorePage(id PageId, data []byte) error {
	// Copy so the caller can reuse its buffer
	page := make([]byte, len(data))
	copy(page, data)

	pc.indexAdd(id)

	added := pc.cache.Set(pageKey(id), cachedPage{id: id, data: page}, int64(len(page)))
	if !added {
		pc.indexRemove(id)
		return ErrPageDropped
	}

	pc.cache.Wait()
	return nil
}

func (pc *RistrettoPageCache) GetPage(id PageId) ([]byte, bool) {
	page, found := pc.cache.Get(pageKey(id))
	if !found {
		return nil, false
	}
	return page.data, true
}

func (pc *RistrettoPageCache) DeletePage(id PageId) {
	pc.indexRemove(id)
	pc.cache.Del(pageKey(id))
}

// DeleteFile drops every cached page for a file identity.
func (pc *RistrettoPageCache) DeleteFile(fileId FileId) {
	pc.mu.Lock()
	indexes := make([]int64, 0, len(pc.index[fileId]))
	for pageIndex := range pc.index[fileId] {
		indexes = append(indexes, pageIndex)
	}
	delete(pc.index, fileId)
	pc.mu.Unlock()

	for _, pageIndex := range indexes {
		pc.cache.Del(pageKey(PageId{FileId: fileId, PageIndex: pageIndex}))
	}
}

// CachedPageIds lists the cached pages for a file identity. When length is
// positive, only pages that fall inside the file's page range are returned;
// length zero returns everything known for the identity.
func (pc *RistrettoPageCache) CachedPageIds(fileId FileId, length int64) []PageId {
	maxPages := int64(-1)
	if length > 0 {
		maxPages = (length + pc.pageSize - 1) / pc.pageSize
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	pages := make([]PageId, 0, len(pc.index[fileId]))
	for pageIndex := range pc.index[fileId] {
		if maxPages >= 0 && pageIndex >= maxPages {
			continue
		}
		pages = append(pages, PageId{FileId: fileId, PageIndex: pageIndex})
	}

	return pages
}

func (pc *RistrettoPageCache) Cleanup() {
	pc.cache.Close()
}

func (pc *RistrettoPageCache) onEvict(item *ristretto.Item[cachedPage]) {
	pc.indexRemove(item.Value.id)
	Logger.Debugf("Evicted page: %s", pageKey(item.Value.id))
}

func (pc *RistrettoPageCache) indexAdd(id PageId) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pages, ok := pc.index[id.FileId]
	if !ok {
		pages = map[int64]struct{}{}
		pc.index[id.FileId] = pages
	}
	pages[id.PageIndex] = struct{}{}
}

func (pc *RistrettoPageCache) indexRemove(id PageId) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pages, ok := pc.index[id.FileId]
	if !ok {
		return
	}
	delete(pages, id.PageIndex)
	if len(pages) == 0 {
		delete(pc.index, id.FileId)
	}
}
