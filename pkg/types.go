package metacache

import (
	"context"
	"time"
)

const (
	MetaCacheVersion string = "v0.1.0"

	SourceModeFS string = "fs"
	SourceModeS3 string = "s3"

	MetastoreDriverBadger string = "badger"
	MetastoreDriverMemory string = "memory"
)

type MetaCacheConfig struct {
	DebugMode        bool            `key:"debugMode" json:"debug_mode"`
	PrettyLogs       bool            `key:"prettyLogs" json:"pretty_logs"`
	PageSizeBytes    int64           `key:"pageSizeBytes" json:"page_size_bytes"`
	MaxCacheSizeMb   int64           `key:"maxCacheSizeMb" json:"max_cache_size_mb"`
	RefreshIntervalS int             `key:"refreshIntervalS" json:"refresh_interval_s"`
	Metastore        MetastoreConfig `key:"metastore" json:"metastore"`
	Source           SourceConfig    `key:"source" json:"source"`
	Metrics          MetricsConfig   `key:"metrics" json:"metrics"`
}

type MetastoreConfig struct {
	Driver string `key:"driver" json:"driver"`
	Path   string `key:"path" json:"path"`
}

type SourceConfig struct {
	Mode           string         `key:"mode" json:"mode"`
	FilesystemPath string         `key:"filesystemPath" json:"filesystem_path"`
	S3             S3SourceConfig `key:"s3" json:"s3"`
}

type S3SourceConfig struct {
	BucketName  string `key:"bucketName" json:"bucket_name"`
	Region      string `key:"region" json:"region"`
	EndpointURL string `key:"endpointUrl" json:"endpoint_url"`
	AccessKey   string `key:"accessKey" json:"access_key"`
	SecretKey   string `key:"secretKey" json:"secret_key"`
}

type MetricsConfig struct {
	PushURL       string `key:"pushUrl" json:"push_url"`
	PushIntervalS int    `key:"pushIntervalS" json:"push_interval_s"`
	Username      string `key:"username" json:"username"`
	Password      string `key:"password" json:"password"`
}

// FileId is the cache identity of a path. It namespaces cached pages and is
// always recomputed from the path, never persisted.
type FileId string

// PageId identifies a single cached content page.
type PageId struct {
	FileId    FileId `json:"file_id"`
	PageIndex int64  `json:"page_index"`
}

// FileInfo holds the attributes of a tracked path as reported by a source
// store. UfsType records which backing-store implementation produced the
// record; ContentHash may be empty when the source cannot fingerprint content.
type FileInfo struct {
	IsFolder    bool   `json:"is_folder"`
	Length      int64  `json:"length"`
	UfsType     string `json:"ufs_type"`
	ContentHash string `json:"content_hash"`
}

// FileMeta is the metadata record persisted per path.
type FileMeta struct {
	Path string   `json:"path"`
	Info FileInfo `json:"info"`
}

// SourceStatus is the raw stat result from a source store, before
// translation into a FileMeta.
type SourceStatus struct {
	Path         string
	IsFolder     bool
	Length       int64
	ContentHash  string
	StoreType    string
	LastModified time.Time
}

// SourceStore is the authoritative backend for file attributes. Stat returns
// ErrSourceNotFound when the path does not exist; StoreType identifies the
// backing-store implementation for invalidation decisions.
type SourceStore interface {
	Stat(ctx context.Context, path string) (*SourceStatus, error)
	StoreType() string
}

// MetadataStore is the durable path -> FileMeta mapping. Get returns
// ErrMetaNotFound for absent paths. Paths enumerates every tracked path and
// exists for the refresh sweep.
type MetadataStore interface {
	Get(ctx context.Context, path string) (*FileMeta, error)
	Put(ctx context.Context, path string, meta *FileMeta) error
	Remove(ctx context.Context, path string) error
	Paths(ctx context.Context) ([]string, error)
	Close() error
}

// PageCache stores content pages keyed by (FileId, page index). The
// coordinator only ever deletes through this interface; it never reads page
// bytes.
type PageCache interface {
	StorePage(id PageId, data []byte) error
	GetPage(id PageId) ([]byte, bool)
	DeletePage(id PageId)
	DeleteFile(fileId FileId)
	CachedPageIds(fileId FileId, length int64) []PageId
}

// StatusTranslator converts a source stat result into a metadata record.
// Returning a nil record means no record applies to the path.
type StatusTranslator func(path string, status *SourceStatus) (*FileMeta, error)
