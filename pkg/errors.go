package metacache

import "errors"

var (
	ErrSourceNotFound         = errors.New("source path not found")
	ErrMetaNotFound           = errors.New("metadata not found")
	ErrPageDropped            = errors.New("unable to cache: set dropped")
	ErrInvalidSourceMode      = errors.New("invalid source mode")
	ErrInvalidMetastoreDriver = errors.New("invalid metastore driver")
)
