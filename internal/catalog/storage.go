package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/nebulabroadcast/nebula-worker/internal/infrastructure/config"
)

// Storages resolves storage ids to local mount points.
type Storages struct {
	site  string
	paths map[int]string
}

// NewStorages builds a resolver from the configured storages. The site
// name prefixes playout file names.
func NewStorages(site string, storages []config.StorageConfig) *Storages {
	paths := make(map[int]string, len(storages))
	for _, s := range storages {
		paths[s.ID] = s.Path
	}
	return &Storages{site: site, paths: paths}
}

// Resolve joins a storage-relative path onto the storage's mount point.
func (s *Storages) Resolve(storageID int, rel string) (string, error) {
	root, ok := s.paths[storageID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrStorageNotFound, storageID)
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// AssetPath returns the absolute path of the asset's own file.
func (s *Storages) AssetPath(a *Asset) (string, error) {
	if a == nil || a.Path == "" {
		return "", fmt.Errorf("%w: asset has no file", ErrAssetNotFound)
	}
	return s.Resolve(a.StorageID, a.Path)
}

// PlayoutName returns the device-side name of an asset's playout rendition.
func (s *Storages) PlayoutName(assetID int64) string {
	return fmt.Sprintf("%s-%d", s.site, assetID)
}

// PlayoutPath returns the absolute path of the asset's playout rendition
// for the channel. ok is false when the channel has no playout storage.
func (s *Storages) PlayoutPath(ch config.ChannelConfig, assetID int64) (path string, ok bool) {
	if ch.PlayoutStorage == 0 || ch.PlayoutDir == "" {
		return "", false
	}
	rel := filepath.Join(ch.PlayoutDir, s.PlayoutName(assetID)+"."+ch.PlayoutContainer)
	full, err := s.Resolve(ch.PlayoutStorage, rel)
	if err != nil {
		return "", false
	}
	return full, true
}
