package catalog

import "errors"

// Domain errors for the catalog package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, catalog.ErrItemNotFound) {
//	    // handle not found case
//	}
var (
	// ErrItemNotFound is returned when an item ID does not exist.
	ErrItemNotFound = errors.New("catalog: item not found")

	// ErrEventNotFound is returned when no event matches the query.
	ErrEventNotFound = errors.New("catalog: event not found")

	// ErrAssetNotFound is returned when an asset ID does not exist.
	ErrAssetNotFound = errors.New("catalog: asset not found")

	// ErrStorageNotFound is returned when a storage id is not configured.
	ErrStorageNotFound = errors.New("catalog: storage not found")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("catalog: invalid object status")

	// ErrInvalidRunMode is returned when a run mode value is not recognised.
	ErrInvalidRunMode = errors.New("catalog: invalid run mode")
)
