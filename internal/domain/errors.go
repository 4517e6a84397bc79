package domain

import "errors"

var (
	// ErrPostNotFound is returned by PostFetcher when the lookup API reports
	// no post for the given ref or URL.
	ErrPostNotFound = errors.New("post not found")

	// ErrSceneNotFound is returned by the catalog for an unknown scene id.
	ErrSceneNotFound = errors.New("scene not found")

	// ErrSceneExists is returned when adding a scene id already in the catalog.
	ErrSceneExists = errors.New("scene already exists")
)
