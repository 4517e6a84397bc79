package domain

import (
	"context"
	"time"
)

// NoChapter is the value of Snapshot.CurrentChapter before the first
// heartbeat arrives.
const NoChapter = -1

// Scene is one trackable unit of content as stored in the catalog.
// ExternalRef and Chapter are volatile: every heartbeat overwrites them.
type Scene struct {
	ID          int64  `json:"scene_id"`
	ExternalRef string `json:"external_ref"`
	Chapter     int    `json:"chapter"`
}

// Chapter groups scenes by index. Scenes is sparse (index gaps allowed) and
// is fully replaced whenever a heartbeat names this chapter.
type Chapter struct {
	ID     int            `json:"chapter_id"`
	Scenes map[int]string `json:"scenes"`
}

// Heartbeat is the authoritative full snapshot of not-yet-completed scenes,
// keyed "<chapter_id>_<scene_index>" → external ref.
type Heartbeat struct {
	RemainingScenes map[string]string `json:"remaining_scenes"`
}

// Snapshot is a consistent, caller-owned copy of the shared state.
type Snapshot struct {
	Chapters        map[int]Chapter
	Scenes          map[int]string
	CurrentChapter  int
	SubscriberCount int
}

// Post is the enrichment data returned by the external lookup API.
// Name is the canonical external ref, which may differ from the ref
// requested when the lookup resolves a shortened reference.
type Post struct {
	Name      string
	URL       string
	CreatedAt time.Time
}

// CachedPost is a Post plus the time it entered the cache.
type CachedPost struct {
	ExternalRef string
	URL         string
	CreatedAt   time.Time
	CachedAt    time.Time
}

// Target is one enriched scene in the read API response.
type Target struct {
	Scene    int64       `json:"scene"`
	Chapter  int         `json:"chapter"`
	Fullname string      `json:"fullname"`
	Extra    TargetExtra `json:"extra"`
}

// TargetExtra carries per-scene enrichment. Both fields are empty when the
// lookup for that scene failed.
type TargetExtra struct {
	URL       string `json:"url"`
	StartTime int64  `json:"start_time"`
}

// SceneCatalog is the persistent catalog of scenes. It is the source of
// truth for which scenes exist; the state store only tracks which remain
// outstanding.
type SceneCatalog interface {
	GetAll(ctx context.Context) ([]Scene, error)
	GetAllSorted(ctx context.Context) ([]Scene, error)
}

// PostFetcher resolves external refs against the rate-limited lookup API.
type PostFetcher interface {
	FetchPostByRef(ctx context.Context, ref string) (Post, error)
	FetchPostByURL(ctx context.Context, url string) (Post, error)
}

// FeedbackRecorder persists feedback frames received from subscribers.
type FeedbackRecorder interface {
	Record(ctx context.Context, externalID string, upvoted bool) error
}
