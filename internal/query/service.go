// Package query implements the read path: enriching the catalog's target
// scenes with post metadata from the cache or a live lookup.
package query

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/logging"
	"github.com/scenecast/scenecast/internal/postcache"
)

// stateSnapshotter is the subset of the state store the read path needs.
type stateSnapshotter interface {
	Snapshot() domain.Snapshot
}

// Service resolves enrichment data for target scenes. Lookups for a batch
// run concurrently; a failed lookup degrades that one target to empty extra
// data instead of failing the batch. Only a catalog read failure is a
// request-level failure.
type Service struct {
	catalog domain.SceneCatalog
	state   stateSnapshotter
	cache   *postcache.Cache
	fetcher domain.PostFetcher

	// group collapses concurrent lookups for the same ref into one API call.
	group singleflight.Group
}

func NewService(catalog domain.SceneCatalog, state stateSnapshotter, cache *postcache.Cache, fetcher domain.PostFetcher) *Service {
	return &Service{
		catalog: catalog,
		state:   state,
		cache:   cache,
		fetcher: fetcher,
	}
}

// Targets returns the enriched view of all catalog scenes, sorted by scene id.
// Each target's chapter reflects the live heartbeat state: a scene still
// outstanding upstream carries the chapter it was last seen in; scenes absent
// from the state keep their catalog chapter.
func (s *Service) Targets(ctx context.Context) ([]domain.Target, error) {
	scenes, err := s.catalog.GetAllSorted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene catalog: %w", err)
	}

	refChapters := chapterIndex(s.state.Snapshot())

	targets := make([]domain.Target, len(scenes))

	var wg sync.WaitGroup
	for i, scene := range scenes {
		chapter := scene.Chapter
		if c, ok := refChapters[scene.ExternalRef]; ok {
			chapter = c
		}

		targets[i] = domain.Target{
			Scene:    scene.ID,
			Chapter:  chapter,
			Fullname: scene.ExternalRef,
		}

		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			extra, err := s.enrich(ctx, ref)
			if err != nil {
				// Per-item isolation: report and move on with empty extra.
				logging.WithError(err).Warn("Scene enrichment failed", "ref", ref)
				return
			}
			targets[i].Extra = extra
		}(i, scene.ExternalRef)
	}
	wg.Wait()

	return targets, nil
}

// chapterIndex maps each outstanding external ref to its chapter in the
// snapshot. A ref appearing in more than one retained chapter resolves to
// the greatest one, matching the store's current-chapter policy.
func chapterIndex(snap domain.Snapshot) map[string]int {
	idx := make(map[string]int)
	for chapterID, chapter := range snap.Chapters {
		for _, ref := range chapter.Scenes {
			if cur, ok := idx[ref]; !ok || chapterID > cur {
				idx[ref] = chapterID
			}
		}
	}
	return idx
}

// enrich resolves one ref through the cache, falling back to a live fetch.
// Fetched posts are cached under the canonical ref the API returned, which
// may differ from the requested one.
func (s *Service) enrich(ctx context.Context, ref string) (domain.TargetExtra, error) {
	if cached, ok := s.cache.Get(ref); ok {
		return domain.TargetExtra{URL: cached.URL, StartTime: cached.CreatedAt.Unix()}, nil
	}

	result, err, _ := s.group.Do(ref, func() (interface{}, error) {
		post, err := s.fetcher.FetchPostByRef(ctx, ref)
		if err != nil {
			return domain.Post{}, err
		}
		s.cache.Put(post.Name, post)
		return post, nil
	})
	if err != nil {
		return domain.TargetExtra{}, err
	}

	post := result.(domain.Post)
	return domain.TargetExtra{URL: post.URL, StartTime: post.CreatedAt.Unix()}, nil
}
