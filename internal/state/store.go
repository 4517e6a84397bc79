// Package state holds the process-wide view of current read-along state,
// derived entirely from upstream heartbeats.
//
// The store is an explicitly owned object passed into every component that
// needs it. Heartbeat application is linearized under one mutex; readers get
// deep-copied snapshots and never observe a partially applied heartbeat.
package state

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/metrics"
)

// Store holds chapters, the flat scene-index view, the current chapter and
// the live subscriber count.
//
// Chapters accumulate across heartbeats: a chapter absent from the latest
// heartbeat keeps its last known scene list. The flat scenes map is replaced
// wholesale on every heartbeat.
type Store struct {
	mu              sync.RWMutex
	chapters        map[int]domain.Chapter
	scenes          map[int]string
	currentChapter  int
	subscriberCount int
}

func NewStore() *Store {
	return &Store{
		chapters:       make(map[int]domain.Chapter),
		scenes:         make(map[int]string),
		currentChapter: domain.NoChapter,
	}
}

// ApplyHeartbeat applies one heartbeat's remaining_scenes mapping.
//
// Keys are "<chapter_id>_<scene_index>"; malformed keys are skipped with a
// warning. Keys are processed in sorted order, so the current chapter is
// deterministically the chapter of the greatest key. The replacement state is
// built off to the side and swapped in under the write lock, so concurrent
// readers see either the whole heartbeat or none of it.
func (s *Store) ApplyHeartbeat(remaining map[string]string) {
	scenes := make(map[int]string, len(remaining))
	chapterScenes := make(map[int]map[int]string)
	currentChapter := domain.NoChapter

	for _, key := range sortedKeys(remaining) {
		chapterID, sceneIndex, ok := parseSceneKey(key)
		if !ok {
			slog.Warn("Skipping malformed heartbeat key", "key", key)
			metrics.HeartbeatKeysSkipped.Inc()
			continue
		}

		ref := remaining[key]
		scenes[sceneIndex] = ref
		if chapterScenes[chapterID] == nil {
			chapterScenes[chapterID] = make(map[int]string)
		}
		chapterScenes[chapterID][sceneIndex] = ref
		currentChapter = chapterID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenes = scenes
	for chapterID, sc := range chapterScenes {
		s.chapters[chapterID] = domain.Chapter{ID: chapterID, Scenes: sc}
	}
	if currentChapter != domain.NoChapter {
		s.currentChapter = currentChapter
	}

	metrics.HeartbeatsApplied.Inc()
	metrics.TrackedScenes.Set(float64(len(scenes)))
}

// Snapshot returns a deep copy of the current state. The caller owns the
// returned maps.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chapters := make(map[int]domain.Chapter, len(s.chapters))
	for id, ch := range s.chapters {
		scenes := make(map[int]string, len(ch.Scenes))
		for idx, ref := range ch.Scenes {
			scenes[idx] = ref
		}
		chapters[id] = domain.Chapter{ID: id, Scenes: scenes}
	}

	scenes := make(map[int]string, len(s.scenes))
	for idx, ref := range s.scenes {
		scenes[idx] = ref
	}

	return domain.Snapshot{
		Chapters:        chapters,
		Scenes:          scenes,
		CurrentChapter:  s.currentChapter,
		SubscriberCount: s.subscriberCount,
	}
}

// AddSubscriber increments the subscriber count and returns the new value.
func (s *Store) AddSubscriber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriberCount++
	metrics.ConnectedSubscribers.Set(float64(s.subscriberCount))
	return s.subscriberCount
}

// RemoveSubscriber decrements the subscriber count and returns the new value.
func (s *Store) RemoveSubscriber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriberCount > 0 {
		s.subscriberCount--
	}
	metrics.ConnectedSubscribers.Set(float64(s.subscriberCount))
	return s.subscriberCount
}

// parseSceneKey splits "<chapter_id>_<scene_index>" into its parts. Both
// parts must be non-negative; negative chapters would collide with the
// NoChapter sentinel.
func parseSceneKey(key string) (chapterID, sceneIndex int, ok bool) {
	sep := strings.LastIndex(key, "_")
	if sep <= 0 || sep == len(key)-1 {
		return 0, 0, false
	}

	chapterID, err := strconv.Atoi(key[:sep])
	if err != nil || chapterID < 0 {
		return 0, 0, false
	}
	sceneIndex, err = strconv.Atoi(key[sep+1:])
	if err != nil || sceneIndex < 0 {
		return 0, 0, false
	}
	return chapterID, sceneIndex, true
}

// sortedKeys orders heartbeat keys numerically by chapter then scene index,
// so "10_0" sorts after "2_0". Malformed keys fall back to string order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ca, ia, oka := parseSceneKey(keys[i])
		cb, ib, okb := parseSceneKey(keys[j])
		if !oka || !okb {
			return keys[i] < keys[j]
		}
		if ca != cb {
			return ca < cb
		}
		return ia < ib
	})
	return keys
}
