package cache

import (
	"sync"
	"testing"
	"time"

	"podcast-scribe-go/internal/types"
)

func TestUpsertMergesFields(t *testing.T) {
	s := NewStore(time.Hour)
	key := Key("https://example.com/ep1")

	s.Upsert(key, Entry{Metadata: &types.Metadata{AudioURL: "https://cdn/ep1.mp3"}})
	s.Upsert(key, Entry{Transcript: String("raw transcript")})

	e := s.Get(key)
	if e == nil {
		t.Fatal("entry missing")
	}
	if e.Metadata == nil || e.Metadata.AudioURL != "https://cdn/ep1.mp3" {
		t.Errorf("metadata lost by later upsert: %+v", e.Metadata)
	}
	if e.Transcript == nil || *e.Transcript != "raw transcript" {
		t.Errorf("transcript = %v", e.Transcript)
	}
	if e.Complete() {
		t.Error("entry should not be complete yet")
	}

	s.Upsert(key, Entry{Script: String("clean"), Report: String("summary")})
	if !s.Get(key).Complete() {
		t.Error("entry should be complete")
	}
}

func TestUpsertNeverNullOverwrites(t *testing.T) {
	s := NewStore(time.Hour)
	key := Key("https://example.com/ep2")

	s.Upsert(key, Entry{Transcript: String("keep me")})
	s.Upsert(key, Entry{Report: String("report only")})

	e := s.Get(key)
	if e.Transcript == nil || *e.Transcript != "keep me" {
		t.Fatalf("transcript was erased: %v", e.Transcript)
	}
}

func TestGetEvictsStaleEntries(t *testing.T) {
	s := NewStore(time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	key := Key("https://example.com/ep3")
	s.Upsert(key, Entry{Transcript: String("old")})

	now = now.Add(2 * time.Hour)
	if e := s.Get(key); e != nil {
		t.Fatalf("stale entry returned: %+v", e)
	}
	if s.Len() != 0 {
		t.Fatalf("stale entry not purged, len = %d", s.Len())
	}
}

func TestKeyCanonicalization(t *testing.T) {
	a := Key("https://Example.com/Ep1/")
	b := Key("  https://example.com/ep1")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := NewStore(time.Hour)
	key := Key("https://example.com/ep4")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch i % 4 {
				case 0:
					s.Upsert(key, Entry{Metadata: &types.Metadata{AudioURL: "u"}})
				case 1:
					s.Upsert(key, Entry{Transcript: String("t")})
				case 2:
					s.Upsert(key, Entry{Script: String("s")})
				default:
					s.Get(key)
				}
			}
		}(i)
	}
	wg.Wait()

	e := s.Get(key)
	if e == nil || e.Metadata == nil || e.Transcript == nil || e.Script == nil {
		t.Fatalf("fields lost under concurrency: %+v", e)
	}
}
