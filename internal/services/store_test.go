package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
)

func newStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// ----- NewsStore -----

func TestNewsStore_SaveIsIdempotentAndCountsMetrics(t *testing.T) {
	s := NewNewsStore(newStoreDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	before := testutil.ToFloat64(ingested.WithLabelValues(collectionNews))

	batch := []domain.RawNewsRecord{
		{OriginalLink: "https://pub.example/1", Title: "one", CollectedAt: now},
		{OriginalLink: "https://pub.example/2", Title: "two", CollectedAt: now},
	}
	n, err := s.Save(ctx, batch)
	if err != nil || n != 2 {
		t.Fatalf("first save = %d, %v", n, err)
	}
	n, err = s.Save(ctx, batch)
	if err != nil || n != 0 {
		t.Fatalf("second save = %d, %v", n, err)
	}
	if total, _ := s.Count(ctx); total != 2 {
		t.Fatalf("expected 2 stored, got %d", total)
	}
	if got := testutil.ToFloat64(ingested.WithLabelValues(collectionNews)) - before; got != 2 {
		t.Fatalf("ingested metric delta = %v; want 2", got)
	}
}

func TestNewsStore_RejectsBlankLinkBeforeWriting(t *testing.T) {
	s := NewNewsStore(newStoreDB(t))
	ctx := context.Background()

	_, err := s.Save(ctx, []domain.RawNewsRecord{
		{OriginalLink: "https://pub.example/ok"},
		{OriginalLink: "   "},
	})
	if !errors.Is(err, ErrMissingOriginalLink) {
		t.Fatalf("expected ErrMissingOriginalLink, got %v", err)
	}
	if total, _ := s.Count(ctx); total != 0 {
		t.Fatalf("nothing should be written, got %d rows", total)
	}
}

func TestNewsStore_PruneScenario(t *testing.T) {
	s := NewNewsStore(newStoreDB(t))
	ctx := context.Background()
	t1 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(pruned.WithLabelValues(collectionNews))

	_, err := s.Save(ctx, []domain.RawNewsRecord{
		{OriginalLink: "a", CollectedAt: t1},
		{OriginalLink: "b", CollectedAt: t1.Add(time.Minute)},
		{OriginalLink: "c", CollectedAt: t1.Add(2 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	n, err := s.Prune(ctx, 2)
	if err != nil || n != 1 {
		t.Fatalf("prune = %d, %v; want 1", n, err)
	}
	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].OriginalLink != "c" || recent[1].OriginalLink != "b" {
		t.Fatalf("unexpected recent: %+v", recent)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected a pruned, got %v", err)
	}
	if got := testutil.ToFloat64(pruned.WithLabelValues(collectionNews)) - before; got != 1 {
		t.Fatalf("pruned metric delta = %v; want 1", got)
	}
}

func TestNewsStore_Search(t *testing.T) {
	s := NewNewsStore(newStoreDB(t))
	ctx := context.Background()
	t1 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.Save(ctx, []domain.RawNewsRecord{
		{OriginalLink: "old", Title: "Rates rise again", CollectedAt: t1},
		{OriginalLink: "new", Title: "Rates rise", Description: "central bank", CollectedAt: t1.Add(time.Minute)},
		{OriginalLink: "other", Title: "Cup final", CollectedAt: t1.Add(2 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Search(ctx, "rates rise", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// "old" scores 2/3, "new" scores 2/4.
	if len(got) != 2 || got[0].OriginalLink != "old" || got[1].OriginalLink != "new" {
		t.Fatalf("unexpected ranking: %+v", got)
	}
	if got, _ := s.Search(ctx, "bank", 1); len(got) != 1 || got[0].OriginalLink != "new" {
		t.Fatalf("description should be searchable: %+v", got)
	}
	for _, q := range []string{"", "  ", "weather"} {
		got, err := s.Search(ctx, q, 5)
		if err != nil || got == nil || len(got) != 0 {
			t.Fatalf("Search(%q) = %v, %v; want empty", q, got, err)
		}
	}
}

func TestNewsStore_RetentionMonotonicity(t *testing.T) {
	s := NewNewsStore(newStoreDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	var batch []domain.RawNewsRecord
	for i := 0; i < 20; i++ {
		batch = append(batch, domain.RawNewsRecord{
			OriginalLink: fmt.Sprintf("l%02d", i),
			CollectedAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
	if _, err := s.Save(ctx, batch); err != nil {
		t.Fatalf("save: %v", err)
	}

	const keep = 7
	if _, err := s.Prune(ctx, keep); err != nil {
		t.Fatalf("prune: %v", err)
	}
	left, _ := s.Count(ctx)
	if left != keep {
		t.Fatalf("remaining %d; want %d with distinct timestamps", left, keep)
	}
	recent, _ := s.Recent(ctx, 100)
	cutoff := base.Add(time.Duration(20-keep) * time.Second)
	for _, r := range recent {
		if r.CollectedAt.Before(cutoff) {
			t.Fatalf("record %s older than cutoff survived", r.OriginalLink)
		}
	}
}

func TestNewsStore_PrunePropagatesError(t *testing.T) {
	db := newStoreDB(t)
	if err := db.Migrator().DropTable(&domain.RawNewsRecord{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, err := NewNewsStore(db).Prune(context.Background(), 1); err == nil {
		t.Fatalf("expected storage error to propagate")
	}
}

// ----- TopicStore -----

func TestTopicStore_SaveSnapshotEncodesPayload(t *testing.T) {
	s := NewTopicStore(newStoreDB(t))
	ctx := context.Background()

	groups := []map[string]any{{"topic": "rates", "links": []string{"a", "b"}}}
	snap, err := s.SaveSnapshot(ctx, groups)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(snap.Groups, &decoded); err != nil {
		t.Fatalf("stored groups are not JSON: %v", err)
	}
	if decoded[0]["topic"] != "rates" {
		t.Fatalf("unexpected groups: %s", snap.Groups)
	}

	raw := json.RawMessage(`{"already":"encoded"}`)
	if _, err := s.SaveSnapshot(ctx, raw); err != nil {
		t.Fatalf("save raw: %v", err)
	}
	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if string(latest.Groups) != `{"already":"encoded"}` {
		t.Fatalf("raw payload changed: %s", latest.Groups)
	}
}

func TestTopicStore_SaveSnapshotEncodeError(t *testing.T) {
	s := NewTopicStore(newStoreDB(t))
	if _, err := s.SaveSnapshot(context.Background(), map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestTopicStore_LatestAbsent(t *testing.T) {
	s := NewTopicStore(newStoreDB(t))
	if _, err := s.Latest(context.Background()); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected repo.ErrNotFound, got %v", err)
	}
}

func TestTopicStore_Prune(t *testing.T) {
	db := newStoreDB(t)
	s := NewTopicStore(db)
	ctx := context.Background()
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		db.Create(&domain.TopicSnapshot{CreatedAt: base.Add(time.Duration(i) * time.Hour), Groups: datatypes.JSON(`[]`)})
	}
	n, err := s.Prune(ctx, 1)
	if err != nil || n != 3 {
		t.Fatalf("prune = %d, %v; want 3", n, err)
	}
}

// ----- MaterialStore -----

func TestMaterialStore_CreateAssignsIDAndTime(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	ctx := context.Background()

	m := &domain.LearningMaterial{RowID: 5, Title: "no id yet"}
	id, err := s.Create(ctx, m)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" || id != m.ID {
		t.Fatalf("expected generated id, got %q", id)
	}
	if m.CreatedAt.IsZero() {
		t.Fatalf("expected created_at stamped")
	}
	got, err := s.Get(ctx, id)
	if err != nil || got.Title != "no id yet" {
		t.Fatalf("get = %+v, %v", got, err)
	}

	if _, err := s.Create(ctx, nil); !errors.Is(err, ErrNilMaterial) {
		t.Fatalf("expected ErrNilMaterial, got %v", err)
	}
}

func TestMaterialStore_CreateKeepsCallerIDAndRejectsDuplicate(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	ctx := context.Background()

	id, err := s.Create(ctx, &domain.LearningMaterial{ID: " mat-7 "})
	if err != nil || id != "mat-7" {
		t.Fatalf("create = %q, %v", id, err)
	}
	_, err = s.Create(ctx, &domain.LearningMaterial{ID: "mat-7"})
	if !repo.IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestMaterialStore_UpdateAudioValidation(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	ctx := context.Background()
	id, _ := s.Create(ctx, &domain.LearningMaterial{ID: "m1"})

	if _, err := s.UpdateAudio(ctx, id, domain.AudioField("title"), "u"); !errors.Is(err, ErrInvalidAudioField) {
		t.Fatalf("expected ErrInvalidAudioField, got %v", err)
	}
	if _, err := s.UpdateAudio(ctx, id, domain.AudioPodcast, "  "); !errors.Is(err, ErrEmptyAudioURL) {
		t.Fatalf("expected ErrEmptyAudioURL, got %v", err)
	}
	n, err := s.UpdateAudio(ctx, id, domain.AudioPodcast, "https://cdn.example/p.mp3")
	if err != nil || n != 1 {
		t.Fatalf("update = %d, %v", n, err)
	}
	n, err = s.UpdateAudio(ctx, "missing", domain.AudioPodcast, "https://cdn.example/p.mp3")
	if err != nil || n != 0 {
		t.Fatalf("update missing = %d, %v; want silent no-op", n, err)
	}

	got, _ := s.Get(ctx, id)
	if got.AudioPodcast == nil || *got.AudioPodcast != "https://cdn.example/p.mp3" || got.AudioSummary != nil {
		t.Fatalf("unexpected audio state: %+v", got)
	}
}

func TestMaterialStore_ListAndListPage(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	ctx := context.Background()
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, &domain.LearningMaterial{ID: fmt.Sprintf("m%d", i), CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// List does not clamp.
	empty, err := s.List(ctx, 4, 2)
	if err != nil || len(empty) != 0 {
		t.Fatalf("List past end = %v, %v", empty, err)
	}

	// ListPage clamps to the last page.
	p, err := s.ListPage(ctx, 9, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if p.Page != 3 || p.TotalPages != 3 || p.Total != 5 || len(p.Items) != 1 || p.Items[0].ID != "m0" {
		t.Fatalf("unexpected page: %+v", p)
	}

	p, err = s.ListPage(ctx, 1, 0)
	if err != nil || p.PageSize != 1 || len(p.Items) != 1 || p.Items[0].ID != "m4" {
		t.Fatalf("unexpected first page: %+v, %v", p, err)
	}
}

func TestMaterialStore_ListPageEmpty(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	p, err := s.ListPage(context.Background(), 3, 50)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if p.Page != 1 || p.TotalPages != 0 || p.Total != 0 || len(p.Items) != 0 {
		t.Fatalf("unexpected empty page: %+v", p)
	}
}

func TestMaterialStore_DeleteAndStats(t *testing.T) {
	s := NewMaterialStore(newStoreDB(t))
	ctx := context.Background()
	at := time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC)
	_, _ = s.Create(ctx, &domain.LearningMaterial{ID: "x", CreatedAt: at})

	st, err := s.Stats(ctx)
	if err != nil || st.Count != 1 || st.LastUpdated == nil || st.MaxRowID == 0 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
	if n, err := s.Delete(ctx, "x"); err != nil || n != 1 {
		t.Fatalf("delete = %d, %v", n, err)
	}
	if n, err := s.Delete(ctx, "x"); err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v", n, err)
	}
	if c, _ := s.Count(ctx); c != 0 {
		t.Fatalf("expected empty store, got %d", c)
	}
}
