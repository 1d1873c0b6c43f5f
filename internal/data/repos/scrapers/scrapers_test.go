package scrapers

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
)

func TestRunRepoFinishOnce(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewRunRepo(db, testutil.Logger(t))

	run := &types.ScraperRunRecord{
		ScraperName: "cardekho",
		Status:      types.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := repo.Create(dbc, run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.Finish(dbc, run.ID, map[string]interface{}{"status": types.RunStatusSuccess, "listings_found": 10})
	if err != nil || !ok {
		t.Fatalf("Finish: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Finish(dbc, run.ID, map[string]interface{}{"status": types.RunStatusFailed})
	if err != nil || ok {
		t.Fatalf("Finish twice: expected no-op, ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v", err)
	}
	if got.Status != "success" || got.ListingsFound != 10 {
		t.Fatalf("GetByID: unexpected run %+v", got)
	}

	recent, err := repo.ListRecent(dbc, "cardekho", 5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("ListRecent: err=%v len=%d", err, len(recent))
	}
}

func TestRetryRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewRetryRepo(db, testutil.Logger(t))

	next := time.Now().UTC().Add(5 * time.Minute)
	if err := repo.Upsert(dbc, &types.RetryEntry{ScraperName: "olx", AttemptNumber: 1, NextRetryAt: next}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(dbc, &types.RetryEntry{ScraperName: "olx", AttemptNumber: 2, NextRetryAt: next.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	all, err := repo.ListAll(dbc)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListAll: err=%v len=%d", err, len(all))
	}
	if all[0].AttemptNumber != 2 {
		t.Fatalf("expected attempt 2 after upsert, got %d", all[0].AttemptNumber)
	}

	if err := repo.Delete(dbc, "olx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if e, err := repo.Get(dbc, "olx"); err != nil || e != nil {
		t.Fatalf("Get after delete: e=%v err=%v", e, err)
	}
}
