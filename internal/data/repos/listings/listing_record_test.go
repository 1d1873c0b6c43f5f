package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/listingtrust-backend/internal/data/repos/testutil"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/errs"
)

func TestListingRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewListingRecordRepo(db, testutil.Logger(t))

	mk := func(id string, price int64) *types.ListingRecord {
		return &types.ListingRecord{
			ExternalID:         id,
			Source:             "cardekho",
			Brand:              "Maruti",
			Model:              "Swift",
			Year:               2019,
			Price:              price,
			VerificationStatus: string(types.StatusVerified),
			TrustScore:         82,
		}
	}

	if err := repo.Create(dbc, mk("a1", 500000)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(dbc, mk("a2", 700000)); err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if err := repo.Create(dbc, mk("a1", 1)); !errors.Is(err, errs.ErrDuplicateKey) {
		t.Fatalf("Create duplicate: expected ErrDuplicateKey, got %v", err)
	}

	got, err := repo.GetByKey(dbc, "cardekho", "a1")
	if err != nil || got == nil {
		t.Fatalf("GetByKey: err=%v got=%v", err, got)
	}
	if got.Price != 500000 || got.Key() != "cardekho:a1" {
		t.Fatalf("GetByKey: unexpected record %+v", got)
	}
	if missing, err := repo.GetByKey(dbc, "cardekho", "nope"); err != nil || missing != nil {
		t.Fatalf("GetByKey missing: err=%v got=%v", err, missing)
	}

	stats, err := repo.ModelStats(dbc, "maruti", "SWIFT")
	if err != nil {
		t.Fatalf("ModelStats: %v", err)
	}
	if stats.Count != 2 || stats.AveragePrice != 600000 {
		t.Fatalf("ModelStats: got %+v", stats)
	}

	recent, err := repo.ListRecentByBrandModel(dbc, "Maruti", "Swift", 10)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecentByBrandModel: err=%v len=%d", err, len(recent))
	}

	n, err := repo.CountSince(dbc, time.Now().Add(-time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("CountSince: err=%v n=%d", err, n)
	}
}

func TestImageAssetRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewImageAssetRepo(db, testutil.Logger(t))

	asset := &types.ImageAsset{
		ListingKey:     "olx:1",
		OriginalURL:    "https://img.example/1.jpg",
		PerceptualHash: "ffee00",
		Status:         types.ImageStatusVerified,
	}
	if err := repo.Create(dbc, asset); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := &types.ImageAsset{ListingKey: "olx:1", OriginalURL: "https://img.example/1.jpg", Status: types.ImageStatusFailed}
	if err := repo.Create(dbc, dup); !errors.Is(err, errs.ErrDuplicateKey) {
		t.Fatalf("Create duplicate: expected ErrDuplicateKey, got %v", err)
	}

	got, err := repo.Get(dbc, "olx:1", "https://img.example/1.jpg")
	if err != nil || got == nil || !got.Verified() {
		t.Fatalf("Get: err=%v got=%+v", err, got)
	}

	if used, err := repo.HashUsedElsewhere(dbc, "ffee00", "olx:1"); err != nil || used {
		t.Fatalf("HashUsedElsewhere same listing: used=%v err=%v", used, err)
	}
	if used, err := repo.HashUsedElsewhere(dbc, "ffee00", "olx:2"); err != nil || !used {
		t.Fatalf("HashUsedElsewhere other listing: used=%v err=%v", used, err)
	}
}

func TestFingerprintRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewFingerprintRepo(db, testutil.Logger(t))

	first := &types.ListingFingerprint{ListingKey: "a:1", Fingerprint: "fp1", Brand: "honda", Model: "city", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	second := &types.ListingFingerprint{ListingKey: "b:1", Fingerprint: "fp1", Brand: "honda", Model: "city"}
	for _, fp := range []*types.ListingFingerprint{first, second} {
		if err := repo.Upsert(dbc, fp); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	first.Price = 900000
	if err := repo.Upsert(dbc, first); err != nil {
		t.Fatalf("Upsert existing: %v", err)
	}

	match, err := repo.FindByFingerprint(dbc, "fp1", "c:1")
	if err != nil || match == nil || match.ListingKey != "a:1" {
		t.Fatalf("FindByFingerprint: err=%v match=%+v", err, match)
	}
	if match.Price != 900000 {
		t.Fatalf("FindByFingerprint: expected upserted price, got %d", match.Price)
	}

	peers, err := repo.ListByBrandModel(dbc, "honda", "city", "a:1", 10)
	if err != nil || len(peers) != 1 || peers[0].ListingKey != "b:1" {
		t.Fatalf("ListByBrandModel: err=%v peers=%v", err, peers)
	}
}
