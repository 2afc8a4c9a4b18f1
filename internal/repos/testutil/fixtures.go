package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
)

func SeedScreen(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID, name, urlPattern string, sig types.StateSignature) *types.Screen {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Screen{
		ID:         uuid.New(),
		SiteID:     siteID,
		Name:       name,
		URLPattern: urlPattern,
		Signature:  datatypes.JSON(sig.JSON()),
		Elements:   datatypes.JSON([]byte("[]")),
		ActionIDs:  datatypes.JSON([]byte("[]")),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed screen: %v", err)
	}
	return s
}

func SeedAction(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID string, screenID uuid.UUID, name string) *types.Action {
	tb.Helper()
	now := time.Now().UTC()
	a := &types.Action{
		ID:       uuid.New(),
		SiteID:   siteID,
		ScreenID: screenID,
		Name:     name,
		Steps:    datatypes.JSON([]byte(`[{"kind":"click","selector":{"strategy":"css","value":"#go"}}]`)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed action: %v", err)
	}
	return a
}

func SeedTransition(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID string, from, to uuid.UUID, costMS int64, reliability float64) *types.Transition {
	tb.Helper()
	now := time.Now().UTC()
	tr := &types.Transition{
		ID:           uuid.New(),
		SiteID:       siteID,
		FromScreenID: from,
		ToScreenID:   to,
		CostMS:       costMS,
		Reliability:  reliability,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(tr).Error; err != nil {
		tb.Fatalf("seed transition: %v", err)
	}
	return tr
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID, name string) *types.ScreenGroup {
	tb.Helper()
	now := time.Now().UTC()
	g := &types.ScreenGroup{
		ID:        uuid.New(),
		SiteID:    siteID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, siteID string) *types.ExtractionJob {
	tb.Helper()
	now := time.Now().UTC()
	j := &types.ExtractionJob{
		ID:         uuid.New(),
		SiteID:     siteID,
		SourceType: "crawl",
		SourceURI:  "https://example.test/sitemap.xml",
		Status:     types.JobStatusQueued,
		Phase:      types.PhaseQueued,
		Counts:     datatypes.JSON([]byte("{}")),
		Errors:     datatypes.JSON([]byte("[]")),
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}
