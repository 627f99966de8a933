package snapshot

import (
	"context"

	"github.com/uxarchive/uxsync/internal/domain"
)

const seedEpochMillis int64 = 1700000000000

// Seed populates the store with starter content if and only if all five
// collections are empty. force bypasses the guard and overwrites; it exists
// for reset paths and tests.
func (s *Source) Seed(ctx context.Context, force bool) bool {
	if !force && !s.store.Empty(ctx) {
		return false
	}

	tags := seedTags()
	folders := seedFolders()

	s.store.Tags.SetAll(ctx, tags)
	s.store.Folders.SetAll(ctx, folders)
	s.store.Patterns.SetAll(ctx, seedPatterns(folders, tags))
	s.store.Captures.SetAll(ctx, seedCaptures())
	s.store.Insights.SetAll(ctx, seedInsights())
	return true
}

func seedTags() []domain.Tag {
	return []domain.Tag{
		{ID: "tag-fintech", Label: "Fintech", Type: domain.TagServiceCategory, Color: "#0ea5e9"},
		{ID: "tag-ecommerce", Label: "E-commerce", Type: domain.TagServiceCategory, Color: "#f59e0b"},
		{ID: "tag-onboarding", Label: "Onboarding", Type: domain.TagPatternType, Color: "#10b981"},
		{ID: "tag-checkout", Label: "Checkout", Type: domain.TagPatternType, Color: "#8b5cf6"},
		{ID: "tag-empty-state", Label: "Empty state", Type: domain.TagPatternType},
	}
}

func seedFolders() []domain.Folder {
	return []domain.Folder{
		{ID: "folder-inspiration", WorkspaceID: "ws-default", Name: "Inspiration", CreatedAt: seedEpochMillis},
		{ID: "folder-mobile", WorkspaceID: "ws-default", Name: "Mobile", ParentID: "folder-inspiration", CreatedAt: seedEpochMillis},
	}
}

func seedPatterns(folders []domain.Folder, tags []domain.Tag) []domain.Pattern {
	return []domain.Pattern{
		{
			ID:           "pattern-stripe-onboarding",
			FolderID:     folders[0].ID,
			Name:         "Progressive onboarding",
			ServiceName:  "Stripe",
			Summary:      "Collects account details across three short steps instead of one long form.",
			Tags:         []domain.Tag{tags[0], tags[2]},
			Author:       "seed",
			CaptureCount: 2,
			CreatedAt:    seedEpochMillis,
			UpdatedAt:    seedEpochMillis,
		},
		{
			ID:           "pattern-amazon-checkout",
			FolderID:     folders[1].ID,
			Name:         "One-page checkout",
			ServiceName:  "Amazon",
			Summary:      "Address, payment and review collapsed into a single page with inline edits.",
			Tags:         []domain.Tag{tags[1], tags[3]},
			Author:       "seed",
			CaptureCount: 1,
			CreatedAt:    seedEpochMillis,
			UpdatedAt:    seedEpochMillis,
		},
	}
}

func seedCaptures() []domain.Capture {
	return []domain.Capture{
		{ID: "capture-onb-1", PatternID: "pattern-stripe-onboarding", ImageURL: "seed://captures/onb-1.webp", Order: 1, CreatedAt: seedEpochMillis},
		{ID: "capture-onb-2", PatternID: "pattern-stripe-onboarding", ImageURL: "seed://captures/onb-2.webp", Order: 2, CreatedAt: seedEpochMillis},
		{ID: "capture-chk-1", PatternID: "pattern-amazon-checkout", ImageURL: "seed://captures/chk-1.webp", Order: 1, CreatedAt: seedEpochMillis},
	}
}

func seedInsights() []domain.Insight {
	return []domain.Insight{
		{ID: "insight-1", CaptureID: "capture-onb-1", X: 48.5, Y: 22.0, Note: "Progress indicator keeps expectations set.", CreatedAt: seedEpochMillis},
		{ID: "insight-2", CaptureID: "capture-chk-1", X: 71.0, Y: 64.5, Note: "Inline address edit avoids a page transition.", CreatedAt: seedEpochMillis},
	}
}
