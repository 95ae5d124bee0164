package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-douban/models"
)

func TestNormalizeRecord(t *testing.T) {
	got := NormalizeRecord(models.RawRecord{
		ID:          "2567698",
		Title:       "三体",
		Author:      "刘慈欣",
		Rating:      5,
		ImageURL:    "https://img1.doubanio.com/s2768378.jpg",
		Note:        "2024-03-18 读过",
		DateUpdated: "2024-03-18",
	})

	want := models.CollectionItem{
		Book: models.Book{
			ID:     "2567698",
			Title:  "三体",
			Author: []string{"刘慈欣"},
			Rating: models.Rating{Average: 5, NumRaters: 0},
			Images: models.Images{
				Small:  "https://img1.doubanio.com/s2768378.jpg",
				Medium: "https://img1.doubanio.com/s2768378.jpg",
				Large:  "https://img1.doubanio.com/s2768378.jpg",
			},
			Summary: "2024-03-18 读过",
			Tags:    []models.Tag{},
		},
		Status:  "read",
		Updated: "2024-03-18",
		Comment: "2024-03-18 读过",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("NormalizeRecord() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	got := NormalizeRecord(models.RawRecord{ID: "1", Title: "T"})

	if got.Book.Rating.Average != 0 {
		t.Fatalf("rating = %v, want 0", got.Book.Rating.Average)
	}
	if got.Book.Images != (models.Images{}) {
		t.Fatalf("images = %+v, want empty strings", got.Book.Images)
	}
	if diff := cmp.Diff([]string{models.UnknownAuthor}, got.Book.Author); diff != "" {
		t.Fatalf("author mismatch (-want +got):\n%s", diff)
	}
	if got.Book.Tags == nil || len(got.Book.Tags) != 0 {
		t.Fatalf("tags = %#v, want empty non-nil slice", got.Book.Tags)
	}
}

func TestNormalizeCountsAndOrder(t *testing.T) {
	records := []models.RawRecord{
		{ID: "3", Title: "C"},
		{ID: "1", Title: "A"},
		{ID: "2", Title: "B"},
	}
	got := Normalize(records)

	if got.Count != 3 || got.Total != 3 || got.Start != 0 {
		t.Fatalf("count=%d total=%d start=%d", got.Count, got.Total, got.Start)
	}
	for i, item := range got.Collections {
		if item.Book.ID != records[i].ID {
			t.Fatalf("position %d: id %q, want %q", i, item.Book.ID, records[i].ID)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	got := Normalize(nil)
	if got.Count != 0 || got.Total != 0 || got.Collections == nil {
		t.Fatalf("Normalize(nil) = %+v", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	records := []models.RawRecord{
		{ID: "1", Title: "A", Author: "X", Rating: 3, Note: "n", DateUpdated: "2024-01-01"},
		{ID: "2", Title: "B", ImageURL: "https://img/b.jpg", DateUpdated: "2024-01-02"},
	}

	first, err := json.Marshal(Normalize(records))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(Normalize(records))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("normalize not idempotent:\n%s\n%s", first, second)
	}
}

func TestNormalizeKeepsEmptyComment(t *testing.T) {
	data, err := json.Marshal(NormalizeRecord(models.RawRecord{ID: "1", Title: "A"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	comment, ok := decoded["comment"]
	if !ok || comment != "" {
		t.Fatalf("comment = %#v (present %v), want empty string", comment, ok)
	}
}
