// Package pipeline turns extracted shelf records into the canonical
// collection shape and persists it.
package pipeline

import "github.com/aluiziolira/go-scrape-douban/models"

// Normalize maps records, in order, onto the canonical collection. It has
// no failure modes and allocates fresh slices on every call.
func Normalize(records []models.RawRecord) *models.CollectionResult {
	items := make([]models.CollectionItem, 0, len(records))
	for _, record := range records {
		items = append(items, NormalizeRecord(record))
	}
	return &models.CollectionResult{
		Count:       len(items),
		Start:       0,
		Total:       len(items),
		Collections: items,
	}
}

// NormalizeRecord maps one record. Ratings carry no rater count on the
// shelf page, so NumRaters is always 0.
func NormalizeRecord(record models.RawRecord) models.CollectionItem {
	author := record.Author
	if author == "" {
		author = models.UnknownAuthor
	}
	return models.CollectionItem{
		Book: models.Book{
			ID:     record.ID,
			Title:  record.Title,
			Author: []string{author},
			Rating: models.Rating{Average: record.Rating},
			Images: models.Images{
				Small:  record.ImageURL,
				Medium: record.ImageURL,
				Large:  record.ImageURL,
			},
			Summary: record.Note,
			Tags:    []models.Tag{},
		},
		Status:  models.StatusRead,
		Updated: record.DateUpdated,
		Comment: record.Note,
	}
}
