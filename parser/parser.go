// Package parser extracts shelf entries from Douban listing markup.
package parser

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-douban/models"
)

// ItemSelector matches entry containers in both listing generations:
// li.subject-item on the list view and div.item on the grid view.
const ItemSelector = ".subject-item, .item"

// LoginWallSelector is present on the page served instead of a shelf
// when the session is missing or expired.
const LoginWallSelector = ".login-form"

// starSelector matches any element that may carry a ratingN-t class.
const starSelector = `[class*="rating"]`

var (
	subjectExpr    = regexp.MustCompile(`/subject/(\d+)/`)
	starClassExpr  = regexp.MustCompile(`rating(\d+)-t`)
	isoDateExpr    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	leadingNumExpr = regexp.MustCompile(`^\d+(?:\.\d+)?`)
	titleSelectors = []string{".info h2 a", ".title a"}
	linkSelectors  = []string{".pic a", ".cover a", ".info h2 a", ".title a"}
	metaSelectors  = []string{".info .pub", ".meta"}
	numSelectors   = []string{".rating .rating_nums", ".rating_nums"}
	imageSelectors = []string{".pic img", ".cover img"}
	noteSelectors  = []string{".info .short-note", ".comment"}
)

// Extractor turns listing markup into raw records.
type Extractor struct {
	// Now supplies the fallback update date. Defaults to time.Now.
	Now func() time.Time
}

// NewExtractor returns an Extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{Now: time.Now}
}

// Extract returns the well-formed entries found in markup. It never fails:
// entries without an identifier or title are skipped, and unparseable
// markup yields no records.
func (e *Extractor) Extract(markup string) []models.RawRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		slog.Debug("parse listing markup", slog.Any("error", err))
		return nil
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument is Extract for an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document) []models.RawRecord {
	today := e.today()
	records := make([]models.RawRecord, 0, 15)
	seen := make(map[string]struct{})

	doc.Find(ItemSelector).Each(func(_ int, item *goquery.Selection) {
		if item.ParentsFiltered(ItemSelector).Length() > 0 {
			return
		}
		record, err := extractRecord(item, today)
		if err != nil {
			slog.Debug("skip malformed entry", slog.Any("error", err))
			return
		}
		if _, dup := seen[record.ID]; dup {
			return
		}
		seen[record.ID] = struct{}{}
		records = append(records, record)
	})

	return records
}

// HasLoginWall reports whether markup is the login page.
func HasLoginWall(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find(LoginWallSelector).Length() > 0
}

func (e *Extractor) today() string {
	now := time.Now
	if e != nil && e.Now != nil {
		now = e.Now
	}
	return now().Format(time.DateOnly)
}

func extractRecord(item *goquery.Selection, today string) (models.RawRecord, error) {
	record := models.RawRecord{
		Title:       extractTitle(item),
		ID:          extractSubjectID(item),
		Author:      AuthorFromMeta(firstText(item, metaSelectors)),
		Rating:      extractRating(item),
		ImageURL:    firstAttr(item, imageSelectors, "src"),
		Note:        firstText(item, noteSelectors),
		DateUpdated: today,
	}
	if date := ExtractDate(record.Note); date != "" {
		record.DateUpdated = date
	}
	if err := ValidateRecord(&record); err != nil {
		return models.RawRecord{}, err
	}
	return record, nil
}

// ValidateRecord ensures the extractor captured the required fields.
func ValidateRecord(r *models.RawRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record missing subject id for %q", r.Title)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title for subject %s", r.ID)
	}
	return nil
}

func extractTitle(item *goquery.Selection) string {
	for _, selector := range titleSelectors {
		link := item.Find(selector).First()
		if link.Length() == 0 {
			continue
		}
		if title := NormalizeText(link.AttrOr("title", "")); title != "" {
			return title
		}
		if title := NormalizeText(link.Text()); title != "" {
			return title
		}
	}
	return ""
}

func extractSubjectID(item *goquery.Selection) string {
	for _, selector := range linkSelectors {
		if id := SubjectID(item.Find(selector).First().AttrOr("href", "")); id != "" {
			return id
		}
	}
	return ""
}

func extractRating(item *goquery.Selection) float64 {
	if value, ok := ParseRating(firstText(item, numSelectors)); ok {
		return value
	}
	var rating float64
	item.Find(starSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value, ok := RatingFromClass(s.AttrOr("class", ""))
		if ok {
			rating = value
		}
		return !ok
	})
	return rating
}

func firstText(item *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := NormalizeText(item.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(item *goquery.Selection, selectors []string, attr string) string {
	for _, selector := range selectors {
		if value := strings.TrimSpace(item.Find(selector).First().AttrOr(attr, "")); value != "" {
			return value
		}
	}
	return ""
}

// SubjectID pulls the numeric id out of a /subject/<id>/ link.
func SubjectID(href string) string {
	match := subjectExpr.FindStringSubmatch(href)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// ParseRating reads the leading number of a rating text such as "8.7" or
// "8.7分". Text without a finite leading number is rejected.
func ParseRating(text string) (float64, bool) {
	match := leadingNumExpr.FindString(strings.TrimSpace(text))
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// RatingFromClass decodes Douban's star classes, e.g. "rating3-t" is 3.
func RatingFromClass(class string) (float64, bool) {
	match := starClassExpr.FindStringSubmatch(class)
	if len(match) < 2 {
		return 0, false
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return float64(value), true
}

// AuthorFromMeta returns the text before the first "/" of a publication
// line such as "刘慈欣 / 重庆出版社 / 2008-1", or UnknownAuthor.
func AuthorFromMeta(meta string) string {
	author, _, _ := strings.Cut(meta, "/")
	author = strings.TrimSpace(author)
	if author == "" {
		return models.UnknownAuthor
	}
	return author
}

// ExtractDate returns the first YYYY-MM-DD date in text, or "".
func ExtractDate(text string) string {
	return isoDateExpr.FindString(text)
}

// NormalizeText trims text and collapses internal whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
