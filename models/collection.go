// Package models defines data structures for the shelf scraper.
package models

import "time"

// UnknownAuthor is used when an entry carries no publication line.
const UnknownAuthor = "未知作者"

// StatusRead marks items scraped from the "collect" shelf.
const StatusRead = "read"

// RawRecord is one shelf entry as extracted from a listing page.
// ID and Title are always non-empty; the rest carry safe defaults.
type RawRecord struct {
	ID          string  `csv:"id" json:"id"`
	Title       string  `csv:"title" json:"title"`
	Author      string  `csv:"author" json:"author"`
	Rating      float64 `csv:"rating" json:"rating"`
	ImageURL    string  `csv:"image_url" json:"imageUrl"`
	Note        string  `csv:"note" json:"note"`
	DateUpdated string  `csv:"updated" json:"dateUpdated"`
}

// Rating mirrors Douban's rating object.
type Rating struct {
	Average   float64 `json:"average"`
	NumRaters int     `json:"numRaters"`
}

// Images holds the cover URLs in the three sizes Douban exposes.
type Images struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// Tag is a user tag with its usage count.
type Tag struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

// Book is the canonical book shape consumed downstream.
type Book struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    []string `json:"author"`
	Rating    Rating   `json:"rating"`
	Images    Images   `json:"images"`
	Summary   string   `json:"summary"`
	Publisher string   `json:"publisher"`
	Pubdate   string   `json:"pubdate"`
	Tags      []Tag    `json:"tags"`
}

// CollectionItem is one normalized shelf entry.
type CollectionItem struct {
	Book    Book   `json:"book"`
	Status  string `json:"status"`
	Updated string `json:"updated"`
	Comment string `json:"comment"`
}

// CollectionResult is the output handed to callers.
type CollectionResult struct {
	Count       int              `json:"count"`
	Start       int              `json:"start"`
	Total       int              `json:"total"`
	Collections []CollectionItem `json:"collections"`
}

// RunState is the pagination controller state.
type RunState string

const (
	StateFetching        RunState = "fetching"
	StateExtracting      RunState = "extracting"
	StateDone            RunState = "done"
	StateAuthFailed      RunState = "auth_failed"
	StateTransportFailed RunState = "transport_failed"
	StateCanceled        RunState = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	switch s {
	case StateDone, StateAuthFailed, StateTransportFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	Records        []RawRecord
	State          RunState
	Strategy       string
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	RequestCount   int
	DuplicateCount int
	FailedPage     int
	FailedURL      string
	StopErr        error
	ErrorsByType   map[string]int
}
