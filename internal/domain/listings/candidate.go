package listings

import (
	"strings"
	"time"
)

const (
	SellerTypeDealer      = "dealer"
	SellerTypeIndividual  = "individual"
	SellerTypeInstitution = "institution"
)

// ListingCandidate is one scraped vehicle listing. The pipeline reads it and never mutates it.
type ListingCandidate struct {
	ID                 string    `json:"id"`
	Brand              string    `json:"brand"`
	Model              string    `json:"model"`
	Year               int       `json:"year"`
	Price              int64     `json:"price"`
	Mileage            *int      `json:"mileage,omitempty"`
	FuelType           string    `json:"fuel_type"`
	Transmission       string    `json:"transmission"`
	City               string    `json:"city"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Features           []string  `json:"features,omitempty"`
	ImageURLs          []string  `json:"image_urls,omitempty"`
	Source             string    `json:"source"`
	SellerType         string    `json:"seller_type"`
	ExternallyVerified bool      `json:"externally_verified"`
	HasContact         bool      `json:"has_contact"`
	ListedAt           time.Time `json:"listed_at"`
}

// Key identifies the candidate across the pipeline; scraper ids are only unique per source.
func (c ListingCandidate) Key() string {
	return strings.TrimSpace(c.Source) + ":" + strings.TrimSpace(c.ID)
}

// Text is the title and description joined, as seen by moderation and fraud scanning.
func (c ListingCandidate) Text() string {
	title := strings.TrimSpace(c.Title)
	desc := strings.TrimSpace(c.Description)
	switch {
	case title == "":
		return desc
	case desc == "":
		return title
	default:
		return title + "\n" + desc
	}
}

// DisplayName is "Brand Model" with surrounding space trimmed.
func (c ListingCandidate) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(c.Brand) + " " + strings.TrimSpace(c.Model))
}
