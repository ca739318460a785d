// Package content stores the categories, podcasts and standards served by
// the cached read endpoints.
package content

import (
	"errors"
	"time"
)

var (
	// ErrConflict indicates a unique name or code is already taken.
	ErrConflict = errors.New("already exists")

	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates missing or malformed input.
	ErrInvalid = errors.New("invalid input")
)

// Category groups podcasts.
type Category struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Order        int       `json:"order"`
	PodcastCount int       `json:"podcastCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewCategory is the input for CreateCategory.
type NewCategory struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// Podcast is a single episode.
type Podcast struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Duration    string    `json:"duration"`
	Link        string    `json:"link"`
	CategoryID  string    `json:"categoryId"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewPodcast is the input for CreatePodcast. All fields except Order are
// required.
type NewPodcast struct {
	Label       string    `json:"label"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Duration    string    `json:"duration"`
	Link        string    `json:"link"`
	CategoryID  string    `json:"categoryId"`
	Order       int       `json:"order"`
}

// CategoryUpdate is the input for UpdateCategory. A nil Order keeps the
// current one.
type CategoryUpdate struct {
	Name  string `json:"name"`
	Order *int   `json:"order"`
}

// PodcastUpdate is the input for UpdatePodcast. Nil fields are left unchanged.
type PodcastUpdate struct {
	Label       *string    `json:"label"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	Duration    *string    `json:"duration"`
	Link        *string    `json:"link"`
	CategoryID  *string    `json:"categoryId"`
	Order       *int       `json:"order"`
}

// PodcastFilter narrows ListPodcasts. Empty fields match everything.
type PodcastFilter struct {
	CategoryID string
	Search     string
}

// Standard is a top-level regulatory standard.
type Standard struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewStandard is the input for CreateStandard. Code is stored upper-cased.
type NewStandard struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Order       int     `json:"order"`
}

// StandardUpdate is the input for UpdateStandard. Nil fields are left
// unchanged; an empty Description clears it.
type StandardUpdate struct {
	Code        *string `json:"code"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
}

// Chapter is a chapter of a standard.
type Chapter struct {
	ID           string    `json:"id"`
	StandardID   string    `json:"standardId"`
	StandardCode string    `json:"standardCode"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Order        int       `json:"order"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewChapter is the input for CreateChapter. Code, Title and StandardID are
// required; Status defaults to DefaultChapterStatus.
type NewChapter struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	StandardID string `json:"standardId"`
	Status     string `json:"status"`
	Order      int    `json:"order"`
}

// DefaultChapterStatus is the status of a chapter created without one.
const DefaultChapterStatus = "current"

// ChapterFilter narrows ListChapters. StandardCode matches case-insensitively.
type ChapterFilter struct {
	StandardID   string
	StandardCode string
}

// Notification categories.
var NotificationCategories = []string{"Content", "Data", "Regulation"}

// Notification is a site-wide announcement.
type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Link        *string   `json:"link"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewNotification is the input for CreateNotification.
type NewNotification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Link        *string `json:"link"`
}
