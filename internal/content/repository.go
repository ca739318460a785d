package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS podcast_categories (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS podcasts (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    label VARCHAR(255) NOT NULL,
    title VARCHAR(512) NOT NULL,
    description TEXT NOT NULL,
    published_at TIMESTAMP NOT NULL,
    duration VARCHAR(64) NOT NULL,
    link VARCHAR(1024) NOT NULL,
    category_id VARCHAR(36) NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS basel_standards (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS basel_chapters (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    standard_id VARCHAR(36) NOT NULL,
    code VARCHAR(64) NOT NULL,
    title VARCHAR(512) NOT NULL,
    status VARCHAR(64) NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (standard_id, code)
)`,
	`CREATE TABLE IF NOT EXISTS notifications (
    id VARCHAR(36) NOT NULL PRIMARY KEY,
    title VARCHAR(512) NOT NULL,
    description TEXT NOT NULL,
    category VARCHAR(64) NOT NULL,
    link VARCHAR(1024),
    created_at TIMESTAMP NOT NULL
)`,
}

// Repository reads and writes content records.
type Repository struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRepository creates the repository and its tables if missing.
// Dialect is "postgres", "mysql" or "sqlite".
func NewRepository(ctx context.Context, db *sql.DB, dialect string, logger zerolog.Logger) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &Repository{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ListCategories returns all categories ordered by sort order, each with its
// podcast count.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT c.id, c.name, c.sort_order, c.created_at, COUNT(p.id)
        FROM podcast_categories c
        LEFT JOIN podcasts p ON p.category_id = c.id
        GROUP BY c.id, c.name, c.sort_order, c.created_at
        ORDER BY c.sort_order ASC, c.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt, &c.PodcastCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category. It returns ErrInvalid for an empty name
// and ErrConflict if the name is taken.
func (r *Repository) CreateCategory(ctx context.Context, in NewCategory) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrInvalid)
	}

	exists, err := r.exists(ctx, `SELECT 1 FROM podcast_categories WHERE name = ?`, name)
	if err != nil {
		return Category{}, err
	}
	if exists {
		return Category{}, fmt.Errorf("%w: a category with this name already exists", ErrConflict)
	}

	c := Category{
		ID:        uuid.NewString(),
		Name:      name,
		Order:     in.Order,
		CreatedAt: r.now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO podcast_categories (id, name, sort_order, created_at) VALUES (?, ?, ?, ?)`),
		c.ID, c.Name, c.Order, c.CreatedAt)
	if err != nil {
		return Category{}, r.uniqueError(ctx, err, `SELECT 1 FROM podcast_categories WHERE name = ?`, name)
	}

	r.logger.Info().Str("id", c.ID).Str("name", c.Name).Msg("Category created")
	return c, nil
}

// ListPodcasts returns podcasts matching filter, newest first.
// Search matches title and description case-insensitively.
func (r *Repository) ListPodcasts(ctx context.Context, filter PodcastFilter) ([]Podcast, error) {
	query := `SELECT id, label, title, description, published_at, duration, link, category_id, sort_order, created_at
        FROM podcasts WHERE 1=1`
	var args []any

	if filter.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += ` AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY published_at DESC, sort_order ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query podcasts: %w", err)
	}
	defer rows.Close()

	podcasts := make([]Podcast, 0)
	for rows.Next() {
		var p Podcast
		if err := rows.Scan(&p.ID, &p.Label, &p.Title, &p.Description, &p.Date,
			&p.Duration, &p.Link, &p.CategoryID, &p.Order, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, rows.Err()
}

// CreatePodcast inserts a podcast. It returns ErrInvalid when a required
// field is missing and ErrNotFound when the category does not exist.
func (r *Repository) CreatePodcast(ctx context.Context, in NewPodcast) (Podcast, error) {
	if in.Label == "" || in.Title == "" || in.Description == "" || in.Date.IsZero() ||
		in.Duration == "" || in.Link == "" || in.CategoryID == "" {
		return Podcast{}, fmt.Errorf("%w: all required fields must be provided", ErrInvalid)
	}

	exists, err := r.exists(ctx, `SELECT 1 FROM podcast_categories WHERE id = ?`, in.CategoryID)
	if err != nil {
		return Podcast{}, err
	}
	if !exists {
		return Podcast{}, fmt.Errorf("%w: category %s", ErrNotFound, in.CategoryID)
	}

	p := Podcast{
		ID:          uuid.NewString(),
		Label:       in.Label,
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date.UTC(),
		Duration:    in.Duration,
		Link:        in.Link,
		CategoryID:  in.CategoryID,
		Order:       in.Order,
		CreatedAt:   r.now().UTC(),
	}
	_, err = r.db.ExecContext(ctx, r.rebind(`
        INSERT INTO podcasts (id, label, title, description, published_at, duration, link, category_id, sort_order, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Label, p.Title, p.Description, p.Date, p.Duration, p.Link, p.CategoryID, p.Order, p.CreatedAt)
	if err != nil {
		return Podcast{}, fmt.Errorf("insert podcast: %w", err)
	}

	r.logger.Info().Str("id", p.ID).Str("category_id", p.CategoryID).Msg("Podcast created")
	return p, nil
}

// ListStandards returns all standards ordered by sort order.
func (r *Repository) ListStandards(ctx context.Context) ([]Standard, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, code, name, description, sort_order, created_at
        FROM basel_standards ORDER BY sort_order ASC, code ASC`)
	if err != nil {
		return nil, fmt.Errorf("query standards: %w", err)
	}
	defer rows.Close()

	standards := make([]Standard, 0)
	for rows.Next() {
		var s Standard
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &description, &s.Order, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan standard: %w", err)
		}
		if description.Valid {
			s.Description = &description.String
		}
		standards = append(standards, s)
	}
	return standards, rows.Err()
}

// CreateStandard inserts a standard with its code upper-cased. It returns
// ErrInvalid when code or name is missing and ErrConflict if the code is
// taken.
func (r *Repository) CreateStandard(ctx context.Context, in NewStandard) (Standard, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return Standard{}, fmt.Errorf("%w: code and name are required", ErrInvalid)
	}

	exists, err := r.exists(ctx, `SELECT 1 FROM basel_standards WHERE code = ?`, code)
	if err != nil {
		return Standard{}, err
	}
	if exists {
		return Standard{}, fmt.Errorf("%w: a standard with this code already exists", ErrConflict)
	}

	s := Standard{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      name,
		Order:     in.Order,
		CreatedAt: r.now().UTC(),
	}
	if in.Description != nil && *in.Description != "" {
		d := *in.Description
		s.Description = &d
	}

	_, err = r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO basel_standards (id, code, name, description, sort_order, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		s.ID, s.Code, s.Name, s.Description, s.Order, s.CreatedAt)
	if err != nil {
		return Standard{}, r.uniqueError(ctx, err, `SELECT 1 FROM basel_standards WHERE code = ?`, code)
	}

	r.logger.Info().Str("id", s.ID).Str("code", s.Code).Msg("Standard created")
	return s, nil
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	return true, nil
}

// uniqueError maps a failed write to ErrConflict when a concurrent write
// took the unique value between the existence check and the write.
func (r *Repository) uniqueError(ctx context.Context, writeErr error, query string, args ...any) error {
	if exists, err := r.exists(ctx, query, args...); err == nil && exists {
		return fmt.Errorf("%w: %v", ErrConflict, writeErr)
	}
	return fmt.Errorf("write: %w", writeErr)
}

// ListChapters returns chapters matching filter ordered by sort order.
func (r *Repository) ListChapters(ctx context.Context, filter ChapterFilter) ([]Chapter, error) {
	query := `SELECT c.id, c.standard_id, s.code, c.code, c.title, c.status, c.sort_order, c.created_at
        FROM basel_chapters c
        JOIN basel_standards s ON s.id = c.standard_id
        WHERE 1=1`
	var args []any

	if filter.StandardID != "" {
		query += ` AND c.standard_id = ?`
		args = append(args, filter.StandardID)
	}
	if filter.StandardCode != "" {
		query += ` AND s.code = ?`
		args = append(args, strings.ToUpper(filter.StandardCode))
	}
	query += ` ORDER BY c.sort_order ASC, c.code ASC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	chapters := make([]Chapter, 0)
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.StandardID, &c.StandardCode, &c.Code, &c.Title,
			&c.Status, &c.Order, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// CreateChapter inserts a chapter. It returns ErrInvalid when a required
// field is missing, ErrNotFound when the standard does not exist and
// ErrConflict if the standard already has a chapter with this code.
func (r *Repository) CreateChapter(ctx context.Context, in NewChapter) (Chapter, error) {
	code := strings.TrimSpace(in.Code)
	title := strings.TrimSpace(in.Title)
	if code == "" || title == "" || in.StandardID == "" {
		return Chapter{}, fmt.Errorf("%w: code, title, and standardId are required", ErrInvalid)
	}

	var standardCode string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT code FROM basel_standards WHERE id = ?`), in.StandardID).Scan(&standardCode)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, fmt.Errorf("%w: standard %s", ErrNotFound, in.StandardID)
	}
	if err != nil {
		return Chapter{}, fmt.Errorf("lookup standard: %w", err)
	}

	const existsQuery = `SELECT 1 FROM basel_chapters WHERE standard_id = ? AND code = ?`
	exists, err := r.exists(ctx, existsQuery, in.StandardID, code)
	if err != nil {
		return Chapter{}, err
	}
	if exists {
		return Chapter{}, fmt.Errorf("%w: a chapter with this code already exists in this standard", ErrConflict)
	}

	c := Chapter{
		ID:           uuid.NewString(),
		StandardID:   in.StandardID,
		StandardCode: standardCode,
		Code:         code,
		Title:        title,
		Status:       in.Status,
		Order:        in.Order,
		CreatedAt:    r.now().UTC(),
	}
	if c.Status == "" {
		c.Status = DefaultChapterStatus
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
        INSERT INTO basel_chapters (id, standard_id, code, title, status, sort_order, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.StandardID, c.Code, c.Title, c.Status, c.Order, c.CreatedAt)
	if err != nil {
		return Chapter{}, r.uniqueError(ctx, err, existsQuery, in.StandardID, code)
	}

	r.logger.Info().Str("id", c.ID).Str("standard", standardCode).Str("code", c.Code).Msg("Chapter created")
	return c, nil
}

// ListNotifications returns notifications newest first, optionally limited
// to one category.
func (r *Repository) ListNotifications(ctx context.Context, category string) ([]Notification, error) {
	query := `SELECT id, title, description, category, link, created_at FROM notifications`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		var link sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.Category, &link, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if link.Valid {
			n.Link = &link.String
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CreateNotification inserts a notification. It returns ErrInvalid when a
// required field is missing or the category is unknown.
func (r *Repository) CreateNotification(ctx context.Context, in NewNotification) (Notification, error) {
	if in.Title == "" || in.Description == "" || in.Category == "" {
		return Notification{}, fmt.Errorf("%w: title, description, and category are required", ErrInvalid)
	}
	if !slices.Contains(NotificationCategories, in.Category) {
		return Notification{}, fmt.Errorf("%w: invalid category. Must be Content, Data, or Regulation", ErrInvalid)
	}

	n := Notification{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		CreatedAt:   r.now().UTC(),
	}
	if in.Link != nil && *in.Link != "" {
		link := *in.Link
		n.Link = &link
	}

	_, err := r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO notifications (id, title, description, category, link, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		n.ID, n.Title, n.Description, n.Category, n.Link, n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info().Str("id", n.ID).Str("category", n.Category).Msg("Notification created")
	return n, nil
}
