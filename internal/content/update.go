package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func (r *Repository) getCategory(ctx context.Context, id string) (Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT c.id, c.name, c.sort_order, c.created_at,
            (SELECT COUNT(*) FROM podcasts p WHERE p.category_id = c.id)
        FROM podcast_categories c WHERE c.id = ?`), id).
		Scan(&c.ID, &c.Name, &c.Order, &c.CreatedAt, &c.PodcastCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, fmt.Errorf("%w: category not found", ErrNotFound)
	}
	if err != nil {
		return Category{}, fmt.Errorf("load category: %w", err)
	}
	return c, nil
}

// UpdateCategory renames a category and optionally moves it. It returns
// ErrInvalid for an empty name, ErrNotFound for an unknown id and
// ErrConflict if another category has the name.
func (r *Repository) UpdateCategory(ctx context.Context, id string, in CategoryUpdate) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrInvalid)
	}

	c, err := r.getCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}

	const taken = `SELECT 1 FROM podcast_categories WHERE name = ? AND id <> ?`
	exists, err := r.exists(ctx, taken, name, id)
	if err != nil {
		return Category{}, err
	}
	if exists {
		return Category{}, fmt.Errorf("%w: a category with this name already exists", ErrConflict)
	}

	c.Name = name
	if in.Order != nil {
		c.Order = *in.Order
	}
	_, err = r.db.ExecContext(ctx,
		r.rebind(`UPDATE podcast_categories SET name = ?, sort_order = ? WHERE id = ?`),
		c.Name, c.Order, c.ID)
	if err != nil {
		return Category{}, r.uniqueError(ctx, err, taken, name, id)
	}

	r.logger.Info().Str("id", c.ID).Str("name", c.Name).Msg("Category updated")
	return c, nil
}

// DeleteCategory removes an empty category. It returns ErrNotFound for an
// unknown id and ErrInvalid while the category still has podcasts.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`
        DELETE FROM podcast_categories
        WHERE id = ? AND NOT EXISTS (SELECT 1 FROM podcasts WHERE category_id = ?)`), id, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	if n == 0 {
		exists, err := r.exists(ctx, `SELECT 1 FROM podcast_categories WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: category not found", ErrNotFound)
		}
		return fmt.Errorf("%w: cannot delete category with existing podcasts", ErrInvalid)
	}

	r.logger.Info().Str("id", id).Msg("Category deleted")
	return nil
}

func (r *Repository) getPodcast(ctx context.Context, id string) (Podcast, error) {
	var p Podcast
	err := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, label, title, description, published_at, duration, link, category_id, sort_order, created_at
        FROM podcasts WHERE id = ?`), id).
		Scan(&p.ID, &p.Label, &p.Title, &p.Description, &p.Date,
			&p.Duration, &p.Link, &p.CategoryID, &p.Order, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Podcast{}, fmt.Errorf("%w: podcast not found", ErrNotFound)
	}
	if err != nil {
		return Podcast{}, fmt.Errorf("load podcast: %w", err)
	}
	return p, nil
}

// setText applies an optional text field. Required fields cannot be blanked.
func setText(dst *string, src *string, field string) error {
	if src == nil {
		return nil
	}
	if strings.TrimSpace(*src) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalid, field)
	}
	*dst = *src
	return nil
}

// UpdatePodcast applies the non-nil fields of in. It returns ErrNotFound
// when the podcast or the new category does not exist.
func (r *Repository) UpdatePodcast(ctx context.Context, id string, in PodcastUpdate) (Podcast, error) {
	p, err := r.getPodcast(ctx, id)
	if err != nil {
		return Podcast{}, err
	}

	for _, f := range []struct {
		dst   *string
		src   *string
		field string
	}{
		{&p.Label, in.Label, "label"},
		{&p.Title, in.Title, "title"},
		{&p.Description, in.Description, "description"},
		{&p.Duration, in.Duration, "duration"},
		{&p.Link, in.Link, "link"},
	} {
		if err := setText(f.dst, f.src, f.field); err != nil {
			return Podcast{}, err
		}
	}
	if in.Date != nil {
		if in.Date.IsZero() {
			return Podcast{}, fmt.Errorf("%w: date cannot be empty", ErrInvalid)
		}
		p.Date = in.Date.UTC()
	}
	if in.Order != nil {
		p.Order = *in.Order
	}
	if in.CategoryID != nil && *in.CategoryID != p.CategoryID {
		exists, err := r.exists(ctx, `SELECT 1 FROM podcast_categories WHERE id = ?`, *in.CategoryID)
		if err != nil {
			return Podcast{}, err
		}
		if !exists {
			return Podcast{}, fmt.Errorf("%w: category not found", ErrNotFound)
		}
		p.CategoryID = *in.CategoryID
	}

	_, err = r.db.ExecContext(ctx, r.rebind(`
        UPDATE podcasts SET label = ?, title = ?, description = ?, published_at = ?, duration = ?,
            link = ?, category_id = ?, sort_order = ?
        WHERE id = ?`),
		p.Label, p.Title, p.Description, p.Date, p.Duration, p.Link, p.CategoryID, p.Order, p.ID)
	if err != nil {
		return Podcast{}, fmt.Errorf("update podcast: %w", err)
	}

	r.logger.Info().Str("id", p.ID).Str("category_id", p.CategoryID).Msg("Podcast updated")
	return p, nil
}

// DeletePodcast removes a podcast. It returns ErrNotFound for an unknown id.
func (r *Repository) DeletePodcast(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM podcasts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete podcast: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete podcast: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: podcast not found", ErrNotFound)
	}

	r.logger.Info().Str("id", id).Msg("Podcast deleted")
	return nil
}

func (r *Repository) getStandard(ctx context.Context, id string) (Standard, error) {
	var s Standard
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, r.rebind(`
        SELECT id, code, name, description, sort_order, created_at
        FROM basel_standards WHERE id = ?`), id).
		Scan(&s.ID, &s.Code, &s.Name, &description, &s.Order, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Standard{}, fmt.Errorf("%w: standard not found", ErrNotFound)
	}
	if err != nil {
		return Standard{}, fmt.Errorf("load standard: %w", err)
	}
	if description.Valid {
		s.Description = &description.String
	}
	return s, nil
}

// UpdateStandard applies the non-nil fields of in, upper-casing a new code.
// It returns ErrNotFound for an unknown id and ErrConflict if another
// standard has the code.
func (r *Repository) UpdateStandard(ctx context.Context, id string, in StandardUpdate) (Standard, error) {
	s, err := r.getStandard(ctx, id)
	if err != nil {
		return Standard{}, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := setText(&s.Name, &name, "name"); err != nil {
			return Standard{}, err
		}
	}
	if in.Description != nil {
		if *in.Description == "" {
			s.Description = nil
		} else {
			d := *in.Description
			s.Description = &d
		}
	}
	if in.Order != nil {
		s.Order = *in.Order
	}

	const taken = `SELECT 1 FROM basel_standards WHERE code = ? AND id <> ?`
	if in.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*in.Code))
		if err := setText(&s.Code, &code, "code"); err != nil {
			return Standard{}, err
		}
		exists, err := r.exists(ctx, taken, code, id)
		if err != nil {
			return Standard{}, err
		}
		if exists {
			return Standard{}, fmt.Errorf("%w: a standard with this code already exists", ErrConflict)
		}
	}

	_, err = r.db.ExecContext(ctx,
		r.rebind(`UPDATE basel_standards SET code = ?, name = ?, description = ?, sort_order = ? WHERE id = ?`),
		s.Code, s.Name, s.Description, s.Order, s.ID)
	if err != nil {
		return Standard{}, r.uniqueError(ctx, err, taken, s.Code, id)
	}

	r.logger.Info().Str("id", s.ID).Str("code", s.Code).Msg("Standard updated")
	return s, nil
}

// DeleteStandard removes a standard together with its chapters. It returns
// ErrNotFound for an unknown id.
func (r *Repository) DeleteStandard(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM basel_standards WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete standard: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete standard: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: standard not found", ErrNotFound)
	}

	res, err = tx.ExecContext(ctx, r.rebind(`DELETE FROM basel_chapters WHERE standard_id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete chapters: %w", err)
	}
	chapters, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info().Str("id", id).Int64("chapters", chapters).Msg("Standard deleted")
	return nil
}
