package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/waitlist-backend/internal/errors"
	"github.com/unclebandit/waitlist-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id string) (*model.Template, error)
	List(ctx context.Context, activeOnly bool) ([]*model.Template, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, name, subject, from_name, from_email, reply_to_email, template_type,
	content, json_content, active, preview_text, created_at, updated_at`

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now

	content, err := marshalJSON(t.Content)
	if err != nil {
		return err
	}
	jsonContent, err := marshalJSON(t.JSONContent)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, `
        INSERT INTO email_templates (id, name, subject, from_name, from_email, reply_to_email, template_type,
            content, json_content, active, preview_text, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
    `, t.ID, t.Name, t.Subject, t.FromName, t.FromEmail, nullString(t.ReplyToEmail), t.TemplateType,
		content, jsonContent, t.Active, nullString(t.PreviewText), now)
	if err != nil {
		if isUniqueViolation(err) {
			return appErrors.NewValidation("name", fmt.Sprintf("template %q already exists", t.Name))
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*model.Template, error) {
	if !validID(id) {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return t, nil
}

func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM email_templates`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t                    model.Template
		replyTo, previewText sql.NullString
		content, jsonContent []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.FromName, &t.FromEmail, &replyTo, &t.TemplateType,
		&content, &jsonContent, &t.Active, &previewText, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ReplyToEmail = replyTo.String
	t.PreviewText = previewText.String
	if len(content) > 0 {
		if err := json.Unmarshal(content, &t.Content); err != nil {
			return nil, fmt.Errorf("decode content for template %s: %w", t.ID, err)
		}
	}
	if len(jsonContent) > 0 {
		if err := json.Unmarshal(jsonContent, &t.JSONContent); err != nil {
			return nil, fmt.Errorf("decode json_content for template %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
