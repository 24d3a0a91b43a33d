package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Provider carries the only provider attribute the scheduling core depends on.
type Provider struct {
	bun.BaseModel `bun:"table:providers"`

	ID                    string    `bun:"id,pk"`
	LessonDurationMinutes int       `bun:"lesson_duration_minutes,notnull"`
	CreatedAt             time.Time `bun:"created_at,notnull"`
	UpdatedAt             time.Time `bun:"updated_at,notnull"`
}

func (p Provider) LessonDuration() time.Duration {
	return time.Duration(p.LessonDurationMinutes) * time.Minute
}

func (p *Provider) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}
