package store

import (
	"context"
	"time"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
)

// Repo defines storage operations for the smoking log, the quit plan and the
// latest-tip side channel.
type Repo interface {
	AddEvent(ctx context.Context, at time.Time, note string, tagNames []string) (*domain.Event, error)
	DeleteLastEvent(ctx context.Context) (*domain.Event, error)
	QueryEvents(ctx context.Context, since *time.Time) ([]domain.Event, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)

	GetActiveProfile(ctx context.Context) (*domain.UserProfile, error)
	UpsertProfile(ctx context.Context, p *domain.UserProfile) error

	PublishLatestTip(ctx context.Context, message string, at time.Time) error
	LatestTip(ctx context.Context) (string, time.Time, error)

	Close() error
}
