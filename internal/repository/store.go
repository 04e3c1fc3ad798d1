package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the persistence operations used by the engine. Every
// member is bound to the same connection or transaction.
type Repositories struct {
	Questions    QuestionRepository
	Variants     VariantRepository
	Submissions  SubmissionRepository
	GradingJobs  GradingJobRepository
	CourseErrors CourseErrorRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	// Repositories returns repositories bound to the pooled connection.
	Repositories() Repositories
	// Transaction runs fn against repositories bound to one transaction,
	// committing when fn returns nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(repos Repositories) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore constructs a gorm backed store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// NewRepositories binds every repository to db, which may be a transaction.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Questions:    NewQuestionRepository(db),
		Variants:     NewVariantRepository(db),
		Submissions:  NewSubmissionRepository(db),
		GradingJobs:  NewGradingJobRepository(db),
		CourseErrors: NewCourseErrorRepository(db),
	}
}

func (s *gormStore) Repositories() Repositories {
	return NewRepositories(s.db)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(repos Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
