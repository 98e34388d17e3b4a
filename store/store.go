package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/notecrew/internal/profile"
)

// Store provides access to persisted flow runs.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate creates the schema of the configured driver.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

// SaveFlowRun stamps CreatedTs when unset and persists run.
func (s *Store) SaveFlowRun(ctx context.Context, run *FlowRun) (*FlowRun, error) {
	if run.RunID == "" {
		return nil, errors.New("run id is required")
	}
	if run.CreatedTs == 0 {
		run.CreatedTs = time.Now().Unix()
	}
	if run.ImageIDs == nil {
		run.ImageIDs = []string{}
	}
	return s.driver.SaveFlowRun(ctx, run)
}

func (s *Store) GetFlowRun(ctx context.Context, runID string) (*FlowRun, error) {
	return s.driver.GetFlowRun(ctx, runID)
}
