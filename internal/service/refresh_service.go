package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"deadline-bot/internal/repository"
	"deadline-bot/internal/retry"
	"deadline-bot/internal/scraper"
)

// RefreshService runs the per-user pipeline: portal fetch, then ingest.
type RefreshService struct {
	userRepo *repository.UserRepository
	fetcher  *scraper.Fetcher
	ingest   *IngestService
	policy   retry.Policy
}

func NewRefreshService(userRepo *repository.UserRepository, fetcher *scraper.Fetcher, ingest *IngestService) *RefreshService {
	return &RefreshService{
		userRepo: userRepo,
		fetcher:  fetcher,
		ingest:   ingest,
		// Transient portal faults get three whole-flow attempts. Invalid
		// credentials bail out on the first.
		policy: retry.Policy{Attempts: 3, Delay: 5 * time.Second},
	}
}

// Refresh fetches and ingests the calendar for one registered user. The
// caller decides what a failure means (registration rolls the user back,
// a manual refresh just reports it).
func (s *RefreshService) Refresh(ctx context.Context, telegramID int64) error {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("unknown user %d: %w", telegramID, err)
	}

	err = s.policy.Do(ctx, "portal fetch", func(ctx context.Context) error {
		return s.fetcher.Fetch(ctx, user.PortalUsername, user.PortalPassword, user.TelegramID)
	})
	if err != nil {
		return fmt.Errorf("fetch calendar: %w", err)
	}

	count, err := s.ingest.Ingest(ctx, user)
	if err != nil {
		return fmt.Errorf("ingest calendar: %w", err)
	}

	log.Printf("[info] refresh done for user=%d events=%d", telegramID, count)
	return nil
}

// RefreshAll runs Refresh for every registered user, best-effort: one
// user's failure never stops the rest.
func (s *RefreshService) RefreshAll(ctx context.Context) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		log.Printf("[error] list users for refresh: %v", err)
		return
	}

	for _, user := range users {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.Refresh(ctx, user.TelegramID); err != nil {
			log.Printf("[error] refresh user=%d: %v", user.TelegramID, err)
		}
	}
}
