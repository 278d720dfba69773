package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"deadline-bot/internal/ics"
	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

// IngestService drains a user's scratch directory: every downloaded export
// file is parsed, its events upserted, and the file removed.
type IngestService struct {
	eventRepo *repository.EventRepository
	baseDir   string
}

func NewIngestService(eventRepo *repository.EventRepository, baseDir string) *IngestService {
	return &IngestService{eventRepo: eventRepo, baseDir: baseDir}
}

// Ingest processes all pending export files for the user and returns the
// number of events stored. A missing directory or an empty one is a normal
// "nothing to do" outcome. Per-event store failures are logged and skipped;
// each file is deleted after processing regardless.
func (s *IngestService) Ingest(ctx context.Context, user *model.User) (int, error) {
	dir := filepath.Join(s.baseDir, strconv.FormatInt(user.TelegramID, 10))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch dir %q: %w", dir, err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ics") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		total += s.ingestFile(ctx, user, path)

		if err := os.Remove(path); err != nil {
			log.Printf("[warn] remove export file %q: %v", path, err)
		}
	}
	return total, nil
}

func (s *IngestService) ingestFile(ctx context.Context, user *model.User, path string) int {
	body, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[warn] read export file %q: %v", path, err)
		return 0
	}

	deadlines, err := ics.ParseDeadlines(body)
	if err != nil {
		log.Printf("[warn] parse export file %q: %v", path, err)
		return 0
	}

	stored := 0
	for _, dl := range deadlines {
		event := model.Event{
			UserID:      user.ID,
			UID:         dl.UID,
			Title:       dl.Title,
			Description: dl.Description,
			EndTime:     dl.EndTime,
			Category:    dl.Category,
		}
		if err := s.eventRepo.Upsert(ctx, &event); err != nil {
			log.Printf("[warn] store event uid=%s user=%d: %v", dl.UID, user.TelegramID, err)
			continue
		}
		stored++
	}

	log.Printf("[info] ingested %d/%d events from %s for user=%d", stored, len(deadlines), filepath.Base(path), user.TelegramID)
	return stored
}
