package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"
	"time"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

// Messenger delivers a rendered reminder to a chat. uid identifies the
// event so the message can carry a mark-as-done action.
type Messenger interface {
	SendReminder(chatID int64, text string, uid string) error
}

// Threshold is a lead time before a deadline at which exactly one reminder
// should fire.
type Threshold struct {
	Label string
	Lead  time.Duration
}

// Thresholds lists the reminder lead times, longest first.
var Thresholds = []Threshold{
	{Label: "7d", Lead: 7 * 24 * time.Hour},
	{Label: "3d", Lead: 3 * 24 * time.Hour},
	{Label: "1d", Lead: 24 * time.Hour},
	{Label: "12h", Lead: 12 * time.Hour},
	{Label: "3h", Lead: 3 * time.Hour},
}

// DefaultTolerance is how far off a threshold the sweep may be and still
// fire. It must comfortably exceed the sweep interval jitter.
const DefaultTolerance = 5 * time.Minute

var isDueSuffix = regexp.MustCompile(`(?i)\s*is due\s*$`)

// CleanTitle strips the portal's redundant "is due" suffix from an event
// title.
func CleanTitle(title string) string {
	return strings.TrimSpace(isDueSuffix.ReplaceAllString(title, ""))
}

// NotifierService periodically checks every user's deadlines against the
// reminder thresholds and sends each (user, event, threshold) reminder at
// most once.
type NotifierService struct {
	userRepo         *repository.UserRepository
	eventRepo        *repository.EventRepository
	notificationRepo *repository.NotificationRepository
	messenger        Messenger
	thresholds       []Threshold
	tolerance        time.Duration
}

func NewNotifierService(
	userRepo *repository.UserRepository,
	eventRepo *repository.EventRepository,
	notificationRepo *repository.NotificationRepository,
	messenger Messenger,
) *NotifierService {
	return &NotifierService{
		userRepo:         userRepo,
		eventRepo:        eventRepo,
		notificationRepo: notificationRepo,
		messenger:        messenger,
		thresholds:       Thresholds,
		tolerance:        DefaultTolerance,
	}
}

// Sweep evaluates every notification-enabled user once. Per-user faults
// are logged and do not stop the sweep.
func (s *NotifierService) Sweep(ctx context.Context, now time.Time) error {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, user := range users {
		if !user.NotificationsEnabled {
			continue
		}
		if err := s.sweepUser(ctx, user, now); err != nil {
			log.Printf("[error] notification sweep user=%d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (s *NotifierService) sweepUser(ctx context.Context, user model.User, now time.Time) error {
	events, err := s.eventRepo.ListUpcoming(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list upcoming: %w", err)
	}

	for _, event := range events {
		remaining := event.EndTime.Sub(now)
		for _, th := range s.thresholds {
			diff := remaining - th.Lead
			if diff < 0 {
				diff = -diff
			}
			if diff > s.tolerance {
				continue
			}

			sent, err := s.notificationRepo.IsNotified(ctx, user.ID, event.UID, th.Label)
			if err != nil {
				log.Printf("[warn] check notification uid=%s user=%d: %v", event.UID, user.TelegramID, err)
				continue
			}
			if sent {
				continue
			}

			text := renderReminder(event, now)
			if err := s.messenger.SendReminder(user.TelegramID, text, event.UID); err != nil {
				log.Printf("[warn] send reminder uid=%s user=%d: %v", event.UID, user.TelegramID, err)
				continue
			}
			if err := s.notificationRepo.MarkNotified(ctx, user.ID, event.UID, th.Label); err != nil {
				log.Printf("[warn] mark notified uid=%s user=%d: %v", event.UID, user.TelegramID, err)
			}
		}
	}
	return nil
}

func renderReminder(event model.Event, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏰ Reminder: <b>%s</b>\n", html.EscapeString(CleanTitle(event.Title))))
	sb.WriteString(fmt.Sprintf("📘 <b>%s</b>\n", html.EscapeString(event.Category)))
	if event.EndTime != nil {
		sb.WriteString(fmt.Sprintf("📆 <i>%s</i>\n", event.EndTime.In(now.Location()).Format("2006-01-02 15:04")))
	}
	sb.WriteString(fmt.Sprintf("📝 %s", html.EscapeString(event.Description)))
	return sb.String()
}
