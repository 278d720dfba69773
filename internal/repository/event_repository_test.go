package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func createUser(t *testing.T, db *gorm.DB, telegramID int64) *model.User {
	t.Helper()
	user, err := NewUserRepository(db).Create(context.Background(), telegramID, "student", "secret")
	require.NoError(t, err)
	return user
}

func TestUpsertIsIdempotentAndPreservesCompletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewEventRepository(db)
	user := createUser(t, db, 100)

	due := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	first := model.Event{
		UserID:      user.ID,
		UID:         "hw1@portal",
		Title:       "Homework 1",
		Description: "First draft",
		EndTime:     &due,
		Category:    "Systems",
	}
	require.NoError(t, repo.Upsert(ctx, &first))
	require.NoError(t, repo.MarkCompleted(ctx, user.ID, "hw1@portal"))

	laterDue := due.Add(24 * time.Hour)
	second := model.Event{
		UserID:      user.ID,
		UID:         "hw1@portal",
		Title:       "Homework 1 (extended)",
		Description: "Deadline moved",
		EndTime:     &laterDue,
		Category:    "Systems",
	}
	require.NoError(t, repo.Upsert(ctx, &second))

	var events []model.Event
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&events).Error)
	require.Len(t, events, 1, "re-ingesting the same uid must not create a second row")

	got := events[0]
	assert.Equal(t, "Homework 1 (extended)", got.Title)
	assert.Equal(t, "Deadline moved", got.Description)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, laterDue, *got.EndTime, time.Second)
	assert.True(t, got.IsCompleted, "completion flag must survive re-ingestion")
}

func TestListUpcomingFiltersCompletedAndUndated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewEventRepository(db)
	user := createUser(t, db, 101)

	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(72 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "later", EndTime: &later}))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "soon", EndTime: &soon}))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "undated"}))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "done", EndTime: &soon}))
	require.NoError(t, repo.MarkCompleted(ctx, user.ID, "done"))

	upcoming, err := repo.ListUpcoming(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "soon", upcoming[0].UID, "soonest deadline first")
	assert.Equal(t, "later", upcoming[1].UID)

	incomplete, err := repo.ListIncomplete(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, incomplete, 3)
	assert.Equal(t, "undated", incomplete[2].UID, "events without a due date sort last")
}

func TestPurgeExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewEventRepository(db)
	user := createUser(t, db, 102)

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "past", EndTime: &past}))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "past-done", EndTime: &past}))
	require.NoError(t, repo.MarkCompleted(ctx, user.ID, "past-done"))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "future", EndTime: &future}))
	require.NoError(t, repo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "undated"}))

	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged, "expired events are purged regardless of completion")

	var remaining []model.Event
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.ElementsMatch(t, []string{"future", "undated"}, []string{remaining[0].UID, remaining[1].UID})
}

func TestDeleteUserCascadesToEventsButKeepsNotificationLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userRepo := NewUserRepository(db)
	eventRepo := NewEventRepository(db)
	notifRepo := NewNotificationRepository(db)
	user := createUser(t, db, 103)

	due := time.Now().Add(time.Hour)
	require.NoError(t, eventRepo.Upsert(ctx, &model.Event{UserID: user.ID, UID: "hw@portal", EndTime: &due}))
	require.NoError(t, notifRepo.MarkNotified(ctx, user.ID, "hw@portal", "3h"))

	require.NoError(t, userRepo.Delete(ctx, 103))

	exists, err := userRepo.Exists(ctx, 103)
	require.NoError(t, err)
	assert.False(t, exists)

	var eventCount int64
	require.NoError(t, db.Model(&model.Event{}).Where("user_id = ?", user.ID).Count(&eventCount).Error)
	assert.Zero(t, eventCount)

	notified, err := notifRepo.IsNotified(ctx, user.ID, "hw@portal", "3h")
	require.NoError(t, err)
	assert.True(t, notified, "orphaned notification markers stay behind")
}

func TestMarkNotifiedIsAtMostOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	user := createUser(t, db, 104)

	require.NoError(t, repo.MarkNotified(ctx, user.ID, "hw@portal", "1d"))
	require.NoError(t, repo.MarkNotified(ctx, user.ID, "hw@portal", "1d"), "duplicate insert is ignored")

	var count int64
	require.NoError(t, db.Model(&model.NotificationLog{}).
		Where("user_id = ? AND uid = ? AND threshold = ?", user.ID, "hw@portal", "1d").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
