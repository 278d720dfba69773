package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/retry"
)

func TestFetchRejectsEmptyCredentials(t *testing.T) {
	f := NewFetcher("https://portal.example/calendar/export.php", t.TempDir(), true)

	err := f.Fetch(context.Background(), "", "secret", 1)
	require.Error(t, err)
	assert.False(t, retry.Retryable(err), "precondition failures are not transient")

	err = f.Fetch(context.Background(), "student", "   ", 1)
	require.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	// Invalid credentials must never be retried; a download timeout is
	// routed through the transient path.
	assert.False(t, retry.Retryable(fmt.Errorf("login: %w", ErrInvalidCredentials)))
	assert.True(t, retry.Retryable(retry.Transient(fmt.Errorf("%w after 30s", ErrDownloadTimeout))))
}

func TestScratchDirIsPerUser(t *testing.T) {
	f := NewFetcher("https://portal.example", "/tmp/deadline-bot", true)
	assert.Equal(t, filepath.Join("/tmp/deadline-bot", "42"), f.ScratchDir(42))
	assert.NotEqual(t, f.ScratchDir(42), f.ScratchDir(43))
}

func TestWaitForDownloadFindsExistingExport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icalexport.ics"), []byte("BEGIN:VCALENDAR"), 0o644))

	f := NewFetcher("https://portal.example", dir, true)
	f.downloadWait = time.Second

	assert.NoError(t, f.waitForDownload(context.Background(), dir))
}

func TestWaitForDownloadTimesOut(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.crdownload"), nil, 0o644))

	f := NewFetcher("https://portal.example", dir, true)
	f.downloadWait = 100 * time.Millisecond

	err := f.waitForDownload(context.Background(), dir)
	require.ErrorIs(t, err, ErrDownloadTimeout)
	assert.True(t, retry.Retryable(err))
}

func TestWaitForDownloadToleratesMissingDir(t *testing.T) {
	f := NewFetcher("https://portal.example", "/nonexistent", true)
	f.downloadWait = 100 * time.Millisecond

	// A listing error counts as "nothing yet" and runs into the timeout
	// instead of failing immediately.
	err := f.waitForDownload(context.Background(), "/nonexistent/definitely-missing")
	require.ErrorIs(t, err, ErrDownloadTimeout)
}
