package scraper

import "errors"

// ErrInvalidCredentials means the portal accepted the login form but never
// showed the export page: the username/password pair is wrong. Not worth
// retrying.
var ErrInvalidCredentials = errors.New("portal rejected the credentials")

// ErrDownloadTimeout means the export was triggered but no .ics file showed
// up in the scratch directory within the polling window. Wrapped as a
// transient fault so the whole fetch is retried.
var ErrDownloadTimeout = errors.New("timed out waiting for the calendar export")
