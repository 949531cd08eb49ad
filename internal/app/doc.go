// Package app composes the RenkoNet client: the Supabase gateway, the
// session manager and every view, plus the background services that keep
// them current (token refresh and the realtime inbox watcher).
//
// The HTTP surface lives in internal/app/httpapi and the process lifecycle
// in internal/app/runtime.
package app
