// Package backend provides an HTTP client for the recycling backend.
//
// # Overview
//
// The backend is a hosted Postgres with a PostgREST-style REST layer and a
// token-based auth service. This package speaks both:
//
//   - boxes.go: CRUD and query helpers for the recycling_boxes table
//   - auth.go: password sign-in, sign-up, refresh and sign-out
//   - errors.go: APIError and the sentinels callers match with errors.Is
//
// # Client Usage
//
//	client, err := backend.NewClient(cfg.URL, cfg.AnonKey)
//	if err != nil {
//		return err
//	}
//	records, err := client.FetchBoxes(ctx)
//
// After sign-in, SetSession attaches the user's access token to every later
// request. Until then requests carry the public key as bearer token.
//
// # Request Handling
//
// All requests:
//   - Use context for cancellation and timeout control
//   - Send the apikey and Authorization headers
//   - Include User-Agent: recipunto/0.1
//   - Have a 10-second timeout (configurable via WithHTTPClient)
//
// Single-row reads and mutations ask for one JSON object, so an update that
// matches no visible row fails with PGRST116 instead of returning an empty
// list.
//
// # Error Handling
//
// Responses with status >= 400 become *APIError. Its Is method maps:
//
//   - PGRST116 or 404 to ErrNotFound
//   - PGRST301 or 403 to ErrForbidden
//   - other 401 responses to ErrUnauthenticated
//
// GetBox treats ErrNotFound as "no box" and returns nil without error.
// CreateBox fails with ErrUnauthenticated before any request when no user is
// signed in.
package backend
