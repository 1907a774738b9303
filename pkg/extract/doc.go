// Package extract drives the sequential page loop of one report run.
//
// The controller fetches the first page, learns the total row count from it,
// and then fetches exactly as many further pages as the count implies,
// stopping early when the API reports no next cursor. Every page, including
// an empty final one, is written as a chunk before the termination check.
//
// States:
//
//	START -> FETCHING -> MORE_PAGES -> FETCHING ... -> DONE
//	                  \-> DONE (no cursor after page 1)
//
// Fetches are never issued concurrently: cursors are only valid in order and
// the API enforces a per-account rate budget. A Pacer is consulted between
// pages. Fatal API errors and retry exhaustion both abort the run.
package extract
