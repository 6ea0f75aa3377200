// Package search scores project snapshots against free-text queries.
//
// Matching is token overlap: the score is the fraction of query tokens
// found in the candidate text, so 1.0 means every query word appears.
// Results sort by score descending with project name as the tie-break.
// Snapshots arrive through an injected loader, which in production is the
// manager's cached project list.
package search
