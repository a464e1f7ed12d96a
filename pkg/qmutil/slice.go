package qmutil

import "github.com/duke-git/lancet/v2/slice"

// DedupStrings removes repeated entries while preserving first-seen
// order. Expression.Fields() walks a tree and concatenates child field
// lists, so the same column can legitimately show up twice (e.g. both
// sides of "a.x = a.x" or a CASE branch that reuses a column already
// seen in an earlier branch); callers that feed the result into a
// disambiguation or GROUP BY position lookup want each name once.
func DedupStrings(in []string) []string {
	return slice.Unique(in)
}
