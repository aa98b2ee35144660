// Package leaderboard holds the in-process ranked index: a skip list ordered
// by score descending then user id ascending, and a sharded board that
// spreads users over several skip lists to cut lock contention.
package leaderboard

import "cachecompare/core"

// Entry is one user's standing on a board.
type Entry = core.ScoreEntry

// Board abstracts leaderboard operations.
type Board interface {
	// Update inserts user or moves it to score. Scores overwrite.
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	// TopN returns at most n entries, best first. n <= 0 yields nil.
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	Len() int
}

// Less reports whether a ranks ahead of b.
func Less(a, b Entry) bool {
	if a.Score == b.Score {
		return a.UserID < b.UserID
	}
	return a.Score > b.Score // higher score first
}
