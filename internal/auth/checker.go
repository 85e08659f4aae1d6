// Package auth decides which Telegram users may operate the bot.
package auth

import (
	"github.com/rs/zerolog/log"
)

// AllowList checks users against the configured operator ids.
type AllowList struct {
	users map[int64]struct{}
}

// NewAllowList creates an allow-list from user ids. An empty list admits nobody.
func NewAllowList(ids ...int64) *AllowList {
	users := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id != 0 {
			users[id] = struct{}{}
		}
	}
	return &AllowList{users: users}
}

// IsAllowed reports whether userID is an operator.
func (a *AllowList) IsAllowed(userID int64) bool {
	if a == nil {
		return false
	}
	_, ok := a.users[userID]
	if !ok {
		log.Debug().Int64("user", userID).Msg("rejected user outside the allow-list")
	}
	return ok
}

// Users returns the number of configured operators.
func (a *AllowList) Users() int {
	if a == nil {
		return 0
	}
	return len(a.users)
}

// Operators returns the configured operator ids in no particular order.
func (a *AllowList) Operators() []int64 {
	if a == nil {
		return nil
	}
	ids := make([]int64, 0, len(a.users))
	for id := range a.users {
		ids = append(ids, id)
	}
	return ids
}
