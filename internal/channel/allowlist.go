// Package channel holds the chat-facing building blocks shared by bot
// front-ends: who may talk to the bot, the middleware chain run before each
// handler, and the chat-action indicator loop.
package channel

import "strings"

// Wildcard entries accepted in the allow-list and the admin list.
const (
	// AllowEveryone in the allowed list lets every user in.
	AllowEveryone = "*"

	// NoAdmins in the admin list disables administrators.
	NoAdmins = "-"
)

// AllowList decides which users may use the bot and which are administrators.
//
// The allowed list is ordered: per-user budgets are configured by position,
// so Index exposes a user's position. An empty or nil AllowList denies
// everyone.
type AllowList struct {
	everyone bool
	users    map[string]int
	admins   map[string]struct{}
}

// NewAllowList creates an AllowList from the configured user and admin IDs.
// IDs are trimmed and lowercased at construction time so that lookups are
// direct map hits.
func NewAllowList(users, admins []string) *AllowList {
	a := &AllowList{
		users:  make(map[string]int, len(users)),
		admins: make(map[string]struct{}, len(admins)),
	}
	for i, u := range users {
		id := normalize(u)
		switch {
		case id == AllowEveryone:
			a.everyone = true
		case id == "":
		default:
			if _, dup := a.users[id]; !dup {
				a.users[id] = i
			}
		}
	}
	for _, ad := range admins {
		id := normalize(ad)
		if id == "" || id == NoAdmins {
			continue
		}
		a.admins[id] = struct{}{}
	}
	return a
}

// ParseIDs splits a comma separated ID list, dropping empty entries.
func ParseIDs(s string) []string {
	var ids []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// AllowsEveryone reports whether the wildcard entry is present.
func (a *AllowList) AllowsEveryone() bool {
	return a != nil && a.everyone
}

// IsAdmin reports whether userID is an administrator.
func (a *AllowList) IsAdmin(userID string) bool {
	if a == nil {
		return false
	}
	_, ok := a.admins[normalize(userID)]
	return ok
}

// IsAllowed reports whether userID may use the bot on their own account.
// Admins are always allowed.
func (a *AllowList) IsAllowed(userID string) bool {
	if a == nil {
		return false
	}
	if a.everyone || a.IsAdmin(userID) {
		return true
	}
	_, ok := a.users[normalize(userID)]
	return ok
}

// Index returns the position of userID in the configured allowed list.
func (a *AllowList) Index(userID string) (int, bool) {
	if a == nil {
		return 0, false
	}
	i, ok := a.users[normalize(userID)]
	return i, ok
}

// Members returns the explicitly listed users and admins. Group chats are
// allowed when one of them is a member.
func (a *AllowList) Members() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.users)+len(a.admins))
	for id := range a.admins {
		out = append(out, id)
	}
	for id := range a.users {
		if _, admin := a.admins[id]; !admin {
			out = append(out, id)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
