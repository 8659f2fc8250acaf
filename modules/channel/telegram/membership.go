package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flemzord/tgpt/internal/session"
)

// membershipTTL is how long a getChatMember answer is reused.
const membershipTTL = 5 * time.Minute

type memberEntry struct {
	present bool
	at      time.Time
}

// membership answers "is user U in chat C" with a short-lived cache.
// Concurrent lookups of the same pair share one Bot API call.
type membership struct {
	client *Client
	group  singleflight.Group
	cache  *session.Store[memberEntry]
	now    func() time.Time
}

func newMembership(client *Client) *membership {
	return &membership{
		client: client,
		cache:  session.NewStore[memberEntry](),
		now:    time.Now,
	}
}

// IsMember reports whether userID currently belongs to chat, a numeric id
// or a public @username.
func (m *membership) IsMember(ctx context.Context, chat string, userID int64) (bool, error) {
	key := chat + ":" + strconv.FormatInt(userID, 10)
	if e, ok := m.cache.Get(key); ok && m.now().Sub(e.at) < membershipTTL {
		return e.present, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		member, err := m.client.GetChatMember(ctx, chat, userID)
		if err != nil {
			return false, err
		}
		present := member.IsPresent()
		m.cache.Set(key, memberEntry{present: present, at: m.now()})
		return present, nil
	})
	if err != nil {
		return false, fmt.Errorf("telegram: membership of %d in %s: %w", userID, chat, err)
	}
	return v.(bool), nil
}

// AnyMember reports whether any of userIDs belongs to chat. Lookup errors
// count as "not a member" so one unknown user does not block the others.
func (m *membership) AnyMember(ctx context.Context, chat string, userIDs []string) bool {
	for _, id := range userIDs {
		uid, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if ok, err := m.IsMember(ctx, chat, uid); err == nil && ok {
			return true
		}
	}
	return false
}

// Prune drops cached answers idle for longer than maxIdle.
func (m *membership) Prune(maxIdle time.Duration) int {
	return m.cache.Prune(maxIdle)
}
