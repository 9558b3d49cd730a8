package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/mbeoliero/vesper/pkg/constant"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenDirectPairKey generates the canonical pair key for a direct conversation.
// Format: di_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_".
// The key is order-independent, so at most one conversation exists per
// unordered pair of users.
func GenDirectPairKey(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.DirectConversationPrefix, users[0], users[1])
}

// GenGroupPairKey generates the pair key for a group conversation
// Format: gr_{groupId}
func GenGroupPairKey(groupId string) string {
	return fmt.Sprintf("%s%s", constant.GroupConversationPrefix, groupId)
}

// IsDirectPairKey checks if a pair key belongs to a direct conversation
func IsDirectPairKey(pairKey string) bool {
	return len(pairKey) > 3 && pairKey[:3] == constant.DirectConversationPrefix
}

// DirectPairKeyPeers splits a direct pair key back into its two user ids.
// Returns ok=false if the key is not a well-formed direct pair key.
func DirectPairKeyPeers(pairKey string) (userA, userB string, ok bool) {
	if !IsDirectPairKey(pairKey) {
		return "", "", false
	}
	rest := pairKey[3:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
