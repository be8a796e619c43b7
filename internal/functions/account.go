package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

type AccountStore interface {
	DeleteUser(ctx context.Context, userID string) error
}

type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) error
}

// ObjectPurger removes every stored object under a key prefix.
type ObjectPurger interface {
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

type DeleteAccountResult struct {
	Deleted        bool `json:"deleted"`
	RemovedObjects int  `json:"removedObjects"`
}

// DeleteOwnAccount returns the delete_own_account function. Rows cascade
// from the user; sessions are revoked first so the caller cannot keep
// refreshing. objects may be nil when storage is not configured.
func DeleteOwnAccount(accounts AccountStore, sessions SessionRevoker, objects ObjectPurger, prefixFor func(string) string) Func {
	return func(ctx context.Context, caller Caller, _ json.RawMessage) (any, error) {
		if caller.UserID == "" {
			return nil, failf(NameDeleteOwnAccount, "no caller")
		}
		if sessions != nil {
			if err := sessions.RevokeUserSessions(ctx, caller.UserID); err != nil {
				return nil, fmt.Errorf("revoke sessions: %w", err)
			}
		}
		if err := accounts.DeleteUser(ctx, caller.UserID); err != nil {
			return nil, fmt.Errorf("delete user: %w", err)
		}

		result := DeleteAccountResult{Deleted: true}
		if objects != nil && prefixFor != nil {
			removed, err := objects.RemovePrefix(ctx, prefixFor(caller.UserID))
			if err != nil {
				log.Printf("functions: purge objects for %s: %v", caller.UserID, err)
			}
			result.RemovedObjects = removed
		}
		return result, nil
	}
}
