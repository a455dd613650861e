// Package auth validates connect tokens and materializes user sessions.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// Authentication errors, surfaced on the connect verb.
var (
	ErrNoSuchUser = errors.New("no session for user")
	ErrWrongToken = errors.New("token mismatch")
)

// Authenticator resolves a (user id, token) pair to a session. The session
// record is written out-of-band by the community platform before the client
// connects; this service only validates and reads it.
type Authenticator interface {
	Authenticate(ctx context.Context, userID, token string) (*chat.Session, error)
}

const keyUserAuth = "user:auth:%s" // hash: session key -> value

// RedisAuthenticator reads session hashes from the shared KV store.
type RedisAuthenticator struct {
	client *redis.Client
}

func NewRedisAuthenticator(client *redis.Client) *RedisAuthenticator {
	return &RedisAuthenticator{client: client}
}

func (a *RedisAuthenticator) Authenticate(ctx context.Context, userID, token string) (*chat.Session, error) {
	fields, err := a.client.HGetAll(ctx, fmt.Sprintf(keyUserAuth, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read auth record for user %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNoSuchUser
	}
	if fields["token"] != token {
		return nil, ErrWrongToken
	}
	return sessionFromFields(userID, fields), nil
}

// MemoryAuthenticator holds sessions in process. With allowAll set it
// accepts any (user id, token) pair and fabricates a minimal session, the
// behavior used under testing configuration.
type MemoryAuthenticator struct {
	allowAll bool
	users    map[string]map[string]string
}

func NewMemoryAuthenticator(allowAll bool) *MemoryAuthenticator {
	return &MemoryAuthenticator{
		allowAll: allowAll,
		users:    make(map[string]map[string]string),
	}
}

// AddUser registers a session record, keyed by the session field names used
// on the wire: user_name, age, gender, membership, country, city, image,
// has_webcam, fake_checked, token.
func (a *MemoryAuthenticator) AddUser(userID string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	a.users[userID] = copied
}

func (a *MemoryAuthenticator) Authenticate(_ context.Context, userID, token string) (*chat.Session, error) {
	fields, ok := a.users[userID]
	if !ok {
		if a.allowAll {
			return &chat.Session{UserID: userID, UserName: userID, Token: token}, nil
		}
		return nil, ErrNoSuchUser
	}
	if fields["token"] != token {
		return nil, ErrWrongToken
	}
	return sessionFromFields(userID, fields), nil
}

func sessionFromFields(userID string, fields map[string]string) *chat.Session {
	return &chat.Session{
		UserID:      userID,
		UserName:    fields["user_name"],
		Age:         fields["age"],
		Gender:      fields["gender"],
		Membership:  fields["membership"],
		Country:     fields["country"],
		City:        fields["city"],
		Image:       fields["image"],
		HasWebcam:   fields["has_webcam"],
		FakeChecked: fields["fake_checked"],
		Token:       fields["token"],
	}
}

var (
	_ Authenticator = (*RedisAuthenticator)(nil)
	_ Authenticator = (*MemoryAuthenticator)(nil)
)
