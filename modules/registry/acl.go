package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thenetcircle/dino-sub002/domain/chat"
)

// aclValidator checks one session value against one acl entry.
type aclValidator func(sessionValue, required string) bool

// validators maps each enforced acl type to its predicate. Types not listed
// here are ignored during authorization so that new entry kinds can be
// stored before every node understands them.
var validators = map[string]aclValidator{
	"gender":       csvContains,
	"membership":   csvContains,
	"country":      csvContains,
	"city":         csvContains,
	"image":        csvContains,
	"has_webcam":   csvContains,
	"fake_checked": csvContains,
	"age":          ageInRange,
}

// csvContains allows a session value listed in a comma separated set.
func csvContains(sessionValue, required string) bool {
	for _, allowed := range strings.Split(required, ",") {
		if strings.TrimSpace(allowed) == sessionValue {
			return true
		}
	}
	return false
}

// ageInRange parses a "min:max" range where either end may be empty for an
// open interval. Malformed ranges and non-numeric session ages deny.
func ageInRange(sessionValue, required string) bool {
	parts := strings.SplitN(required, ":", 2)
	if len(parts) != 2 {
		return false
	}

	age, err := strconv.Atoi(strings.TrimSpace(sessionValue))
	if err != nil {
		return false
	}

	if min := strings.TrimSpace(parts[0]); min != "" {
		n, err := strconv.Atoi(min)
		if err != nil || age < n {
			return false
		}
	}
	if max := strings.TrimSpace(parts[1]); max != "" {
		n, err := strconv.Atoi(max)
		if err != nil || age > n {
			return false
		}
	}
	return true
}

// Authorize evaluates the room's acl table against the session. Every
// enforced entry must pass; an entry whose session value is missing denies.
// A nil error means access is granted.
func Authorize(session *chat.Session, acls map[string]string) error {
	for aclType, required := range acls {
		validate, enforced := validators[aclType]
		if !enforced {
			continue
		}

		sessionValue := session.Value(aclType)
		if sessionValue == "" {
			return fmt.Errorf("no %s attribute in session", aclType)
		}
		if !validate(sessionValue, required) {
			return fmt.Errorf("%s %q does not match required %q", aclType, sessionValue, required)
		}
	}
	return nil
}
