package session

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned for a session hash that cannot be turned back
// into a Principal.
var ErrMalformed = errors.New("session: malformed record")

const (
	fieldID       = "id"
	fieldNickName = "nickName"
	fieldIcon     = "icon"
)

// Principal is the authenticated user attached to a request.
type Principal struct {
	ID       int64
	NickName string
	Icon     string
}

// Fields flattens p into the string hash stored per session.
func (p Principal) Fields() map[string]string {
	return map[string]string{
		fieldID:       strconv.FormatInt(p.ID, 10),
		fieldNickName: p.NickName,
		fieldIcon:     p.Icon,
	}
}

// PrincipalFromFields is the inverse of Fields. Unknown fields are ignored;
// a missing or non-numeric id is an error.
func PrincipalFromFields(m map[string]string) (Principal, error) {
	raw, ok := m[fieldID]
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing %q", ErrMalformed, fieldID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %q: %v", ErrMalformed, fieldID, err)
	}
	return Principal{ID: id, NickName: m[fieldNickName], Icon: m[fieldIcon]}, nil
}
