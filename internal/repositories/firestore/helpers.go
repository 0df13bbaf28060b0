package firestore

import (
	"errors"
	"time"

	"github.com/gelomax/api/internal/platform/pagination"
)

var errInvalidToken = errors.New("invalid token structure")

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func encodeListToken(at time.Time, docID string) string {
	return encodeStringToken(at.UTC().Format(time.RFC3339Nano), docID)
}

func decodeListToken(token string) (time.Time, string, error) {
	key, docID, err := decodeStringToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, err := time.Parse(time.RFC3339Nano, key)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}

func encodeStringToken(key, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{key, docID}})
	if err != nil {
		return ""
	}
	return token
}

func decodeStringToken(token string) (string, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return "", "", err
	}
	if len(cursor.StartAfter) != 2 {
		return "", "", errInvalidToken
	}
	key, keyOK := cursor.StartAfter[0].(string)
	docID, idOK := cursor.StartAfter[1].(string)
	if !keyOK || !idOK {
		return "", "", errInvalidToken
	}
	return key, docID, nil
}

// prefixUpperBound returns the exclusive upper bound for a lexical prefix
// range query over a folded text field.
func prefixUpperBound(prefix string) string {
	return prefix + ""
}

func fetchLimits(pageSize int) (limit, fetch int) {
	limit = pageSize
	if limit < 0 {
		limit = 0
	}
	fetch = limit
	if limit > 0 {
		fetch = limit + 1
	}
	return limit, fetch
}
