package forum

import (
	"encoding/base64"
	"encoding/json"
)

// position is where a dashboard page ended, in (activity desc, id desc) order.
type position struct {
	Activity string `json:"a"`
	ThreadID string `json:"t"`
}

func encodeCursor(p position) string {
	data, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(cursor string) (position, error) {
	var p position
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return p, invalid("malformed cursor")
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Activity == "" || p.ThreadID == "" {
		return p, invalid("malformed cursor")
	}
	return p, nil
}

// before reports whether a thread at (activity, id) sorts before p.
func (p position) before(activity, id string) bool {
	if activity != p.Activity {
		return activity > p.Activity
	}
	return id >= p.ThreadID
}
