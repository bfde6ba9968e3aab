package mp4

import "encoding/json"

type jsonBox struct {
	Type BoxType      `json:"type"`
	Size uint64       `json:"size"`
	Box  ImmutableBox `json:"box"`
}

// ToJSON returns a JSON view of the box for diagnostics.
// The view is not part of the wire format.
func ToJSON(b ImmutableBox) (string, error) {
	raw, err := json.Marshal(jsonBox{
		Type: b.Type(),
		Size: WireSize(b),
		Box:  b,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
