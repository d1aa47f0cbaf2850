package browser

import (
	"encoding/json"

	"github.com/ysmood/gson"
)

// decodeValue converts a go-rod/gson evaluation result into a plain Go
// value (string, float64, bool, []interface{}, map[string]interface{}, or
// nil) so the rest of webwatch never imports gson directly. gson.JSON
// round-trips through encoding/json, so this is a generic bridge rather
// than a bespoke walker.
func decodeValue(v gson.JSON) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
