package rpc

import "encoding/json"

// decodeParams unmarshals params into dst, tolerating an absent/empty
// params field (every method here has zero-value defaults for that case).
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, dst)
}
