package varlink

import (
	_ "embed"
	"encoding/json"
)

//go:embed org.varlink.service.varlink
var serviceDefinition string

func unmarshalParameters(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(raw, v)
}
