package models

import "encoding/json"

// Tool is a registered tool definition: a name the model can call, a
// description it sees, and a JSON Schema describing valid input. Schemas
// are data, not code (spec §9) — validated with a Draft 2020-12-compatible
// library at the transport boundary, not hand-parsed here.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}
