package models

import (
	"bytes"
	"encoding/json"
)

// FlexText decodes from a JSON string, number or object. Non-string values
// are kept as their compact JSON text; model output is not consistent about
// which of these it produces for the same field.
type FlexText string

func (t *FlexText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = FlexText(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*t = FlexText(buf.String())
	return nil
}

func (t FlexText) String() string { return string(t) }
