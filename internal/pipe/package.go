package pipe

import "encoding/json"

// Package is a validated inbound envelope.
type Package struct {
	PackageID string
	SenderID  string
	Size      int
	Data      []byte
}

// Decode unmarshals the package body into v.
func (p Package) Decode(v any) error {
	return json.Unmarshal(p.Data, v)
}
