package models

import (
	"encoding/json"
	"strings"

	dErrors "linkage/pkg/domain-errors"
)

// Ref is a typed reference to a record, serialized as "Type/ID".
type Ref struct {
	Type string
	ID   string
}

// ParseRef validates and splits a "Type/ID" reference string.
func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid record reference %q, expected Type/ID", s)
	}
	return Ref{Type: parts[0], ID: parts[1]}, nil
}

func (r Ref) String() string {
	return r.Type + "/" + r.ID
}

func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
