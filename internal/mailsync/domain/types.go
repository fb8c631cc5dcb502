package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// Header is a single message header as delivered by the provider.
type Header struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

// HeaderList keeps headers in delivery order. Stored as JSONB.
type HeaderList []Header

// Value implements driver.Valuer for HeaderList
func (h HeaderList) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for HeaderList
func (h *HeaderList) Scan(value interface{}) error {
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if b == nil {
		*h = nil
		return nil
	}
	return json.Unmarshal(b, h)
}

// Values returns every value of the named header, case-insensitively, in order.
func (h HeaderList) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// StringList is a JSONB-backed list of strings (label ids, tags).
type StringList []string

// Value implements driver.Valuer for StringList
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for StringList
func (s *StringList) Scan(value interface{}) error {
	b, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if b == nil {
		*s = nil
		return nil
	}
	return json.Unmarshal(b, s)
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("type assertion to []byte failed")
	}
}
