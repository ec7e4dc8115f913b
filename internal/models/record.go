package models

import "time"

// SourceRecord is a raw point-of-interest record as returned by a source before
// text preprocessing and embedding.
type SourceRecord struct {
	ID          string            `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description" db:"description"`
	Address     string            `json:"address" db:"address"`
	City        string            `json:"city" db:"city"`
	Category    string            `json:"category" db:"category"`
	Attributes  map[string]string `json:"attributes,omitempty" db:"attributes"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// Field returns the value of a named field, falling back to Attributes.
// Field names are the JSON names (e.g. "name", "description").
func (r *SourceRecord) Field(name string) string {
	switch name {
	case "id":
		return r.ID
	case "name":
		return r.Name
	case "description":
		return r.Description
	case "address":
		return r.Address
	case "city":
		return r.City
	case "category":
		return r.Category
	}
	return r.Attributes[name]
}

// SetField sets a named field; unknown names are stored in Attributes.
func (r *SourceRecord) SetField(name, value string) {
	switch name {
	case "id":
		r.ID = value
	case "name":
		r.Name = value
	case "description":
		r.Description = value
	case "address":
		r.Address = value
	case "city":
		r.City = value
	case "category":
		r.Category = value
	default:
		if r.Attributes == nil {
			r.Attributes = make(map[string]string)
		}
		r.Attributes[name] = value
	}
}
