package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// StringArray keeps an ordered list of strings (a song arrangement) as a
// JSON array in a text column, which every supported driver can hold.
type StringArray []string

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("StringArray: unsupported scan type %T", value)
	}
	if err := json.Unmarshal(data, (*[]string)(a)); err != nil {
		return fmt.Errorf("StringArray: %w", err)
	}
	return nil
}

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDataType returns the GORM data type hint.
func (StringArray) GormDataType() string {
	return "text"
}

// JSON stores an arbitrary JSON document in a text column. Used for nested
// records (song sections, template styling) that are never queried by field.
type JSON []byte

// Scan implements the sql.Scanner interface for reading from the database.
func (j *JSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return errors.New("JSON: unsupported scan type")
	}
	return nil
}

// Value implements the driver.Valuer interface for writing to the database.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, errors.New("JSON: invalid document")
	}
	return string(j), nil
}

// GormDataType returns the GORM data type hint.
func (JSON) GormDataType() string {
	return "text"
}

// MarshalJSON emits the stored document unchanged.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of data.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}
