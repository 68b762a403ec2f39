package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// NullFloat is a float64 that may be absent. The zero value is null.
type NullFloat struct {
	V     float64
	Valid bool
}

// Some returns a present value.
func Some(v float64) NullFloat { return NullFloat{V: v, Valid: true} }

// Null returns an absent value.
func Null() NullFloat { return NullFloat{} }

// Finite reports whether the value is present and neither NaN nor Inf.
func (n NullFloat) Finite() bool {
	return n.Valid && !math.IsNaN(n.V) && !math.IsInf(n.V, 0)
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.V) || math.IsInf(n.V, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(n.V)
}

func (n *NullFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Value implements driver.Valuer for Nullable(Float64) columns.
func (n NullFloat) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.V, nil
}

// Scan implements sql.Scanner.
func (n *NullFloat) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = NullFloat{}
	case float64:
		*n = Some(v)
	case float32:
		*n = Some(float64(v))
	case *float64:
		if v == nil {
			*n = NullFloat{}
		} else {
			*n = Some(*v)
		}
	case int64:
		*n = Some(float64(v))
	default:
		return fmt.Errorf("nullfloat: unsupported scan type %T", src)
	}
	return nil
}
