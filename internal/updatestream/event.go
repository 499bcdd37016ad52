package updatestream

import (
	"fmt"
	"strconv"
)

// Event categories emitted by the update stream server. The set is owned by
// the server; the client passes the value through without validating
// membership.
const (
	CategoryDML = "DML"
	CategoryDDL = "DDL"
	CategoryErr = "ERR"
	CategoryPos = "POS"
)

// PkValue is one (column, value) pair of a primary-key row tuple.
type PkValue struct {
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
}

// PkRow identifies one row affected by a change event.
type PkRow []PkValue

// ChangeEvent is one decoded unit of update-stream data. Events are built
// from exactly one stream reply and never mutated afterwards.
type ChangeEvent struct {
	Category  string  `json:"category"`
	TableName string  `json:"table,omitempty"` // row-change events only
	Sql       string  `json:"sql,omitempty"`
	Timestamp int64   `json:"timestamp"`
	GroupId   string  `json:"group_id"`
	PkRows    []PkRow `json:"pk_rows,omitempty"`

	// RawJSON, when set by a transform, is published verbatim in place of
	// the struct so fields a script adds survive. Never set by the decoder.
	RawJSON []byte `json:"-"`
}

// DecodeEvent builds a ChangeEvent from one raw stream reply. The reply's
// PkColNames and PkValues arrays are consumed here to reconstruct PkRows and
// do not appear on the result; fields outside the known set are ignored.
// The input is never mutated, so decoding the same reply twice yields equal
// events.
func DecodeEvent(raw map[string]interface{}) (*ChangeEvent, error) {
	category, err := requiredString(raw, "Category")
	if err != nil {
		return nil, err
	}
	timestamp, err := requiredInt(raw, "Timestamp")
	if err != nil {
		return nil, err
	}
	groupID, err := requiredString(raw, "GroupId")
	if err != nil {
		return nil, err
	}

	names, err := pkColNames(raw["PkColNames"])
	if err != nil {
		return nil, err
	}

	event := &ChangeEvent{
		Category:  category,
		TableName: optionalString(raw, "TableName"),
		Sql:       optionalString(raw, "Sql"),
		Timestamp: timestamp,
		GroupId:   groupID,
	}
	event.PkRows = decodePkRows(names, raw["PkValues"])
	return event, nil
}

// decodePkRows zips the shared column-name list against each per-row value
// list. Rows with an absent or empty value list contribute nothing; zipping
// stops at the shorter of the two lists.
func decodePkRows(names []string, rawValues interface{}) []PkRow {
	if len(names) == 0 {
		return nil
	}

	var pkRows []PkRow
	for _, entry := range toList(rawValues) {
		values := toList(entry)
		if len(values) == 0 {
			continue
		}
		n := len(names)
		if len(values) < n {
			n = len(values)
		}
		row := make(PkRow, 0, n)
		for i := 0; i < n; i++ {
			row = append(row, PkValue{Column: names[i], Value: values[i]})
		}
		pkRows = append(pkRows, row)
	}
	return pkRows
}

func requiredString(raw map[string]interface{}, field string) (string, error) {
	val, ok := raw[field]
	if !ok || val == nil {
		return "", fmt.Errorf("%w: missing field %s", ErrBadReply, field)
	}
	s, ok := asString(val)
	if !ok {
		return "", fmt.Errorf("%w: field %s has type %T", ErrBadReply, field, val)
	}
	return s, nil
}

func requiredInt(raw map[string]interface{}, field string) (int64, error) {
	val, ok := raw[field]
	if !ok || val == nil {
		return 0, fmt.Errorf("%w: missing field %s", ErrBadReply, field)
	}
	n, ok := asInt64(val)
	if !ok {
		return 0, fmt.Errorf("%w: field %s has type %T", ErrBadReply, field, val)
	}
	return n, nil
}

func optionalString(raw map[string]interface{}, field string) string {
	s, _ := asString(raw[field])
	return s
}

// asString accepts the representations a schemaless transport may use for
// string and numeric identifier fields.
func asString(val interface{}) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func asInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func toList(val interface{}) []interface{} {
	if list, ok := val.([]interface{}); ok {
		return list
	}
	return nil
}

// pkColNames returns the shared column-name list. An absent or empty field
// yields nil; a field that is present but mistyped is a protocol violation,
// not a silent no-PK event.
func pkColNames(val interface{}) ([]string, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := asString(item)
			if !ok {
				return nil, fmt.Errorf("%w: field PkColNames has entry of type %T", ErrBadReply, item)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%w: field PkColNames has type %T", ErrBadReply, val)
	}
}
