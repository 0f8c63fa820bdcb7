package objectclass

import (
	"errors"
)

// Row is one object-class record, independent of wire or storage shape.
// Fields holds the domain-specific columns declared by the class's
// Descriptor, keyed by column name.
type Row struct {
	ID                    int64
	OriginClientID        int64
	OriginClientObjectID  int64
	LastUpdatedByClientID int64
	OwnerUserID           int64
	LastSync              int64
	Deleted               bool
	Fields                map[string]any
}

// ErrMissingField is returned by ExtractUpload when a client-submitted row
// is missing originClientObjectId, the one field every upload must supply.
var ErrMissingField = errors.New("objectclass: row missing originClientObjectId")

// ExtractUpload builds a Row ready for upsert from one element of a syncUp
// request's "objects" array, plus identity the server — not the client —
// is authoritative for: the uploading client's id (both as the default
// origin and as lastUpdatedByClientId) and the authenticated user's id.
//
// originClientId is normally the uploading client, but a row forwarded from
// another device (re-pushed after a local download) may carry an explicit
// originClientId to preserve the original creator across devices, distinct
// from lastUpdatedByClientId which always tracks the most recent writer.
func (d Descriptor) ExtractUpload(item map[string]any, uploadingClientID, ownerUserID int64) (Row, error) {
	var row Row
	row.LastUpdatedByClientID = uploadingClientID
	row.OwnerUserID = ownerUserID
	row.OriginClientID = uploadingClientID

	objID, ok := getInt64(item, "originClientObjectId")
	if !ok {
		return row, ErrMissingField
	}
	row.OriginClientObjectID = objID

	if originID, ok := getInt64(item, "originClientId"); ok {
		row.OriginClientID = originID
	}

	if del, ok := item["deleted"].(bool); ok {
		row.Deleted = del
	}

	fields := make(map[string]any, len(d.Fields))
	for _, name := range d.Fields {
		if v, present := item[name]; present {
			fields[name] = v
		} else {
			fields[name] = nil
		}
	}
	row.Fields = fields

	return row, nil
}

// UpsertArgs returns the positional argument list matching UpsertStmt()'s
// placeholders: common columns (minus id, which the sequence assigns) in
// the same order as AllColumns(), then the class's domain fields.
func (d Descriptor) UpsertArgs(row Row) []any {
	args := []any{
		row.OriginClientID,
		row.OriginClientObjectID,
		row.LastUpdatedByClientID,
		row.OwnerUserID,
		row.LastSync,
		row.Deleted,
	}
	for _, name := range d.Fields {
		args = append(args, row.Fields[name])
	}
	return args
}

// ToWire renders a Row back into the map[string]any shape the response
// packer serializes for syncDown.
func (d Descriptor) ToWire(row Row) map[string]any {
	out := map[string]any{
		"rowid":                 row.ID,
		"originClientId":        row.OriginClientID,
		"originClientObjectId":  row.OriginClientObjectID,
		"lastUpdatedByClientId": row.LastUpdatedByClientID,
		"ownerUserId":           row.OwnerUserID,
		"lastSync":              row.LastSync,
		"deleted":               row.Deleted,
	}
	for _, name := range d.Fields {
		out[name] = row.Fields[name]
	}
	return out
}

func getInt64(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
