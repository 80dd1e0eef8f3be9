package postgres

import (
	"encoding/json"

	"github.com/jackc/pgtype"
)

// jsonb encodes v as a JSONB parameter. nil maps become '{}'.
func jsonb(v any) (pgtype.JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{Status: pgtype.Null}, err
	}
	return pgtype.JSONB{Bytes: b, Status: pgtype.Present}, nil
}

// fromJSONB decodes a scanned JSONB column into target. Null columns
// leave target untouched.
func fromJSONB(col pgtype.JSONB, target any) error {
	if col.Status != pgtype.Present {
		return nil
	}
	return json.Unmarshal(col.Bytes, target)
}
