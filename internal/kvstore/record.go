// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RecordVersion is the schema version written into every stored record.
const RecordVersion = 1

// ErrUnsupportedVersion is returned when a record was written by a newer schema.
var ErrUnsupportedVersion = errors.New("unsupported record version")

// Header is embedded in every record stored as a value.
type Header struct {
	Version int `json:"v"`
}

// CurrentHeader returns a header for the current schema version.
func CurrentHeader() Header {
	return Header{Version: RecordVersion}
}

func (h Header) recordHeader() Header { return h }

// Record is implemented by every type embedding Header.
type Record interface {
	recordHeader() Header
}

// EncodeRecord serializes a record.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

// DecodeRecord deserializes data into rec. Records without a version are
// read as version 1.
func DecodeRecord(data []byte, rec Record) error {
	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	if v := rec.recordHeader().Version; v > RecordVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	return nil
}
