package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"periodetl/internal/domain"
	"periodetl/internal/etl"
)

// EncodeRow serialises one row of values as a JSON array. The encoding is
// deterministic, so reloading identical rows yields byte-identical state.
func EncodeRow(values []any) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(data), nil
}

// DecodeRow is the inverse of EncodeRow, restoring each value to the type of
// its column.
func DecodeRow(data string, columns []domain.Column) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	if len(raw) != len(columns) {
		return nil, fmt.Errorf("decode row: %d values for %d columns", len(raw), len(columns))
	}
	for i, v := range raw {
		restored, err := etl.RestoreValue(v, columns[i].Type)
		if err != nil {
			return nil, fmt.Errorf("decode row: column %s: %w", columns[i].Name, err)
		}
		raw[i] = restored
	}
	return raw, nil
}

// EncodeColumns serialises a family schema.
func EncodeColumns(columns []domain.Column) (string, error) {
	data, err := json.Marshal(columns)
	if err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}
	return string(data), nil
}

// DecodeColumns is the inverse of EncodeColumns.
func DecodeColumns(data string) ([]domain.Column, error) {
	var columns []domain.Column
	if err := json.Unmarshal([]byte(data), &columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	return columns, nil
}
