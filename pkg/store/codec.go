package store

import (
	"encoding/json"
	"fmt"

	"conductor/pkg/model"
)

// List and map fields live in JSON text columns inside otherwise relational
// rows. Encoding and decoding happen only at this boundary; decode failures
// are corruption errors, not validation errors, because they indicate store
// damage (recovery path: rollback to a checkpoint).

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(table, rowID, column, raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, &model.CorruptionError{Table: table, RowID: rowID, Column: column, Err: err}
	}
	return values, nil
}

func encodeStringMap(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string map: %w", err)
	}
	return string(data), nil
}

func decodeStringMap(table, rowID, column, raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, &model.CorruptionError{Table: table, RowID: rowID, Column: column, Err: err}
	}
	return values, nil
}

func encodeFindings(findings []model.Finding) (string, error) {
	if findings == nil {
		findings = []model.Finding{}
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return "", fmt.Errorf("failed to encode findings: %w", err)
	}
	return string(data), nil
}

func decodeFindings(table, rowID, column, raw string) ([]model.Finding, error) {
	if raw == "" {
		return []model.Finding{}, nil
	}
	var findings []model.Finding
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return nil, &model.CorruptionError{Table: table, RowID: rowID, Column: column, Err: err}
	}
	return findings, nil
}

func encodeDecision(d *model.Decision) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode decision: %w", err)
	}
	return string(data), nil
}

func decodeDecision(table, rowID, raw string) (*model.Decision, error) {
	var d model.Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, &model.CorruptionError{Table: table, RowID: rowID, Column: "payload", Err: err}
	}
	return &d, nil
}
