package mcclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// Records holds the JSON documents printed by one mc invocation, one per line, in output order.
type Records []json.RawMessage

// ParseRecords splits mc --json output into records. Blank lines are skipped.
// A line that is not a JSON document fails the whole parse.
func ParseRecords(out []byte) (Records, error) {
	records := Records{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: line %d is not valid json", ErrMalformedOutput, line)
		}
		records = append(records, json.RawMessage(append([]byte(nil), raw...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	return records, nil
}

// Decode unmarshals every record into T.
func Decode[T any](records Records) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, raw := range records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedOutput, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
