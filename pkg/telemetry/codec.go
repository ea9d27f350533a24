package telemetry

import (
	"encoding/json"
	"time"
)

const timestampLayout = time.RFC3339Nano

func marshalItem(doc *cosmosDocument) ([]byte, error) {
	return json.Marshal(doc)
}

func unmarshalItem(data []byte, doc *cosmosDocument) error {
	return json.Unmarshal(data, doc)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timestampLayout, s)
}
