package sharing

import (
	"encoding/json"
	"fmt"
)

// Encode serializes export data to the UTF-8 JSON wire form.
func Encode(data LocationExportData) ([]byte, error) {
	if data.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %d", data.Version)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export data: %w", err)
	}
	return payload, nil
}

// Decode parses and validates a peer's payload. Every failure wraps
// ErrMalformedExportData so callers can treat the import as a unit.
func Decode(payload []byte) (LocationExportData, error) {
	var data LocationExportData
	if err := json.Unmarshal(payload, &data); err != nil {
		return LocationExportData{}, fmt.Errorf("%w: %v", ErrMalformedExportData, err)
	}
	if data.Version != ExportVersion {
		return LocationExportData{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedExportData, data.Version)
	}
	for i, loc := range data.Locations {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return LocationExportData{}, fmt.Errorf("%w: location %d out of range", ErrMalformedExportData, i)
		}
	}
	return data, nil
}
