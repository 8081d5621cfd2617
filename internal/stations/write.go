package stations

import (
	"encoding/json"
	"os"
)

// WriteFile writes records as indented JSON; map keys are sorted by encoding/json
func WriteFile(path string, records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
