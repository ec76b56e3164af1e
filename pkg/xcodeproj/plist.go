package xcodeproj

import (
	"fmt"
	"os"

	"howett.net/plist"
)

// ReadPlist reads a property list file in any of the supported formats
func ReadPlist(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plist: %w", err)
	}
	return ParsePlist(data)
}

// ParsePlist decodes a property list with a dictionary at the top level
func ParsePlist(data []byte) (map[string]interface{}, error) {
	var info map[string]interface{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse plist: %w", err)
	}
	return info, nil
}

// WritePlist writes v as an XML property list
func WritePlist(path string, v interface{}) error {
	data, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("failed to marshal plist: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plist: %w", err)
	}
	return nil
}
