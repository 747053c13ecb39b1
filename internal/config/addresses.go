package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultAddressPath = "monitor_address.json"

// MonitorAddress is a named wallet checked by the batch balance command.
type MonitorAddress struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

type addressFile struct {
	Addresses []MonitorAddress `json:"addresses" yaml:"addresses"`
}

// LoadAddresses reads the address list, JSON or YAML by extension. Entries
// are returned in file order and are not validated here.
func LoadAddresses(path string) ([]MonitorAddress, error) {
	if path == "" {
		path = DefaultAddressPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s (make sure it exists in the current directory): %w", ErrConfig, path, err)
	}

	var f addressFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	return f.Addresses, nil
}
