package cmd

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type mirrorList struct {
	Mirrors []string `yaml:"mirrors"`
}

// readMirrorList parses a YAML file of mirror URLs all serving the same
// resource. Every listed URL must be a usable http(s) URL; the download
// engine is handed one of them per connection.
func readMirrorList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mirror list: %w", err)
	}
	var list mirrorList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing mirror list: %w", err)
	}
	var mirrors []string
	for _, link := range list.Mirrors {
		if link == "" {
			continue
		}
		if !validDownloadURL(link) {
			return nil, fmt.Errorf("invalid mirror URL: %s", link)
		}
		mirrors = append(mirrors, link)
	}
	if len(mirrors) == 0 {
		return nil, fmt.Errorf("no mirror URLs found in %s", path)
	}
	return mirrors, nil
}
