// Package collector pulls RSS and Atom feeds and stores their items as raw
// news records. The feed list lives in a YAML file:
//
//	feeds:
//	  - name: Example Wire
//	    url: https://wire.example/rss
package collector

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed is one configured source.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type feedsFile struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed list at path. Every entry needs a URL; a missing
// name defaults to the URL.
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feeds file: %w", err)
	}

	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing feeds file: %w", err)
	}

	out := make([]Feed, 0, len(f.Feeds))
	for i, feed := range f.Feeds {
		feed.URL = strings.TrimSpace(feed.URL)
		feed.Name = strings.TrimSpace(feed.Name)
		if feed.URL == "" {
			return nil, fmt.Errorf("feeds[%d]: url is required", i)
		}
		if feed.Name == "" {
			feed.Name = feed.URL
		}
		out = append(out, feed)
	}
	return out, nil
}
