package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSubscriptions reads every *.yml file in dir as one Subscription. A
// missing directory yields no subscriptions.
func LoadSubscriptions(dir string) ([]Subscription, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	sort.Strings(files)

	subs := make([]Subscription, 0, len(files))
	for _, file := range files {
		sub, err := parseSubscription(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Subscription loaded", "feed", sub.Name, "url", sub.URL, "enabled", sub.IsEnabled())

		subs = append(subs, *sub)
	}

	return subs, nil
}

func parseSubscription(file string) (*Subscription, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sub Subscription
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	sub.Name = strings.TrimSuffix(filepath.Base(file), ".yml")
	sub.URL = strings.TrimSpace(sub.URL)

	if sub.URL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}
	if !isHTTPURL(sub.URL) {
		return nil, fmt.Errorf("feed URL must be http(s): %s", sub.URL)
	}

	return &sub, nil
}
