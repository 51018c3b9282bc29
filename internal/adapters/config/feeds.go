package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/errors"
)

// panicGateBelow highlights the panic card while open interest is under 9.2e9 (92亿)
const panicGateBelow = 9.2e9

type feedsFile struct {
	Feeds []signal.FeedSource `yaml:"feeds"`
}

// DefaultFeeds returns the baked-in feed sources. A FEEDS_FILE, when set,
// replaces them entirely.
func (c FeedsConfig) DefaultFeeds() ([]signal.FeedSource, error) {
	if c.File != "" {
		return LoadFeedsFile(c.File)
	}

	return []signal.FeedSource{
		{
			ID:                     "panic",
			URL:                    c.PanicURL,
			RefreshIntervalSeconds: seconds(c.PanicInterval),
			Kind:                   signal.FeedKindMetric,
			Gate:                   &signal.Gate{Field: signal.FieldTotalPosition, Below: panicGateBelow},
		},
		{
			ID:                     "query",
			URL:                    c.QueryURL,
			RefreshIntervalSeconds: seconds(c.QueryInterval),
			Kind:                   signal.FeedKindEvents,
		},
	}, nil
}

// LoadFeedsFile reads a YAML document of the form `feeds: [...]`
func LoadFeedsFile(path string) ([]signal.FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read feeds file %s", path)
	}

	var doc feedsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse feeds file %s", path)
	}
	if len(doc.Feeds) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "feeds file %s defines no feeds", path)
	}

	for i := range doc.Feeds {
		if doc.Feeds[i].Kind == "" {
			doc.Feeds[i].Kind = signal.FeedKindEvents
		}
	}
	return doc.Feeds, nil
}

func seconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
