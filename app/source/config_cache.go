package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/topic-harvest/app/urlnorm"
)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", sourceName, "enabled", config.Settings.Enabled, "method", config.Method)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	configFile := cc.getConfigFilePath(sourceName)
	sourceConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	sourceConfig.Name = sourceName

	if err := cc.validateConfig(sourceConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceConfig.Name] = sourceConfig

	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourceConfig, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled && !v.Settings.Blacklisted {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Remove drops a source from the cache. The YAML file is left in place.
func (cc *ConfigCache) Remove(sourceName string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.cache, sourceName)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig Config
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourceConfig.Method == "" {
		sourceConfig.Method = MethodAuto
	}
	sourceConfig.Method = strings.ToLower(sourceConfig.Method)
	sourceConfig.Domain = strings.ToLower(strings.TrimSpace(sourceConfig.Domain))

	if sourceConfig.Domain == "" && sourceConfig.HomepageURL != "" {
		if u, err := url.Parse(sourceConfig.HomepageURL); err == nil {
			sourceConfig.Domain = strings.ToLower(u.Hostname())
		}
	}

	settings := &sourceConfig.Settings
	if settings.ScrapeFrequencyHours == 0 {
		settings.ScrapeFrequencyHours = 6
	}
	if settings.TrustedMaxAgeDays == 0 {
		settings.TrustedMaxAgeDays = 7
	}
	if settings.RecheckWindowHours == 0 {
		settings.RecheckWindowHours = 72
	}

	return &sourceConfig, nil
}

func (cc *ConfigCache) validateConfig(sourceConfig *Config) error {
	if sourceConfig == nil {
		return fmt.Errorf("sourceConfig is nil")
	}

	requiredFields := map[string]string{
		"source name": sourceConfig.Name,
		"domain":      sourceConfig.Domain,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	urlFields := map[string]string{
		"feed URL":     sourceConfig.FeedURL,
		"homepage URL": sourceConfig.HomepageURL,
	}
	for i, listing := range sourceConfig.ListingURLs {
		urlFields[fmt.Sprintf("listing URL %d", i)] = listing
	}

	for fieldName, fieldValue := range urlFields {
		if fieldValue == "" {
			continue
		}
		if _, err := urlnorm.Normalize(fieldValue); err != nil {
			return fmt.Errorf("%s: %w", fieldName, err)
		}
	}

	nonNegativeFields := map[string]int{
		"scrape frequency":     sourceConfig.Settings.ScrapeFrequencyHours,
		"max candidates":       sourceConfig.Settings.MaxCandidates,
		"trusted max age days": sourceConfig.Settings.TrustedMaxAgeDays,
		"recheck window hours": sourceConfig.Settings.RecheckWindowHours,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	validMethods := map[string]bool{
		MethodAuto:      true,
		MethodRSS:       true,
		MethodHTML:      true,
		MethodSitemap:   true,
		MethodHeuristic: true,
	}

	if !validMethods[sourceConfig.Method] {
		return fmt.Errorf("invalid scraping method: %s", sourceConfig.Method)
	}

	validFields := map[string]bool{
		"title":   true,
		"summary": true,
		"content": true,
		"author":  true,
		"link":    true,
	}

	for i, filter := range sourceConfig.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}
