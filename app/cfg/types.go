package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Fetching
	UserAgents           []string
	FetchTimeout         time.Duration
	InterRequestDelay    time.Duration
	MaxConcurrentFetches int
	MaxBodyBytes         int64

	// Discovery and quality gates
	MaxCandidates             int
	SitemapWindowDays         int
	MinWordCountHardFail      int
	MinWordCountQualityTarget int
	MaxWordCount              int
	DuplicateThreshold        float64

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
