package cfg

import "time"

type Cfg struct {
	// Sources and output
	FeedsFile    string
	FeedsJSON    string
	Output       string
	TemplatePath string
	Format       string

	// Aggregation
	Concurrency  int
	WaveDelay    time.Duration
	Timeout      time.Duration
	SortPolicy   string
	DateFallback string
	RecentWindow time.Duration

	// Preview server
	Serve             bool
	Port              string
	BaseUrl           string
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
