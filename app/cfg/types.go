package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	Port         string
	BaseUrl      string
	RulesDir     string
	RuleVersion  string
	APIAccessKey string

	// Pipeline limits
	SampleSize     int
	TimeoutSeconds int
	RedirectCap    int
	MaxFileMB      int

	// Background workers
	WorkerCount       int
	SchedulerInterval int
	RetentionDays     int

	// Abuse controls
	RateLimitPerMinute int
	Blocklist          string

	// Report delivery
	ShareableReports     bool
	ReportTTLDays        int
	DeliveryMode         string
	AttachCSV            bool
	EmailSubjectTemplate string
	EmailBodyTemplate    string
	SMTPHost             string
	SMTPPort             int
	SMTPFrom             string
	SMTPUser             string
	SMTPPassword         string
	WebhookURL           string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
