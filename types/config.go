package types

// AppConfig represents the complete application configuration.
// It is populated once at process start (viper + env) and handed to each
// component at construction; business logic never reads the environment.
type AppConfig struct {
	Verbose bool         `mapstructure:"verbose"`
	Server  ServerConfig `mapstructure:"server" validate:"required"`
	GitHub  GitHubConfig `mapstructure:"github" validate:"required"`
	Repos   ReposConfig  `mapstructure:"repos" validate:"required"`
	LLM     LLMConfig    `mapstructure:"llm" validate:"required"`
	Round   RoundConfig  `mapstructure:"round" validate:"required"`
	Notify  NotifyConfig `mapstructure:"notify" validate:"required"`
	Store   StoreConfig  `mapstructure:"store" validate:"required"`
}

// ServerConfig holds HTTP intake settings.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr" validate:"required"`
	// SharedSecret authenticates task submissions. Its absence is a
	// server misconfiguration, reported as such to submitters.
	SharedSecret string `mapstructure:"sharedSecret"`
}

// GitHubConfig holds repository-host API settings.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	APIBaseURL string `mapstructure:"apiBaseUrl" validate:"required,url"`
}

// ReposConfig holds local checkout settings.
type ReposConfig struct {
	// BasePath is the directory under which every task checkout lives.
	BasePath string `mapstructure:"basePath" validate:"required"`
}

// LLMConfig holds completion-endpoint settings.
type LLMConfig struct {
	ModelName       string `mapstructure:"modelName" validate:"required,min=1"`
	APIKey          string `mapstructure:"apiKey"`
	APIURL          string `mapstructure:"apiUrl" validate:"required,url"`
	MaxOutputTokens int    `mapstructure:"maxOutputTokens" validate:"required,min=1"`
	// RequestTimeoutSeconds bounds a single completion call and doubles
	// as the controller's per-attempt time estimate.
	RequestTimeoutSeconds int `mapstructure:"requestTimeoutSeconds" validate:"required,min=5,max=600"`
	MaxContinuations      int `mapstructure:"maxContinuations" validate:"min=0,max=20"`
	ContinuationPauseMs   int `mapstructure:"continuationPauseMs" validate:"min=0"`
}

// RoundConfig holds the wall-clock budget and retry ceilings for round
// processing.
type RoundConfig struct {
	TimeoutSeconds        int `mapstructure:"timeoutSeconds" validate:"required,min=1"`
	BufferSeconds         int `mapstructure:"bufferSeconds" validate:"min=0"`
	MaxRepoCreateAttempts int `mapstructure:"maxRepoCreateAttempts" validate:"required,min=1"`
	// PagesBuildWaitSeconds is the fixed estimate for a static-hosting
	// build, slept before notifying when the budget allows.
	PagesBuildWaitSeconds int `mapstructure:"pagesBuildWaitSeconds" validate:"min=0"`
}

// NotifyConfig holds evaluation-callback retry settings.
type NotifyConfig struct {
	MaxAttempts         int     `mapstructure:"maxAttempts" validate:"required,min=1"`
	InitialDelaySeconds int     `mapstructure:"initialDelaySeconds" validate:"min=0"`
	BackoffFactor       float64 `mapstructure:"backoffFactor" validate:"required,min=1"`
	TimeoutSeconds      int     `mapstructure:"timeoutSeconds" validate:"required,min=1"`
}

// StoreConfig holds record-store settings.
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}
