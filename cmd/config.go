package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/taskforge/taskforge/types"
)

const (
	configName = ".taskforge"
	envPrefix  = "TASKFORGE"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// validate is a single instance of Validate, it caches struct info
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(config *types.AppConfig) error {
	return validate.Struct(config)
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env file first if present; it's fine when there is none.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix) // e.g., TASKFORGE_VERBOSE
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // server.sharedSecret -> TASKFORGE_SERVER_SHAREDSECRET

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if cfgFileFlag != "" {
				fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	}

	viper.SetDefault("server.listenAddr", ":8000")
	viper.SetDefault("server.sharedSecret", "")

	viper.SetDefault("github.token", "")
	viper.SetDefault("github.apiBaseUrl", "https://api.github.com")

	viper.SetDefault("repos.basePath", "./all_repositories")

	viper.SetDefault("llm.modelName", "gpt-5-mini-2025-08-07")
	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("llm.apiUrl", "https://api.openai.com/v1/responses")
	viper.SetDefault("llm.maxOutputTokens", 16384)
	viper.SetDefault("llm.requestTimeoutSeconds", 240)
	viper.SetDefault("llm.maxContinuations", 5)
	viper.SetDefault("llm.continuationPauseMs", 1000)

	viper.SetDefault("round.timeoutSeconds", 600)
	viper.SetDefault("round.bufferSeconds", 30)
	viper.SetDefault("round.maxRepoCreateAttempts", 30)
	viper.SetDefault("round.pagesBuildWaitSeconds", 40)

	viper.SetDefault("notify.maxAttempts", 20)
	viper.SetDefault("notify.initialDelaySeconds", 1)
	viper.SetDefault("notify.backoffFactor", 2)
	viper.SetDefault("notify.timeoutSeconds", 10)

	viper.SetDefault("store.path", "tasks.db")

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}
}

// GetConfig returns the loaded application configuration.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}
