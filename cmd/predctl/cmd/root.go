package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	masterURL    string
	outputFormat string
	cfgFile      string
	actorID      string
	actorRole    string
	token        string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "predctl",
	Short: "CLI for the prediction job marketplace",
	Long:  `predctl is a command line interface for submitting, tracking, and working prediction jobs in the marketplace.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.predctl/config)")
	rootCmd.PersistentFlags().StringVar(&masterURL, "master", "", "marketplace API URL (default from config or http://localhost:8090)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "caller identity (default from config or PREDCTL_ACTOR env var)")
	rootCmd.PersistentFlags().StringVar(&actorRole, "role", "client", "caller role: client, evaluator, admin")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default from config or MARKETPLACE_TOKEN env var)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".predctl")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.BindEnv("token", "MARKETPLACE_TOKEN")
	viper.BindEnv("master_url", "MARKETPLACE_URL")
	viper.BindEnv("actor", "PREDCTL_ACTOR")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetString("master_url") != "" && masterURL == "" {
			masterURL = viper.GetString("master_url")
		}
	}

	if token == "" && viper.GetString("token") != "" {
		token = viper.GetString("token")
	}
	if actorID == "" && viper.GetString("actor") != "" {
		actorID = viper.GetString("actor")
	}
	if masterURL == "" && viper.GetString("master_url") != "" {
		masterURL = viper.GetString("master_url")
	}
	if masterURL == "" {
		masterURL = "http://localhost:8090"
	}
}

// GetMasterURL returns the configured marketplace URL with trailing slashes removed
func GetMasterURL() string {
	return strings.TrimRight(masterURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// GetHTTPClient returns the shared HTTP client
func GetHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// CreateAuthenticatedRequest creates an HTTP request carrying the caller
// identity and bearer token
func CreateAuthenticatedRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}

	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
		req.Header.Set("X-Actor-Role", actorRole)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}
