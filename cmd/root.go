package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/puzzleimport/internal/utils"
	"github.com/sw33tLie/puzzleimport/pkg/puzzle"
	"github.com/sw33tLie/puzzleimport/pkg/whttp"
)

var cfgFile string

// envFiles are loaded from the working directory when present. Variables
// already set in the environment win.
var envFiles = []string{".env", ".env.local"}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "puzzleimport",
	Short: "Import product catalogs from spreadsheets into Puzzle projects.",
	Long: `puzzleimport reads a CSV or XLSX file describing groups and products,
compares it with an existing Puzzle project and creates or updates whatever
is missing or different. Nothing is ever deleted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.SetLogLevel(viper.GetString("loglevel")); err != nil {
			return withCode(exitUsage, err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		utils.Log.Error(err)
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.puzzleimport.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("api", "", "Puzzle GraphQL endpoint (default "+puzzle.DefaultAPI+")")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(exitUsage, err)
	})

	viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))
	viper.BindPFlag("http.proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	viper.BindPFlag("puzzle.api", rootCmd.PersistentFlags().Lookup("api"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := loadEnv(envFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env files: %s\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(exitUsage)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".puzzleimport")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".puzzleimport.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %s", err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("puzzle.api", puzzle.DefaultAPI)
	viper.SetDefault("puzzle.domain", "")
	viper.SetDefault("puzzle.username", "")
	viper.SetDefault("puzzle.password", "")
	viper.SetDefault("http.retries", whttp.DefaultRetries)
	viper.SetDefault("http.rps", whttp.DefaultRPS)
	viper.SetDefault("http.timeout", whttp.DefaultTimeout)
	viper.SetDefault("db.path", "")
}

// bindEnv maps the documented environment variables onto config keys.
func bindEnv() {
	viper.BindEnv("puzzle.api", "PUZZLE_API")
	viper.BindEnv("puzzle.domain", "PUZZLE_USER_DOMAIN")
	viper.BindEnv("puzzle.username", "PUZZLE_USERNAME")
	viper.BindEnv("puzzle.password", "PUZZLE_PASSWORD")
	viper.BindEnv("loglevel", "LOG_LEVEL")
	viper.BindEnv("db.path", "PUZZLEIMPORT_DB")

	viper.SetEnvPrefix("puzzleimport")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadEnv loads whichever of files exist and reports how many did.
func loadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}
