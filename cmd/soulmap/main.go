package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/internal/version"
	"github.com/hrygo/soulmap/server"
	"github.com/hrygo/soulmap/store"
	"github.com/hrygo/soulmap/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "soulmap",
	Short: `A journaling service that maps recurring people, emotions and themes into a personal knowledge graph.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile := newProfile()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		slog.SetDefault(server.NewLogger(instanceProfile, os.Stderr))

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			return fmt.Errorf("failed to create db driver: %w", err)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			_ = storeInstance.Close()
			return fmt.Errorf("failed to migrate: %w", err)
		}

		services, err := server.NewAIServices(instanceProfile)
		if err != nil {
			_ = storeInstance.Close()
			return err
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, services)
		if err != nil {
			_ = storeInstance.Close()
			return fmt.Errorf("failed to create server: %w", err)
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		// The default signal sent by the `kill` command is SIGTERM,
		// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		if err := s.Start(ctx); err != nil {
			s.Shutdown(ctx)
			return fmt.Errorf("failed to start server: %w", err)
		}

		printGreetings(instanceProfile)

		<-c
		s.Shutdown(context.WithoutCancel(ctx))
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("default-user", "default-user")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your soulmap instance")
	rootCmd.PersistentFlags().String("default-user", "default-user", "user id assumed when a request names none")
	rootCmd.PersistentFlags().String("weight-policy", profile.WeightPolicyLatest, `how a repeated edge updates its weight: "latest", "average" or "decay"`)
	rootCmd.PersistentFlags().Float64("decay-factor", 0.5, "blend factor of the decay weight policy, in (0, 1]")
	rootCmd.PersistentFlags().Float64("finish-rate-limit", 2, "sustained finish requests per second allowed per client")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url", "default-user", "weight-policy", "decay-factor", "finish-rate-limit"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("soulmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// newProfile merges environment-only settings with the flag and env values
// bound through viper, which take precedence.
func newProfile() *profile.Profile {
	p := &profile.Profile{}
	p.FromEnv()

	p.Mode = viper.GetString("mode")
	p.Addr = viper.GetString("addr")
	p.Port = viper.GetInt("port")
	p.Data = viper.GetString("data")
	p.Driver = viper.GetString("driver")
	p.DSN = viper.GetString("dsn")
	p.InstanceURL = viper.GetString("instance-url")
	p.DefaultUserID = viper.GetString("default-user")
	p.GraphWeightPolicy = viper.GetString("weight-policy")
	p.GraphDecayFactor = viper.GetFloat64("decay-factor")
	p.FinishRateLimit = viper.GetFloat64("finish-rate-limit")
	p.Version = version.GetCurrentVersion(p.Mode)
	return p
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Soulmap %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Graph weight policy: %s\n", p.GraphWeightPolicy)
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
		fmt.Printf("Accessing the API at http://localhost:%d/api/v1\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
		fmt.Printf("Accessing the API at http://%s:%d/api/v1\n", p.Addr, p.Port)
	}
}

func main() {
	// A missing .env file is fine: configuration then comes from the environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
