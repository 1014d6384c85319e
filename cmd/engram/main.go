// Command engram runs the Engram governance and retrieval-fusion kernel:
// schema migration, capability-token gating, dual retrieval, and the HTTP
// API in front of a local memory store.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ashish-dwi99/Engram-sub002/internal/api"
	"github.com/Ashish-dwi99/Engram-sub002/internal/auth"
	"github.com/Ashish-dwi99/Engram-sub002/internal/config"
	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/retrieval"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Engram governance and retrieval-fusion kernel",
	Long: `Engram sits in front of a personal memory store and fuses semantic and
episodic retrieval signals into one ranked, provenance-tagged,
token-bounded answer set, while enforcing caller trust and evolving the
store schema safely over time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Opens the store, applies any pending governance schema migrations, and
serves the retrieval and session API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(true, true)
		if err != nil {
			return err
		}
		defer st.Close()

		gate := auth.NewGate(cfg.Trust.ExtraHosts)
		sessions := auth.NewSessionManager(st, cfg.GetSessionTTL())
		engine := retrieval.NewEngine(st, st, retrieval.EngineOptions{
			BoostWeight: cfg.Retrieval.BoostWeight,
			BoostCap:    cfg.Retrieval.BoostCap,
			MaxTokens:   cfg.Retrieval.MaxTokens,
			MaxItems:    cfg.Retrieval.MaxItems,
		})
		server := api.NewServer(cfg, st, engine, gate, sessions)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.ListenAndServe(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending governance schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, _ := cmd.Flags().GetBool("bootstrap")
		st, err := openStore(bootstrap, false)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := st.Extend()
		if err != nil {
			return err
		}
		fmt.Printf("applied %d migration(s), skipped %d, took %s\n",
			len(result.Applied), result.Skipped, result.Duration)
		for _, v := range result.Applied {
			fmt.Printf("  %s\n", v)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a dual retrieval search against the local store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(true, true)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := retrieval.NewEngine(st, st, retrieval.EngineOptions{
			BoostWeight: cfg.Retrieval.BoostWeight,
			BoostCap:    cfg.Retrieval.BoostCap,
			MaxTokens:   cfg.Retrieval.MaxTokens,
			MaxItems:    cfg.Retrieval.MaxItems,
		})
		resp, err := engine.Search(retrieval.Request{
			Query:  args[0],
			UserID: userID,
			Limit:  limit,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Store a memory in the local store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		agentID, _ := cmd.Flags().GetString("agent")

		st, err := openStore(true, true)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.AddMemory(userID, agentID, args[0], nil)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

// openStore opens the configured database, optionally bootstrapping the
// base tables and bringing the governance schema up to date.
func openStore(bootstrap, extend bool) (*store.Store, error) {
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}
	if bootstrap {
		if err := st.Bootstrap(); err != nil {
			st.Close()
			return nil, err
		}
	}
	if extend {
		if _, err := st.Extend(); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "engram.yaml", "path to config file")

	migrateCmd.Flags().Bool("bootstrap", false, "create base memory/scene tables before migrating")
	searchCmd.Flags().String("user", "default", "user id to search as")
	searchCmd.Flags().Int("limit", 10, "maximum results")
	addCmd.Flags().String("user", "default", "user id to store under")
	addCmd.Flags().String("agent", "", "agent id responsible for the write")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(addCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
