package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"
	"gopkg.in/yaml.v3"

	"bidforge/internal/config"
	"bidforge/internal/db"
	"bidforge/internal/engine"
	"bidforge/internal/llm"
	"bidforge/internal/migrate"
	"bidforge/internal/poller"
	"bidforge/internal/queue"
	"bidforge/internal/repo"
	"bidforge/internal/server"
	bidforgesdk "bidforge/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "bf",
	Short: "Bidforge CLI",
	Long: `Bidforge generates bid proposals for competitive tenders.
Core concepts:
- Workspace: the directory holding bidforge.yml and the .bidforge database.
- Pipeline: research -> three strategy drafts -> critique -> write -> humanize.
- Strategies: Safe, Innovative and Disruptive positions drafted in parallel.
- Critic: scores each draft 0-10; 8.5 or above is an ACCEPT.
- Jobs: 'bf job dispatch' starts a background run on the server; poll it with
  'bf job status' or 'bf job wait', then read it with 'bf proposal show'.
- Generate: 'bf generate' drives the whole flow interactively with progress.
- Event log: diary of job transitions, view with 'bf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BIDFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "bidforge API base URL")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(creditsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			client := modelClient(cfg, log)
			q := queue.New(workers, 64, log)
			e := engine.New(conn, cfg, client, q, log)

			if addr == "" {
				addr = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
				q.Shutdown(ctx)
			}()
			log.Info("serving bidforge API", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 4, "background job workers")
	return cmd
}

// modelClient builds the OpenAI client, or a disabled stand-in when no key is
// set so the pipeline runs on its mock fallbacks.
func modelClient(cfg *config.Config, log *slog.Logger) llm.Client {
	client, err := llm.NewOpenAIClient(cfg.LLM.Model)
	if err != nil {
		log.Warn("language model unavailable, stages will use mock fallbacks", "err", err)
		return llm.Disabled{Err: err}
	}
	return client
}

func generateCmd() *cobra.Command {
	var projectName, clientName, rfpFile string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a proposal end to end with progress output",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectName == "" || clientName == "" {
				return fmt.Errorf("--project and --client required")
			}
			rfpText, err := readRFP(rfpFile)
			if err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			client := bidforgesdk.New(viper.GetString("server"))
			p := poller.New(client, poller.Options{
				Interval:       cfg.Poller.Interval,
				MaxAttempts:    cfg.Poller.MaxAttempts,
				DraftRateEvery: cfg.Poller.DraftRateEvery,
				Progress:       printProgress,
			})
			out, runErr := p.Run(cmd.Context(), projectName, clientName, rfpText)
			if viper.GetBool("json") {
				if err := printJSON(out); err != nil {
					return err
				}
				return runErr
			}
			for i, d := range out.Drafts {
				fmt.Printf("\n--- %s ---\n%s\n", d.StrategyName, d.ExecutiveSummary)
				if i < len(out.Critiques) {
					c := out.Critiques[i]
					fmt.Printf("    score %.1f (%s)\n", c.Score, c.Status)
				}
			}
			if out.Selected.StrategyName != "" {
				fmt.Printf("\nselected strategy: %s\n", out.Selected.StrategyName)
			}
			if out.Fallback {
				fmt.Println("\ngeneration failed, static template substituted:")
			}
			fmt.Printf("\n%s\n", out.Proposal)
			return runErr
		},
	}
	cmd.Flags().StringVar(&projectName, "project", "", "project name")
	cmd.Flags().StringVar(&clientName, "client", "", "client organisation name")
	cmd.Flags().StringVar(&rfpFile, "rfp-file", "", "path to RFP text ('-' for stdin)")
	return cmd
}

func printProgress(stage, detail string) {
	if detail != "" {
		fmt.Printf("[%s] %s\n", stage, detail)
		return
	}
	fmt.Printf("[%s]\n", stage)
}

func readRFP(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage generation jobs"}
	job.AddCommand(jobDispatchCmd())
	job.AddCommand(jobStatusCmd())
	job.AddCommand(jobWaitCmd())
	job.AddCommand(jobListCmd())
	return job
}

func jobDispatchCmd() *cobra.Command {
	var projectName, clientName, rfpFile, owner string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Start a background generation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectName == "" || clientName == "" {
				return fmt.Errorf("--project and --client required")
			}
			rfpText, err := readRFP(rfpFile)
			if err != nil {
				return err
			}
			client := bidforgesdk.New(viper.GetString("server"))
			jobID, err := client.Dispatch(cmd.Context(), projectName, clientName, rfpText, optionalString(owner))
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]string{"job_id": jobID})
		},
	}
	cmd.Flags().StringVar(&projectName, "project", "", "project name")
	cmd.Flags().StringVar(&clientName, "client", "", "client organisation name")
	cmd.Flags().StringVar(&rfpFile, "rfp-file", "", "path to RFP text ('-' for stdin)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id for credit accounting")
	return cmd
}

func jobStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := bidforgesdk.New(viper.GetString("server"))
			job, err := client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOrTable(job)
		},
	}
	return cmd
}

func jobWaitCmd() *cobra.Command {
	var interval time.Duration
	var maxAttempts int
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it reaches a terminal state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := bidforgesdk.New(viper.GetString("server"))
			last := ""
			for attempt := 0; attempt < maxAttempts; attempt++ {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job.Status != last {
					last = job.Status
					if !viper.GetBool("json") {
						fmt.Printf("[%s]\n", job.Status)
					}
				}
				if job.Status == "complete" || job.Status == "failed" {
					return printJSONOrTable(job)
				}
				t := time.NewTimer(interval)
				select {
				case <-cmd.Context().Done():
					t.Stop()
					return cmd.Context().Err()
				case <-t.C:
				}
			}
			return poller.ErrTimeout
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "polling interval")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 60, "polling attempt ceiling")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status, owner string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListJobs(ctx, repo.JobFilters{Status: status, OwnerID: owner, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Owner", "Created", "Updated"})
				for _, j := range items {
					jobOwner := ""
					if j.OwnerID != nil {
						jobOwner = *j.OwnerID
					}
					tw.AppendRow(table.Row{j.ID, j.Status, jobOwner, j.CreatedAt, j.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().IntVar(&limit, "n", 50, "maximum rows")
	return cmd
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{Use: "proposal", Short: "Read finished proposals"}
	prop.AddCommand(proposalShowCmd())
	return prop
}

func proposalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the proposal for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := bidforgesdk.New(viper.GetString("server"))
			p, err := client.GetProposal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(p)
			}
			fmt.Printf("%s for %s (%s strategy)\n\n%s\n", p.ProjectName, p.ClientName, p.StrategyName, p.Body)
			return nil
		},
	}
	return cmd
}

func creditsCmd() *cobra.Command {
	cr := &cobra.Command{Use: "credits", Short: "Manage owner credit balances"}
	cr.AddCommand(creditsGrantCmd())
	cr.AddCommand(creditsShowCmd())
	return cr
}

func creditsGrantCmd() *cobra.Command {
	var owner string
	var amount int
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant credits to an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.GrantCredits(ctx, owner, amount); err != nil {
					return err
				}
				bal, err := r.GetCredits(ctx, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(bal)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().IntVar(&amount, "amount", 10, "credits to add")
	return cmd
}

func creditsShowCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an owner's balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				bal, err := r.GetCredits(ctx, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(bal)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, truncate(e.Payload, 60)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in bidforge.yml: model and stage temperatures, workflow iteration policy, poller timings and server address.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default bidforge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// truncate shortens s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
