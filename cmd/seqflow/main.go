// seqflow plans and executes sequencing analysis pipelines: one sample
// in, one experiment-dependent output bundle out.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/seqflow/internal/branch"
	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/engine"
	"github.com/me/seqflow/internal/executor"
	"github.com/me/seqflow/internal/infer"
	"github.com/me/seqflow/internal/logging"
	"github.com/me/seqflow/internal/parser"
	"github.com/me/seqflow/internal/server"
	"github.com/me/seqflow/internal/stager"
	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

var (
	logLevel  string
	logFormat string

	outDir           string
	outURI           string
	noContainer      bool
	maxJobs          int
	strandednessTool string
	encodingTool     string

	addr         string
	dbPath       string
	pipelinesDir string
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "seqflow",
		Short:   "Sequencing pipeline runner",
		Version: version,
		Long: `seqflow executes conditional sequencing pipelines against one sample.

Examples:
  # Run a pipeline against a sample
  seqflow run pipelines/sample-qc.yaml sample.yaml

  # Validate a pipeline document, optionally against a sample
  seqflow validate pipelines/sample-qc.yaml sample.yaml

  # Print the step DAG
  seqflow dag pipelines/sample-qc.yaml

  # Serve the REST API
  seqflow serve --pipelines ./pipelines
`,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(dagCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return logging.New(logging.ParseLevel(logLevel), logFormat)
}

func addExecFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outDir, "outdir", "./seqflow-output", "Directory for task work dirs and staged inputs")
	cmd.Flags().StringVar(&outURI, "out", "", "Stage-out destination for bundle files (e.g. s3://bucket/prefix)")
	cmd.Flags().BoolVar(&noContainer, "no-container", false, "Run every task locally, ignoring images")
	cmd.Flags().IntVarP(&maxJobs, "jobs", "j", 0, "Maximum concurrent tasks (default: number of CPUs)")
	cmd.Flags().StringVar(&strandednessTool, "strandedness-tool", "check_strandedness", "Command used to infer strandedness when the sample omits it")
	cmd.Flags().StringVar(&encodingTool, "encoding-tool", "guess_encoding", "Command used to infer quality encoding when the sample omits it")
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline-file> <sample-file>",
		Short: "Execute a pipeline against one sample",
		Args:  cobra.ExactArgs(2),
		RunE:  runExecute,
	}
	addExecFlags(cmd)
	return cmd
}

func runExecute(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	pl, err := parser.New(logger).ParseFile(args[0])
	if err != nil {
		return err
	}
	sample, err := loadSample(args[1])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, cancelling...")
		cancel()
	}()

	st, err := buildStager(ctx, sample)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create outdir: %w", err)
	}
	if err := stager.StageSampleInputs(ctx, st, sample, outDir); err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Logger:    logger,
		Registry:  buildRegistry(logger),
		MaxJobs:   jobLimit(),
		Resolvers: defaultResolvers(),
	})

	inv, err := eng.Execute(ctx, pl, sample)
	if err != nil {
		return err
	}

	if outURI != "" {
		if err := stageOutBundle(ctx, st, inv); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(inv.Outputs)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline-file> [sample-file]",
		Short: "Validate a pipeline document, optionally against a sample",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			pl, err := parser.New(logger).ParseFile(args[0])
			if err != nil {
				return err
			}
			if apiErr := parser.NewValidator(logger).Validate(pl); apiErr != nil {
				return apiErr
			}
			if len(args) > 1 {
				sample, err := loadSample(args[1])
				if err != nil {
					return err
				}
				if apiErr := branch.NewSelector(logger).Validate(pl, sample); apiErr != nil {
					return apiErr
				}
			}
			fmt.Println("Document is valid")
			return nil
		},
	}
}

func dagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dag <pipeline-file>",
		Short: "Print the step DAG as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			pl, err := parser.New(logger).ParseFile(args[0])
			if err != nil {
				return err
			}
			dag, err := parser.BuildDAG(pl)
			if err != nil {
				return err
			}

			out := struct {
				Pipeline string              `json:"pipeline"`
				Order    []string            `json:"order"`
				Edges    map[string][]string `json:"edges,omitempty"`
			}{pl.Name, dag.Order, dag.Edges}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the seqflow REST API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default ~/.seqflow/seqflow.db)")
	cmd.Flags().StringVar(&pipelinesDir, "pipelines", "./pipelines", "Directory of pipeline documents to serve")
	addExecFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := config.DefaultServerConfig()
	cfg.Addr = addr
	cfg.LogLevel = logLevel
	cfg.LogFormat = logFormat
	cfg.OutDir = outDir
	cfg.MaxJobs = maxJobs

	path := dbPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir := filepath.Join(home, ".seqflow")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		path = filepath.Join(dir, "seqflow.db")
	}

	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", path)

	pipelines, err := loadPipelines(logger, pipelinesDir)
	if err != nil {
		return err
	}
	if len(pipelines) == 0 {
		logger.Warn("no pipeline documents found", "dir", pipelinesDir)
	}

	eng := engine.New(engine.Config{
		Logger:    logger,
		Registry:  buildRegistry(logger),
		MaxJobs:   jobLimit(),
		Resolvers: defaultResolvers(),
		Recorder:  store.Recorder{S: st},
	})

	srv := server.New(cfg, st, eng, pipelines, logger)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "pipelines", len(pipelines))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildRegistry(logger *slog.Logger) *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register(executor.NewLocalExecutor(outDir, logger))
	reg.Register(executor.NewDockerExecutor(outDir, logger))
	if noContainer {
		reg.ForceLocal()
	}
	return reg
}

func jobLimit() int {
	if maxJobs > 0 {
		return maxJobs
	}
	return runtime.NumCPU()
}

// defaultResolvers binds the provided-or-inferred sample properties to
// their inference tools. Strandedness only matters on the RNA-Seq
// branch; quality encoding on the DNA branch.
func defaultResolvers() []engine.ResolverBinding {
	return []engine.ResolverBinding{
		{
			Resolver: infer.NewResolver("strandedness", model.StrandednessValues,
				infer.CommandInference(strandednessTool, "--gtf", "{gtf}", "--reads", "{reads}")),
			Branches: []string{branch.TagRNASeq},
		},
		{
			Resolver: infer.NewResolver("encoding", model.EncodingValues,
				infer.CommandInference(encodingTool, "{reads}")),
			Branches: []string{branch.TagDNA},
		},
	}
}

func loadSample(path string) (*model.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sample %s: %w", path, err)
	}
	var sample model.Sample
	if err := yaml.Unmarshal(data, &sample); err != nil {
		return nil, fmt.Errorf("parse sample %s: %w", path, err)
	}
	return &sample, nil
}

func loadPipelines(logger *slog.Logger, dir string) (map[string]*pipeline.Pipeline, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	more, _ := filepath.Glob(filepath.Join(dir, "*.yml"))
	paths = append(paths, more...)
	sort.Strings(paths)

	p := parser.New(logger)
	v := parser.NewValidator(logger)
	pipelines := make(map[string]*pipeline.Pipeline, len(paths))
	for _, path := range paths {
		pl, err := p.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if apiErr := v.Validate(pl); apiErr != nil {
			return nil, fmt.Errorf("validate %s: %w", path, apiErr)
		}
		pipelines[pl.Name] = pl
		logger.Info("pipeline loaded", "name", pl.Name, "path", path)
	}
	return pipelines, nil
}

// buildStager wires an S3-backed stager only when the sample or the
// stage-out destination actually references s3://.
func buildStager(ctx context.Context, sample *model.Sample) (stager.Stager, error) {
	outScheme, _ := stager.ParseScheme(outURI)
	needsS3 := outScheme == stager.SchemeS3
	for _, f := range sample.Files {
		if scheme, _ := stager.ParseScheme(f.Location); scheme == stager.SchemeS3 {
			needsS3 = true
			break
		}
	}
	if !needsS3 {
		return stager.NewFileStager(outURI), nil
	}

	s3OutURI := ""
	if outScheme == stager.SchemeS3 {
		s3OutURI = outURI
	}
	s3st, err := stager.NewS3Stager(ctx, s3OutURI)
	if err != nil {
		return nil, fmt.Errorf("configure s3 staging: %w", err)
	}

	// Stage-out goes through the fallback; pick it by destination.
	fallback := stager.Stager(stager.NewFileStager(outURI))
	if outScheme == stager.SchemeS3 {
		fallback = s3st
	}
	return stager.NewCompositeStager(map[string]stager.Stager{stager.SchemeS3: s3st}, fallback), nil
}

// stageOutBundle uploads local bundle files to the stage-out
// destination and rewrites the bundle entries to their new locations.
func stageOutBundle(ctx context.Context, st stager.Stager, inv *model.Invocation) error {
	for name, v := range inv.Outputs {
		path, ok := v.(string)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		location, err := st.StageOut(ctx, path, inv.ID)
		if err != nil {
			return fmt.Errorf("stage out %s: %w", name, err)
		}
		inv.Outputs[name] = location
	}
	return nil
}
