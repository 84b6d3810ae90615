package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cennso/sitegen/pkg/audit"
	"github.com/cennso/sitegen/pkg/build"
	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/content"
	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
	"github.com/cennso/sitegen/pkg/watch"
)

const version = "0.4.0"

const defaultConfigPath = "sitegen.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		runBuild(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "toc":
		runTOC(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("sitegen %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `sitegen - Static site builder with stable heading anchors

Usage:
  sitegen <command> [options]

Commands:
  build       Build the site once
  watch       Build, then rebuild when content changes
  toc         Print the table of contents of a Markdown file
  audit       Check headings and links of the built site
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'sitegen <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}
	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) (*config.AppConfig, error) {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	appWarnings, err := appCfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range appWarnings {
		log.Warn(w)
	}
	return appCfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second signal, or
// a shutdown that takes longer than 30s, exits the process.
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// runBuild handles the build subcommand
func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fresh := fs.Bool("fresh", false, "Discard the build cache and render every page")
	drafts := fs.Bool("drafts", false, "Include documents marked draft")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitegen build [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitegen build -config sitegen.yaml\n")
		fmt.Fprintf(os.Stderr, "  sitegen build -fresh -loglevel debug\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	ctx, stop := signalContext(log)
	exitCode := doBuild(ctx, *configFile, build.Options{Fresh: *fresh, IncludeDrafts: *drafts}, log)
	stop()
	os.Exit(exitCode)
}

// doBuild runs one build. Returns exit code (0 = success, 1 = error).
func doBuild(ctx context.Context, configFile string, opts build.Options, log *logrus.Logger) int {
	appCfg, err := loadAndValidateConfig(configFile, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	logAppConfig(appCfg, log)

	_, err = build.NewBuilder(appCfg, opts, log.WithField("site", appCfg.Site.Name)).Run(ctx)
	switch {
	case err == nil:
		log.Info("Build completed successfully.")
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Build cancelled.")
		return 1
	default:
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Build finished with error: %v", err)
		return 1
	}
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	interval := fs.String("interval", "", "Periodic rebuild interval (e.g., 30m, 1h, 1d); overrides watch.rebuild_interval")
	drafts := fs.Bool("drafts", false, "Include documents marked draft")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitegen watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sitegen watch\n")
		fmt.Fprintf(os.Stderr, "  sitegen watch -interval 1d -drafts\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	appCfg, err := loadAndValidateConfig(*configFile, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if *interval != "" {
		appCfg.Watch.RebuildInterval = *interval
	}

	entry := log.WithField("site", appCfg.Site.Name)
	builder := build.NewBuilder(appCfg, build.Options{IncludeDrafts: *drafts}, entry)
	watcher, err := watch.NewWatcher(appCfg, builder, entry)
	if err != nil {
		log.Fatalf("Invalid watch configuration: %v", err)
	}

	ctx, stop := signalContext(log)
	defer stop()
	if err := watcher.Run(ctx); err != nil {
		log.Fatalf("Watch error: %v", err)
	}
	log.Info("Watch mode stopped")
}

// runTOC handles the toc subcommand
func runTOC(args []string) {
	fs := flag.NewFlagSet("toc", flag.ExitOnError)
	format := fs.String("format", "tree", "Output format (tree, markdown, json)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitegen toc [options] [file]\n\nReads Markdown from file, or stdin when no file is given.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doTOC(fs.Arg(0), *format, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doTOC prints the table of contents of a Markdown document. Front matter is ignored.
// Returns exit code (0 = success, 1 = error).
func doTOC(path, format string, stdin io.Reader, stdout, stderr io.Writer) int {
	var raw []byte
	var err error
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, body, err := content.SplitFrontMatter(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	forest := toc.Build(string(body))

	switch format {
	case "tree":
		err = toc.WriteTree(stdout, forest)
	case "markdown", "md":
		err = toc.WriteMarkdown(stdout, forest)
	case "json":
		var data []byte
		if data, err = toc.MarshalJSON(forest); err == nil {
			_, err = fmt.Fprintln(stdout, string(data))
		}
	default:
		fmt.Fprintf(stderr, "Error: unknown format '%s' (supported: tree, markdown, json)\n", format)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runAudit handles the audit subcommand
func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	dir := fs.String("dir", "", "Built site directory (defaults to output_dir)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitegen audit [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doAudit(*configFile, *dir, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doAudit audits a built site and prints every violation.
// Returns exit code (0 = no errors, 1 = errors found or audit failed).
func doAudit(configPath, dir string, stdout, stderr io.Writer) int {
	if dir == "" {
		appCfg, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if _, err := appCfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		dir = appCfg.OutputDir
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	report, err := audit.New(logrus.NewEntry(logger)).Run(context.Background(), dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	violations := report.Violations
	sort.SliceStable(violations, func(i, j int) bool { return violations[i].Route < violations[j].Route })
	for _, v := range violations {
		fmt.Fprintf(stdout, "%s: [%s] %s: %s\n", severityLabel(v.Severity), v.Route, v.Rule, v.Message)
	}
	fmt.Fprintf(stdout, "\n%d pages checked, %d errors, %d warnings\n",
		report.PagesChecked, report.Count(audit.SeverityError), report.Count(audit.SeverityWarning))

	if report.HasErrors() {
		return 1
	}
	return 0
}

func severityLabel(sev audit.Severity) string {
	if sev == audit.SeverityError {
		return "ERROR"
	}
	return "WARN"
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sitegen validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	if appCfg.Watch.RebuildInterval != "" {
		if _, err := watch.ParseInterval(appCfg.Watch.RebuildInterval); err != nil {
			fmt.Fprintf(stderr, "ERROR: watch.rebuild_interval: %v\n", err)
			return 1
		}
	}

	keys := make([]string, 0, len(appCfg.Collections))
	for k := range appCfg.Collections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(stdout, "OK: [%s] %s\n", key, appCfg.Collections[key].PathPrefix)
	}

	fmt.Fprintf(stdout, "OK: Site '%s' (%s)\n", appCfg.Site.Name, appCfg.Site.BaseURL)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Site Config: Name:%s, BaseURL:%s, Title:'%s'",
		appCfg.Site.Name, appCfg.Site.BaseURL, appCfg.Site.Title)
	log.Infof("Global Config: Workers:%d, Cache:%t, ContentDir:%s, OutputDir:%s, StateDir:%s",
		appCfg.NumWorkers, appCfg.EnableCache, appCfg.ContentDir, appCfg.OutputDir, appCfg.StateDir)
	log.Infof("Global Config Render: UnsafeHTML:%t, Sanitize:%t",
		appCfg.Render.UnsafeHTML, appCfg.Render.Sanitize)
	log.Infof("Global Config Artifacts: Sitemap:%t, Robots:%t, LLMs:%t, Search:%t, Audit:%t",
		appCfg.Sitemap.Enabled, appCfg.Robots.Enabled, appCfg.LLMs.Enabled, appCfg.Search.Enabled, appCfg.Audit.Enabled)
}
