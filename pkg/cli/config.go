package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/sightline/pkg/adapter"
	"github.com/m-mizutani/sightline/pkg/analyze"
	"github.com/m-mizutani/sightline/pkg/recall"
	"github.com/m-mizutani/sightline/pkg/repository"
	"github.com/m-mizutani/sightline/pkg/suggest"
	"github.com/m-mizutani/sightline/pkg/tracker"
	"github.com/m-mizutani/sightline/pkg/usecase/observe"
	"github.com/m-mizutani/sightline/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Local state
	journalPath string
	eventsPath  string
	trackerPath string
	policyDir   string
	configPath  string
	logLevel    string

	// Adapters
	geminiAPIKey string
	geminiModel  string

	// Tuning
	maxEntries int64
	window     int64
	limit      int64
	minScore   float64
	stuckCount int64

	appWeight      float64
	activityWeight float64
	textWeight     float64
}

// fileConfig mirrors the optional YAML config file. All fields are
// pointers so an absent key is distinguishable from a zero value; file
// values never override what flags or environment variables already set
// away from the defaults.
type fileConfig struct {
	Journal    *string  `yaml:"journal"`
	Events     *string  `yaml:"events"`
	Tracker    *string  `yaml:"tracker"`
	PolicyDir  *string  `yaml:"policy_dir"`
	LogLevel   *string  `yaml:"log_level"`
	APIKey     *string  `yaml:"gemini_api_key"`
	Model      *string  `yaml:"gemini_model"`
	MaxEntries *int64   `yaml:"max_entries"`
	Window     *int64   `yaml:"window"`
	Limit      *int64   `yaml:"limit"`
	MinScore   *float64 `yaml:"min_score"`
	StuckCount *int64   `yaml:"stuck_count"`
	Weights    *struct {
		App      *float64 `yaml:"app"`
		Activity *float64 `yaml:"activity"`
		Text     *float64 `yaml:"text"`
	} `yaml:"weights"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "journal",
			Aliases:     []string{"j"},
			Usage:       "Path to the observation journal file",
			Value:       "sightline.json",
			Sources:     cli.EnvVars("SIGHTLINE_JOURNAL"),
			Destination: &cfg.journalPath,
		},
		&cli.StringFlag{
			Name:        "events",
			Usage:       "Path to the event log file (empty to disable)",
			Value:       "sightline_events.json",
			Sources:     cli.EnvVars("SIGHTLINE_EVENTS"),
			Destination: &cfg.eventsPath,
		},
		&cli.StringFlag{
			Name:        "tracker",
			Usage:       "Path to the progress tracker file (empty to disable)",
			Sources:     cli.EnvVars("SIGHTLINE_TRACKER"),
			Destination: &cfg.trackerPath,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory with custom suggestion rules (Rego)",
			Sources:     cli.EnvVars("SIGHTLINE_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config file",
			Sources:     cli.EnvVars("SIGHTLINE_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("SIGHTLINE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (fallback heuristics are used without it)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for screen analysis",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("SIGHTLINE_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// tuningFlags returns flags for recall and policy parameters
func tuningFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-entries",
			Usage:       "Journal retention cap",
			Value:       repository.DefaultMaxEntries,
			Sources:     cli.EnvVars("SIGHTLINE_MAX_ENTRIES"),
			Destination: &cfg.maxEntries,
		},
		&cli.IntFlag{
			Name:        "window",
			Usage:       "How many recent observations recall considers",
			Value:       recall.DefaultWindow,
			Sources:     cli.EnvVars("SIGHTLINE_WINDOW"),
			Destination: &cfg.window,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum similar observations to return",
			Value:       recall.DefaultLimit,
			Sources:     cli.EnvVars("SIGHTLINE_LIMIT"),
			Destination: &cfg.limit,
		},
		&cli.FloatFlag{
			Name:        "min-score",
			Usage:       "Similarity threshold (exclusive)",
			Value:       recall.DefaultMinScore,
			Sources:     cli.EnvVars("SIGHTLINE_MIN_SCORE"),
			Destination: &cfg.minScore,
		},
		&cli.IntFlag{
			Name:        "stuck-count",
			Usage:       "Consecutive same-app observations before a nudge",
			Value:       suggest.DefaultStuckCount,
			Sources:     cli.EnvVars("SIGHTLINE_STUCK_COUNT"),
			Destination: &cfg.stuckCount,
		},
		&cli.FloatFlag{
			Name:        "app-weight",
			Usage:       "Similarity weight of an app match",
			Value:       0.4,
			Sources:     cli.EnvVars("SIGHTLINE_APP_WEIGHT"),
			Destination: &cfg.appWeight,
		},
		&cli.FloatFlag{
			Name:        "activity-weight",
			Usage:       "Similarity weight of an activity match",
			Value:       0.3,
			Sources:     cli.EnvVars("SIGHTLINE_ACTIVITY_WEIGHT"),
			Destination: &cfg.activityWeight,
		},
		&cli.FloatFlag{
			Name:        "text-weight",
			Usage:       "Similarity weight of suggestion text overlap",
			Value:       0.3,
			Sources:     cli.EnvVars("SIGHTLINE_TEXT_WEIGHT"),
			Destination: &cfg.textWeight,
		},
	}
}

// commonFlags bundles the flag groups every command takes.
func commonFlags(cfg *config) []cli.Flag {
	flags := globalFlags(cfg)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, tuningFlags(cfg)...)
	return flags
}

// setup applies the config file and configures logging. Commands call it
// first in their Action.
func (cfg *config) setup(ctx context.Context) (context.Context, error) {
	if err := cfg.applyFile(); err != nil {
		return ctx, err
	}
	logger := logging.New(cfg.logLevel, os.Stdout)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// applyFile merges the YAML config file into cfg. Only fields still at
// their flag defaults are overwritten, so the precedence is flag/env over
// file over builtin default.
func (cfg *config) applyFile() error {
	if cfg.configPath == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return goerr.New("config file not found", goerr.V("path", cfg.configPath))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
	}

	applyString(&cfg.journalPath, file.Journal, "sightline.json")
	applyString(&cfg.eventsPath, file.Events, "sightline_events.json")
	applyString(&cfg.trackerPath, file.Tracker, "")
	applyString(&cfg.policyDir, file.PolicyDir, "")
	applyString(&cfg.logLevel, file.LogLevel, "info")
	applyString(&cfg.geminiAPIKey, file.APIKey, "")
	applyString(&cfg.geminiModel, file.Model, "gemini-2.5-flash")
	applyInt(&cfg.maxEntries, file.MaxEntries, repository.DefaultMaxEntries)
	applyInt(&cfg.window, file.Window, recall.DefaultWindow)
	applyInt(&cfg.limit, file.Limit, recall.DefaultLimit)
	applyFloat(&cfg.minScore, file.MinScore, recall.DefaultMinScore)
	applyInt(&cfg.stuckCount, file.StuckCount, suggest.DefaultStuckCount)
	if file.Weights != nil {
		applyFloat(&cfg.appWeight, file.Weights.App, 0.4)
		applyFloat(&cfg.activityWeight, file.Weights.Activity, 0.3)
		applyFloat(&cfg.textWeight, file.Weights.Text, 0.3)
	}

	return nil
}

func applyString(dst *string, src *string, flagDefault string) {
	if src != nil && *dst == flagDefault {
		*dst = *src
	}
}

func applyInt(dst *int64, src *int64, flagDefault int64) {
	if src != nil && *dst == flagDefault {
		*dst = *src
	}
}

func applyFloat(dst *float64, src *float64, flagDefault float64) {
	if src != nil && *dst == flagDefault {
		*dst = *src
	}
}

// newJournal creates the observation journal and loads persisted state
func (cfg *config) newJournal(ctx context.Context) (*repository.Journal, error) {
	journal := repository.NewJournal(cfg.journalPath,
		repository.WithMaxEntries(int(cfg.maxEntries)))
	if err := journal.Load(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to load journal")
	}
	return journal, nil
}

// newEventLog creates the event log, or nil when disabled
func (cfg *config) newEventLog(ctx context.Context) (*repository.EventLog, error) {
	if cfg.eventsPath == "" {
		return nil, nil
	}
	events := repository.NewEventLog(cfg.eventsPath)
	if err := events.Load(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to load event log")
	}
	return events, nil
}

// newTracker creates the progress tracker, or nil when disabled
func (cfg *config) newTracker() *tracker.Tracker {
	if cfg.trackerPath == "" {
		return nil
	}
	return tracker.New(cfg.trackerPath)
}

// newAnalyzer creates the vision analyzer. Without an API key the pipeline
// runs on fallback heuristics only.
func (cfg *config) newAnalyzer(ctx context.Context) (analyze.Analyzer, error) {
	if cfg.geminiAPIKey == "" {
		logging.From(ctx).Info("no Gemini API key, using fallback analysis only")
		return nil, nil
	}
	gemini, err := adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini adapter")
	}
	return analyze.NewRemote(gemini), nil
}

// newPolicy creates the suggestion policy, with custom rules if configured
func (cfg *config) newPolicy(ctx context.Context) (*suggest.Policy, error) {
	opts := []suggest.PolicyOption{
		suggest.WithStuckCount(int(cfg.stuckCount)),
	}
	if cfg.policyDir != "" {
		rule, err := suggest.LoadCustomRule(ctx, cfg.policyDir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load custom suggestion rules")
		}
		if rule != nil {
			opts = append(opts, suggest.WithCustomRule(rule))
		}
	}
	return suggest.New(opts...), nil
}

func (cfg *config) recallOptions() recall.Options {
	return recall.Options{
		Limit:    int(cfg.limit),
		MinScore: cfg.minScore,
		Window:   int(cfg.window),
		Weights: recall.Weights{
			App:      cfg.appWeight,
			Activity: cfg.activityWeight,
			Text:     cfg.textWeight,
		},
	}
}

// newUseCase assembles the full observation pipeline
func (cfg *config) newUseCase(ctx context.Context, source adapter.Source) (*observe.UseCase, *repository.Journal, error) {
	journal, err := cfg.newJournal(ctx)
	if err != nil {
		return nil, nil, err
	}

	analyzer, err := cfg.newAnalyzer(ctx)
	if err != nil {
		return nil, nil, err
	}

	events, err := cfg.newEventLog(ctx)
	if err != nil {
		return nil, nil, err
	}

	policy, err := cfg.newPolicy(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []observe.Option{
		observe.WithPolicy(policy),
		observe.WithRecallOptions(cfg.recallOptions()),
	}
	if events != nil {
		opts = append(opts, observe.WithEvents(events))
	}
	if t := cfg.newTracker(); t != nil {
		opts = append(opts, observe.WithTracker(t))
	}

	return observe.New(source, analyzer, journal, opts...), journal, nil
}
