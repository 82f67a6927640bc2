package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type loadOptions struct {
	configFile string
	overrides  []func(*Config)
	homeDir    func() (string, error)
}

// Option customizes Load.
type Option func(*loadOptions)

// WithConfigFile reads an explicit YAML file instead of searching for mathviz.yaml.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

// WithOverrides applies caller mutations (typically CLI flags) after file and env.
func WithOverrides(fn func(*Config)) Option {
	return func(o *loadOptions) {
		if fn != nil {
			o.overrides = append(o.overrides, fn)
		}
	}
}

// WithHomeDir replaces os.UserHomeDir, used in tests.
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = fn }
}

// Load builds the configuration: defaults, then mathviz.yaml, then MATHVIZ_*
// environment variables, then overrides.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MATHVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "MATHVIZ_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("search.tavily_api_key", "MATHVIZ_SEARCH_TAVILY_API_KEY", "TAVILY_API_KEY")

	if options.configFile != "" {
		v.SetConfigFile(options.configFile)
	} else {
		v.SetConfigName("mathviz")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := options.homeDir(); err == nil && home != "" {
			v.AddConfigPath(filepath.Join(home, ".mathviz"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || options.configFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	for _, override := range options.overrides {
		override(&cfg)
	}

	normalize(&cfg, options)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("keep_intermediate", false)
	v.SetDefault("debug", false)
	v.SetDefault("history_file", "")
	v.SetDefault("prompt_dir", "")

	v.SetDefault("llm.provider", DefaultLLMProvider)
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.timeout", 180*time.Second)
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.temperatures.solver", 0.4)
	v.SetDefault("llm.temperatures.evaluator", 0.0)
	v.SetDefault("llm.temperatures.script_writer", 0.6)
	v.SetDefault("llm.temperatures.scene_generator", 0.2)
	v.SetDefault("llm.temperatures.scene_qa", 0.1)
	v.SetDefault("llm.max_tool_rounds", 5)
	v.SetDefault("llm.context_token_budget", 12000)
	v.SetDefault("llm.retry_attempts", 3)

	v.SetDefault("solve.max_retries", 5)

	v.SetDefault("phrase.words_per_second", 2.5)
	v.SetDefault("phrase.min_phrase_seconds", 1.5)
	v.SetDefault("phrase.max_phrase_seconds", 4.0)

	v.SetDefault("scene.max_retries", 3)
	v.SetDefault("scene.qa_enabled", true)
	v.SetDefault("scene.dry_run_verify", true)
	v.SetDefault("scene.python_bin", "python3")
	v.SetDefault("scene.helper_module", "visual_utils")

	v.SetDefault("tts.provider", "command")
	v.SetDefault("tts.command", "neutts")
	v.SetDefault("tts.args", []string{})
	v.SetDefault("tts.endpoint", "")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.voice", "")
	v.SetDefault("tts.sample_rate", 24000)
	v.SetDefault("tts.reference_audio", "assets/voice/reference.wav")
	v.SetDefault("tts.reference_text", "assets/voice/reference.txt")
	v.SetDefault("tts.timeout", 300*time.Second)

	v.SetDefault("render.manim_bin", "manim")
	v.SetDefault("render.quality", "h")
	v.SetDefault("render.workers", 4)
	v.SetDefault("render.timeout", 600*time.Second)
	v.SetDefault("render.text_slide_timeout", 300*time.Second)
	v.SetDefault("render.verify_timeout", 120*time.Second)

	v.SetDefault("ffmpeg.bin", "ffmpeg")
	v.SetDefault("ffmpeg.probe_bin", "ffprobe")
	v.SetDefault("ffmpeg.timeout", 120*time.Second)
	v.SetDefault("ffmpeg.concat_timeout", 300*time.Second)
	v.SetDefault("ffmpeg.preset_file", "")
	v.SetDefault("ffmpeg.merge_preset", "segment-merge")

	v.SetDefault("branding.intro_path", "assets/branding/intro/intro.mp4")
	v.SetDefault("branding.outro_path", "assets/branding/outro/outro.mp4")
	v.SetDefault("branding.intro_seconds", 5.0)
	v.SetDefault("branding.outro_seconds", 6.0)

	v.SetDefault("rag.enabled", true)
	v.SetDefault("rag.persist_dir", ".mathviz/rag")
	v.SetDefault("rag.collections", []string{"3b1b_manim", "3b1b_videos"})
	v.SetDefault("rag.source_dirs", map[string]string{})
	v.SetDefault("rag.golden_dir", "golden_set")
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.embedding_model", "text-embedding-3-small")
	v.SetDefault("rag.cache_size", 10000)

	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.max_results", 5)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.addr", ":9464")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.tracing.zipkin_endpoint", "")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.tracing.service_name", "mathviz")
	v.SetDefault("observability.tracing.service_version", "dev")
}

func normalize(cfg *Config, options loadOptions) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.TTS.Provider = strings.ToLower(strings.TrimSpace(cfg.TTS.Provider))
	cfg.Render.Quality = strings.ToLower(strings.TrimSpace(cfg.Render.Quality))

	// Without credentials a hosted provider cannot answer; fall back to the
	// scripted mock so the REPL still runs end to end.
	if cfg.LLM.APIKey == "" && (cfg.LLM.Provider == "openai" || cfg.LLM.Provider == "openai-responses") {
		cfg.LLM.Provider = "mock"
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == DefaultLLMBaseURL {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}

	if cfg.HistoryFile == "" {
		if home, err := options.homeDir(); err == nil && home != "" {
			cfg.HistoryFile = filepath.Join(home, ".mathviz-history")
		}
	}
	if cfg.Render.Workers < 1 {
		cfg.Render.Workers = 1
	}
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "openai-responses", "ollama", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch c.TTS.Provider {
	case "command", "http", "silent", "none":
	default:
		errs = append(errs, fmt.Errorf("tts.provider %q is not supported", c.TTS.Provider))
	}
	if _, ok := ResolutionDirs[c.Render.Quality]; !ok {
		errs = append(errs, fmt.Errorf("render.quality %q must be one of l, m, h, k", c.Render.Quality))
	}
	if c.Solve.MaxRetries < 1 {
		errs = append(errs, errors.New("solve.max_retries must be at least 1"))
	}
	if c.Scene.MaxRetries < 1 {
		errs = append(errs, errors.New("scene.max_retries must be at least 1"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens must be positive"))
	}
	if c.Phrase.WordsPerSecond <= 0 {
		errs = append(errs, errors.New("phrase.words_per_second must be positive"))
	}
	if c.Phrase.MinPhraseSeconds < 0 || c.Phrase.MaxPhraseSeconds < c.Phrase.MinPhraseSeconds {
		errs = append(errs, errors.New("phrase bounds must satisfy 0 <= min <= max"))
	}
	if c.TTS.SampleRate <= 0 {
		errs = append(errs, errors.New("tts.sample_rate must be positive"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
