package config

import (
	"time"

	"mathviz/internal/observability"
)

const (
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4o"
	DefaultLLMBaseURL  = "https://api.openai.com/v1"
	DefaultOutputDir   = "output"
)

// Config is the single configuration value built at process start and passed
// into every component constructor.
type Config struct {
	OutputDir        string `mapstructure:"output_dir"`
	KeepIntermediate bool   `mapstructure:"keep_intermediate"`
	Debug            bool   `mapstructure:"debug"`
	HistoryFile      string `mapstructure:"history_file"`
	PromptDir        string `mapstructure:"prompt_dir"`

	LLM      LLMConfig      `mapstructure:"llm"`
	Solve    SolveConfig    `mapstructure:"solve"`
	Phrase   PhraseConfig   `mapstructure:"phrase"`
	Scene    SceneConfig    `mapstructure:"scene"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Render   RenderConfig   `mapstructure:"render"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Branding BrandingConfig `mapstructure:"branding"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Search   SearchConfig   `mapstructure:"search"`

	Observability observability.Config `mapstructure:"observability"`
}

// Temperatures holds the sampling temperature used by each generation role.
type Temperatures struct {
	Solver         float64 `mapstructure:"solver"`
	Evaluator      float64 `mapstructure:"evaluator"`
	ScriptWriter   float64 `mapstructure:"script_writer"`
	SceneGenerator float64 `mapstructure:"scene_generator"`
	SceneQA        float64 `mapstructure:"scene_qa"`
}

// LLMConfig selects and tunes the text-generation backend.
type LLMConfig struct {
	Provider           string        `mapstructure:"provider"` // openai, openai-responses, ollama, mock
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	TopP               float64       `mapstructure:"top_p"`
	Temperatures       Temperatures  `mapstructure:"temperatures"`
	MaxToolRounds      int           `mapstructure:"max_tool_rounds"`
	ContextTokenBudget int           `mapstructure:"context_token_budget"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
}

// SolveConfig bounds the solve/evaluate loop.
type SolveConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// PhraseConfig tunes phrase segmentation.
type PhraseConfig struct {
	WordsPerSecond   float64 `mapstructure:"words_per_second"`
	MinPhraseSeconds float64 `mapstructure:"min_phrase_seconds"`
	MaxPhraseSeconds float64 `mapstructure:"max_phrase_seconds"`
}

// SceneConfig tunes per-segment scene generation.
type SceneConfig struct {
	MaxRetries   int    `mapstructure:"max_retries"`
	QAEnabled    bool   `mapstructure:"qa_enabled"`
	DryRunVerify bool   `mapstructure:"dry_run_verify"`
	PythonBin    string `mapstructure:"python_bin"`
	HelperModule string `mapstructure:"helper_module"`
}

// TTSConfig selects the speech-synthesis backend.
type TTSConfig struct {
	Provider       string        `mapstructure:"provider"` // command, http, silent, none
	Command        string        `mapstructure:"command"`
	Args           []string      `mapstructure:"args"`
	Endpoint       string        `mapstructure:"endpoint"`
	APIKey         string        `mapstructure:"api_key"`
	Voice          string        `mapstructure:"voice"`
	SampleRate     int           `mapstructure:"sample_rate"`
	ReferenceAudio string        `mapstructure:"reference_audio"`
	ReferenceText  string        `mapstructure:"reference_text"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// RenderConfig configures the manim renderer.
type RenderConfig struct {
	ManimBin         string        `mapstructure:"manim_bin"`
	Quality          string        `mapstructure:"quality"` // l, m, h, k
	Workers          int           `mapstructure:"workers"`
	Timeout          time.Duration `mapstructure:"timeout"`
	TextSlideTimeout time.Duration `mapstructure:"text_slide_timeout"`
	VerifyTimeout    time.Duration `mapstructure:"verify_timeout"`
}

// FFmpegConfig configures the merge engine.
type FFmpegConfig struct {
	Bin           string        `mapstructure:"bin"`
	ProbeBin      string        `mapstructure:"probe_bin"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ConcatTimeout time.Duration `mapstructure:"concat_timeout"`
	PresetFile    string        `mapstructure:"preset_file"`
	MergePreset   string        `mapstructure:"merge_preset"`
}

// BrandingConfig points at the optional bookend clips.
type BrandingConfig struct {
	IntroPath    string  `mapstructure:"intro_path"`
	OutroPath    string  `mapstructure:"outro_path"`
	IntroSeconds float64 `mapstructure:"intro_seconds"`
	OutroSeconds float64 `mapstructure:"outro_seconds"`
}

// RAGConfig configures reference-example retrieval.
type RAGConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	PersistDir     string            `mapstructure:"persist_dir"`
	Collections    []string          `mapstructure:"collections"`
	SourceDirs     map[string]string `mapstructure:"source_dirs"`
	GoldenDir      string            `mapstructure:"golden_dir"`
	TopK           int               `mapstructure:"top_k"`
	EmbeddingModel string            `mapstructure:"embedding_model"`
	CacheSize      int               `mapstructure:"cache_size"`
}

// SearchConfig configures the optional web-search tool offered to the solver.
type SearchConfig struct {
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

// KeepArtifacts reports whether intermediate folders survive cleanup.
func (c Config) KeepArtifacts() bool {
	return c.Debug || c.KeepIntermediate
}

// ResolutionDirs maps manim quality flags to the output directory manim uses.
var ResolutionDirs = map[string]string{
	"l": "480p15",
	"m": "720p30",
	"h": "1080p60",
	"k": "2160p60",
}
