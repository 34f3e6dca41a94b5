// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Every numeric budget the
// control loop honours lives under Agent so operators can tune it without a rebuild.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	LLM      LLMModelConfig `mapstructure:"llm" yaml:"llm"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Desktop  DesktopConfig  `mapstructure:"desktop" yaml:"desktop"`
	Vision   VisionConfig   `mapstructure:"vision" yaml:"vision"`
	MCP      MCPConfig      `mapstructure:"mcp" yaml:"mcp"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for the language model backing the
// decision engine. FastModel and PowerfulModel override Model per tier.
type LLMModelConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model         string        `mapstructure:"model" yaml:"model"`
	FastModel     string        `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string        `mapstructure:"powerful_model" yaml:"powerful_model"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK          int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig holds the budgets and thresholds of the perception-decide-act loop.
type AgentConfig struct {
	MaxSteps             int           `mapstructure:"max_steps" yaml:"max_steps"`
	ActionTimeout        time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	MaxExecutionTime     time.Duration `mapstructure:"max_execution_time" yaml:"max_execution_time"`
	ActionDelay          time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	ScreenAnalysisDelay  time.Duration `mapstructure:"screen_analysis_delay" yaml:"screen_analysis_delay"`
	MaxRepeats           int           `mapstructure:"max_repeats" yaml:"max_repeats"`
	MaxConsecutiveSpeaks int           `mapstructure:"max_consecutive_speaks" yaml:"max_consecutive_speaks"`
	StagnationThreshold  int           `mapstructure:"stagnation_threshold" yaml:"stagnation_threshold"`
	LoopWindow           int           `mapstructure:"loop_window" yaml:"loop_window"`
	LoopMaxDistinct      int           `mapstructure:"loop_max_distinct" yaml:"loop_max_distinct"`
	HistoryWindow        int           `mapstructure:"history_window" yaml:"history_window"`
	RepeatBackoff        time.Duration `mapstructure:"repeat_backoff" yaml:"repeat_backoff"`
	GoalQueueSize        int           `mapstructure:"goal_queue_size" yaml:"goal_queue_size"`
	NarrationTimeout     time.Duration `mapstructure:"narration_timeout" yaml:"narration_timeout"`
}

// DesktopConfig controls the physical input surface.
type DesktopConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxClicksPerMinute int           `mapstructure:"max_clicks_per_minute" yaml:"max_clicks_per_minute"`
	MovementSpeed      float64       `mapstructure:"movement_speed" yaml:"movement_speed"`
	TypingInterval     time.Duration `mapstructure:"typing_interval" yaml:"typing_interval"`
	XdotoolPath        string        `mapstructure:"xdotool_path" yaml:"xdotool_path"`
}

// VisionConfig controls screen capture and analysis.
type VisionConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	ScreenshotDir string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	TesseractPath string        `mapstructure:"tesseract_path" yaml:"tesseract_path"`
	OCRTimeout    time.Duration `mapstructure:"ocr_timeout" yaml:"ocr_timeout"`
	// Region is x, y, width, height. Empty means the whole primary display.
	Region []int `mapstructure:"region" yaml:"region"`
}

// MCPServerConfig describes one stdio MCP server to launch.
type MCPServerConfig struct {
	Name    string   `mapstructure:"name" yaml:"name"`
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Env     []string `mapstructure:"env" yaml:"env"`
}

// MCPConfig holds settings for the Model Context Protocol tool provider.
type MCPConfig struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Servers []MCPServerConfig `mapstructure:"servers" yaml:"servers"`
}

// SearchConfig holds settings for the web search provider.
type SearchConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxResults int           `mapstructure:"max_results" yaml:"max_results"`
}

// DatabaseConfig holds the connection string for the task memory store.
// An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cherry")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-1.5-flash")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.max_tokens", 2048)

	// -- Agent loop budgets --
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.action_timeout", "60s")
	v.SetDefault("agent.max_execution_time", "900s")
	v.SetDefault("agent.action_delay", "2s")
	v.SetDefault("agent.screen_analysis_delay", "3s")
	v.SetDefault("agent.max_repeats", 4)
	v.SetDefault("agent.max_consecutive_speaks", 3)
	v.SetDefault("agent.stagnation_threshold", 6)
	v.SetDefault("agent.loop_window", 5)
	v.SetDefault("agent.loop_max_distinct", 2)
	v.SetDefault("agent.history_window", 8)
	v.SetDefault("agent.repeat_backoff", "2s")
	v.SetDefault("agent.goal_queue_size", 4)
	v.SetDefault("agent.narration_timeout", "2s")

	// -- Desktop --
	v.SetDefault("desktop.enabled", true)
	v.SetDefault("desktop.max_clicks_per_minute", 60)
	v.SetDefault("desktop.movement_speed", 1.0)
	v.SetDefault("desktop.typing_interval", "50ms")
	v.SetDefault("desktop.xdotool_path", "xdotool")

	// -- Vision --
	v.SetDefault("vision.enabled", true)
	v.SetDefault("vision.screenshot_dir", "~/.cherry/screenshots")
	v.SetDefault("vision.tesseract_path", "tesseract")
	v.SetDefault("vision.ocr_timeout", "15s")

	// -- MCP --
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.timeout", "30s")

	// -- Search --
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.endpoint", "https://duckduckgo.com/html/")
	v.SetDefault("search.timeout", "10s")
	v.SetDefault("search.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("search.max_results", 5)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "CHERRY_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "CHERRY_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Normalize expands user-relative paths in place.
func (c *Config) Normalize() error {
	dir, err := homedir.Expand(c.Vision.ScreenshotDir)
	if err != nil {
		return fmt.Errorf("failed to expand vision.screenshot_dir: %w", err)
	}
	c.Vision.ScreenshotDir = dir

	if c.Logger.LogFile != "" {
		logFile, err := homedir.Expand(c.Logger.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.Logger.LogFile = logFile
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Desktop.Validate(); err != nil {
		return fmt.Errorf("desktop configuration invalid: %w", err)
	}
	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision configuration invalid: %w", err)
	}
	if err := c.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the loop budgets.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be a positive duration")
	}
	if a.MaxExecutionTime <= 0 {
		return fmt.Errorf("max_execution_time must be a positive duration")
	}
	if a.ActionDelay < 0 || a.ScreenAnalysisDelay < 0 || a.RepeatBackoff < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if a.MaxRepeats <= 0 || a.MaxConsecutiveSpeaks <= 0 || a.StagnationThreshold <= 0 {
		return fmt.Errorf("max_repeats, max_consecutive_speaks and stagnation_threshold must be positive")
	}
	if a.LoopWindow <= 0 || a.LoopMaxDistinct < 0 {
		return fmt.Errorf("loop_window must be positive and loop_max_distinct non-negative")
	}
	if a.HistoryWindow <= 0 {
		return fmt.Errorf("history_window must be a positive integer")
	}
	if a.GoalQueueSize <= 0 {
		return fmt.Errorf("goal_queue_size must be a positive integer")
	}
	return nil
}

// Validate checks the LLM settings. The API key is checked lazily by the
// client factory so that commands that never talk to the model still work.
func (l *LLMModelConfig) Validate() error {
	if l.Provider != ProviderGemini {
		return fmt.Errorf("unsupported provider '%s'", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	return nil
}

// ModelFor returns the model name for a tier, falling back to Model.
func (l LLMModelConfig) ModelFor(powerful bool) string {
	if powerful && l.PowerfulModel != "" {
		return l.PowerfulModel
	}
	if !powerful && l.FastModel != "" {
		return l.FastModel
	}
	return l.Model
}

// Validate checks the desktop settings.
func (d *DesktopConfig) Validate() error {
	if !d.Enabled {
		return nil
	}
	if d.MaxClicksPerMinute <= 0 {
		return fmt.Errorf("max_clicks_per_minute must be a positive integer")
	}
	if d.MovementSpeed <= 0 {
		return fmt.Errorf("movement_speed must be positive")
	}
	return nil
}

// Validate checks the vision settings.
func (v *VisionConfig) Validate() error {
	if len(v.Region) != 0 && len(v.Region) != 4 {
		return fmt.Errorf("region must be empty or [x, y, width, height]")
	}
	if len(v.Region) == 4 && (v.Region[2] <= 0 || v.Region[3] <= 0) {
		return fmt.Errorf("region width and height must be positive")
	}
	return nil
}

// Validate checks the MCP server list.
func (m *MCPConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	seen := make(map[string]struct{}, len(m.Servers))
	for i, s := range m.Servers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("servers[%d] requires both name and command", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate server name '%s'", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
