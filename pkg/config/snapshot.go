package config

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

// Snapshot is one immutable view of the mascot configuration. It is
// published atomically by Service and must never be mutated after
// publication; reload swaps the whole document, never merges field by field.
type Snapshot struct {
	Profile  ProfileConfig  `json:"profile" yaml:"profile"`
	Talk     TalkConfig     `json:"talk" yaml:"talk"`
	Net      NetConfig      `json:"net" yaml:"net"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Safety   SafetyConfig   `json:"safety" yaml:"safety"`
	Learning LearningConfig `json:"learning" yaml:"learning"`
	Context  ContextConfig  `json:"context" yaml:"context"`
	Sense    SenseConfig    `json:"sense" yaml:"sense"`
}

type ProfileConfig struct {
	UserName string `json:"user_name" yaml:"user_name"`
}

type TalkConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	UnknownReply   string   `json:"unknown_reply" yaml:"unknown_reply"`
	AutoTalkMinSec float64  `json:"auto_talk_min_sec" yaml:"auto_talk_min_sec"`
	AutoTalkMaxSec float64  `json:"auto_talk_max_sec" yaml:"auto_talk_max_sec"`
	Messages       []string `json:"messages" yaml:"messages"`
}

type NetConfig struct {
	AnswerMaxChars  int `json:"answer_max_chars" yaml:"answer_max_chars"`
	AnswerTimeoutMs int `json:"answer_timeout_ms" yaml:"answer_timeout_ms"`
	AnswerMaxWaitMs int `json:"answer_max_wait_ms" yaml:"answer_max_wait_ms"`
}

type LLMConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	BaseURL      string  `json:"base_url" yaml:"base_url"`
	APIKey       string  `json:"api_key" yaml:"api_key"`
	Model        string  `json:"model" yaml:"model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`
	ContextTurns int     `json:"context_turns" yaml:"context_turns"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
}

type MemoryConfig struct {
	Path       string `json:"path" yaml:"path"`
	MaxHistory int    `json:"max_history" yaml:"max_history"`
}

type SafetyConfig struct {
	BannedKeywords []string `json:"banned_keywords" yaml:"banned_keywords"`
}

type LearningConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	SummarizeEnabled bool `json:"summarize_enabled" yaml:"summarize_enabled"`
	MaxSummaryChars  int  `json:"max_summary_chars" yaml:"max_summary_chars"`
	MaxFacts         int  `json:"max_facts" yaml:"max_facts"`
}

type ContextConfig struct {
	IncludeTime     bool   `json:"include_time" yaml:"include_time"`
	IncludeLocation bool   `json:"include_location" yaml:"include_location"`
	LocationText    string `json:"location_text" yaml:"location_text"`
}

type SenseConfig struct {
	RemoToken       string `json:"remo_token" yaml:"remo_token"`
	PollIntervalSec int    `json:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// Default returns the declared defaults for every option.
func Default() Snapshot {
	return Snapshot{
		Profile: ProfileConfig{},
		Talk: TalkConfig{
			Enabled:        true,
			UnknownReply:   "ごめん、今はわからないよ。",
			AutoTalkMinSec: 30,
			AutoTalkMaxSec: 120,
			Messages: []string{
				"にゃーん",
				"おつかれさま",
				"今日もがんばってるね",
				"少し休憩しよ？",
			},
		},
		Net: NetConfig{
			AnswerMaxChars:  220,
			AnswerTimeoutMs: 45000,
			AnswerMaxWaitMs: 180000,
		},
		LLM: LLMConfig{
			Enabled:      false,
			BaseURL:      "http://localhost:1234/v1",
			Model:        "gpt-oss-20b",
			Temperature:  0.7,
			MaxTokens:    256,
			ContextTurns: 10,
			SystemPrompt: "あなたはデスクトップの猫アシスタント『エド』です。常に日本語で、簡潔かつ親切に答えてください。",
		},
		Memory: MemoryConfig{
			MaxHistory: 20,
		},
		Safety: SafetyConfig{
			BannedKeywords: []string{"違法", "ハッキング", "個人情報", "テロ", "暴力"},
		},
		Learning: LearningConfig{
			Enabled:          true,
			SummarizeEnabled: true,
			MaxSummaryChars:  800,
			MaxFacts:         50,
		},
		Context: ContextConfig{
			IncludeLocation: true,
		},
		Sense: SenseConfig{
			PollIntervalSec: 300,
		},
	}
}

// ConfigError reports a reload document that failed parsing or validation.
// The previously published snapshot is left untouched when one is returned.
type ConfigError struct {
	Field  string
	Reason string
	cause  error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	}
	return "config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.cause }

func fieldError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// Validate checks that every required option is present with a usable value.
func (s Snapshot) Validate() error {
	if s.LLM.BaseURL == "" {
		return fieldError("llm.base_url", "must not be empty")
	}
	if u, err := url.Parse(s.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fieldError("llm.base_url", "must be an absolute URL")
	}
	if s.LLM.Model == "" {
		return fieldError("llm.model", "must not be empty")
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fieldError("llm.temperature", "must be between 0 and 2")
	}
	if s.LLM.MaxTokens <= 0 {
		return fieldError("llm.max_tokens", "must be positive")
	}
	if s.LLM.ContextTurns <= 0 {
		return fieldError("llm.context_turns", "must be positive")
	}
	if s.Net.AnswerTimeoutMs <= 0 {
		return fieldError("net.answer_timeout_ms", "must be positive")
	}
	if s.Net.AnswerMaxWaitMs < s.Net.AnswerTimeoutMs {
		return fieldError("net.answer_max_wait_ms", "must be >= net.answer_timeout_ms")
	}
	if s.Net.AnswerMaxChars <= 0 {
		return fieldError("net.answer_max_chars", "must be positive")
	}
	if s.Memory.MaxHistory <= 0 {
		return fieldError("memory.max_history", "must be positive")
	}
	if s.Learning.MaxSummaryChars <= 0 {
		return fieldError("learning.max_summary_chars", "must be positive")
	}
	if s.Talk.AutoTalkMinSec < 0 || s.Talk.AutoTalkMaxSec < s.Talk.AutoTalkMinSec {
		return fieldError("talk.auto_talk_max_sec", "must be >= talk.auto_talk_min_sec")
	}
	if s.Sense.PollIntervalSec <= 0 {
		return fieldError("sense.poll_interval_sec", "must be positive")
	}
	return nil
}

// wrapParseError converts a decode failure into a ConfigError.
func wrapParseError(err error) *ConfigError {
	return &ConfigError{Reason: "invalid document: " + err.Error(), cause: errors.WithStack(err)}
}
