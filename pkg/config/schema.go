package config

// Field describes one editable option for a settings form. The presentation
// layer turns descriptors into widgets; nothing here touches the turn
// lifecycle.
type Field struct {
	Path      string   `json:"path"`
	Label     string   `json:"label"`
	Type      string   `json:"type"` // bool | int | float | string | password | textarea | list.string
	Hint      string   `json:"hint,omitempty"`
	Min       float64  `json:"min,omitempty"`
	Max       float64  `json:"max,omitempty"`
	Step      float64  `json:"step,omitempty"`
	Choices   []string `json:"choices,omitempty"`
	Multiline bool     `json:"multiline,omitempty"`
}

type Tab struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Schema returns the declared settings layout. Pure function of nothing;
// values come from the live snapshot, not from here.
func Schema() []Tab {
	return []Tab{
		{
			Title: "プロフィール",
			Fields: []Field{
				{Path: "profile.user_name", Label: "ユーザー名", Type: "string"},
			},
		},
		{
			Title: "トーク",
			Fields: []Field{
				{Path: "talk.enabled", Label: "おしゃべりを有効化", Type: "bool"},
				{Path: "talk.unknown_reply", Label: "不明時の返答", Type: "string"},
				{Path: "talk.auto_talk_min_sec", Label: "自発トーク最小間隔(秒)", Type: "float", Min: 3, Max: 3600, Step: 1},
				{Path: "talk.auto_talk_max_sec", Label: "自発トーク最大間隔(秒)", Type: "float", Min: 3, Max: 3600, Step: 1},
				{Path: "talk.messages", Label: "自発トークのメッセージ", Type: "list.string", Multiline: true},
			},
		},
		{
			Title: "LLM",
			Fields: []Field{
				{Path: "llm.enabled", Label: "LLMを有効化", Type: "bool"},
				{Path: "llm.base_url", Label: "ベースURL", Type: "string", Hint: "OpenAI互換エンドポイント（LM Studioなど）"},
				{Path: "llm.api_key", Label: "APIキー", Type: "password"},
				{Path: "llm.model", Label: "モデル", Type: "string"},
				{Path: "llm.temperature", Label: "温度", Type: "float", Min: 0, Max: 2, Step: 0.1},
				{Path: "llm.max_tokens", Label: "最大トークン数", Type: "int", Min: 1, Max: 32768, Step: 1},
				{Path: "llm.context_turns", Label: "コンテキストに含むターン数", Type: "int", Min: 1, Max: 100, Step: 1},
				{Path: "llm.system_prompt", Label: "システムプロンプト", Type: "textarea", Multiline: true},
			},
		},
		{
			Title: "ネットワーク",
			Fields: []Field{
				{Path: "net.answer_max_chars", Label: "回答の最大文字数", Type: "int", Min: 20, Max: 4000, Step: 10},
				{Path: "net.answer_timeout_ms", Label: "回答タイムアウト(ms)", Type: "int", Min: 1000, Max: 600000, Step: 1000},
				{Path: "net.answer_max_wait_ms", Label: "最大待機時間(ms)", Type: "int", Min: 1000, Max: 600000, Step: 1000},
			},
		},
		{
			Title: "メモリ",
			Fields: []Field{
				{Path: "memory.max_history", Label: "履歴の最大件数", Type: "int", Min: 1, Max: 500, Step: 1},
				{Path: "learning.summarize_enabled", Label: "要約を有効化", Type: "bool"},
				{Path: "learning.max_summary_chars", Label: "要約の最大文字数", Type: "int", Min: 120, Max: 4000, Step: 10},
			},
		},
		{
			Title: "安全",
			Fields: []Field{
				{Path: "safety.banned_keywords", Label: "禁止キーワード", Type: "list.string", Multiline: true},
			},
		},
		{
			Title: "コンテキスト",
			Fields: []Field{
				{Path: "context.include_time", Label: "現在時刻を含める", Type: "bool"},
				{Path: "context.include_location", Label: "現在地を含める", Type: "bool"},
				{Path: "context.location_text", Label: "現在地", Type: "string", Hint: "例: 東京都渋谷区"},
			},
		},
		{
			Title: "センサー",
			Fields: []Field{
				{Path: "sense.remo_token", Label: "Nature Remo トークン", Type: "password"},
				{Path: "sense.poll_interval_sec", Label: "取得間隔(秒)", Type: "int", Min: 30, Max: 86400, Step: 30},
			},
		},
	}
}
