// Package settings manages the persisted user settings for the correction
// pipeline: the selected provider, per-provider credentials, correction
// mode, and the prompt template.
//
// Settings live in a small JSON file whose schema is shared with the
// phone-side configuration panel. The [Store] keeps an immutable in-memory
// snapshot, persists updates atomically, and degrades to memory-only
// operation when the file cannot be read or written, so a broken disk
// never blocks dictation.
package settings

import (
	"errors"
	"fmt"
)

// Provider names recognised by the correction pipeline.
const (
	ProviderZhipu  = "zhipu"
	ProviderIflow  = "iflow"
	ProviderOllama = "ollama"
)

// KnownProviders lists the provider names shipped with lanpad.
var KnownProviders = []string{ProviderZhipu, ProviderIflow, ProviderOllama}

// Mode selects when corrections run.
type Mode string

const (
	// ModeManual corrects only on explicit request.
	ModeManual Mode = "manual"

	// ModeAuto submits every new card for correction.
	ModeAuto Mode = "auto"
)

// IsValid reports whether m is a recognised correction mode.
func (m Mode) IsValid() bool {
	return m == ModeManual || m == ModeAuto
}

// ProviderSettings holds one backend's connection parameters.
type ProviderSettings struct {
	// APIKey authenticates against hosted backends. Unused by ollama.
	APIKey string `json:"apiKey,omitempty"`

	// Model selects the model within the backend.
	Model string `json:"model,omitempty"`

	// APIURL overrides the backend's default endpoint. For ollama this is
	// the generate endpoint of the local server.
	APIURL string `json:"apiUrl,omitempty"`
}

// Settings is the persisted user configuration. Values are treated as
// immutable snapshots: mutate only through [Store.Update].
type Settings struct {
	// Provider names the active correction backend.
	Provider string `json:"provider"`

	// Providers holds per-backend parameters, keyed by provider name.
	Providers map[string]ProviderSettings `json:"providers"`

	// CorrectionMode selects manual or automatic correction.
	CorrectionMode Mode `json:"aiCorrectionMode"`

	// PromptTemplateID names the active prompt template.
	PromptTemplateID string `json:"aiPromptTemplateId"`

	// PromptTemplate is the system prompt sent with every correction.
	PromptTemplate string `json:"aiPromptTemplate"`
}

// defaultPromptTemplate is the built-in correction instruction.
const defaultPromptTemplate = `你是专业的语音识别文本修正助手，核心逻辑是先理解整句话的语义和使用场景，再针对性修正语音转文字的错误，仅输出修正后的纯文本，不要任何额外解释、标点或备注。
严格遵循以下通用修正规则：
1. 语义优先：基于整句话的语境和语义，判断并修正语音误听的同音字、错字、漏字、多字，尤其是技术场景的词汇（如英文/数字组合、专业术语）；
2. 保留核心：完全保留原句的数字、英文词汇、专有名词、核心语义和基本句式，仅修正错误，不增删、不改写原意；
3. 清理口语：移除无意义的语气词（嗯、啊、呢、吧、哦、呃、然后）、重复词汇（如我们我们、的的）、多余的无意义单字；
4. 规范格式：修正英文/技术词汇间的标点错误（如逗号换空格）、重复标点，保持原句整体标点和句式结构基本不变；
5. 拼写修正：基于语义修正技术词汇的字母重复、漏写、错写问题，还原正确的英文专业词汇。`

// Default returns the compiled-in settings used when no file exists yet.
func Default() Settings {
	return Settings{
		Provider: ProviderZhipu,
		Providers: map[string]ProviderSettings{
			ProviderZhipu: {
				Model: "glm-4-flash-250414",
			},
			ProviderIflow: {
				Model: "qwen3-max",
			},
			ProviderOllama: {
				APIURL: "http://localhost:11434/api/generate",
				Model:  "qwen3:0.6b",
			},
		},
		CorrectionMode:   ModeManual,
		PromptTemplateID: "default",
		PromptTemplate:   defaultPromptTemplate,
	}
}

// Clone returns a deep copy, so callers can hand out snapshots without
// sharing the providers map.
func (s Settings) Clone() Settings {
	out := s
	out.Providers = make(map[string]ProviderSettings, len(s.Providers))
	for name, ps := range s.Providers {
		out.Providers[name] = ps
	}
	return out
}

// Active returns the parameters of the selected provider. ok is false when
// the selected provider has no configuration block.
func (s Settings) Active() (ProviderSettings, bool) {
	ps, ok := s.Providers[s.Provider]
	return ps, ok
}

// Validate checks that s is a coherent configuration. It returns a joined
// error listing all failures found.
func (s Settings) Validate() error {
	var errs []error

	if s.Provider == "" {
		errs = append(errs, errors.New("provider is required"))
	}
	if s.CorrectionMode != "" && !s.CorrectionMode.IsValid() {
		errs = append(errs, fmt.Errorf("aiCorrectionMode %q is invalid; valid values: manual, auto", s.CorrectionMode))
	}
	if s.Provider != "" {
		if _, ok := s.Providers[s.Provider]; !ok {
			errs = append(errs, fmt.Errorf("provider %q has no configuration block", s.Provider))
		}
	}

	return errors.Join(errs...)
}
