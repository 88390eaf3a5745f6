package config

import "fmt"

// TierConfig maps a complexity tier to a concrete model reference
type TierConfig struct {
	Light  string `hcl:"light,optional"`
	Medium string `hcl:"medium,optional"`
	Heavy  string `hcl:"heavy,optional"`
}

// ResearchConfig defines planner, subagent and synthesis behavior
type ResearchConfig struct {
	PlannerModel   string `hcl:"planner_model,optional"`
	SynthesisModel string `hcl:"synthesis_model,optional"`

	MaxSubagents        int `hcl:"max_subagents,optional"`
	MaxSearchesPerAgent int `hcl:"max_searches_per_agent,optional"`
	MaxRounds           int `hcl:"max_rounds,optional"`

	CallTimeoutSecs         int `hcl:"call_timeout_secs,optional"`
	ConversationTimeoutSecs int `hcl:"conversation_timeout_secs,optional"`
	SynthesisTimeoutSecs    int `hcl:"synthesis_timeout_secs,optional"`

	SynthesisMaxTokens int `hcl:"synthesis_max_tokens,optional"`
	MaxToolResultChars int `hcl:"max_tool_result_chars,optional"`

	Tiers *TierConfig `hcl:"tiers,block"`
}

// Defaults fills in default values for unset fields
func (r *ResearchConfig) Defaults() {
	if r.MaxSubagents == 0 {
		r.MaxSubagents = 4
	}
	if r.MaxSearchesPerAgent == 0 {
		r.MaxSearchesPerAgent = 10
	}
	if r.MaxRounds == 0 {
		r.MaxRounds = 15
	}
	if r.CallTimeoutSecs == 0 {
		r.CallTimeoutSecs = 240
	}
	if r.ConversationTimeoutSecs == 0 {
		r.ConversationTimeoutSecs = 800
	}
	if r.SynthesisTimeoutSecs == 0 {
		r.SynthesisTimeoutSecs = 340
	}
	if r.SynthesisMaxTokens == 0 {
		r.SynthesisMaxTokens = 16000
	}
	if r.MaxToolResultChars == 0 {
		r.MaxToolResultChars = 4000
	}
}

// Validate checks that model references resolve against configured models
func (r *ResearchConfig) Validate(models []Model) error {
	if r.MaxSubagents < 1 {
		return fmt.Errorf("max_subagents must be at least 1")
	}
	if r.MaxSearchesPerAgent < 1 {
		return fmt.Errorf("max_searches_per_agent must be at least 1")
	}
	if r.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1")
	}

	refs := map[string]string{
		"planner_model":   r.PlannerModel,
		"synthesis_model": r.SynthesisModel,
	}
	if r.Tiers != nil {
		refs["tiers.light"] = r.Tiers.Light
		refs["tiers.medium"] = r.Tiers.Medium
		refs["tiers.heavy"] = r.Tiers.Heavy
	}
	for field, ref := range refs {
		if ref == "" {
			continue
		}
		if !isValidModelRef(ref, models) {
			return fmt.Errorf("%s '%s' not found in models", field, ref)
		}
	}

	return nil
}

// isValidModelRef checks if a model reference (e.g., "claude_sonnet_4") is valid
func isValidModelRef(modelRef string, models []Model) bool {
	for _, m := range models {
		for _, allowed := range m.AllowedModels {
			if allowed == modelRef {
				return true
			}
		}
	}
	return false
}
