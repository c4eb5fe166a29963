// Package persona defines the conversational personas ("experts") a reply can
// be written in and the read-only catalog they are looked up from.
package persona

import (
	"fmt"
	"strings"
)

// Persona is one conversational style: which model answers, how hot it runs
// and how it is instructed to talk. Personas are loaded once and never mutated.
type Persona struct {
	Name                 string  `json:"template_name" yaml:"template_name"`
	Model                string  `json:"model" yaml:"model"`
	Temperature          float64 `json:"temperature" yaml:"temperature"`
	PersonalityPrompt    string  `json:"personality_prompt" yaml:"personality_prompt"`
	SpeakingStyle        string  `json:"speaking_instructions" yaml:"speaking_instructions"`
	Tone                 string  `json:"tone" yaml:"tone"`
	Adaptability         string  `json:"adaptability,omitempty" yaml:"adaptability,omitempty"`
	LengthPreference     string  `json:"default_length_preference" yaml:"default_length_preference"`
	VocabularyComplexity string  `json:"preferred_vocabulary_complexity" yaml:"preferred_vocabulary_complexity"`
	ResponseFormat       string  `json:"default_response_format" yaml:"default_response_format"`
	UsageGuidance        string  `json:"when_to_use" yaml:"when_to_use"`
	Version              int     `json:"version" yaml:"version"`
}

// SystemPrompt renders the persona's style instructions for the reply prompt.
func (p Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.PersonalityPrompt))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	if p.Adaptability != "" {
		fmt.Fprintf(&b, "Adaptability: %s\n", p.Adaptability)
	}
	fmt.Fprintf(&b, "Preferred Response Length: %s\n", p.LengthPreference)
	fmt.Fprintf(&b, "Vocabulary Complexity: %s\n", p.VocabularyComplexity)
	fmt.Fprintf(&b, "Response Format: %s\n\n", p.ResponseFormat)
	fmt.Fprintf(&b, "Speaking Instructions: %s", p.SpeakingStyle)
	return b.String()
}

func (p Persona) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: persona without a name", ErrInvalidCatalog)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: persona %q has no model", ErrInvalidCatalog, p.Name)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%w: persona %q temperature %v out of range", ErrInvalidCatalog, p.Name, p.Temperature)
	}
	return nil
}
