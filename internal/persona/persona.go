// Package persona loads the companion's character sheet and renders it into
// the system preamble that opens every prompt.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

// Profile is the persona definition.
type Profile struct {
	Name               string             `yaml:"name" json:"name"`
	Identity           string             `yaml:"identity,omitempty" json:"identity,omitempty"`
	Birthday           string             `yaml:"birthday,omitempty" json:"birthday,omitempty"`
	Background         string             `yaml:"background,omitempty" json:"background,omitempty"`
	Personality        Personality        `yaml:"personality,omitempty" json:"personality,omitempty"`
	SpeakingStyle      string             `yaml:"speaking_style,omitempty" json:"speaking_style,omitempty"`
	SelfAwareness      []string           `yaml:"self_awareness,omitempty" json:"self_awareness,omitempty"`
	Owner              Member             `yaml:"owner,omitempty" json:"owner,omitempty"`
	FamilyMembers      []Member           `yaml:"family_members,omitempty" json:"family_members,omitempty"`
	EmotionalResponses EmotionalResponses `yaml:"emotional_responses,omitempty" json:"emotional_responses,omitempty"`
	SpeechExamples     []string           `yaml:"speech_examples,omitempty" json:"speech_examples,omitempty"`
}

// Personality lists traits and tastes. A bare string is accepted as Summary.
type Personality struct {
	Summary  string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	Traits   []string `yaml:"traits,omitempty" json:"traits,omitempty"`
	Likes    []string `yaml:"likes,omitempty" json:"likes,omitempty"`
	Dislikes []string `yaml:"dislikes,omitempty" json:"dislikes,omitempty"`
}

type personalityFields Personality

func (p *Personality) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Summary = node.Value
		return nil
	}
	return node.Decode((*personalityFields)(p))
}

func (p *Personality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Summary = s
		return nil
	}
	return json.Unmarshal(data, (*personalityFields)(p))
}

// Member is the owner or another household member.
type Member struct {
	Name         string `yaml:"name" json:"name"`
	Nickname     string `yaml:"nickname,omitempty" json:"nickname,omitempty"`
	Role         string `yaml:"role,omitempty" json:"role,omitempty"`
	Relationship string `yaml:"relationship,omitempty" json:"relationship,omitempty"`
}

// EmotionalResponses are sample phrases per mood.
type EmotionalResponses struct {
	Happy   []string `yaml:"happy,omitempty" json:"happy,omitempty"`
	Curious []string `yaml:"curious,omitempty" json:"curious,omitempty"`
	Playful []string `yaml:"playful,omitempty" json:"playful,omitempty"`
}

// Load reads a persona from a .yaml, .yml or .json file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.CodePersonaInvalid, fmt.Sprintf("persona file not found: %s", path)).
				WithSuggestion("Run 'hearth init' to write a default persona.yaml")
		}
		return nil, fmt.Errorf("failed to read persona: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes persona data. ext selects JSON for ".json" and YAML otherwise.
func Parse(data []byte, ext string) (*Profile, error) {
	var p Profile
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &p)
	} else {
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersonaInvalid, "failed to parse persona", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required fields.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.New(apperrors.CodePersonaInvalid, "persona name is required")
	}
	for i, m := range p.FamilyMembers {
		if strings.TrimSpace(m.Name) == "" && strings.TrimSpace(m.Nickname) == "" {
			return apperrors.New(apperrors.CodePersonaInvalid,
				fmt.Sprintf("family member %d needs a name or nickname", i+1))
		}
	}
	return nil
}
