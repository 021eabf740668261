// Package hostscript holds the canned lines and prompts the conversation host
// draws from, and the pickers that choose between them.
package hostscript

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"kindred/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed script.yaml
var defaultScript []byte

// Prompt is one question the host can ask.
type Prompt struct {
	ID            string   `yaml:"id" json:"id"`
	Text          string   `yaml:"text" json:"text"`
	Options       []string `yaml:"options,omitempty" json:"options,omitempty"`
	CorrectAnswer string   `yaml:"correct_answer,omitempty" json:"correct_answer,omitempty"`
}

// Comparisons are comments on how the two answers of a round relate.
type Comparisons struct {
	Same      []string `yaml:"same"`
	Different []string `yaml:"different"`
	Close     []string `yaml:"close"`
	Far       []string `yaml:"far"`
}

// Script is the full content table.
type Script struct {
	Intro       []string            `yaml:"intro"`
	Reactions   []string            `yaml:"reactions"`
	Handoff     []string            `yaml:"handoff"`
	Farewell    []string            `yaml:"farewell"`
	Comparisons Comparisons         `yaml:"comparisons"`
	Games       map[string][]Prompt `yaml:"games"`
}

// Default returns the embedded script.
func Default() (*Script, error) {
	return Load(bytes.NewReader(defaultScript))
}

// LoadFile reads a script override from disk.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open host script: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load decodes and validates a YAML script.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode host script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every playable stage has content.
func (s *Script) Validate() error {
	if len(s.Intro) == 0 || len(s.Handoff) == 0 || len(s.Farewell) == 0 {
		return fmt.Errorf("host script needs intro, handoff and farewell lines")
	}
	for _, spec := range models.PlayableStages() {
		prompts := s.Games[spec.GameType]
		if len(prompts) == 0 {
			return fmt.Errorf("host script has no prompts for %s", spec.GameType)
		}
		seen := make(map[string]struct{}, len(prompts))
		for _, p := range prompts {
			if p.ID == "" || strings.TrimSpace(p.Text) == "" {
				return fmt.Errorf("host script prompt in %s is missing id or text", spec.GameType)
			}
			if _, dup := seen[p.ID]; dup {
				return fmt.Errorf("host script prompt id %q repeated in %s", p.ID, spec.GameType)
			}
			seen[p.ID] = struct{}{}
		}
	}
	return nil
}

// Provider supplies host content to the session engine.
type Provider interface {
	Intro() string
	Prompt(gameType string, asked []string) Prompt
	Reaction() (string, bool)
	Compare(gameType, a, b string) (string, bool)
	Handoff() string
	Farewell() string
}

// Library serves lines from a Script using a Picker.
type Library struct {
	script         *Script
	picker         Picker
	reactionChance int
}

// NewLibrary builds a provider. reactionPercent is the chance (0-100) that an
// answer gets a flavour reaction.
func NewLibrary(script *Script, picker Picker, reactionPercent int) *Library {
	return &Library{script: script, picker: picker, reactionChance: reactionPercent}
}

func (l *Library) pick(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[l.picker.Intn(len(lines))]
}

func (l *Library) Intro() string    { return l.pick(l.script.Intro) }
func (l *Library) Handoff() string  { return l.pick(l.script.Handoff) }
func (l *Library) Farewell() string { return l.pick(l.script.Farewell) }

// Prompt picks a prompt for the game that is not in asked. Once every prompt
// has been asked it only avoids repeating the most recent one.
func (l *Library) Prompt(gameType string, asked []string) Prompt {
	prompts := l.script.Games[gameType]
	if len(prompts) == 0 {
		return Prompt{}
	}
	start := l.picker.Intn(len(prompts))
	for i := range prompts {
		p := prompts[(start+i)%len(prompts)]
		if !slices.Contains(asked, p.ID) {
			return p
		}
	}
	if n := len(asked); n > 0 && len(prompts) > 1 && prompts[start].ID == asked[n-1] {
		start = (start + 1) % len(prompts)
	}
	return prompts[start]
}

// Reaction returns a flavour line when the picker decides to react.
func (l *Library) Reaction() (string, bool) {
	if len(l.script.Reactions) == 0 || !l.picker.Chance(l.reactionChance) {
		return "", false
	}
	return l.pick(l.script.Reactions), true
}

// Compare comments on two answers for the games where that is meaningful.
func (l *Library) Compare(gameType, a, b string) (string, bool) {
	var lines []string
	switch gameType {
	case models.GameThisOrThat, models.GameWouldYouRather:
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
			lines = l.script.Comparisons.Same
		} else {
			lines = l.script.Comparisons.Different
		}
	case models.GameRateScale:
		x, errA := strconv.Atoi(strings.TrimSpace(a))
		y, errB := strconv.Atoi(strings.TrimSpace(b))
		if errA != nil || errB != nil {
			return "", false
		}
		if diff := x - y; diff <= 2 && diff >= -2 {
			lines = l.script.Comparisons.Close
		} else {
			lines = l.script.Comparisons.Far
		}
	default:
		return "", false
	}
	line := l.pick(lines)
	if line == "" {
		return "", false
	}
	return strings.NewReplacer("{a}", a, "{b}", b).Replace(line), true
}
