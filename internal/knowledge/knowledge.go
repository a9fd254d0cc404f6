package knowledge

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// FollowUp directs the dialogue layer to arm a pending offer after an
// intent match.
type FollowUp string

const (
	FollowUpNone             FollowUp = ""
	FollowUpStarterPlan      FollowUp = "starter_plan"
	FollowUpMixedMindsetPlan FollowUp = "mixed_mindset_plan"
	FollowUpActionPlan       FollowUp = "action_plan"
)

type IntentRecord struct {
	ID        string   `json:"intent"`
	Patterns  []string `json:"patterns"`
	Responses []string `json:"responses"`
	FollowUp  FollowUp `json:"-"`
}

type PromptEntry struct {
	Title       string `json:"title"`
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
}

// Base holds all static response data. It is built once at startup and is
// never mutated afterwards, so concurrent readers need no locking.
type Base struct {
	Prompts []PromptEntry
	Quiz    json.RawMessage
	Intents []IntentRecord

	index map[string]IntentRecord
}

// intentSources are merged in order; on duplicate pattern text the later
// source wins.
var intentSources = []string{
	"intents.json",
	"emotion.json",
	"emotional.json",
	"journaling.json",
	"neurogptgrowth.json",
}

// Load reads every knowledge source under dir. A missing or malformed file
// contributes an empty result and logs a warning; Load itself never fails.
func Load(dir string) *Base {
	paths := make([]string, 0, len(intentSources))
	for _, name := range intentSources {
		paths = append(paths, filepath.Join(dir, name))
	}
	return LoadFiles(
		filepath.Join(dir, "prompts.json"),
		filepath.Join(dir, "quiz.json"),
		paths,
	)
}

func LoadFiles(promptsPath, quizPath string, intentPaths []string) *Base {
	return NewBase(loadPrompts(promptsPath), loadQuiz(quizPath), mergeIntents(intentPaths))
}

// NewBase builds a knowledge base from already-loaded data, flattening the
// intent pattern index.
func NewBase(prompts []PromptEntry, quiz json.RawMessage, intents []IntentRecord) *Base {
	return &Base{
		Prompts: prompts,
		Quiz:    quiz,
		Intents: intents,
		index:   buildIntentIndex(intents),
	}
}

// Intent looks up a normalized (lower-cased, trimmed) utterance in the
// pattern index.
func (b *Base) Intent(normalized string) (IntentRecord, bool) {
	record, ok := b.index[normalized]
	return record, ok
}

// Prompt matches an utterance against the prompt menu by exact
// case-insensitive title equality.
func (b *Base) Prompt(utterance string) (PromptEntry, bool) {
	for _, entry := range b.Prompts {
		if strings.EqualFold(strings.TrimSpace(entry.Title), strings.TrimSpace(utterance)) {
			return entry, true
		}
	}
	return PromptEntry{}, false
}

func (b *Base) QuizPayload() json.RawMessage {
	if len(b.Quiz) == 0 {
		return json.RawMessage("[]")
	}
	return b.Quiz
}

func buildIntentIndex(intents []IntentRecord) map[string]IntentRecord {
	index := make(map[string]IntentRecord)
	for _, record := range intents {
		for _, pattern := range record.Patterns {
			key := strings.ToLower(strings.TrimSpace(pattern))
			if key == "" {
				continue
			}
			index[key] = record
		}
	}
	return index
}

func loadPrompts(path string) []PromptEntry {
	var payload struct {
		PromptMenu struct {
			Prompts []PromptEntry `json:"prompts"`
		} `json:"prompt_menu"`
	}
	if !readJSON(path, &payload) {
		return nil
	}
	return payload.PromptMenu.Prompts
}

func loadQuiz(path string) json.RawMessage {
	var payload struct {
		SelfAssessmentQuiz json.RawMessage `json:"self_assessment_quiz"`
	}
	if !readJSON(path, &payload) {
		return nil
	}
	return payload.SelfAssessmentQuiz
}

func mergeIntents(paths []string) []IntentRecord {
	merged := make([]IntentRecord, 0, 64)
	for _, path := range paths {
		var payload struct {
			Intents []IntentRecord `json:"intents"`
		}
		if !readJSON(path, &payload) {
			continue
		}
		for _, record := range payload.Intents {
			record.FollowUp = followUpForIntent(record.ID)
			merged = append(merged, record)
		}
	}
	return merged
}

func followUpForIntent(id string) FollowUp {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case string(FollowUpStarterPlan):
		return FollowUpStarterPlan
	case string(FollowUpMixedMindsetPlan):
		return FollowUpMixedMindsetPlan
	case string(FollowUpActionPlan):
		return FollowUpActionPlan
	}
	return FollowUpNone
}

func readJSON(path string, target any) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("knowledge source %s unavailable: %v", path, err)
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		log.Printf("knowledge source %s malformed: %v", path, err)
		return false
	}
	return true
}
