package dialogue

import (
	"context"
	"math/rand"
	"strings"

	"neurogpt/backend/internal/ai"
	"neurogpt/backend/internal/knowledge"
)

type OutcomeKind string

const (
	OutcomeQuiz                OutcomeKind = "quiz"
	OutcomeCannedPrompt        OutcomeKind = "canned_prompt"
	OutcomeContextContinuation OutcomeKind = "context_continuation"
	OutcomeIntentMatch         OutcomeKind = "intent_match"
	OutcomeEmotionMatch        OutcomeKind = "emotion_match"
	OutcomeGenerated           OutcomeKind = "generated"
	OutcomeLimitReached        OutcomeKind = "limit_reached"
	OutcomeError               OutcomeKind = "error"
)

// Outcome is the single result of one resolution call. Exactly one variant
// is produced per call; NextContext reports the slot value after any
// transition, for the continuation and intent variants only.
type Outcome struct {
	Kind        OutcomeKind
	UserMessage string
	BotResponse string
	NextContext Context
}

const (
	// SystemPrompt is the fixed instruction for the generative fallback.
	SystemPrompt = "You are a friendly growth mindset assistant."

	// DegradedResponse replaces any generative fallback failure.
	DegradedResponse = "⚠️ Something went wrong."

	starterPlanResponse = "💡 Starter Plan:\n\n1. Replace 'I can't' with 'I can't yet'\n2. Reflect nightly\n3. Set weekly growth goals\n4. Celebrate effort\n\nWant a full 7-day plan too?"

	sevenDayPlanResponse = "📅 Here's your 7-day mindset challenge:\n\nDay 1: Reframe 3 negative thoughts\nDay 2: Ask for feedback\nDay 3: Do something scary\nDay 4: Reflect on failure\nDay 5: Celebrate a win\nDay 6: Teach someone\nDay 7: Journal about your growth"

	trackerResponse = "📊 Weekly Tracker:\n- Daily Reflection\n- Feedback Notes\n- Weekly Challenge\n- Confidence Rating (1–5)"
)

// affirmatives is the exact reply set that advances a pending offer. Kept
// closed on purpose; near-miss phrasing ("yea", "yup") does not match.
var affirmatives = map[string]struct{}{
	"yes":        {},
	"yes please": {},
	"okay":       {},
	"sure":       {},
	"i want":     {},
	"i want it":  {},
	"yeah":       {},
	"yep":        {},
}

type emotionResponse struct {
	Keyword  string
	Response string
}

// emotionResponses is matched by substring containment in table order, so an
// earlier keyword wins even when a later one is a longer match.
var emotionResponses = []emotionResponse{
	{"anxious", "😟 It’s okay to feel anxious. Try to take a few deep breaths — you’re safe now."},
	{"calm", "🧘 I’m glad to hear you’re feeling calm. Hold onto that inner peace."},
	{"hopeful", "🌈 Hope is a powerful thing. Keep moving forward — you’re doing great."},
	{"angry", "😤 Anger can be a signal. Let’s find a healthy way to release it."},
	{"sad", "😢 I'm here for you. It’s okay to feel sad — you’re not alone."},
	{"confused", "🤔 It’s okay to not have all the answers. Clarity will come."},
	{"tired", "😴 You’ve been doing a lot. Maybe it's time for some rest and self-care."},
	{"frustrated", "😣 Frustration means you care. Let's take a step back and breathe."},
	{"lonely", "💔 You’re not alone — I’m here with you. Let’s talk."},
	{"guilty", "😔 Guilt shows you have a strong conscience. Be kind to yourself too."},
	{"relieved", "😌 I'm glad something got easier. You deserve that peace."},
	{"excited", "🎉 That’s wonderful! What’s making you feel this way?"},
	{"overwhelmed", "🌊 It’s okay to pause. Let’s break things down together."},
	{"happy", "😊 That’s great! I’m so glad to hear you're feeling happy."},
	{"low", "⬇️ Low moments happen. But they don’t define you."},
	{"depressed", "💙 You matter. You’re not alone in this. Want to talk about it?"},
	{"shame", "🫣 Shame isn’t truth. You are worthy just as you are."},
	{"jealous", "😒 Jealousy shows us what we value. Let’s explore that with compassion."},
	{"stressed", "😬 Stress is heavy. Let’s try a calming strategy together."},
	{"insecure", "🫥 Even now, you are enough. You’re growing, even if it’s hard to see."},
	{"peaceful", "🌿 That’s beautiful. I hope that peace stays with you."},
	{"numb", "🕳️ Numbness is a signal. Let’s reconnect, slowly and gently."},
	{"motivated", "🚀 Amazing! Let’s channel that energy toward something you care about."},
}

// Resolver runs the ordered resolution pipeline. Deterministic stages are
// always preferred over the generative call; the stage order is a contract,
// not an optimization.
type Resolver struct {
	kb          *knowledge.Base
	client      ai.Client
	maxTokens   int
	temperature float64

	// pick selects a response index; swapped out by tests.
	pick func(n int) int
}

func NewResolver(kb *knowledge.Base, client ai.Client, maxTokens int, temperature float64) *Resolver {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &Resolver{
		kb:          kb,
		client:      client,
		maxTokens:   maxTokens,
		temperature: temperature,
		pick:        rand.Intn,
	}
}

// Resolve produces exactly one outcome for the utterance. The session slot
// is mutated only by the continuation and intent stages; both run under the
// session lock so duplicate concurrent requests cannot interleave a stale
// read with a write.
func (r *Resolver) Resolve(ctx context.Context, utterance string, session *Session) Outcome {
	echo := strings.TrimSpace(utterance)
	normalized := strings.ToLower(echo)

	// Stage 1: quiz trigger wins regardless of context state.
	if strings.Contains(normalized, "self-assessment") || strings.Contains(normalized, "quiz") {
		return Outcome{Kind: OutcomeQuiz}
	}

	// Stage 2: canned prompt by exact case-insensitive title.
	if entry, ok := r.kb.Prompt(echo); ok {
		return Outcome{
			Kind:        OutcomeCannedPrompt,
			UserMessage: entry.UserMessage,
			BotResponse: entry.BotResponse,
		}
	}

	if outcome, ok := r.resolveStateful(normalized, echo, session); ok {
		return outcome
	}

	// Stage 5: emotion keywords, first match by table order.
	for _, entry := range emotionResponses {
		if strings.Contains(normalized, entry.Keyword) {
			return Outcome{
				Kind:        OutcomeEmotionMatch,
				UserMessage: echo,
				BotResponse: entry.Response,
			}
		}
	}

	// Stage 6: generative fallback. Upstream failures never propagate past
	// this boundary.
	answer, err := r.client.Complete(ctx, ai.Request{
		SystemPrompt: SystemPrompt,
		UserPrompt:   normalized,
		MaxTokens:    r.maxTokens,
		Temperature:  r.temperature,
	})
	if err != nil {
		return Outcome{
			Kind:        OutcomeError,
			UserMessage: echo,
			BotResponse: DegradedResponse,
		}
	}
	return Outcome{
		Kind:        OutcomeGenerated,
		UserMessage: echo,
		BotResponse: answer,
	}
}

// resolveStateful covers stages 3 and 4, which are the only ones allowed to
// touch the session slot.
func (r *Resolver) resolveStateful(normalized, echo string, session *Session) (Outcome, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()

	// Stage 3: a pending offer consumes an affirmative reply. Checked before
	// intent lookup so a bare "yes" can reach the pending offer at all.
	if _, affirmative := affirmatives[normalized]; affirmative {
		switch session.last {
		case ContextOfferStarterPlan:
			session.last = ContextOffer7DayPlan
			return Outcome{
				Kind:        OutcomeContextContinuation,
				UserMessage: echo,
				BotResponse: starterPlanResponse,
				NextContext: session.last,
			}, true
		case ContextOffer7DayPlan:
			session.last = ContextNone
			return Outcome{
				Kind:        OutcomeContextContinuation,
				UserMessage: echo,
				BotResponse: sevenDayPlanResponse,
				NextContext: session.last,
			}, true
		case ContextOfferTracker:
			session.last = ContextNone
			return Outcome{
				Kind:        OutcomeContextContinuation,
				UserMessage: echo,
				BotResponse: trackerResponse,
				NextContext: session.last,
			}, true
		}
	}

	// Stage 4: exact intent lookup. The follow-up directive arms (or clears)
	// the offer slot.
	record, ok := r.kb.Intent(normalized)
	if !ok || len(record.Responses) == 0 {
		return Outcome{}, false
	}
	session.last = contextForFollowUp(record.FollowUp)
	return Outcome{
		Kind:        OutcomeIntentMatch,
		UserMessage: echo,
		BotResponse: record.Responses[r.pick(len(record.Responses))],
		NextContext: session.last,
	}, true
}

func contextForFollowUp(followUp knowledge.FollowUp) Context {
	switch followUp {
	case knowledge.FollowUpStarterPlan:
		return ContextOffer7DayPlan
	case knowledge.FollowUpMixedMindsetPlan:
		return ContextOfferTracker
	case knowledge.FollowUpActionPlan:
		return ContextOfferStarterPlan
	}
	return ContextNone
}
