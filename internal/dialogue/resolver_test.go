package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"neurogpt/backend/internal/ai"
	"neurogpt/backend/internal/knowledge"
)

func testBase(t *testing.T) *knowledge.Base {
	t.Helper()
	return knowledge.NewBase(
		[]knowledge.PromptEntry{
			{
				Title:       "What is a growth mindset?",
				UserMessage: "What is a growth mindset?",
				BotResponse: "a belief that abilities can grow",
			},
		},
		nil,
		[]knowledge.IntentRecord{
			{
				ID:        "greeting",
				Patterns:  []string{"hello", "hi"},
				Responses: []string{"hi there", "hello!", "hey!"},
			},
			{
				ID:        "action_plan",
				Patterns:  []string{"i want a plan"},
				Responses: []string{"want a starter plan?"},
				FollowUp:  knowledge.FollowUpActionPlan,
			},
			{
				ID:        "starter_plan",
				Patterns:  []string{"give me a starter plan"},
				Responses: []string{"here is the starter plan"},
				FollowUp:  knowledge.FollowUpStarterPlan,
			},
			{
				ID:        "mixed_mindset_plan",
				Patterns:  []string{"my mindset is mixed"},
				Responses: []string{"want a tracker?"},
				FollowUp:  knowledge.FollowUpMixedMindsetPlan,
			},
		},
	)
}

func newTestResolver(t *testing.T, client ai.Client) *Resolver {
	t.Helper()
	return NewResolver(testBase(t), client, 200, 0.7)
}

func TestQuizTriggerWinsRegardlessOfContext(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})
	session := &Session{last: ContextOfferStarterPlan}

	for _, utterance := range []string{"  QUIZ  ", "start the self-assessment", "quiz please"} {
		outcome := resolver.Resolve(context.Background(), utterance, session)
		if outcome.Kind != OutcomeQuiz {
			t.Fatalf("utterance %q: expected quiz outcome, got %q", utterance, outcome.Kind)
		}
	}
	if session.Last() != ContextOfferStarterPlan {
		t.Fatalf("quiz outcome must not touch the context slot")
	}
}

func TestCannedPromptMatchesTitleCaseInsensitive(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})

	outcome := resolver.Resolve(context.Background(), "what is a growth mindset?", &Session{})
	if outcome.Kind != OutcomeCannedPrompt {
		t.Fatalf("expected canned prompt, got %q", outcome.Kind)
	}
	if outcome.BotResponse != "a belief that abilities can grow" {
		t.Fatalf("unexpected canned response: %q", outcome.BotResponse)
	}
}

func TestContextContinuationIsOrderDependent(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})
	session := &Session{last: ContextOfferStarterPlan}

	first := resolver.Resolve(context.Background(), "sure", session)
	if first.Kind != OutcomeContextContinuation {
		t.Fatalf("expected continuation, got %q", first.Kind)
	}
	if first.NextContext != ContextOffer7DayPlan {
		t.Fatalf("expected transition to offer_7_day_plan, got %s", first.NextContext)
	}
	if !strings.Contains(first.BotResponse, "Starter Plan") {
		t.Fatalf("expected starter plan text, got %q", first.BotResponse)
	}

	second := resolver.Resolve(context.Background(), "sure", session)
	if second.Kind != OutcomeContextContinuation {
		t.Fatalf("expected continuation, got %q", second.Kind)
	}
	if second.NextContext != ContextNone {
		t.Fatalf("expected context cleared, got %s", second.NextContext)
	}
	if !strings.Contains(second.BotResponse, "7-day mindset challenge") {
		t.Fatalf("expected 7-day plan text, got %q", second.BotResponse)
	}
}

func TestTrackerOfferClearsAfterAffirmative(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})
	session := &Session{last: ContextOfferTracker}

	outcome := resolver.Resolve(context.Background(), "yes please", session)
	if outcome.Kind != OutcomeContextContinuation {
		t.Fatalf("expected continuation, got %q", outcome.Kind)
	}
	if !strings.Contains(outcome.BotResponse, "Weekly Tracker") {
		t.Fatalf("expected tracker text, got %q", outcome.BotResponse)
	}
	if session.Last() != ContextNone {
		t.Fatalf("expected tracker offer consumed")
	}
}

func TestAffirmativeWithoutContextFallsThrough(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated fallback"})
	session := &Session{}

	outcome := resolver.Resolve(context.Background(), "yes", session)
	if outcome.Kind != OutcomeGenerated {
		t.Fatalf("expected fall-through to generative stage, got %q", outcome.Kind)
	}
	if outcome.BotResponse != "generated fallback" {
		t.Fatalf("unexpected response: %q", outcome.BotResponse)
	}
}

func TestIntentMatchPicksFromResponseSetOnly(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})
	valid := map[string]struct{}{"hi there": {}, "hello!": {}, "hey!": {}}

	for i := 0; i < 50; i++ {
		outcome := resolver.Resolve(context.Background(), "Hello", &Session{})
		if outcome.Kind != OutcomeIntentMatch {
			t.Fatalf("expected intent match, got %q", outcome.Kind)
		}
		if _, ok := valid[outcome.BotResponse]; !ok {
			t.Fatalf("response %q is outside the record's response set", outcome.BotResponse)
		}
	}
}

func TestIntentFollowUpArmsOfferContext(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})

	cases := []struct {
		utterance string
		want      Context
	}{
		{"i want a plan", ContextOfferStarterPlan},
		{"give me a starter plan", ContextOffer7DayPlan},
		{"my mindset is mixed", ContextOfferTracker},
		{"hello", ContextNone},
	}
	for _, tc := range cases {
		session := &Session{last: ContextOfferTracker}
		outcome := resolver.Resolve(context.Background(), tc.utterance, session)
		if outcome.Kind != OutcomeIntentMatch {
			t.Fatalf("utterance %q: expected intent match, got %q", tc.utterance, outcome.Kind)
		}
		if session.Last() != tc.want {
			t.Fatalf("utterance %q: expected context %s, got %s", tc.utterance, tc.want, session.Last())
		}
	}
}

func TestEmotionKeywordFirstMatchWinsByTableOrder(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})

	// "anxious" precedes "stressed" in the table.
	outcome := resolver.Resolve(context.Background(), "i am stressed and anxious today", &Session{})
	if outcome.Kind != OutcomeEmotionMatch {
		t.Fatalf("expected emotion match, got %q", outcome.Kind)
	}
	if !strings.Contains(outcome.BotResponse, "anxious") {
		t.Fatalf("expected anxious response to win, got %q", outcome.BotResponse)
	}
}

func TestEmotionKeywordMatchesEmbeddedSubstring(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})

	// Substring containment is deliberate: "sad" inside another word matches.
	outcome := resolver.Resolve(context.Background(), "the crusade continues", &Session{})
	if outcome.Kind != OutcomeEmotionMatch {
		t.Fatalf("expected embedded substring to match, got %q", outcome.Kind)
	}
}

func TestGenerativeFailureYieldsDegradedOutcome(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Err: errors.New("upstream down")})

	outcome := resolver.Resolve(context.Background(), "tell me something new", &Session{})
	if outcome.Kind != OutcomeError {
		t.Fatalf("expected degraded outcome, got %q", outcome.Kind)
	}
	if outcome.BotResponse != DegradedResponse {
		t.Fatalf("expected fixed degraded text, got %q", outcome.BotResponse)
	}
	if outcome.UserMessage != "tell me something new" {
		t.Fatalf("expected utterance echo, got %q", outcome.UserMessage)
	}
}

func TestResolveEchoesOriginalCase(t *testing.T) {
	resolver := newTestResolver(t, ai.Mock{Reply: "generated"})

	outcome := resolver.Resolve(context.Background(), "  HeLLo  ", &Session{})
	if outcome.Kind != OutcomeIntentMatch {
		t.Fatalf("expected intent match, got %q", outcome.Kind)
	}
	if outcome.UserMessage != "HeLLo" {
		t.Fatalf("expected original-case echo, got %q", outcome.UserMessage)
	}
}
