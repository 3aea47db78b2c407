package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"holograph/internal/metrics"
	"holograph/internal/resilience"
	"holograph/internal/types"
)

type stubJudge struct {
	judgment Judgment
	err      error
	delay    time.Duration
}

func (s *stubJudge) Review(ctx context.Context, answer, query string, evidence []types.Evidence) (Judgment, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Judgment{}, ctx.Err()
		}
	}
	return s.judgment, s.err
}

func newTestReviewer(judge Judge, cfg Config) (*Reviewer, *resilience.Breaker) {
	reg := metrics.NewRegistry()
	breaker := resilience.NewBreaker(BreakerName, resilience.DefaultBreakerConfig(), reg)
	return New(judge, breaker, reg, cfg), breaker
}

func TestReviewSuccess(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Score: 0.8, Confidence: 0.6, Flags: []string{"ok"}}}
	r, _ := newTestReviewer(judge, Config{Enabled: true, Budget: time.Second})

	res := r.ReviewAnswer(context.Background(), "answer", "query", nil)
	if res.Skipped {
		t.Fatalf("unexpected skip: %+v", res)
	}
	if res.Score == nil || *res.Score != 0.8 {
		t.Fatalf("score: %+v", res.Score)
	}
	if res.Confidence == nil || *res.Confidence != 0.6 {
		t.Fatalf("confidence: %+v", res.Confidence)
	}
	if res.LatencyMs < 0 {
		t.Fatalf("latency: %v", res.LatencyMs)
	}
}

func TestReviewDisabledSkips(t *testing.T) {
	r, _ := newTestReviewer(&stubJudge{}, Config{Enabled: false})

	res := r.ReviewAnswer(context.Background(), "answer", "query", nil)
	if !res.Skipped || res.SkipReason != "reviewer_disabled" {
		t.Fatalf("result: %+v", res)
	}
	if res.Score != nil || res.Confidence != nil {
		t.Fatal("skipped review must omit score fields")
	}
}

func TestReviewBreakerOpenSkips(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Score: 1}}
	r, breaker := newTestReviewer(judge, Config{Enabled: true, Budget: time.Second})
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	res := r.ReviewAnswer(context.Background(), "answer", "query", nil)
	if !res.Skipped || res.SkipReason != "circuit_breaker_open" {
		t.Fatalf("result: %+v", res)
	}
}

func TestReviewTimeoutSkips(t *testing.T) {
	judge := &stubJudge{delay: time.Second, judgment: Judgment{Score: 1}}
	r, breaker := newTestReviewer(judge, Config{Enabled: true, Budget: 20 * time.Millisecond})

	start := time.Now()
	res := r.ReviewAnswer(context.Background(), "answer", "query", nil)
	elapsed := time.Since(start)

	if !res.Skipped || res.SkipReason != "timeout_exceeded: 20ms" {
		t.Fatalf("result: %+v", res)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("slow judge must be abandoned, waited %v", elapsed)
	}
	// A timeout counts against the reviewer's breaker.
	if breaker.State() != resilience.StateClosed {
		t.Fatal("one timeout must not trip the breaker")
	}
	for i := 0; i < 4; i++ {
		r.ReviewAnswer(context.Background(), "answer", "query", nil)
	}
	if breaker.State() != resilience.StateOpen {
		t.Fatal("repeated timeouts must trip the breaker")
	}
}

func TestReviewJudgeErrorSkips(t *testing.T) {
	judge := &stubJudge{err: errors.New("model exploded")}
	r, _ := newTestReviewer(judge, Config{Enabled: true, Budget: time.Second})

	res := r.ReviewAnswer(context.Background(), "answer", "query", nil)
	if !res.Skipped || !strings.HasPrefix(res.SkipReason, "error: ") {
		t.Fatalf("result: %+v", res)
	}
}

func TestHeuristicJudgeGrounding(t *testing.T) {
	judge := NewHeuristicJudge()
	evidence := []types.Evidence{
		{Text: "thermal drift degrades sensor calibration over long deployments"},
	}

	grounded, err := judge.Review(context.Background(), "thermal drift degrades calibration", "q", evidence)
	if err != nil {
		t.Fatal(err)
	}
	if grounded.Score != 1 {
		t.Fatalf("fully grounded answer: %+v", grounded)
	}

	wild, err := judge.Review(context.Background(), "bananas cure everything immediately", "q", evidence)
	if err != nil {
		t.Fatal(err)
	}
	if wild.Score != 0 {
		t.Fatalf("ungrounded answer: %+v", wild)
	}
	var weak bool
	for _, f := range wild.Flags {
		if f == "weakly_grounded" {
			weak = true
		}
	}
	if !weak {
		t.Fatalf("flags: %v", wild.Flags)
	}
}

func TestHeuristicJudgeEmptyAnswer(t *testing.T) {
	judgment, err := NewHeuristicJudge().Review(context.Background(), "", "q", nil)
	if err != nil {
		t.Fatal(err)
	}
	if judgment.Score != 0 || len(judgment.Flags) == 0 {
		t.Fatalf("empty answer: %+v", judgment)
	}
}
