package session

import (
	"errors"
	"testing"

	"github.com/scb10x/typhoon-scribe/internal/transcription"
)

func TestReconcilerInOrderResults(t *testing.T) {
	rec := NewReconciler(nil)

	if !rec.ApplyComplete(1, &transcription.Result{Text: "hello"}) {
		t.Fatal("First result was rejected")
	}
	if !rec.ApplyComplete(2, &transcription.Result{Text: "hello world"}) {
		t.Fatal("Newer result was rejected")
	}

	if got := rec.Outcome().Text; got != "hello world" {
		t.Errorf("Expected latest text, got %q", got)
	}
}

func TestReconcilerDiscardsStaleResults(t *testing.T) {
	rec := NewReconciler(nil)

	rec.ApplyComplete(3, &transcription.Result{Text: "newer"})

	if rec.ApplyComplete(2, &transcription.Result{Text: "older"}) {
		t.Error("Stale result was applied")
	}
	if got := rec.Outcome().Text; got != "newer" {
		t.Errorf("Stale result overwrote newer one: %q", got)
	}
}

func TestReconcilerEqualSequenceApplies(t *testing.T) {
	rec := NewReconciler(nil)

	rec.ApplyComplete(2, &transcription.Result{Text: "first"})
	if !rec.ApplyComplete(2, &transcription.Result{Text: "second"}) {
		t.Error("Result with equal sequence was rejected")
	}
	if got := rec.Outcome().Text; got != "second" {
		t.Errorf("Expected %q, got %q", "second", got)
	}
}

func TestReconcilerErrorKeepsLatestOnly(t *testing.T) {
	rec := NewReconciler(nil)

	rec.ApplyError(errors.New("first failure"))
	rec.ApplyError(errors.New("second failure"))

	out := rec.Outcome()
	if out.Error != "second failure" {
		t.Errorf("Expected latest error only, got %q", out.Error)
	}
}

func TestReconcilerErrorDoesNotClearText(t *testing.T) {
	rec := NewReconciler(nil)

	rec.ApplyComplete(1, &transcription.Result{Text: "partial transcript"})
	rec.ApplyError(errors.New("final request failed"))

	out := rec.Outcome()
	if out.Text != "partial transcript" {
		t.Errorf("Error wiped the transcript: %q", out.Text)
	}
	if out.Error == "" {
		t.Error("Error was not recorded")
	}
}

func TestReconcilerNotify(t *testing.T) {
	var published []Outcome
	rec := NewReconciler(func(out Outcome) {
		published = append(published, out)
	})

	rec.SetStatus(StatusRecording)
	rec.ApplyComplete(1, &transcription.Result{Text: "x"})
	rec.ApplyComplete(0, &transcription.Result{Text: "stale"}) // discarded, no publish
	rec.SetStatus(StatusIdle)

	if len(published) != 3 {
		t.Fatalf("Expected 3 notifications, got %d", len(published))
	}
	if published[1].Text != "x" || published[1].Status != StatusRecording {
		t.Errorf("Bad notification payload: %+v", published[1])
	}
	if published[2].Status != StatusIdle {
		t.Errorf("Expected idle status in last notification, got %+v", published[2])
	}
}
