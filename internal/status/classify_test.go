package status_test

import (
	"testing"

	"clearwatch/internal/status"
)

func newClassifier(heuristic bool) *status.Classifier {
	return status.NewClassifier(
		[]string{"cleared", "clearance granted"},
		[]string{"approved for transfer", "transfer"},
		heuristic,
	)
}

func TestClassifyKeywords(t *testing.T) {
	classifier := newClassifier(true)
	cases := []struct {
		name   string
		result status.Result
		want   status.Outcome
	}{
		{"cleared", status.Result{IsValid: true, StatusText: "Declaration cleared"}, status.OutcomeCleared},
		{"cleared phrase", status.Result{IsValid: true, StatusText: "CLEARANCE GRANTED on 2026-08-20"}, status.OutcomeCleared},
		{"transfer wins over cleared", status.Result{IsValid: true, StatusText: "cleared, approved for transfer"}, status.OutcomeTransfer},
		{"pending", status.Result{IsValid: true, StatusText: "awaiting inspection"}, status.OutcomePending},
		{"error response", status.Result{IsValid: true, HasError: true, ErrorText: "boom"}, status.OutcomeInconclusive},
		{"invalid response", status.Result{IsValid: false}, status.OutcomeInconclusive},
	}
	for _, tc := range cases {
		if got := classifier.Classify(tc.result); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyBarcodeImageHeuristic(t *testing.T) {
	withHeuristic := newClassifier(true)
	result := status.Result{IsValid: true, StatusText: "", HasBarcodeImages: true}
	if got := withHeuristic.Classify(result); got != status.OutcomeCleared {
		t.Fatalf("expected cleared via barcode heuristic, got %s", got)
	}

	withoutHeuristic := newClassifier(false)
	if got := withoutHeuristic.Classify(result); got != status.OutcomeInconclusive {
		t.Fatalf("expected inconclusive with heuristic disabled, got %s", got)
	}

	// No text and no images is always inconclusive.
	empty := status.Result{IsValid: true}
	if got := withHeuristic.Classify(empty); got != status.OutcomeInconclusive {
		t.Fatalf("expected inconclusive for empty response, got %s", got)
	}
}
