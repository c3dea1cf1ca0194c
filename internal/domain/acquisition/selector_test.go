package acquisition

import (
	"context"
	"testing"
)

type fakeChecker struct {
	layer Layer
	eligible bool
	reason string
}

func (f fakeChecker) Layer() Layer { return f.layer }
func (f fakeChecker) CheckEligible(ctx context.Context) Eligibility {
	return Eligibility{Layer: f.layer, Eligible: f.eligible, Reason: f.reason}
}

func TestSelector_PicksFirstEligibleInOrder(t *testing.T) {
	s := NewSelector(
		fakeChecker{layer: LayerWireIntercept, eligible: false, reason: "proxy down"},
		fakeChecker{layer: LayerHelperEndpoint, eligible: true},
		fakeChecker{layer: LayerDOMScrape, eligible: true},
	)

	chosen, report, ok := s.Select(context.Background())
	if !ok {
		t.Fatal("expected a layer to be selected")
	}
	if chosen != LayerHelperEndpoint {
		t.Fatalf("expected helper_endpoint, got %q", chosen)
	}
	if len(report) != 3 {
		t.Fatalf("expected a report entry per checker, got %d", len(report))
	}
	if report[0].Eligible {
		t.Fatal("expected the wire-intercept entry to report ineligible")
	}
}

func TestSelector_NoneEligible(t *testing.T) {
	s := NewSelector(
		fakeChecker{layer: LayerWireIntercept, eligible: false},
		fakeChecker{layer: LayerHelperEndpoint, eligible: false},
		fakeChecker{layer: LayerDOMScrape, eligible: false},
	)

	_, report, ok := s.Select(context.Background())
	if ok {
		t.Fatal("expected no layer to be eligible")
	}
	if len(report) != 3 {
		t.Fatalf("expected 3 report entries, got %d", len(report))
	}
}

func TestSelector_AlwaysPicksFirstEvenIfLaterAlsoEligible(t *testing.T) {
	s := NewSelector(
		fakeChecker{layer: LayerWireIntercept, eligible: true},
		fakeChecker{layer: LayerHelperEndpoint, eligible: true},
	)

	chosen, _, ok := s.Select(context.Background())
	if !ok || chosen != LayerWireIntercept {
		t.Fatalf("expected wire_intercept chosen first, got %q ok=%v", chosen, ok)
	}
}

func TestSelector_EmptySelectorReturnsNotOK(t *testing.T) {
	s := NewSelector()
	_, report, ok := s.Select(context.Background())
	if ok {
		t.Fatal("expected an empty selector to report not ok")
	}
	if report != nil {
		t.Fatalf("expected a nil report, got %+v", report)
	}
}
