package declaration_test

import (
	"testing"
	"time"

	"clearwatch/internal/declaration"
)

func testRules() declaration.Rules {
	return declaration.Rules{
		ClearedStatus:      "Cleared",
		OtherTransportCode: "9",
		ManagementPrefixes: []string{"#&NKTC", "#&XKTC"},
	}
}

func baseDeclaration() declaration.Declaration {
	return declaration.Declaration{
		TenantCode:      "0312345678",
		Number:          "104558812345",
		Date:            time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		CustomsOffice:   "02CV",
		TransportMethod: "1",
		Channel:         declaration.ChannelGreen,
		StatusCode:      "Cleared",
	}
}

func TestIsEligibleGreenCleared(t *testing.T) {
	filter := declaration.NewFilter(testRules())
	d := baseDeclaration()
	if !filter.IsEligible(d) {
		t.Fatal("green cleared declaration should be eligible")
	}
}

func TestIsEligibleChannels(t *testing.T) {
	filter := declaration.NewFilter(testRules())
	cases := []struct {
		channel declaration.Channel
		want    bool
	}{
		{declaration.ChannelGreen, true},
		{declaration.ChannelYellow, true},
		{declaration.ChannelRed, false},
		{declaration.Channel("purple"), false},
		{declaration.Channel(""), false},
	}
	for _, tc := range cases {
		d := baseDeclaration()
		d.Channel = tc.channel
		if got := filter.IsEligible(d); got != tc.want {
			t.Fatalf("channel %q: eligible=%v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestIsEligibleStatusAndTransport(t *testing.T) {
	filter := declaration.NewFilter(testRules())

	d := baseDeclaration()
	d.StatusCode = "Pending"
	if filter.IsEligible(d) {
		t.Fatal("non-cleared status should be ineligible")
	}

	d = baseDeclaration()
	d.TransportMethod = "9"
	if filter.IsEligible(d) {
		t.Fatal("other-transport sentinel should be ineligible")
	}
}

func TestIsEligibleManagementPrefixes(t *testing.T) {
	filter := declaration.NewFilter(testRules())

	d := baseDeclaration()
	d.GoodsDescription = "#&NKTC-internal transfer paperwork"
	if filter.IsEligible(d) {
		t.Fatal("management prefix should be ineligible regardless of channel/status")
	}

	// Prefix match only, not substring.
	d.GoodsDescription = "goods ref #&NKTC batch"
	if !filter.IsEligible(d) {
		t.Fatal("prefix appearing mid-description should stay eligible")
	}

	// Empty description is eligible.
	d.GoodsDescription = ""
	if !filter.IsEligible(d) {
		t.Fatal("empty description should be eligible")
	}
}

func TestEligibleKeepsInputOrder(t *testing.T) {
	filter := declaration.NewFilter(testRules())

	first := baseDeclaration()
	first.Number = "100000000001"
	second := baseDeclaration()
	second.Number = "100000000002"
	second.Channel = declaration.ChannelRed
	third := baseDeclaration()
	third.Number = "100000000003"
	third.Channel = declaration.ChannelYellow

	eligible := filter.Eligible([]declaration.Declaration{first, second, third})
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible declarations, got %d", len(eligible))
	}
	if eligible[0].Number != first.Number || eligible[1].Number != third.Number {
		t.Fatalf("eligible order changed: %v", []string{eligible[0].Number, eligible[1].Number})
	}
}

func TestParseDateFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Minute)
	got := declaration.ParseDate("not a date")
	if got.Before(before.Truncate(24 * time.Hour)) {
		t.Fatalf("expected fallback near now, got %v", got)
	}

	parsed := declaration.ParseDate("20/08/2026")
	if parsed.Format(declaration.DateLayout) != "2026-08-20" {
		t.Fatalf("expected 2026-08-20, got %s", parsed.Format(declaration.DateLayout))
	}
}

func TestParseChannel(t *testing.T) {
	if declaration.ParseChannel("Green") != declaration.ChannelGreen {
		t.Fatal("expected green")
	}
	if declaration.ParseChannel("2") != declaration.ChannelYellow {
		t.Fatal("expected yellow from numeric code")
	}
	if declaration.ParseChannel("3") != declaration.ChannelRed {
		t.Fatal("expected red from numeric code")
	}
}
