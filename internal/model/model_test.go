package model

import "testing"

func TestWatchedRepoMatches(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		query  string
		title  string
		issue  []string
		want   bool
	}{
		{name: "no filters", title: "anything", issue: []string{"docs"}, want: true},
		{name: "no filters, no labels", title: "anything", want: true},
		{name: "label intersects", labels: []string{"bug"}, issue: []string{"bug", "docs"}, want: true},
		{name: "label disjoint", labels: []string{"bug"}, issue: []string{"docs"}, want: false},
		{name: "label filter, unlabeled issue", labels: []string{"bug"}, want: false},
		{name: "any of several filters", labels: []string{"help wanted", "good first issue"}, issue: []string{"good first issue"}, want: true},
		{name: "label match is exact", labels: []string{"Bug"}, issue: []string{"bug"}, want: false},
		{name: "title substring, case-insensitive", query: "CRASH", title: "Fix crash on start", want: true},
		{name: "title miss", query: "leak", title: "Fix crash on start", want: false},
		{name: "label hit, title miss", labels: []string{"bug"}, query: "leak", title: "Fix crash", issue: []string{"bug"}, want: false},
		{name: "label hit, title hit", labels: []string{"bug"}, query: "fix", title: "Fix crash", issue: []string{"bug"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WatchedRepo{LabelFilters: tt.labels, TitleQuery: tt.query}
			if got := w.Matches(tt.title, tt.issue); got != tt.want {
				t.Errorf("Matches(%q, %v) = %v, want %v", tt.title, tt.issue, got, tt.want)
			}
		})
	}
}

func TestWatchedRepoHasFork(t *testing.T) {
	owner, repo, empty := "me", "widgets", ""

	if (&WatchedRepo{}).HasFork() {
		t.Error("HasFork() = true for watch without fork")
	}
	if (&WatchedRepo{ForkOwner: &owner, ForkRepo: &empty}).HasFork() {
		t.Error("HasFork() = true with empty fork repo")
	}
	if !(&WatchedRepo{ForkOwner: &owner, ForkRepo: &repo}).HasFork() {
		t.Error("HasFork() = false for complete fork coordinates")
	}
}

func TestAutoFixStatusTransitions(t *testing.T) {
	legal := map[[2]AutoFixStatus]bool{
		{StatusQueued, StatusGenerating}:     true,
		{StatusQueued, StatusSkipped}:        true,
		{StatusGenerating, StatusDraftReady}: true,
		{StatusGenerating, StatusFailed}:     true,
		{StatusDraftReady, StatusPublished}:  true,
		{StatusDraftReady, StatusRejected}:   true,
		{StatusSkipped, StatusQueued}:        true,
		{StatusFailed, StatusQueued}:         true,
	}

	all := []AutoFixStatus{
		StatusQueued, StatusGenerating, StatusDraftReady, StatusPublished,
		StatusRejected, StatusFailed, StatusSkipped,
	}

	// Exhaustive: every pair not listed above must be rejected.
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]AutoFixStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s → %s: CanTransition = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAutoFixStatusDraftReadyCannotRegenerate(t *testing.T) {
	if StatusDraftReady.CanTransition(StatusGenerating) {
		t.Fatal("draft_ready → generating must not be reachable")
	}
}

func TestAutoFixStatusValid(t *testing.T) {
	if !StatusDraftReady.Valid() {
		t.Error("draft_ready should be valid")
	}
	if AutoFixStatus("merged").Valid() {
		t.Error("merged should not be valid")
	}
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences("u1")
	if p.EmailEnabled || p.PushEnabled {
		t.Error("channels should default to off")
	}
	if !p.NewIssueEmail || !p.DraftReadyEmail || !p.NewIssuePush || !p.DraftReadyPush {
		t.Error("per-kind toggles should default to on")
	}
	if p.PushSubscription != nil {
		t.Error("no push subscription by default")
	}
}
