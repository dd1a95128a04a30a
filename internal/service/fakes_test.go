package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/oss-hunter/internal/apperror"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/notifier"
	"github.com/sakif/oss-hunter/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository interfaces and
// the GitHub gateway. They are goroutine-safe because the sweeps fan out.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- users ---------------------------------------------------------------

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User // keyed by internal ID
	byGHID map[int64]*model.User  // keyed by GitHub ID (for Upsert)
	nextID int
	// set to a non-nil error to simulate a database failure
	upsertErr  error
	getByIDErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*model.User),
		byGHID: make(map[int64]*model.User),
		nextID: 1,
	}
}

func (f *fakeUserRepo) Upsert(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGHID[user.GitHubID]; ok {
		existing.Login = user.Login
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		if user.AccessToken != nil {
			existing.AccessToken = user.AccessToken
		}
		*user = *existing
		return nil
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	f.byGHID[user.GitHubID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) SetAccessToken(_ context.Context, userID string, sealed []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.AccessToken = sealed
	return nil
}

// add stores a user directly, bypassing Upsert.
func (f *fakeUserRepo) add(id, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &model.User{ID: id, Login: id, Email: email}
}

// --- watched repos -------------------------------------------------------

type fakeWatchRepo struct {
	mu      sync.Mutex
	watches map[string]*model.WatchedRepo
	order   []string
	nextID  int
	listErr error
}

func newFakeWatchRepo() *fakeWatchRepo {
	return &fakeWatchRepo{watches: make(map[string]*model.WatchedRepo)}
}

func (f *fakeWatchRepo) Create(_ context.Context, w *model.WatchedRepo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		e := f.watches[id]
		if e.UserID == w.UserID && e.Owner == w.Owner && e.Repo == w.Repo {
			return apperror.Conflict("watched repo", w.Owner+"/"+w.Repo)
		}
	}
	f.nextID++
	w.ID = fmt.Sprintf("watch-%d", f.nextID)
	w.CreatedAt = time.Now()
	copied := *w
	f.watches[w.ID] = &copied
	f.order = append(f.order, w.ID)
	return nil
}

func (f *fakeWatchRepo) GetByID(_ context.Context, id string) (*model.WatchedRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[id]
	if !ok {
		return nil, apperror.NotFound("watched repo", id)
	}
	copied := *w
	return &copied, nil
}

func (f *fakeWatchRepo) filter(keep func(*model.WatchedRepo) bool) ([]model.WatchedRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.WatchedRepo{}
	for _, id := range f.order {
		if w := f.watches[id]; keep(w) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeWatchRepo) ListByUser(_ context.Context, userID string) ([]model.WatchedRepo, error) {
	return f.filter(func(w *model.WatchedRepo) bool { return w.UserID == userID })
}

func (f *fakeWatchRepo) ListActive(_ context.Context) ([]model.WatchedRepo, error) {
	return f.filter(func(w *model.WatchedRepo) bool { return !w.Frozen })
}

func (f *fakeWatchRepo) ListWatchers(_ context.Context, owner, repo string) ([]model.WatchedRepo, error) {
	return f.filter(func(w *model.WatchedRepo) bool {
		return !w.Frozen && strings.EqualFold(w.Owner, owner) && strings.EqualFold(w.Repo, repo)
	})
}

func (f *fakeWatchRepo) Update(_ context.Context, w *model.WatchedRepo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[w.ID]; !ok {
		return apperror.NotFound("watched repo", w.ID)
	}
	copied := *w
	f.watches[w.ID] = &copied
	return nil
}

func (f *fakeWatchRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[id]; !ok {
		return apperror.NotFound("watched repo", id)
	}
	delete(f.watches, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

// add stores a watch directly and returns it.
func (f *fakeWatchRepo) add(w model.WatchedRepo) *model.WatchedRepo {
	if err := f.Create(context.Background(), &w); err != nil {
		panic(err)
	}
	return &w
}

// --- tracked issues ------------------------------------------------------

type fakeIssueRepo struct {
	mu      sync.Mutex
	watches *fakeWatchRepo
	issues  map[string]*model.TrackedIssue
	order   []string
	nextID  int

	createErr     error
	transitionErr error
	// transitions records every successful status change, in order.
	transitions []string
}

func newFakeIssueRepo(watches *fakeWatchRepo) *fakeIssueRepo {
	return &fakeIssueRepo{watches: watches, issues: make(map[string]*model.TrackedIssue)}
}

func (f *fakeIssueRepo) Create(_ context.Context, issue *model.TrackedIssue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, e := range f.issues {
		if e.WatchedRepoID == issue.WatchedRepoID && e.IssueNumber == issue.IssueNumber {
			return apperror.Conflict("tracked issue", issue.WatchedRepoID)
		}
	}
	f.nextID++
	issue.ID = fmt.Sprintf("issue-%d", f.nextID)
	if issue.Type == "" {
		issue.Type = model.TypeIssue
	}
	if issue.State == "" {
		issue.State = model.StateOpen
	}
	if issue.AutoFixStatus == "" {
		issue.AutoFixStatus = model.StatusQueued
	}
	issue.CreatedAt = time.Now()
	copied := *issue
	f.issues[issue.ID] = &copied
	f.order = append(f.order, issue.ID)
	return nil
}

func (f *fakeIssueRepo) Exists(_ context.Context, watchedRepoID string, number int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.issues {
		if e.WatchedRepoID == watchedRepoID && e.IssueNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIssueRepo) GetByID(_ context.Context, id string) (*model.TrackedIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return nil, apperror.NotFound("issue", id)
	}
	copied := *issue
	return &copied, nil
}

func (f *fakeIssueRepo) GetForUser(ctx context.Context, userID, id string) (*model.TrackedIssue, error) {
	issue, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	w, err := f.watches.GetByID(ctx, issue.WatchedRepoID)
	if err != nil || w.UserID != userID {
		return nil, apperror.NotFound("issue", id)
	}
	return issue, nil
}

func (f *fakeIssueRepo) all() []model.TrackedIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.TrackedIssue, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.issues[id])
	}
	return out
}

func (f *fakeIssueRepo) List(ctx context.Context, flt repository.IssueFilter) ([]model.TrackedIssue, error) {
	out := []model.TrackedIssue{}
	for _, issue := range f.all() {
		if flt.UserID != "" {
			w, err := f.watches.GetByID(ctx, issue.WatchedRepoID)
			if err != nil || w.UserID != flt.UserID {
				continue
			}
		}
		if flt.WatchedRepoID != "" && issue.WatchedRepoID != flt.WatchedRepoID {
			continue
		}
		if flt.Status != "" && issue.AutoFixStatus != flt.Status {
			continue
		}
		if flt.Archived != nil && (issue.ArchivedAt != nil) != *flt.Archived {
			continue
		}
		if flt.UnreadOnly && issue.IsRead {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (f *fakeIssueRepo) ListByStatus(_ context.Context, status model.AutoFixStatus) ([]model.TrackedIssue, error) {
	out := []model.TrackedIssue{}
	for _, issue := range f.all() {
		if issue.AutoFixStatus == status {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (f *fakeIssueRepo) ListOpenUnarchived(_ context.Context) ([]model.TrackedIssue, error) {
	out := []model.TrackedIssue{}
	for _, issue := range f.all() {
		if issue.State == model.StateOpen && issue.ArchivedAt == nil {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (f *fakeIssueRepo) TransitionStatus(_ context.Context, id string, from, to model.AutoFixStatus, upd model.StatusUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal transition %s → %s", from, to)
	}
	issue, ok := f.issues[id]
	if !ok || issue.AutoFixStatus != from {
		return false, nil
	}
	if from == model.StatusQueued && to == model.StatusGenerating && issue.ClaimedAt != nil {
		return false, nil
	}

	issue.AutoFixStatus = to
	if upd.GeneratingAt != nil {
		issue.GeneratingAt = upd.GeneratingAt
	}
	if upd.ForkIssueNumber != nil {
		issue.ForkIssueNumber = upd.ForkIssueNumber
	}
	if upd.DraftPRNumber != nil {
		issue.DraftPRNumber = upd.DraftPRNumber
	}
	if upd.DraftPRURL != nil {
		issue.DraftPRURL = upd.DraftPRURL
	}
	if upd.DraftPROwner != nil {
		issue.DraftPROwner = upd.DraftPROwner
	}
	if upd.PublishedAt != nil {
		issue.PublishedAt = upd.PublishedAt
	}
	switch {
	case upd.ClearClaimedAt:
		issue.ClaimedAt = nil
	case upd.ClaimedAt != nil:
		issue.ClaimedAt = upd.ClaimedAt
	}
	f.transitions = append(f.transitions, fmt.Sprintf("%s:%s→%s", id, from, to))
	return true, nil
}

func (f *fakeIssueRepo) SetForkIssueNumber(_ context.Context, id string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return apperror.NotFound("issue", id)
	}
	issue.ForkIssueNumber = &number
	return nil
}

func (f *fakeIssueRepo) MarkRead(_ context.Context, id string, read bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok {
		return apperror.NotFound("issue", id)
	}
	issue.IsRead = read
	return nil
}

func (f *fakeIssueRepo) Archive(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok || issue.ArchivedAt != nil {
		return false, nil
	}
	issue.ArchivedAt = &at
	return true, nil
}

func (f *fakeIssueRepo) Restore(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok || issue.ArchivedAt == nil {
		return false, nil
	}
	issue.ArchivedAt = nil
	return true, nil
}

func (f *fakeIssueRepo) MarkClosed(_ context.Context, id string, closedAt, archivedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[id]
	if !ok || issue.State != model.StateOpen {
		return false, nil
	}
	issue.State = model.StateClosed
	issue.ClosedAt = &closedAt
	issue.ArchivedAt = &archivedAt
	return true, nil
}

// put stores an issue directly, keeping the given status and timestamps.
func (f *fakeIssueRepo) put(issue model.TrackedIssue) *model.TrackedIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	issue.ID = fmt.Sprintf("issue-%d", f.nextID)
	if issue.Type == "" {
		issue.Type = model.TypeIssue
	}
	if issue.State == "" {
		issue.State = model.StateOpen
	}
	if issue.AutoFixStatus == "" {
		issue.AutoFixStatus = model.StatusQueued
	}
	copied := issue
	f.issues[issue.ID] = &copied
	f.order = append(f.order, issue.ID)
	return &issue
}

// --- notifications -------------------------------------------------------

type fakeNotificationRepo struct {
	mu        sync.Mutex
	rows      []model.Notification
	createErr error
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = fmt.Sprintf("n-%d", len(f.rows)+1)
	n.CreatedAt = time.Now()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Notification{}
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			f.rows[i].IsRead = true
			return nil
		}
	}
	return apperror.NotFound("notification", id)
}

func (f *fakeNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.rows {
		if f.rows[i].UserID == userID && !f.rows[i].IsRead {
			f.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.UserID == userID && !r.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotificationRepo) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Message)
	}
	return out
}

// --- preferences ---------------------------------------------------------

type fakePrefsRepo struct {
	mu      sync.Mutex
	prefs   map[string]*model.NotificationPreferences
	getErr  error
	cleared []string
}

func newFakePrefsRepo() *fakePrefsRepo {
	return &fakePrefsRepo{prefs: make(map[string]*model.NotificationPreferences)}
}

func (f *fakePrefsRepo) Get(_ context.Context, userID string) (*model.NotificationPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.prefs[userID]
	if !ok {
		return nil, apperror.NotFound("notification preferences", userID)
	}
	copied := *p
	return &copied, nil
}

func (f *fakePrefsRepo) Upsert(_ context.Context, p *model.NotificationPreferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.prefs[p.UserID] = &copied
	return nil
}

func (f *fakePrefsRepo) ClearPushSubscription(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	if p, ok := f.prefs[userID]; ok {
		p.PushSubscription = nil
		p.PushEnabled = false
	}
	return nil
}

// --- channels ------------------------------------------------------------

type fakeMailer struct {
	mu   sync.Mutex
	sent []notifier.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, e notifier.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type fakePusher struct {
	mu   sync.Mutex
	sent []notifier.PushMessage
	err  error
}

func (f *fakePusher) Push(_ context.Context, _ model.PushSubscription, msg notifier.PushMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string // "userID:type"
}

func (f *fakePublisher) Publish(userID, typ string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, userID+":"+typ)
}

// recordingNotifier captures dispatched events instead of delivering them.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Dispatch(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// --- GitHub --------------------------------------------------------------

// fakeGateway serves canned GitHub answers keyed by "owner/repo" and
// "owner/repo#n", and records every mutating call.
type fakeGateway struct {
	mu sync.Mutex

	issues     map[string][]github.Issue
	prs        map[string][]github.PullRequest
	listErr    map[string]error
	linked     map[string]bool
	states     map[string]github.IssueState
	stateErr   map[string]error
	ownership  map[string]github.Ownership
	ownerErr   error
	fork       github.Fork
	forkErr    error
	agents     map[string]string // repo → agent node id
	assignErr  error
	forkIssue  int
	forkIssErr error
	prStatus   map[string]github.AgentPRStatus
	forkPR     github.AgentPRStatus
	publishErr error
	closeErr   error
	search     github.SearchResult

	calls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		issues:    make(map[string][]github.Issue),
		prs:       make(map[string][]github.PullRequest),
		listErr:   make(map[string]error),
		linked:    make(map[string]bool),
		states:    make(map[string]github.IssueState),
		stateErr:  make(map[string]error),
		ownership: make(map[string]github.Ownership),
		agents:    make(map[string]string),
		prStatus:  make(map[string]github.AgentPRStatus),
	}
}

func key(owner, repo string) string             { return owner + "/" + repo }
func issueKey(owner, repo string, n int) string { return fmt.Sprintf("%s/%s#%d", owner, repo, n) }

func (g *fakeGateway) record(format string, args ...any) {
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
}

// called returns the recorded calls that start with prefix.
func (g *fakeGateway) called(prefix string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func (g *fakeGateway) ListOpenIssues(_ context.Context, owner, repo string) ([]github.Issue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("list %s", key(owner, repo))
	if err := g.listErr[key(owner, repo)]; err != nil {
		return nil, err
	}
	return g.issues[key(owner, repo)], nil
}

func (g *fakeGateway) ListOpenPullRequests(_ context.Context, owner, repo string) ([]github.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prs[key(owner, repo)], nil
}

func (g *fakeGateway) IssueHasLinkedPR(_ context.Context, owner, repo string, n int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("linked %s", issueKey(owner, repo, n))
	return g.linked[issueKey(owner, repo, n)], nil
}

func (g *fakeGateway) FetchIssueState(_ context.Context, owner, repo string, n int) (github.IssueState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := issueKey(owner, repo, n)
	if err := g.stateErr[k]; err != nil {
		return github.IssueState{}, err
	}
	if st, ok := g.states[k]; ok {
		return st, nil
	}
	return github.IssueState{State: "open"}, nil
}

func (g *fakeGateway) CheckOwnership(_ context.Context, owner, repo string) (github.Ownership, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ownership %s", key(owner, repo))
	if g.ownerErr != nil {
		return github.Ownership{}, g.ownerErr
	}
	return g.ownership[key(owner, repo)], nil
}

func (g *fakeGateway) ForkRepository(_ context.Context, owner, repo string) (github.Fork, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("fork %s", key(owner, repo))
	if g.forkErr != nil {
		return github.Fork{}, g.forkErr
	}
	return g.fork, nil
}

func (g *fakeGateway) SearchRepositories(_ context.Context, query string, page, perPage int, typ github.SearchType) (github.SearchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("search %s page=%d per=%d type=%s", query, page, perPage, typ)
	return g.search, nil
}

func (g *fakeGateway) FindCodingAgent(_ context.Context, owner, repo string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("agent %s", key(owner, repo))
	return g.agents[key(owner, repo)], nil
}

func (g *fakeGateway) AssignCodingAgent(_ context.Context, owner, repo string, n int) (github.AssignResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("assign %s", issueKey(owner, repo, n))
	if g.assignErr != nil {
		return github.AssignResult{}, g.assignErr
	}
	id := g.agents[key(owner, repo)]
	if id == "" {
		return github.AssignResult{}, nil
	}
	return github.AssignResult{Success: true, AgentID: id}, nil
}

func (g *fakeGateway) CreateLinkedForkIssue(_ context.Context, upOwner, upRepo string, n int, forkOwner, forkRepo string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("mirror %s to %s", issueKey(upOwner, upRepo, n), key(forkOwner, forkRepo))
	if g.forkIssErr != nil {
		return 0, g.forkIssErr
	}
	return g.forkIssue, nil
}

func (g *fakeGateway) CheckAgentPRStatus(_ context.Context, owner, repo string, n int) (github.AgentPRStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("status %s", issueKey(owner, repo, n))
	return g.prStatus[issueKey(owner, repo, n)], nil
}

func (g *fakeGateway) FindForkAgentPR(_ context.Context, forkOwner, forkRepo, upOwner, upRepo string, n int) (github.AgentPRStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("forkpr %s for %s", key(forkOwner, forkRepo), issueKey(upOwner, upRepo, n))
	return g.forkPR, nil
}

func (g *fakeGateway) PublishDraftPR(_ context.Context, owner, repo string, n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("publish %s", issueKey(owner, repo, n))
	return g.publishErr
}

func (g *fakeGateway) CloseDraftPR(_ context.Context, owner, repo string, n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("close %s", issueKey(owner, repo, n))
	return g.closeErr
}

// fakeProvider hands out gateways per user. Users without an entry have no
// credential.
type fakeProvider struct {
	gateways map[string]*fakeGateway
	err      error
}

func providerFor(userID string, gw *fakeGateway) *fakeProvider {
	return &fakeProvider{gateways: map[string]*fakeGateway{userID: gw}}
}

func (p *fakeProvider) ForUser(_ context.Context, userID string) (Gateway, error) {
	if p.err != nil {
		return nil, p.err
	}
	gw, ok := p.gateways[userID]
	if !ok {
		return nil, github.ErrNoCredential
	}
	return gw, nil
}

var errBoom = errors.New("boom")

func ptr[T any](v T) *T { return &v }
