// Package usecase contains the business logic of the application: the
// refresh cycle that mirrors GitHub into the store, and the read and
// maintenance operations exposed to the CLI.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/github-trailer/internal/categorize"
	"github.com/naka-gawa/github-trailer/internal/domain"
	"github.com/naka-gawa/github-trailer/internal/events"
	"github.com/naka-gawa/github-trailer/internal/gateway"
	"github.com/naka-gawa/github-trailer/internal/ingest"
	"github.com/naka-gawa/github-trailer/internal/notify"
	"github.com/naka-gawa/github-trailer/internal/ratelimit"
	"github.com/naka-gawa/github-trailer/internal/store"
	"golang.org/x/sync/errgroup"
)

// State is the refresher's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// FetchResult is reported to background fetch callbacks.
type FetchResult int

const (
	NewData FetchResult = iota
	NoData
	Failed
)

func (r FetchResult) String() string {
	switch r {
	case NewData:
		return "new_data"
	case NoData:
		return "no_data"
	default:
		return "failed"
	}
}

// Due is the outcome of IsDue.
type Due struct {
	Immediate bool
	Delay     time.Duration
}

// IsDue decides whether a refresh should start now or after Delay.
func IsDue(last time.Time, period time.Duration, now time.Time) Due {
	if last.IsZero() {
		return Due{Immediate: true}
	}
	elapsed := now.Sub(last)
	if elapsed >= period {
		return Due{Immediate: true}
	}
	return Due{Delay: period - elapsed}
}

// Remote pairs a server record with the fetcher that talks to it.
type Remote struct {
	Server  domain.Server
	Fetcher gateway.Fetcher
}

type remote struct {
	mu      sync.Mutex
	server  domain.Server
	fetcher gateway.Fetcher
}

func (r *remote) snapshot() domain.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.server
}

func (r *remote) update(fn func(s *domain.Server)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.server)
}

// Stopper is satisfied by *time.Timer.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Stopper

// Deps are the collaborators of a Refresher.
type Deps struct {
	Store       *store.Store
	Preferences *Preferences
	Remotes     []Remote
	Repos       []domain.Repo
	Bus         *events.Bus
	Dispatcher  notify.Dispatcher
	Warner      ratelimit.Warner
	Leaser      Leaser
	Network     Reachability
	Logger      *slog.Logger
}

// Option customises a Refresher.
type Option func(*Refresher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// WithAfterFunc replaces time.AfterFunc for the deferred trigger.
func WithAfterFunc(f AfterFunc) Option {
	return func(r *Refresher) { r.afterFunc = f }
}

// Refresher runs refresh cycles. At most one cycle runs at a time.
type Refresher struct {
	state atomic.Int32

	store      *store.Store
	prefs      *Preferences
	remotes    []*remote
	repos      []domain.Repo
	bus        *events.Bus
	dispatcher notify.Dispatcher
	warner     ratelimit.Warner
	leaser     Leaser
	network    Reachability
	merger     *ingest.Merger
	logger     *slog.Logger

	now       func() time.Time
	afterFunc AfterFunc

	mu         sync.Mutex
	timer      Stopper
	generation uint64
	callback   func(FetchResult)

	inflight sync.WaitGroup
}

// NewRefresher creates a Refresher.
func NewRefresher(deps Deps, opts ...Option) *Refresher {
	r := &Refresher{
		store:      deps.Store,
		prefs:      deps.Preferences,
		repos:      deps.Repos,
		bus:        deps.Bus,
		dispatcher: deps.Dispatcher,
		warner:     deps.Warner,
		leaser:     deps.Leaser,
		network:    deps.Network,
		merger:     ingest.NewMerger(deps.Logger),
		logger:     deps.Logger,
		now:        time.Now,
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, rem := range deps.Remotes {
		r.remotes = append(r.remotes, &remote{server: rem.Server, fetcher: rem.Fetcher})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Refresher) State() State {
	return State(r.state.Load())
}

// Servers returns a snapshot of every server record.
func (r *Refresher) Servers() []domain.Server {
	out := make([]domain.Server, 0, len(r.remotes))
	for _, rem := range r.remotes {
		out = append(out, rem.snapshot())
	}
	return out
}

func (r *Refresher) credentialed() []*remote {
	var out []*remote
	for _, rem := range r.remotes {
		if rem.snapshot().GoodToGo {
			out = append(out, rem)
		}
	}
	return out
}

func (r *Refresher) enabledRepos(server string) []domain.Repo {
	var out []domain.Repo
	for _, repo := range r.repos {
		if repo.Enabled && repo.Server == server {
			out = append(out, repo)
		}
	}
	return out
}

// StartRefreshIfDue refreshes now when the period has elapsed since the last
// successful refresh or the preferences are dirty, or arms a deferred trigger
// for the remaining time.
func (r *Refresher) StartRefreshIfDue(ctx context.Context) {
	r.cancelTimer()
	settings := r.prefs.Settings()
	due := IsDue(r.store.LastSuccessfulRefresh(), settings.Period, r.now())
	if r.prefs.Dirty() {
		due = Due{Immediate: true}
	}
	if !due.Immediate {
		r.logger.Debug("refresh not due yet", "delay", due.Delay)
		r.arm(ctx, due.Delay)
		return
	}
	r.refreshOrRetry(ctx)
}

// refreshOrRetry starts a refresh and, when it could not start, tries again
// one period later.
func (r *Refresher) refreshOrRetry(ctx context.Context) {
	if r.StartRefresh(ctx) || r.State() == StateRefreshing {
		return
	}
	r.arm(ctx, r.prefs.Settings().Period)
}

// StartRefresh begins a cycle in the background. It returns false without
// changing anything when a cycle is already running, the network is not
// reachable or no server has credentials.
func (r *Refresher) StartRefresh(ctx context.Context) bool {
	return r.start(ctx, nil)
}

// FetchInBackground starts a cycle and reports its outcome to done exactly
// once. done receives Failed right away when the cycle cannot start.
func (r *Refresher) FetchInBackground(ctx context.Context, done func(FetchResult)) {
	if !r.start(ctx, done) {
		r.logger.Debug("background fetch could not start")
		done(Failed)
	}
}

func (r *Refresher) start(ctx context.Context, done func(FetchResult)) bool {
	if r.State() == StateRefreshing {
		return false
	}
	if !r.network.Reachable(ctx) {
		r.logger.Info("network unreachable, skipping refresh")
		return false
	}
	if len(r.credentialed()) == 0 {
		r.logger.Info("no server has credentials, skipping refresh")
		return false
	}
	// The swap happens under mu so arm never sees a stale Idle.
	r.mu.Lock()
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRefreshing)) {
		r.mu.Unlock()
		return false
	}
	r.stopTimerLocked()
	r.callback = done
	r.mu.Unlock()

	lease := r.leaser.Acquire("refresh", func() {
		r.logger.Warn("refresh outlived its lease")
	})
	r.bus.Publish(events.Event{Kind: events.RefreshStarted})
	r.logger.Info("starting refresh")

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.cycle(ctx, lease)
	}()
	return true
}

// Wait blocks until the running cycle, if any, has finished.
func (r *Refresher) Wait() {
	r.inflight.Wait()
}

// Run refreshes whenever a cycle is due until ctx is cancelled, then waits
// for the running cycle to finish.
func (r *Refresher) Run(ctx context.Context) error {
	r.StartRefreshIfDue(ctx)
	<-ctx.Done()
	r.cancelTimer()
	r.Wait()
	r.logger.Info("refresher stopped")
	return nil
}

// arm schedules the deferred trigger. It does nothing while a cycle runs;
// that cycle arms the next trigger when it finishes.
func (r *Refresher) arm(ctx context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateRefreshing {
		r.logger.Debug("refresh in flight, not arming", "in", d)
		return
	}
	r.stopTimerLocked()
	gen := r.generation
	r.timer = r.afterFunc(d, func() { r.fire(ctx, gen) })
	r.logger.Debug("next refresh armed", "in", d)
}

func (r *Refresher) fire(ctx context.Context, gen uint64) {
	r.mu.Lock()
	stale := gen != r.generation
	if !stale {
		r.timer = nil
	}
	r.mu.Unlock()
	if stale || ctx.Err() != nil {
		return
	}
	r.refreshOrRetry(ctx)
}

func (r *Refresher) cancelTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}

// stopTimerLocked stops the pending trigger and invalidates it in case it is
// already firing.
func (r *Refresher) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.generation++
}

// latencies collects per-repo fetch durations from concurrent servers.
type latencies struct {
	mu      sync.Mutex
	seconds stats.Float64Data
}

func (l *latencies) add(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seconds = append(l.seconds, d.Seconds())
}

func (r *Refresher) cycle(ctx context.Context, lease *Lease) {
	started := r.now()
	settings := r.prefs.Settings()

	if reloaded, err := r.store.Reload(ctx); err != nil {
		r.logger.Warn("could not reload store, syncing the in-memory copy", "error", err)
	} else if !reloaded {
		r.logger.Debug("store has unsaved changes, not reloading")
	}
	_ = r.store.Update(func(m *store.Model) error {
		m.ResetPostSyncActions()
		return nil
	})

	var (
		eg   errgroup.Group
		lats latencies
	)
	for _, rem := range r.credentialed() {
		eg.Go(func() error {
			return r.syncServer(ctx, rem, settings, &lats)
		})
	}
	err := eg.Wait()
	if err != nil {
		r.logger.Error("refresh finished with failures", "error", err)
	}
	r.finish(ctx, lease, err == nil, started, &lats)
}

// syncServer refreshes every enabled repo of one server, one after another.
// A failing repo does not stop the others.
func (r *Refresher) syncServer(ctx context.Context, rem *remote, settings domain.Settings, lats *latencies) error {
	server := rem.snapshot()
	logger := r.logger.With("server", server.Label)

	if server.UserLogin == "" {
		login, err := rem.fetcher.FetchViewerLogin(ctx)
		if err != nil {
			rem.update(func(s *domain.Server) { s.LastSyncFailed = true })
			return fmt.Errorf("server %s: %w", server.Label, err)
		}
		rem.update(func(s *domain.Server) { s.UserLogin = login })
		server.UserLogin = login
		logger.Debug("resolved user login", "login", login)
	}

	var errs []error
	for _, repo := range r.enabledRepos(server.Label) {
		began := time.Now()
		if err := r.syncRepo(ctx, rem.fetcher, server, repo, settings); err != nil {
			logger.Warn("repo sync failed", "repo", repo.FullName(), "error", err)
			errs = append(errs, err)
			continue
		}
		lats.add(time.Since(began))
	}

	if quota, err := rem.fetcher.FetchRateLimit(ctx); err != nil {
		logger.Debug("could not read rate limit", "error", err)
	} else {
		rem.update(func(s *domain.Server) { s.Quota = quota })
	}

	failed := len(errs) > 0
	rem.update(func(s *domain.Server) { s.LastSyncFailed = failed })
	if failed {
		return fmt.Errorf("server %s: %w", server.Label, errors.Join(errs...))
	}
	return nil
}

type pendingItem struct {
	key    domain.Key
	number int
}

// changedPR is a pull request the listing reported as new or updated. Its
// comment totals, mergeability and statuses are fetched separately.
type changedPR struct {
	key    domain.Key
	number int
}

// syncRepo fetches the open listing of one repo, merges it, resolves the
// records that dropped out of it and refreshes the details and statuses of
// changed pull requests.
func (r *Refresher) syncRepo(ctx context.Context, fetcher gateway.Fetcher, server domain.Server, repo domain.Repo, settings domain.Settings) error {
	prs, err := fetcher.FetchPullRequests(ctx, repo)
	if err != nil {
		return err
	}
	var issues []gateway.IssuePayload
	if settings.ShowIssuesMenu {
		if issues, err = fetcher.FetchIssues(ctx, repo); err != nil {
			return err
		}
	}

	var (
		pendingPRs, pendingIssues []pendingItem
		changed                   []changedPR
	)
	_ = r.store.Update(func(m *store.Model) error {
		ingest.MarkPullRequestsForDeletion(m, repo)
		for _, p := range prs {
			pr, err := r.merger.PullRequest(m, p, server, repo)
			if err != nil {
				r.logger.Warn("skipping pull request payload", "repo", repo.FullName(), "error", err)
				continue
			}
			if pr.PostSyncAction == domain.New || pr.PostSyncAction == domain.Updated {
				changed = append(changed, changedPR{key: pr.Key, number: pr.Number})
			}
		}
		for _, pr := range ingest.PendingPullRequests(m, repo) {
			pendingPRs = append(pendingPRs, pendingItem{key: pr.Key, number: pr.Number})
		}

		if !settings.ShowIssuesMenu {
			return nil
		}
		ingest.MarkIssuesForDeletion(m, repo)
		for _, p := range issues {
			if _, err := r.merger.Issue(m, p, server, repo); err != nil {
				r.logger.Warn("skipping issue payload", "repo", repo.FullName(), "error", err)
			}
		}
		for _, issue := range ingest.PendingIssues(m, repo) {
			pendingIssues = append(pendingIssues, pendingItem{key: issue.Key, number: issue.Number})
		}
		return nil
	})

	var errs []error
	for _, p := range pendingPRs {
		payload, err := fetcher.FetchPullRequest(ctx, repo, p.number)
		_ = r.store.Update(func(m *store.Model) error {
			pr, ok := m.PullRequests[p.key]
			if !ok {
				return nil
			}
			switch {
			case err == nil:
				ingest.ClosePullRequest(m, pr, payload)
			case errors.Is(err, domain.ErrNotFound):
			default:
				ingest.Keep(&pr.Item)
				errs = append(errs, err)
			}
			return nil
		})
	}
	for _, p := range pendingIssues {
		payload, err := fetcher.FetchIssue(ctx, repo, p.number)
		_ = r.store.Update(func(m *store.Model) error {
			issue, ok := m.Issues[p.key]
			if !ok {
				return nil
			}
			switch {
			case err == nil:
				ingest.CloseIssue(m, issue, payload)
			case errors.Is(err, domain.ErrNotFound):
			default:
				ingest.Keep(&issue.Item)
				errs = append(errs, err)
			}
			return nil
		})
	}

	for _, c := range changed {
		detail, err := fetcher.FetchPullRequest(ctx, repo, c.number)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var sha string
		_ = r.store.Update(func(m *store.Model) error {
			if pr, ok := m.PullRequests[c.key]; ok {
				r.merger.PullRequestDetail(m, pr, detail)
				sha = pr.HeadSHA
			}
			return nil
		})
		if sha == "" {
			continue
		}
		payloads, err := fetcher.FetchStatuses(ctx, repo, sha)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = r.store.Update(func(m *store.Model) error {
			if pr, ok := m.PullRequests[c.key]; ok {
				ingest.ReplaceStatuses(m, pr, payloads)
			}
			return nil
		})
	}
	return errors.Join(errs...)
}

func (r *Refresher) finish(ctx context.Context, lease *Lease, success bool, started time.Time, lats *latencies) {
	settings := r.prefs.Settings()

	var (
		notifications []notify.Notification
		changed       bool
		moved, swept  int
	)
	_ = r.store.Update(func(m *store.Model) error {
		prs, issues := m.AllPullRequests(), m.AllIssues()
		moved = categorize.Assign(prs, settings) + categorize.Assign(issues, settings)
		if moved > 0 {
			m.Touch()
		}
		notifications = notify.Collect(prs, issues)
		swept = m.Sweep()
		changed = m.Changed()
		if success {
			m.LastSuccessfulRefresh = r.now()
			m.Touch()
		}
		return nil
	})
	if success {
		r.prefs.clearDirty()
	}

	ratelimit.NewMonitor(r.warner, settings.LowWaterMark).Inspect(ctx, r.Servers())

	// Persist even when the caller gave up, so partial results survive.
	persistCtx := context.WithoutCancel(ctx)
	if err := r.store.Save(persistCtx); err != nil {
		r.logger.Error("failed to persist store", "error", err)
	}
	if len(notifications) > 0 {
		if err := r.dispatcher.Dispatch(persistCtx, notifications); err != nil {
			r.logger.Error("failed to dispatch notifications", "error", err)
		}
	}

	r.logSummary(success, started, lats, moved, swept, len(notifications))

	r.mu.Lock()
	done := r.callback
	r.callback = nil
	r.mu.Unlock()

	r.state.Store(int32(StateIdle))
	if changed {
		r.bus.Publish(events.Event{Kind: events.ItemsChanged})
	}
	r.bus.Publish(events.Event{Kind: events.RefreshEnded, Success: success})

	if done != nil {
		switch {
		case success && changed:
			done(NewData)
		case success:
			done(NoData)
		default:
			done(Failed)
		}
	}
	lease.Release()

	if ctx.Err() == nil {
		r.arm(ctx, settings.Period)
	}
}

func (r *Refresher) logSummary(success bool, started time.Time, lats *latencies, moved, swept, notified int) {
	attrs := []any{
		"success", success,
		"took", r.now().Sub(started),
		"repos", len(lats.seconds),
		"moved", moved,
		"removed", swept,
		"notifications", notified,
	}
	if median, err := stats.Median(lats.seconds); err == nil {
		attrs = append(attrs, "median_repo_seconds", median)
	}
	if maxSeconds, err := stats.Max(lats.seconds); err == nil {
		attrs = append(attrs, "max_repo_seconds", maxSeconds)
	}
	r.logger.Info("refresh done", attrs...)
}
