// Package scheduler runs the two background interval jobs that keep cached
// brand-intelligence data warm without an inbound request triggering it:
// monitor_active_posts and prefetch_hashtags (spec.md §4.C10). Grounded on
// internal/analytics/pipeline.go's Start/stopCh/doneCh ticker loop,
// generalized to two independently overlap-guarded jobs sharing one
// scheduler and one inter-call rate limiter.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-ai/internal/audit"
	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

// MonitorInterval is the tick period for monitor_active_posts.
const MonitorInterval = time.Hour

// HashtagInterval is the tick period for prefetch_hashtags.
const HashtagInterval = 6 * time.Hour

// HashtagStartupDelay defers the first hashtag prefetch after Start, so it
// doesn't compete with whatever else is warming up at process boot.
const HashtagStartupDelay = 10 * time.Second

// CallThrottle is the minimum spacing between consecutive tool calls made
// by either job, expressed as a token-bucket rate rather than a raw sleep.
const CallThrottle = 2 * time.Second

// defaultHomeHashtags is the fixed list prefetch_hashtags iterates absent
// an explicit override.
var defaultHomeHashtags = []string{"socialmedia", "marketing", "branding"}

// checkInterval maps a post's age since registration to its next-check
// cadence (spec.md §4.C10): younger posts are checked more often.
func checkInterval(age time.Duration) time.Duration {
	switch {
	case age < 24*time.Hour:
		return 2 * time.Hour
	case age < 72*time.Hour:
		return 4 * time.Hour
	case age < 7*24*time.Hour:
		return 12 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Scheduler owns the two interval jobs. One Scheduler runs for the process
// lifetime; Start/Stop bracket its loops much as session.New and
// Store.Stop bracket internal/session.Store's sweep loop.
type Scheduler struct {
	dispatcher *tools.Dispatcher
	posts      PostStore
	hashtags   []string
	audit      audit.Logger // optional; nil disables audit logging

	limiter *rate.Limiter

	monitorRunning atomic.Bool
	hashtagRunning atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	now          func() time.Time // overridable for tests
	startupDelay time.Duration    // overridable for tests; defaults to HashtagStartupDelay

	onEvent func(job string, skipped bool, duration time.Duration, err error) // optional
}

// New builds a Scheduler. hashtags overrides the default "home" list when
// non-empty; throttle overrides the inter-call spacing (config
// scheduler.throttle_ms) when positive, else CallThrottle applies.
func New(d *tools.Dispatcher, posts PostStore, hashtags []string, throttle time.Duration) *Scheduler {
	if len(hashtags) == 0 {
		hashtags = defaultHomeHashtags
	}
	if throttle <= 0 {
		throttle = CallThrottle
	}
	return &Scheduler{
		dispatcher:   d,
		posts:        posts,
		hashtags:     hashtags,
		limiter:      rate.NewLimiter(rate.Every(throttle), 1),
		stopCh:       make(chan struct{}),
		now:          time.Now,
		startupDelay: HashtagStartupDelay,
	}
}

// WithAudit attaches an audit.Logger the scheduler reports job runs and
// skips to. Returns s for chaining at construction time.
func (s *Scheduler) WithAudit(a audit.Logger) *Scheduler {
	s.audit = a
	return s
}

// WithEventCallback attaches a hook invoked after every tick (run or
// skipped), for a live status feed such as internal/transport.StatusHub.
// Called synchronously from the tick goroutine; callers must not block.
func (s *Scheduler) WithEventCallback(f func(job string, skipped bool, duration time.Duration, err error)) *Scheduler {
	s.onEvent = f
	return s
}

// Start launches both interval loops as background goroutines. ctx
// cancellation stops them, as Stop does.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.runMonitorLoop(ctx)
	go s.runHashtagLoop(ctx)
}

// Stop signals both loops to exit and waits for them to finish their
// current tick.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runMonitorLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tickMonitor(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runHashtagLoop(ctx context.Context) {
	defer s.wg.Done()

	select {
	case <-time.After(s.startupDelay):
		s.tickHashtags(ctx)
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(HashtagInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tickHashtags(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tickMonitor runs one monitor_active_posts pass, skipping entirely (not
// queuing) if the previous pass is still in flight.
func (s *Scheduler) tickMonitor(ctx context.Context) {
	if !s.monitorRunning.CompareAndSwap(false, true) {
		s.logSkipped(ctx, "monitor_active_posts")
		return
	}
	defer s.monitorRunning.Store(false)

	start := s.now()
	err := s.runMonitorPass(ctx)
	s.logRun(ctx, "monitor_active_posts", s.now().Sub(start), err)
}

func (s *Scheduler) runMonitorPass(ctx context.Context) error {
	active, err := s.posts.ActivePosts(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, post := range active {
		interval := checkInterval(now.Sub(post.RegisteredAt))
		if now.Sub(post.LastCheckedAt) < interval {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		_, info := s.dispatcher.Invoke(ctx, "monitor_post", map[string]any{"postId": post.PostID}, nil)
		if info.Error != "" {
			log.Printf("scheduler: monitor_post %s failed: %s", post.PostID, info.Error)
			continue
		}
		if err := s.posts.MarkChecked(ctx, post.PostID, now); err != nil {
			log.Printf("scheduler: mark checked %s failed: %v", post.PostID, err)
		}
	}
	return nil
}

// tickHashtags runs one prefetch_hashtags pass, same skip-not-queue guard.
func (s *Scheduler) tickHashtags(ctx context.Context) {
	if !s.hashtagRunning.CompareAndSwap(false, true) {
		s.logSkipped(ctx, "prefetch_hashtags")
		return
	}
	defer s.hashtagRunning.Store(false)

	start := s.now()
	err := s.runHashtagPass(ctx)
	s.logRun(ctx, "prefetch_hashtags", s.now().Sub(start), err)
}

func (s *Scheduler) runHashtagPass(ctx context.Context) error {
	for _, tag := range s.hashtags {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, info := s.dispatcher.Invoke(ctx, "get_hashtag_posts", map[string]any{"hashtag": tag, "limit": 50}, nil)
		if info.Error != "" {
			log.Printf("scheduler: prefetch hashtag %s failed: %s", tag, info.Error)
		}
	}
	return nil
}

func (s *Scheduler) logRun(ctx context.Context, job string, duration time.Duration, err error) {
	if s.onEvent != nil {
		s.onEvent(job, false, duration, err)
	}
	if s.audit == nil {
		return
	}
	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
	}
	_ = s.audit.LogSchedulerRun(ctx, job, duration, result)
}

func (s *Scheduler) logSkipped(ctx context.Context, job string) {
	if s.onEvent != nil {
		s.onEvent(job, true, 0, nil)
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.LogSchedulerSkipped(ctx, job)
}
