package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.klb.dev/clipvault/internal/clip"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/hub"
	"go.klb.dev/clipvault/internal/monitor"
	"go.klb.dev/clipvault/internal/pasteback"
	"go.klb.dev/clipvault/internal/settings"
	"go.klb.dev/clipvault/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	eng      *Engine
	src      *clip.Memory
	store    *store.Memory
	settings *settings.File
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sf, err := settings.Load(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("settings.Load() failed: %v", err)
	}
	f := &fixture{
		src:      clip.NewMemory(),
		store:    store.NewMemory(),
		settings: sf,
		clock:    &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.eng, err = New(Options{
		Store:    f.store,
		Source:   f.src,
		Settings: sf,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f.eng.SetClock(f.clock.Now)
	f.eng.Start(context.Background())
	return f
}

// copyText puts s on the clipboard and runs one monitor tick.
func (f *fixture) copyText(s string) monitor.Outcome {
	f.src.SetText(s)
	return f.eng.Monitor().Tick(context.Background())
}

func (f *fixture) copyFile(path string) monitor.Outcome {
	f.src.Set(clip.Content{Files: []string{path}, Text: path})
	return f.eng.Monitor().Tick(context.Background())
}

func recentContents(items []history.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// nextEvent waits briefly for an event of type want, skipping others.
func nextEvent(t *testing.T, sub *hub.Subscription, want hub.EventType) hub.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-sub.C():
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event received", want)
			return hub.Event{}
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	cases := map[string]Options{
		"no store":    {Source: clip.NewMemory(), Settings: sf},
		"no source":   {Store: store.NewMemory(), Settings: sf},
		"no settings": {Store: store.NewMemory(), Source: clip.NewMemory()},
	}
	for name, opts := range cases {
		if _, err := New(opts); err == nil {
			t.Errorf("%s: New() succeeded", name)
		}
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	_, err := New(Options{
		Store: store.NewMemory(), Source: clip.NewMemory(), Settings: sf,
		PruneSchedule: "every tuesday",
	})
	if err == nil {
		t.Error("New() accepted an invalid cron expression")
	}
}

func TestScenario_HelloHelloFileThenRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.eng.SetRetention(ctx, settings.Forever); err != nil {
		t.Fatalf("SetRetention(0) failed: %v", err)
	}

	if got := f.copyText("hello"); got != monitor.Recorded {
		t.Fatalf("first hello: %v", got)
	}
	if got := f.copyText("hello"); got != monitor.Duplicate {
		t.Fatalf("second hello: %v", got)
	}
	f.clock.Advance(time.Hour)
	if got := f.copyFile("/tmp/a.txt"); got != monitor.Recorded {
		t.Fatalf("file copy: %v", got)
	}

	recent := f.eng.Recent()
	if want := []string{"/tmp/a.txt", "hello"}; !equal(recentContents(recent), want) {
		t.Fatalf("Recent() = %v, want %v", recentContents(recent), want)
	}
	if recent[0].Kind() != history.KindFilePath || recent[1].Kind() != history.KindText {
		t.Errorf("kinds = %v, %v", recent[0].Kind(), recent[1].Kind())
	}

	// Forever keeps everything however old.
	f.clock.Advance(400 * 24 * time.Hour)
	if n, err := f.eng.Prune(ctx); err != nil || n != 0 {
		t.Fatalf("Prune() with forever = %d, %v", n, err)
	}

	// Rewind so hello is just over 30 days old and the file just under.
	f.clock.Advance(-400 * 24 * time.Hour)
	f.clock.Advance(30*24*time.Hour - 30*time.Minute)
	if err := f.eng.SetRetention(ctx, 30); err != nil {
		t.Fatalf("SetRetention(30) failed: %v", err)
	}
	if want := []string{"/tmp/a.txt"}; !equal(recentContents(f.eng.Recent()), want) {
		t.Errorf("Recent() after retention 30 = %v, want %v", recentContents(f.eng.Recent()), want)
	}
}

func TestRecent_BoundedToLimit(t *testing.T) {
	f := newFixture(t)
	for i := range 15 {
		f.clock.Advance(time.Second)
		f.copyText(string(rune('a' + i)))
	}
	recent := f.eng.Recent()
	if len(recent) != DefaultRecentLimit {
		t.Fatalf("len(Recent()) = %d, want %d", len(recent), DefaultRecentLimit)
	}
	if recent[0].Content != "o" {
		t.Errorf("newest = %q, want o", recent[0].Content)
	}
	all, err := f.eng.History(context.Background())
	if err != nil || len(all) != 15 {
		t.Errorf("History() = %d items, %v", len(all), err)
	}
}

func TestRecent_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	f.copyText("x")
	r := f.eng.Recent()
	r[0].Content = "mutated"
	if f.eng.Recent()[0].Content != "x" {
		t.Error("Recent() exposed internal slice")
	}
}

func TestStart_SkipsPreexistingClipboard(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	src := clip.NewMemory()
	src.SetText("already there")
	st := store.NewMemory()
	eng, err := New(Options{Store: st, Source: src, Settings: sf})
	if err != nil {
		t.Fatal(err)
	}
	eng.Start(context.Background())
	if got := eng.Monitor().Tick(context.Background()); got != monitor.Unchanged {
		t.Errorf("Tick() = %v, want unchanged", got)
	}
	if n, _ := st.Count(context.Background()); n != 0 {
		t.Errorf("store has %d items, want 0", n)
	}
}

func TestStart_PrunesExpiredHistory(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	st := store.NewMemory()
	now := time.Now()
	ctx := context.Background()
	_ = st.Insert(ctx, history.NewItem(history.KindText, "ancient", now.AddDate(0, 0, -45)))
	_ = st.Insert(ctx, history.NewItem(history.KindText, "fresh", now.Add(-time.Hour)))

	eng, err := New(Options{Store: st, Source: clip.NewMemory(), Settings: sf})
	if err != nil {
		t.Fatal(err)
	}
	eng.Start(ctx)
	if got := recentContents(eng.Recent()); !equal(got, []string{"fresh"}) {
		t.Errorf("Recent() after startup = %v, want [fresh]", got)
	}
}

func TestDelete_RemovesOneAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.copyText("a")
	f.clock.Advance(time.Second)
	f.copyText("b")
	target := f.eng.Recent()[1]

	sub := f.eng.Subscribe("test")
	defer sub.Close()

	if err := f.eng.Delete(context.Background(), target.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if got := recentContents(f.eng.Recent()); !equal(got, []string{"b"}) {
		t.Errorf("Recent() = %v, want [b]", got)
	}
	if ev := nextEvent(t, sub, hub.EventHistoryChanged); ev.ItemID != target.ID {
		t.Errorf("history_changed item = %q, want %q", ev.ItemID, target.ID)
	}

	if err := f.eng.Delete(context.Background(), "no-such-id"); err != nil {
		t.Errorf("Delete(unknown) = %v, want nil", err)
	}
}

func TestDelete_NotUndoneByNextTick(t *testing.T) {
	f := newFixture(t)
	f.copyText("a")
	f.clock.Advance(time.Second)
	f.copyText("b")
	if err := f.eng.Delete(context.Background(), f.eng.Recent()[0].ID); err != nil {
		t.Fatal(err)
	}
	if got := f.eng.Monitor().Tick(context.Background()); got != monitor.Unchanged {
		t.Errorf("Tick() after delete = %v, want unchanged", got)
	}
	if got := recentContents(f.eng.Recent()); !equal(got, []string{"a"}) {
		t.Errorf("Recent() = %v, want [a]", got)
	}
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	f.copyText("a")
	f.copyText("b")
	if err := f.eng.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if len(f.eng.Recent()) != 0 {
		t.Errorf("Recent() not empty after Clear")
	}
	// The clipboard is unchanged, so nothing is re-recorded.
	if got := f.eng.Monitor().Tick(context.Background()); got != monitor.Unchanged {
		t.Errorf("Tick() = %v", got)
	}
}

func TestPaste_TextPublishesHide(t *testing.T) {
	f := newFixture(t)
	sub := f.eng.Subscribe("ui")
	defer sub.Close()

	f.copyText("first")
	f.clock.Advance(time.Second)
	f.copyText("second")
	old := f.eng.Recent()[1]

	res, err := f.eng.Paste(context.Background(), old.ID, false)
	if err != nil || res != pasteback.Copied {
		t.Fatalf("Paste() = %v, %v", res, err)
	}
	if got := f.src.Snapshot().Text; got != "first" {
		t.Errorf("clipboard = %q, want first", got)
	}
	if ev := nextEvent(t, sub, hub.EventHide); ev.ItemID != old.ID {
		t.Errorf("hide event item = %q", ev.ItemID)
	}

	// The paste is itself a clipboard change and becomes the newest item.
	f.clock.Advance(time.Second)
	if got := f.eng.Monitor().Tick(context.Background()); got != monitor.Recorded {
		t.Errorf("Tick() after paste = %v, want recorded", got)
	}
	if got := recentContents(f.eng.Recent()); !equal(got, []string{"first", "second", "first"}) {
		t.Errorf("Recent() = %v", got)
	}
}

func TestPaste_OpenFailureNotifies(t *testing.T) {
	f := newFixture(t)
	sub := f.eng.Subscribe("ui")
	defer sub.Close()

	missing := filepath.Join(t.TempDir(), "gone.txt")
	f.copyFile(missing)
	before := f.src.ChangeCount()
	id := f.eng.Recent()[0].ID

	_, err := f.eng.Paste(context.Background(), id, true)
	var of *pasteback.OpenFailure
	if !errors.As(err, &of) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Paste(open) = %v, want OpenFailure wrapping ErrNotExist", err)
	}
	if ev := nextEvent(t, sub, hub.EventOpenFailure); ev.Path != missing {
		t.Errorf("open_failure path = %q", ev.Path)
	}
	if f.src.ChangeCount() != before {
		t.Error("clipboard changed after failed open")
	}
}

func TestPaste_UnknownID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eng.Paste(context.Background(), "missing", false); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("Paste(missing) = %v, want ErrNotFound", err)
	}
}

func TestStorageErrorNotifiesAndLoopContinues(t *testing.T) {
	f := newFixture(t)
	sub := f.eng.Subscribe("ui")
	defer sub.Close()

	f.store.FailWith = errors.New("disk full")
	if got := f.copyText("lost"); got != monitor.Failed {
		t.Fatalf("Tick() = %v, want failed", got)
	}
	ev := nextEvent(t, sub, hub.EventStorageError)
	if ev.Message == "" {
		t.Error("storage_error without message")
	}

	f.store.FailWith = nil
	if got := f.copyText("kept"); got != monitor.Recorded {
		t.Errorf("Tick() after recovery = %v", got)
	}
	if got := recentContents(f.eng.Recent()); !equal(got, []string{"kept"}) {
		t.Errorf("Recent() = %v, want [kept]", got)
	}
}

func TestSetRetention_NotifiesAndValidates(t *testing.T) {
	f := newFixture(t)
	sub := f.eng.Subscribe("ui")
	defer sub.Close()

	if err := f.eng.SetRetention(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, sub, hub.EventRetentionChanged)
	if ev.Days == nil || *ev.Days != 7 {
		t.Errorf("retention event days = %v", ev.Days)
	}
	if got := f.eng.Retention(); got.Days != 7 || !got.Configured {
		t.Errorf("Retention() = %+v", got)
	}
	if err := f.eng.SetRetention(context.Background(), -3); !errors.Is(err, settings.ErrInvalidRetention) {
		t.Errorf("SetRetention(-3) = %v", err)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.copyText("a")
	st, err := f.eng.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Backend != f.src.Name() || st.Items != 1 || st.Retention.Days != settings.DefaultRetentionDays {
		t.Errorf("Status() = %+v", st)
	}
	if st.NextPrune != nil {
		t.Errorf("NextPrune = %v, want nil without schedule", st.NextPrune)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	src := clip.NewMemory()
	eng, err := New(Options{
		Store: store.NewMemory(), Source: src, Settings: sf,
		PollInterval: 5 * time.Millisecond, PruneSchedule: "0 3 * * *",
	})
	if err != nil {
		t.Fatal(err)
	}
	sub := eng.Subscribe("test")
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Wait for startup before changing the clipboard so the change is not
	// absorbed into the baseline.
	deadline := time.Now().Add(time.Second)
	for {
		st, _ := eng.Status(context.Background())
		if st.NextPrune != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	src.SetText("polled")
	nextEvent(t, sub, hub.EventHistoryChanged)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// stallingStore holds one recent-view read after it has fetched its rows,
// simulating a slow reload racing a user delete.
type stallingStore struct {
	history.Store
	armed   sync.Mutex
	stall   bool
	fetched chan struct{}
	release chan struct{}
}

func (s *stallingStore) Recent(ctx context.Context, limit int) ([]history.Item, error) {
	items, err := s.Store.Recent(ctx, limit)
	s.armed.Lock()
	stall := s.stall && limit > 1
	if stall {
		s.stall = false
	}
	s.armed.Unlock()
	if stall {
		close(s.fetched)
		<-s.release
	}
	return items, err
}

func TestDelete_NotOverwrittenBySlowReload(t *testing.T) {
	sf, _ := settings.Load(filepath.Join(t.TempDir(), "s.yaml"))
	inner := store.NewMemory()
	st := &stallingStore{
		Store:   inner,
		fetched: make(chan struct{}),
		release: make(chan struct{}),
	}
	src := clip.NewMemory()
	eng, err := New(Options{Store: st, Source: src, Settings: sf})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	eng.Start(ctx)

	src.SetText("secret")
	st.armed.Lock()
	st.stall = true
	st.armed.Unlock()

	tickDone := make(chan struct{})
	go func() {
		eng.Monitor().Tick(ctx)
		close(tickDone)
	}()
	<-st.fetched

	all, err := inner.All(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("All() = %v, %v; want one item", all, err)
	}
	delDone := make(chan error, 1)
	go func() { delDone <- eng.Delete(ctx, all[0].ID) }()

	// Give the delete a chance to slip in ahead of the stalled reload.
	time.Sleep(50 * time.Millisecond)
	close(st.release)
	<-tickDone
	if err := <-delDone; err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	if n, _ := inner.Count(ctx); n != 0 {
		t.Fatalf("store count = %d, want 0", n)
	}
	if got := eng.Recent(); len(got) != 0 {
		t.Errorf("Recent() = %v, want empty after delete", recentContents(got))
	}
}
