package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/whereabouts/internal/infrastructure/mqtt"
)

// fakeBroker fails the first failConnects attempts, then succeeds.
type fakeBroker struct {
	mu            sync.Mutex
	failConnects  int
	failSubscribe int
	connects      int
	subscribes    []string
	disconnects   int
	onLost        func(err error)
}

func (b *fakeBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.failConnects > 0 {
		b.failConnects--
		return errors.New("connection refused")
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubscribe > 0 {
		b.failSubscribe--
		return errors.New("not authorised")
	}
	b.subscribes = append(b.subscribes, topic)
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	b.disconnects++
	b.mu.Unlock()
}

func (b *fakeBroker) SetOnConnectionLost(callback func(err error)) {
	b.mu.Lock()
	b.onLost = callback
	b.mu.Unlock()
}

func (b *fakeBroker) dropConnection(err error) {
	b.mu.Lock()
	callback := b.onLost
	b.mu.Unlock()
	callback(err)
}

func (b *fakeBroker) failNext(n int) {
	b.mu.Lock()
	b.failConnects = n
	b.mu.Unlock()
}

func (b *fakeBroker) counts() (connects, subscribes, disconnects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects, len(b.subscribes), b.disconnects
}

// recordingSleep records requested waits without sleeping.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func testConfig() Config {
	return Config{
		Topic:       "owntracks/+/+/event",
		QoS:         1,
		Handler:     func(string, []byte) error { return nil },
		MinInterval: time.Second,
		MaxInterval: 120 * time.Second,
	}
}

func waitForState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("State() = %s, want %s", s.State(), want)
}

func waitForSubscribes(t *testing.T, b *fakeBroker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, subs, _ := b.counts(); subs >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	_, subs, _ := b.counts()
	t.Fatalf("subscribes = %d, want %d", subs, want)
}

func seconds(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Second
	}
	return out
}

func equalDurations(a, b []time.Duration) bool {
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

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeBroker{}, Config{})
	if s.config.MinInterval != DefaultMinInterval {
		t.Errorf("MinInterval = %v, want %v", s.config.MinInterval, DefaultMinInterval)
	}
	if s.config.MaxInterval != DefaultMaxInterval {
		t.Errorf("MaxInterval = %v, want %v", s.config.MaxInterval, DefaultMaxInterval)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %s, want %s", s.State(), StateDisconnected)
	}
}

func TestStart_ConnectsAndSubscribes(t *testing.T) {
	broker := &fakeBroker{}
	s := New(broker, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitForSubscribes(t, broker, 1)
	waitForState(t, s, StateConnected)

	if !s.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	broker.mu.Lock()
	topic := broker.subscribes[0]
	broker.mu.Unlock()
	if topic != "owntracks/+/+/event" {
		t.Errorf("subscribed to %q", topic)
	}
}

func TestStart_Twice(t *testing.T) {
	s := New(&fakeBroker{}, testConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestBackoffSequence(t *testing.T) {
	broker := &fakeBroker{failConnects: 10}
	sleeper := &recordingSleep{}
	s := New(broker, testConfig())
	s.SetSleep(sleeper.sleep)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitForSubscribes(t, broker, 1)

	want := seconds(1, 2, 4, 8, 16, 32, 64, 120, 120, 120)
	if got := sleeper.snapshot(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
	if connects, _, _ := broker.counts(); connects != 11 {
		t.Errorf("connects = %d, want 11", connects)
	}
}

func TestBackoffResetsAfterSuccess(t *testing.T) {
	broker := &fakeBroker{failConnects: 3}
	sleeper := &recordingSleep{}
	s := New(broker, testConfig())
	s.SetSleep(sleeper.sleep)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitForSubscribes(t, broker, 1)

	// Immediate reconnect fails once, then succeeds.
	broker.failNext(2)
	broker.dropConnection(errors.New("connection reset"))
	waitForSubscribes(t, broker, 2)

	want := seconds(1, 2, 4, 1, 2)
	if got := sleeper.snapshot(); !equalDurations(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestUnexpectedDisconnect_ImmediateReconnect(t *testing.T) {
	broker := &fakeBroker{}
	sleeper := &recordingSleep{}
	s := New(broker, testConfig())
	s.SetSleep(sleeper.sleep)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitForSubscribes(t, broker, 1)

	for i := 2; i <= 4; i++ {
		broker.dropConnection(errors.New("keepalive timeout"))
		waitForSubscribes(t, broker, i)
	}

	if got := sleeper.snapshot(); len(got) != 0 {
		t.Errorf("waits = %v, want none", got)
	}
	if connects, subs, _ := broker.counts(); connects != 4 || subs != 4 {
		t.Errorf("connects = %d subscribes = %d, want 4 and 4", connects, subs)
	}
}

func TestSubscribeFailure_BacksOff(t *testing.T) {
	broker := &fakeBroker{failSubscribe: 1}
	sleeper := &recordingSleep{}
	s := New(broker, testConfig())
	s.SetSleep(sleeper.sleep)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitForSubscribes(t, broker, 1)

	if got := sleeper.snapshot(); !equalDurations(got, seconds(1)) {
		t.Errorf("waits = %v, want [1s]", got)
	}
	if _, _, disconnects := broker.counts(); disconnects != 1 {
		t.Errorf("disconnects = %d, want 1 after failed subscribe", disconnects)
	}
}

func TestStop_NoRetry(t *testing.T) {
	broker := &fakeBroker{}
	s := New(broker, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForSubscribes(t, broker, 1)

	s.Stop()

	if s.State() != StateDisconnected {
		t.Errorf("State() = %s, want %s", s.State(), StateDisconnected)
	}

	// A late loss notification after Stop must not trigger a reconnect.
	broker.dropConnection(errors.New("closed"))
	time.Sleep(20 * time.Millisecond)

	connects, _, disconnects := broker.counts()
	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", disconnects)
	}
}

func TestStop_DuringBackoff(t *testing.T) {
	broker := &fakeBroker{failConnects: 1000}
	s := New(broker, testConfig())
	s.SetSleep(func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, s, StateDisconnected)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not interrupt backoff wait")
	}
}

func TestStop_NotStarted(t *testing.T) {
	s := New(&fakeBroker{}, testConfig())
	s.Stop() // must not panic or block
}

func TestStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var states []State

	cfg := testConfig()
	cfg.OnStateChange = func(state State) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	}

	broker := &fakeBroker{}
	s := New(broker, cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, s, StateConnected)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestStats(t *testing.T) {
	broker := &fakeBroker{failConnects: 1}
	s := New(broker, testConfig())
	s.SetSleep((&recordingSleep{}).sleep)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()
	waitForSubscribes(t, broker, 1)
	waitForState(t, s, StateConnected)

	stats := s.Stats()
	if stats.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", stats.Attempts)
	}
	if stats.ConnectedSince.IsZero() {
		t.Error("ConnectedSince is zero while connected")
	}
	if stats.LastError != "connection refused" {
		t.Errorf("LastError = %q, want %q", stats.LastError, "connection refused")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
}
