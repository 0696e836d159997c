package state

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wardenhq/core/internal/domain/entities"
	"github.com/wardenhq/core/internal/infrastructure/persistence"
)

type testSink struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (s *testSink) Infow(msg string, keysAndValues ...interface{}) {}

func (s *testSink) Warnw(msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warns = append(s.warns, msg)
}

func (s *testSink) Errorw(msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *testSink) warnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warns)
}

func (s *testSink) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

// countingWriter delegates to a real atomic writer and counts successful
// writes. Flipping fail simulates a full or broken disk.
type countingWriter struct {
	w      *persistence.Writer
	writes atomic.Int64
	fail   atomic.Bool
}

func newCountingWriter(path string) *countingWriter {
	return &countingWriter{w: persistence.NewWriter(path, 0o600)}
}

func (cw *countingWriter) Write(data []byte) error {
	if cw.fail.Load() {
		return errors.New("disk full")
	}
	if err := cw.w.Write(data); err != nil {
		return err
	}
	cw.writes.Add(1)
	return nil
}

func openTestStore(t *testing.T) (*Store, *countingWriter, *testSink) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.db")
	cw := newCountingWriter(path)
	sink := &testSink{}

	s, err := Open(path, sink, WithWriter(cw))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, cw, sink
}

func TestOpen_CreatesFreshDocument(t *testing.T) {
	s, cw, _ := openTestStore(t)

	if s.InstanceID() == "" {
		t.Error("fresh document must carry an instance ID")
	}
	if s.HasLoginKey() {
		t.Error("fresh document must not hold a login key")
	}
	if s.HasAuthenticator() {
		t.Error("fresh document must not hold an authenticator")
	}
	if got := cw.writes.Load(); got != 1 {
		t.Errorf("creation writes = %d, want 1", got)
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("state file missing after create: %v", err)
	}
}

func TestOpen_FailedCreateFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.db")
	cw := newCountingWriter(path)
	cw.fail.Store(true)

	if _, err := Open(path, &testSink{}, WithWriter(cw)); err == nil {
		t.Fatal("Open must fail when the initial persist fails")
	}
}

func TestOpen_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.db")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, &testSink{}); err == nil {
		t.Fatal("Open must fail on a corrupt state file")
	}
}

func TestOpen_NormalizesSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.db")
	if err := os.WriteFile(path, []byte(`{"login_key":"carried-over"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, &testSink{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if s.LoginKey() != "carried-over" {
		t.Errorf("LoginKey() = %q, want carried-over", s.LoginKey())
	}
	if s.InstanceID() == "" {
		t.Error("missing instance ID should be generated on load")
	}
	// The repaired sets must be usable.
	if !s.AddIdlingPriorityAppIDs(730) {
		t.Error("repaired set rejected a first add")
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.db")
	sink := &testSink{}

	s, err := Open(path, sink)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.SetLoginKey("resume-me")
	s.SetAuthenticator(entities.Authenticator{
		SharedSecret:   "shared",
		IdentitySecret: "identity",
		DeviceID:       "android:abc",
	})
	s.AddIdlingPriorityAppIDs(730, 440)
	s.AddIdlingBlacklistedAppIDs(570)
	s.AddBlacklistedTradePartnerIDs(76561198000000001)

	reopened, err := Open(path, sink)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if reopened.InstanceID() != s.InstanceID() {
		t.Errorf("instance ID changed across reopen: %q != %q", reopened.InstanceID(), s.InstanceID())
	}
	if reopened.LoginKey() != "resume-me" {
		t.Errorf("LoginKey() = %q, want resume-me", reopened.LoginKey())
	}
	auth, ok := reopened.Authenticator()
	if !ok {
		t.Fatal("authenticator lost across reopen")
	}
	if auth.SharedSecret != "shared" || auth.IdentitySecret != "identity" || auth.DeviceID != "android:abc" {
		t.Errorf("authenticator = %+v, want original secrets", auth)
	}
	if !reopened.IsIdlingPriority(730) || !reopened.IsIdlingPriority(440) {
		t.Error("idling priority members lost across reopen")
	}
	if !reopened.IsIdlingBlacklisted(570) {
		t.Error("idling blacklist member lost across reopen")
	}
	if !reopened.IsBlacklistedTradePartner(76561198000000001) {
		t.Error("trade partner member lost across reopen")
	}
}

func TestSetLoginKey_SavesOnlyOnChange(t *testing.T) {
	s, cw, _ := openTestStore(t)
	base := cw.writes.Load()

	if !s.SetLoginKey("key-1") {
		t.Error("first SetLoginKey = false, want true")
	}
	if got := cw.writes.Load(); got != base+1 {
		t.Errorf("writes = %d, want %d", got, base+1)
	}

	if s.SetLoginKey("key-1") {
		t.Error("same-value SetLoginKey = true, want false")
	}
	if got := cw.writes.Load(); got != base+1 {
		t.Errorf("same-value write touched disk: writes = %d, want %d", got, base+1)
	}

	if !s.SetLoginKey("key-2") {
		t.Error("changed SetLoginKey = false, want true")
	}
	if got := cw.writes.Load(); got != base+2 {
		t.Errorf("writes = %d, want %d", got, base+2)
	}
}

func TestIdlingPrioritySaveDiscipline(t *testing.T) {
	s, cw, _ := openTestStore(t)
	base := cw.writes.Load()

	if !s.AddIdlingPriorityAppIDs(730, 440) {
		t.Error("first AddIdlingPriorityAppIDs = false, want true")
	}
	if !s.IsIdlingPriority(730) || !s.IsIdlingPriority(440) {
		t.Error("members missing after add")
	}
	if got := cw.writes.Load(); got != base+1 {
		t.Errorf("writes = %d, want %d", got, base+1)
	}

	if s.AddIdlingPriorityAppIDs(730, 440) {
		t.Error("repeat AddIdlingPriorityAppIDs = true, want false")
	}
	if got := cw.writes.Load(); got != base+1 {
		t.Errorf("no-change add touched disk: writes = %d, want %d", got, base+1)
	}

	if !s.RemoveIdlingPriorityAppIDs(730) {
		t.Error("RemoveIdlingPriorityAppIDs = false, want true")
	}
	if s.RemoveIdlingPriorityAppIDs(730) {
		t.Error("repeat RemoveIdlingPriorityAppIDs = true, want false")
	}
	if got := cw.writes.Load(); got != base+2 {
		t.Errorf("writes = %d, want %d", got, base+2)
	}

	reopened, err := Open(s.Path(), &testSink{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.IsIdlingPriority(730) {
		t.Error("730 should be gone after reopen")
	}
	if !reopened.IsIdlingPriority(440) {
		t.Error("440 should survive reopen")
	}
}

func TestMutations_EmptyInput(t *testing.T) {
	s, cw, sink := openTestStore(t)
	base := cw.writes.Load()

	if s.AddIdlingPriorityAppIDs() {
		t.Error("empty add = true, want false")
	}
	if s.RemoveBlacklistedTradePartnerIDs() {
		t.Error("empty remove = true, want false")
	}
	if got := cw.writes.Load(); got != base {
		t.Errorf("empty input touched disk: writes = %d, want %d", got, base)
	}
	if got := sink.warnCount(); got != 2 {
		t.Errorf("warnings = %d, want 2", got)
	}
}

func TestSaveFailuresAreSwallowed(t *testing.T) {
	s, cw, sink := openTestStore(t)
	base := cw.writes.Load()
	cw.fail.Store(true)

	if !s.SetLoginKey("kept-in-memory") {
		t.Error("mutation must still report change when the save fails")
	}
	if s.LoginKey() != "kept-in-memory" {
		t.Error("in-memory state must stay authoritative")
	}
	if got := cw.writes.Load(); got != base {
		t.Errorf("writes = %d, want %d", got, base)
	}
	if got := sink.errorCount(); got != 1 {
		t.Errorf("errors logged = %d, want 1", got)
	}
	if got := s.Stats().SaveFailures; got != 1 {
		t.Errorf("Stats().SaveFailures = %d, want 1", got)
	}

	// Disk recovers; the next effective mutation lands the whole document,
	// including the previously unsaved login key.
	cw.fail.Store(false)
	if !s.AddIdlingPriorityAppIDs(730) {
		t.Error("add after recovery = false, want true")
	}

	reopened, err := Open(s.Path(), &testSink{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.LoginKey() != "kept-in-memory" {
		t.Error("recovered save must carry the newest state")
	}
	if !reopened.IsIdlingPriority(730) {
		t.Error("recovered save lost the triggering mutation")
	}
}

func TestAuthenticatorLifecycle(t *testing.T) {
	s, cw, sink := openTestStore(t)
	base := cw.writes.Load()

	// Correcting with nothing attached is a reported no-op.
	if s.CorrectAuthenticatorDeviceID("android:abc") {
		t.Error("correct without authenticator = true, want false")
	}
	if got := sink.warnCount(); got != 1 {
		t.Errorf("warnings = %d, want 1", got)
	}

	auth := entities.Authenticator{SharedSecret: "s", IdentitySecret: "i"}
	if !s.SetAuthenticator(auth) {
		t.Error("SetAuthenticator = false, want true")
	}
	if s.SetAuthenticator(auth) {
		t.Error("same-value SetAuthenticator = true, want false")
	}
	if got := cw.writes.Load(); got != base+1 {
		t.Errorf("writes = %d, want %d", got, base+1)
	}

	if !s.CorrectAuthenticatorDeviceID("android:abc") {
		t.Error("CorrectAuthenticatorDeviceID = false, want true")
	}
	if s.CorrectAuthenticatorDeviceID("android:abc") {
		t.Error("repeat CorrectAuthenticatorDeviceID = true, want false")
	}
	if got := cw.writes.Load(); got != base+2 {
		t.Errorf("writes = %d, want %d", got, base+2)
	}

	got, ok := s.Authenticator()
	if !ok || got.DeviceID != "android:abc" {
		t.Errorf("Authenticator() = %+v, %v; want corrected device ID", got, ok)
	}

	// The returned copy must not alias document state.
	got.DeviceID = "android:mutated"
	again, _ := s.Authenticator()
	if again.DeviceID != "android:abc" {
		t.Error("Authenticator() leaked a reference to document state")
	}

	if !s.ClearAuthenticator() {
		t.Error("ClearAuthenticator = false, want true")
	}
	if s.ClearAuthenticator() {
		t.Error("repeat ClearAuthenticator = true, want false")
	}
}

func TestConcurrentMutations(t *testing.T) {
	s, _, sink := openTestStore(t)

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base uint32) {
			defer wg.Done()
			for i := uint32(0); i < perGoroutine; i++ {
				if !s.AddIdlingPriorityAppIDs(base + i) {
					t.Errorf("lost disjoint add %d", base+i)
				}
			}
		}(uint32(g * perGoroutine))
	}
	wg.Wait()

	if got := len(s.IdlingPriorityAppIDs()); got != goroutines*perGoroutine {
		t.Errorf("members = %d, want %d", got, goroutines*perGoroutine)
	}

	// Every mutation schedules a save after itself and saves are
	// serialized, so the reopened file must hold the full union.
	reopened, err := Open(s.Path(), &testSink{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.IdlingPriorityAppIDs()); got != goroutines*perGoroutine {
		t.Errorf("persisted members = %d, want %d", got, goroutines*perGoroutine)
	}
	if sink.errorCount() != 0 {
		t.Errorf("unexpected save failures: %d", sink.errorCount())
	}
}

func TestStats(t *testing.T) {
	s, _, _ := openTestStore(t)

	s.SetLoginKey("k")
	s.AddIdlingPriorityAppIDs(730, 440)
	s.AddBlacklistedTradePartnerIDs(1)

	stats := s.Stats()
	if stats.Saves != 4 {
		t.Errorf("Saves = %d, want 4", stats.Saves)
	}
	if stats.SaveFailures != 0 {
		t.Errorf("SaveFailures = %d, want 0", stats.SaveFailures)
	}
	if !stats.HasLoginKey {
		t.Error("HasLoginKey = false")
	}
	if stats.IdlingPriorityApps != 2 {
		t.Errorf("IdlingPriorityApps = %d, want 2", stats.IdlingPriorityApps)
	}
	if stats.BlacklistedTradePartners != 1 {
		t.Errorf("BlacklistedTradePartners = %d, want 1", stats.BlacklistedTradePartners)
	}
	if stats.LastSaveAt.IsZero() {
		t.Error("LastSaveAt should be set after saves")
	}
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := openTestStore(t)

	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}

	if err := os.Remove(s.Path()); err != nil {
		t.Fatal(err)
	}
	if err := s.HealthCheck(); err == nil {
		t.Error("HealthCheck should fail once the file is gone")
	}
}
