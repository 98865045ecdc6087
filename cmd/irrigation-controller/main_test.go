package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/irrigation-controller/internal/command"
	"github.com/sweeney/irrigation-controller/internal/display"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/network"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/web"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var (
	released   = []bool{false, false, false, false, false}
	mode2Down  = []bool{false, true, false, false, false}
	actionDown = []bool{false, false, false, false, true}
)

// repeat returns n copies of sample.
func repeat(sample []bool, n int) [][]bool {
	out := make([][]bool, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

// concat joins sample runs.
func concat(runs ...[][]bool) [][]bool {
	var out [][]bool
	for _, r := range runs {
		out = append(out, r...)
	}
	return out
}

// faultReader wraps a FakeReader and returns errors for a range of Read() calls.
type faultReader struct {
	inner      *gpio.FakeReader
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (r *faultReader) Read() ([]bool, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return nil, errors.New("gpio fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

type memVolumes struct {
	mu    sync.Mutex
	vols  [logic.NumModes]int
	saves int
}

func (m *memVolumes) LoadVolumes() ([logic.NumModes]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vols, nil
}

func (m *memVolumes) SaveVolumes(v [logic.NumModes]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vols = v
	m.saves++
	return nil
}

type scriptedProbe struct {
	results []bool
	i       int
}

func (p *scriptedProbe) Connected() (bool, error) {
	r := p.results[p.i]
	if p.i < len(p.results)-1 {
		p.i++
	}
	return r, nil
}

type fakeServer struct {
	starts, stops int
}

func (s *fakeServer) Start() { s.starts++ }
func (s *fakeServer) Stop()  { s.stops++ }

type testRig struct {
	loop    *loop
	relay   *gpio.FakeRelay
	pub     *mqtt.FakePublisher
	store   *memVolumes
	notes   []string
	queue   *command.Queue
	tracker *status.Tracker
	metrics *metrics.Collector
}

func newTestRig(t *testing.T, reader gpio.Reader) *testRig {
	t.Helper()
	r := &testRig{
		relay:   &gpio.FakeRelay{},
		pub:     mqtt.NewFakePublisher(),
		store:   &memVolumes{vols: logic.DefaultVolumes},
		queue:   command.NewQueue(command.DefaultCapacity),
		tracker: status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
		metrics: metrics.New(),
	}
	buffer := display.NewBuffer()
	core := logic.NewCore(logic.DefaultSettings(), logic.Deps{
		Persistence: r.store,
		Display:     display.NewScreen(buffer),
		Actuator:    r.relay,
	})
	r.loop = &loop{
		core:       core,
		reader:     reader,
		queue:      r.queue,
		publisher:  r.pub,
		mqttStatus: r.pub,
		tracker:    r.tracker,
		lines:      buffer,
		metrics:    r.metrics,
		notify:     func(s string) { r.notes = append(r.notes, s) },
	}
	return r
}

// run drives runLoop for nTicks ticks of step and then delivers signal.
func (r *testRig) run(t *testing.T, step time.Duration, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(r.loop, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func eventTypes(events []logic.Event) []logic.EventType {
	out := make([]logic.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestRunLoopIdleOnlyShutdown(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))

	if err := r.run(t, 10*time.Millisecond, 50, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 0 {
		t.Errorf("expected no controller events, got %v", eventTypes(r.pub.Events))
	}
	names := r.pub.SystemEventNames()
	if len(names) != 1 || names[0] != mqtt.SystemShutdown {
		t.Fatalf("system events: got %v, want [SHUTDOWN]", names)
	}
	se := r.pub.SystemEvents[0]
	if se.Reason != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", se.Reason)
	}
	if !se.Retained {
		t.Error("SHUTDOWN should be retained")
	}
	if !strings.Contains(string(se.RawPayload), `"event":"SHUTDOWN"`) {
		t.Errorf("payload: %s", se.RawPayload)
	}
	if len(r.notes) != 1 || r.notes[0] != "STOPPING=1" {
		t.Errorf("notifications: got %v, want [STOPPING=1]", r.notes)
	}
}

func TestRunLoopButtonRun(t *testing.T) {
	samples := concat(
		repeat(mode2Down, 20),
		repeat(released, 10),
		repeat(actionDown, 20),
		repeat(released, 1),
	)
	r := newTestRig(t, gpio.NewFakeReader(samples))

	if err := r.run(t, 10*time.Millisecond, 800, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	want := []logic.EventType{
		logic.EventButtonPress, logic.EventModeSelected,
		logic.EventButtonPress, logic.EventPumpStarted,
		logic.EventPumpFinished,
	}
	got := eventTypes(r.pub.Events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	started := r.pub.Events[3]
	if started.Mode != logic.Mode2 || started.VolumeMl != 1500 {
		t.Errorf("PUMP_STARTED: got mode %v volume %d", started.Mode, started.VolumeMl)
	}

	hist := r.relay.History()
	if len(hist) < 2 || !hist[0] || hist[1] {
		t.Errorf("relay history: got %v, want on then off", hist)
	}
	if r.relay.On() {
		t.Error("relay should be off after the run")
	}

	snap := r.tracker.Snapshot()
	if snap.Controller.Counts.PumpRuns != 1 {
		t.Errorf("PumpRuns: got %d, want 1", snap.Controller.Counts.PumpRuns)
	}
	if snap.Display[0] != "Irrigation" || snap.Display[1] != "Select a mode" {
		t.Errorf("display after finish pause: got %q", snap.Display)
	}

	rec := httptest.NewRecorder()
	r.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `irrigation_pump_runs_total{mode="2"} 1`) {
		t.Errorf("metrics missing pump run:\n%s", rec.Body.String())
	}
}

func TestRunLoopQueuedCommand(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))
	cmd := logic.Command{Kind: logic.CommandSelect, Mode: logic.Mode3, Source: logic.SourceNetwork}
	if err := r.queue.TrySubmit(cmd); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}

	if err := r.run(t, 10*time.Millisecond, 3, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 1 || r.pub.Events[0].Type != logic.EventModeSelected {
		t.Fatalf("events: got %v, want [MODE_SELECTED]", eventTypes(r.pub.Events))
	}
	if r.pub.Events[0].Mode != logic.Mode3 {
		t.Errorf("mode: got %v, want Mode3", r.pub.Events[0].Mode)
	}
	if got := r.tracker.Snapshot().Controller.Selected; got != logic.Mode3 {
		t.Errorf("tracker selected: got %v, want Mode3", got)
	}
	if r.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("reason: got %q, want SIGINT", r.pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopSubmitWaitsForLoop(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(r.loop, fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10*time.Millisecond), tick, sig)
	}()

	type result struct {
		events []logic.Event
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		ev, err := r.queue.Submit(context.Background(), logic.Command{Kind: logic.CommandIncrease, Mode: logic.Mode1, Source: logic.SourceNetwork})
		resCh <- result{ev, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for r.queue.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("command never queued")
		}
		time.Sleep(time.Millisecond)
	}
	tick <- time.Time{}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Submit: %v", res.err)
	}
	if len(res.events) == 0 {
		t.Error("expected events from increase")
	}

	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.vols[logic.Mode1] != 800 {
		t.Errorf("stored Mode1: got %d, want 800", r.store.vols[logic.Mode1])
	}
}

func TestRunLoopGPIOReadError(t *testing.T) {
	reader := &faultReader{
		inner:      gpio.NewFakeReader(repeat(released, 1)),
		faultStart: 2, // calls 2,3 return error
		faultEnd:   4,
	}
	r := newTestRig(t, reader)

	if err := r.run(t, 10*time.Millisecond, 6, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := r.pub.SystemEventNames()
	if len(names) == 0 || names[len(names)-1] != mqtt.SystemShutdown {
		t.Errorf("expected SHUTDOWN after GPIO errors, got %v", names)
	}
}

func TestRunLoopReadFaultDuringRun(t *testing.T) {
	reader := &faultReader{
		inner:      gpio.NewFakeReader(repeat(released, 1)),
		faultStart: 1,
		faultEnd:   1 << 30,
	}
	r := newTestRig(t, reader)
	cmd := logic.Command{Kind: logic.CommandActivate, Mode: logic.Mode1, Source: logic.SourceNetwork}
	if err := r.queue.TrySubmit(cmd); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}

	// 700 ml runs for 2.8s; every read after the first fails
	if err := r.run(t, 10*time.Millisecond, 400, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	want := []logic.EventType{logic.EventModeSelected, logic.EventPumpStarted, logic.EventPumpFinished}
	got := eventTypes(r.pub.Events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	if d := r.pub.Events[2].Timestamp.Sub(r.pub.Events[1].Timestamp); d < 2800*time.Millisecond || d > 2820*time.Millisecond {
		t.Errorf("run lasted %v, want 2.8s", d)
	}
	if r.relay.On() {
		t.Error("relay should be off")
	}
}

func TestRunLoopShortRead(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat([]bool{true, true}, 1)))

	if err := r.run(t, 10*time.Millisecond, 200, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(r.pub.Events) != 0 {
		t.Errorf("short reads produced events: %v", eventTypes(r.pub.Events))
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))
	r.loop.heartbeat = 100 * time.Millisecond

	// Ticks at 10ms..250ms: heartbeats at 100ms and 200ms
	if err := r.run(t, 10*time.Millisecond, 25, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := r.pub.SystemEventNames()
	want := []string{mqtt.SystemHeartbeat, mqtt.SystemHeartbeat, mqtt.SystemShutdown}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("system events: got %v, want %v", names, want)
	}
	if !strings.Contains(string(r.pub.SystemEvents[0].RawPayload), `"event":"HEARTBEAT"`) {
		t.Errorf("heartbeat payload: %s", r.pub.SystemEvents[0].RawPayload)
	}
	if r.pub.SystemEvents[0].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))

	if err := r.run(t, time.Minute, 100, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if names := r.pub.SystemEventNames(); len(names) != 1 {
		t.Errorf("system events: got %v, want only SHUTDOWN", names)
	}
}

func TestRunLoopWatchdog(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))
	r.loop.watchdog = 100 * time.Millisecond

	// Pinged every 50ms: at 50, 100, 150, 200
	if err := r.run(t, 10*time.Millisecond, 20, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var pings int
	for _, n := range r.notes {
		if n == "WATCHDOG=1" {
			pings++
		}
	}
	if pings != 4 {
		t.Errorf("watchdog pings: got %d, want 4 (%v)", pings, r.notes)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	samples := concat(repeat(mode2Down, 20), repeat(released, 1))
	r := newTestRig(t, gpio.NewFakeReader(samples))
	r.pub.PublishError = fmt.Errorf("broker unavailable")

	if err := r.run(t, 10*time.Millisecond, 40, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(r.pub.Events))
	}
	if got := r.tracker.Snapshot().Controller.Selected; got != logic.Mode2 {
		t.Errorf("selection should survive publish errors: got %v", got)
	}
	names := r.pub.SystemEventNames()
	if len(names) != 1 || names[0] != mqtt.SystemShutdown {
		t.Errorf("expected SHUTDOWN despite publish errors, got %v", names)
	}
}

func TestRunLoopShutdownStopsPump(t *testing.T) {
	samples := concat(
		repeat(mode2Down, 20),
		repeat(released, 10),
		repeat(actionDown, 20),
		repeat(released, 1),
	)
	r := newTestRig(t, gpio.NewFakeReader(samples))

	// Stop mid-run, about 2s into a 6s run
	if err := r.run(t, 10*time.Millisecond, 260, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if r.relay.On() {
		t.Error("relay should be off after shutdown")
	}
	hist := r.relay.History()
	if len(hist) == 0 || !hist[0] {
		t.Errorf("relay history: got %v, want a run to have started", hist)
	}
	for _, e := range r.pub.Events {
		if e.Type == logic.EventPumpFinished {
			t.Error("run should not have finished before shutdown")
		}
	}
}

func TestRunLoopNetworkEdges(t *testing.T) {
	r := newTestRig(t, gpio.NewFakeReader(repeat(released, 1)))
	probe := &scriptedProbe{results: []bool{false, true, true, false, false, true}}
	srv := &fakeServer{}
	r.loop.network = network.NewManager(probe, nil, 10*time.Millisecond, time.Minute)
	r.loop.server = srv

	if err := r.run(t, 10*time.Millisecond, 6, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if srv.starts != 2 || srv.stops != 1 {
		t.Errorf("server: got %d starts %d stops, want 2 and 1", srv.starts, srv.stops)
	}
	if !r.tracker.Snapshot().Online {
		t.Error("tracker should report online after the last probe")
	}
}

func TestWebServerStopDoesNotWaitForRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	queue := command.NewQueue(command.DefaultCapacity)
	tracker := status.NewTracker(time.Now(), status.Config{})
	ws := &webServer{
		addr:      addr,
		newServer: func() *web.Server { return web.New(addr, tracker, queue, nil) },
	}
	ws.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/index.json")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// This request waits on the queue, which nothing drains yet
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := client.Post("http://"+addr+"/activate?mode=1", "", nil)
		if err == nil {
			resp.Body.Close()
		}
	}()
	for queue.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never reached the queue")
		}
		time.Sleep(time.Millisecond)
	}

	begin := time.Now()
	ws.Stop()
	if d := time.Since(begin); d > 50*time.Millisecond {
		t.Errorf("Stop took %v with a request in flight", d)
	}

	queue.Drain(func(logic.Command) []logic.Event { return nil })
	<-done
	ws.Wait()
}

func TestSignalName(t *testing.T) {
	if signalName(syscall.SIGINT) != "SIGINT" {
		t.Error("SIGINT")
	}
	if signalName(syscall.SIGTERM) != "SIGTERM" {
		t.Error("SIGTERM")
	}
	if signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("SIGHUP should be UNKNOWN")
	}
}

func TestOfflinePublisher(t *testing.T) {
	var p mqttClient = offlinePublisher{}
	if err := p.Publish(logic.Event{}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.PublishSystem(mqtt.SystemEvent{}); err != nil {
		t.Errorf("PublishSystem: %v", err)
	}
	if p.IsConnected() {
		t.Error("offline publisher should never be connected")
	}
}
