package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/light-scheduler/internal/clock"
	"github.com/sweeney/light-scheduler/internal/control"
	"github.com/sweeney/light-scheduler/internal/light"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/ota"
	"github.com/sweeney/light-scheduler/internal/status"
	"github.com/sweeney/light-scheduler/internal/store"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	ts        *httptest.Server
	tracker   *status.Tracker
	light     *light.Light
	store     *store.Memory
	updater   *ota.FakeUpdater
	restarter *ota.FakeRestarter
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tracker: status.NewTracker(start, "boot-1", status.Config{
			HTTPAddr:     ":80",
			Timezone:     "UTC",
			TickOffsetMs: 50,
			HeartbeatMs:  900000,
			Broker:       "tcp://192.168.1.200:1883",
		}),
		light:     light.New(),
		store:     store.NewMemory(),
		updater:   ota.NewFakeUpdater(),
		restarter: &ota.FakeRestarter{},
	}
	now := time.Date(2026, 1, 1, 9, 30, 15, 0, time.UTC)
	svc := control.New(control.Config{
		Light:    env.light,
		Store:    env.store,
		Clock:    clock.Func(func() time.Time { return now }),
		Recorder: env.tracker,
	})
	srv := New(":0", svc, ota.NewTrigger(env.updater, env.restarter), env.tracker)
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) postForm(t *testing.T, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+"/", "application/x-www-form-urlencoded", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func get(t *testing.T, u string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestIndexPage(t *testing.T) {
	env := newTestServer(t)

	resp, body := get(t, env.ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{
		`id="light-state" class="off">OFF<`,
		`<th>UTC</th>`,
		`09:30:15`,
		`name="schedule_on" min="-1" max="23" value="-1"`,
		`name="schedule_off" min="-1" max="23" value="-1"`,
		`name="toggle" value="1"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexHTMLAlias(t *testing.T) {
	env := newTestServer(t)

	resp, _ := get(t, env.ts.URL+"/index.html")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestPostToggle(t *testing.T) {
	env := newTestServer(t)

	resp, body := env.postForm(t, "toggle=1")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `class="on">ON<`) {
		t.Error("page should show ON after toggle")
	}
	if env.light.Read() != logic.StateOn {
		t.Error("light should be ON")
	}
	if env.tracker.Snapshot().Counts.ManualOn != 1 {
		t.Error("manual transition not recorded")
	}
}

func TestPostSchedule(t *testing.T) {
	env := newTestServer(t)

	resp, body := env.postForm(t, url.Values{"schedule_on": {"6"}, "schedule_off": {"22"}}.Encode())
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `name="schedule_on" min="-1" max="23" value="6"`) {
		t.Error("page should show on hour 6")
	}
	if !strings.Contains(body, `OFF at 22:00`) {
		t.Error("page should show next boundary")
	}

	_, body = env.postForm(t, "schedule_on=-1")
	if !strings.Contains(body, `name="schedule_on" min="-1" max="23" value="-1"`) {
		t.Error("cleared hour should render as -1")
	}
}

func TestPostMalformed(t *testing.T) {
	env := newTestServer(t)

	for _, body := range []string{"schedule_on=24", "toggle=x", "schedule_on=<script>", "toggle=1&schedule_off=100"} {
		resp, got := env.postForm(t, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status got %d, want 400", body, resp.StatusCode)
		}
		if strings.TrimSpace(got) != "request parse error" {
			t.Errorf("%q: body got %q", body, got)
		}
	}
	if env.light.Read() != logic.StateOff {
		t.Error("light changed by malformed request")
	}
}

func TestPostTooLarge(t *testing.T) {
	env := newTestServer(t)

	resp, _ := env.postForm(t, "toggle=1&pad="+strings.Repeat("a", 2000))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if env.light.Read() != logic.StateOff {
		t.Error("light changed by oversized request")
	}
}

func TestPostStorageError(t *testing.T) {
	env := newTestServer(t)
	env.store.FailWrites(errors.New("disk full"))

	resp, body := env.postForm(t, "toggle=1&schedule_on=6")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if strings.TrimSpace(body) != "storage error" {
		t.Errorf("body: got %q", body)
	}
	if env.light.Read() != logic.StateOff {
		t.Error("light toggled despite storage failure")
	}
}

func TestGetStorageError(t *testing.T) {
	env := newTestServer(t)
	env.store.FailReads(errors.New("io"))

	resp, _ := get(t, env.ts.URL+"/")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Update(logic.StateOn, logic.Schedule{On: logic.MustHour(6)}, true)
	env.tracker.SetMQTTConnected(true)

	resp, body := get(t, env.ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Light != "ON" {
		t.Errorf("Light: got %q, want ON", sj.Status.Light)
	}
	if sj.Status.Schedule.On == nil || *sj.Status.Schedule.On != 6 {
		t.Errorf("Schedule.On: got %v, want 6", sj.Status.Schedule.On)
	}
	if sj.Status.Schedule.Off != nil {
		t.Error("Schedule.Off should be null")
	}
	if sj.Status.BootID != "boot-1" {
		t.Errorf("BootID: got %q", sj.Status.BootID)
	}
	if !sj.Status.MQTT.Connected || sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT: got %+v", sj.Status.MQTT)
	}
	if sj.Status.Config.TickOffsetMs != 50 {
		t.Errorf("Config.TickOffsetMs: got %d, want 50", sj.Status.Config.TickOffsetMs)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	_, body := get(t, env.ts.URL+"/index.json")

	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)
	if sj.Status.Network == nil || sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", sj.Status.Network)
	}
}

func TestWithoutTracker(t *testing.T) {
	svc := control.New(control.Config{
		Light: light.New(),
		Store: store.NewMemory(),
		Clock: clock.Func(func() time.Time { return start }),
	})
	ts := httptest.NewServer(New(":0", svc, nil, nil).Handler())
	defer ts.Close()

	if resp, _ := get(t, ts.URL+"/index.json"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /index.json: status %d, want 404", resp.StatusCode)
	}
	if resp, body := get(t, ts.URL+"/"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "OFF") {
		t.Errorf("GET /: status %d", resp.StatusCode)
	}
}

func TestOTASuccess(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/ota", "application/octet-stream", strings.NewReader("firmware"))
	if err != nil {
		t.Fatalf("POST /ota: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(string(body), "ok") {
		t.Errorf("body: got %q", body)
	}
	if imgs := env.updater.Images(); len(imgs) != 1 || string(imgs[0]) != "firmware" {
		t.Errorf("Images: got %q", imgs)
	}
	if got := env.restarter.Reasons(); len(got) != 1 || got[0] != "OTA" {
		t.Errorf("Reasons: got %v", got)
	}
}

func TestOTAFailureStillRestarts(t *testing.T) {
	env := newTestServer(t)
	env.updater.Fail(errors.New("bad image"))

	resp, err := http.Post(env.ts.URL+"/ota", "application/octet-stream", strings.NewReader("junk"))
	if err != nil {
		t.Fatalf("POST /ota: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(body), "bad image") {
		t.Errorf("body: got %q", body)
	}
	if got := env.restarter.Reasons(); len(got) != 1 || got[0] != "OTA_FAILED" {
		t.Errorf("Reasons: got %v", got)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, _ := get(t, env.ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t)

	cases := []struct{ method, path string }{
		{http.MethodPut, "/"},
		{http.MethodDelete, "/index.html"},
		{http.MethodGet, "/ota"},
		{http.MethodPost, "/index.json"},
	}
	for _, c := range cases {
		req, _ := http.NewRequest(c.method, env.ts.URL+c.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", c.method, c.path, resp.StatusCode)
		}
		if resp.Header.Get("Allow") == "" {
			t.Errorf("%s %s: missing Allow header", c.method, c.path)
		}
	}
	if len(env.restarter.Reasons()) != 0 {
		t.Error("GET /ota must not restart")
	}
}
