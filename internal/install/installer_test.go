package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/download"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/platform"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/release"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/transaction"
)

const (
	testProject = "Tool"
	testAsset   = "Tool_1.2.0_linux_x64"
)

type fakeDetector struct {
	info *platform.Info
	err  error
}

func (f *fakeDetector) Detect(context.Context) (*platform.Info, error) {
	return f.info, f.err
}

type fakePrivileges struct {
	elevated bool
	err      error
}

func (f *fakePrivileges) IsElevated(context.Context) (bool, error) {
	return f.elevated, f.err
}

type fakeReleases struct {
	info   *release.Info
	err    error
	latest atomic.Int32
	byTag  atomic.Int32
	tags   []string
}

func (f *fakeReleases) Latest(context.Context) (*release.Info, error) {
	f.latest.Add(1)
	return f.info, f.err
}

func (f *fakeReleases) ByTag(_ context.Context, version string) (*release.Info, error) {
	f.byTag.Add(1)
	f.tags = append(f.tags, version)
	return f.info, f.err
}

func (f *fakeReleases) calls() int {
	return int(f.latest.Load() + f.byTag.Load())
}

// fakeDownloader writes content to the destination and reports the given
// phases, or fails with err after reporting them.
type fakeDownloader struct {
	content []byte
	phases  []download.Phase
	err     error
	urls    []string
}

func (f *fakeDownloader) Fetch(_ context.Context, url, destination string, observe download.PhaseFunc) (*download.Result, error) {
	f.urls = append(f.urls, url)
	plan := download.NewPlan(url, destination, int64(len(f.content)), 1)
	for _, p := range f.phases {
		if observe != nil {
			observe(p, plan)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(destination, f.content, 0644); err != nil {
		return nil, err
	}
	fellBack := false
	for _, p := range f.phases {
		if p == download.PhaseFallbackDownloading {
			fellBack = true
		}
	}
	return &download.Result{Path: destination, Size: int64(len(f.content)), Plans: 1, FellBack: fellBack}, nil
}

type fakeLauncher struct {
	chmodErr error
	code     int
	runErr   error
	chmodded []string
	executed []string
	elevated []string
	gotArgs  []string
}

func (f *fakeLauncher) SetExecutable(path string) error {
	f.chmodded = append(f.chmodded, path)
	return f.chmodErr
}

func (f *fakeLauncher) Execute(_ context.Context, path string, args []string) (int, error) {
	f.executed = append(f.executed, path)
	f.gotArgs = args
	return f.code, f.runErr
}

func (f *fakeLauncher) RunElevated(_ context.Context, path string, args []string) (int, error) {
	f.elevated = append(f.elevated, path)
	f.gotArgs = args
	return f.code, f.runErr
}

type harness struct {
	cfg        config.Config
	detector   *fakeDetector
	privileges *fakePrivileges
	releases   *fakeReleases
	downloader *fakeDownloader
	launcher   *fakeLauncher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Project = testProject
	cfg.Repo = "owner/tool"
	cfg.DownloadsDir = t.TempDir()
	cfg.Elevate = false

	return &harness{
		cfg:        cfg,
		detector:   &fakeDetector{info: &platform.Info{OS: "linux", Arch: "amd64"}},
		privileges: &fakePrivileges{},
		releases: &fakeReleases{info: &release.Info{
			Version: "1.2.0",
			Tag:     "v1.2.0",
			Assets: []release.Asset{
				{Name: "Tool_1.2.0_windows_x64.exe", DownloadURL: "https://example.test/win"},
				{Name: testAsset, DownloadURL: "https://example.test/linux", Size: 11},
			},
		}},
		downloader: &fakeDownloader{
			content: []byte("hello world"),
			phases:  []download.Phase{download.PhaseDownloading, download.PhaseValid, download.PhaseMerging},
		},
		launcher: &fakeLauncher{},
	}
}

func (h *harness) installer() *Installer {
	return New(h.cfg, Deps{
		Detector:   h.detector,
		Privileges: h.privileges,
		Releases:   h.releases,
		Downloader: h.downloader,
		Launcher:   h.launcher,
	}, "test-run")
}

func (h *harness) dest() string {
	return filepath.Join(h.cfg.DownloadsDir, testAsset)
}

func TestRun_FreshInstall(t *testing.T) {
	h := newHarness(t)
	h.cfg.Args = []string{"--flag"}

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []State{StatePlanned, StateDownloading, StateValid, StateMerging, StateInstalled}
	if diff := cmp.Diff(want, res.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if res.Destination != h.dest() || res.Version != "1.2.0" || res.Cached {
		t.Errorf("Result = %+v", res)
	}
	if diff := cmp.Diff([]string{"https://example.test/linux"}, h.downloader.urls); diff != "" {
		t.Errorf("download urls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{h.dest()}, h.launcher.chmodded); diff != "" {
		t.Errorf("chmod mismatch (-want +got):\n%s", diff)
	}
	if !res.Launched || len(h.launcher.executed) != 1 || len(h.launcher.elevated) != 0 {
		t.Errorf("launch: executed=%v elevated=%v", h.launcher.executed, h.launcher.elevated)
	}
	if diff := cmp.Diff([]string{"--flag"}, h.launcher.gotArgs); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(transaction.LockPath(h.dest())); !os.IsNotExist(err) {
		t.Error("lock file should be released")
	}
}

func TestRun_FallbackStates(t *testing.T) {
	h := newHarness(t)
	h.downloader.phases = []download.Phase{
		download.PhaseDownloading, download.PhaseInvalid, download.PhaseFallbackDownloading,
	}

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []State{StatePlanned, StateDownloading, StateInvalid, StateFallbackDownloading, StateInstalled}
	if diff := cmp.Diff(want, res.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if !res.Download.FellBack {
		t.Error("Download.FellBack = false")
	}
}

func TestRun_ExistingDestination(t *testing.T) {
	h := newHarness(t)
	if err := os.WriteFile(h.dest(), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Cached {
		t.Error("Cached = false")
	}
	if len(h.downloader.urls) != 0 {
		t.Errorf("downloads = %v, want none", h.downloader.urls)
	}
	if h.releases.latest.Load() != 1 {
		t.Errorf("Latest calls = %d, want 1", h.releases.latest.Load())
	}
	if diff := cmp.Diff([]State{StateInstalled}, res.States); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if len(h.launcher.executed) != 1 {
		t.Error("existing binary should still be launched")
	}
	got, _ := os.ReadFile(h.dest())
	if string(got) != "old" {
		t.Error("existing destination was modified")
	}
}

func TestRun_PinnedVersionSkipsNetwork(t *testing.T) {
	tests := []struct {
		name    string
		version string
		file    string
	}{
		{name: "qualified", version: "1.2.0", file: testAsset},
		{name: "qualified_with_v", version: "v1.2.0", file: testAsset},
		{name: "generic", version: "1.2.0", file: "Tool_1.2.0_linux"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.Version = tt.version
			path := filepath.Join(h.cfg.DownloadsDir, tt.file)
			if err := os.WriteFile(path, []byte("bin"), 0644); err != nil {
				t.Fatal(err)
			}

			res, err := h.installer().Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if h.releases.calls() != 0 {
				t.Errorf("release lookups = %d, want 0", h.releases.calls())
			}
			if len(h.downloader.urls) != 0 {
				t.Errorf("downloads = %v, want none", h.downloader.urls)
			}
			if res.Destination != path || !res.Cached {
				t.Errorf("Result = %+v", res)
			}
		})
	}
}

func TestRun_PinnedVersionDownloads(t *testing.T) {
	h := newHarness(t)
	h.cfg.Version = "v1.2.0"

	if _, err := h.installer().Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.releases.latest.Load() != 0 {
		t.Error("pinned version should not ask for the latest release")
	}
	if diff := cmp.Diff([]string{"v1.2.0"}, h.releases.tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if len(h.downloader.urls) != 1 {
		t.Errorf("downloads = %d, want 1", len(h.downloader.urls))
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		wantErr   string
		wantState []State
	}{
		{
			name:      "detect",
			setup:     func(h *harness) { h.detector.err = errors.New("boom") },
			wantErr:   "detect platform",
			wantState: []State{StateFatalFailed},
		},
		{
			name: "unknown_arch_without_generic_asset",
			setup: func(h *harness) {
				h.detector.info = &platform.Info{OS: "linux", Arch: "riscv64"}
			},
			wantErr:   "no release asset named Tool_1.2.0_linux ",
			wantState: []State{StateFatalFailed},
		},
		{
			name:      "unsupported_os",
			setup:     func(h *harness) { h.detector.info = &platform.Info{OS: "plan9", Arch: "amd64"} },
			wantErr:   "unsupported OS",
			wantState: []State{StateFatalFailed},
		},
		{
			name: "release_lookup",
			setup: func(h *harness) {
				h.releases.err = &httpclient.HTTPStatusError{Op: "GET", URL: "u", StatusCode: 404, Status: "404 Not Found"}
			},
			wantErr:   "resolve release",
			wantState: []State{StateFatalFailed},
		},
		{
			name: "download",
			setup: func(h *harness) {
				h.downloader.phases = []download.Phase{
					download.PhaseDownloading, download.PhaseInvalid, download.PhaseFallbackDownloading,
				}
				h.downloader.err = download.ErrFallbackFailed
			},
			wantErr: "download " + testAsset,
			wantState: []State{
				StatePlanned, StateDownloading, StateInvalid, StateFallbackDownloading, StateFatalFailed,
			},
		},
		{
			name:    "chmod",
			setup:   func(h *harness) { h.launcher.chmodErr = errors.New("read-only filesystem") },
			wantErr: "read-only filesystem",
			wantState: []State{
				StatePlanned, StateDownloading, StateValid, StateMerging, StateInstalled, StateFatalFailed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)
			inst := h.installer()

			res, err := inst.Run(context.Background())
			if err == nil {
				t.Fatal("Run() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantState, res.States); diff != "" {
				t.Errorf("states mismatch (-want +got):\n%s", diff)
			}
			if len(h.launcher.executed)+len(h.launcher.elevated) != 0 {
				t.Error("nothing should be launched after a failure")
			}
		})
	}
}

func TestRun_AssetNotFound(t *testing.T) {
	h := newHarness(t)
	h.detector.info = &platform.Info{OS: "darwin", Arch: "arm64"}

	_, err := h.installer().Run(context.Background())
	var nf *release.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *release.NotFoundError", err)
	}
	want := []string{"Tool_1.2.0_mac_arm64", "Tool_1.2.0_mac"}
	if diff := cmp.Diff(want, nf.Tried); diff != "" {
		t.Errorf("tried mismatch (-want +got):\n%s", diff)
	}
	if len(h.downloader.urls) != 0 {
		t.Error("nothing should be downloaded")
	}
}

func TestRun_UnknownArchGenericAsset(t *testing.T) {
	h := newHarness(t)
	h.detector.info = &platform.Info{OS: "linux", Arch: "riscv64"}
	h.releases.info.Assets = append(h.releases.info.Assets,
		release.Asset{Name: "Tool_1.2.0_linux", DownloadURL: "https://example.test/generic"})

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := filepath.Join(h.cfg.DownloadsDir, "Tool_1.2.0_linux"); res.Destination != want {
		t.Errorf("Destination = %q, want %q", res.Destination, want)
	}
	if diff := cmp.Diff([]string{"https://example.test/generic"}, h.downloader.urls); diff != "" {
		t.Errorf("download urls mismatch (-want +got):\n%s", diff)
	}

	// With a pin, the installed generic asset is found without a lookup.
	h.cfg.Version = "1.2.0"
	h.releases.latest.Store(0)
	res, err = h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !res.Cached || h.releases.calls() != 0 {
		t.Errorf("Cached = %v, release lookups = %d; want cached with none", res.Cached, h.releases.calls())
	}
}

func TestRun_DownloadErrorIsWrapped(t *testing.T) {
	h := newHarness(t)
	h.downloader.err = fmt.Errorf("%w: %w", download.ErrFallbackFailed, &download.SegmentIncompleteError{})

	_, err := h.installer().Run(context.Background())
	if !errors.Is(err, download.ErrFallbackFailed) {
		t.Errorf("error = %v, want ErrFallbackFailed", err)
	}
	var incomplete *download.SegmentIncompleteError
	if !errors.As(err, &incomplete) {
		t.Errorf("error = %v, want *SegmentIncompleteError", err)
	}
}

func TestRun_Elevation(t *testing.T) {
	tests := []struct {
		name         string
		elevate      bool
		elevated     bool
		privErr      error
		wantElevated bool
	}{
		{name: "elevate_unprivileged", elevate: true, wantElevated: true},
		{name: "elevate_already_root", elevate: true, elevated: true},
		{name: "elevate_check_fails", elevate: true, privErr: errors.New("no proc"), wantElevated: true},
		{name: "no_elevate", elevate: false},
		{name: "no_elevate_root", elevate: false, elevated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.Elevate = tt.elevate
			h.privileges.elevated = tt.elevated
			h.privileges.err = tt.privErr

			res, err := h.installer().Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Elevated != tt.wantElevated {
				t.Errorf("Elevated = %v, want %v", res.Elevated, tt.wantElevated)
			}
			gotElevated := len(h.launcher.elevated) == 1
			gotDirect := len(h.launcher.executed) == 1
			if gotElevated != tt.wantElevated || gotDirect == tt.wantElevated {
				t.Errorf("elevated=%v direct=%v", h.launcher.elevated, h.launcher.executed)
			}
		})
	}
}

func TestRun_ExitCode(t *testing.T) {
	h := newHarness(t)
	h.launcher.code = 5

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 5 || !res.Launched {
		t.Errorf("Result = %+v, want exit code 5", res)
	}
	if res.States[len(res.States)-1] != StateInstalled {
		t.Errorf("final state = %v, want installed", res.States[len(res.States)-1])
	}
}

func TestRun_LaunchError(t *testing.T) {
	h := newHarness(t)
	h.launcher.runErr = errors.New("exec format error")

	_, err := h.installer().Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "launch") {
		t.Errorf("error = %v, want launch error", err)
	}
}

func TestRun_NoLaunch(t *testing.T) {
	h := newHarness(t)
	h.cfg.Launch = false

	res, err := h.installer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Launched {
		t.Error("Launched = true")
	}
	if len(h.launcher.chmodded) != 1 {
		t.Error("binary should still be marked executable")
	}
	if len(h.launcher.executed)+len(h.launcher.elevated) != 0 {
		t.Error("nothing should be launched")
	}
}

func TestRun_LockHeld(t *testing.T) {
	h := newHarness(t)
	lock, err := transaction.AcquireLock(context.Background(), h.dest(), "other-run")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, err = h.installer().Run(context.Background())
	if !errors.Is(err, transaction.ErrLockExists) {
		t.Fatalf("error = %v, want ErrLockExists", err)
	}
	if len(h.downloader.urls) != 0 {
		t.Error("nothing should be downloaded while locked")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNone, StatePlanned, true},
		{StateNone, StateInstalled, true},
		{StateDownloading, StateInvalid, true},
		{StateInvalid, StateFallbackDownloading, true},
		{StateFallbackDownloading, StateInstalled, true},
		{StateFallbackDownloading, StateInvalid, false},
		{StateValid, StateInstalled, false},
		{StateInstalled, StateDownloading, false},
		{StateInstalled, StateFatalFailed, true},
		{StateFatalFailed, StatePlanned, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"_to_"+tt.to.String(), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// TestRun_EndToEnd wires the real resolver and fetcher against a fake
// GitHub and checks that a second run makes no asset requests.
func TestRun_EndToEnd(t *testing.T) {
	content := make([]byte, 300_000)
	for i := range content {
		content[i] = byte(i * 7)
	}

	var metaCalls, assetCalls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/repos/owner/tool/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		metaCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"tag_name":"v1.2.0","assets":[{"name":%q,"browser_download_url":%q,"size":%d}]}`,
			testAsset, srv.URL+"/download/"+testAsset, len(content))
	})
	mux.HandleFunc("/download/"+testAsset, func(w http.ResponseWriter, r *http.Request) {
		assetCalls.Add(1)
		http.ServeContent(w, r, testAsset, time.Time{}, strings.NewReader(string(content)))
	})

	h := newHarness(t)
	h.cfg.APIBase = srv.URL
	h.cfg.Parallelism = 4

	client := httpclient.New(httpclient.Options{})
	deps := Deps{
		Detector:   h.detector,
		Privileges: h.privileges,
		Releases:   release.NewResolver(client, h.cfg.APIBase, h.cfg.Repo),
		Downloader: download.NewFetcher(client, download.Options{
			Parallelism:        h.cfg.Parallelism,
			SmallFileThreshold: 1024,
			ProgressInterval:   5 * time.Millisecond,
		}),
		Launcher: h.launcher,
	}

	res, err := New(h.cfg, deps, "first").Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	got, err := os.ReadFile(res.Destination)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatal("installed content differs from the published asset")
	}
	if res.Download.Plans != 1 || res.Download.FellBack {
		t.Errorf("Download = %+v", res.Download)
	}
	firstAssetCalls := assetCalls.Load()
	if firstAssetCalls < 2 {
		t.Errorf("asset requests = %d, want a HEAD and range requests", firstAssetCalls)
	}

	res, err = New(h.cfg, deps, "second").Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !res.Cached {
		t.Error("second run should find the installed asset")
	}
	if assetCalls.Load() != firstAssetCalls {
		t.Errorf("second run made %d asset requests", assetCalls.Load()-firstAssetCalls)
	}
	if metaCalls.Load() != 2 {
		t.Errorf("metadata requests = %d, want 2", metaCalls.Load())
	}
	if len(h.launcher.executed) != 2 {
		t.Errorf("launches = %d, want 2", len(h.launcher.executed))
	}
}
