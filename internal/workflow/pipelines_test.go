package workflow_test

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/runner"
	"github.com/algohub/algohub/internal/tools"
	"github.com/algohub/algohub/internal/workflow"
	"github.com/stretchr/testify/require"
)

var creds = model.Credentials{Domain: "corp.local", User: "alice", Password: "S3cret!"}

type fakeExec struct {
	mx   sync.Mutex
	cmds []runner.Command
	fn   func(cmd runner.Command) runner.Result
}

func (f *fakeExec) Run(_ context.Context, cmd runner.Command) runner.Result {
	f.mx.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mx.Unlock()
	if f.fn != nil {
		return f.fn(cmd)
	}
	return result(cmd, "", nil)
}

func (f *fakeExec) tools() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	ret := make([]string, 0, len(f.cmds))
	for _, c := range f.cmds {
		ret = append(ret, c.Tool)
	}
	slices.Sort(ret)
	return ret
}

func result(cmd runner.Command, stdout string, err error) runner.Result {
	res := runner.Result{
		Command: cmd,
		Stdout:  bytes.NewBufferString(stdout),
		Stderr:  &bytes.Buffer{},
	}
	if err != nil {
		res.ExitCode = 1
		res.Err = fmt.Errorf("%w: %s: %w", model.ErrToolFailed, cmd.Tool, err)
	}
	return res
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func toolbox(t *testing.T, exec tools.Executor) tools.Toolbox {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Gowitness.ScreenshotsDir = filepath.Join(t.TempDir(), "screenshots")
	cfg.Gowitness.DBFile = filepath.Join(t.TempDir(), "gowitness.sqlite3")
	return tools.New(exec, cfg.Tools, cfg.Gowitness)
}

type fakeScanner struct {
	fail bool
}

func (s fakeScanner) Scan(_ context.Context, subnet, xmlPath, jsonPath string) ([]model.NmapHost, error) {
	if s.fail {
		return nil, fmt.Errorf("%w: nmap: exit status 1", model.ErrToolFailed)
	}
	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(xmlPath, []byte("<nmaprun/>"), 0o644); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(jsonPath, []byte("[]"), 0o644)
}

// signingExec emulates nxc listing two hosts without SMB signing
func signingExec(cmd runner.Command) runner.Result {
	if cmd.Tool == "nxc" {
		out := argAfter(cmd.Args, "--gen-relay-list")
		if err := os.WriteFile(out, []byte("10.0.0.7\n10.0.0.5\nnot-an-ip\n"), 0o644); err != nil {
			panic(err)
		}
	}
	return result(cmd, "", nil)
}

func TestBlackBox(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	exec := &fakeExec{fn: signingExec}
	bb := workflow.BlackBox{
		Layout:  model.Layout{Root: root},
		Scanner: fakeScanner{},
		Tools:   toolbox(t, exec),
		DCHosts: []string{"dc01.corp.local"},
	}

	steps := &workflow.Steps{}
	require.NoError(t, bb.Pipeline(t.Context(), "10.0.0.0/24", steps))
	require.Equal(t, []string{"gowitness", "nxc"}, exec.tools())
	for _, s := range steps.List() {
		require.NoError(t, s.Err, s.Name)
	}

	dir := filepath.Join(root, "10_0_0_0_24")
	require.FileExists(t, filepath.Join(dir, model.FileNmapXML))
	require.FileExists(t, filepath.Join(dir, model.FileNmapJSON))
	b, err := os.ReadFile(filepath.Join(dir, model.FileRelay))
	require.NoError(t, err)
	require.Equal(t, []string{
		"http://10.0.0.5", "http://10.0.0.7",
		"https://10.0.0.5", "https://10.0.0.7",
		"ldap://dc01.corp.local", "ldaps://dc01.corp.local",
		"mssql://10.0.0.5", "mssql://10.0.0.7",
		"smb://10.0.0.5", "smb://10.0.0.7",
		"winrm://10.0.0.5", "winrm://10.0.0.7",
	}, strings.Fields(string(b)))
}

func TestBlackBoxDegraded(t *testing.T) {
	t.Parallel()

	t.Run("nmap failed", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExec{fn: signingExec}
		bb := workflow.BlackBox{
			Layout:  model.Layout{Root: t.TempDir()},
			Scanner: fakeScanner{fail: true},
			Tools:   toolbox(t, exec),
		}
		err := bb.Pipeline(t.Context(), "10.0.0.0/24", &workflow.Steps{})
		require.ErrorIs(t, err, model.ErrToolFailed)
		require.Empty(t, exec.tools())
	})

	t.Run("nxc and gowitness failed", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		exec := &fakeExec{fn: func(cmd runner.Command) runner.Result {
			return result(cmd, "", fmt.Errorf("exit status 2"))
		}}
		bb := workflow.BlackBox{
			Layout:  model.Layout{Root: root},
			Scanner: fakeScanner{},
			Tools:   toolbox(t, exec),
		}
		steps := &workflow.Steps{}
		require.NoError(t, bb.Pipeline(t.Context(), "10.0.0.0/24", steps))

		var failed []string
		for _, s := range steps.List() {
			if s.Err != nil {
				failed = append(failed, s.Name)
			}
		}
		require.Equal(t, []string{"gowitness", "nxc"}, failed)
		b, err := os.ReadFile(filepath.Join(root, "10_0_0_0_24", model.FileRelay))
		require.NoError(t, err)
		require.Empty(t, b)
	})
}

func TestBlackBoxScheduled(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store := newStore(t)
	bb := workflow.BlackBox{
		Layout:  model.Layout{Root: root},
		Scanner: fakeScanner{},
		Tools:   toolbox(t, &fakeExec{fn: signingExec}),
		DCHosts: []string{"dc01.corp.local"},
	}
	sched := workflow.Scheduler{Store: store, Category: model.CategoryBlackBox, Limit: 5}

	summary, err := sched.Run(t.Context(), []string{"10.0.0.0/24", "10.0.1.0/24"}, bb.Pipeline)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Succeeded)

	// a subnet left from a previous run is part of the global relay list
	prev := filepath.Join(root, "192_168_1_0_24")
	require.NoError(t, os.MkdirAll(prev, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(prev, model.FileSMBSigning), []byte("192.168.1.9\n"), 0o644))

	urls, err := bb.GlobalRelay(t.Context())
	require.NoError(t, err)
	require.Len(t, urls, 3*5+2)
	require.Contains(t, urls, "smb://192.168.1.9")
	require.Contains(t, urls, "ldaps://dc01.corp.local")

	b, err := os.ReadFile(filepath.Join(root, model.FileRelay))
	require.NoError(t, err)
	require.Equal(t, strings.Join(urls, "\n")+"\n", string(b))
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(_ context.Context, host string) (netip.Addr, error) {
	ip, ok := r[host]
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: %s: no A record", model.ErrResolve, host)
	}
	return netip.MustParseAddr(ip), nil
}

func TestGrayBox(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	exec := &fakeExec{fn: func(cmd runner.Command) runner.Result {
		switch cmd.Tool {
		case "ldeep":
			out := argAfter(cmd.Args, "--outfile")
			if err := os.WriteFile(out, []byte(`[{"sAMAccountName":"bob"}]`), 0o644); err != nil {
				panic(err)
			}
		case "certipy":
			return result(cmd, "", fmt.Errorf("exit status 1"))
		}
		return result(cmd, "", nil)
	}}
	gb := workflow.GrayBox{
		Layout:   model.Layout{Root: root},
		Resolver: fakeResolver{"dc01.corp.local": "10.0.0.10"},
		Tools:    toolbox(t, exec),
		Creds:    creds,
		SubScans: 3,
	}

	steps := &workflow.Steps{}
	require.NoError(t, gb.Pipeline(t.Context(), "dc01.corp.local", steps))
	require.Equal(t, []string{"bloodhound", "certipy", "ldeep", "ldeep", "ldeep", "ldeep", "ldeep"}, exec.tools())

	outcome := make(map[string]bool)
	for _, s := range steps.List() {
		outcome[s.Name] = s.Err == nil
	}
	require.Equal(t, map[string]bool{"resolve": true, "ldeep": true, "certipy": false, "bloodhound": true}, outcome)
	require.FileExists(t, filepath.Join(root, "ldeep", "dc01.corp.local", model.FileLdapResults))
	require.FileExists(t, filepath.Join(root, "ldeep", "dc01.corp.local", model.FileUsernames))
	require.DirExists(t, filepath.Join(root, "bloodhound", "dc01.corp.local"))
}

func TestGrayBoxFailures(t *testing.T) {
	t.Parallel()

	t.Run("unresolved", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExec{}
		gb := workflow.GrayBox{
			Layout:   model.Layout{Root: t.TempDir()},
			Resolver: fakeResolver{},
			Tools:    toolbox(t, exec),
			Creds:    creds,
			SubScans: 3,
		}
		err := gb.Pipeline(t.Context(), "dc01.corp.local", &workflow.Steps{})
		require.ErrorIs(t, err, model.ErrResolve)
		require.Empty(t, exec.tools())
	})

	t.Run("all subscans failed", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExec{fn: func(cmd runner.Command) runner.Result {
			return result(cmd, "", fmt.Errorf("exit status 1"))
		}}
		gb := workflow.GrayBox{
			Layout:   model.Layout{Root: t.TempDir()},
			Resolver: fakeResolver{"10.0.0.10": "10.0.0.10"},
			Tools:    toolbox(t, exec),
			Creds:    creds,
			SubScans: 1,
		}
		err := gb.Pipeline(t.Context(), "10.0.0.10", &workflow.Steps{})
		require.ErrorIs(t, err, workflow.ErrNothingCollected)
	})
}

func TestManSpider(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		stdout   string
		err      error
		failed   bool
	}{
		{"success", `[+] 10.0.0.5: Successful login as "alice"` + "\n" + `[+] 10.0.0.5: C$\x.kdbx (1KB)`, nil, false},
		{"success without hosts", "[*] nothing found", nil, false},
		{"failed after login", `[+] 10.0.0.5: Successful login as "alice"`, fmt.Errorf("exit status 1"), false},
		{"failed before login", "Traceback (most recent call last):", fmt.Errorf("exit status 1"), true},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			exec := &fakeExec{fn: func(cmd runner.Command) runner.Result {
				return result(cmd, tt.stdout, tt.err)
			}}
			ms := workflow.ManSpider{
				Layout: model.Layout{Root: root},
				Tools:  toolbox(t, exec),
				Creds:  creds,
				Mode:   tools.StandardSpider,
			}
			require.Equal(t, model.CategoryManSpiderStandard, ms.Category())

			err := ms.Pipeline(t.Context(), "10.0.0.0/24", &workflow.Steps{})
			if tt.failed {
				require.ErrorIs(t, err, workflow.ErrNothingCollected)
			} else {
				require.NoError(t, err)
			}
			dir := filepath.Join(root, "manspider", "10.0.0.0_24")
			require.FileExists(t, filepath.Join(dir, model.FileManspiderRaw))
			require.FileExists(t, filepath.Join(dir, model.FileManspiderFiles))
			require.NoFileExists(t, filepath.Join(dir, model.FileManspiderCreds))
		})
	}
}
