package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"confsh/internal/hooks"
	"confsh/internal/scheme"
	"confsh/internal/session"
	"confsh/internal/source"
	"confsh/internal/testutil/testlog"
)

// recordingHooks runs no real scripts; it records which commands got a
// script stage and fails the stages it is told to.
type recordingHooks struct {
	hooks.Base
	ran        []string
	scriptErr  map[string]error
	configErr  map[string]error
	committed  []string
	denyAccess map[string]bool
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{
		scriptErr:  make(map[string]error),
		configErr:  make(map[string]error),
		denyAccess: make(map[string]bool),
	}
}

func (h *recordingHooks) Access(_ context.Context, inv *scheme.Invocation) error {
	if h.denyAccess[inv.Line] {
		return hooks.ErrAccessDenied
	}
	return nil
}

func (h *recordingHooks) Script(_ context.Context, inv *scheme.Invocation) error {
	h.ran = append(h.ran, inv.Line)
	return h.scriptErr[inv.Line]
}

func (h *recordingHooks) Config(_ context.Context, inv *scheme.Invocation) error {
	if err := h.configErr[inv.Line]; err != nil {
		return err
	}
	if _, _, _, ok := inv.ConfigDelta(); ok {
		h.committed = append(h.committed, inv.Line)
	}
	return nil
}

func testResolver(t *testing.T) scheme.Resolver {
	t.Helper()
	r, err := scheme.NewStatic([]scheme.CommandDef{
		{Name: "ok", Action: "true"},
		{Name: "commit", Action: "true", Config: &scheme.ConfigOp{Op: "set", Path: "a/$1"}},
		{Name: "enter", NextView: "inner", Action: "true"},
		{Name: "deep", View: "inner", Action: "true"},
	})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return r
}

func newLoop(t *testing.T, h hooks.Hooks) *Loop {
	t.Helper()
	return &Loop{
		Resolver: testResolver(t),
		Hooks:    h,
		Echo:     io.Discard,
		Report:   io.Discard,
	}
}

func runLines(t *testing.T, l *Loop, stopOnError bool, lines ...string) error {
	t.Helper()
	var st source.Stack
	st.PushStream(strings.NewReader(strings.Join(lines, "\n")+"\n"), "test", stopOnError)
	return l.Run(context.Background(), &st)
}

func TestStopOnErrorHaltsSource(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.scriptErr["ok two"] = errors.New("boom")
	l := newLoop(t, h)
	err := runLines(t, l, true, "ok one", "ok two", "ok three")
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if len(h.ran) != 2 {
		t.Fatalf("commands after the failure executed: %v", h.ran)
	}
}

func TestNoStopOnErrorAttemptsEverything(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.scriptErr["ok two"] = errors.New("boom")
	l := newLoop(t, h)
	err := runLines(t, l, false, "ok one", "ok two", "ok three")
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("aggregate must fail when any command failed: %v", err)
	}
	if len(h.ran) != 3 {
		t.Fatalf("not every command attempted: %v", h.ran)
	}
}

func TestNoStopOnErrorAllSucceed(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	l := newLoop(t, h)
	if err := runLines(t, l, false, "ok one", "ok two"); err != nil {
		t.Fatalf("clean run reported failure: %v", err)
	}
}

func TestFatalAbandonsAllSources(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.configErr["commit three"] = session.ErrConnectionLost
	l := newLoop(t, h)

	var st source.Stack
	st.PushStream(strings.NewReader("ok one\nok two\ncommit three\nok four\n"), "first", false)
	st.PushStream(strings.NewReader("ok five\n"), "second", false)

	err := l.Run(context.Background(), &st)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	for _, line := range h.ran {
		if line == "ok four" || line == "ok five" {
			t.Fatalf("command after fatal executed: %v", h.ran)
		}
	}
	if st.Len() != 0 {
		t.Fatal("remaining sources not released after fatal")
	}
}

func TestFatalOnNotConnected(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.configErr["commit x"] = session.ErrNotConnected
	l := newLoop(t, h)
	res := l.Dispatch(context.Background(), "commit x")
	if res.Status != Fatal {
		t.Fatalf("expected Fatal, got %v (%v)", res.Status, res.Err)
	}
}

func TestConfigRejectionIsRecoverable(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.configErr["commit x"] = hooks.ErrConfigRejected
	l := newLoop(t, h)
	res := l.Dispatch(context.Background(), "commit x")
	if res.Status != Failure {
		t.Fatalf("daemon rejection must stay recoverable: %v", res.Status)
	}
}

func TestStopOnErrorFirstFileOnlySkipsThatFile(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.scriptErr["ok bad"] = errors.New("boom")
	l := newLoop(t, h)

	var st source.Stack
	st.PushStream(strings.NewReader("ok a1\nok bad\nok a3\n"), "file1", true)
	st.PushStream(strings.NewReader("ok b1\nok b2\n"), "file2", false)

	err := l.Run(context.Background(), &st)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("aggregate: %v", err)
	}
	want := []string{"ok a1", "ok bad", "ok b1", "ok b2"}
	if len(h.ran) != len(want) {
		t.Fatalf("ran: %v", h.ran)
	}
	for i := range want {
		if h.ran[i] != want[i] {
			t.Fatalf("ran[%d]: got %q want %q", i, h.ran[i], want[i])
		}
	}
}

func TestUnknownAndSyntaxAreFailures(t *testing.T) {
	testlog.Start(t)
	l := newLoop(t, newRecordingHooks())
	res := l.Dispatch(context.Background(), "nonsense here")
	if res.Status != Failure || !errors.Is(res.Err, scheme.ErrNotFound) {
		t.Fatalf("unknown command: %v %v", res.Status, res.Err)
	}
	res = l.Dispatch(context.Background(), `ok "unterminated`)
	if res.Status != Failure || !errors.Is(res.Err, scheme.ErrSyntax) {
		t.Fatalf("syntax error: %v %v", res.Status, res.Err)
	}
}

func TestAccessDenied(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.denyAccess["ok secret"] = true
	l := newLoop(t, h)
	res := l.Dispatch(context.Background(), "ok secret")
	if res.Status != Failure || !errors.Is(res.Err, hooks.ErrAccessDenied) {
		t.Fatalf("access denied: %v %v", res.Status, res.Err)
	}
	if len(h.ran) != 0 {
		t.Fatal("denied command reached the script stage")
	}
}

func TestDryRunNeverCommits(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	l := newLoop(t, hooks.DryRun(h))
	if err := runLines(t, l, false, "commit eth0"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(h.ran) != 0 || len(h.committed) != 0 {
		t.Fatalf("dry run had side effects: ran=%v committed=%v", h.ran, h.committed)
	}
}

func TestViewSwitching(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	l := newLoop(t, h)
	if err := runLines(t, l, true, "enter", "deep"); err != nil {
		t.Fatalf("view switch run: %v", err)
	}
	if l.View != "inner" {
		t.Fatalf("view after run: %q", l.View)
	}
}

func TestBlankAndCommentLinesSkipped(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	l := newLoop(t, h)
	if err := runLines(t, l, true, "", "# comment", "ok one"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.ran) != 1 {
		t.Fatalf("ran: %v", h.ran)
	}
}

func TestEchoAndQuiet(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	var echo bytes.Buffer
	l := newLoop(t, h)
	l.Echo = &echo
	if err := runLines(t, l, true, "ok one"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if echo.String() != "ok one\n" {
		t.Fatalf("echo: %q", echo.String())
	}

	echo.Reset()
	l.Echo = io.Discard
	if err := runLines(t, l, true, "ok one"); err != nil {
		t.Fatalf("quiet run: %v", err)
	}
	if echo.Len() != 0 {
		t.Fatal("quiet mode echoed")
	}
}

func TestReportNamesSourceAndLine(t *testing.T) {
	testlog.Start(t)
	h := newRecordingHooks()
	h.scriptErr["ok bad"] = errors.New("boom")
	var report bytes.Buffer
	l := newLoop(t, h)
	l.Report = &report
	_ = runLines(t, l, false, "ok fine", "ok bad")
	if !strings.Contains(report.String(), "test:2:") {
		t.Fatalf("report lacks source:line: %q", report.String())
	}
}

func TestCanceledContextStopsRun(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newRecordingHooks()
	l := newLoop(t, h)
	var st source.Stack
	st.PushStream(strings.NewReader("ok one\n"), "test", false)
	err := l.Run(ctx, &st)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("canceled run: %v", err)
	}
	if len(h.ran) != 0 {
		t.Fatal("command ran after cancellation")
	}
	if st.Len() != 0 {
		t.Fatal("sources left open after cancellation")
	}
}
