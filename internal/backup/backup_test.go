package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestRunner() *Runner {
	return NewRunner("storefleet-backup", time.Minute,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBackup(t *testing.T) {
	r := newTestRunner()

	var gotArgs []string
	r.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("uploading db dump...\nuploading files...\nsnap-20260830-0001\n"), nil
	}

	tenantID := uuid.New()
	id, err := r.Backup(context.Background(), tenantID, ScopeBoth)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if id != "snap-20260830-0001" {
		t.Errorf("got snapshot id %q, want the last output line", id)
	}

	cmdline := strings.Join(gotArgs, " ")
	if !strings.Contains(cmdline, "backup --tenant "+tenantID.String()+" --scope both") {
		t.Errorf("unexpected command line: %s", cmdline)
	}
}

func TestBackup_ToolFailure(t *testing.T) {
	r := newTestRunner()
	r.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("disk full"), errors.New("exit status 1")
	}

	if _, err := r.Backup(context.Background(), uuid.New(), ScopeDB); err == nil {
		t.Fatal("tool failure not surfaced")
	} else if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error should carry the tool output: %v", err)
	}
}

func TestBackup_EmptyOutput(t *testing.T) {
	r := newTestRunner()
	r.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("\n  \n"), nil
	}

	if _, err := r.Backup(context.Background(), uuid.New(), ScopeFiles); err == nil {
		t.Fatal("missing snapshot id not surfaced")
	}
}

func TestBackup_InvalidScope(t *testing.T) {
	r := newTestRunner()
	r.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		t.Error("tool must not run with an invalid scope")
		return nil, nil
	}

	if _, err := r.Backup(context.Background(), uuid.New(), Scope("tapes")); err == nil {
		t.Fatal("invalid scope accepted")
	}
}

func TestRestore(t *testing.T) {
	r := newTestRunner()

	var gotArgs []string
	r.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return nil, nil
	}

	tenantID := uuid.New()
	if err := r.Restore(context.Background(), tenantID, "snap-1", ScopeDB); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	cmdline := strings.Join(gotArgs, " ")
	if !strings.Contains(cmdline, "restore --tenant "+tenantID.String()+" --snapshot snap-1 --scope db") {
		t.Errorf("unexpected command line: %s", cmdline)
	}
}

func TestValidScope(t *testing.T) {
	for _, s := range []Scope{ScopeDB, ScopeFiles, ScopeBoth} {
		if !ValidScope(s) {
			t.Errorf("scope %s rejected", s)
		}
	}
	if ValidScope(Scope("everything")) {
		t.Error("unknown scope accepted")
	}
}

func TestLastLine(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a\nb\nc\n", "c"},
		{"only", "only"},
		{"trailing\n\n  \n", "trailing"},
		{"", ""},
	}
	for _, c := range cases {
		if got := lastLine(c.in); got != c.want {
			t.Errorf("lastLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
