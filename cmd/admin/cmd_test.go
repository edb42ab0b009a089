package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/identity"
	"geoattend/internal/store/memstore"
)

func setup(t *testing.T) (*commandLine, *memstore.DB, *bytes.Buffer) {
	t.Helper()
	mem := memstore.New()
	out := &bytes.Buffer{}
	return &commandLine{
		identities: identity.NewService(mem),
		ids:        mem,
		courses:    mem,
		out:        out,
	}, mem, out
}

func mockPassword(t *testing.T, pwd string, err error) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), err }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCases(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(context.Background(), args)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t)
	runCases(t, cli, []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without database", args: []string{"migrate"}, wantErrStr: "STORE_BACKEND=postgres"},
	})
	assert.Contains(t, out.String(), "create-lecturer")
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)
	calls := 0
	cli.migrate = func(context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("db down")
		}
		return nil
	}
	runCases(t, cli, []cliTest{
		{name: "ok", args: []string{"migrate"}},
		{name: "failure", args: []string{"migrate"}, wantErrStr: "db down"},
	})
}

func Test_commandLine_createLecturer(t *testing.T) {
	cli, mem, _ := setup(t)

	mockPassword(t, "", nil)
	runCases(t, cli, []cliTest{
		{name: "missing flags", args: []string{"create-lecturer"}, wantErr: errHelp},
		{name: "missing name", args: []string{"create-lecturer", "-username", "prof"}, wantErr: errHelp},
		{name: "empty password", args: []string{"create-lecturer", "-username", "prof", "-name", "Prof"}, wantErr: errHelp},
	})

	mockPassword(t, "", errors.New("no tty"))
	runCases(t, cli, []cliTest{
		{name: "prompt failure", args: []string{"create-lecturer", "-username", "prof", "-name", "Prof"}, wantErrStr: "no tty"},
	})

	mockPassword(t, "s3cret!", nil)
	runCases(t, cli, []cliTest{
		{name: "ok", args: []string{"create-lecturer", "-username", "prof", "-name", "Prof"}},
		{name: "duplicate", args: []string{"create-lecturer", "-username", "prof", "-name", "Prof"}, wantErrStr: "already exists"},
	})

	lec, err := mem.LecturerByUsername(context.Background(), "prof")
	require.NoError(t, err)
	assert.Equal(t, "Prof", lec.Name)
}

func Test_commandLine_importStudents(t *testing.T) {
	cli, mem, out := setup(t)
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(roster, []byte("index_number,name\nST001,Alice\nST002, Bob\n"), 0o600))
	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("ST001\n"), 0o600))

	runCases(t, cli, []cliTest{
		{name: "missing file flag", args: []string{"import-students"}, wantErr: errHelp},
		{name: "no such file", args: []string{"import-students", "-file", filepath.Join(dir, "nope.csv")}, wantErr: os.ErrNotExist},
		{name: "short row", args: []string{"import-students", "-file", bad}, wantErrStr: "roster line 1"},
		{name: "ok", args: []string{"import-students", "-file", roster}},
	})

	assert.Contains(t, out.String(), "added 2, updated 0, skipped 0")
	st, err := mem.StudentByIndex(context.Background(), "ST002")
	require.NoError(t, err)
	assert.Equal(t, "Bob", st.Name)
	assert.False(t, st.IsRegistered)
}

func Test_commandLine_seed(t *testing.T) {
	cli, mem, out := setup(t)
	runCases(t, cli, []cliTest{
		{name: "first", args: []string{"seed"}},
		{name: "again", args: []string{"seed"}},
	})
	assert.Equal(t, 2, strings.Count(out.String(), "seed complete"))

	_, err := mem.LecturerByUsername(context.Background(), "prof.doe")
	assert.NoError(t, err)
}

func Test_readRoster(t *testing.T) {
	rows, err := readRoster(strings.NewReader("ST010,Carol\nST011,Dan\n"))
	require.NoError(t, err)
	assert.Equal(t, []identity.StudentImport{
		{IndexNumber: "ST010", Name: "Carol"},
		{IndexNumber: "ST011", Name: "Dan"},
	}, rows)
}
