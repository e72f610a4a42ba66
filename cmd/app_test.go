package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := App()
	app.Writer = &buf
	err := app.Run(context.Background(), append([]string{"satochip", "--log-level", "error"}, args...))
	return buf.String(), err
}

func TestApp_Structure(t *testing.T) {
	var names []string
	for _, c := range App().Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"readers", "status", "verify-pin", "change-pin", "unblock-pin",
		"pubkey", "generate-key", "sign", "events", "decode",
	}, names)
}

func TestApp_Help(t *testing.T) {
	out, err := runApp(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "satochip")
	assert.Contains(t, out, "COMMANDS:")
	assert.NotContains(t, out, "--simulate")
}

func TestStatus_Simulated(t *testing.T) {
	out, err := runApp(t, "--simulate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT by DF name (AID)")
	assert.Contains(t, out, "=== APPLICATION STATUS ===")
	assert.Contains(t, out, "CHANNEL_ESTABLISHED")
	assert.Contains(t, out, "Authentikey:")
}

func TestSign_Simulated(t *testing.T) {
	out, err := runApp(t, "--simulate", "sign", "--message", strings.Repeat("m", 500), "--pin", "123456")
	require.NoError(t, err)

	sig, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, sig, 64)
}

func TestVerifyPIN_Wrong(t *testing.T) {
	_, err := runApp(t, "--simulate", "verify-pin", "--pin", "0000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong PIN")
}

func TestPubkey_UnknownKeyType(t *testing.T) {
	_, err := runApp(t, "--simulate", "pubkey", "--key-type", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key type")
}

func TestEvents_ReplaysLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")

	_, err := runApp(t, "--simulate", "--event-log", path, "verify-pin", "--pin", "123456")
	require.NoError(t, err)

	out, err := runApp(t, "events", "--file", path, "--category", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "DISCONNECTED -> CONNECTED")
	assert.Contains(t, out, "CHANNEL_ESTABLISHED -> AUTHENTICATED")
	assert.NotContains(t, out, "EXCHANGE")

	out, err = runApp(t, "events", "--file", path, "--category", "exchange")
	require.NoError(t, err)
	assert.Contains(t, out, "hdr=B0420000 [redacted]")
	assert.NotContains(t, out, "313233343536", "PIN bytes never reach the log")
}

func TestEvents_BadCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := runApp(t, "events", "--file", path, "--category", "bogus")
	assert.ErrorContains(t, err, "unknown category")
}

func TestDecode(t *testing.T) {
	satodime := "05 0A 03 425443 0000018BCFE56800 0000018D00000000"
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr string
	}{
		{name: "Application status", args: []string{"2B0305"}, want: []string{"=== APPLICATION STATUS ===", "PUK retries:    5"}},
		{name: "Satodime", args: []string{"--as", "satodime", satodime}, want: []string{"=== SATODIME STATUS ===", `Currency:       "BTC"`}},
		{name: "Keyslot", args: []string{"--as", "keyslot", satodime + " 02 AABB"}, want: []string{"=== SATODIME KEYSLOT ===", "Public key:     AABB"}},
		{name: "Truncated", args: []string{"--as", "satodime", "05 0A"}, wantErr: "malformed"},
		{name: "Bad hex", args: []string{"ZZ"}, wantErr: "record"},
		{name: "Unknown type", args: []string{"--as", "bogus", "00"}, wantErr: "unknown record type"},
		{name: "Missing record", wantErr: "missing HEX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, append([]string{"decode"}, tt.args...)...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestMessageInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{name: "Message", args: []string{"--message", "hi"}, want: "hi"},
		{name: "File", args: []string{"--file", path}, want: "from file"},
		{name: "Both", args: []string{"--message", "hi", "--file", path}, wantErr: "only one"},
		{name: "Neither", wantErr: "either"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []byte
			var gotErr error
			c := SignCommand()
			c.Action = func(_ context.Context, cmd *cli.Command) error {
				got, gotErr = messageInput(cmd)
				return nil
			}
			require.NoError(t, c.Run(context.Background(), append([]string{"sign"}, tt.args...)))

			if tt.wantErr != "" {
				assert.ErrorContains(t, gotErr, tt.wantErr)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
