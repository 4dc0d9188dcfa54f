package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New("debug", "")
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, l.GetLevel())

	_, err = New("chatty", "")
	require.Error(t, err)
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govdir.log")
	l, err := New("info", path)
	require.NoError(t, err)
	l.WithField("user_id", "user-1").Info("unlocked contact")
	l.Debug("not written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "unlocked contact")
	require.Contains(t, string(data), "user_id=user-1")
	require.NotContains(t, string(data), "not written")
}

func TestGormLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Discard()
	l.SetOutput(&buf)

	gl := GormLogger(l)
	gl.Warn(context.Background(), "slow migration on %s", "contacts")
	gl.Info(context.Background(), "ignored")
	gl.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM user_quotas", 1
	}, nil)

	out := buf.String()
	require.Contains(t, out, "fromSQL=true")
	require.Contains(t, out, "slow migration on contacts")
	require.Contains(t, out, "SLOW SQL")
	require.NotContains(t, out, "ignored")
}
