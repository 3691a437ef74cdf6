package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func TestVersionFlag(t *testing.T) {
	for _, arg := range []string{"-v", "--version"} {
		t.Run(arg, func(t *testing.T) {
			// the missing file would fail the run, so success means nothing was loaded
			var out bytes.Buffer
			cmd := newRootCommand(quietLogger())
			cmd.SetOut(&out)
			cmd.SetArgs([]string{arg, "-f", filepath.Join(t.TempDir(), "missing.env")})

			require.NoError(t, cmd.Execute())
			assert.Equal(t, version+"\n", out.String())
		})
	}
}

func TestInaccessibleConfigFile(t *testing.T) {
	cmd := newRootCommand(quietLogger())
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"-f", filepath.Join(t.TempDir(), "missing.env")})

	err := cmd.Execute()
	require.ErrorIs(t, err, cfddns.ErrConfigFile)
}

func TestRejectsArguments(t *testing.T) {
	cmd := newRootCommand(quietLogger())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"extra"})

	assert.Error(t, cmd.Execute())
}
