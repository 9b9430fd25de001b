package admin_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-chamber-server/internal/admin"
)

func TestDispatch(t *testing.T) {
	reg := admin.NewRegistry()
	reg.Register("echo", "repeat arguments", func(args []string) (string, error) {
		return strings.Join(args, " ") + "\n", nil
	})
	reg.Register("fail", "always errors", func(args []string) (string, error) {
		return "", errors.New("boom")
	})

	out, found, err := reg.Dispatch("echo hello world")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello world\n", out)

	_, found, err = reg.Dispatch("fail")
	assert.True(t, found)
	assert.Error(t, err)

	_, found, err = reg.Dispatch("nosuch")
	require.NoError(t, err)
	assert.False(t, found)

	// Blank input is a recognised no-op
	out, found, err = reg.Dispatch("   \n")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, out)
}

func TestHelpListsRegistrationOrder(t *testing.T) {
	reg := admin.NewRegistry()
	reg.Register("b", "second", func([]string) (string, error) { return "", nil })
	reg.Register("a", "first", func([]string) (string, error) { return "", nil })

	help := reg.Help()
	assert.Equal(t, "b - second\na - first\n", help)
	assert.Len(t, reg.Commands(), 2)
}

func TestRunREPL(t *testing.T) {
	reg := admin.NewRegistry()
	reg.Register("ping", "reply pong", func([]string) (string, error) {
		return "pong\n", nil
	})
	reg.Register("fail", "always errors", func([]string) (string, error) {
		return "", errors.New("boom")
	})

	in := strings.NewReader("ping\nnosuch\nfail\n")
	var out strings.Builder
	reg.RunREPL(in, &out)

	got := out.String()
	assert.Contains(t, got, "pong")
	assert.Contains(t, got, "Неизвестная команда: nosuch")
	assert.Contains(t, got, "Error: boom")
	assert.True(t, strings.HasPrefix(got, "> "), "prompt precedes each line")
}
