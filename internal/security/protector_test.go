package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtectRoundTrip(t *testing.T) {
	p, err := NewProtector(t.TempDir(), Purpose)
	require.NoError(t, err)

	for _, plain := range []string{"", "hunter2", "päßwörd ✓", "a-long-credential-with-symbols!@#$%"} {
		opaque, err := p.Protect(plain)
		require.NoError(t, err)
		require.NotEqual(t, plain, opaque)

		got, err := p.Unprotect(opaque)
		require.NoError(t, err)
		require.Equal(t, plain, got)
	}
}

func TestProtectIsSalted(t *testing.T) {
	p, err := NewProtector(t.TempDir(), Purpose)
	require.NoError(t, err)

	a, err := p.Protect("secret")
	require.NoError(t, err)
	b, err := p.Protect("secret")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestUnprotectWrongPurposeFails(t *testing.T) {
	dir := t.TempDir()
	p1, err := NewProtector(dir, Purpose)
	require.NoError(t, err)
	p2, err := NewProtector(dir, "ITWebsiteMonitor.Other.v1")
	require.NoError(t, err)

	opaque, err := p1.Protect("secret")
	require.NoError(t, err)

	_, err = p2.Unprotect(opaque)
	require.ErrorIs(t, err, ErrProtector)
}

func TestUnprotectGarbageFails(t *testing.T) {
	p, err := NewProtector(t.TempDir(), Purpose)
	require.NoError(t, err)

	_, err = p.Unprotect("not base64!!!")
	require.ErrorIs(t, err, ErrProtector)

	_, err = p.Unprotect("c2hvcnQ=")
	require.ErrorIs(t, err, ErrProtector)
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	p1, err := NewProtector(dir, Purpose)
	require.NoError(t, err)
	opaque, err := p1.Protect("secret")
	require.NoError(t, err)

	p2, err := NewProtector(dir, Purpose)
	require.NoError(t, err)
	got, err := p2.Unprotect(opaque)
	require.NoError(t, err)
	require.Equal(t, "secret", got)
}
