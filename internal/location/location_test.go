package location

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash32Deterministic(t *testing.T) {
	inputs := []string{"", "a", "ab", "abc", "abcd", "md/binance/binance/live"}
	for _, in := range inputs {
		if Hash32([]byte(in)) != Hash32([]byte(in)) {
			t.Fatalf("hash of %q not deterministic", in)
		}
	}
	assert.NotEqual(t, Hash32([]byte("abc")), Hash32([]byte("abd")))
	assert.NotEqual(t, Hash32([]byte("abcd")), Hash32([]byte("abcde")))
}

func TestHash32Vectors(t *testing.T) {
	cases := map[string]uint32{
		"":                          0x10707292,
		"abc":                       0xda0d1400,
		"system/master/master/live": 0x87eceb1d,
	}
	for in, want := range cases {
		require.Equalf(t, want, Hash32([]byte(in)), "hash of %q", in)
	}
}

func TestNewDerivesUName(t *testing.T) {
	loc := New(ModeLive, CategoryTD, "sim", "acc1")
	require.Equal(t, "td/sim/acc1/live", loc.UName)
	require.Equal(t, HashString("td/sim/acc1/live"), loc.UID)
	require.Equal(t, loc.UID, New(ModeLive, CategoryTD, "sim", "acc1").UID)
}

func TestUIDChangesWithEachField(t *testing.T) {
	base := New(ModeLive, CategoryStrategy, "default", "demo")
	variants := []*Location{
		New(ModeReplay, CategoryStrategy, "default", "demo"),
		New(ModeLive, CategoryTD, "default", "demo"),
		New(ModeLive, CategoryStrategy, "other", "demo"),
		New(ModeLive, CategoryStrategy, "default", "demo2"),
	}
	for _, v := range variants {
		assert.NotEqualf(t, base.UID, v.UID, "uid collision between %s and %s", base, v)
	}
}

func TestParse(t *testing.T) {
	loc, err := Parse("md/binance/binance/data")
	require.NoError(t, err)
	require.Equal(t, ModeData, loc.Mode)
	require.Equal(t, CategoryMD, loc.Category)
	require.Equal(t, "binance", loc.Group)
	require.Equal(t, New(ModeData, CategoryMD, "binance", "binance").UID, loc.UID)

	for _, bad := range []string{"", "md/a/b", "xx/a/b/live", "md/a/b/never", "md//b/live"} {
		_, err := Parse(bad)
		require.Errorf(t, err, "expected error for %q", bad)
	}
}

func TestWellKnownLocations(t *testing.T) {
	m := Master()
	require.Equal(t, "system/master/master/live", m.UName)
	cmd := MasterCommand(0xabc)
	require.Equal(t, "00000abc", cmd.Name)
	require.NotEqual(t, m.UID, cmd.UID)
}

func TestLocatorPaths(t *testing.T) {
	root := t.TempDir()
	l := NewLocator(root)
	loc := New(ModeLive, CategoryMD, "sim", "sim")
	require.Equal(t, filepath.Join(root, "journal", "live", "md", "sim", "sim", "0000002a.journal"), l.JournalPath(loc, 42))

	dests, err := l.ListDests(loc)
	require.NoError(t, err)
	require.Empty(t, dests)

	require.NoError(t, os.MkdirAll(l.JournalDir(loc), 0o755))
	for _, name := range []string{"00000000.journal", "0000002a.journal", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(l.JournalDir(loc), name), nil, 0o644))
	}
	dests, err = l.ListDests(loc)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{0, 42}, dests)
}
