package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSong() Song {
	return Song{
		ID:    "amazing-grace",
		Title: "Amazing Grace",
		Sections: []SongSection{
			{ID: "v1", Label: "Verse 1", Lines: []string{"a1", "a2"}},
			{ID: "c", Label: "Chorus", Lines: []string{"c1", "c2", "c3"}},
		},
	}
}

func TestFlattenLines_NaturalOrder(t *testing.T) {
	assert.Equal(t, []string{"a1", "a2", "c1", "c2", "c3"}, testSong().FlattenLines())
}

func TestFlattenLines_Arrangement(t *testing.T) {
	s := testSong()
	s.Arrangement = []string{"c", "v1", "missing", "c"}

	assert.Equal(t,
		[]string{"c1", "c2", "c3", "a1", "a2", "c1", "c2", "c3"},
		s.FlattenLines())
}

func TestSong_Validate(t *testing.T) {
	assert.NoError(t, testSong().Validate())

	s := testSong()
	s.Sections = append(s.Sections, SongSection{ID: "v1"})
	assert.ErrorIs(t, s.Validate(), ErrInvalidSong)

	assert.ErrorIs(t, Song{ID: "x"}.Validate(), ErrInvalidSong)
}

func TestLowerThirdTemplate_Validate(t *testing.T) {
	assert.NoError(t, DefaultTemplate().Validate())

	bad := DefaultTemplate()
	bad.TextColor = "white"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTemplate)

	bad = DefaultTemplate()
	bad.Position = "middle"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTemplate)

	bad = DefaultTemplate()
	bad.ID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTemplate)
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, ClientWindowMain, NormalizeTarget(TargetOperator))
	assert.Equal(t, ClientWindowOutput, NormalizeTarget(TargetOutput))
	assert.Equal(t, "mobile:abc", NormalizeTarget("mobile:abc"))

	id, ok := DeviceFromKey(MobileKey("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = DeviceFromKey("window:main")
	assert.False(t, ok)
}
