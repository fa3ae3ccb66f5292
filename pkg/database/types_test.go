package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_ScanValue(t *testing.T) {
	v, err := StringArray{"verse 1", "chorus", "verse 1"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["verse 1","chorus","verse 1"]`, v)

	var a StringArray
	require.NoError(t, a.Scan([]byte(`["bridge"]`)))
	assert.Equal(t, StringArray{"bridge"}, a)

	require.NoError(t, a.Scan(nil))
	assert.Nil(t, a)

	assert.Error(t, a.Scan("{a,b}"))
	assert.Error(t, a.Scan(42))
}

func TestJSON_RejectsInvalidDocument(t *testing.T) {
	_, err := JSON(`{"font":`).Value()
	assert.Error(t, err)

	v, err := JSON(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var j JSON
	require.NoError(t, j.Scan(`{"font":"Inter"}`))
	out, err := j.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"font":"Inter"}`, string(out))
}
