package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneLayer_UnmarshalDefaults(t *testing.T) {
	raw := `{"id":"l1","name":"bg","geometry":{"x":0,"y":0,"w":100,"h":100}}`

	var l SceneLayer
	require.NoError(t, json.Unmarshal([]byte(raw), &l))

	assert.Equal(t, 1.0, l.Opacity)
	assert.True(t, l.Visible)
	assert.Equal(t, EmptyContent{}, l.Content)
}

func TestSceneLayer_RoundTripContent(t *testing.T) {
	scene := Scene{
		ID:   "s1",
		Name: "Sermon",
		Layers: []SceneLayer{
			{ID: "cam", Content: ItemContent{Item: CameraFeed{DeviceID: "d1"}}, Geometry: FullCanvas, Opacity: 1, Visible: true},
			{ID: "lt", Content: LowerThirdContent{
				Data:     LowerThirdData{Kind: LowerThirdNameplate, Title: "Pastor"},
				Template: DefaultTemplate(),
			}, Geometry: Geometry{X: 10, Y: 10, W: 5, H: 5}, Opacity: 0.5, Visible: false},
		},
	}

	b, err := json.Marshal(scene)
	require.NoError(t, err)

	var got Scene
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got.Layers, 2)

	ic, ok := got.Layers[0].Content.(ItemContent)
	require.True(t, ok)
	assert.Equal(t, CameraFeed{DeviceID: "d1"}, ic.Item)

	lt, ok := got.Layers[1].Content.(LowerThirdContent)
	require.True(t, ok)
	assert.Equal(t, "Pastor", lt.Data.Title)
	assert.False(t, got.Layers[1].Visible)
	assert.Equal(t, 0.5, got.Layers[1].Opacity)
}

func TestSceneLayer_RejectsUnknownContent(t *testing.T) {
	raw := `{"id":"l1","content":{"kind":"hologram"}}`

	var l SceneLayer
	assert.Error(t, json.Unmarshal([]byte(raw), &l))
}

func TestScene_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scene   Scene
		wantErr bool
	}{
		{"ok", Scene{ID: "s", Layers: []SceneLayer{{ID: "a"}, {ID: "b"}}}, false},
		{"missing id", Scene{}, true},
		{"duplicate layer", Scene{ID: "s", Layers: []SceneLayer{{ID: "a"}, {ID: "a"}}}, true},
		{"negative size", Scene{ID: "s", Layers: []SceneLayer{{ID: "a", Geometry: Geometry{W: -1}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scene.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidScene)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
