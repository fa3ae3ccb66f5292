package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// ErrUnknownItem is returned when decoding an item with an unrecognised type tag.
var ErrUnknownItem = errors.New("unknown display item type")

// ItemKind is the wire tag of a DisplayItem variant.
type ItemKind string

const (
	KindVerse             ItemKind = "Verse"
	KindMedia             ItemKind = "Media"
	KindPresentationSlide ItemKind = "PresentationSlide"
	KindCustomSlide       ItemKind = "CustomSlide"
	KindCameraFeed        ItemKind = "CameraFeed"
	KindScene             ItemKind = "Scene"
	KindTimer             ItemKind = "Timer"
)

// DisplayItem is anything that can be staged or put live. The set of
// implementations is closed to this package.
type DisplayItem interface {
	Kind() ItemKind
	// Label is the operator-facing display string.
	Label() string
	// Key is the structural identity used for history de-duplication.
	Key() ItemKey
	isDisplayItem()
}

// ItemKey identifies a DisplayItem by kind and stable id.
type ItemKey struct {
	Kind ItemKind
	ID   string
}

func (k ItemKey) String() string {
	return strings.ToLower(string(k.Kind)) + ":" + k.ID
}

// Hash returns the FNV-64a hash of the key.
func (k ItemKey) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(k.String()))
	return h.Sum64()
}

// Verse is a single Bible verse.
type Verse struct {
	ID      int    `json:"id"`
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
	Version string `json:"version,omitempty"`
}

func (Verse) Kind() ItemKind { return KindVerse }
func (v Verse) Label() string { return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse) }
func (v Verse) Key() ItemKey {
	return ItemKey{KindVerse, strings.Join([]string{v.Version, v.Book, strconv.Itoa(v.Chapter), strconv.Itoa(v.Verse)}, ":")}
}
func (Verse) isDisplayItem() {}

// MediaType distinguishes stills from video.
type MediaType string

const (
	MediaImage MediaType = "Image"
	MediaVideo MediaType = "Video"
)

// Media is an image or video file from the media library.
type Media struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	MediaType     MediaType `json:"media_type"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
}

func (Media) Kind() ItemKind { return KindMedia }
func (m Media) Label() string { return m.Name }
func (m Media) Key() ItemKey {
	id := m.ID
	if id == "" {
		id = m.Path
	}
	return ItemKey{KindMedia, id}
}
func (Media) isDisplayItem() {}

// PresentationSlide is one rendered slide of an imported deck.
type PresentationSlide struct {
	PresentationID   string `json:"presentation_id"`
	PresentationName string `json:"presentation_name"`
	SlideIndex       int    `json:"slide_index"`
	SlideCount       int    `json:"slide_count,omitempty"`
	ImagePath        string `json:"image_path,omitempty"`
}

func (PresentationSlide) Kind() ItemKind { return KindPresentationSlide }
func (p PresentationSlide) Label() string {
	return fmt.Sprintf("%s – slide %d", p.PresentationName, p.SlideIndex+1)
}
func (p PresentationSlide) Key() ItemKey {
	return ItemKey{KindPresentationSlide, p.PresentationID + ":" + strconv.Itoa(p.SlideIndex)}
}
func (PresentationSlide) isDisplayItem() {}

// CustomSlide is one slide of a deck authored in the studio. Slide is the
// opaque slide document rendered by the output surface.
type CustomSlide struct {
	PresentationID   string          `json:"presentation_id"`
	PresentationName string          `json:"presentation_name"`
	SlideIndex       int             `json:"slide_index"`
	Slide            json.RawMessage `json:"slide,omitempty"`
}

func (CustomSlide) Kind() ItemKind { return KindCustomSlide }
func (c CustomSlide) Label() string {
	return fmt.Sprintf("%s – slide %d", c.PresentationName, c.SlideIndex+1)
}
func (c CustomSlide) Key() ItemKey {
	return ItemKey{KindCustomSlide, c.PresentationID + ":" + strconv.Itoa(c.SlideIndex)}
}
func (CustomSlide) isDisplayItem() {}

// CameraFeed routes a remote device's video to program output.
type CameraFeed struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"label"`
}

func (CameraFeed) Kind() ItemKind { return KindCameraFeed }
func (c CameraFeed) Label() string {
	if c.Name == "" {
		return c.DeviceID
	}
	return c.Name
}
func (c CameraFeed) Key() ItemKey { return ItemKey{KindCameraFeed, c.DeviceID} }
func (CameraFeed) isDisplayItem() {}

// SceneItem puts a whole Scene live as one unit.
type SceneItem struct {
	Scene
}

func (SceneItem) Kind() ItemKind { return KindScene }
func (s SceneItem) Label() string {
	if s.Name == "" {
		return "Scene"
	}
	return s.Name
}
func (s SceneItem) Key() ItemKey { return ItemKey{KindScene, s.ID} }
func (SceneItem) isDisplayItem() {}

// Timer is a countdown, count-up or clock display.
type Timer struct {
	TimerType    string  `json:"timer_type"` // "countdown", "countup", "clock"
	DurationSecs *int    `json:"duration_secs,omitempty"`
	Title        string  `json:"label,omitempty"`
	StartedAt    *uint64 `json:"started_at,omitempty"` // unix millis
}

func (Timer) Kind() ItemKind { return KindTimer }
func (t Timer) Label() string { return "Timer: " + t.TimerType }
func (t Timer) Key() ItemKey { return ItemKey{KindTimer, t.TimerType} }
func (Timer) isDisplayItem()   {}

// ItemEnvelope carries a DisplayItem as {"type": kind, "data": {...}}.
type ItemEnvelope struct {
	Item DisplayItem
}

// Wrap returns an envelope for item, or nil when item is nil.
func Wrap(item DisplayItem) *ItemEnvelope {
	if item == nil {
		return nil
	}
	return &ItemEnvelope{Item: item}
}

// Unwrap returns the enveloped item, or nil for a nil envelope.
func (e *ItemEnvelope) Unwrap() DisplayItem {
	if e == nil {
		return nil
	}
	return e.Item
}

type itemWire struct {
	Type ItemKind        `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e ItemEnvelope) MarshalJSON() ([]byte, error) {
	if e.Item == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(e.Item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itemWire{Type: e.Item.Kind(), Data: data})
}

func (e *ItemEnvelope) UnmarshalJSON(b []byte) error {
	item, err := DecodeItem(b)
	if err != nil {
		return err
	}
	e.Item = item
	return nil
}

// DecodeItem parses a tagged item. A JSON null yields a nil item.
func DecodeItem(b []byte) (DisplayItem, error) {
	if string(b) == "null" {
		return nil, nil
	}
	var w itemWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}

	var (
		item DisplayItem
		err  error
	)
	switch w.Type {
	case KindVerse:
		var v Verse
		err = json.Unmarshal(w.Data, &v)
		item = v
	case KindMedia:
		var m Media
		err = json.Unmarshal(w.Data, &m)
		item = m
	case KindPresentationSlide:
		var p PresentationSlide
		err = json.Unmarshal(w.Data, &p)
		item = p
	case KindCustomSlide:
		var c CustomSlide
		err = json.Unmarshal(w.Data, &c)
		item = c
	case KindCameraFeed:
		var c CameraFeed
		err = json.Unmarshal(w.Data, &c)
		item = c
	case KindScene:
		var s SceneItem
		err = json.Unmarshal(w.Data, &s)
		item = s
	case KindTimer:
		var t Timer
		err = json.Unmarshal(w.Data, &t)
		item = t
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, w.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", w.Type, err)
	}
	return item, nil
}

// EncodeItem is the inverse of DecodeItem.
func EncodeItem(item DisplayItem) ([]byte, error) {
	return json.Marshal(ItemEnvelope{Item: item})
}

// SameItem reports whether a and b have the same structural key.
func SameItem(a, b DisplayItem) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}
