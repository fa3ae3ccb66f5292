package repository

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/pkg/log"
	"github.com/weiawesome/wes-io-stage/pkg/storage"
)

const scenePrefix = "scenes/"

// StorageSceneRepository keeps each scene as a JSON object in a Storage
// backend (local directory or S3).
type StorageSceneRepository struct {
	store storage.Storage
	now   func() time.Time
}

// NewStorageSceneRepository creates a scene repository over store.
func NewStorageSceneRepository(store storage.Storage) *StorageSceneRepository {
	return &StorageSceneRepository{store: store, now: time.Now}
}

func sceneKey(id string) string {
	return scenePrefix + id + ".json"
}

func (r *StorageSceneRepository) newID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(r.now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// GetScene reads one scene.
func (r *StorageSceneRepository) GetScene(ctx context.Context, id string) (domain.Scene, error) {
	rc, err := r.store.Read(ctx, sceneKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			return domain.Scene{}, ErrSceneNotFound
		}
		return domain.Scene{}, fmt.Errorf("read scene %s: %w", id, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("read scene %s: %w", id, err)
	}
	var s domain.Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Scene{}, fmt.Errorf("decode scene %s: %w", id, err)
	}
	if err := s.Validate(); err != nil {
		return domain.Scene{}, err
	}
	return s, nil
}

// ListScenes returns every readable scene ordered by id. Objects that fail
// to decode or validate are skipped.
func (r *StorageSceneRepository) ListScenes(ctx context.Context) ([]domain.Scene, error) {
	l := log.Ctx(ctx)

	files, err := r.store.List(ctx, scenePrefix)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })

	scenes := make([]domain.Scene, 0, len(files))
	for _, f := range files {
		id, ok := strings.CutSuffix(strings.TrimPrefix(f.Key, scenePrefix), ".json")
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		s, err := r.GetScene(ctx, id)
		if err != nil {
			l.Warn().Err(err).Str("scene_id", id).Msg("skipping unreadable scene")
			continue
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

// Save stores s, assigning ULIDs to the scene and to layers without one.
func (r *StorageSceneRepository) Save(ctx context.Context, s domain.Scene) (domain.Scene, error) {
	var err error
	if s.ID == "" {
		if s.ID, err = r.newID(); err != nil {
			return domain.Scene{}, err
		}
	}
	layers := make([]domain.SceneLayer, len(s.Layers))
	copy(layers, s.Layers)
	for i := range layers {
		if layers[i].ID == "" {
			if layers[i].ID, err = r.newID(); err != nil {
				return domain.Scene{}, err
			}
		}
	}
	s.Layers = layers
	if err := s.Validate(); err != nil {
		return domain.Scene{}, err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("encode scene %s: %w", s.ID, err)
	}
	if err := r.store.Write(ctx, sceneKey(s.ID), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return domain.Scene{}, fmt.Errorf("write scene %s: %w", s.ID, err)
	}
	return s, nil
}

// Delete removes a scene.
func (r *StorageSceneRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.store.Exists(ctx, sceneKey(id))
	if errors.Is(err, storage.ErrInvalidKey) {
		return ErrSceneNotFound
	}
	if err != nil {
		return fmt.Errorf("stat scene %s: %w", id, err)
	}
	if !ok {
		return ErrSceneNotFound
	}
	return r.store.Delete(ctx, sceneKey(id))
}
