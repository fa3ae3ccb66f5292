package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-stage/internal/compositor"
	"github.com/weiawesome/wes-io-stage/internal/domain"
	"github.com/weiawesome/wes-io-stage/internal/repository"
	"github.com/weiawesome/wes-io-stage/pkg/log"
)

// ErrSceneNotFound is returned for unknown scene ids.
var ErrSceneNotFound = errors.New("scene not found")

// ThumbnailWidth is the width of stored scene thumbnails.
const ThumbnailWidth = 320

// SceneService manages composed scenes.
type SceneService interface {
	List(ctx context.Context) ([]domain.Scene, error)
	Get(ctx context.Context, id string) (domain.Scene, error)
	// Save stores the scene, assigning missing ids, and refreshes its
	// thumbnail.
	Save(ctx context.Context, s domain.Scene) (domain.Scene, error)
	Delete(ctx context.Context, id string) error
	// Compose flattens a stored scene into its render list.
	Compose(ctx context.Context, id string, mode compositor.Mode) ([]compositor.RenderNode, error)
	// Thumbnail renders a stored scene as a PNG width pixels wide.
	Thumbnail(ctx context.Context, id string, mode compositor.Mode, width int) ([]byte, error)
	// Stage puts a stored scene on the program's staged slot.
	Stage(ctx context.Context, id string) (domain.ProgramState, error)
}

type sceneService struct {
	repo        repository.SceneRepository
	thumbnailer *compositor.Thumbnailer
	program     ProgramService
	canvas      domain.Canvas
}

// NewSceneService creates the scene service. program may be nil in
// processes that only render scenes.
func NewSceneService(repo repository.SceneRepository, thumbnailer *compositor.Thumbnailer, program ProgramService, canvas domain.Canvas) SceneService {
	if canvas.W <= 0 || canvas.H <= 0 {
		canvas = domain.HD
	}
	return &sceneService{
		repo:        repo,
		thumbnailer: thumbnailer,
		program:     program,
		canvas:      canvas,
	}
}

func ThumbnailKey(sceneID string) string {
	return "thumbnails/" + sceneID + ".png"
}

func (s *sceneService) List(ctx context.Context) ([]domain.Scene, error) {
	return s.repo.ListScenes(ctx)
}

func (s *sceneService) Get(ctx context.Context, id string) (domain.Scene, error) {
	scene, err := s.repo.GetScene(ctx, id)
	if errors.Is(err, repository.ErrSceneNotFound) {
		return domain.Scene{}, ErrSceneNotFound
	}
	return scene, err
}

func (s *sceneService) Save(ctx context.Context, scene domain.Scene) (domain.Scene, error) {
	l := log.Ctx(ctx)

	// A scene that cannot be composed is never stored.
	if scene.ID != "" {
		if _, err := compositor.Compose(scene, compositor.ModeOutput, s.canvas); err != nil {
			return domain.Scene{}, fmt.Errorf("%w: %w", domain.ErrInvalidScene, err)
		}
	}

	saved, err := s.repo.Save(ctx, scene)
	if err != nil {
		return domain.Scene{}, err
	}

	nodes, err := compositor.Compose(saved, compositor.ModePreview, s.canvas)
	if err != nil {
		return saved, nil
	}
	if err := s.thumbnailer.Store(ctx, ThumbnailKey(saved.ID), nodes, s.canvas, ThumbnailWidth); err != nil {
		l.Warn().Err(err).Str("scene_id", saved.ID).Msg("failed to store scene thumbnail")
	}
	return saved, nil
}

func (s *sceneService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrSceneNotFound) {
			return ErrSceneNotFound
		}
		return err
	}
	return nil
}

func (s *sceneService) Compose(ctx context.Context, id string, mode compositor.Mode) ([]compositor.RenderNode, error) {
	scene, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return compositor.Compose(scene, mode, s.canvas)
}

func (s *sceneService) Thumbnail(ctx context.Context, id string, mode compositor.Mode, width int) ([]byte, error) {
	nodes, err := s.Compose(ctx, id, mode)
	if err != nil {
		return nil, err
	}
	return s.thumbnailer.Render(ctx, nodes, s.canvas, width)
}

func (s *sceneService) Stage(ctx context.Context, id string) (domain.ProgramState, error) {
	if s.program == nil {
		return domain.ProgramState{}, errors.New("scene staging is not available in this process")
	}
	scene, err := s.Get(ctx, id)
	if err != nil {
		return domain.ProgramState{}, err
	}
	return s.program.Stage(ctx, domain.SceneItem{Scene: scene})
}
