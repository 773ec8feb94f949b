package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/animagen/animagen/internal/cache"
	"github.com/animagen/animagen/internal/metrics"
	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/queue"
	"github.com/animagen/animagen/internal/render"
	"github.com/animagen/animagen/internal/repository"
	"github.com/animagen/animagen/internal/storage"
)

type fakeRepo struct {
	mu        sync.Mutex
	tasks     map[string]*model.Task
	prompts   map[string]*model.RefinedPrompt
	events    []*model.TaskEvent
	updateErr error
	listErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks:   make(map[string]*model.Task),
		prompts: make(map[string]*model.RefinedPrompt),
	}
}

func (r *fakeRepo) CreateTask(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; ok {
		return repository.ErrTaskExists
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeRepo) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) UpdateTaskState(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.tasks[task.ID]
	if !ok {
		return repository.ErrTaskNotFound
	}
	if stored.Status.IsTerminal() {
		return repository.ErrTaskFinished
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

// finish marks a task completed behind the service's back.
func (r *fakeRepo) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id].Status = model.TaskStatusCompleted
	r.tasks[id].Progress = 100
}

func (r *fakeRepo) SaveRefinedPrompt(ctx context.Context, taskID string, rp *model.RefinedPrompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[taskID] = rp
	return nil
}

func (r *fakeRepo) GetRefinedPrompt(ctx context.Context, taskID string) (*model.RefinedPrompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.prompts[taskID]
	if !ok {
		return nil, repository.ErrRefinedPromptNotFound
	}
	return rp, nil
}

func (r *fakeRepo) ListTasks(ctx context.Context, cursor string, limit int) ([]*model.Task, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, "", r.listErr
	}
	out := make([]*model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		return out[:limit], "next", nil
	}
	return out, "", nil
}

func (r *fakeRepo) CountTasks(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tasks)), nil
}

func (r *fakeRepo) DeleteTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, t := range r.tasks {
		if t.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(r.tasks, id)
		}
	}
	return ids, nil
}

func (r *fakeRepo) InsertTaskEvent(ctx context.Context, event *model.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events = append(r.events, &cp)
	return nil
}

func (r *fakeRepo) ListTaskEvents(ctx context.Context, taskID string) ([]*model.TaskEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TaskEvent
	for _, e := range r.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) task(id string) *model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

type fakeCache struct {
	mu      sync.Mutex
	tasks   map[string]*model.Task
	getErr  error
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{tasks: make(map[string]*model.Task)}
}

func (c *fakeCache) GetTask(ctx context.Context, id string) (*model.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	t, ok := c.tasks[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *t
	return &cp, nil
}

func (c *fakeCache) SetTask(ctx context.Context, task *model.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *task
	c.tasks[task.ID] = &cp
	return nil
}

func (c *fakeCache) DeleteTask(ctx context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.tasks, id)
	}
	c.deleted = append(c.deleted, ids...)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []queue.RenderJob
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, job queue.RenderJob) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, job)
	return "1-0", nil
}

type fakeGenerator struct {
	result *model.RefinedPrompt
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, userPrompt string, style model.AnimationStyle, duration int) (*model.RefinedPrompt, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	rp := *g.result
	rp.OriginalPrompt = userPrompt
	return &rp, nil
}

type fakeRenderer struct {
	jobs     []render.Job
	err      error
	onRender func(job render.Job)
}

func (r *fakeRenderer) Render(ctx context.Context, job render.Job) (*render.Result, error) {
	r.jobs = append(r.jobs, job)
	if r.onRender != nil {
		r.onRender(job)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &render.Result{FilePath: "/data/animations/animation_" + job.TaskID + ".mp4", FileSize: 2048}, nil
}

type fakeStore struct {
	mu           sync.Mutex
	files        map[string]string
	animationAge time.Duration
	tempAge      time.Duration
}

func (s *fakeStore) FindAnimation(taskID string) (string, error) {
	if p, ok := s.files[taskID]; ok {
		return p, nil
	}
	return "", storage.ErrFileNotFound
}

func (s *fakeStore) CleanupOldAnimations(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animationAge = maxAge
	return 3, nil
}

func (s *fakeStore) CleanupTempFiles(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempAge = maxAge
	return 2, nil
}

func (s *fakeStore) ages() (animation, temp time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.animationAge, s.tempAge
}

func (s *fakeStore) Stats() (storage.Stats, error) {
	return storage.Stats{AnimationCount: 1, AnimationSizeMB: 1.5, TotalSizeMB: 1.5}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	tasks []model.Task
}

func (n *fakeNotifier) Notify(task *model.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, *task)
}

type testEnv struct {
	svc       *AnimationService
	repo      *fakeRepo
	cache     *fakeCache
	publisher *fakePublisher
	generator *fakeGenerator
	renderer  *fakeRenderer
	store     *fakeStore
	notifier  *fakeNotifier
	metrics   *metrics.InMemoryRecorder
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		repo:      newFakeRepo(),
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
		generator: &fakeGenerator{result: &model.RefinedPrompt{
			RefinedPrompt:     "A circle morphs into a square",
			ManimCode:         "class Morph(Scene):\n    def construct(self):\n        pass",
			Explanation:       "Transform a circle",
			EstimatedDuration: 10,
		}},
		renderer: &fakeRenderer{},
		store:    &fakeStore{files: map[string]string{}},
		notifier: &fakeNotifier{},
		metrics:  metrics.NewInMemory(),
	}
	env.svc = NewAnimationService(Dependencies{
		Repo:      env.repo,
		Cache:     env.cache,
		Publisher: env.publisher,
		Generator: env.generator,
		Renderer:  env.renderer,
		Store:     env.store,
		Notifier:  env.notifier,
		Metrics:   env.metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	return env
}

var errBoom = errors.New("boom")
