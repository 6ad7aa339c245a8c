package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fpang/doc-intake/internal/metrics"
	"github.com/fpang/doc-intake/internal/poll"
)

func init() {
	metrics.Output = io.Discard
}

// fakeStore is an in-memory ObjectStore keyed by bucket/key.
type fakeStore struct {
	mu      sync.Mutex
	objects map[ObjectRef][]byte
	reads   int
	moves   []fakeMove
	moveErr error
}

type fakeMove struct {
	src, dst ObjectRef
	decision Decision
}

func newFakeStore(refs ...ObjectRef) *fakeStore {
	s := &fakeStore{objects: make(map[ObjectRef][]byte)}
	for _, r := range refs {
		s.objects[r] = []byte("image-bytes:" + r.Key)
	}
	return s
}

func (s *fakeStore) Read(_ context.Context, ref ObjectRef) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	data, ok := s.objects[ref]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (s *fakeStore) Move(_ context.Context, src, dst ObjectRef, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.moveErr != nil {
		return s.moveErr
	}
	data, ok := s.objects[src]
	if !ok {
		return ErrObjectNotFound
	}
	s.objects[dst] = data
	delete(s.objects, src)
	s.moves = append(s.moves, fakeMove{src: src, dst: dst, decision: d})
	return nil
}

// fakeLabels returns a fixed label set, optionally via an asynchronous job.
type fakeLabels struct {
	labels      []Label
	err         error
	pendingPoll int // number of RUNNING answers before SUCCEEDED
	failJob     bool
	detectCalls int
	pollCalls   int
}

func (f *fakeLabels) DetectLabels(context.Context, []byte) (LabelJob, error) {
	f.detectCalls++
	if f.err != nil {
		return LabelJob{}, f.err
	}
	if f.pendingPoll > 0 || f.failJob {
		return LabelJob{JobID: "label-job", Status: JobRunning}, nil
	}
	return LabelJob{Status: JobSucceeded, Labels: f.labels}, nil
}

func (f *fakeLabels) GetLabelDetection(_ context.Context, jobID string) (LabelJob, error) {
	f.pollCalls++
	if f.pollCalls <= f.pendingPoll {
		return LabelJob{JobID: jobID, Status: JobRunning}, nil
	}
	if f.failJob {
		return LabelJob{JobID: jobID, Status: JobFailed}, nil
	}
	return LabelJob{JobID: jobID, Status: JobSucceeded, Labels: f.labels}, nil
}

// fakeText simulates an extraction job that finishes after pendingPoll polls.
type fakeText struct {
	lines       []string
	startErr    error
	pollErr     error
	final       JobStatus
	pendingPoll int
	started     []ObjectRef
	pollCalls   int
}

func (f *fakeText) StartTextDetection(_ context.Context, ref ObjectRef) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, ref)
	return "text-job", nil
}

func (f *fakeText) GetTextDetection(context.Context, string) (TextJob, error) {
	f.pollCalls++
	if f.pollErr != nil {
		return TextJob{}, f.pollErr
	}
	if f.pollCalls <= f.pendingPoll {
		return TextJob{Status: JobRunning}, nil
	}
	status := f.final
	if status == "" {
		status = JobSucceeded
	}
	if status == JobFailed {
		return TextJob{Status: JobFailed, Message: "bad page"}, nil
	}
	return TextJob{Status: status, Lines: f.lines}, nil
}

// fakeEntities answers each detection mode with a canned list.
type fakeEntities struct {
	categories    []Entity
	offsets       []Entity
	err           error
	containsCalls int
	detectCalls   int
}

func (f *fakeEntities) ContainsEntities(context.Context, string) ([]Entity, error) {
	f.containsCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.categories, nil
}

func (f *fakeEntities) DetectEntities(context.Context, string) ([]Entity, error) {
	f.detectCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.offsets, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []*Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	runs []*Run
}

func (f *fakeNotifier) Notify(_ context.Context, run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

var errService = errors.New("service unavailable")

// instantPoller never sleeps and gives up after twelve checks.
func instantPoller() poll.Poller {
	return poll.Poller{
		Interval:  5 * time.Second,
		MaxChecks: 12,
		Sleep:     func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

type fixture struct {
	store    *fakeStore
	labels   *fakeLabels
	text     *fakeText
	entities *fakeEntities
	recorder *fakeRecorder
	notifier *fakeNotifier
	cfg      Config
}

func newFixture(refs ...ObjectRef) *fixture {
	return &fixture{
		store:    newFakeStore(refs...),
		labels:   &fakeLabels{},
		text:     &fakeText{},
		entities: &fakeEntities{},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
		cfg:      DefaultConfig(),
	}
}

func (f *fixture) classifier() *Classifier {
	c := NewClassifier(f.cfg, f.store, f.labels, f.text, f.entities,
		WithPoller(instantPoller()),
		WithRecorder(f.recorder),
		WithNotifier(f.notifier),
	)
	var seq atomic.Int64
	c.newID = func() string {
		return fmt.Sprintf("run-%d", seq.Add(1))
	}
	return c
}

func (f *fixture) serviceCalls() int {
	return f.labels.detectCalls + f.labels.pollCalls + len(f.text.started) + f.text.pollCalls +
		f.entities.containsCalls + f.entities.detectCalls
}
