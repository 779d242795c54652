package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-wikimap/internal/completion"
	"github.com/joeblew999/plat-wikimap/internal/logger"
	"github.com/joeblew999/plat-wikimap/internal/markers"
	"github.com/joeblew999/plat-wikimap/internal/metrics"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// DefaultUser owns sessions created without a user.
const DefaultUser = "anonymous"

const notifyTimeout = 5 * time.Second

// Journal records completion notifications.
type Journal interface {
	Record(ctx context.Context, e completion.Event) error
}

// SessionServiceConfig wires a SessionService.
type SessionServiceConfig struct {
	DataDir  string
	Maps     *MapService
	Settings *SettingsService
	Bus      *EventBus
	// Journal and Accounts are optional.
	Journal  Journal
	Accounts completion.RedisClient
}

// SessionService creates and tracks viewer sessions.
type SessionService struct {
	cfg      SessionServiceConfig
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a new session service.
func NewSessionService(cfg SessionServiceConfig) *SessionService {
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	return &SessionService{cfg: cfg, sessions: make(map[string]*Session)}
}

// Bus returns the bus sessions publish to.
func (s *SessionService) Bus() *EventBus {
	return s.cfg.Bus
}

// Create starts a session on mapID for user and runs the initial
// completion sync.
func (s *SessionService) Create(ctx context.Context, user, mapID string) (*Session, error) {
	if user == "" {
		user = DefaultUser
	}
	def, err := s.cfg.Maps.Get(mapID)
	if err != nil {
		return nil, err
	}

	var account completion.Store
	if s.cfg.Accounts != nil {
		account = completion.NewRedisStore(s.cfg.Accounts, user, def.ID)
	}
	sess := &Session{
		ID:      uuid.NewString(),
		User:    user,
		MapID:   def.ID,
		Created: time.Now(),
		syncer:  completion.NewSyncer(completion.NewFileStore(s.cfg.DataDir, user, def.ID), account),
		journal: s.cfg.Journal,
		bus:     s.cfg.Bus,
	}
	sess.log = logger.Log.WithFields(logrus.Fields{"session": sess.ID, "map": def.ID, "user": user})

	var settings markers.Settings
	if s.cfg.Settings != nil {
		settings = s.cfg.Settings.For(user, def.ID)
	}
	sess.m, err = markers.New(def, markers.Options{
		Renderer: sess,
		Notifier: sess,
		Settings: settings,
	})
	if err != nil {
		return nil, err
	}

	if err := sess.start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Inc()
	sess.log.Info("session created")
	return sess, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// List returns every open session, oldest first.
func (s *SessionService) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Close ends a session.
func (s *SessionService) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	metrics.SessionsActive.Dec()
	sess.publish(KindClosed, "", "")
	sess.log.Info("session closed")
	return nil
}

// Session is one viewer's engine instance. All engine access goes through
// Do, which serialises it.
type Session struct {
	ID      string
	User    string
	MapID   string
	Created time.Time

	mu      sync.Mutex
	m       *markers.Map
	syncer  *completion.Syncer
	journal Journal
	bus     *EventBus
	log     *logrus.Entry
	notice  string
}

// Do runs fn with exclusive access to the session's map.
func (s *Session) Do(fn func(*markers.Map) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.m)
}

func (s *Session) start(ctx context.Context) error {
	res, err := s.syncer.Start(ctx)
	if err != nil {
		return fmt.Errorf("loading completion: %w", err)
	}
	s.m.ApplyCompleted(res.Apply)
	if res.Notice != "" {
		s.notice = res.Notice
		s.publish(KindNotice, "", res.Notice)
	}
	if res.Conflict != nil {
		s.publish(KindConflict, "", fmt.Sprintf("local has %d completed, account has %d", len(res.Conflict.Local), len(res.Conflict.Account)))
	}
	return nil
}

// Conflict returns the pending completion conflict, or nil.
func (s *Session) Conflict() *completion.Conflict {
	return s.syncer.Pending()
}

// Notice returns the last storage notice, if any.
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// Resolve settles the completion conflict and tags the result completed.
func (s *Session) Resolve(ctx context.Context, choice completion.Choice) ([]string, error) {
	keys, err := s.syncer.Resolve(ctx, choice)
	if err != nil {
		return nil, err
	}
	s.Do(func(m *markers.Map) error {
		m.ApplyCompleted(keys)
		return nil
	})
	return keys, nil
}

// Tile addresses one viewport tile.
type Tile struct {
	Z int `json:"z" minimum:"0" doc:"Zoom level"`
	X int `json:"x" minimum:"0" doc:"Tile column"`
	Y int `json:"y" minimum:"0" doc:"Tile row"`
}

// Viewport is a batch of viewport changes.
type Viewport struct {
	Load   []Tile `json:"load,omitempty" doc:"Tiles that entered the viewport"`
	Unload []Tile `json:"unload,omitempty" doc:"Tiles that left the viewport"`
	Zoom   *int   `json:"zoom,omitempty" minimum:"0" doc:"New zoom level"`
}

// ViewportResult counts what a viewport batch changed.
type ViewportResult struct {
	Changed  int `json:"changed" doc:"Markers whose shown state flipped"`
	Restyled int `json:"restyled" doc:"Shown markers whose presentation changed"`
	Shown    int `json:"shown" doc:"Markers shown after the batch"`
}

// ApplyViewport validates every tile and the zoom first, then applies
// unloads, loads and the zoom change in that order. An invalid batch
// changes nothing.
func (s *Session) ApplyViewport(v Viewport) (ViewportResult, error) {
	var res ViewportResult
	err := s.Do(func(m *markers.Map) error {
		for _, batch := range [][]Tile{v.Unload, v.Load} {
			for _, t := range batch {
				if err := m.CheckTile(t.Z, t.X, t.Y); err != nil {
					return err
				}
			}
		}
		if v.Zoom != nil && (*v.Zoom < 0 || *v.Zoom > m.MaxZoom()) {
			return fmt.Errorf("%w: zoom %d not in [0,%d]", markers.ErrTileOutOfRange, *v.Zoom, m.MaxZoom())
		}

		for _, t := range v.Unload {
			res.Changed += m.UnloadTile(t.Z, t.X, t.Y)
		}
		for _, t := range v.Load {
			res.Changed += m.LoadTile(t.Z, t.X, t.Y)
		}
		if v.Zoom != nil {
			res.Restyled = len(m.SetZoom(*v.Zoom))
		}
		res.Shown = len(m.Visible())
		return nil
	})
	return res, err
}

// Show implements markers.Renderer.
func (s *Session) Show(m *markers.Marker) { s.publish(KindShown, m.Key(), "") }

// Hide implements markers.Renderer.
func (s *Session) Hide(m *markers.Marker) { s.publish(KindHidden, m.Key(), "") }

// Restyle implements markers.Restyler.
func (s *Session) Restyle(m *markers.Marker) {
	s.publish(KindRestyled, m.Key(), m.Presentation().String())
}

// MarkComplete implements markers.CompletionNotifier.
func (s *Session) MarkComplete(key string) { s.record(key, true) }

// MarkIncomplete implements markers.CompletionNotifier.
func (s *Session) MarkIncomplete(key string) { s.record(key, false) }

// record runs with s.mu held, from inside a Map mutation.
func (s *Session) record(key string, completed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	kind := KindUncompleted
	if completed {
		kind = KindCompleted
	}
	s.publish(kind, key, "")

	if err := s.syncer.Record(ctx, key, completed); err != nil {
		s.log.WithError(err).WithField("marker", key).Warn("persisting completion")
		if errors.Is(err, completion.ErrAccountUnavailable) {
			s.notice = err.Error()
			s.publish(KindNotice, key, err.Error())
		}
	}
	if s.journal != nil {
		e := completion.Event{Session: s.ID, Map: s.MapID, Marker: key, Completed: completed, At: time.Now()}
		if err := s.journal.Record(ctx, e); err != nil {
			s.log.WithError(err).Warn("journaling completion")
		}
	}
}

func (s *Session) publish(kind, key, msg string) {
	s.bus.Publish(Event{Session: s.ID, Kind: kind, Key: key, Message: msg})
}
