package registry

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/config"
	"github.com/holomesh/holomesh/pkg/logger"
)

// Template is a named room preset: settings plus seed objects.
type Template struct {
	Name     string       `json:"name"`
	Settings Settings     `json:"settings"`
	Objects  []api.Object `json:"objects,omitempty"`
}

// Templates stores the named room templates, optionally hot-reloaded
// from a watched file.
type Templates struct {
	conf config.Rooms
	log  *logger.Logger

	mu     sync.Mutex
	byName map[string]*Template
}

func NewTemplates(conf config.Rooms, log *logger.Logger) *Templates {
	t := &Templates{conf: conf, log: log, byName: map[string]*Template{}}
	if conf.TemplatesFile != "" {
		t.Reload()
		if conf.WatchTemplates {
			go t.watch()
		}
	}
	return t
}

func (t *Templates) Get(name string) *Template {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byName[name]
}

func (t *Templates) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byName)
}

// Set registers a template directly, mostly for tests and seeding.
func (t *Templates) Set(tpl Template) {
	t.mu.Lock()
	t.byName[tpl.Name] = &tpl
	t.mu.Unlock()
}

// Reload re-reads the template file; a broken file keeps the previous set.
func (t *Templates) Reload() {
	data, err := os.ReadFile(t.conf.TemplatesFile)
	if err != nil {
		t.log.Error().Err(err).Str("file", t.conf.TemplatesFile).Msg("Room templates read fail")
		return
	}
	var list []Template
	if err = json.Unmarshal(data, &list); err != nil {
		t.log.Error().Err(err).Str("file", t.conf.TemplatesFile).Msg("Room templates parse fail")
		return
	}
	next := make(map[string]*Template, len(list))
	for i := range list {
		next[list[i].Name] = &list[i]
	}
	t.mu.Lock()
	t.byName = next
	t.mu.Unlock()
	t.log.Info().Msgf("Loaded %d room template(s)", len(next))
}

// watch reloads the template set on filesystem changes in the
// directory of the template file.
func (t *Templates) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Error().Err(err).Msg("Template watcher has failed")
		return
	}
	defer func() { _ = watcher.Close() }()

	file := filepath.Clean(t.conf.TemplatesFile)
	if err = watcher.Add(filepath.Dir(file)); err != nil {
		t.log.Error().Err(err).Msg("Template watch error")
		return
	}
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == file &&
				(event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
				t.Reload()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// apply seeds a fresh room with the template contents, must be called
// before the room is published.
func (t *Template) apply(room *Room, now time.Time) {
	if len(room.Settings.Capabilities) == 0 && room.Settings.Toggles == nil {
		room.Settings = t.Settings
	}
	for _, obj := range t.Objects {
		id := obj.Id
		if id == "" {
			id = uuid.NewString()
		}
		room.objects[id] = &SharedObject{
			Id:         id,
			Type:       obj.Type,
			Owner:      obj.Owner,
			Transform:  obj.Transform,
			CreatedAt:  now,
			ModifiedAt: now,
		}
	}
}
