package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arlens/burrow/internal/config"
	"github.com/arlens/burrow/internal/event"
	"github.com/arlens/burrow/internal/history"
	"github.com/arlens/burrow/internal/logging"
	"github.com/arlens/burrow/internal/pathguard"
	"github.com/arlens/burrow/internal/scan"
	"github.com/arlens/burrow/internal/store"
)

// Response is the uniform reply shape of every request channel.
type Response map[string]any

// Dispatcher validates inbound requests and routes them to the engine
// and the stores. It is stateless apart from the scan-to-observer
// ownership map that drives cleanup when an observer goes away.
type Dispatcher struct {
	engine    *scan.Engine
	favorites *store.Favorites
	recent    *store.Recent
	settings  *store.Settings
	ring      *logging.Ring
	history   *history.Store
	bus       *event.Bus
	log       zerolog.Logger
	scanCfg   config.Scan

	mu     sync.Mutex
	owners map[string]int64
}

// Deps bundles the collaborators a dispatcher routes to. History may
// be nil; the history channel then reports an empty list.
type Deps struct {
	Engine    *scan.Engine
	Favorites *store.Favorites
	Recent    *store.Recent
	Settings  *store.Settings
	Ring      *logging.Ring
	History   *history.Store
	Bus       *event.Bus
	Logger    zerolog.Logger
	ScanCfg   config.Scan
}

// New wires a dispatcher and hooks settings change notifications onto
// the bus.
func New(d Deps) *Dispatcher {
	disp := &Dispatcher{
		engine:    d.Engine,
		favorites: d.Favorites,
		recent:    d.Recent,
		settings:  d.Settings,
		ring:      d.Ring,
		history:   d.History,
		bus:       d.Bus,
		log:       d.Logger,
		scanCfg:   d.ScanCfg,
		owners:    make(map[string]int64),
	}
	d.Settings.Subscribe(func(rec map[string]any) {
		d.Bus.Publish(event.Event{Channel: "settings:updated", Payload: rec})
	})
	return disp
}

// AnnounceSettings publishes the settings:loaded event, once the
// transport is ready to carry it.
func (d *Dispatcher) AnnounceSettings() {
	d.bus.Publish(event.Event{Channel: "settings:loaded", Payload: d.settings.Get()})
}

// ObserverGone cancels every scan the detached observer initiated.
func (d *Dispatcher) ObserverGone(observerID int64) {
	d.mu.Lock()
	var owned []string
	for id, owner := range d.owners {
		if owner == observerID {
			owned = append(owned, id)
			delete(d.owners, id)
		}
	}
	d.mu.Unlock()

	for _, id := range owned {
		d.engine.Cancel(id)
		d.log.Debug().Str("scanId", id).Int64("observer", observerID).
			Msg("scan cancelled after observer detach")
	}
}

var scanOptionsSchema = Object(map[string]*Schema{
	"batchSize":       Number().WithMin(1).WithOptional(),
	"timeSliceMs":     Number().WithMin(1).WithOptional(),
	"followSymlinks":  Bool().WithOptional(),
	"maxDepth":        Number().WithMin(0).WithOptional(),
	"maxEntries":      Number().WithMin(1).WithOptional(),
	"includeMetadata": Bool().WithOptional(),
}).WithAllowUnknown()

// channelSchemas declares the argument tuple of every channel.
var channelSchemas = map[string]*Schema{
	"scan:start":       Tuple(String().WithNonEmpty(), scanOptionsSchema.WithOptional()),
	"scan:cancel":      Tuple(String().WithNonEmpty()),
	"scan:state":       Tuple(String().WithNonEmpty()),
	"favorites:list":   Tuple(),
	"favorites:add":    Tuple(String().WithNonEmpty().WithSecurePath()),
	"favorites:remove": Tuple(String().WithNonEmpty().WithSecurePath()),
	"recent:list":      Tuple(),
	"recent:clear":     Tuple(),
	"settings:get":     Tuple(),
	"settings:update":  Tuple(Record(nil)),
	"rename-path":      Tuple(String().WithNonEmpty().WithSecurePath(), String().WithNonEmpty().WithNoTraversal()),
	"delete-path":      Tuple(String().WithNonEmpty().WithSecurePath()),
	"logs:recent":      Tuple(Number().WithMin(1).WithMax(500)),
	"history:list":     Tuple(Number().WithMin(1).WithMax(100).WithOptional()),
}

// Handle validates and executes one request. It never panics across
// the boundary; every outcome is a status object.
func (d *Dispatcher) Handle(observerID int64, channel string, args []any) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("channel", channel).Any("panic", r).Msg("request handler failed")
			resp = Response{"success": false, "error": "internal"}
		}
	}()

	schema, known := channelSchemas[channel]
	if !known {
		return Response{"success": false, "error": "unknown-channel"}
	}
	if details := schema.Validate("args", args); len(details) > 0 {
		return Response{"success": false, "error": "validation", "details": details}
	}

	d.log.Debug().Str("channel", channel).Msg("request accepted")

	switch channel {
	case "scan:start":
		return d.handleScanStart(observerID, args)
	case "scan:cancel":
		if !d.engine.Cancel(args[0].(string)) {
			return Response{"success": false, "error": "unknown-id"}
		}
		return Response{"success": true}
	case "scan:state":
		snap, ok := d.engine.StateOf(args[0].(string))
		if !ok {
			return Response{"success": false, "error": "not-found"}
		}
		return Response{"success": true, "state": snap}
	case "favorites:list":
		return Response{"success": true, "favorites": d.favorites.List()}
	case "favorites:add":
		return d.favoritesMutation(d.favorites.Add, args[0].(string))
	case "favorites:remove":
		return d.favoritesMutation(d.favorites.Remove, args[0].(string))
	case "recent:list":
		items, err := d.recent.List()
		if err != nil {
			return Response{"success": false, "error": err.Error()}
		}
		return Response{"success": true, "recent": items, "max": d.recent.Max()}
	case "recent:clear":
		if err := d.recent.Clear(); err != nil {
			return Response{"success": false, "error": err.Error()}
		}
		return Response{"success": true, "recent": []string{}}
	case "settings:get":
		return Response{"success": true, "settings": d.settings.Get(), "file": d.settings.File()}
	case "settings:update":
		patch := args[0].(map[string]any)
		merged, err := d.settings.Update(patch)
		if err != nil {
			if errors.Is(err, store.ErrValidation) {
				return Response{"success": false, "error": "validation", "details": []string{err.Error()}}
			}
			return Response{"success": false, "error": err.Error()}
		}
		return Response{"success": true, "settings": merged}
	case "rename-path":
		return d.handleRename(args[0].(string), args[1].(string))
	case "delete-path":
		return d.handleDelete(args[0].(string))
	case "logs:recent":
		logs := d.ring.Recent(int(args[0].(float64)))
		if logs == nil {
			logs = []logging.Record{}
		}
		return Response{"success": true, "logs": logs}
	case "history:list":
		limit := 20
		if len(args) > 0 && args[0] != nil {
			limit = int(args[0].(float64))
		}
		if d.history == nil {
			return Response{"success": true, "history": []history.Entry{}}
		}
		entries, err := d.history.List(limit)
		if err != nil {
			return Response{"success": false, "error": err.Error()}
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		return Response{"success": true, "history": entries}
	}

	return Response{"success": false, "error": "unknown-channel"}
}

func (d *Dispatcher) handleScanStart(observerID int64, args []any) Response {
	root := args[0].(string)

	opts := scan.DefaultOptions()
	if d.scanCfg.BatchSize > 0 {
		opts.WithBatchSize(d.scanCfg.BatchSize)
	}
	if d.scanCfg.TimeSliceMs > 0 {
		opts.WithTimeSlice(d.scanCfg.TimeSliceMs)
	}
	if d.scanCfg.MaxEntries > 0 {
		opts.WithMaxEntries(d.scanCfg.MaxEntries)
	}
	if d.scanCfg.MaxDepth >= 0 {
		opts.WithMaxDepth(d.scanCfg.MaxDepth)
	}

	if len(args) > 1 && args[1] != nil {
		rec := args[1].(map[string]any)
		if v, ok := rec["batchSize"].(float64); ok {
			opts.WithBatchSize(int(v))
		}
		if v, ok := rec["timeSliceMs"].(float64); ok {
			opts.WithTimeSlice(int(v))
		}
		if v, ok := rec["followSymlinks"].(bool); ok {
			opts.WithFollowSymlinks(v)
		}
		if v, ok := rec["maxDepth"].(float64); ok {
			opts.WithMaxDepth(int(v))
		}
		if v, ok := rec["maxEntries"].(float64); ok {
			opts.WithMaxEntries(int(v))
		}
		if v, ok := rec["includeMetadata"].(bool); ok {
			opts.WithMetadata(v)
		}
	}

	// One scan at a time: every active scan is cancelled before a new
	// one starts.
	for _, id := range d.engine.ListActive() {
		d.engine.Cancel(id)
	}

	res, err := d.engine.Start(root, opts)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrNotADirectory):
			return Response{"success": false, "error": "not-a-directory"}
		case errors.Is(err, scan.ErrInvalidRoot):
			return Response{"success": false, "error": "invalid-root"}
		default:
			return Response{"success": false, "error": err.Error()}
		}
	}

	if snap, ok := d.engine.StateOf(res.ScanID); ok {
		if _, err := d.recent.Touch(snap.Root); err != nil {
			d.log.Warn().Err(err).Msg("recent roots not persisted")
		}
	}

	d.mu.Lock()
	d.owners[res.ScanID] = observerID
	d.mu.Unlock()

	return Response{
		"success":   true,
		"scanId":    res.ScanID,
		"options":   res.Options,
		"startedAt": res.StartedAt,
	}
}

func (d *Dispatcher) favoritesMutation(op func(string) ([]string, error), path string) Response {
	items, err := op(path)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			return Response{"success": false, "error": "validation", "details": []string{err.Error()}}
		}
		return Response{"success": false, "error": err.Error()}
	}
	return Response{"success": true, "favorites": items}
}

func (d *Dispatcher) handleRename(oldPath, newName string) Response {
	cleanName, ok := pathguard.Sanitize(newName)
	if !ok {
		return Response{"success": false, "error": "validation", "details": []string{"newName: rejected by path guard"}}
	}
	newPath := filepath.Join(filepath.Dir(oldPath), cleanName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return Response{"success": false, "error": err.Error(), "code": scan.Classify(err)}
	}
	d.log.Info().Str("from", oldPath).Str("to", newPath).Msg("path renamed")
	return Response{"success": true, "newPath": newPath}
}

func (d *Dispatcher) handleDelete(path string) Response {
	if _, err := os.Lstat(path); err != nil {
		return Response{"success": false, "error": err.Error(), "code": scan.Classify(err)}
	}
	if err := os.RemoveAll(path); err != nil {
		return Response{"success": false, "error": err.Error(), "code": scan.Classify(err)}
	}
	d.log.Info().Str("path", path).Msg("path deleted")
	return Response{"success": true}
}
