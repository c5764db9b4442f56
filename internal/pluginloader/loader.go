package pluginloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
	"github.com/r3e-network/pool-orchestrator/internal/poollock"
	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// FileRecord is the loader's record for one controller file: its resolved
// path, compiled program, and the class table extracted when it was
// loaded. Each (re)load builds a new record; Reload replaces the loader's
// entry for the file and leaves the previous record unchanged, and
// Controller Sessions are re-pointed at the new record via Session.ReOnline.
type FileRecord struct {
	FileName string
	Path     string
	Category Category

	mu      sync.RWMutex
	classes map[string]ClassMetadata
	vm      *goja.Runtime
	objects map[string]goja.Value // class name -> its JS class object
}

// Classes returns a snapshot of the current class table.
func (f *FileRecord) Classes() map[string]ClassMetadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]ClassMetadata, len(f.classes))
	for k, v := range f.classes {
		out[k] = v
	}
	return out
}

func (f *FileRecord) classObject(name string) (goja.Value, *goja.Runtime, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obj, ok := f.objects[name]
	return obj, f.vm, ok
}

// Loader discovers and hosts controller files.
type Loader struct {
	poolPath []string
	log      *logging.Component
	progCache *lru.Cache[string, *goja.Program]

	mu    sync.Mutex
	files map[string]*FileRecord // fileName -> record

	classLockMu sync.Mutex
	classLocks  map[string]*poollock.RMutex // class name -> shared reentrant lock
}

// New creates a Loader searching poolPath in order (first match wins),
// caching up to cacheSize compiled programs (hashicorp/golang-lru) keyed
// by resolved path; Reload evicts a file's entry before recompiling it.
func New(poolPath []string, cacheSize int, log *logging.Logger) (*Loader, error) {
	cache, err := lru.New[string, *goja.Program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("pluginloader: create program cache: %w", err)
	}
	var comp *logging.Component
	if log != nil {
		comp = log.Named("pluginloader")
	}
	return &Loader{
		poolPath:   poolPath,
		log:        comp,
		progCache:  cache,
		files:      make(map[string]*FileRecord),
		classLocks: make(map[string]*poollock.RMutex),
	}, nil
}

// Discover scans pool_path for fileName and loads it if not already
// loaded, returning the file record.
func (l *Loader) Discover(fileName string, category Category) (*FileRecord, error) {
	l.mu.Lock()
	if rec, ok := l.files[fileName]; ok {
		l.mu.Unlock()
		return rec, nil
	}
	l.mu.Unlock()

	path, err := l.resolve(fileName)
	if err != nil {
		return nil, err
	}
	return l.load(fileName, path, category)
}

func (l *Loader) resolve(fileName string) (string, error) {
	for _, dir := range l.poolPath {
		candidate := filepath.Join(dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", poolerrors.ControllerFileNotFound(fileName)
}

func (l *Loader) load(fileName, path string, category Category) (*FileRecord, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, poolerrors.LoadFailure(fileName, err)
	}

	prog, ok := l.progCache.Get(path)
	if !ok {
		prog, err = goja.Compile(path, string(src), false)
		if err != nil {
			return nil, poolerrors.LoadFailure(fileName, err)
		}
		l.progCache.Add(path, prog)
	}

	vm := goja.New()
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, poolerrors.LoadFailure(fileName, err)
	}

	classes, objects, err := extractClasses(vm, category)
	if err != nil {
		// Declaration errors already carry their own code; only wrap
		// everything else as a load failure.
		var pe *poolerrors.PoolError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, poolerrors.LoadFailure(fileName, err)
	}

	rec := &FileRecord{
		FileName: fileName,
		Path:     path,
		Category: category,
		classes:  classes,
		objects:  objects,
		vm:       vm,
	}

	l.mu.Lock()
	l.files[fileName] = rec
	l.mu.Unlock()

	for name := range classes {
		l.classLock(name)
	}

	if l.log != nil {
		l.log.WithField("file", fileName).Info("loaded controller file")
	}
	return rec, nil
}

// Reload recompiles fileName into a fresh record that replaces the
// loader's entry for it.
// On failure the previous record is left untouched so callers (the
// Hot-Reload Orchestrator) can roll back.
func (l *Loader) Reload(fileName string) (*FileRecord, error) {
	l.mu.Lock()
	old, ok := l.files[fileName]
	l.mu.Unlock()
	if !ok {
		return nil, poolerrors.ControllerFileNotFound(fileName)
	}

	l.progCache.Remove(old.Path)
	fresh, err := l.load(fileName, old.Path, old.Category)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// ClassLock returns the shared reentrant class lock for className: two
// sessions loaded from the same class share one lock.
func (l *Loader) ClassLock(className string) *poollock.RMutex {
	return l.classLock(className)
}

func (l *Loader) classLock(className string) *poollock.RMutex {
	l.classLockMu.Lock()
	defer l.classLockMu.Unlock()
	lk, ok := l.classLocks[className]
	if !ok {
		lk = &poollock.RMutex{}
		l.classLocks[className] = lk
	}
	return lk
}

// FileRecordFor returns the loaded record for fileName, if any.
func (l *Loader) FileRecordFor(fileName string) (*FileRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.files[fileName]
	return rec, ok
}
