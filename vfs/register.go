package vfs

import (
	"sync"

	_ "github.com/mattn/go-sqlite3" // Links the SQLite library sqlite3vfs binds to.
	"github.com/pkg/errors"
	"github.com/psanford/sqlite3vfs"
	log "github.com/sirupsen/logrus"
)

// Register the VFS with SQLite under its Name, so that SQLite URIs having
// "?vfs=Name" open files through it. Registering a VFS of a Name which is
// already registered re-binds the Name to the new VFS: files already open
// remain bound to the VFS which opened them.
func Register(v *VFS) error {
	if v.Name == "" {
		return errors.New("VFS name is empty")
	} else if v.Backend == nil {
		return errors.Errorf("VFS %q has no Backend", v.Name)
	}

	registeredVFSs.mu.Lock()
	defer registeredVFSs.mu.Unlock()

	if _, ok := registeredVFSs.m[v.Name]; !ok {
		// SQLite holds the adapter for the life of the process, and we cannot
		// unregister it. Bind it to the name rather than to |v|.
		if err := sqlite3vfs.RegisterVFS(v.Name, &adapter{name: v.Name}); err != nil {
			return errors.WithMessagef(err, "registering VFS %q", v.Name)
		}
	}
	registeredVFSs.m[v.Name] = v

	log.WithField("vfs", v.Name).Info("registered SQLite VFS")
	return nil
}

// Lookup returns the VFS currently registered under |name|, or nil.
func Lookup(name string) *VFS {
	registeredVFSs.mu.Lock()
	defer registeredVFSs.mu.Unlock()

	return registeredVFSs.m[name]
}

// registeredVFSs is the set of VFSs known to SQLite, keyed on VFS name.
var registeredVFSs = struct {
	m  map[string]*VFS
	mu sync.Mutex
}{m: make(map[string]*VFS)}
