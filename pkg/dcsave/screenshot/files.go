package screenshot

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
)

const thumbSuffix = "_thumb"

// Naming describes screenshot file names: <Prefix>_<id><Ext> for the main
// image and <Prefix>_<id>_thumb<Ext> for the thumbnail.
type Naming struct {
	Prefix string
	Ext    string
}

// DefaultNaming returns the game's naming convention.
func DefaultNaming() Naming {
	return Naming{Prefix: "DevilConnection_photo", Ext: ".sav"}
}

// MainName returns the main image file name of id.
func (n Naming) MainName(id string) string { return n.Prefix + "_" + id + n.Ext }

// ThumbName returns the thumbnail file name of id.
func (n Naming) ThumbName(id string) string { return n.Prefix + "_" + id + thumbSuffix + n.Ext }

// IDsName returns the ids index file name.
func (n Naming) IDsName() string { return n.Prefix + "_ids" + n.Ext }

// AllIDsName returns the all_ids index file name.
func (n Naming) AllIDsName() string { return n.Prefix + "_all_ids" + n.Ext }

// Parse extracts the id from a screenshot file name. Names that do not
// follow the convention, index files and ids containing "_" are rejected.
func (n Naming) Parse(name string) (id string, thumb bool, ok bool) {
	if name == n.IDsName() || name == n.AllIDsName() {
		return "", false, false
	}
	rest, found := strings.CutPrefix(name, n.Prefix+"_")
	if !found {
		return "", false, false
	}
	rest, found = strings.CutSuffix(rest, n.Ext)
	if !found {
		return "", false, false
	}
	rest, thumb = strings.CutSuffix(rest, thumbSuffix)
	if !validID(rest) {
		return "", false, false
	}
	return rest, thumb, true
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `_/\.`+"\x00")
}

// FilePair holds the file names found for one id. An empty name means the
// file is absent.
type FilePair struct {
	Main  string
	Thumb string
}

// Missing reports whether the main image file is absent.
func (p FilePair) Missing() bool { return p.Main == "" }

// ThumbMissing reports whether the thumbnail file is absent.
func (p FilePair) ThumbMissing() bool { return p.Thumb == "" }

// ResolveFiles groups the screenshot files in dir by id in a single pass over
// the directory. Subdirectories and non-regular files are skipped.
func ResolveFiles(dir string, n Naming) (map[string]FilePair, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}

	root := filepath.Clean(dir)
	pairs := make(map[string]FilePair)
	var mu sync.Mutex

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if filepath.Clean(path) == root {
				return err
			}
			logging.Get("screenshot").Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if filepath.Clean(path) == root {
				return nil
			}
			return fastwalk.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}

		id, thumb, ok := n.Parse(d.Name())
		if !ok {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		pair := pairs[id]
		if thumb {
			pair.Thumb = d.Name()
		} else {
			pair.Main = d.Name()
		}
		pairs[id] = pair
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	return pairs, nil
}
