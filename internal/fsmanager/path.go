package fsmanager

import (
	"context"
	"strings"

	"github.com/hscfs-project/hscfs-core/internal/coreerr"
	"github.com/hscfs-project/hscfs-core/internal/dentrycache"
	"github.com/hscfs-project/hscfs-core/internal/directory"
	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

// splitPath breaks an absolute path into its non-empty components,
// collapsing repeated slashes. Grounded on path_dentry_iterator's
// component-by-component walk over the raw path string.
func splitPath(path string) ([]string, error) {
	if len(path) == 0 || path[0] != '/' {
		return nil, coreerr.New(coreerr.UserPathInvalid, "fsmanager: path must be absolute")
	}
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps, nil
}

// splitDirAndFile is path_helper::extract_dir_path and extract_file_name
// fused into one call. A path ending in "/" (or the root itself) names a
// directory with no file component, matching the original's empty-
// file-name convention for that case.
func splitDirAndFile(path string) (dirPath, name string, err error) {
	comps, err := splitPath(path)
	if err != nil {
		return "", "", err
	}
	if len(comps) == 0 || strings.HasSuffix(path, "/") {
		return joinAbs(comps), "", nil
	}
	return joinAbs(comps[:len(comps)-1]), comps[len(comps)-1], nil
}

func joinAbs(comps []string) string {
	if len(comps) == 0 {
		return "/"
	}
	return "/" + strings.Join(comps, "/") + "/"
}

// rootDentry returns a held reference to the seeded root dentry. Panics
// if it is somehow missing; New always seeds it before any operation can
// run.
func (r *Root) rootDentry() *dentrycache.Dentry {
	rootIno := ondisk.Ino(r.Super.RootIno)
	d := r.Dentries.Get(dentrycache.Key{DirIno: rootIno, Name: "/"})
	if d == nil {
		panic("fsmanager: root dentry missing from cache")
	}
	return d
}

// lookupChild resolves name inside dir and returns a held reference to
// its dentry, or nil if it does not exist. A cache miss that resolves
// from disk is inserted into the dentry cache here, since
// directory.Directory.Lookup only consults the cache, it never
// populates it on a miss — the insert-on-resolve half of the original's
// dentry_cache::get is done by this caller instead.
func (r *Root) lookupChild(ctx context.Context, dir *dentrycache.Dentry, name string) (*dentrycache.Dentry, error) {
	dirObj := directory.New(dir.Ino, r.dev, r.resolver(), r.DirData, r.Dentries, r.Nodes)
	res, err := dirObj.Lookup(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, nil
	}

	key := dentrycache.Key{DirIno: dir.Ino, Name: name}
	if d := r.Dentries.Get(key); d != nil {
		return d, nil
	}
	r.Dentries.Add(&dentrycache.Dentry{
		Key:       key,
		Ino:       res.Ino,
		FileType:  res.FileType,
		ParentKey: dir.Key,
		State:     ondisk.DentryValid,
		Pos:       res.Pos,
	})
	return r.Dentries.Get(key), nil
}

// resolveDir walks dirPath (an absolute directory path, "/" for the
// root itself) from the root dentry and returns the final directory's
// dentry, with one reference the caller must Put. Every component that
// exists but is not a directory is folded into the same NotFound result
// a missing component gets, matching mkdir.cc/open.cc's choice of
// ENOENT over ENOTDIR for that case.
func (r *Root) resolveDir(ctx context.Context, dirPath string) (*dentrycache.Dentry, error) {
	comps, err := splitPath(dirPath)
	if err != nil {
		return nil, err
	}
	cur := r.rootDentry()
	for _, name := range comps {
		next, err := r.lookupChild(ctx, cur, name)
		if err != nil {
			r.Dentries.Put(cur)
			return nil, err
		}
		if next == nil {
			r.Dentries.Put(cur)
			return nil, coreerr.New(coreerr.NotFound, "fsmanager: no such directory: "+name)
		}
		r.Dentries.Put(cur)
		if next.FileType != ondisk.FTDir {
			r.Dentries.Put(next)
			return nil, coreerr.New(coreerr.NotFound, "fsmanager: not a directory: "+name)
		}
		cur = next
	}
	return cur, nil
}

// walkPath resolves an absolute path to its containing directory and its
// own dentry, each with one reference the caller must Put. The target
// comes back nil, with no error, if it does not exist — do_path_lookup's
// contract of returning an empty handle for a missing final component,
// leaving the not-found-vs-wrong-type decision up to the caller since
// mkdir, open and link all react to a missing target differently. path
// == "/" returns a nil parent alongside the root's own dentry as target,
// since the root has no containing directory in this tree.
func (r *Root) walkPath(ctx context.Context, path string) (parent *dentrycache.Dentry, target *dentrycache.Dentry, err error) {
	comps, err := splitPath(path)
	if err != nil {
		return nil, nil, err
	}
	if len(comps) == 0 {
		return nil, r.rootDentry(), nil
	}

	dir := r.rootDentry()
	for _, name := range comps[:len(comps)-1] {
		next, err := r.lookupChild(ctx, dir, name)
		if err != nil {
			r.Dentries.Put(dir)
			return nil, nil, err
		}
		if next == nil {
			r.Dentries.Put(dir)
			return nil, nil, coreerr.New(coreerr.NotFound, "fsmanager: no such directory: "+name)
		}
		r.Dentries.Put(dir)
		if next.FileType != ondisk.FTDir {
			r.Dentries.Put(next)
			return nil, nil, coreerr.New(coreerr.NotFound, "fsmanager: not a directory: "+name)
		}
		dir = next
	}

	last := comps[len(comps)-1]
	target, err = r.lookupChild(ctx, dir, last)
	if err != nil {
		r.Dentries.Put(dir)
		return nil, nil, err
	}
	return dir, target, nil
}
