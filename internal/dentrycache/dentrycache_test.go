package dentrycache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hscfs-project/hscfs-core/internal/ondisk"
)

func TestAddGetPutEvicts(t *testing.T) {
	c := NewCache(16)
	d := &Dentry{Key: Key{DirIno: 1, Name: "foo"}, Ino: 2, FileType: ondisk.FTRegFile}
	c.Add(d)
	assert.Equal(t, 1, c.cm.NumCanReplace())

	got := c.Get(d.Key)
	assert.Same(t, d, got)

	c.Put(got)
	assert.Equal(t, 1, c.cm.NumCanReplace())
}

func TestRemoveDropsEntryOutright(t *testing.T) {
	c := NewCache(16)
	d := &Dentry{Key: Key{DirIno: 1, Name: "bar"}}
	c.Add(d)
	c.Remove(d.Key)
	assert.Equal(t, 0, c.Len())
}
