package directory

// maxHashDepth bounds how many levels the bucket table doubles before it
// flattens out, matching f2fs's own cap (HSCFS's on-disk dentry/hash
// layout is field-for-field derived from f2fs, so this package resolves
// the bucket-address arithmetic the same way rather than inventing a
// new one).
const maxHashDepth = 63

// dirBuckets returns the number of buckets at hash-table level.
func dirBuckets(level int) uint64 {
	if level < maxHashDepth/2 {
		return 1 << uint(level)
	}
	return 1 << uint(maxHashDepth/2-1)
}

// bucketBlocks returns the number of dentry blocks making up one bucket
// at level.
func bucketBlocks(level int) uint64 {
	if level < maxHashDepth/2 {
		return 2
	}
	return 4
}

// BucketStartBlock returns the block offset, within the directory file,
// of bucket idx at hash-table level. Levels below level are fully
// populated and contribute their total block count as a prefix sum.
func BucketStartBlock(level int, idx uint64) uint64 {
	var total uint64
	for l := 0; l < level; l++ {
		total += dirBuckets(l) * bucketBlocks(l)
	}
	return total + idx*bucketBlocks(level)
}

// BucketBlockNum returns the number of dentry blocks in one bucket at
// level (exported for callers walking every block of a bucket).
func BucketBlockNum(level int) uint64 {
	return bucketBlocks(level)
}

// BucketIndex returns which bucket at level a given hash lands in.
func BucketIndex(level int, hash uint32) uint64 {
	return uint64(hash) % dirBuckets(level)
}
