// Package digest fingerprints a set of files as the merkle root over their
// (relative path, content hash) pairs.
package digest

import (
	"encoding/hex"
	"fmt"
	"sort"

	merkletree "github.com/txaty/go-merkletree"

	"dirworker/internal/hash"
)

// leaf is one file in the tree. Path and hash are both part of the leaf so a rename
// changes the root even when content does not.
type leaf struct {
	path string
	hash string
}

func (l leaf) Serialize() ([]byte, error) {
	return []byte(l.path + "\x00" + l.hash), nil
}

// Root returns the hex merkle root of a path -> content hash manifest. Leaves are ordered
// by path so the result does not depend on map iteration.
func Root(manifest map[string]string) (string, error) {
	paths := make([]string, 0, len(manifest))
	for path := range manifest {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	switch len(paths) {
	case 0:
		sum, err := hash.XXHashFunc([]byte("empty-tree"))
		if err != nil {
			return "", fmt.Errorf("failed to create empty tree hash: %w", err)
		}
		return hex.EncodeToString(sum), nil
	case 1:
		// go-merkletree needs at least two blocks.
		data, _ := leaf{path: paths[0], hash: manifest[paths[0]]}.Serialize()
		sum, err := hash.XXHashFunc(data)
		if err != nil {
			return "", fmt.Errorf("failed to hash leaf: %w", err)
		}
		return hex.EncodeToString(sum), nil
	}

	blocks := make([]merkletree.DataBlock, 0, len(paths))
	for _, path := range paths {
		blocks = append(blocks, leaf{path: path, hash: manifest[path]})
	}

	tree, err := merkletree.New(&merkletree.Config{
		HashFunc: hash.XXHashFunc,
		Mode:     merkletree.ModeTreeBuild,
	}, blocks)
	if err != nil {
		return "", fmt.Errorf("failed to build merkle tree: %w", err)
	}

	return hex.EncodeToString(tree.Root), nil
}
