package merkle

import "encoding/hex"

// BuildEvidenceRoot computes a Merkle root over a list of hex-encoded
// evidence file hashes, in the order given. A single file's root is its
// own hash. Returns the hex root and the built Tree (for later proof
// generation against the same file set).
func BuildEvidenceRoot(fileHashesHex []string) (string, *Tree, error) {
	leaves := make([][]byte, len(fileHashesHex))
	for i, h := range fileHashesHex {
		b, err := hex.DecodeString(h)
		if err != nil {
			return "", nil, err
		}
		leaves[i] = b
	}
	if len(leaves) == 1 {
		return fileHashesHex[0], nil, nil
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		return "", nil, err
	}
	return tree.RootHex(), tree, nil
}
