package expr

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a content-based identifier of the subtree rooted at
// root. Two expressions in different graphs have the same fingerprint iff
// they are structurally identical, which is what in-graph interning
// guarantees only within a single arena.
func Fingerprint(g *Graph, root Handle) ([16]byte, error) {
	w := NewWalker(g, Handlers[[16]byte]{
		Const: func(_ Handle, v float64) ([16]byte, error) {
			var buf [9]byte
			buf[0] = byte(Const)
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v))
			return hash16(buf[:]), nil
		},
		Var: func(_ Handle, id uint32) ([16]byte, error) {
			return hashRef(Var, id), nil
		},
		Param: func(_ Handle, id uint32) ([16]byte, error) {
			return hashRef(Param, id), nil
		},
		Op: func(_ Handle, k Kind, _ []Handle, args [][16]byte) ([16]byte, error) {
			buf := make([]byte, 1, 1+16*len(args))
			buf[0] = byte(k)
			for _, a := range args {
				buf = append(buf, a[:]...)
			}
			return hash16(buf), nil
		},
	})
	return w.Walk(root)
}

func hashRef(k Kind, id uint32) [16]byte {
	var buf [5]byte
	buf[0] = byte(k)
	binary.LittleEndian.PutUint32(buf[1:], id)
	return hash16(buf[:])
}

func hash16(data []byte) [16]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	sum := h.Sum(nil)
	return [16]byte(sum[:16])
}
