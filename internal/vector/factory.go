package vector

import "fmt"

// StoreType names a Store implementation.
type StoreType string

const (
	// StoreTypeMemory keeps vectors in process memory.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeQdrant uses a Qdrant server over REST.
	StoreTypeQdrant StoreType = "qdrant"
)

// NewStore creates a store of the given type. qcfg is only used for Qdrant.
func NewStore(storeType string, qcfg QdrantConfig) (Store, error) {
	switch StoreType(storeType) {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeQdrant:
		return NewQdrantStore(qcfg)
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: memory, qdrant)", storeType)
	}
}
