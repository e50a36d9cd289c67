package orchestrator

import (
	"hash/fnv"

	"github.com/droverhq/drover/internal/models"
)

// partitionHash maps an entity ID to a stable bucket. FNV-1a: cheap,
// deterministic across processes, good enough spread for batch splits.
func partitionHash(entityID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	return h.Sum32()
}

// partition keeps only the entities this worker owns under the
// (batchIndex, batchCount) split. batchCount <= 1 keeps everything.
// Workers running the same split with distinct indexes claim disjoint
// slices whose union is the full list, with no coordination.
func partition(entities []*models.EntityWorkItem, batchIndex, batchCount int) []*models.EntityWorkItem {
	if batchCount <= 1 {
		return entities
	}

	kept := make([]*models.EntityWorkItem, 0, len(entities)/batchCount+1)
	for _, item := range entities {
		if int(partitionHash(item.EntityID)%uint32(batchCount)) == batchIndex {
			kept = append(kept, item)
		}
	}
	return kept
}
