package ledger

import (
	"fmt"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// segmentNameDigits zero-pads segment numbers for lexical ordering,
// adapted from massifs/tenantblobpaths.go's zero-padded suffix
// convention.
const segmentNameDigits = 20

// streamPrefix returns the storage path prefix under which every
// segment of a single tenant/stream lives.
func streamPrefix(stream ids.StreamId) string {
	return fmt.Sprintf("tenants/%020d/streams/%020d/segments/", stream.Tenant, stream.N)
}

// segmentPath returns the path of the segment whose first op number is
// firstOp, zero-padded for lexical == numeric ordering.
func segmentPath(stream ids.StreamId, firstOp ids.OpNumber) string {
	return fmt.Sprintf("%s%0*d.kmseg", streamPrefix(stream), segmentNameDigits, uint64(firstOp))
}

// segmentIndexPath is the advisory sibling index.meta file for a segment.
func segmentIndexPath(stream ids.StreamId, firstOp ids.OpNumber) string {
	return fmt.Sprintf("%s%0*d.index.meta", streamPrefix(stream), segmentNameDigits, uint64(firstOp))
}

// checkpointPrefix is where signed compliance checkpoints for a tenant
// are published.
func checkpointPrefix(tenant ids.TenantId) string {
	return fmt.Sprintf("tenants/%020d/checkpoints/", tenant)
}

func checkpointPath(tenant ids.TenantId, seq uint64) string {
	return fmt.Sprintf("%s%020d.ckpt", checkpointPrefix(tenant), seq)
}
