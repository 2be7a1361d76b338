package runtime

import (
	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/vsr"
)

// Transport is the network collaborator the runtime hands outbound VSR
// messages to. Only runtime touches the network directly (§4.6); vsr
// and kernel never import it.
type Transport interface {
	// Send delivers msg to a single replica.
	Send(to ids.ReplicaId, msg interface{}) error
	// Broadcast delivers msg to every other replica in the cluster's
	// currently active configuration(s).
	Broadcast(msg interface{}) error
}

// dispatch sends a single vsr.Outbound on t, per its Broadcast flag.
func dispatch(t Transport, out vsr.Outbound) error {
	if out.Broadcast {
		return t.Broadcast(out.Message)
	}
	return t.Send(out.To, out.Message)
}

// dispatchAll sends every outbound message in outs, aggregating (not
// stopping at) the first send failure — a single unreachable peer
// should not block delivery to the rest of the cluster.
func dispatchAll(t Transport, outs []vsr.Outbound) error {
	var first error
	for _, out := range outs {
		if err := dispatch(t, out); err != nil && first == nil {
			first = err
		}
	}
	return first
}
