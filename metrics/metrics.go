// Package metrics exposes Prometheus instrumentation for the cluster
// coordinator, the DAG and the Raft log. Grounded on the teacher's use
// of github.com/prometheus/client_golang throughout its engine packages.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every counter and gauge a node emits. A node that is
// not wired to a Prometheus registry still works; callers obtain one via
// NewRegistry and register it with their own http.Handler.
type Registry struct {
	OperationsReceived prometheus.Counter
	OperationsFailed   prometheus.Counter
	DAGNodes           prometheus.Gauge
	RaftTerm           prometheus.Gauge
	RaftRole           prometheus.Gauge
	EpochsCompleted    prometheus.Counter
	WireMessagesSent   prometheus.Counter
	WireMessagesDropped prometheus.Counter
}

// NewRegistry builds a Registry and registers every metric with reg.
func NewRegistry(reg prometheus.Registerer, namespace string) *Registry {
	r := &Registry{
		OperationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_received_total",
			Help: "Operations admitted into the DAG.",
		}),
		OperationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_failed_total",
			Help: "Operations that failed validation.",
		}),
		DAGNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dag_nodes",
			Help: "Current number of nodes held in the DAG.",
		}),
		RaftTerm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "raft_term",
			Help: "Current Raft term.",
		}),
		RaftRole: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "raft_role",
			Help: "Current Raft role (0=follower,1=candidate,2=leader).",
		}),
		EpochsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "epochs_completed_total",
			Help: "Epochs ratified by majority.",
		}),
		WireMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wire_messages_sent_total",
			Help: "Envelopes successfully sent.",
		}),
		WireMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wire_messages_dropped_total",
			Help: "Envelopes dropped by the transport or verification.",
		}),
	}
	reg.MustRegister(
		r.OperationsReceived, r.OperationsFailed, r.DAGNodes,
		r.RaftTerm, r.RaftRole, r.EpochsCompleted,
		r.WireMessagesSent, r.WireMessagesDropped,
	)
	return r
}
