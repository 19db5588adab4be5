// Command tee-node runs one cluster coordinator node: a cooperative
// event loop that ticks Raft, drains its wire inbox (dispatching Raft,
// DAG-node and sorted-tx envelopes) and emits epoch outputs at the
// configured boundary. The loop runs no L2 simulator. Grounded on the teacher's cmd/consensus/main.go cobra root
// command, adapted from parameter-management tooling to an actual
// runnable node.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xcsec/omniuat/cluster"
	"github.com/xcsec/omniuat/config"
	"github.com/xcsec/omniuat/dag"
	"github.com/xcsec/omniuat/logx"
	"github.com/xcsec/omniuat/metrics"
	"github.com/xcsec/omniuat/primitives"
	"github.com/xcsec/omniuat/raft"
	"github.com/xcsec/omniuat/wire"
	"github.com/prometheus/client_golang/prometheus"
)

var rootCmd = &cobra.Command{
	Use:   "tee-node",
	Short: "Run a single cross-rollup settlement cluster coordination node",
	Long: `tee-node runs one node of a cross-rollup settlement cluster: Raft
replication, a Merkle-CRDT operation DAG, per-token authenticated balance
tries and the epoch ratification protocol that syncs a ratified state
root, DAG head and reject root back out to the L2 chains it serves.`,
}

func main() {
	rootCmd.AddCommand(runCmd(), keygenCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath string
	var tickInterval time.Duration
	var epochInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node's cooperative event loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, tickInterval, epochInterval)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tee-node.yaml", "path to the cluster config file")
	cmd.Flags().DurationVar(&tickInterval, "tick", 10*time.Millisecond, "interval between event loop iterations")
	cmd.Flags().DurationVar(&epochInterval, "epoch-interval", 5*time.Second, "wall-clock interval between epoch boundaries")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh ed25519 node identity and print its public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := primitives.NewSuite()
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", suite.PublicKey())
			return nil
		},
	}
}

func runNode(configPath string, tickInterval, epochInterval time.Duration) error {
	params, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logx.New(params.LogLevel)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer, "teenode")

	suite, err := primitives.NewSuite()
	if err != nil {
		return err
	}

	peerIDs := make([]uint32, 0, len(params.Peers))
	for _, p := range params.Peers {
		peerIDs = append(peerIDs, p.NodeID)
	}
	allIDs := append(append([]uint32{}, peerIDs...), params.NodeID)
	nets := wire.NewLoopbackNetwork(allIDs, 256)

	c := cluster.New(cluster.Config{
		NodeID: params.NodeID,
		Peers:  peerIDs,
		Raft: raft.Config{
			NodeID:             params.NodeID,
			Peers:              peerIDs,
			ElectionTimeoutMin: params.ElectionTimeoutMin,
			ElectionTimeoutMax: params.ElectionTimeoutMax,
			HeartbeatInterval:  params.HeartbeatInterval,
		},
		DAG: dag.Config{
			MaxNodes:                  params.MaxDAGNodes,
			MaxParents:                params.MaxParents,
			MaxChildren:               params.MaxChildren,
			ConflictIndexSize:         params.ConflictIndexSize,
			NeighborThinningThreshold: params.NeighborThinningThreshold,
			NeighborThinningKeep:      params.NeighborThinningKeep,
		},
		Majority:  params.Majority(),
		Transport: nets[params.NodeID],
		Suite:     suite,
		Log:       log,
		Metrics:   reg,
	})

	log.Info("tee-node starting")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	epochTicker := time.NewTicker(epochInterval)
	defer epochTicker.Stop()

	var epoch uint64
	for {
		select {
		case <-ticker.C:
			if err := c.ElectLeader(tickInterval); err != nil {
				log.Error("raft tick send failed")
			}
			if _, err := c.ListenAndBuildDAG(); err != nil {
				log.Error("listen and build dag failed")
			}
		case <-epochTicker.C:
			epoch++
			if _, err := c.GenerateAndSendEpochOutput(epoch); err != nil {
				log.Error("epoch output broadcast failed")
			}
		}
	}
}
