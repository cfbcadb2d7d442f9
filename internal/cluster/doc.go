// Package cluster defines the narrow interfaces converge consumes from the
// systems under test: the orchestrator that runs task instances, the service
// scheduler that owns deploy and recovery plans, the app-config control
// plane, the metrics endpoint and the package installer.
//
// Two implementations exist: internal/cluster/dcos talks to Mesos, Marathon,
// Cosmos and the SDK scheduler over HTTP; internal/cluster/kube maps the same
// contracts onto StatefulSets, pods and ConfigMaps. internal/cluster/fake is
// an in-memory cluster for tests.
package cluster
