// Package dcos implements the cluster interfaces against DC/OS.
//
// Requests go through the admin router authenticated with the cluster's ACS
// token. Task instances come from the Mesos master state, plans and pod
// commands from the service's SDK scheduler, the app config from the
// scheduler's Marathon app, and installs from Cosmos. Process kills run
// over SSH on the agent hosting the task, optionally through a bastion.
package dcos
