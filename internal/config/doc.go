// Package config loads the converge configuration.
//
// Configuration is read from a single YAML file. The default location is
// ~/.config/converge/config.yaml; commands accept --config to point at
// another file or at a directory containing config.yaml. A missing file
// yields GetDefaultConfig().
//
// # Configuration Structure
//
//	backend: dcos                      # dcos or kubernetes
//	service:
//	  name: /test/hdfs                 # service name, foldered names allowed
//	  package: hdfs
//	  version: 2.0.0
//	  upgrade_from: 1.9.0              # install this first, then upgrade
//	  expected_tasks: 10
//	  install_timeout: 30m
//	  options:
//	    service: {name: /test/hdfs}
//	convergence:
//	  timeout: 25m
//	  poll_interval: 5s
//	  config_update_timeout: 15m
//	dcos:
//	  url: https://master.mesos
//	  token_env: DCOS_ACS_TOKEN
//	  ssh:
//	    user: core
//	    key_file: ~/.ssh/dcos
//	    known_hosts: ~/.ssh/known_hosts
//	    bastion: 52.1.2.3
//	kubernetes:
//	  namespace: hdfs
//	  instance_label: app.kubernetes.io/instance
//	  manifests: [deploy/hdfs.yaml]
//
// Durations are Go duration strings. Invalid files produce a
// ConfigurationErrorCollection listing every problem with suggestions.
package config
