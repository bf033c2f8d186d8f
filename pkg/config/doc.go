/*
Package config defines the YAML configuration for the orchestration core
and carries the built-in catalogs: the ten named queues, the eight state
namespaces, the workflow state timeouts, and the policy thresholds.

Default() returns the full built-in configuration; Load overlays an
optional YAML file on top of it. A Watcher (fsnotify) re-reads the file on
change so operators can adjust log level and policy limits without a
restart.

Durations in YAML accept Go notation ("30s", "2h") or integer milliseconds.

Example:

	cfg, err := config.Load("/etc/holon/config.yaml")
	if err != nil {
		return err
	}
	qcfg, _ := cfg.QueueFor("validation-tasks")
*/
package config
