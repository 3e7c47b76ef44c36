/*
Package metrics provides Prometheus instrumentation and component
health reporting for Warden.

All collectors are package-level and registered at init, so any package
can record observations without plumbing a registry:

	metrics.ServiceInstallsTotal.WithLabelValues("noona-cache", "installed").Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)

Handler exposes the standard /metrics endpoint. The Collector samples
the container runtime on an interval to keep the running-services gauge
current.

The component health tracker backs the /health, /ready and /live
endpoints: packages register themselves with RegisterComponent and
update their state as conditions change; readiness requires the
critical components (runtime, catalog, api) to be registered and
healthy.
*/
package metrics
