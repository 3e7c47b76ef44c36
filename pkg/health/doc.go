/*
Package health provides the probes Warden uses to decide whether a
freshly started service is ready.

Two checker types are implemented behind a common interface:

	┌──────────────────────────────────────────┐
	│             Checker Interface            │
	│  • Check(ctx) Result                     │
	│  • Type() CheckType                      │
	└─────────────┬────────────────────────────┘
	              │
	       ┌──────┴──────┐
	       ▼             ▼
	  ┌────────┐    ┌────────┐
	  │  HTTP  │    │  TCP   │
	  │Checker │    │Checker │
	  └────────┘    └────────┘
	       │             │
	       ▼             ▼
	  GET /health    Connect :port

ForService picks the checker from a catalog descriptor: services that
declare a health URL get an HTTP probe, services that only publish a
port get a passive TCP connect probe, and services with neither are
treated as ready once their container is running.

Wait drives a checker on an interval until it passes or a deadline
expires. The lifecycle engine calls it after starting each container;
a timeout there surfaces as a start failure in the health stage.
*/
package health
