// Package tenun is a pluggable framework for building retrieval-augmented
// AI agents. The root package defines the component contracts (vector store,
// document store, memory backend, LLM provider, embedding provider, tool)
// and the agent turn controller that wires them together. Concrete
// implementations live in subpackages and are resolved by name through a
// Catalog, so deployments can swap backends via configuration alone.
package tenun
