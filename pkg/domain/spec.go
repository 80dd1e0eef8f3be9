package domain

import "fmt"

// EngineKind identifies which workflow engine executes a run.
//
// The set is closed. Unknown kinds are rejected at the boundary by
// AsEngineKind, never dispatched on.
type EngineKind string

const (
	EngineCWL       EngineKind = "cwl"
	EngineYadage    EngineKind = "yadage"
	EngineSerial    EngineKind = "serial"
	EngineSnakemake EngineKind = "snakemake"
)

func (ek EngineKind) String() string {
	return string(ek)
}

func AsEngineKind(kind string) (EngineKind, error) {
	switch kind {
	case string(EngineCWL):
		return EngineCWL, nil
	case string(EngineYadage):
		return EngineYadage, nil
	case string(EngineSerial):
		return EngineSerial, nil
	case string(EngineSnakemake):
		return EngineSnakemake, nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a workflow engine", ErrValidation, kind)
	}
}

// Specification is the immutable workflow document a run is created
// with. Stored as JSONB, never updated after creation.
type Specification struct {
	// Engine executing this workflow.
	Engine EngineKind `json:"workflow_type"`

	// The workflow graph document, passed to the engine opaque.
	Workflow map[string]any `json:"workflow"`

	// Default input parameters. Overridable per run and per start.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Declared resource needs.
	Resources ResourceNeeds `json:"resources,omitempty"`
}

// ResourceNeeds are the resources a specification declares beyond the
// batch job itself.
type ResourceNeeds struct {
	// Secondary compute cluster request, if the workflow wants
	// distributed data-parallel execution.
	Cluster *ClusterRequest `json:"cluster,omitempty"`

	// Kerberos credential init container + volumes.
	Kerberos bool `json:"kerberos,omitempty"`

	// VOMS proxy certificate init container + cache volume.
	VomsProxy bool `json:"voms_proxy,omitempty"`

	// Rucio client configuration init container + cache volume.
	Rucio bool `json:"rucio,omitempty"`

	// CVMFS repositories to mount read-only.
	CVMFSRepos []string `json:"cvmfs,omitempty"`
}

// ClusterRequest describes the secondary compute cluster a run
// declares. One cluster per run.
type ClusterRequest struct {
	// Worker image.
	Image string `json:"image"`

	// Number of workers when no autoscaler runs. With an autoscaler
	// the cluster starts at zero replicas.
	Workers int `json:"number_of_workers,omitempty"`

	// Threads per worker.
	Cores int `json:"single_worker_threads,omitempty"`

	// Memory per worker, e.g. "2Gi".
	Memory string `json:"single_worker_memory,omitempty"`

	// Run an autoscaler beside the cluster.
	Autoscale bool `json:"autoscale,omitempty"`
}

// WantsCluster tells whether this specification declares a secondary
// compute cluster.
func (s Specification) WantsCluster() bool {
	return s.Resources.Cluster != nil
}
