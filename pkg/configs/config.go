package configs

import (
	"github.com/skein-run/skein/pkg/domain"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ServerConfig is the whole control-plane configuration.
//
// To get a ServerConfig instance, use ServerConfigMarshall.TrySeal().
type ServerConfig struct {
	port    int32
	cluster *ClusterConfig
}

func (c *ServerConfig) Port() int32 {
	return c.port
}

func (c *ServerConfig) Cluster() *ClusterConfig {
	return c.cluster
}

// ClusterConfig is everything scoped to the cluster the runs execute in.
type ClusterConfig struct {
	namespace     string
	domain        string
	database      string
	secretsPrefix string
	queue         *QueueConfig
	workspaces    *WorkspacesConfig
	engines       *EnginesConfig
	sidecar       *SidecarConfig
	limits        *LimitsConfig
	sessions      *SessionsConfig
	dask          *DaskConfig
}

// k8s namespace where run workloads are deployed.
func (c *ClusterConfig) Namespace() string {
	return c.namespace
}

// k8s cluster domain. default = "cluster.local"
func (c *ClusterConfig) Domain() string {
	return c.domain
}

// Connection string for database.
func (c *ClusterConfig) Database() string {
	return c.database
}

// SecretsPrefix + owner id names the per-owner k8s Secret holding
// user credentials.
func (c *ClusterConfig) SecretsPrefix() string {
	return c.secretsPrefix
}

func (c *ClusterConfig) Queue() *QueueConfig {
	return c.queue
}

func (c *ClusterConfig) Workspaces() *WorkspacesConfig {
	return c.workspaces
}

func (c *ClusterConfig) Engines() *EnginesConfig {
	return c.engines
}

func (c *ClusterConfig) Sidecar() *SidecarConfig {
	return c.sidecar
}

func (c *ClusterConfig) Limits() *LimitsConfig {
	return c.limits
}

func (c *ClusterConfig) Sessions() *SessionsConfig {
	return c.sessions
}

func (c *ClusterConfig) Dask() *DaskConfig {
	return c.dask
}

// QueueConfig locates the run-status message queue.
type QueueConfig struct {
	url      string
	name     string
	prefetch int
}

func (q *QueueConfig) URL() string {
	return q.url
}

// Queue name. default = "run-status"
func (q *QueueConfig) Name() string {
	return q.name
}

// Ceiling of unacknowledged in-flight deliveries. default = 10
func (q *QueueConfig) Prefetch() int {
	return q.prefetch
}

// WorkspacesConfig describes where run workspaces live.
type WorkspacesConfig struct {
	root           string
	volumeName     string
	storageBackend string
}

// Absolute host path under which each run gets its directory.
func (w *WorkspacesConfig) Root() string {
	return w.root
}

// Name of the k8s volume carrying the workspace root.
func (w *WorkspacesConfig) VolumeName() string {
	return w.volumeName
}

// Storage backend label passed to the engines. default = "local"
func (w *WorkspacesConfig) StorageBackend() string {
	return w.storageBackend
}

// EnginesConfig is the static engine-image table. The set of engines
// is closed; unknown kinds are an error at the call site, not a no-op.
type EnginesConfig struct {
	cwl       string
	yadage    string
	serial    string
	snakemake string

	debug           bool
	debugSourcePath string
}

// Image returns the engine image for the given kind.
func (e *EnginesConfig) Image(kind domain.EngineKind) (string, error) {
	switch kind {
	case domain.EngineCWL:
		return e.cwl, nil
	case domain.EngineYadage:
		return e.yadage, nil
	case domain.EngineSerial:
		return e.serial, nil
	case domain.EngineSnakemake:
		return e.snakemake, nil
	default:
		return "", domain.NewErrMissing("engine image for", kind.String())
	}
}

// Debug turns on development-mode additions: extra env on the engine
// containers and a source-code volume mount.
func (e *EnginesConfig) Debug() bool {
	return e.debug
}

// Host path of the source tree mounted into engines under debug.
func (e *EnginesConfig) DebugSourcePath() string {
	return e.debugSourcePath
}

// DebugEnv is the extra environment injected when Debug is set.
// Assembled once at seal, empty otherwise.
func (e *EnginesConfig) DebugEnv() map[string]string {
	if !e.debug {
		return map[string]string{}
	}
	return map[string]string{
		"DEBUG":             "1",
		"COMMAND_LOG_LEVEL": "debug",
	}
}

// SidecarConfig describes the job-controller sidecar container.
type SidecarConfig struct {
	image              string
	serviceAccount     string
	port               int32
	gracePeriodSeconds int64
}

func (s *SidecarConfig) Image() string {
	return s.image
}

func (s *SidecarConfig) ServiceAccount() string {
	return s.serviceAccount
}

// Port the sidecar serves its job API on.
func (s *SidecarConfig) Port() int32 {
	return s.port
}

// Grace period given to the sidecar's shutdown hook before pod
// termination, so it can stop child jobs cleanly.
func (s *SidecarConfig) GracePeriodSeconds() int64 {
	return s.gracePeriodSeconds
}

// LimitsConfig carries per-user resource ceilings.
type LimitsConfig struct {
	memory         resource.Quantity
	timeoutSeconds int64
}

func (l *LimitsConfig) Memory() resource.Quantity {
	return l.memory
}

func (l *LimitsConfig) TimeoutSeconds() int64 {
	return l.timeoutSeconds
}

// SessionsConfig configures interactive sessions.
type SessionsConfig struct {
	host    string
	signKey string
	jupyter *SessionTypeConfig
}

// Host of the ingress exposing session access paths.
func (s *SessionsConfig) Host() string {
	return s.host
}

// HS256 key signing session access tokens.
func (s *SessionsConfig) SignKey() string {
	return s.signKey
}

func (s *SessionsConfig) Jupyter() *SessionTypeConfig {
	return s.jupyter
}

// SessionTypeConfig is the allow-list policy for one session kind.
type SessionTypeConfig struct {
	image             string
	recommendedImages []string
	allowCustomImages bool
}

// Image used when the caller does not name one.
func (s *SessionTypeConfig) Image() string {
	return s.image
}

// RecommendedImages is the administrator allow-list checked when the
// caller names an image.
func (s *SessionTypeConfig) RecommendedImages() []string {
	return s.recommendedImages
}

// AllowCustomImages skips the allow-list check entirely.
func (s *SessionTypeConfig) AllowCustomImages() bool {
	return s.allowCustomImages
}

// DaskConfig configures the per-run secondary compute clusters.
type DaskConfig struct {
	templatePath  string
	dashboardHost string
	nodeSelector  map[string]string
	kerberosImage string
	vomsImage     string
	rucioImage    string
}

// Path of the cluster custom-resource YAML template.
func (d *DaskConfig) TemplatePath() string {
	return d.templatePath
}

// Host of the ingress exposing cluster dashboards.
func (d *DaskConfig) DashboardHost() string {
	return d.dashboardHost
}

// Node selector applied to workers, if any.
func (d *DaskConfig) NodeSelector() map[string]string {
	return d.nodeSelector
}

// Init container images writing credentials to the shared cache volume.
func (d *DaskConfig) KerberosImage() string {
	return d.kerberosImage
}

func (d *DaskConfig) VomsImage() string {
	return d.vomsImage
}

func (d *DaskConfig) RucioImage() string {
	return d.rucioImage
}
