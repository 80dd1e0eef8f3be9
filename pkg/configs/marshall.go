package configs

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// TrySeal verifies a marshalled config and returns the immutable
// version.
//
// IT WILL PANIC if any misconfiguration is found.
//
// All types named `pkg/configs.XxxMarshall` are `Marshalled[*Xxx]`.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type ServerConfigMarshall struct {
	Port    int32                  `yaml:"port"`
	Cluster *ClusterConfigMarshall `yaml:"cluster"`
}

var _ Marshalled[*ServerConfig] = &ServerConfigMarshall{}

func (m *ServerConfigMarshall) trySeal(path string) *ServerConfig {
	return &ServerConfig{
		port:    required(m.Port, path+".port"),
		cluster: nonnil(m.Cluster, path+".cluster").trySeal(path + ".cluster"),
	}
}

// ClusterConfigMarshall is the mutable, yaml-facing version of
// ClusterConfig. Consider using the immutable version; you can get a
// ClusterConfig instance through TrySeal.
type ClusterConfigMarshall struct {
	Namespace     string                    `yaml:"namespace"`
	Domain        string                    `yaml:"domain,omitempty"`
	Database      string                    `yaml:"database"`
	SecretsPrefix string                    `yaml:"secretsPrefix,omitempty"`
	Queue         *QueueConfigMarshall      `yaml:"queue"`
	Workspaces    *WorkspacesConfigMarshall `yaml:"workspaces"`
	Engines       *EnginesConfigMarshall    `yaml:"engines"`
	Sidecar       *SidecarConfigMarshall    `yaml:"sidecar"`
	Limits        *LimitsConfigMarshall     `yaml:"limits"`
	Sessions      *SessionsConfigMarshall   `yaml:"sessions"`
	Dask          *DaskConfigMarshall       `yaml:"dask,omitempty"`
}

func (m *ClusterConfigMarshall) trySeal(path string) *ClusterConfig {
	domain := m.Domain
	if domain == "" {
		domain = "cluster.local"
	}
	secretsPrefix := m.SecretsPrefix
	if secretsPrefix == "" {
		secretsPrefix = "skein-user-secrets-"
	}

	var dask *DaskConfig
	if m.Dask != nil {
		dask = m.Dask.trySeal(path + ".dask")
	}

	return &ClusterConfig{
		namespace:     required(m.Namespace, path+".namespace"),
		domain:        domain,
		database:      required(m.Database, path+".database"),
		secretsPrefix: secretsPrefix,
		queue:         nonnil(m.Queue, path+".queue").trySeal(path + ".queue"),
		workspaces:    nonnil(m.Workspaces, path+".workspaces").trySeal(path + ".workspaces"),
		engines:       nonnil(m.Engines, path+".engines").trySeal(path + ".engines"),
		sidecar:       nonnil(m.Sidecar, path+".sidecar").trySeal(path + ".sidecar"),
		limits:        nonnil(m.Limits, path+".limits").trySeal(path + ".limits"),
		sessions:      nonnil(m.Sessions, path+".sessions").trySeal(path + ".sessions"),
		dask:          dask,
	}
}

type QueueConfigMarshall struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name,omitempty"`
	Prefetch int    `yaml:"prefetch,omitempty"`
}

func (m *QueueConfigMarshall) trySeal(path string) *QueueConfig {
	name := m.Name
	if name == "" {
		name = "run-status"
	}
	prefetch := m.Prefetch
	if prefetch == 0 {
		prefetch = 10
	}
	if prefetch < 0 {
		panic(path + ".prefetch must be positive")
	}
	return &QueueConfig{
		url:      required(m.URL, path+".url"),
		name:     name,
		prefetch: prefetch,
	}
}

type WorkspacesConfigMarshall struct {
	Root           string `yaml:"root"`
	VolumeName     string `yaml:"volumeName"`
	StorageBackend string `yaml:"storageBackend,omitempty"`
}

func (m *WorkspacesConfigMarshall) trySeal(path string) *WorkspacesConfig {
	backend := m.StorageBackend
	if backend == "" {
		backend = "local"
	}
	return &WorkspacesConfig{
		root:           required(m.Root, path+".root"),
		volumeName:     required(m.VolumeName, path+".volumeName"),
		storageBackend: backend,
	}
}

type EnginesConfigMarshall struct {
	CWL       string `yaml:"cwl"`
	Yadage    string `yaml:"yadage"`
	Serial    string `yaml:"serial"`
	Snakemake string `yaml:"snakemake"`

	Debug           bool   `yaml:"debug,omitempty"`
	DebugSourcePath string `yaml:"debugSourcePath,omitempty"`
}

func (m *EnginesConfigMarshall) trySeal(path string) *EnginesConfig {
	if m.Debug && m.DebugSourcePath == "" {
		panic(path + ".debugSourcePath is required when debug is set")
	}
	return &EnginesConfig{
		cwl:             required(m.CWL, path+".cwl"),
		yadage:          required(m.Yadage, path+".yadage"),
		serial:          required(m.Serial, path+".serial"),
		snakemake:       required(m.Snakemake, path+".snakemake"),
		debug:           m.Debug,
		debugSourcePath: m.DebugSourcePath,
	}
}

type SidecarConfigMarshall struct {
	Image              string `yaml:"image"`
	ServiceAccount     string `yaml:"serviceAccount"`
	Port               int32  `yaml:"port,omitempty"`
	GracePeriodSeconds int64  `yaml:"gracePeriodSeconds,omitempty"`
}

func (m *SidecarConfigMarshall) trySeal(path string) *SidecarConfig {
	port := m.Port
	if port == 0 {
		port = 5000
	}
	grace := m.GracePeriodSeconds
	if grace == 0 {
		grace = 120
	}
	return &SidecarConfig{
		image:              required(m.Image, path+".image"),
		serviceAccount:     required(m.ServiceAccount, path+".serviceAccount"),
		port:               port,
		gracePeriodSeconds: grace,
	}
}

type LimitsConfigMarshall struct {
	Memory         string `yaml:"memory"`
	TimeoutSeconds int64  `yaml:"timeoutSeconds,omitempty"`
}

func (m *LimitsConfigMarshall) trySeal(path string) *LimitsConfig {
	memory, err := resource.ParseQuantity(required(m.Memory, path+".memory"))
	if err != nil {
		panic(fmt.Errorf("%s.memory can not be parsed: %w", path, err))
	}
	timeout := m.TimeoutSeconds
	if timeout == 0 {
		timeout = 7 * 24 * 60 * 60
	}
	return &LimitsConfig{
		memory:         memory,
		timeoutSeconds: timeout,
	}
}

type SessionsConfigMarshall struct {
	Host    string                      `yaml:"host"`
	SignKey string                      `yaml:"signKey"`
	Jupyter *SessionTypeConfigMarshall  `yaml:"jupyter"`
}

func (m *SessionsConfigMarshall) trySeal(path string) *SessionsConfig {
	return &SessionsConfig{
		host:    required(m.Host, path+".host"),
		signKey: required(m.SignKey, path+".signKey"),
		jupyter: nonnil(m.Jupyter, path+".jupyter").trySeal(path + ".jupyter"),
	}
}

type SessionTypeConfigMarshall struct {
	Image             string   `yaml:"image"`
	RecommendedImages []string `yaml:"recommendedImages,omitempty"`
	AllowCustomImages bool     `yaml:"allowCustomImages,omitempty"`
}

func (m *SessionTypeConfigMarshall) trySeal(path string) *SessionTypeConfig {
	return &SessionTypeConfig{
		image:             required(m.Image, path+".image"),
		recommendedImages: m.RecommendedImages,
		allowCustomImages: m.AllowCustomImages,
	}
}

type DaskConfigMarshall struct {
	TemplatePath  string            `yaml:"templatePath"`
	DashboardHost string            `yaml:"dashboardHost"`
	NodeSelector  map[string]string `yaml:"nodeSelector,omitempty"`
	KerberosImage string            `yaml:"kerberosImage,omitempty"`
	VomsImage     string            `yaml:"vomsImage,omitempty"`
	RucioImage    string            `yaml:"rucioImage,omitempty"`
}

func (m *DaskConfigMarshall) trySeal(path string) *DaskConfig {
	return &DaskConfig{
		templatePath:  required(m.TemplatePath, path+".templatePath"),
		dashboardHost: required(m.DashboardHost, path+".dashboardHost"),
		nodeSelector:  m.NodeSelector,
		kerberosImage: m.KerberosImage,
		vomsImage:     m.VomsImage,
		rucioImage:    m.RucioImage,
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
