package k8s

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	ptr "github.com/skein-run/skein/pkg/utils/pointer"
	"github.com/skein-run/skein/pkg/utils/slices"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// Container names inside the batch job pod.
	EngineContainerName  = "workflow-engine"
	SidecarContainerName = "job-controller"

	workspaceMountPath = "/var/skein/workspaces"
	secretsMountPath   = "/etc/skein/secrets"
	krb5MountPath      = "/krb5_cache"
	vomsMountPath      = "/vomsproxy_cache"
	rucioMountPath     = "/rucio_cache"
	cvmfsMountRoot     = "/cvmfs"
	debugSourcePath    = "/code"
)

// BatchJobName derives the main batch job's object name from a run id.
// Deterministic, so stop and log fetch can find the job without
// storing the name.
func BatchJobName(runId string) string {
	return "skein-run-batch-" + runId
}

// CVMFSClaimName names the persistent volume claim backing one
// read-only CVMFS repository mount.
func CVMFSClaimName(repo string) string {
	return "skein-cvmfs-" + strings.ReplaceAll(repo, ".", "-")
}

// RunLabels select every pod belonging to a run.
func RunLabels(runId string) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":      "run-batch",
		"app.kubernetes.io/component": "run",
		"skein.run/run":               runId,
	}
}

// Executable is everything the batch job builder needs, resolved
// ahead of time. Building is pure: no orchestrator or store calls
// happen here.
type Executable struct {
	RunBody domain.RunBody

	// Merged at call time: spec defaults, stored values, then the
	// start request's overrides.
	InputParameters    map[string]any
	OperationalOptions map[string]any

	// Resolved from the engine image table. Unknown kinds are
	// rejected in NewExecutable, not here.
	EngineImage string

	// Per-owner secret. Exposed to both containers as env and as a
	// file volume.
	SecretName string
}

// NewExecutable resolves a run into an Executable, or refuses when the
// specification names an engine the image table does not know.
func NewExecutable(r domain.Run, opts domain.StartOptions, conf *configs.ClusterConfig) (*Executable, error) {
	image, err := conf.Engines().Image(r.Spec.Engine)
	if err != nil {
		return nil, err
	}

	return &Executable{
		RunBody:            r.RunBody,
		InputParameters:    r.MergedInputParameters(opts.InputParameters),
		OperationalOptions: r.MergedOperationalOptions(opts.OperationalOptions),
		EngineImage:        image,
		SecretName:         conf.SecretsPrefix() + r.Owner,
	}, nil
}

// engineCommand renders the fixed per-engine command line. The
// specification and parameter documents ride as base64 so they
// survive shell quoting.
func (ex *Executable) engineCommand() (string, error) {
	spec, err := encodeArg(ex.RunBody.Spec)
	if err != nil {
		return "", err
	}
	params, err := encodeArg(ex.InputParameters)
	if err != nil {
		return "", err
	}
	options, err := encodeArg(ex.OperationalOptions)
	if err != nil {
		return "", err
	}

	var verb string
	switch ex.RunBody.Spec.Engine {
	case domain.EngineCWL:
		verb = "run-cwl-workflow"
	case domain.EngineYadage:
		verb = "run-yadage-workflow"
	case domain.EngineSerial:
		verb = "run-serial-workflow"
	case domain.EngineSnakemake:
		verb = "run-snakemake-workflow"
	default:
		return "", domain.NewErrMissing("engine command for", ex.RunBody.Spec.Engine.String())
	}

	return fmt.Sprintf(
		"%s --run-id %s --workspace %s --workflow-json '%s' --parameters '%s' --operational-options '%s'",
		verb, ex.RunBody.Id, ex.RunBody.Workspace, spec, params, options,
	), nil
}

func encodeArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Build composes the batch job object: the engine container and the
// job-controller sidecar sharing the workspace and secrets volumes,
// plus the conditional credential/cache/debug volumes.
func (ex *Executable) Build(conf *configs.ClusterConfig) (*kubebatch.Job, error) {
	command, err := ex.engineCommand()
	if err != nil {
		return nil, err
	}

	needs := ex.RunBody.Spec.Resources

	volumes := []kubecore.Volume{
		{
			Name: conf.Workspaces().VolumeName(),
			VolumeSource: kubecore.VolumeSource{
				PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
					ClaimName: conf.Workspaces().VolumeName(),
				},
			},
		},
		{
			Name: "user-secrets",
			VolumeSource: kubecore.VolumeSource{
				Secret: &kubecore.SecretVolumeSource{SecretName: ex.SecretName},
			},
		},
	}
	sharedMounts := []kubecore.VolumeMount{
		{Name: conf.Workspaces().VolumeName(), MountPath: workspaceMountPath},
		{Name: "user-secrets", MountPath: secretsMountPath, ReadOnly: true},
	}

	secretEnv := []kubecore.EnvFromSource{
		{
			SecretRef: &kubecore.SecretEnvSource{
				LocalObjectReference: kubecore.LocalObjectReference{Name: ex.SecretName},
			},
		},
	}

	engineEnv := append(
		ex.commonEnv(conf),
		kubecore.EnvVar{Name: "SKEIN_MOUNT_CVMFS", Value: strings.Join(needs.CVMFSRepos, ",")},
	)
	engineMounts := append([]kubecore.VolumeMount{}, sharedMounts...)

	if needs.Kerberos {
		volumes = append(volumes, kubecore.Volume{
			Name:         "krb5-cache",
			VolumeSource: kubecore.VolumeSource{EmptyDir: &kubecore.EmptyDirVolumeSource{}},
		})
		engineMounts = append(engineMounts, kubecore.VolumeMount{
			Name: "krb5-cache", MountPath: krb5MountPath,
		})
		engineEnv = append(engineEnv, kubecore.EnvVar{
			Name: "KRB5CCNAME", Value: krb5MountPath + "/krb5cc",
		})
	}
	if needs.VomsProxy {
		volumes = append(volumes, kubecore.Volume{
			Name:         "voms-cache",
			VolumeSource: kubecore.VolumeSource{EmptyDir: &kubecore.EmptyDirVolumeSource{}},
		})
		engineMounts = append(engineMounts, kubecore.VolumeMount{
			Name: "voms-cache", MountPath: vomsMountPath,
		})
	}
	if needs.Rucio {
		volumes = append(volumes, kubecore.Volume{
			Name:         "rucio-cache",
			VolumeSource: kubecore.VolumeSource{EmptyDir: &kubecore.EmptyDirVolumeSource{}},
		})
		engineMounts = append(engineMounts, kubecore.VolumeMount{
			Name: "rucio-cache", MountPath: rucioMountPath,
		})
	}
	for _, repo := range needs.CVMFSRepos {
		name := CVMFSClaimName(repo)
		volumes = append(volumes, kubecore.Volume{
			Name: name,
			VolumeSource: kubecore.VolumeSource{
				PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
					ClaimName: name,
					ReadOnly:  true,
				},
			},
		})
		engineMounts = append(engineMounts, kubecore.VolumeMount{
			Name: name, MountPath: cvmfsMountRoot + "/" + repo, ReadOnly: true,
		})
	}

	memoryLimit := conf.Limits().Memory()
	sidecarEnv := append(
		ex.commonEnv(conf),
		kubecore.EnvVar{Name: "SKEIN_DATABASE_URI", Value: conf.Database()},
		kubecore.EnvVar{Name: "SKEIN_JOBS_MEMORY_LIMIT", Value: memoryLimit.String()},
		kubecore.EnvVar{
			Name:  "SKEIN_JOBS_TIMEOUT_SECONDS",
			Value: strconv.FormatInt(conf.Limits().TimeoutSeconds(), 10),
		},
	)
	sidecarMounts := append([]kubecore.VolumeMount{}, sharedMounts...)

	containers := []kubecore.Container{
		{
			Name:            EngineContainerName,
			Image:           ex.EngineImage,
			ImagePullPolicy: kubecore.PullIfNotPresent,
			Command:         []string{"/bin/bash", "-c"},
			Args:            []string{command},
			Env:             engineEnv,
			EnvFrom:         secretEnv,
			VolumeMounts:    engineMounts,
		},
		{
			Name:            SidecarContainerName,
			Image:           conf.Sidecar().Image(),
			ImagePullPolicy: kubecore.PullIfNotPresent,
			Env:             sidecarEnv,
			EnvFrom:         secretEnv,
			VolumeMounts:    sidecarMounts,
			Ports: []kubecore.ContainerPort{
				{ContainerPort: conf.Sidecar().Port()},
			},
		},
	}

	if conf.Engines().Debug() {
		volumes = append(volumes, kubecore.Volume{
			Name: "skein-code",
			VolumeSource: kubecore.VolumeSource{
				HostPath: &kubecore.HostPathVolumeSource{Path: conf.Engines().DebugSourcePath()},
			},
		})
		for i := range containers {
			subPath := "skein-" + containers[i].Name
			if containers[i].Name == EngineContainerName {
				subPath += "-" + ex.RunBody.Spec.Engine.String()
			}
			containers[i].VolumeMounts = append(containers[i].VolumeMounts, kubecore.VolumeMount{
				Name:      "skein-code",
				MountPath: debugSourcePath,
				SubPath:   subPath,
			})
		}
	}

	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      BatchJobName(ex.RunBody.Id),
			Namespace: conf.Namespace(),
			Labels:    RunLabels(ex.RunBody.Id),
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit: ptr.Ref[int32](0),
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{
					Labels: RunLabels(ex.RunBody.Id),
				},
				Spec: kubecore.PodSpec{
					RestartPolicy:                 kubecore.RestartPolicyNever,
					ServiceAccountName:            conf.Sidecar().ServiceAccount(),
					TerminationGracePeriodSeconds: ptr.Ref(conf.Sidecar().GracePeriodSeconds()),
					Containers:                    containers,
					Volumes:                       volumes,
				},
			},
		},
	}, nil
}

// commonEnv is shared between the engine and the sidecar. Debug env is
// assembled at config seal and empty in production.
func (ex *Executable) commonEnv(conf *configs.ClusterConfig) []kubecore.EnvVar {
	env := []kubecore.EnvVar{
		{Name: "SKEIN_USER_ID", Value: ex.RunBody.Owner},
		{Name: "SKEIN_RUNTIME_NAMESPACE", Value: conf.Namespace()},
		{Name: "SKEIN_STORAGE_BACKEND", Value: conf.Workspaces().StorageBackend()},
		{Name: "SKEIN_JOB_CONTROLLER_HOST", Value: "localhost"},
		{
			Name:  "SKEIN_JOB_CONTROLLER_PORT",
			Value: strconv.FormatInt(int64(conf.Sidecar().Port()), 10),
		},
	}

	debug := conf.Engines().DebugEnv()
	names := slices.KeysOf(debug)
	sort.Strings(names)
	for _, name := range names {
		env = append(env, kubecore.EnvVar{Name: name, Value: debug[name]})
	}
	return env
}
