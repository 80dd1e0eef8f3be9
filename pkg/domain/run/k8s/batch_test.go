package k8s_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	k8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	"github.com/skein-run/skein/pkg/utils/slices"
	"github.com/skein-run/skein/pkg/utils/try"
	kubecore "k8s.io/api/core/v1"
)

func clusterConfig(mutate func(*configs.ServerConfigMarshall)) *configs.ClusterConfig {
	m := &configs.ServerConfigMarshall{
		Port: 8080,
		Cluster: &configs.ClusterConfigMarshall{
			Namespace: "skein-runtime",
			Database:  "postgres://skein:skein@db:5432/skein",
			Queue: &configs.QueueConfigMarshall{
				URL: "amqp://mq:5672",
			},
			Workspaces: &configs.WorkspacesConfigMarshall{
				Root:       "/var/skein/workspaces",
				VolumeName: "skein-shared",
			},
			Engines: &configs.EnginesConfigMarshall{
				CWL:       "skein/engine-cwl:v1",
				Yadage:    "skein/engine-yadage:v1",
				Serial:    "skein/engine-serial:v1",
				Snakemake: "skein/engine-snakemake:v1",
			},
			Sidecar: &configs.SidecarConfigMarshall{
				Image:              "skein/job-controller:v1",
				ServiceAccount:     "skein-runner",
				Port:               5000,
				GracePeriodSeconds: 60,
			},
			Limits: &configs.LimitsConfigMarshall{
				Memory: "4Gi",
			},
			Sessions: &configs.SessionsConfigMarshall{
				Host:    "skein.example.com",
				SignKey: "test-sign-key",
				Jupyter: &configs.SessionTypeConfigMarshall{
					Image: "skein/jupyter:v1",
				},
			},
		},
	}
	if mutate != nil {
		mutate(m)
	}
	return configs.TrySeal[*configs.ServerConfig](m).Cluster()
}

func exampleRun(needs domain.ResourceNeeds) domain.Run {
	return domain.Run{
		RunBody: domain.RunBody{
			Id:     "2c2f24e2-f66e-451a-91a2-17ca78205bbc",
			Owner:  "user-1000",
			Name:   "fitting",
			Status: domain.Created,
			Spec: domain.Specification{
				Engine:     domain.EngineSerial,
				Workflow:   map[string]any{"steps": []any{"step-1"}},
				Parameters: map[string]any{"events": float64(100)},
				Resources:  needs,
			},
			Workspace: "/var/skein/workspaces/runs/2c2f24e2",
		},
	}
}

func TestExecutable_Build_Shape(t *testing.T) {
	conf := clusterConfig(nil)
	run := exampleRun(domain.ResourceNeeds{})

	ex := try.To(k8s.NewExecutable(run, domain.StartOptions{}, conf)).OrFatal(t)
	job := try.To(ex.Build(conf)).OrFatal(t)

	if job.Name != k8s.BatchJobName(run.Id) {
		t.Errorf("job name: got %s, want %s", job.Name, k8s.BatchJobName(run.Id))
	}
	if job.Namespace != "skein-runtime" {
		t.Errorf("namespace: got %s", job.Namespace)
	}
	if job.Spec.BackoffLimit == nil || *job.Spec.BackoffLimit != 0 {
		t.Error("backoff limit should be zero")
	}

	pod := job.Spec.Template.Spec
	if pod.RestartPolicy != kubecore.RestartPolicyNever {
		t.Errorf("restart policy: got %s", pod.RestartPolicy)
	}
	if pod.ServiceAccountName != "skein-runner" {
		t.Errorf("service account: got %s", pod.ServiceAccountName)
	}
	if pod.TerminationGracePeriodSeconds == nil || *pod.TerminationGracePeriodSeconds != 60 {
		t.Error("termination grace period should come from the sidecar config")
	}

	names := slices.Map(pod.Containers, func(c kubecore.Container) string { return c.Name })
	want := []string{k8s.EngineContainerName, k8s.SidecarContainerName}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("containers: got %v, want %v", names, want)
	}

	sidecarEnv := map[string]string{}
	for _, e := range pod.Containers[1].Env {
		sidecarEnv[e.Name] = e.Value
	}
	if sidecarEnv["SKEIN_JOBS_MEMORY_LIMIT"] != "4Gi" {
		t.Errorf(
			"sidecar memory limit env: got %q, want 4Gi",
			sidecarEnv["SKEIN_JOBS_MEMORY_LIMIT"],
		)
	}

	for _, c := range pod.Containers {
		mounts := slices.Map(c.VolumeMounts, func(m kubecore.VolumeMount) string { return m.Name })
		for _, v := range []string{"skein-shared", "user-secrets"} {
			if !slices.Contains(mounts, v) {
				t.Errorf("container %s should mount %s: got %v", c.Name, v, mounts)
			}
		}
	}

	vols := slices.Map(pod.Volumes, func(v kubecore.Volume) string { return v.Name })
	for _, v := range []string{"skein-shared", "user-secrets"} {
		if !slices.Contains(vols, v) {
			t.Errorf("pod should carry volume %s: got %v", v, vols)
		}
	}
}

func TestExecutable_Build_EngineCommand(t *testing.T) {
	conf := clusterConfig(nil)
	run := exampleRun(domain.ResourceNeeds{})

	callTime := map[string]any{"events": float64(500)}
	ex := try.To(k8s.NewExecutable(
		run, domain.StartOptions{InputParameters: callTime}, conf,
	)).OrFatal(t)
	job := try.To(ex.Build(conf)).OrFatal(t)

	engine := job.Spec.Template.Spec.Containers[0]
	if engine.Image != "skein/engine-serial:v1" {
		t.Errorf("engine image: got %s", engine.Image)
	}
	if len(engine.Command) != 2 || engine.Command[0] != "/bin/bash" || engine.Command[1] != "-c" {
		t.Errorf("engine command: got %v", engine.Command)
	}
	if len(engine.Args) != 1 {
		t.Fatalf("engine args: got %v", engine.Args)
	}

	arg := engine.Args[0]
	if !strings.HasPrefix(arg, "run-serial-workflow ") {
		t.Errorf("command verb: got %s", arg)
	}
	for _, frag := range []string{
		"--run-id " + run.Id,
		"--workspace " + run.Workspace,
	} {
		if !strings.Contains(arg, frag) {
			t.Errorf("command should contain %q: got %s", frag, arg)
		}
	}

	wantParams := try.To(json.Marshal(map[string]any{"events": float64(500)})).OrFatal(t)
	b64 := base64.StdEncoding.EncodeToString(wantParams)
	if !strings.Contains(arg, "--parameters '"+b64+"'") {
		t.Errorf("call-time parameters should win and ride base64-encoded: got %s", arg)
	}
}

func TestExecutable_Build_ConditionalVolumes(t *testing.T) {
	type When struct {
		needs domain.ResourceNeeds
		debug bool
	}
	type Then struct {
		volumes   []string
		engineEnv []string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			conf := clusterConfig(func(m *configs.ServerConfigMarshall) {
				if when.debug {
					m.Cluster.Engines.Debug = true
					m.Cluster.Engines.DebugSourcePath = "/src/skein"
				}
			})
			run := exampleRun(when.needs)

			ex := try.To(k8s.NewExecutable(run, domain.StartOptions{}, conf)).OrFatal(t)
			job := try.To(ex.Build(conf)).OrFatal(t)
			pod := job.Spec.Template.Spec

			vols := slices.Map(pod.Volumes, func(v kubecore.Volume) string { return v.Name })
			for _, v := range then.volumes {
				if !slices.Contains(vols, v) {
					t.Errorf("pod should carry volume %s: got %v", v, vols)
				}
			}

			env := slices.Map(pod.Containers[0].Env, func(e kubecore.EnvVar) string { return e.Name })
			for _, e := range then.engineEnv {
				if !slices.Contains(env, e) {
					t.Errorf("engine should get env %s: got %v", e, env)
				}
			}
		}
	}

	t.Run("kerberos adds a credential cache and KRB5CCNAME", theory(
		When{needs: domain.ResourceNeeds{Kerberos: true}},
		Then{volumes: []string{"krb5-cache"}, engineEnv: []string{"KRB5CCNAME"}},
	))
	t.Run("voms proxy and rucio add their cache volumes", theory(
		When{needs: domain.ResourceNeeds{VomsProxy: true, Rucio: true}},
		Then{volumes: []string{"voms-cache", "rucio-cache"}},
	))
	t.Run("cvmfs repos mount read-only claims", theory(
		When{needs: domain.ResourceNeeds{CVMFSRepos: []string{"atlas.cern.ch"}}},
		Then{volumes: []string{k8s.CVMFSClaimName("atlas.cern.ch")}},
	))
	t.Run("debug mode mounts the source tree", theory(
		When{debug: true},
		Then{volumes: []string{"skein-code"}, engineEnv: []string{"DEBUG"}},
	))
}

func TestNewExecutable_RejectsUnknownEngine(t *testing.T) {
	conf := clusterConfig(nil)
	run := exampleRun(domain.ResourceNeeds{})
	run.Spec.Engine = domain.EngineKind("fortran")

	if _, err := k8s.NewExecutable(run, domain.StartOptions{}, conf); !errors.Is(err, domain.ErrMissing) {
		t.Errorf("unknown engine should be ErrMissing: got %v", err)
	}
}
