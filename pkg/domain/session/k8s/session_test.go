package k8s_test

import (
	"errors"
	"testing"

	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	k8s "github.com/skein-run/skein/pkg/domain/session/k8s"
	"github.com/skein-run/skein/pkg/utils/slices"
	"github.com/skein-run/skein/pkg/utils/try"
	kubecore "k8s.io/api/core/v1"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

func sessionConfig() *configs.ClusterConfig {
	m := &configs.ServerConfigMarshall{
		Port: 8080,
		Cluster: &configs.ClusterConfigMarshall{
			Namespace: "skein-runtime",
			Database:  "postgres://skein:skein@db:5432/skein",
			Queue:     &configs.QueueConfigMarshall{URL: "amqp://mq:5672"},
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
				Image:          "skein/job-controller:v1",
				ServiceAccount: "skein-runner",
			},
			Limits: &configs.LimitsConfigMarshall{Memory: "4Gi"},
			Sessions: &configs.SessionsConfigMarshall{
				Host:    "skein.example.com",
				SignKey: "test-sign-key",
				Jupyter: &configs.SessionTypeConfigMarshall{Image: "skein/jupyter:v1"},
			},
		},
	}
	return configs.TrySeal[*configs.ServerConfig](m).Cluster()
}

func sessionBlueprint(repos []string) *k8s.Blueprint {
	return &k8s.Blueprint{
		RunBody: domain.RunBody{
			Id:        "0f8b7f6e-9a6e-4f8f-b8db-0e2f7a9be111",
			Owner:     "user-1000",
			Name:      "fitting",
			Status:    domain.Running,
			Workspace: "/var/skein/workspaces/user-1000/0f8b7f6e",
			Spec: domain.Specification{
				Engine:    domain.EngineSerial,
				Resources: domain.ResourceNeeds{CVMFSRepos: repos},
			},
		},
		Kind:  domain.SessionJupyter,
		Image: "skein/jupyter:v1",
		Token: "session-token",
	}
}

func TestBlueprint_BuildIngress(t *testing.T) {
	conf := sessionConfig()
	b := sessionBlueprint(nil)

	ing := b.BuildIngress(conf)

	if ing.Name != k8s.SessionName(b.RunBody.Id) {
		t.Errorf("ingress name: got %s", ing.Name)
	}
	rules := ing.Spec.Rules
	if len(rules) != 1 || rules[0].Host != "skein.example.com" {
		t.Fatalf("rules: got %+v", rules)
	}
	paths := rules[0].HTTP.Paths
	if len(paths) != 1 {
		t.Fatalf("paths: got %+v", paths)
	}
	if paths[0].Path != "/"+b.RunBody.Id {
		t.Errorf("access path: got %s", paths[0].Path)
	}
	backend := paths[0].Backend.Service
	if backend == nil || backend.Name != ing.Name || backend.Port.Number != k8s.ServicePort {
		t.Errorf("backend: got %+v", backend)
	}
}

func TestBlueprint_BuildService(t *testing.T) {
	b := sessionBlueprint(nil)
	owner := kubeapimeta.OwnerReference{
		APIVersion: "networking.k8s.io/v1", Kind: "Ingress",
		Name: k8s.SessionName(b.RunBody.Id), UID: types.UID("uid-1"),
	}

	svc := b.BuildService(owner)

	if svc.Spec.Type != kubecore.ServiceTypeNodePort {
		t.Errorf("service type: got %s", svc.Spec.Type)
	}
	if len(svc.Spec.Ports) != 1 || svc.Spec.Ports[0].Port != k8s.ServicePort {
		t.Errorf("ports: got %+v", svc.Spec.Ports)
	}
	if got := svc.Spec.Selector["app"]; got != svc.Name {
		t.Errorf("selector: got %s", got)
	}
	if len(svc.OwnerReferences) != 1 || svc.OwnerReferences[0].UID != types.UID("uid-1") {
		t.Errorf("owner references: got %+v", svc.OwnerReferences)
	}
}

func TestBlueprint_BuildDeployment(t *testing.T) {
	conf := sessionConfig()
	b := sessionBlueprint([]string{"atlas.cern.ch"})
	owner := kubeapimeta.OwnerReference{
		APIVersion: "networking.k8s.io/v1", Kind: "Ingress",
		Name: k8s.SessionName(b.RunBody.Id), UID: types.UID("uid-1"),
	}

	depl := try.To(b.BuildDeployment(conf, owner)).OrFatal(t)

	if depl.Spec.Replicas == nil || *depl.Spec.Replicas != 1 {
		t.Error("replicas should be one")
	}
	if len(depl.OwnerReferences) != 1 || depl.OwnerReferences[0].UID != types.UID("uid-1") {
		t.Errorf("owner references: got %+v", depl.OwnerReferences)
	}

	pod := depl.Spec.Template.Spec
	if len(pod.Containers) != 1 {
		t.Fatalf("containers: got %+v", pod.Containers)
	}
	c := pod.Containers[0]
	if c.Image != "skein/jupyter:v1" {
		t.Errorf("image: got %s", c.Image)
	}
	if len(c.Command) != 1 || c.Command[0] != "start-notebook.sh" {
		t.Errorf("command: got %v", c.Command)
	}
	for _, want := range []string{
		"--NotebookApp.base_url='/" + b.RunBody.Id + "'",
		"--notebook-dir='" + b.RunBody.Workspace + "'",
		"--NotebookApp.token='session-token'",
	} {
		if !slices.Contains(c.Args, want) {
			t.Errorf("args should contain %s: got %v", want, c.Args)
		}
	}

	env := map[string]string{}
	for _, e := range c.Env {
		env[e.Name] = e.Value
	}
	if env["NB_GID"] != "0" || env["NB_UMASK"] != "0002" {
		t.Errorf("env: got %v", env)
	}
	if c.SecurityContext == nil || c.SecurityContext.RunAsUser == nil || *c.SecurityContext.RunAsUser != 0 {
		t.Error("session container should run as root")
	}

	mounts := slices.Map(c.VolumeMounts, func(m kubecore.VolumeMount) string { return m.MountPath })
	for _, want := range []string{"/var/skein/workspaces", "/cvmfs/atlas.cern.ch"} {
		if !slices.Contains(mounts, want) {
			t.Errorf("mounts should contain %s: got %v", want, mounts)
		}
	}
	for _, m := range c.VolumeMounts {
		if m.MountPath == "/cvmfs/atlas.cern.ch" && !m.ReadOnly {
			t.Error("cvmfs mounts should be read only")
		}
	}
}

func TestBlueprint_BuildDeployment_RejectsUnknownKind(t *testing.T) {
	conf := sessionConfig()
	b := sessionBlueprint(nil)
	b.Kind = domain.SessionKind("terminal")

	if _, err := b.BuildDeployment(conf, kubeapimeta.OwnerReference{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown session kind should be a validation error: got %v", err)
	}
}
