// Package session manages per-run interactive sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	sessiondb "github.com/skein-run/skein/pkg/domain/session/db"
	sessionk8s "github.com/skein-run/skein/pkg/domain/session/k8s"
	"github.com/skein-run/skein/pkg/workloads/k8s"
	"github.com/skein-run/skein/pkg/workloads/provision"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type Interface interface {
	// Open provisions a session of the given kind over the run's
	// workspace and returns its access path. Empty image means the
	// kind's default; a named image is checked against the
	// allow-list. Partial failures are compensated before the error
	// returns, and the session row is persisted only after every
	// cluster object succeeded.
	Open(ctx context.Context, r domain.Run, kind domain.SessionKind, image string) (string, error)

	// Close removes the run's live session. Deleting the ingress
	// cascades to the service and deployment through their owner
	// references.
	Close(ctx context.Context, runId string) error
}

type impl struct {
	conf     *configs.ClusterConfig
	cluster  k8s.Client
	sessions sessiondb.Interface
}

func New(conf *configs.ClusterConfig, cluster k8s.Client, sessions sessiondb.Interface) Interface {
	return &impl{conf: conf, cluster: cluster, sessions: sessions}
}

func (i *impl) Open(ctx context.Context, r domain.Run, kind domain.SessionKind, image string) (string, error) {
	if r.Session != nil {
		return "", fmt.Errorf(
			"%w: run %s already has a session at %s", domain.ErrSession, r.Id, r.Session.Path,
		)
	}

	policy, err := i.policyFor(kind)
	if err != nil {
		return "", err
	}
	if image == "" {
		image = policy.Image()
	} else if err := validateImage(image, policy); err != nil {
		return "", err
	}

	token, err := accessToken(r.RunBody, i.conf.Sessions().SignKey())
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSession, err)
	}

	b := &sessionk8s.Blueprint{
		RunBody: r.RunBody,
		Kind:    kind,
		Image:   image,
		Token:   token,
	}

	namespace := i.conf.Namespace()
	name := sessionk8s.SessionName(r.Id)

	// The ingress goes first; the objects after it carry its owner
	// reference so orchestrator-side garbage collection cascades.
	var owner kubeapimeta.OwnerReference

	plan := &provision.Plan{}
	plan.Add(provision.Step{
		Name: "session ingress " + name,
		Create: func(ctx context.Context) error {
			created, err := i.cluster.CreateIngress(ctx, namespace, b.BuildIngress(i.conf))
			if err != nil {
				return err
			}
			owner = sessionk8s.OwnedBy(created)
			return nil
		},
		Delete: func(ctx context.Context) error {
			return i.cluster.DeleteIngress(ctx, namespace, name)
		},
	})
	plan.Add(provision.Step{
		Name: "session service " + name,
		Create: func(ctx context.Context) error {
			_, err := i.cluster.CreateService(ctx, namespace, b.BuildService(owner))
			return err
		},
		Delete: func(ctx context.Context) error {
			return i.cluster.DeleteService(ctx, namespace, name)
		},
	})
	plan.Add(provision.Step{
		Name: "session deployment " + name,
		Create: func(ctx context.Context) error {
			depl, err := b.BuildDeployment(i.conf, owner)
			if err != nil {
				return err
			}
			_, err = i.cluster.CreateDeployment(ctx, namespace, depl)
			return err
		},
		Delete: func(ctx context.Context) error {
			return i.cluster.DeleteDeployment(ctx, namespace, name)
		},
	})

	rollback, err := plan.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSession, err)
	}

	path := sessionk8s.AccessPath(r.Id)
	if err := i.sessions.Open(ctx, domain.InteractiveSession{
		Id:     uuid.NewString(),
		RunId:  r.Id,
		Name:   name,
		Kind:   kind,
		Path:   path,
		Status: domain.ServiceCreated,
	}); err != nil {
		cause := fmt.Errorf("%w: %w", domain.ErrSession, err)
		if rerr := rollback(ctx); rerr != nil {
			return "", errors.Join(cause, rerr)
		}
		return "", cause
	}

	return path, nil
}

func (i *impl) Close(ctx context.Context, runId string) error {
	s, err := i.sessions.Close(ctx, runId)
	if err != nil {
		if errors.Is(err, domain.ErrMissing) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrSession, err)
	}

	if err := i.cluster.DeleteIngress(ctx, i.conf.Namespace(), s.Name); err != nil &&
		!kubeapierr.IsNotFound(err) {
		return fmt.Errorf("%w: %w", domain.ErrSession, err)
	}
	return nil
}

// policyFor is the closed dispatch from session kind to allow-list
// policy. Kinds the configuration does not enable are rejected.
func (i *impl) policyFor(kind domain.SessionKind) (*configs.SessionTypeConfig, error) {
	switch kind {
	case domain.SessionJupyter:
		if p := i.conf.Sessions().Jupyter(); p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf(
		"%w: interactive sessions of type '%s' are not enabled", domain.ErrValidation, kind,
	)
}

// accessToken mints the HS256 token guarding the session endpoint.
func accessToken(r domain.RunBody, signKey string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": r.Owner,
		"run": r.Id,
		"iat": time.Now().Unix(),
	}).SignedString([]byte(signKey))
}
