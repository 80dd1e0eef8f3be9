package domain

import "fmt"

// ServiceStatus is the lifecycle of an auxiliary service attached to a
// run, like the secondary-cluster dashboard endpoint.
type ServiceStatus string

const (
	ServiceCreated ServiceStatus = "created"
	ServiceRunning ServiceStatus = "running"
	ServiceDeleted ServiceStatus = "deleted"
)

func (ss ServiceStatus) String() string {
	return string(ss)
}

func AsServiceStatus(status string) (ServiceStatus, error) {
	switch status {
	case string(ServiceCreated):
		return ServiceCreated, nil
	case string(ServiceRunning):
		return ServiceRunning, nil
	case string(ServiceDeleted):
		return ServiceDeleted, nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a service status", ErrValidation, status)
	}
}

// ServiceKind names what an auxiliary service is.
type ServiceKind string

const (
	// The secondary compute cluster's dashboard endpoint.
	ServiceClusterDashboard ServiceKind = "cluster-dashboard"
)

// Service is an auxiliary service row attached to a run.
type Service struct {
	Name   string
	Kind   ServiceKind
	Status ServiceStatus
	RunId  string
}

func (s Service) Equal(o Service) bool {
	return s == o
}
