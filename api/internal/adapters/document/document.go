// Package document reads and writes Domain and Host trees as YAML, JSON or
// JSONC documents.
package document

import "github.com/irgordon/karidc/api/internal/core/domain"

// DomainDoc is the serialized form of a domain tree.
type DomainDoc struct {
	Extensions          []string           `json:"extensions,omitempty" yaml:"extensions,omitempty" validate:"dive,required"`
	Properties          map[string]*string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Profiles            []ProfileDoc       `json:"profiles,omitempty" yaml:"profiles,omitempty" validate:"dive"`
	Interfaces          []domain.Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty" validate:"dive"`
	SocketBindingGroups []BindingGroupDoc  `json:"socketBindingGroups,omitempty" yaml:"socket-binding-groups,omitempty" validate:"dive"`
	Deployments         []DeploymentDoc    `json:"deployments,omitempty" yaml:"deployments,omitempty" validate:"dive"`
	ServerGroups        []ServerGroupDoc   `json:"serverGroups,omitempty" yaml:"server-groups,omitempty" validate:"dive"`
}

type ProfileDoc struct {
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Includes   []string       `json:"includes,omitempty" yaml:"includes,omitempty"`
	Subsystems []SubsystemDoc `json:"subsystems,omitempty" yaml:"subsystems,omitempty" validate:"dive"`
}

type SubsystemDoc struct {
	Namespace  string            `json:"namespace" yaml:"namespace" validate:"required"`
	Name       string            `json:"name" yaml:"name" validate:"required"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

type BindingGroupDoc struct {
	Name             string                 `json:"name" yaml:"name" validate:"required"`
	DefaultInterface string                 `json:"defaultInterface" yaml:"default-interface" validate:"required"`
	Includes         []string               `json:"includes,omitempty" yaml:"includes,omitempty"`
	Bindings         []domain.SocketBinding `json:"bindings,omitempty" yaml:"bindings,omitempty" validate:"dive"`
}

type DeploymentDoc struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Hash        string `json:"hash" yaml:"hash" validate:"required,hexadecimal,len=64"`
	RuntimeName string `json:"runtimeName" yaml:"runtime-name" validate:"required"`
}

type GroupDeploymentDoc struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	RuntimeName string `json:"runtimeName" yaml:"runtime-name" validate:"required"`
	Hash        string `json:"hash" yaml:"hash" validate:"required,hexadecimal,len=64"`
	Start       bool   `json:"start" yaml:"start"`
}

type ServerGroupDoc struct {
	Name               string               `json:"name" yaml:"name" validate:"required"`
	Profile            string               `json:"profile" yaml:"profile" validate:"required"`
	SocketBindingGroup string               `json:"socketBindingGroup,omitempty" yaml:"socket-binding-group,omitempty"`
	PortOffset         int                  `json:"portOffset,omitempty" yaml:"port-offset,omitempty" validate:"gte=0,lte=65535"`
	JVM                *JVMDoc              `json:"jvm,omitempty" yaml:"jvm,omitempty"`
	Deployments        []GroupDeploymentDoc `json:"deployments,omitempty" yaml:"deployments,omitempty" validate:"dive"`
	Properties         map[string]*string   `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type JVMDoc struct {
	Name             string             `json:"name,omitempty" yaml:"name,omitempty"`
	JavaHome         string             `json:"javaHome,omitempty" yaml:"java-home,omitempty"`
	HeapSize         string             `json:"heapSize,omitempty" yaml:"heap-size,omitempty"`
	MaxHeapSize      string             `json:"maxHeapSize,omitempty" yaml:"max-heap-size,omitempty"`
	DebugEnabled     *bool              `json:"debugEnabled,omitempty" yaml:"debug-enabled,omitempty"`
	DebugOptions     string             `json:"debugOptions,omitempty" yaml:"debug-options,omitempty"`
	Options          []string           `json:"options,omitempty" yaml:"options,omitempty"`
	Environment      map[string]*string `json:"environment,omitempty" yaml:"environment,omitempty"`
	SystemProperties map[string]*string `json:"systemProperties,omitempty" yaml:"system-properties,omitempty"`
}

// HostDoc is the serialized form of a host tree.
type HostDoc struct {
	Name             string             `json:"name" yaml:"name" validate:"required"`
	DomainController ControllerDoc      `json:"domainController" yaml:"domain-controller"`
	Extensions       []string           `json:"extensions,omitempty" yaml:"extensions,omitempty" validate:"dive,required"`
	Properties       map[string]*string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Interfaces       []domain.Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty" validate:"dive"`
	JVMs             []JVMDoc           `json:"jvms,omitempty" yaml:"jvms,omitempty" validate:"dive"`
	Servers          []ServerDoc        `json:"servers,omitempty" yaml:"servers,omitempty" validate:"dive"`
}

// ControllerDoc is either {local: true} or a remote host and port.
type ControllerDoc struct {
	Local bool   `json:"local,omitempty" yaml:"local,omitempty"`
	Host  string `json:"host,omitempty" yaml:"host,omitempty"`
	Port  int    `json:"port,omitempty" yaml:"port,omitempty" validate:"gte=0,lte=65535"`
}

type ServerDoc struct {
	Name               string             `json:"name" yaml:"name" validate:"required"`
	Group              string             `json:"group" yaml:"group" validate:"required"`
	AutoStart          *bool              `json:"autoStart,omitempty" yaml:"auto-start,omitempty"`
	SocketBindingGroup string             `json:"socketBindingGroup,omitempty" yaml:"socket-binding-group,omitempty"`
	PortOffset         *int               `json:"portOffset,omitempty" yaml:"port-offset,omitempty" validate:"omitempty,gte=0,lte=65535"`
	JVM                *JVMDoc            `json:"jvm,omitempty" yaml:"jvm,omitempty"`
	Interfaces         []domain.Interface `json:"interfaces,omitempty" yaml:"interfaces,omitempty" validate:"dive"`
	Properties         map[string]*string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ServerModelDoc is the read-only view of a composed server model.
type ServerModelDoc struct {
	Host               string               `json:"host" yaml:"host"`
	Server             string               `json:"server" yaml:"server"`
	Group              string               `json:"group" yaml:"group"`
	Fingerprint        string               `json:"fingerprint" yaml:"fingerprint"`
	Profile            ProfileDoc           `json:"profile" yaml:"profile"`
	SocketBindingGroup *BindingGroupDoc     `json:"socketBindingGroup,omitempty" yaml:"socket-binding-group,omitempty"`
	PortOffset         int                  `json:"portOffset,omitempty" yaml:"port-offset,omitempty"`
	JVM                *JVMDoc              `json:"jvm,omitempty" yaml:"jvm,omitempty"`
	Interfaces         []domain.Interface   `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Deployments        []GroupDeploymentDoc `json:"deployments,omitempty" yaml:"deployments,omitempty"`
	Properties         map[string]*string   `json:"properties,omitempty" yaml:"properties,omitempty"`
}
