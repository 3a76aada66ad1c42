// Copyright 2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogbaggage

import (
	"context"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/compute/metadata"
)

// Property keys set by runtime detection.
const (
	PropertyHostName     = "host.name"
	PropertyService      = "service.name"
	PropertyVersion      = "service.version"
	PropertyProjectID    = "cloud.project_id"
	PropertyZone         = "cloud.zone"
	PropertyInstanceID   = "cloud.instance_id"
	PropertyK8sNamespace = "k8s.namespace.name"
	PropertyK8sPod       = "k8s.pod.name"
)

var (
	envPropertiesOnce sync.Once
	envProperties     map[string]string
)

// DefaultLoggerContext returns a logger context named name whose properties
// describe the process: host name plus any service identity found in the
// environment (Cloud Run, Cloud Functions, App Engine, Kubernetes). It never
// contacts the metadata server; use [DetectRuntimeProperties] for that.
func DefaultLoggerContext(name string) *LoggerContext {
	envPropertiesOnce.Do(func() {
		envProperties = detectEnvProperties()
	})
	return NewLoggerContext(name, envProperties)
}

// Overridable for tests.
var (
	onGCE        = metadata.OnGCE
	gceProjectID = metadata.ProjectIDWithContext
	gceZone      = metadata.ZoneWithContext
	gceInstance  = metadata.InstanceIDWithContext
)

// DetectRuntimeProperties returns the environment-derived properties of
// [DefaultLoggerContext] and, when running on Google Compute Engine or a
// platform built on it, the project, zone and instance ID read from the
// metadata server. Metadata lookups that fail are skipped.
func DetectRuntimeProperties(ctx context.Context) map[string]string {
	props := detectEnvProperties()
	if !onGCE() {
		return props
	}
	if _, ok := props[PropertyProjectID]; !ok {
		if id, err := gceProjectID(ctx); err == nil && id != "" {
			props[PropertyProjectID] = normalizeProjectID(id)
		}
	}
	if zone, err := gceZone(ctx); err == nil && zone != "" {
		props[PropertyZone] = zone
	}
	if id, err := gceInstance(ctx); err == nil && id != "" {
		props[PropertyInstanceID] = id
	}
	return props
}

// detectEnvProperties reads service identity from well-known environment
// variables.
func detectEnvProperties() map[string]string {
	props := make(map[string]string)
	if host, err := os.Hostname(); err == nil && host != "" {
		props[PropertyHostName] = host
	}
	if project := normalizeProjectID(firstNonEmpty(
		trimmedEnv("GOOGLE_CLOUD_PROJECT"),
		trimmedEnv("GCLOUD_PROJECT"),
		trimmedEnv("GCP_PROJECT"),
	)); project != "" {
		props[PropertyProjectID] = project
	}

	switch {
	case trimmedEnv("K_SERVICE") != "":
		props[PropertyService] = trimmedEnv("K_SERVICE")
		if rev := trimmedEnv("K_REVISION"); rev != "" {
			props[PropertyVersion] = rev
		}
	case trimmedEnv("CLOUD_RUN_JOB") != "":
		props[PropertyService] = trimmedEnv("CLOUD_RUN_JOB")
		if exec := trimmedEnv("CLOUD_RUN_EXECUTION"); exec != "" {
			props[PropertyVersion] = exec
		}
	case trimmedEnv("GAE_SERVICE") != "":
		props[PropertyService] = trimmedEnv("GAE_SERVICE")
		if v := trimmedEnv("GAE_VERSION"); v != "" {
			props[PropertyVersion] = v
		}
	}

	if trimmedEnv("KUBERNETES_SERVICE_HOST") != "" {
		if ns := firstNonEmpty(readNamespace(), trimmedEnv("NAMESPACE_NAME"), trimmedEnv("NAMESPACE")); ns != "" {
			props[PropertyK8sNamespace] = ns
		}
		if pod := firstNonEmpty(trimmedEnv("POD_NAME"), trimmedEnv("HOSTNAME")); pod != "" {
			props[PropertyK8sPod] = pod
		}
	}
	return props
}

// trimmedEnv reads an environment variable and trims surrounding whitespace.
func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// firstNonEmpty returns the first non-empty string after trimming whitespace.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizeProjectID strips common prefixes and leading underscores from
// project IDs.
func normalizeProjectID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "projects/")
	id = strings.TrimPrefix(id, "_")
	return id
}

// readNamespace reads the Kubernetes namespace from the service account
// mount.
func readNamespace() string {
	data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
