package config

import (
	"net/url"
	"os"
	"sync"
)

// DockerHostGateway is the name Docker gives the host machine.
const DockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool

	// inDocker is replaced in tests.
	inDocker = IsRunningInDocker
)

// loopbackHosts are the spellings of "this machine" that stop working once
// the generator runs in a container.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to the Docker host gateway so a
// containerised batch job can reach a completion server (vLLM, Ollama),
// PostgreSQL or Redis running on the host machine.
func ResolveHostForDocker(host string) string {
	if loopbackHosts[host] && inDocker() {
		return DockerHostGateway
	}
	return host
}

// resolveURLHost applies ResolveHostForDocker to the host part of a URL,
// keeping the port. Unparseable values are returned unchanged.
func resolveURLHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := ResolveHostForDocker(u.Hostname())
	if host == u.Hostname() {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	return u.String()
}
