// Package dockerpy implements host.PythonSession by running execute_code
// payloads inside a throwaway python:3-slim container, for deployments
// where the machine hosting the endpoint has no python3 installed locally.
//
// Each call runs one container to completion and collects its logs;
// daemon and container failures are wrapped in ErrDockerUnavailable.
package dockerpy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrDockerUnavailable is returned when the Docker daemon cannot be
// reached or the code runner image cannot be used.
var ErrDockerUnavailable = errors.New("dockerpy: daemon unavailable")

// DefaultImage is the interpreter image used for every execute_code call.
// Pinning to a tag (rather than "latest") keeps runs reproducible.
const DefaultImage = "python:3-slim"

// DefaultTimeout bounds how long a single container run may take before
// it is force-killed and the call reported as failed.
const DefaultTimeout = 30 * time.Second

// Session runs execute_code payloads in an ephemeral container per call.
type Session struct {
	docker  *dockerclient.Client
	image   string
	timeout time.Duration
}

// NewSession connects to the Docker daemon at socketPath (empty string for
// the SDK default) and returns a Session that will use image (empty string
// for DefaultImage) with the given per-run timeout (0 for DefaultTimeout).
func NewSession(socketPath, image string, timeout time.Duration) (*Session, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if socketPath != "" {
		opts = append(opts, dockerclient.WithHost("unix://"+socketPath))
	}

	dc, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDockerUnavailable, err)
	}

	if image == "" {
		image = DefaultImage
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Session{docker: dc, image: image, timeout: timeout}, nil
}

// Ping verifies the daemon is reachable, for use at startup before
// advertising the "docker" code runner as available.
func (s *Session) Ping(ctx context.Context) error {
	if _, err := s.docker.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrDockerUnavailable, err)
	}
	return nil
}

// Exec creates, starts, waits on, and removes a container that runs code
// via "python3 -c <code>", returning its separated stdout/stderr streams.
func (s *Session) Exec(ctx context.Context, code string) (stdout string, stderr string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.docker.ContainerCreate(ctx, &container.Config{
		Image:      s.image,
		Cmd:        []string{"python3", "-c", code},
		Tty:        false,
		StopSignal: "SIGKILL",
	}, &container.HostConfig{
		AutoRemove:  false, // removed explicitly below so logs can be read first
		NetworkMode: "none",
	}, nil, nil, "")
	if err != nil {
		return "", "", fmt.Errorf("%w: create: %s", ErrDockerUnavailable, err)
	}
	id := created.ID
	defer func() {
		_ = s.docker.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}()

	if err := s.docker.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", "", fmt.Errorf("%w: start: %s", ErrDockerUnavailable, err)
	}

	statusCh, errCh := s.docker.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case werr := <-errCh:
		if werr != nil {
			return "", "", fmt.Errorf("%w: wait: %s", ErrDockerUnavailable, werr)
		}
	case <-statusCh:
	case <-ctx.Done():
		return "", "", fmt.Errorf("%w: %s", ErrDockerUnavailable, ctx.Err())
	}

	logs, err := s.docker.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("%w: logs: %s", ErrDockerUnavailable, err)
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil && err != io.EOF {
		return "", "", fmt.Errorf("%w: demux logs: %s", ErrDockerUnavailable, err)
	}

	return outBuf.String(), errBuf.String(), nil
}

// Close releases the underlying Docker client.
func (s *Session) Close() error { return s.docker.Close() }
