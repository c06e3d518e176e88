package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/models"
)

const (
	jobSpecPath  = "/app"
	jobSpecName  = "job.json"
	manifestPath = "/out/manifest.json"
)

// RunResult is what a finished engine container left behind.
type RunResult struct {
	ExitCode int64
	Logs     string
	Manifest json.RawMessage
}

// Launcher runs one clip-extraction container per job. The job spec is
// copied in before start, the manifest is copied out after a clean exit,
// and the container is removed either way.
type Launcher struct {
	cli      *client.Client
	runner   Runner
	image    string
	cpuLimit int64
	memLimit int64
	logger   zerolog.Logger
}

func NewLauncher(cli *client.Client, image string, cpuLimit, memLimit int64, logger zerolog.Logger) *Launcher {
	return &Launcher{
		cli:      cli,
		runner:   NewDockerRunner(cli),
		image:    image,
		cpuLimit: cpuLimit,
		memLimit: memLimit,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

type jobSpec struct {
	JobID       string `json:"job_id"`
	TenantID    string `json:"tenant_id"`
	MatchVideo  string `json:"match_video"`
	EventsFile  string `json:"events_file"`
	CallbackURL string `json:"callback_url"`
}

func (l *Launcher) Run(ctx context.Context, job models.ClipJob, authToken, callbackURL string) (RunResult, error) {
	if err := l.ensureImage(ctx); err != nil {
		return RunResult{}, err
	}

	spec, err := json.Marshal(jobSpec{
		JobID:       job.ID,
		TenantID:    job.TenantID,
		MatchVideo:  job.MatchVideo,
		EventsFile:  job.EventsFile,
		CallbackURL: callbackURL,
	})
	if err != nil {
		return RunResult{}, errors.Wrap(err, "marshal job spec")
	}

	containerConfig := &container.Config{
		Image: l.image,
		Cmd:   []string{"extract", "--job", jobSpecPath + "/" + jobSpecName},
		Env: []string{
			fmt.Sprintf("REPORT_CALLBACK_URL=%s", callbackURL),
			fmt.Sprintf("AUTH_TOKEN=%s", authToken),
		},
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			CPUShares: l.cpuLimit,
			Memory:    l.memLimit,
		},
	}

	resp, err := l.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return RunResult{}, errors.Wrap(err, "create container")
	}
	containerID := resp.ID
	defer l.remove(containerID)

	if err := l.runner.CopyTo(ctx, containerID, jobSpecPath, spec, jobSpecName); err != nil {
		return RunResult{}, errors.Wrap(err, "upload job spec")
	}

	if err := l.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return RunResult{}, errors.Wrap(err, "start container")
	}
	l.logger.Info().Str("container_id", containerID).Str("job_id", job.ID).Msg("engine container started")

	logReader, err := l.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return RunResult{}, errors.Wrap(err, "container logs")
	}
	defer logReader.Close()

	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	if _, err := stdcopy.StdCopy(stdoutBuf, stderrBuf, logReader); err != nil {
		return RunResult{}, errors.Wrap(err, "demux container logs")
	}
	mergedLogs := stdoutBuf.String() + stderrBuf.String()

	waitResp, errCh := l.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return RunResult{Logs: mergedLogs}, errors.Wrap(err, "container wait")
	case status := <-waitResp:
		result := RunResult{ExitCode: status.StatusCode, Logs: mergedLogs}
		if status.StatusCode != 0 {
			return result, nil
		}
		manifest, err := l.runner.CopyFrom(ctx, containerID, manifestPath)
		if err != nil {
			// The engine may have delivered the manifest via the callback
			// instead; an absent file is not fatal here.
			l.logger.Warn().Err(err).Str("job_id", job.ID).Msg("no manifest file in container")
			return result, nil
		}
		result.Manifest = manifest
		return result, nil
	}
}

func (l *Launcher) ensureImage(ctx context.Context) error {
	_, err := l.cli.ImageInspect(ctx, l.image)
	if err == nil {
		return nil
	}
	l.logger.Info().Str("image", l.image).Msg("engine image not found locally, pulling")
	reader, err := l.cli.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return errors.Wrap(err, "pull engine image")
	}
	defer reader.Close()
	io.Copy(io.Discard, reader)
	return nil
}

func (l *Launcher) remove(containerID string) {
	if err := l.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}); err != nil {
		l.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to remove engine container")
	}
}
