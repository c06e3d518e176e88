package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Runner is the thin file-transfer surface over the Docker API the
// launcher needs: events go into the container before start, the manifest
// comes out after exit.
type Runner interface {
	CopyFrom(ctx context.Context, containerID, filePath string) ([]byte, error)
	CopyTo(ctx context.Context, containerID, dstPath string, content []byte, filename string) error
}

type dockerRunner struct {
	cli *client.Client
}

func NewDockerRunner(cli *client.Client) Runner {
	return &dockerRunner{cli: cli}
}

func (d *dockerRunner) CopyFrom(ctx context.Context, containerID string, filePath string) ([]byte, error) {
	reader, _, err := d.cli.CopyFromContainer(ctx, containerID, filePath)
	if err != nil {
		return nil, fmt.Errorf("copy from container: %w", err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	_, err = tr.Next()
	if err == io.EOF {
		return nil, fmt.Errorf("empty archive for %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("tar read header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, tr); err != nil {
		return nil, fmt.Errorf("tar read file: %w", err)
	}

	return buf.Bytes(), nil
}

func (d *dockerRunner) CopyTo(ctx context.Context, containerID string, dstPath string, content []byte, filename string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filename,
		Mode: 0644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar write header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("tar write content: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("tar close: %w", err)
	}

	if err := d.cli.CopyToContainer(ctx, containerID, dstPath, &buf, container.CopyToContainerOptions{AllowOverwriteDirWithFile: false}); err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	return nil
}
