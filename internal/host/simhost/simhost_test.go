package simhost

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sceneforge/hostbridge/internal/host"
)

func TestSceneInfoCapsObjectsAtTen(t *testing.T) {
	h := New("Scene", true, nil)
	for i := 0; i < 15; i++ {
		h.AddObject(Object{Name: string(rune('A' + i)), Type: "MESH", Visible: true})
	}

	info, err := h.SceneInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.ObjectCount != 15 {
		t.Fatalf("expected object_count 15, got %d", info.ObjectCount)
	}
	if len(info.Objects) != 10 {
		t.Fatalf("expected at most 10 listed objects, got %d", len(info.Objects))
	}
}

func TestObjectInfoNotFound(t *testing.T) {
	h := New("Scene", true, nil)
	_, err := h.ObjectInfo(context.Background(), "Missing")
	if !errors.Is(err, host.ErrNotFound) {
		t.Fatalf("expected host.ErrNotFound, got %v", err)
	}
}

func TestObjectInfoReturnsMeshCounts(t *testing.T) {
	h := New("Scene", true, nil)
	h.AddObject(Object{
		Name: "Cube", Type: "MESH",
		Mesh: &host.MeshCounts{Vertices: 8, Edges: 12, Polygons: 6},
	})

	info, err := h.ObjectInfo(context.Background(), "Cube")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mesh == nil || info.Mesh.Vertices != 8 {
		t.Fatalf("expected mesh counts to round-trip, got %+v", info.Mesh)
	}
}

func TestCaptureViewportRequiresUI(t *testing.T) {
	h := New("Scene", false, nil)
	_, err := h.CaptureViewport(context.Background(), host.ScreenshotRequest{})
	if !errors.Is(err, host.ErrNoUI) {
		t.Fatalf("expected host.ErrNoUI, got %v", err)
	}
}

func TestCaptureViewportWritesFile(t *testing.T) {
	h := New("Scene", true, nil)
	path := filepath.Join(t.TempDir(), "shot.png")

	res, err := h.CaptureViewport(context.Background(), host.ScreenshotRequest{
		MaxSize: 400, Filepath: path, Format: host.FormatPNG,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Filepath != path {
		t.Fatalf("expected filepath %q, got %q", path, res.Filepath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestCaptureViewportInlineBytesWhenNoFilepath(t *testing.T) {
	h := New("Scene", true, nil)
	res, err := h.CaptureViewport(context.Background(), host.ScreenshotRequest{MaxSize: 200})
	if err != nil {
		t.Fatal(err)
	}
	if res.Filepath != "" {
		t.Fatalf("expected empty filepath, got %q", res.Filepath)
	}
	if len(res.Bytes) == 0 {
		t.Fatal("expected inline image bytes")
	}
}

func TestScaleToMaxEdgePreservesAspectRatio(t *testing.T) {
	w, h := scaleToMaxEdge(1920, 1080, 960)
	if w != 960 {
		t.Fatalf("expected long edge scaled to 960, got %d", w)
	}
	if h != 540 {
		t.Fatalf("expected proportional height 540, got %d", h)
	}
}

func TestScaleToMaxEdgeNoopWhenMaxEdgeNonPositive(t *testing.T) {
	w, h := scaleToMaxEdge(1920, 1080, 0)
	if w != 1920 || h != 1080 {
		t.Fatalf("expected untouched dimensions with maxEdge<=0, got %dx%d", w, h)
	}
}

func TestNoopSessionErrorsWhenNoPythonConfigured(t *testing.T) {
	h := New("Scene", true, nil)
	_, _, err := h.Python().Exec(context.Background(), "print(1)")
	if err == nil {
		t.Fatal("expected an error from the no-op python session")
	}
}
