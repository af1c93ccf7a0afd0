// Package simhost is the default Host implementation: a small deterministic
// in-memory scene graph, used both by the standalone hostbridged binary
// (standing in for the real 3D application in headless integration tests)
// and by internal/dispatch's own test suite.
package simhost

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sceneforge/hostbridge/internal/host"
)

// Object is one scene-graph entry. Mesh is nil for non-mesh object types
// (cameras, lights, empties), matching Blender's per-type data blocks.
type Object struct {
	Name          string
	Type          string
	Location      host.Vec3
	RotationEuler host.Vec3
	Scale         host.Vec3
	Visible       bool
	Materials     []string
	Mesh          *host.MeshCounts
}

// Host is a goroutine-safe in-memory scene. All mutation is expected to
// happen only from within a Bridge Job (i.e. on the single main goroutine),
// but the mutex guards against tests that poke the scene directly from a
// different goroutine than the one exercising the dispatcher.
type Host struct {
	mu          sync.Mutex
	name        string
	objects     map[string]*Object
	order       []string // insertion order, for stable get_scene_info listing
	materials   map[string]struct{}
	hasUI       bool
	python      host.PythonSession
	screenshots int
}

// New creates an empty scene named sceneName. hasUI controls whether
// CaptureViewport succeeds (true) or reports host.ErrNoUI (false, the
// headless default). python supplies the PythonSession used for
// execute_code; pass nil to use a no-op session that simply errors.
func New(sceneName string, hasUI bool, python host.PythonSession) *Host {
	if python == nil {
		python = noopSession{}
	}
	return &Host{
		name:      sceneName,
		objects:   make(map[string]*Object),
		materials: make(map[string]struct{}),
		hasUI:     hasUI,
		python:    python,
	}
}

// AddObject inserts or replaces an object in the scene, registering its
// materials in the scene-wide materials set.
func (h *Host) AddObject(obj Object) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.objects[obj.Name]; !exists {
		h.order = append(h.order, obj.Name)
	}
	cp := obj
	h.objects[obj.Name] = &cp
	for _, m := range obj.Materials {
		h.materials[m] = struct{}{}
	}
}

func (h *Host) SceneInfo(ctx context.Context) (host.SceneInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	summaries := make([]host.ObjectSummary, 0, len(h.order))
	for _, name := range h.order {
		obj := h.objects[name]
		summaries = append(summaries, host.ObjectSummary{
			Name:     obj.Name,
			Type:     obj.Type,
			Location: obj.Location,
			Visible:  obj.Visible,
		})
		if len(summaries) == 10 {
			break
		}
	}

	return host.SceneInfo{
		Name:           h.name,
		ObjectCount:    len(h.objects),
		Objects:        summaries,
		MaterialsCount: len(h.materials),
	}, nil
}

func (h *Host) ObjectInfo(ctx context.Context, name string) (host.ObjectInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	obj, ok := h.objects[name]
	if !ok {
		return host.ObjectInfo{}, fmt.Errorf("%w: %q", host.ErrNotFound, name)
	}

	materials := append([]string(nil), obj.Materials...)
	sort.Strings(materials)

	return host.ObjectInfo{
		Name:          obj.Name,
		Type:          obj.Type,
		Location:      obj.Location,
		RotationEuler: obj.RotationEuler,
		Scale:         obj.Scale,
		Visible:       obj.Visible,
		Materials:     materials,
		Mesh:          obj.Mesh,
	}, nil
}

// viewportWidth/Height describe the simulated viewport's native aspect
// ratio before CaptureViewport scales it to fit MaxSize's long edge.
const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

func (h *Host) CaptureViewport(ctx context.Context, req host.ScreenshotRequest) (host.ScreenshotResult, error) {
	h.mu.Lock()
	hasUI := h.hasUI
	h.screenshots++
	h.mu.Unlock()

	if !hasUI {
		return host.ScreenshotResult{}, host.ErrNoUI
	}

	w, hgt := scaleToMaxEdge(viewportWidth, viewportHeight, req.MaxSize)
	image := placeholderImage(w, hgt, req.Format)

	result := host.ScreenshotResult{Filepath: req.Filepath}
	if req.Filepath != "" {
		if err := os.WriteFile(req.Filepath, image, 0o644); err != nil {
			return host.ScreenshotResult{}, fmt.Errorf("host_api_error: failed to write screenshot: %w", err)
		}
	} else {
		result.Bytes = image
	}
	return result, nil
}

// scaleToMaxEdge scales (w, h) down so its longest edge equals maxEdge,
// preserving aspect ratio. maxEdge <= 0 leaves the dimensions untouched.
func scaleToMaxEdge(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 {
		return w, h
	}
	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	if longEdge <= maxEdge {
		return w, h
	}
	scale := float64(maxEdge) / float64(longEdge)
	return int(float64(w) * scale), int(float64(h) * scale)
}

// placeholderImage stands in for an encoded viewport frame: the simulated
// host has no rasterizer, so it returns a tiny deterministic payload sized
// to look plausible rather than a real PNG/JPEG byte stream.
func placeholderImage(w, h int, format host.ScreenshotFormat) []byte {
	header := fmt.Sprintf("SIMHOST-%s-%dx%d\n", format, w, h)
	return []byte(base64.StdEncoding.EncodeToString([]byte(header)))
}

func (h *Host) HasUI() bool { return h.hasUI }

func (h *Host) Python() host.PythonSession { return h.python }

type noopSession struct{}

func (noopSession) Exec(ctx context.Context, code string) (string, string, error) {
	return "", "", fmt.Errorf("simhost: no python session configured")
}
