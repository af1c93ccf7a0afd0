// Package host defines the abstraction this endpoint drives: the embedding
// 3D content-creation application's scripting API. The reference system
// embeds into Blender's bpy; this module has no Go binding for Blender (or
// any other DCC tool), so Host stands in for it. internal/host/simhost
// supplies a deterministic in-memory implementation exercised by the
// dispatcher and its tests; a production deployment would swap in a
// cgo-backed implementation without touching any other package.
package host

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Host lookups when the named entity does not
// exist in the scene. internal/dispatch maps it to protocol.TaxNotFound.
var ErrNotFound = errors.New("host: object not found")

// ErrNoUI is returned by operations that require interactive viewport
// state (screenshot capture) when the host is running headlessly.
// internal/dispatch maps it to protocol.TaxUnsupportedInBackground.
var ErrNoUI = errors.New("host: no UI present (running headless)")

// Vec3 is a location/rotation/scale triple.
type Vec3 [3]float64

// ObjectSummary is the per-object shape returned in get_scene_info's object
// list, capped by the caller at 10 entries.
type ObjectSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location Vec3   `json:"location"`
	Visible  bool   `json:"visible"`
}

// SceneInfo is the full result of get_scene_info.
type SceneInfo struct {
	Name           string          `json:"name"`
	ObjectCount    int             `json:"object_count"`
	Objects        []ObjectSummary `json:"objects"`
	MaterialsCount int             `json:"materials_count"`
}

// MeshCounts is populated on ObjectInfo only for mesh-typed objects.
type MeshCounts struct {
	Vertices int `json:"vertices"`
	Edges    int `json:"edges"`
	Polygons int `json:"polygons"`
}

// ObjectInfo is the full result of get_object_info.
type ObjectInfo struct {
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Location      Vec3        `json:"location"`
	RotationEuler Vec3        `json:"rotation_euler"`
	Scale         Vec3        `json:"scale"`
	Visible       bool        `json:"visible"`
	Materials     []string    `json:"material_names"`
	Mesh          *MeshCounts `json:"mesh,omitempty"`
}

// ScreenshotFormat enumerates the image encodings get_viewport_screenshot
// accepts.
type ScreenshotFormat string

const (
	FormatPNG  ScreenshotFormat = "png"
	FormatJPEG ScreenshotFormat = "jpeg"
)

// ScreenshotRequest carries get_viewport_screenshot's parameters. MaxSize
// bounds the image's longest edge.
type ScreenshotRequest struct {
	MaxSize  int
	Filepath string
	Format   ScreenshotFormat
}

// ScreenshotResult carries the written file path and, when no file path was
// given, the encoded image bytes inline (the dispatcher base64-encodes them
// for the reply).
type ScreenshotResult struct {
	Filepath string
	Bytes    []byte // nil unless the caller wants inline data
}

// PythonSession executes free-form host-API source and reports what it
// printed to standard output and, separately, standard error. It is
// invoked only from within a Bridge Job, so implementations may assume
// single-threaded, non-concurrent use.
type PythonSession interface {
	Exec(ctx context.Context, code string) (stdout string, stderr string, err error)
}

// Host is the full surface the Command Dispatcher's built-in handlers call
// against. Every method is documented as main-thread-only: callers outside
// internal/dispatch must route through the Bridge.
type Host interface {
	SceneInfo(ctx context.Context) (SceneInfo, error)
	ObjectInfo(ctx context.Context, name string) (ObjectInfo, error)
	CaptureViewport(ctx context.Context, req ScreenshotRequest) (ScreenshotResult, error)
	HasUI() bool
	Python() PythonSession
}
