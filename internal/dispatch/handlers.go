package dispatch

import (
	"context"
	"encoding/base64"

	"github.com/sceneforge/hostbridge/internal/host"
	"github.com/sceneforge/hostbridge/internal/protocol"
)

func handleGetSceneInfo(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error) {
	info, err := h.SceneInfo(ctx)
	if err != nil {
		return nil, err
	}

	objects := make([]map[string]any, 0, len(info.Objects))
	for _, o := range info.Objects {
		objects = append(objects, map[string]any{
			"name":     o.Name,
			"type":     o.Type,
			"location": []float64{o.Location[0], o.Location[1], o.Location[2]},
			"visible":  o.Visible,
		})
	}

	return map[string]any{
		"name":            info.Name,
		"object_count":    info.ObjectCount,
		"objects":         objects,
		"materials_count": info.MaterialsCount,
	}, nil
}

func handleGetObjectInfo(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error) {
	name, ok := stringParam(params, "name")
	if !ok || name == "" {
		return nil, protocol.NewError(protocol.TaxInvalidParams, "get_object_info requires a non-empty \"name\" parameter")
	}

	info, err := h.ObjectInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"name":           info.Name,
		"type":           info.Type,
		"location":       vec3ToSlice(info.Location),
		"rotation_euler": vec3ToSlice(info.RotationEuler),
		"scale":          vec3ToSlice(info.Scale),
		"visible":        info.Visible,
		"material_names": info.Materials,
	}
	if info.Mesh != nil {
		result["mesh"] = map[string]any{
			"vertices": info.Mesh.Vertices,
			"edges":    info.Mesh.Edges,
			"polygons": info.Mesh.Polygons,
		}
	}
	return result, nil
}

func handleExecuteCode(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error) {
	code, ok := stringParam(params, "code")
	if !ok || code == "" {
		return nil, protocol.NewError(protocol.TaxInvalidParams, "execute_code requires a non-empty \"code\" parameter")
	}

	stdout, stderr, err := h.Python().Exec(ctx, code)
	if err != nil {
		return nil, protocol.NewError(protocol.TaxHostAPIError, "%s", err.Error())
	}

	result := map[string]any{
		"executed": true,
		"result":   stdout,
	}
	if stderr != "" {
		result["stderr"] = stderr
	}
	return result, nil
}

func handleGetViewportScreenshot(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error) {
	req := host.ScreenshotRequest{
		MaxSize:  800,
		Format:   host.FormatPNG,
		Filepath: "",
	}

	if v, ok := params["max_size"]; ok {
		n, ok := toInt(v)
		if !ok {
			return nil, protocol.NewError(protocol.TaxInvalidParams, "max_size must be an integer")
		}
		req.MaxSize = n
	}
	if v, ok := stringParam(params, "filepath"); ok {
		req.Filepath = v
	}
	if v, ok := stringParam(params, "format"); ok {
		switch host.ScreenshotFormat(v) {
		case host.FormatPNG, host.FormatJPEG:
			req.Format = host.ScreenshotFormat(v)
		default:
			return nil, protocol.NewError(protocol.TaxInvalidParams, "format must be \"png\" or \"jpeg\", got %q", v)
		}
	}

	res, err := h.CaptureViewport(ctx, req)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if res.Filepath != "" {
		out["filepath"] = res.Filepath
	}
	if res.Bytes != nil {
		out["image_base64"] = base64.StdEncoding.EncodeToString(res.Bytes)
	}
	return out, nil
}

func handleShutdown(ctx context.Context, h host.Host, params map[string]any) (map[string]any, error) {
	reason, _ := stringParam(params, "reason")
	if reason == "" {
		reason = "server_shutdown command"
	}
	return nil, &ShutdownRequested{Reason: reason}
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func vec3ToSlice(v host.Vec3) []float64 { return []float64{v[0], v[1], v[2]} }
