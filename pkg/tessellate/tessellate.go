// Package tessellate converts geometry records produced by an evaluation
// pass into render-ready primitives: flat float32 position and normal
// buffers plus uint32 triangle indices, with the record's transform baked
// into the positions.
package tessellate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chazu/knurl/pkg/graph"
)

// Errors reported for malformed geometry buffers.
var (
	ErrBadVertexBuffer = errors.New("vertex buffer length is not a multiple of 3")
	ErrBadNormalBuffer = errors.New("normal buffer does not match vertex count")
	ErrBadFaceBuffer   = errors.New("face buffer length is not a multiple of 3")
	ErrFaceIndex       = errors.New("face index out of range")
)

// Convert turns one geometry record into a primitive. Records whose data
// is nil or of an unrecognized variant yield (nil, nil): they are not
// renderable and not an error.
func Convert(rec graph.GeometryRecord) (*Primitive, error) {
	switch data := rec.Data.(type) {
	case graph.MeshData:
		return convertMesh(rec, data)
	case *graph.MeshData:
		if data == nil {
			return nil, nil
		}
		return convertMesh(rec, *data)
	case graph.CurveData:
		return convertCurve(rec, data)
	case *graph.CurveData:
		if data == nil {
			return nil, nil
		}
		return convertCurve(rec, *data)
	default:
		return nil, nil
	}
}

func convertMesh(rec graph.GeometryRecord, m graph.MeshData) (*Primitive, error) {
	if len(m.Vertices)%3 != 0 {
		return nil, fmt.Errorf("mesh %s: %w (got %d)", rec.ID, ErrBadVertexBuffer, len(m.Vertices))
	}
	if len(m.Normals) != 0 && len(m.Normals) != len(m.Vertices) {
		return nil, fmt.Errorf("mesh %s: %w (%d normals for %d vertices)",
			rec.ID, ErrBadNormalBuffer, len(m.Normals)/3, len(m.Vertices)/3)
	}
	if len(m.Faces)%3 != 0 {
		return nil, fmt.Errorf("mesh %s: %w (got %d)", rec.ID, ErrBadFaceBuffer, len(m.Faces))
	}

	n := len(m.Vertices) / 3
	p := &Primitive{
		Kind:     KindMesh,
		Name:     rec.Name,
		Vertices: transformPoints(rec.Transform, m.Vertices),
	}
	if len(m.Normals) > 0 {
		p.Normals = transformNormals(rec.Transform, m.Normals)
	}
	if len(m.Faces) > 0 {
		p.Indices = make([]uint32, len(m.Faces))
		for i, idx := range m.Faces {
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("mesh %s: %w: faces[%d] = %d with %d vertices", rec.ID, ErrFaceIndex, i, idx, n)
			}
			p.Indices[i] = uint32(idx)
		}
	}
	return p, nil
}

func convertCurve(rec graph.GeometryRecord, c graph.CurveData) (*Primitive, error) {
	if len(c.Vertices)%3 != 0 {
		return nil, fmt.Errorf("curve %s: %w (got %d)", rec.ID, ErrBadVertexBuffer, len(c.Vertices))
	}
	return &Primitive{
		Kind:     KindCurve,
		Name:     rec.Name,
		Vertices: transformPoints(rec.Transform, c.Vertices),
	}, nil
}

func transformPoints(t graph.Transform, in []float64) []float32 {
	out := make([]float32, len(in))
	for i := 0; i+2 < len(in); i += 3 {
		x, y, z := t.Apply(in[i], in[i+1], in[i+2])
		out[i], out[i+1], out[i+2] = float32(x), float32(y), float32(z)
	}
	return out
}

func transformNormals(t graph.Transform, in []float64) []float32 {
	out := make([]float32, len(in))
	identity := t.IsZero() || t == graph.Identity()
	for i := 0; i+2 < len(in); i += 3 {
		x, y, z := in[i], in[i+1], in[i+2]
		if !identity {
			x, y, z = t.ApplyNormal(x, y, z)
		}
		out[i], out[i+1], out[i+2] = float32(x), float32(y), float32(z)
	}
	return out
}

// ConvertAll converts a batch of records. Non-renderable records are
// dropped silently; malformed ones are dropped, logged at warn level and
// returned as errors. The result never contains nil entries.
func ConvertAll(records []graph.GeometryRecord, logger *slog.Logger) ([]*Primitive, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	prims := make([]*Primitive, 0, len(records))
	var errs []error
	for _, rec := range records {
		p, err := Convert(rec)
		if err != nil {
			logger.Warn("skipping geometry", "id", rec.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if p == nil {
			logger.Debug("geometry is not renderable", "id", rec.ID, "type", fmt.Sprintf("%T", rec.Data))
			continue
		}
		prims = append(prims, p)
	}
	return prims, errs
}
