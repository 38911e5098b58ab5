// Package render draws meshes offscreen with the fauxgl software rasterizer.
//
// The camera looks down -Z at the mesh centroid with +Y up, at a distance
// that fits the mesh's bounding sphere into the vertical field of view.
// Images are rasterized at Supersample times the output size and scaled
// down, which smooths silhouette edges for the contour annotator.
package render

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"

	"github.com/ironsheep/meshsynth/internal/config"
	"github.com/ironsheep/meshsynth/internal/imaging"
	"github.com/ironsheep/meshsynth/internal/mesh"
)

// ErrSurface reports that the render surface could not be created or has
// been released.
var ErrSurface = errors.New("render surface unavailable")

// fitMargin leaves room around the bounding sphere at zoom 1.
const fitMargin = 1.1

// Options configure a Renderer.
type Options struct {
	Width       int
	Height      int
	Supersample int
	Background  string
	ObjectColor string
	FovY        float64
	Light       [3]float64
}

// OptionsFromConfig copies the render section of the config.
func OptionsFromConfig(cfg config.RenderConfig) Options {
	return Options{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Supersample: cfg.Supersample,
		Background:  cfg.Background,
		ObjectColor: cfg.ObjectColor,
		FovY:        cfg.FovY,
		Light:       cfg.Light,
	}
}

// Renderer owns an offscreen surface. It is not safe for concurrent use.
type Renderer struct {
	opts       Options
	ctx        *fauxgl.Context
	background fauxgl.Color
	object     fauxgl.Color
	light      fauxgl.Vector
}

// New allocates the render surface.
func New(opts Options) (*Renderer, error) {
	if opts.Supersample < 1 {
		opts.Supersample = 1
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrSurface, opts.Width, opts.Height)
	}
	if opts.FovY <= 0 || opts.FovY >= 180 {
		return nil, fmt.Errorf("%w: field of view %g", ErrSurface, opts.FovY)
	}

	bg, err := imaging.ParseColor(opts.Background)
	if err != nil {
		return nil, fmt.Errorf("background color: %w", err)
	}
	fg, err := imaging.ParseColor(opts.ObjectColor)
	if err != nil {
		return nil, fmt.Errorf("object color: %w", err)
	}

	light := fauxgl.V(opts.Light[0], opts.Light[1], opts.Light[2])
	if light.Length() == 0 {
		light = fauxgl.V(0, 0, 1)
	}

	ctx := fauxgl.NewContext(opts.Width*opts.Supersample, opts.Height*opts.Supersample)
	ctx.Cull = fauxgl.CullNone

	return &Renderer{
		opts:       opts,
		ctx:        ctx,
		background: fauxgl.MakeColor(bg),
		object:     fauxgl.MakeColor(fg),
		light:      light.Normalize(),
	}, nil
}

// Size returns the output image size.
func (r *Renderer) Size() (width, height int) {
	return r.opts.Width, r.opts.Height
}

// Render draws m and returns an image of the configured size. zoom scales
// the apparent size of the mesh: 1 fits its bounding sphere to the frame
// height, larger values move the camera closer.
func (r *Renderer) Render(m *mesh.Mesh, zoom float64) (image.Image, error) {
	if r.ctx == nil {
		return nil, ErrSurface
	}
	if zoom <= 0 {
		zoom = 1
	}

	center := m.Centroid()
	c := fauxgl.V(center.X(), center.Y(), center.Z())
	radius := m.Radius()
	if radius == 0 {
		radius = 1
	}

	fovy := r.opts.FovY
	distance := fitMargin * radius / math.Sin(fauxgl.Radians(fovy/2)) / zoom
	eye := c.Add(fauxgl.V(0, 0, distance))
	near := math.Max(distance-radius*2, distance*0.01)
	far := distance + radius*2
	aspect := float64(r.opts.Width) / float64(r.opts.Height)

	matrix := fauxgl.LookAt(eye, c, fauxgl.V(0, 1, 0)).Perspective(fovy, aspect, near, far)
	shader := fauxgl.NewPhongShader(matrix, r.light, eye)
	shader.ObjectColor = r.object
	r.ctx.Shader = shader

	r.ctx.ClearColorBufferWith(r.background)
	r.ctx.ClearDepthBuffer()
	r.ctx.DrawMesh(toFauxgl(m))

	img := r.ctx.Image()
	if r.opts.Supersample > 1 {
		img = resize.Resize(uint(r.opts.Width), uint(r.opts.Height), img, resize.Bilinear)
	}
	return img, nil
}

// Close releases the surface. Render fails with ErrSurface afterwards.
func (r *Renderer) Close() error {
	r.ctx = nil
	return nil
}

func toFauxgl(m *mesh.Mesh) *fauxgl.Mesh {
	if len(m.Normals) != len(m.Vertices) {
		m.ComputeNormals()
	}
	triangles := make([]*fauxgl.Triangle, 0, len(m.Faces))
	for _, f := range m.Faces {
		t := fauxgl.NewTriangleForPoints(vec(m, f[0]), vec(m, f[1]), vec(m, f[2]))
		t.V1.Normal = normal(m, f[0], t.V1.Normal)
		t.V2.Normal = normal(m, f[1], t.V2.Normal)
		t.V3.Normal = normal(m, f[2], t.V3.Normal)
		triangles = append(triangles, t)
	}
	return fauxgl.NewTriangleMesh(triangles)
}

func vec(m *mesh.Mesh, i int) fauxgl.Vector {
	v := m.Vertices[i]
	return fauxgl.V(v.X(), v.Y(), v.Z())
}

// normal returns the smoothed vertex normal, or the face normal when the
// vertex has none.
func normal(m *mesh.Mesh, i int, face fauxgl.Vector) fauxgl.Vector {
	n := m.Normals[i]
	if n.Len() == 0 {
		return face
	}
	return fauxgl.V(n.X(), n.Y(), n.Z())
}
