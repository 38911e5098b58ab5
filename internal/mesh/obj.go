package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// LoadOBJ reads a Wavefront OBJ file.
func LoadOBJ(path string) (*Mesh, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh: %w", err)
	}
	defer file.Close()

	m, err := ReadOBJ(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadOBJ parses OBJ geometry: "v" records and "f" records in the forms
// v, v/vt, v//vn and v/vt/vn. Negative indices count back from the latest
// vertex. Polygons are fan-triangulated. Texture coordinates, file normals
// and every other record type are ignored; normals are recomputed.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	var vertices []mgl64.Vec3
	var faces [][3]int

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNo)
			}
			var v mgl64.Vec3
			for k := 0; k < 3; k++ {
				f, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid coordinate %q", lineNo, fields[k+1])
				}
				v[k] = f
			}
			vertices = append(vertices, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			idx := make([]int, len(fields)-1)
			for i, arg := range fields[1:] {
				n, err := fixIndex(arg, len(vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				idx[i] = n
			}
			for i := 1; i < len(idx)-1; i++ {
				faces = append(faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mesh: %w", err)
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("mesh has no faces")
	}
	return New(vertices, faces)
}

// fixIndex turns the vertex part of a face element into a 0-based index.
func fixIndex(element string, count int) (int, error) {
	value := element
	if i := strings.IndexByte(element, '/'); i >= 0 {
		value = element[:i]
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid face element %q", element)
	}
	switch {
	case parsed > 0 && parsed <= count:
		return parsed - 1, nil
	case parsed < 0 && -parsed <= count:
		return count + parsed, nil
	default:
		return 0, fmt.Errorf("face index %d out of range (have %d vertices)", parsed, count)
	}
}
