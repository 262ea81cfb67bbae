package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
)

const maxFaceVerts = 32

// Obj is a triangulated Wavefront OBJ mesh.
type Obj struct {
	FileName string
	Scale    float32
	Verts    []float32
	Tris     []int32
}

func NewObj() *Obj {
	return &Obj{Scale: 1}
}

func (m *Obj) VertCount() int { return len(m.Verts) / 3 }
func (m *Obj) TriCount() int  { return len(m.Tris) / 3 }

// LoadObjFile reads an OBJ file from disk.
func LoadObjFile(p string) (*Obj, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m := NewObj()
	if err := m.Load(f); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	m.FileName = path.Base(p)
	return m, nil
}

// Load parses vertex and face rows. Faces with more than three corners are
// fan triangulated, normals and texture coordinates are ignored.
func (m *Obj) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || strings.HasPrefix(row, "#") {
			continue
		}
		if err := m.parseRow(strings.Fields(row)); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

func (m *Obj) parseRow(ss []string) error {
	switch ss[0] {
	case "v":
		return m.parseVertex(ss[1:])
	case "f":
		return m.parseFace(ss[1:])
	}
	return nil
}

func (m *Obj) parseVertex(ss []string) error {
	if len(ss) < 3 {
		return fmt.Errorf("vertex needs 3 coordinates, got %d", len(ss))
	}
	var v [3]float32
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(ss[i], 32)
		if err != nil {
			return err
		}
		v[i] = float32(f)
	}
	m.addVertex(v[0], v[1], v[2])
	return nil
}

func (m *Obj) parseFace(ss []string) error {
	vertCount := m.VertCount()
	getV := func(v string) (int, error) {
		vi, err := strconv.Atoi(v)
		if err != nil {
			return 0, err
		}
		if vi < 0 {
			return vi + vertCount, nil
		}
		return vi - 1, nil
	}
	data := make([]int, 0, len(ss))
	for _, s := range ss {
		// v, v/vt, v//vn and v/vt/vn all start with the vertex index.
		vi, err := getV(strings.SplitN(s, "/", 2)[0])
		if err != nil {
			return err
		}
		data = append(data, vi)
		if len(data) >= maxFaceVerts {
			break
		}
	}
	for i := 2; i < len(data); i++ {
		a := data[0]
		b := data[i-1]
		c := data[i]
		if a < 0 || a >= vertCount || b < 0 || b >= vertCount || c < 0 || c >= vertCount {
			continue
		}
		m.addTriangle(a, b, c)
	}
	return nil
}

func (m *Obj) addVertex(x, y, z float32) {
	m.Verts = append(m.Verts, x*m.Scale, y*m.Scale, z*m.Scale)
}

func (m *Obj) addTriangle(a, b, c int) {
	m.Tris = append(m.Tris, int32(a), int32(b), int32(c))
}
